package daemon

import "context"

// EventKind is the kind of a board inventory event.
type EventKind uint8

const (
	// EventBoardAdded carries the handle of a newly attached board.
	EventBoardAdded EventKind = iota + 1

	// EventBoardRemoved carries the id of a board that went away.
	EventBoardRemoved
)

// String returns the event name used in topics and logs.
func (k EventKind) String() string {
	switch k {
	case EventBoardAdded:
		return "added"
	case EventBoardRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Event reports a change in the set of attached boards.
type Event struct {
	Kind    EventKind
	BoardID BoardID

	// Board is set for EventBoardAdded only.
	Board Board
}

// EventHandler receives board inventory events.
type EventHandler func(Event)

// dispatcher carries events from the worker to the handler on its own
// goroutine, so a slow handler never stalls device access.
type dispatcher struct {
	queue   *Queue[Event]
	handler EventHandler
	logger  Logger
}

func newDispatcher(handler EventHandler, logger Logger) *dispatcher {
	return &dispatcher{
		queue:   NewQueue[Event](),
		handler: handler,
		logger:  logger,
	}
}

// emit queues an event. Called from the worker only.
func (d *dispatcher) emit(ev Event) {
	d.queue.Push(ev)
}

// close stops the dispatcher once queued events are delivered.
func (d *dispatcher) close() {
	d.queue.Close()
}

// run delivers events in order until the queue is closed and drained.
func (d *dispatcher) run() {
	for {
		ev, err := d.queue.Pop(context.Background())
		if err != nil {
			return
		}
		d.deliver(ev)
	}
}

// deliver invokes the handler, recovering from panics so one bad handler
// call does not stop later events.
func (d *dispatcher) deliver(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event handler panic recovered",
				"event", ev.Kind.String(),
				"board", ev.BoardID.String(),
				"panic", r,
			)
		}
	}()
	d.handler(ev)
}
