package daemon

import (
	"runtime"
	"sort"
	"time"
)

// boardRecord is the worker's view of one attached board.
type boardRecord struct {
	// matrix is the last matrix seen by the poll loop.
	matrix Matrix

	// stream feeds matrix changes to the board handle.
	stream *Queue[Matrix]
}

// workerConfig holds the dependencies of a worker.
type workerConfig struct {
	daemon   Daemon
	factory  BoardFactory
	client   *Client
	queue    *Queue[*command]
	events   *dispatcher
	logger   Logger
	idle     time.Duration
	pollRate time.Duration
	done     chan struct{}
}

// worker owns the Daemon. All of its fields are only touched from run, so
// none of them need locking.
type worker struct {
	daemon  Daemon
	factory BoardFactory
	client  *Client
	queue   *Queue[*command]
	events  *dispatcher
	logger  Logger
	done    chan struct{}

	boards   map[BoardID]*boardRecord
	pollRate time.Duration
	idle     time.Duration
}

func newWorker(cfg workerConfig) *worker {
	return &worker{
		daemon:   cfg.daemon,
		factory:  cfg.factory,
		client:   cfg.client,
		queue:    cfg.queue,
		events:   cfg.events,
		logger:   cfg.logger,
		done:     cfg.done,
		boards:   make(map[BoardID]*boardRecord),
		pollRate: cfg.pollRate,
		idle:     cfg.idle,
	}
}

// run is the worker loop. Commands and poll cycles are interleaved on this
// one goroutine and never run in parallel.
func (w *worker) run() {
	// The device handle may be bound to the thread that opened it.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer w.stop()

	w.logger.Debug("worker started", "poll_rate", w.pollRate, "idle_interval", w.idle)

	polling, delay := w.nextCycle()
	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-w.queue.Ready():
			cmd, ok := w.queue.TryPop()
			if !ok {
				continue
			}
			if !w.handle(cmd) {
				return
			}

		case <-timer.C:
			if polling {
				w.refreshMatrices()
			}
			polling, delay = w.nextCycle()
			timer.Reset(delay)
		}
	}
}

// nextCycle decides what the next poll wake-up does, based on the poll rate
// at the time it is armed.
func (w *worker) nextCycle() (polling bool, delay time.Duration) {
	if w.pollRate > 0 {
		return true, w.pollRate
	}
	return false, w.idle
}

// handle executes one command. Returns false when the worker must stop.
func (w *worker) handle(cmd *command) bool {
	if cmd.cancelled.Load() {
		// Superseded by a newer command with the same target.
		cmd.drop()
		return true
	}

	key := cmd.id.key
	p := cmd.payload

	var err error
	switch cmd.id.kind {
	case KindKeymap:
		err = w.daemon.KeymapSet(key.Board, key.Layer, key.Output, key.Input, p.keycode)
	case KindColor:
		err = w.daemon.SetColor(key.Board, key.Index, p.color)
	case KindBrightness:
		err = w.daemon.SetBrightness(key.Board, key.Index, p.brightness)
	case KindMode:
		err = w.daemon.SetMode(key.Board, key.Layer, p.mode, p.speed)
	case KindLedSave:
		err = w.daemon.LedSave(key.Board)
	case KindMatrixRate:
		w.pollRate = p.rate
		w.logger.Debug("matrix poll rate changed", "rate", p.rate)
	case KindRefresh:
		err = w.refresh()
	case KindExit:
		cmd.drop()
		return false
	default:
		w.logger.Warn("unknown command kind", "kind", cmd.id.kind)
	}

	cmd.resolve(err)
	return true
}

// stop releases everything the worker owns. Commands still queued are
// dropped without running, which resolves their callers as success.
func (w *worker) stop() {
	w.queue.Close()
	pending := w.queue.Drain()
	for _, cmd := range pending {
		cmd.drop()
	}

	for id, rec := range w.boards {
		rec.stream.Close()
		delete(w.boards, id)
	}

	w.events.close()
	close(w.done)

	w.logger.Info("worker stopped", "dropped_commands", len(pending))
}

// sortedBoardIDs returns the known board ids in ascending order so that
// reconciliation and polling visit boards deterministically.
func (w *worker) sortedBoardIDs() []BoardID {
	ids := make([]BoardID, 0, len(w.boards))
	for id := range w.boards {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
