package daemon

import (
	"context"
	"sync/atomic"
	"time"
)

// defaultIdleInterval is how often the poll loop wakes when no poll rate is set.
const defaultIdleInterval = 100 * time.Millisecond

// Options holds configuration for creating a Client.
type Options struct {
	// Daemon is the device capability. Required.
	Daemon Daemon

	// Factory builds board handles for newly attached boards. Required.
	Factory BoardFactory

	// OnEvent receives board added/removed events. Required.
	// It is invoked sequentially from a dedicated goroutine.
	OnEvent EventHandler

	// Logger is an optional structured logger.
	Logger Logger

	// IdleInterval is the poll loop period while no poll rate is set.
	// Default: 100ms.
	IdleInterval time.Duration

	// PollRate is the initial matrix poll rate. Zero disables polling
	// until SetMatrixGetRate is called.
	PollRate time.Duration
}

// Client is the front of the command queue and the only handle callers hold.
//
// Every mutation method blocks until the worker has executed the command,
// skipped it because a newer command with the same target superseded it, or
// ctx ends. A superseded command resolves as success.
//
// Thread Safety: All methods are safe for concurrent use.
type Client struct {
	tokens *tokenRegistry
	queue  *Queue[*command]
	done   chan struct{}
}

// New creates a Client and starts its worker and event dispatcher.
// Call Exit to stop them.
func New(opts Options) (*Client, error) {
	if opts.Daemon == nil {
		return nil, ErrDaemonRequired
	}
	if opts.Factory == nil {
		return nil, ErrFactoryRequired
	}
	if opts.OnEvent == nil {
		return nil, ErrHandlerRequired
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	idle := opts.IdleInterval
	if idle <= 0 {
		idle = defaultIdleInterval
	}

	c := &Client{
		tokens: newTokenRegistry(),
		queue:  NewQueue[*command](),
		done:   make(chan struct{}),
	}

	events := newDispatcher(opts.OnEvent, logger)
	w := newWorker(workerConfig{
		daemon:   opts.Daemon,
		factory:  opts.Factory,
		client:   c,
		queue:    c.queue,
		events:   events,
		logger:   logger,
		idle:     idle,
		pollRate: max(opts.PollRate, 0),
		done:     c.done,
	})

	go events.run()
	go w.run()

	return c, nil
}

// KeymapSet maps the key at (layer, output, input) on board to value.
func (c *Client) KeymapSet(ctx context.Context, board BoardID, layer, output, input uint8, value uint16) error {
	return c.Submit(KeymapSetRequest(board, layer, output, input, value)).Wait(ctx)
}

// SetColor sets the colour of LED index on board.
func (c *Client) SetColor(ctx context.Context, board BoardID, index uint8, color RGB) error {
	return c.Submit(SetColorRequest(board, index, color)).Wait(ctx)
}

// SetBrightness sets the brightness of LED index on board.
func (c *Client) SetBrightness(ctx context.Context, board BoardID, index uint8, brightness int32) error {
	return c.Submit(SetBrightnessRequest(board, index, brightness)).Wait(ctx)
}

// SetMode sets the LED mode and speed of a layer on board.
func (c *Client) SetMode(ctx context.Context, board BoardID, layer, mode, speed uint8) error {
	return c.Submit(SetModeRequest(board, layer, mode, speed)).Wait(ctx)
}

// LedSave persists the LED settings of board.
func (c *Client) LedSave(ctx context.Context, board BoardID) error {
	return c.Submit(LedSaveRequest(board)).Wait(ctx)
}

// SetMatrixGetRate sets how often the key matrix of every board is polled.
// A rate of zero or less stops polling.
func (c *Client) SetMatrixGetRate(ctx context.Context, rate time.Duration) error {
	return c.Submit(MatrixRateRequest(rate)).Wait(ctx)
}

// Refresh re-enumerates the attached boards and emits add/remove events.
func (c *Client) Refresh(ctx context.Context) error {
	return c.Submit(RefreshRequest()).Wait(ctx)
}

// Exit stops the worker and blocks until the request is resolved.
//
// Commands queued behind the exit request are not executed; their callers
// resolve as success.
func (c *Client) Exit() {
	_ = c.submit(kindIdentity(KindExit), payload{}).Wait(context.Background()) //nolint:errcheck // always resolves to nil
}

// Done is closed once the worker has stopped.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Submit queues req and returns without waiting for the worker.
//
// Requests submitted one after another from the same goroutine reach the
// device in that order. A zero Request resolves to ErrInvalidRequest.
func (c *Client) Submit(req Request) *Pending {
	if req.id.kind == 0 {
		return Resolved(ErrInvalidRequest)
	}
	return c.submit(req.id, req.payload)
}

// submit registers the command and queues it.
func (c *Client) submit(id identity, p payload) *Pending {
	cmd := newCommand(id, p)

	queued := false
	c.tokens.issue(id, func(token *atomic.Bool) {
		cmd.cancelled = token
		queued = c.queue.Push(cmd)
	})
	if !queued {
		// Worker already stopped.
		return Resolved(nil)
	}
	return &Pending{reply: cmd.reply}
}
