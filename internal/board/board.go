package board

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/boardd/internal/daemon"
)

// MatrixHandler is called with every key matrix change of a board.
type MatrixHandler func(id daemon.BoardID, matrix daemon.Matrix)

// Logger defines the logging interface used by boards.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Board is the application-facing handle of one attached board.
//
// Setters are forwarded to the daemon client and share its debounce: a
// newer call for the same key or LED supersedes one still queued.
//
// Thread Safety: All methods are safe for concurrent use.
type Board struct {
	id      daemon.BoardID
	model   string
	version string
	client  *daemon.Client

	mu     sync.RWMutex
	matrix daemon.Matrix

	done chan struct{}
}

// ID returns the board id.
func (b *Board) ID() daemon.BoardID { return b.id }

// Model returns the board model read when the board was attached.
func (b *Board) Model() string { return b.model }

// Version returns the firmware version read when the board was attached.
func (b *Board) Version() string { return b.version }

// Matrix returns the latest key matrix seen by the poll loop.
func (b *Board) Matrix() daemon.Matrix {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.matrix.Clone()
}

// Done is closed once the board is removed or the worker stops.
func (b *Board) Done() <-chan struct{} {
	return b.done
}

// SetKey maps the key at (layer, output, input) to keycode.
func (b *Board) SetKey(ctx context.Context, layer, output, input uint8, keycode uint16) error {
	return b.client.KeymapSet(ctx, b.id, layer, output, input, keycode)
}

// SetColor sets the colour of one LED, or all of them with index 0xFF.
func (b *Board) SetColor(ctx context.Context, index uint8, color daemon.RGB) error {
	return b.client.SetColor(ctx, b.id, index, color)
}

// SetBrightness sets the brightness of one LED, or all of them with index 0xFF.
func (b *Board) SetBrightness(ctx context.Context, index uint8, brightness int32) error {
	return b.client.SetBrightness(ctx, b.id, index, brightness)
}

// SetMode sets the LED mode and speed of a layer.
func (b *Board) SetMode(ctx context.Context, layer, mode, speed uint8) error {
	return b.client.SetMode(ctx, b.id, layer, mode, speed)
}

// LedSave persists the LED settings.
func (b *Board) LedSave(ctx context.Context) error {
	return b.client.LedSave(ctx, b.id)
}

// watch consumes the matrix stream until it is closed.
func (b *Board) watch(matrices *daemon.Queue[daemon.Matrix], onMatrix MatrixHandler, logger Logger) {
	defer close(b.done)

	for {
		m, err := matrices.Pop(context.Background())
		if err != nil {
			if !errors.Is(err, daemon.ErrQueueClosed) {
				logger.Error("matrix stream failed", "board", b.id.String(), "error", err)
			}
			return
		}

		b.mu.Lock()
		b.matrix = m
		b.mu.Unlock()

		if onMatrix != nil {
			onMatrix(b.id, m.Clone())
		}
	}
}

// Options holds configuration for creating a Factory.
type Options struct {
	// OnMatrix receives key matrix changes of every board. Optional.
	// Calls for one board are sequential; different boards run concurrently.
	OnMatrix MatrixHandler

	// Logger is an optional structured logger.
	Logger Logger
}

// Factory builds Board handles. It implements daemon.BoardFactory.
type Factory struct {
	onMatrix MatrixHandler
	logger   Logger
}

// NewFactory creates a Factory.
func NewFactory(opts Options) *Factory {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Factory{
		onMatrix: opts.OnMatrix,
		logger:   logger,
	}
}

// NewBoard implements daemon.BoardFactory. It reads the model and firmware
// version from d and starts consuming the matrix stream.
func (f *Factory) NewBoard(d daemon.Daemon, c *daemon.Client, id daemon.BoardID, matrices *daemon.Queue[daemon.Matrix]) (daemon.Board, error) {
	model, err := d.Model(id)
	if err != nil {
		return nil, fmt.Errorf("reading model of board %s: %w", id, err)
	}
	version, err := d.Version(id)
	if err != nil {
		return nil, fmt.Errorf("reading version of board %s: %w", id, err)
	}

	b := &Board{
		id:      id,
		model:   model,
		version: version,
		client:  c,
		done:    make(chan struct{}),
	}
	go b.watch(matrices, f.onMatrix, f.logger)

	f.logger.Debug("board handle created", "board", id.String(), "model", model, "version", version)
	return b, nil
}

var _ daemon.BoardFactory = (*Factory)(nil)
