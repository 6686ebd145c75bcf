package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/boardd/internal/audit"
	"github.com/nerrad567/boardd/internal/daemon"
)

const (
	// commandTopicParts is the number of parts in boardd/command/{board}.
	commandTopicParts = 3

	// defaultCommandTimeout bounds how long a command waits for the worker.
	defaultCommandTimeout = 5 * time.Second

	// historyTimeout bounds one history or audit write.
	historyTimeout = 2 * time.Second

	// qosAtLeastOnce is used for every publish and subscription.
	qosAtLeastOnce byte = 1
)

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// Controller queues board commands. Satisfied by *daemon.Client.
//
// Submit must not block on the command's execution.
type Controller interface {
	Submit(req daemon.Request) *daemon.Pending
}

// MetricsWriter records board metrics. Satisfied by *influxdb.Client.
type MetricsWriter interface {
	WriteMatrix(boardID string, pressed int)
	WriteCommand(boardID, command, status string, duration time.Duration)
}

// History records board events. Satisfied by *device.SQLiteHistoryRepository.
type History interface {
	RecordEvent(ctx context.Context, board daemon.BoardID, event string) error
	RecordMatrix(ctx context.Context, board daemon.BoardID, matrix daemon.Matrix) error
}

// AuditRecorder records executed commands. Satisfied by
// *audit.SQLiteRepository.
type AuditRecorder interface {
	Create(ctx context.Context, e *audit.Entry) error
}

// Logger defines the logging interface used by the bridge.
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

// boardInfo is implemented by board handles that know their model.
type boardInfo interface {
	Model() string
	Version() string
}

// Options holds configuration for creating a bridge.
type Options struct {
	// ID identifies this bridge in health messages. Default: "boardd".
	ID string

	// Version is reported in health messages.
	Version string

	// MQTTClient is the MQTT client implementation. Required.
	MQTTClient MQTTClient

	// Metrics is an optional time-series writer.
	Metrics MetricsWriter

	// History is an optional board history store.
	History History

	// Audit optionally records every executed command.
	Audit AuditRecorder

	// Logger is an optional structured logger.
	Logger Logger

	// CommandTimeout bounds how long one command may wait. Default: 5s.
	CommandTimeout time.Duration

	// HealthInterval is how often health is published. Default: 30s.
	HealthInterval time.Duration
}

// Bridge connects MQTT to the daemon client. It handles:
//   - Commands on boardd/command/{board}, executed through the Controller
//     and acknowledged on boardd/ack/{board}
//   - Board added/removed events, published on boardd/event/{board}
//   - Key matrix changes, published retained on boardd/state/{board}
//   - Optional InfluxDB metrics and SQLite history for both
//
// Commands are queued in MQTT arrival order. Only the wait for each result
// runs on its own goroutine, so bursts for one target collapse in the
// daemon's debounce instead of queueing behind each other here.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	id             string
	mqtt           MQTTClient
	metrics        MetricsWriter
	history        History
	audit          AuditRecorder
	logger         Logger
	commandTimeout time.Duration
	health         *HealthReporter

	controller   Controller
	controllerMu sync.RWMutex

	boards   map[daemon.BoardID]struct{}
	boardsMu sync.RWMutex

	// removed holds boards whose state was cleared, until they are added
	// again. stateMu also orders writes to the state topics.
	removed map[daemon.BoardID]struct{}
	stateMu sync.Mutex

	commandsOK     atomic.Uint64
	commandsFailed atomic.Uint64

	// Shutdown coordination
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context    // Bridge-level context, cancelled on Stop()
	ctxCancel context.CancelFunc // Cancel function for ctx
}

// NewBridge creates a new bridge. Call SetController and Start to begin
// handling commands.
func NewBridge(opts Options) (*Bridge, error) {
	if opts.MQTTClient == nil {
		return nil, ErrMQTTRequired
	}

	id := opts.ID
	if id == "" {
		id = TopicPrefix
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	timeout := opts.CommandTimeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		id:             id,
		mqtt:           opts.MQTTClient,
		metrics:        opts.Metrics,
		history:        opts.History,
		audit:          opts.Audit,
		logger:         logger,
		commandTimeout: timeout,
		boards:         make(map[daemon.BoardID]struct{}),
		removed:        make(map[daemon.BoardID]struct{}),
		done:           make(chan struct{}),
		ctx:            ctx,
		ctxCancel:      ctxCancel,
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  id,
		Version:   opts.Version,
		Interval:  opts.HealthInterval,
		Publisher: opts.MQTTClient,
		Boards:    b.BoardCount,
		Logger:    logger,
	})

	return b, nil
}

// SetController sets the controller commands are executed through.
// Commands received before it is set are acknowledged as NOT_READY.
func (b *Bridge) SetController(c Controller) {
	b.controllerMu.Lock()
	b.controller = c
	b.controllerMu.Unlock()
}

func (b *Bridge) getController() Controller {
	b.controllerMu.RLock()
	defer b.controllerMu.RUnlock()
	return b.controller
}

// Start subscribes to command topics and starts health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logger.Error("failed to publish starting status", "error", err)
	}

	topic := CommandSubscribeTopic()
	if err := b.mqtt.Subscribe(topic, qosAtLeastOnce, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logger.Info("subscribed to commands", "topic", topic)

	b.health.Start(ctx)

	b.logger.Info("bridge started", "bridge_id", b.id)
	return nil
}

// Stop cancels in-flight commands and waits for their handlers to finish.
// Safe to call multiple times.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		b.ctxCancel()
		b.health.Stop()
		b.wg.Wait()
		b.logger.Info("bridge stopped",
			"commands_ok", b.commandsOK.Load(),
			"commands_failed", b.commandsFailed.Load(),
		)
	})
}

// handleMQTTMessage parses and queues a command, then waits for its result
// on its own goroutine.
func (b *Bridge) handleMQTTMessage(topic string, payload []byte) error {
	select {
	case <-b.done:
		return ErrStopped
	default:
	}

	board, err := parseCommandTopic(topic)
	if err != nil {
		return err
	}

	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("parsing command on %s: %w", topic, err)
	}

	b.logger.Debug("received command",
		"command_id", cmd.ID,
		"board", board.String(),
		"command", cmd.Command)

	start := time.Now()
	pending := b.submit(board, cmd)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.handleCommand(board, cmd, start, pending)
	}()
	return nil
}

// submit queues cmd with the controller. Invalid commands resolve at once.
func (b *Bridge) submit(board daemon.BoardID, cmd CommandMessage) *daemon.Pending {
	c := b.getController()
	if c == nil {
		return daemon.Resolved(ErrNotReady)
	}
	req, err := buildRequest(board, cmd)
	if err != nil {
		return daemon.Resolved(err)
	}
	return c.Submit(req)
}

// handleCommand waits for one command and publishes its acknowledgment.
func (b *Bridge) handleCommand(board daemon.BoardID, cmd CommandMessage, start time.Time, pending *daemon.Pending) {
	ctx, cancel := context.WithTimeout(b.ctx, b.commandTimeout)
	defer cancel()

	err := pending.Wait(ctx)

	var ack AckMessage
	if err != nil {
		code := errorCode(err)
		ack = NewAckError(board, cmd, code, err.Error())
		b.commandsFailed.Add(1)
		b.logger.Warn("command failed",
			"command_id", cmd.ID,
			"board", board.String(),
			"command", cmd.Command,
			"code", code,
			"error", err)
	} else {
		ack = NewAckMessage(board, cmd, AckCompleted)
		b.commandsOK.Add(1)
	}

	b.publishJSON(AckTopic(board), ack, false)

	if b.metrics != nil {
		b.metrics.WriteCommand(board.String(), cmd.Command, string(ack.Status), time.Since(start))
	}
	b.recordAudit(board, cmd, err)
}

func (b *Bridge) recordAudit(board daemon.BoardID, cmd CommandMessage, cmdErr error) {
	if b.audit == nil {
		return
	}

	entry := &audit.Entry{
		Action:  cmd.Command,
		BoardID: board.String(),
		Subject: cmd.Source,
		Source:  audit.SourceMQTT,
		Result:  audit.ResultCompleted,
		Details: cmd.Parameters,
	}
	if cmdErr != nil {
		entry.Result = audit.ResultFailed
		entry.Error = cmdErr.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()
	if err := b.audit.Create(ctx, entry); err != nil {
		b.logger.Warn("failed to record audit entry", "command_id", cmd.ID, "error", err)
	}
}

// buildRequest translates a command into a daemon request.
func buildRequest(board daemon.BoardID, cmd CommandMessage) (daemon.Request, error) {
	p := cmd.Parameters

	switch cmd.Command {
	case CommandSetKey:
		pos, err := uint8Params(p, "layer", "output", "input")
		if err != nil {
			return daemon.Request{}, err
		}
		keycode, err := uint16Param(p, "keycode")
		if err != nil {
			return daemon.Request{}, err
		}
		return daemon.KeymapSetRequest(board, pos[0], pos[1], pos[2], keycode), nil

	case CommandSetColor:
		v, err := uint8Params(p, "index", "r", "g", "b")
		if err != nil {
			return daemon.Request{}, err
		}
		return daemon.SetColorRequest(board, v[0], daemon.RGB{R: v[1], G: v[2], B: v[3]}), nil

	case CommandSetBrightness:
		index, err := uint8Param(p, "index")
		if err != nil {
			return daemon.Request{}, err
		}
		brightness, err := intParam(p, "brightness", 0, 255)
		if err != nil {
			return daemon.Request{}, err
		}
		return daemon.SetBrightnessRequest(board, index, int32(brightness)), nil

	case CommandSetMode:
		v, err := uint8Params(p, "layer", "mode", "speed")
		if err != nil {
			return daemon.Request{}, err
		}
		return daemon.SetModeRequest(board, v[0], v[1], v[2]), nil

	case CommandLedSave:
		return daemon.LedSaveRequest(board), nil

	case CommandSetMatrixRate:
		ms, err := intParam(p, "rate_ms", 0, int64(time.Hour/time.Millisecond))
		if err != nil {
			return daemon.Request{}, err
		}
		return daemon.MatrixRateRequest(time.Duration(ms) * time.Millisecond), nil

	case CommandRefresh:
		return daemon.RefreshRequest(), nil

	default:
		return daemon.Request{}, fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.Command)
	}
}

// errorCode maps an execution error to an ack error code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidParameters):
		return ErrCodeInvalidParameters
	case errors.Is(err, ErrUnknownCommand):
		return ErrCodeInvalidCommand
	case errors.Is(err, ErrNotReady):
		return ErrCodeNotReady
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ErrCodeTimeout
	default:
		return ErrCodeDeviceError
	}
}

// HandleEvent publishes a board event and records it. It is the
// daemon.EventHandler used by boardd.
func (b *Bridge) HandleEvent(ev daemon.Event) {
	msg := EventMessage{
		BoardID:   ev.BoardID,
		Event:     ev.Kind.String(),
		Timestamp: time.Now().UTC(),
	}

	b.boardsMu.Lock()
	switch ev.Kind {
	case daemon.EventBoardAdded:
		b.boards[ev.BoardID] = struct{}{}
		if info, ok := ev.Board.(boardInfo); ok {
			msg.Model = info.Model()
			msg.Version = info.Version()
		}
	case daemon.EventBoardRemoved:
		delete(b.boards, ev.BoardID)
	}
	b.boardsMu.Unlock()

	b.logger.Info("board "+msg.Event, "board", ev.BoardID.String(), "model", msg.Model)

	b.publishJSON(EventTopic(ev.BoardID), msg, false)

	b.stateMu.Lock()
	switch ev.Kind {
	case daemon.EventBoardAdded:
		delete(b.removed, ev.BoardID)
	case daemon.EventBoardRemoved:
		b.removed[ev.BoardID] = struct{}{}
		// An empty retained payload clears the board's last state.
		if err := b.mqtt.Publish(StateTopic(ev.BoardID), nil, qosAtLeastOnce, true); err != nil {
			b.logger.Error("failed to clear board state", "board", ev.BoardID.String(), "error", err)
		}
	}
	b.stateMu.Unlock()

	if b.history != nil {
		ctx, cancel := context.WithTimeout(b.ctx, historyTimeout)
		defer cancel()
		if err := b.history.RecordEvent(ctx, ev.BoardID, msg.Event); err != nil {
			b.logger.Error("failed to record board event", "board", ev.BoardID.String(), "error", err)
		}
	}
}

// HandleMatrix publishes a key matrix change and records it. It is the
// board.MatrixHandler used by boardd.
//
// Matrices for a removed board are dropped until it is added again.
func (b *Bridge) HandleMatrix(id daemon.BoardID, m daemon.Matrix) {
	msg := NewStateMessage(id, m)

	b.stateMu.Lock()
	if _, gone := b.removed[id]; gone {
		b.stateMu.Unlock()
		b.logger.Debug("dropping matrix for removed board", "board", id.String())
		return
	}
	b.publishJSON(StateTopic(id), msg, true)
	b.stateMu.Unlock()

	if b.metrics != nil {
		b.metrics.WriteMatrix(id.String(), msg.Pressed)
	}

	if b.history != nil {
		ctx, cancel := context.WithTimeout(b.ctx, historyTimeout)
		defer cancel()
		if err := b.history.RecordMatrix(ctx, id, m); err != nil {
			b.logger.Error("failed to record matrix", "board", id.String(), "error", err)
		}
	}
}

// publishJSON marshals v and publishes it with QoS 1.
func (b *Bridge) publishJSON(topic string, v any, retained bool) {
	payload, err := json.Marshal(v)
	if err != nil {
		b.logger.Error("failed to marshal message", "topic", topic, "error", err)
		return
	}
	if err := b.mqtt.Publish(topic, payload, qosAtLeastOnce, retained); err != nil {
		b.logger.Error("failed to publish", "topic", topic, "error", err)
	}
}

// BoardCount returns the number of attached boards.
func (b *Bridge) BoardCount() int {
	b.boardsMu.RLock()
	defer b.boardsMu.RUnlock()
	return len(b.boards)
}

// Metrics contains bridge counters.
type Metrics struct {
	Connected      bool
	Boards         int
	CommandsOK     uint64
	CommandsFailed uint64
}

// GetMetrics returns current bridge counters.
func (b *Bridge) GetMetrics() Metrics {
	return Metrics{
		Connected:      b.mqtt.IsConnected(),
		Boards:         b.BoardCount(),
		CommandsOK:     b.commandsOK.Load(),
		CommandsFailed: b.commandsFailed.Load(),
	}
}
