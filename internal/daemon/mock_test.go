package daemon

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// deviceCall records one call made to MockDaemon.
type deviceCall struct {
	Op    string
	Board BoardID
	Args  string
}

// MockDaemon implements Daemon for testing.
type MockDaemon struct {
	mu       sync.Mutex
	calls    []deviceCall
	boards   []BoardID
	matrices map[BoardID]Matrix

	refreshErr error
	boardsErr  error
	setErr     error
	matrixErr  map[BoardID]error

	// gateOp makes the named operation block until gate is closed,
	// after signalling entered. Used to hold the worker busy.
	gateOp  string
	gate    chan struct{}
	entered chan struct{}
}

func NewMockDaemon(boards ...BoardID) *MockDaemon {
	return &MockDaemon{
		boards:    boards,
		matrices:  make(map[BoardID]Matrix),
		matrixErr: make(map[BoardID]error),
		entered:   make(chan struct{}, 16),
	}
}

func (m *MockDaemon) record(op string, board BoardID, args string) {
	m.mu.Lock()
	m.calls = append(m.calls, deviceCall{Op: op, Board: board, Args: args})
	gated := m.gateOp == op
	gate := m.gate
	m.mu.Unlock()

	if gated && gate != nil {
		m.entered <- struct{}{}
		<-gate
	}
}

func (m *MockDaemon) KeymapSet(board BoardID, layer, output, input uint8, value uint16) error {
	m.record("keymap", board, fmt.Sprintf("%d/%d/%d=%d", layer, output, input, value))
	return m.err()
}

func (m *MockDaemon) SetColor(board BoardID, index uint8, color RGB) error {
	m.record("color", board, fmt.Sprintf("%d=%d,%d,%d", index, color.R, color.G, color.B))
	return m.err()
}

func (m *MockDaemon) SetBrightness(board BoardID, index uint8, brightness int32) error {
	m.record("brightness", board, fmt.Sprintf("%d=%d", index, brightness))
	return m.err()
}

func (m *MockDaemon) SetMode(board BoardID, layer, mode, speed uint8) error {
	m.record("mode", board, fmt.Sprintf("%d=%d,%d", layer, mode, speed))
	return m.err()
}

func (m *MockDaemon) LedSave(board BoardID) error {
	m.record("led_save", board, "")
	return m.err()
}

func (m *MockDaemon) MatrixGet(board BoardID) (Matrix, error) {
	m.record("matrix", board, "")
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.matrixErr[board]; err != nil {
		return Matrix{}, err
	}
	return m.matrices[board].Clone(), nil
}

func (m *MockDaemon) Model(board BoardID) (string, error) {
	return "test/board", nil
}

func (m *MockDaemon) Version(board BoardID) (string, error) {
	return "1.0.0", nil
}

func (m *MockDaemon) Refresh() error {
	m.record("refresh", 0, "")
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshErr
}

func (m *MockDaemon) Boards() ([]BoardID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.boardsErr != nil {
		return nil, m.boardsErr
	}
	ids := make([]BoardID, len(m.boards))
	copy(ids, m.boards)
	return ids, nil
}

func (m *MockDaemon) err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setErr
}

func (m *MockDaemon) SetBoards(ids ...BoardID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.boards = ids
}

func (m *MockDaemon) SetMatrix(id BoardID, matrix Matrix) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.matrices[id] = matrix
}

func (m *MockDaemon) SetMatrixError(id BoardID, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.matrixErr[id] = err
}

func (m *MockDaemon) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setErr = err
}

// Hold makes the next calls of op block until the returned release is called.
func (m *MockDaemon) Hold(op string) (release func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gateOp = op
	m.gate = make(chan struct{})
	gate := m.gate
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			m.gateOp = ""
			m.mu.Unlock()
			close(gate)
		})
	}
}

// Calls returns the recorded calls, optionally filtered by operation.
func (m *MockDaemon) Calls(op string) []deviceCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []deviceCall
	for _, c := range m.calls {
		if op == "" || c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// mockBoard is the handle returned by MockFactory.
type mockBoard struct {
	id BoardID
}

func (b *mockBoard) ID() BoardID { return b.id }

// MockFactory implements BoardFactory for testing.
type MockFactory struct {
	mu      sync.Mutex
	fail    map[BoardID]error
	streams map[BoardID]*Queue[Matrix]
	built   []BoardID
}

func NewMockFactory() *MockFactory {
	return &MockFactory{
		fail:    make(map[BoardID]error),
		streams: make(map[BoardID]*Queue[Matrix]),
	}
}

func (f *MockFactory) NewBoard(_ Daemon, _ *Client, id BoardID, matrices *Queue[Matrix]) (Board, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.built = append(f.built, id)
	if err := f.fail[id]; err != nil {
		return nil, err
	}
	f.streams[id] = matrices
	return &mockBoard{id: id}, nil
}

func (f *MockFactory) Fail(id BoardID, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, id)
		return
	}
	f.fail[id] = err
}

func (f *MockFactory) Stream(id BoardID) *Queue[Matrix] {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams[id]
}

func (f *MockFactory) Built() []BoardID {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]BoardID, len(f.built))
	copy(out, f.built)
	return out
}

// eventRecorder collects events delivered to OnEvent.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) handle(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// recordingLogger captures error messages.
type recordingLogger struct {
	noopLogger
	mu     sync.Mutex
	errors []string
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *recordingLogger) Errors() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.errors))
	copy(out, l.errors)
	return out
}

var errDevice = errors.New("device busy")

// testHarness bundles a client with its mocks.
type testHarness struct {
	client  *Client
	device  *MockDaemon
	factory *MockFactory
	events  *eventRecorder
	logger  *recordingLogger
}

func newTestHarness(t *testing.T, device *MockDaemon, opts Options) *testHarness {
	t.Helper()

	h := &testHarness{
		device:  device,
		factory: NewMockFactory(),
		events:  &eventRecorder{},
		logger:  &recordingLogger{},
	}

	opts.Daemon = device
	opts.Factory = h.factory
	opts.OnEvent = h.events.handle
	opts.Logger = h.logger
	if opts.IdleInterval == 0 {
		opts.IdleInterval = 5 * time.Millisecond
	}

	client, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	h.client = client

	t.Cleanup(func() {
		client.Exit()
		<-client.Done()
	})
	return h
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// holdWorker blocks the worker inside a LedSave call on board 99 so that
// subsequent commands stay queued. Returns the release function and a
// channel carrying the LedSave result.
func (h *testHarness) holdWorker(t *testing.T) (release func(), result <-chan error) {
	t.Helper()

	release = h.device.Hold("led_save")
	res := make(chan error, 1)
	go func() {
		res <- h.client.LedSave(t.Context(), 99)
	}()

	select {
	case <-h.device.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never entered held call")
	}
	t.Cleanup(release)
	return release, res
}

// goSend runs fn in a goroutine and waits until the queue grew to want.
func (h *testHarness) goSend(t *testing.T, want int, fn func() error) <-chan error {
	t.Helper()
	res := make(chan error, 1)
	go func() {
		res <- fn()
	}()
	waitFor(t, fmt.Sprintf("queue length %d", want), func() bool {
		return h.client.queue.Len() == want
	})
	return res
}

func recv(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reply")
		return nil
	}
}
