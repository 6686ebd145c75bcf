package daemon

import (
	"context"
	"errors"
	"testing"
	"time"
)

func eventsString(events []Event) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Kind.String()+":"+ev.BoardID.String())
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRefreshAddsBoards(t *testing.T) {
	h := newTestHarness(t, NewMockDaemon(1, 2, 3), Options{})

	if err := h.client.Refresh(t.Context()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	waitFor(t, "3 events", func() bool { return len(h.events.Events()) == 3 })

	want := []string{"added:1", "added:2", "added:3"}
	if got := eventsString(h.events.Events()); !equalStrings(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	for _, ev := range h.events.Events() {
		if ev.Board == nil || ev.Board.ID() != ev.BoardID {
			t.Errorf("added event for %s carries board %v", ev.BoardID, ev.Board)
		}
	}
}

func TestRefreshDiff(t *testing.T) {
	device := NewMockDaemon(1, 2, 3)
	h := newTestHarness(t, device, Options{})

	if err := h.client.Refresh(t.Context()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	waitFor(t, "initial events", func() bool { return len(h.events.Events()) == 3 })
	stream1 := h.factory.Stream(1)

	device.SetBoards(2, 3, 4)
	if err := h.client.Refresh(t.Context()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	waitFor(t, "diff events", func() bool { return len(h.events.Events()) == 5 })

	got := eventsString(h.events.Events()[3:])
	want := []string{"removed:1", "added:4"}
	if !equalStrings(got, want) {
		t.Errorf("diff events = %v, want %v", got, want)
	}

	if !stream1.Closed() {
		t.Error("matrix stream of removed board is still open")
	}

	// Boards 2 and 3 were not rebuilt.
	built := h.factory.Built()
	if len(built) != 4 {
		t.Errorf("factory calls = %v, want 4", built)
	}
}

func TestRefreshDiscardsQueuedMatrices(t *testing.T) {
	device := NewMockDaemon(1)
	pressed := NewMatrix(1, 2)
	pressed.Data[0] = true
	device.SetMatrix(1, pressed)

	h := newTestHarness(t, device, Options{})
	if err := h.client.Refresh(t.Context()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	stream := h.factory.Stream(1)

	if err := h.client.SetMatrixGetRate(t.Context(), 2*time.Millisecond); err != nil {
		t.Fatalf("SetMatrixGetRate() error = %v", err)
	}
	waitFor(t, "queued matrix", func() bool { return stream.Len() == 1 })

	device.SetBoards()
	if err := h.client.Refresh(t.Context()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	if n := stream.Len(); n != 0 {
		t.Errorf("stream length after removal = %d, want 0", n)
	}
	ctx, cancel := context.WithTimeout(t.Context(), time.Second)
	defer cancel()
	if _, err := stream.Pop(ctx); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Pop() after removal error = %v, want ErrQueueClosed", err)
	}
}

func TestRefreshRemovalsPrecedeAdditions(t *testing.T) {
	device := NewMockDaemon(5, 6)
	h := newTestHarness(t, device, Options{})

	if err := h.client.Refresh(t.Context()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	device.SetBoards(1, 2)
	if err := h.client.Refresh(t.Context()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	waitFor(t, "6 events", func() bool { return len(h.events.Events()) == 6 })

	got := eventsString(h.events.Events()[2:])
	want := []string{"removed:5", "removed:6", "added:1", "added:2"}
	if !equalStrings(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestRefreshDeviceErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(d *MockDaemon)
	}{
		{
			name:  "refresh fails",
			setup: func(d *MockDaemon) { d.refreshErr = errDevice },
		},
		{
			name:  "listing fails",
			setup: func(d *MockDaemon) { d.boardsErr = errDevice },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device := NewMockDaemon(1)
			tt.setup(device)
			h := newTestHarness(t, device, Options{})

			err := h.client.Refresh(t.Context())
			if !errors.Is(err, errDevice) {
				t.Errorf("Refresh() error = %v, want %v", err, errDevice)
			}
			if built := h.factory.Built(); len(built) != 0 {
				t.Errorf("factory calls = %v, want none", built)
			}
		})
	}
}

func TestRefreshSkipsBoardThatFailsToBuild(t *testing.T) {
	h := newTestHarness(t, NewMockDaemon(1, 2), Options{})
	h.factory.Fail(2, errors.New("no layout"))

	if err := h.client.Refresh(t.Context()); err != nil {
		t.Fatalf("Refresh() error = %v, want nil", err)
	}
	waitFor(t, "1 event", func() bool { return len(h.events.Events()) == 1 })

	if got := eventsString(h.events.Events()); !equalStrings(got, []string{"added:1"}) {
		t.Errorf("events = %v, want [added:1]", got)
	}
	if len(h.logger.Errors()) != 1 {
		t.Errorf("logged errors = %v, want 1", h.logger.Errors())
	}

	// Retried on the next refresh.
	h.factory.Fail(2, nil)
	if err := h.client.Refresh(t.Context()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	waitFor(t, "2 events", func() bool { return len(h.events.Events()) == 2 })
	if got := eventsString(h.events.Events()); !equalStrings(got, []string{"added:1", "added:2"}) {
		t.Errorf("events = %v, want [added:1 added:2]", got)
	}
}

func TestRefreshIgnoresDuplicateIDs(t *testing.T) {
	h := newTestHarness(t, NewMockDaemon(7, 7), Options{})

	if err := h.client.Refresh(t.Context()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if built := h.factory.Built(); len(built) != 1 {
		t.Errorf("factory calls = %v, want 1", built)
	}
}

func popMatrix(t *testing.T, q *Queue[Matrix]) Matrix {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	m, err := q.Pop(ctx)
	if err != nil {
		t.Fatalf("Pop() error = %v", err)
	}
	return m
}

func TestPollSuppressesUnchangedMatrix(t *testing.T) {
	device := NewMockDaemon(1)
	pressed := NewMatrix(2, 2)
	pressed.Data[1] = true
	device.SetMatrix(1, pressed)

	h := newTestHarness(t, device, Options{})
	if err := h.client.Refresh(t.Context()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	stream := h.factory.Stream(1)

	if err := h.client.SetMatrixGetRate(t.Context(), 2*time.Millisecond); err != nil {
		t.Fatalf("SetMatrixGetRate() error = %v", err)
	}

	if got := popMatrix(t, stream); !got.Equal(pressed) {
		t.Errorf("first matrix = %+v, want %+v", got, pressed)
	}

	// Let several cycles run on the same matrix.
	reads := len(device.Calls("matrix"))
	waitFor(t, "more poll cycles", func() bool { return len(device.Calls("matrix")) >= reads+5 })
	if n := stream.Len(); n != 0 {
		t.Errorf("stream length after unchanged polls = %d, want 0", n)
	}

	changed := pressed.Clone()
	changed.Data[3] = true
	device.SetMatrix(1, changed)

	if got := popMatrix(t, stream); !got.Equal(changed) {
		t.Errorf("changed matrix = %+v, want %+v", got, changed)
	}

	reads = len(device.Calls("matrix"))
	waitFor(t, "more poll cycles", func() bool { return len(device.Calls("matrix")) >= reads+5 })
	if n := stream.Len(); n != 0 {
		t.Errorf("stream length = %d, want 0", n)
	}
}

func TestPollFailureAbortsCycle(t *testing.T) {
	device := NewMockDaemon(1, 2)
	device.SetMatrixError(1, errDevice)
	h := newTestHarness(t, device, Options{PollRate: 2 * time.Millisecond})

	if err := h.client.Refresh(t.Context()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	waitFor(t, "several failing reads", func() bool { return len(device.Calls("matrix")) >= 5 })

	for _, c := range device.Calls("matrix") {
		if c.Board == 2 {
			t.Fatal("board 2 was read although board 1 failed earlier in the cycle")
		}
	}
	if len(h.logger.Errors()) == 0 {
		t.Error("expected matrix failure to be logged")
	}

	// Once board 1 recovers, board 2 is read again.
	device.SetMatrixError(1, nil)
	waitFor(t, "board 2 read", func() bool {
		for _, c := range device.Calls("matrix") {
			if c.Board == 2 {
				return true
			}
		}
		return false
	})
}

func TestPollRateSwitching(t *testing.T) {
	device := NewMockDaemon(1)
	h := newTestHarness(t, device, Options{IdleInterval: 2 * time.Millisecond})

	if err := h.client.Refresh(t.Context()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	// No rate: idle cycles do not touch the device.
	time.Sleep(30 * time.Millisecond)
	if n := len(device.Calls("matrix")); n != 0 {
		t.Fatalf("matrix reads without poll rate = %d, want 0", n)
	}

	if err := h.client.SetMatrixGetRate(t.Context(), 2*time.Millisecond); err != nil {
		t.Fatalf("SetMatrixGetRate() error = %v", err)
	}
	waitFor(t, "matrix reads", func() bool { return len(device.Calls("matrix")) >= 3 })

	if err := h.client.SetMatrixGetRate(t.Context(), 0); err != nil {
		t.Fatalf("SetMatrixGetRate(0) error = %v", err)
	}
	// At most one cycle armed before the change may still run.
	time.Sleep(10 * time.Millisecond)
	settled := len(device.Calls("matrix"))
	time.Sleep(30 * time.Millisecond)
	if n := len(device.Calls("matrix")); n != settled {
		t.Errorf("matrix reads after clearing rate grew from %d to %d", settled, n)
	}
}

func TestPollWithoutBoards(t *testing.T) {
	device := NewMockDaemon()
	newTestHarness(t, device, Options{PollRate: time.Millisecond})

	time.Sleep(20 * time.Millisecond)
	if n := len(device.Calls("matrix")); n != 0 {
		t.Errorf("matrix reads with no boards = %d, want 0", n)
	}
}

func TestExitClosesStreamsAndEvents(t *testing.T) {
	device := NewMockDaemon(1)
	h := newTestHarness(t, device, Options{})

	if err := h.client.Refresh(t.Context()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	stream := h.factory.Stream(1)

	h.client.Exit()
	<-h.client.Done()

	if !stream.Closed() {
		t.Error("board matrix stream still open after exit")
	}
	ctx, cancel := context.WithTimeout(t.Context(), time.Second)
	defer cancel()
	if _, err := stream.Pop(ctx); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Pop() after exit error = %v, want %v", err, ErrQueueClosed)
	}

	// Event queued before exit is still delivered.
	waitFor(t, "added event", func() bool { return len(h.events.Events()) == 1 })
}

func TestEventHandlerPanicRecovered(t *testing.T) {
	logger := &recordingLogger{}
	delivered := make(chan BoardID, 4)
	calls := 0

	client, err := New(Options{
		Daemon:  NewMockDaemon(1, 2),
		Factory: NewMockFactory(),
		Logger:  logger,
		OnEvent: func(ev Event) {
			calls++
			if calls == 1 {
				panic("boom")
			}
			delivered <- ev.BoardID
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer client.Exit()

	if err := client.Refresh(t.Context()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	select {
	case id := <-delivered:
		if id != 2 {
			t.Errorf("delivered board = %s, want 2", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second event not delivered after handler panic")
	}
	if len(logger.Errors()) != 1 {
		t.Errorf("logged errors = %v, want 1", logger.Errors())
	}
}
