package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/boardd/internal/auth"
	"github.com/nerrad567/boardd/internal/board"
	"github.com/nerrad567/boardd/internal/daemon"
	"github.com/nerrad567/boardd/internal/device"
)

// startHub runs the server's hub for the duration of the test.
func startHub(t *testing.T, s *Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go s.hub.Run(ctx)
	t.Cleanup(cancel)
}

func issueTicket(t *testing.T, ts *httptest.Server, role auth.Role) string {
	t.Helper()
	var body struct {
		Ticket    string `json:"ticket"`
		ExpiresIn int    `json:"expires_in"`
	}
	resp := do(t, ts, http.MethodPost, "/api/v1/auth/ws-ticket", tokenFor(t, role), "", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ws-ticket status = %d", resp.StatusCode)
	}
	if body.Ticket == "" || body.ExpiresIn != int(ticketTTL.Seconds()) {
		t.Fatalf("ticket response = %+v", body)
	}
	return body.Ticket
}

func dialWS(t *testing.T, ts *httptest.Server, ticket string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws?ticket=" + ticket
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if conn != nil {
		t.Cleanup(func() { conn.Close() })
	}
	return conn, resp, err
}

func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	//nolint:errcheck // Test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return msg
}

func TestWebSocket_TicketRequired(t *testing.T) {
	s, ts := newTestServer(t, testDeps(&fakeController{}))
	startHub(t, s)

	if _, resp, err := dialWS(t, ts, ""); err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("dial without ticket: err = %v, resp = %v", err, resp)
	}

	ticket := issueTicket(t, ts, auth.RoleViewer)
	if _, _, err := dialWS(t, ts, ticket); err != nil {
		t.Fatalf("dial error = %v", err)
	}

	// Tickets are single use.
	if _, resp, err := dialWS(t, ts, ticket); err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("reused ticket: err = %v, resp = %v", err, resp)
	}
}

func TestWebSocket_SubscribeAndBroadcast(t *testing.T) {
	s, ts := newTestServer(t, testDeps(&fakeController{}))
	startHub(t, s)

	conn, _, err := dialWS(t, ts, issueTicket(t, ts, auth.RoleViewer))
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}

	// Unknown channels are rejected.
	if err := conn.WriteJSON(WSMessage{Type: WSTypeSubscribe, ID: "1", Payload: WSSubscribePayload{Channels: []string{"board.secret"}}}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if msg := readMessage(t, conn); msg.Type != WSTypeError || msg.ID != "1" {
		t.Errorf("unknown channel reply = %+v", msg)
	}

	if err := conn.WriteJSON(WSMessage{Type: WSTypeSubscribe, ID: "2", Payload: WSSubscribePayload{Channels: []string{ChannelBoardMatrix, ChannelBoardRemoved}}}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if msg := readMessage(t, conn); msg.Type != WSTypeResponse || msg.ID != "2" {
		t.Fatalf("subscribe reply = %+v", msg)
	}

	// Not subscribed to board.added, so the first event seen is the matrix.
	s.HandleEvent(daemon.Event{Kind: daemon.EventBoardAdded, Board: fakeBoard{id: 4}, BoardID: 4})
	m := daemon.NewMatrix(1, 3)
	m.Data[2] = true
	s.HandleMatrix(4, m)

	msg := readMessage(t, conn)
	if msg.Type != WSTypeEvent || msg.EventType != ChannelBoardMatrix {
		t.Fatalf("event = %+v", msg)
	}
	raw, err := json.Marshal(msg.Payload)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var payload matrixPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if payload.BoardID != 4 || payload.Pressed != 1 || !payload.Matrix.Get(0, 2) {
		t.Errorf("payload = %+v", payload)
	}

	s.HandleEvent(daemon.Event{Kind: daemon.EventBoardRemoved, BoardID: 4})
	if msg := readMessage(t, conn); msg.EventType != ChannelBoardRemoved {
		t.Errorf("event = %+v, want %s", msg, ChannelBoardRemoved)
	}

	if err := conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "3"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if msg := readMessage(t, conn); msg.Type != WSTypePong || msg.ID != "3" {
		t.Errorf("ping reply = %+v", msg)
	}
}

// TestServer_WithDummyDaemon drives the API against a running worker and a
// dummy device.
func TestServer_WithDummyDaemon(t *testing.T) {
	dummy := device.NewDummy(device.DummyConfig{Boards: []daemon.BoardID{1}})

	var s *Server
	added := make(chan daemon.BoardID, 4)
	client, err := daemon.New(daemon.Options{
		Daemon: dummy,
		Factory: board.NewFactory(board.Options{
			OnMatrix: func(id daemon.BoardID, m daemon.Matrix) { s.HandleMatrix(id, m) },
		}),
		OnEvent: func(ev daemon.Event) {
			s.HandleEvent(ev)
			if ev.Kind == daemon.EventBoardAdded {
				added <- ev.BoardID
			}
		},
		PollRate: 2 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("daemon.New() error = %v", err)
	}
	defer func() {
		client.Exit()
		<-client.Done()
	}()

	s, ts := newTestServer(t, testDeps(client))
	operator := tokenFor(t, auth.RoleOperator)

	if err := client.Refresh(t.Context()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	select {
	case <-added:
	case <-time.After(2 * time.Second):
		t.Fatal("no added event")
	}

	var view BoardView
	if resp := do(t, ts, http.MethodGet, "/api/v1/boards/1", operator, "", &view); resp.StatusCode != http.StatusOK {
		t.Fatalf("get board status = %d", resp.StatusCode)
	}
	if view.Model == "" {
		t.Errorf("view = %+v, want model from device", view)
	}

	if resp := do(t, ts, http.MethodPut, "/api/v1/boards/1/leds/0/color", operator, `{"r":10,"g":20,"b":30}`, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("set color status = %d", resp.StatusCode)
	}
	snap, err := dummy.Snapshot(1)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if got := snap.Colors[0]; got != (daemon.RGB{R: 10, G: 20, B: 30}) {
		t.Errorf("color = %+v", got)
	}

	if resp := do(t, ts, http.MethodPut, "/api/v1/boards/9/leds/0/color", operator, `{"r":1,"g":1,"b":1}`, nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown board status = %d, want 404", resp.StatusCode)
	}
	if resp := do(t, ts, http.MethodPut, "/api/v1/boards/1/leds/200/color", operator, `{"r":1,"g":1,"b":1}`, nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("out of range LED status = %d, want 400", resp.StatusCode)
	}
}
