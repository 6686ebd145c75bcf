package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/boardd/internal/daemon"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// boardInfo is implemented by *board.Board.
type boardInfo interface {
	Model() string
	Version() string
}

// BoardView is the API representation of an attached board.
type BoardView struct {
	ID         daemon.BoardID `json:"id"`
	Model      string         `json:"model,omitempty"`
	Version    string         `json:"version,omitempty"`
	Matrix     *daemon.Matrix `json:"matrix,omitempty"`
	Pressed    int            `json:"pressed"`
	AttachedAt time.Time      `json:"attached_at"`
	UpdatedAt  *time.Time     `json:"updated_at,omitempty"`
}

// boardSet is the server's view of attached boards, fed by HandleEvent and
// HandleMatrix.
type boardSet struct {
	mu     sync.RWMutex
	boards map[daemon.BoardID]*BoardView

	// removed boards ignore matrices until they are added again.
	removed map[daemon.BoardID]struct{}
}

func newBoardSet() *boardSet {
	return &boardSet{
		boards:  make(map[daemon.BoardID]*BoardView),
		removed: make(map[daemon.BoardID]struct{}),
	}
}

// add records a newly attached board and returns a copy of its view.
func (b *boardSet) add(id daemon.BoardID, handle daemon.Board) BoardView {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.removed, id)
	v, ok := b.boards[id]
	if !ok {
		v = &BoardView{ID: id}
		b.boards[id] = v
	}
	v.AttachedAt = time.Now().UTC()
	if info, ok := handle.(boardInfo); ok {
		v.Model = info.Model()
		v.Version = info.Version()
	}
	return v.copy()
}

func (b *boardSet) remove(id daemon.BoardID) {
	b.mu.Lock()
	delete(b.boards, id)
	b.removed[id] = struct{}{}
	b.mu.Unlock()
}

// setMatrix stores m and reports whether it was kept. A matrix may arrive
// before the added event is dispatched, so unknown boards get a view too.
// Matrices for removed boards are dropped.
func (b *boardSet) setMatrix(id daemon.BoardID, m daemon.Matrix) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, gone := b.removed[id]; gone {
		return false
	}
	v, ok := b.boards[id]
	if !ok {
		v = &BoardView{ID: id, AttachedAt: time.Now().UTC()}
		b.boards[id] = v
	}
	cpy := m.Clone()
	now := time.Now().UTC()
	v.Matrix = &cpy
	v.Pressed = m.Pressed()
	v.UpdatedAt = &now
	return true
}

func (b *boardSet) get(id daemon.BoardID) (BoardView, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.boards[id]
	if !ok {
		return BoardView{}, false
	}
	return v.copy(), true
}

// list returns all boards ordered by id.
func (b *boardSet) list() []BoardView {
	b.mu.RLock()
	out := make([]BoardView, 0, len(b.boards))
	for _, v := range b.boards {
		out = append(out, v.copy())
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (b *boardSet) count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.boards)
}

func (v *BoardView) copy() BoardView {
	cpy := *v
	if v.Matrix != nil {
		m := v.Matrix.Clone()
		cpy.Matrix = &m
	}
	return cpy
}

// handleListBoards returns every attached board.
func (s *Server) handleListBoards(w http.ResponseWriter, _ *http.Request) {
	boards := s.boards.list()
	writeJSON(w, http.StatusOK, map[string]any{
		"boards": boards,
		"count":  len(boards),
	})
}

func (s *Server) handleGetBoard(w http.ResponseWriter, r *http.Request) {
	id, ok := boardIDParam(w, r)
	if !ok {
		return
	}
	view, found := s.boards.get(id)
	if !found {
		writeNotFound(w, "board not attached")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleBoardHistory returns recorded events, newest first. History is kept
// for detached boards too, so the board need not be attached.
func (s *Server) handleBoardHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := boardIDParam(w, r)
	if !ok {
		return
	}
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "board history is disabled")
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryLimit {
			writeBadRequest(w, "limit must be between 1 and "+strconv.Itoa(maxHistoryLimit))
			return
		}
		limit = n
	}

	entries, err := s.history.GetHistory(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("failed to read board history", "board", id.String(), "error", err)
		writeInternalError(w, "failed to read history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"board_id": id,
		"entries":  entries,
		"count":    len(entries),
	})
}

type setKeyRequest struct {
	Layer   *uint8  `json:"layer"`
	Output  *uint8  `json:"output"`
	Input   *uint8  `json:"input"`
	Keycode *uint16 `json:"keycode"`
}

func (s *Server) handleSetKey(w http.ResponseWriter, r *http.Request) {
	id, ok := boardIDParam(w, r)
	if !ok {
		return
	}
	var req setKeyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Layer == nil || req.Output == nil || req.Input == nil || req.Keycode == nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "layer, output, input and keycode are required")
		return
	}

	cmd := command{action: "set_key", board: id.String(), details: map[string]any{
		"layer": *req.Layer, "output": *req.Output, "input": *req.Input, "keycode": *req.Keycode,
	}}
	s.runCommand(w, r, cmd, func(ctx context.Context) error {
		return s.controller.KeymapSet(ctx, id, *req.Layer, *req.Output, *req.Input, *req.Keycode)
	})
}

type setColorRequest struct {
	R *uint8 `json:"r"`
	G *uint8 `json:"g"`
	B *uint8 `json:"b"`
}

func (s *Server) handleSetColor(w http.ResponseWriter, r *http.Request) {
	id, ok := boardIDParam(w, r)
	if !ok {
		return
	}
	index, ok := uint8URLParam(w, r, "index")
	if !ok {
		return
	}
	var req setColorRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.R == nil || req.G == nil || req.B == nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "r, g and b are required")
		return
	}

	color := daemon.RGB{R: *req.R, G: *req.G, B: *req.B}
	cmd := command{action: "set_color", board: id.String(), details: map[string]any{
		"index": index, "r": color.R, "g": color.G, "b": color.B,
	}}
	s.runCommand(w, r, cmd, func(ctx context.Context) error {
		return s.controller.SetColor(ctx, id, index, color)
	})
}

type setBrightnessRequest struct {
	Brightness *int32 `json:"brightness"`
}

// maxBrightness matches the MQTT bridge's accepted range.
const maxBrightness = 255

func (s *Server) handleSetBrightness(w http.ResponseWriter, r *http.Request) {
	id, ok := boardIDParam(w, r)
	if !ok {
		return
	}
	index, ok := uint8URLParam(w, r, "index")
	if !ok {
		return
	}
	var req setBrightnessRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Brightness == nil || *req.Brightness < 0 || *req.Brightness > maxBrightness {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "brightness must be 0-255")
		return
	}

	cmd := command{action: "set_brightness", board: id.String(), details: map[string]any{
		"index": index, "brightness": *req.Brightness,
	}}
	s.runCommand(w, r, cmd, func(ctx context.Context) error {
		return s.controller.SetBrightness(ctx, id, index, *req.Brightness)
	})
}

type setModeRequest struct {
	Mode  *uint8 `json:"mode"`
	Speed *uint8 `json:"speed"`
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	id, ok := boardIDParam(w, r)
	if !ok {
		return
	}
	layer, ok := uint8URLParam(w, r, "layer")
	if !ok {
		return
	}
	var req setModeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Mode == nil || req.Speed == nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "mode and speed are required")
		return
	}

	cmd := command{action: "set_mode", board: id.String(), details: map[string]any{
		"layer": layer, "mode": *req.Mode, "speed": *req.Speed,
	}}
	s.runCommand(w, r, cmd, func(ctx context.Context) error {
		return s.controller.SetMode(ctx, id, layer, *req.Mode, *req.Speed)
	})
}

func (s *Server) handleLedSave(w http.ResponseWriter, r *http.Request) {
	id, ok := boardIDParam(w, r)
	if !ok {
		return
	}
	s.runCommand(w, r, command{action: "led_save", board: id.String()}, func(ctx context.Context) error {
		return s.controller.LedSave(ctx, id)
	})
}

func boardIDParam(w http.ResponseWriter, r *http.Request) (daemon.BoardID, bool) {
	id, err := daemon.ParseBoardID(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, "invalid board id")
		return 0, false
	}
	return id, true
}

func uint8URLParam(w http.ResponseWriter, r *http.Request, name string) (uint8, bool) {
	v, err := strconv.ParseUint(chi.URLParam(r, name), 10, 8)
	if err != nil {
		writeBadRequest(w, "invalid "+name)
		return 0, false
	}
	return uint8(v), true
}

// decodeJSON decodes the request body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}
