package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/boardd/internal/audit"
)

// maxMatrixRateMS matches the MQTT bridge's accepted range.
const maxMatrixRateMS = int64(time.Hour / time.Millisecond)

// auditTimeout bounds the audit write after a command completes.
const auditTimeout = 2 * time.Second

// command describes a request for the audit trail.
type command struct {
	action  string
	board   string
	details map[string]any
}

// runCommand executes fn with the command timeout, records the outcome and
// writes the result. A superseded command reports completed, the same as one
// that ran.
func (s *Server) runCommand(w http.ResponseWriter, r *http.Request, cmd command, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(r.Context(), s.commandTimeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	s.recordAudit(r, cmd, err)

	if err != nil {
		s.logger.Warn("command failed",
			"command", cmd.action,
			"board", cmd.board,
			"error", err,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		writeCommandError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "completed",
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

func (s *Server) recordAudit(r *http.Request, cmd command, cmdErr error) {
	if s.audit == nil {
		return
	}

	entry := &audit.Entry{
		Action:  cmd.action,
		BoardID: cmd.board,
		Source:  audit.SourceAPI,
		Result:  audit.ResultCompleted,
		Details: cmd.details,
	}
	if claims := claimsFromContext(r.Context()); claims != nil {
		entry.Subject = claims.Subject
	}
	if cmdErr != nil {
		entry.Result = audit.ResultFailed
		entry.Error = cmdErr.Error()
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), auditTimeout)
	defer cancel()
	if err := s.audit.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to record audit entry", "command", cmd.action, "error", err)
	}
}

// handleHealth returns the server health status. No auth required.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

// handleStatus returns runtime counters.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version":           s.version,
		"boards":            s.boards.count(),
		"websocket_clients": s.hub.ClientCount(),
		"history_enabled":   s.history != nil,
		"audit_enabled":     s.audit != nil,
	})
}

// handleRefresh asks the daemon to re-enumerate hardware.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.runCommand(w, r, command{action: "refresh"}, func(ctx context.Context) error {
		return s.controller.Refresh(ctx)
	})
}

type matrixRateRequest struct {
	RateMS *int64 `json:"rate_ms"`
}

// handleSetMatrixRate sets the key matrix poll rate. Zero disables polling.
func (s *Server) handleSetMatrixRate(w http.ResponseWriter, r *http.Request) {
	var req matrixRateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RateMS == nil || *req.RateMS < 0 || *req.RateMS > maxMatrixRateMS {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "rate_ms must be 0-3600000")
		return
	}

	rate := time.Duration(*req.RateMS) * time.Millisecond
	cmd := command{action: "set_matrix_rate", details: map[string]any{"rate_ms": *req.RateMS}}
	s.runCommand(w, r, cmd, func(ctx context.Context) error {
		return s.controller.SetMatrixGetRate(ctx, rate)
	})
}

// handleListAudit returns recorded commands, newest first.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "audit log is disabled")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:  q.Get("action"),
		BoardID: q.Get("board_id"),
		Source:  q.Get("source"),
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeBadRequest(w, name+" must be a non-negative integer")
			return
		}
		*dst = n
	}

	res, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit log", "error", err)
		writeInternalError(w, "failed to list audit log")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
