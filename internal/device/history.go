package device

import (
	"context"
	"time"

	"github.com/nerrad567/boardd/internal/daemon"
)

// History event values.
const (
	HistoryEventAdded   = "added"
	HistoryEventRemoved = "removed"
	HistoryEventMatrix  = "matrix"
)

// HistoryEntry is one recorded board event.
//
// Matrix entries carry the full key matrix at the time the change was
// observed. This keeps a local audit trail even when InfluxDB is unavailable.
type HistoryEntry struct {
	// ID is the auto-incremented primary key for the history row.
	ID int64 `json:"id"`

	// BoardID is the board the event belongs to.
	BoardID daemon.BoardID `json:"board_id"`

	// Event is one of added, removed or matrix.
	Event string `json:"event"`

	// Matrix is set for matrix events only.
	Matrix *daemon.Matrix `json:"matrix,omitempty"`

	// CreatedAt is the time the event was recorded (UTC).
	CreatedAt time.Time `json:"created_at"`
}

// HistoryRepository stores and retrieves board history.
//
// Implementations must be thread-safe and use UTC timestamps.
type HistoryRepository interface {
	// RecordEvent records a board added or removed event.
	RecordEvent(ctx context.Context, board daemon.BoardID, event string) error

	// RecordMatrix records a key matrix change.
	RecordMatrix(ctx context.Context, board daemon.BoardID, matrix daemon.Matrix) error

	// GetHistory returns recent entries for the board, newest first.
	GetHistory(ctx context.Context, board daemon.BoardID, limit int) ([]HistoryEntry, error)
}
