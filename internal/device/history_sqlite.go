package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/boardd/internal/daemon"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// SQLiteHistoryRepository implements HistoryRepository using SQLite.
//
// It stores matrices as JSON in the board_history table.
type SQLiteHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteHistoryRepository creates a new SQLite board history repository.
func NewSQLiteHistoryRepository(db *sql.DB) *SQLiteHistoryRepository {
	return &SQLiteHistoryRepository{db: db}
}

// RecordEvent inserts an added or removed entry for a board.
func (r *SQLiteHistoryRepository) RecordEvent(ctx context.Context, board daemon.BoardID, event string) error {
	switch event {
	case HistoryEventAdded, HistoryEventRemoved:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidEvent, event)
	}
	return r.insert(ctx, board, event, sql.NullString{}, sql.NullInt64{})
}

// RecordMatrix inserts a matrix entry for a board.
func (r *SQLiteHistoryRepository) RecordMatrix(ctx context.Context, board daemon.BoardID, matrix daemon.Matrix) error {
	matrixJSON, err := json.Marshal(matrix)
	if err != nil {
		return fmt.Errorf("marshalling matrix: %w", err)
	}
	return r.insert(ctx, board, HistoryEventMatrix,
		sql.NullString{String: string(matrixJSON), Valid: true},
		sql.NullInt64{Int64: int64(matrix.Pressed()), Valid: true},
	)
}

func (r *SQLiteHistoryRepository) insert(ctx context.Context, board daemon.BoardID, event string, matrix sql.NullString, pressed sql.NullInt64) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO board_history (board_id, event, matrix, pressed) VALUES (?, ?, ?, ?)",
		board.String(),
		event,
		matrix,
		pressed,
	)
	if err != nil {
		return fmt.Errorf("inserting board history: %w", err)
	}
	return nil
}

// GetHistory returns recent entries for a board, ordered newest first.
//
// limit defaults to 50 and is clamped to 200.
func (r *SQLiteHistoryRepository) GetHistory(ctx context.Context, board daemon.BoardID, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, board_id, event, matrix, created_at
		 FROM board_history
		 WHERE board_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		board.String(),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying board history: %w", err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0, limit)
	for rows.Next() {
		var entry HistoryEntry
		var boardID string
		var matrixJSON sql.NullString
		var createdAt string

		if err := rows.Scan(&entry.ID, &boardID, &entry.Event, &matrixJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning board history: %w", err)
		}

		entry.BoardID, err = daemon.ParseBoardID(boardID)
		if err != nil {
			return nil, err
		}

		if matrixJSON.Valid {
			var m daemon.Matrix
			if err := json.Unmarshal([]byte(matrixJSON.String), &m); err != nil {
				return nil, fmt.Errorf("unmarshalling matrix: %w", err)
			}
			entry.Matrix = &m
		}

		entry.CreatedAt, err = parseHistoryTimestamp(createdAt)
		if err != nil {
			return nil, err
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating board history: %w", err)
	}

	return entries, nil
}

// PruneHistory deletes entries older than olderThan and returns how many
// rows were removed.
func (r *SQLiteHistoryRepository) PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM board_history WHERE created_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting board history: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// parseHistoryTimestamp parses a timestamp stored in SQLite.
func parseHistoryTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("created_at is empty")
	}

	timestamp, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return timestamp, nil
}

var _ HistoryRepository = (*SQLiteHistoryRepository)(nil)
