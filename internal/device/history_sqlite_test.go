package device

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nerrad567/boardd/internal/daemon"
)

// setupHistoryTestDB creates an in-memory SQLite database using the
// board_history migration shipped in migrations/.
func setupHistoryTestDB(t *testing.T) *sql.DB {
	t.Helper()

	schema, err := os.ReadFile(filepath.Join("..", "..", "migrations", "20261017_120000_board_history.up.sql"))
	if err != nil {
		t.Fatalf("failed to read migration: %v", err)
	}

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	// A second pooled connection would see a different in-memory database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(string(schema)); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// insertHistoryRow inserts a row with a specific timestamp.
func insertHistoryRow(t *testing.T, db *sql.DB, board daemon.BoardID, event string, createdAt time.Time) {
	t.Helper()

	_, err := db.Exec(
		"INSERT INTO board_history (board_id, event, created_at) VALUES (?, ?, ?)",
		board.String(),
		event,
		createdAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		t.Fatalf("failed to insert history row: %v", err)
	}
}

func TestRecordEvent(t *testing.T) {
	db := setupHistoryTestDB(t)
	repo := NewSQLiteHistoryRepository(db)
	ctx := context.Background()

	if err := repo.RecordEvent(ctx, 7, HistoryEventAdded); err != nil {
		t.Fatalf("RecordEvent() error = %v", err)
	}

	entries, err := repo.GetHistory(ctx, 7, 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries length = %d, want 1", len(entries))
	}

	entry := entries[0]
	if entry.BoardID != 7 {
		t.Errorf("BoardID = %s, want 7", entry.BoardID)
	}
	if entry.Event != HistoryEventAdded {
		t.Errorf("Event = %q, want %q", entry.Event, HistoryEventAdded)
	}
	if entry.Matrix != nil {
		t.Errorf("Matrix = %+v, want nil", entry.Matrix)
	}
	if entry.CreatedAt.IsZero() {
		t.Error("CreatedAt is zero, want non-zero")
	}
}

func TestRecordEventRejectsUnknown(t *testing.T) {
	repo := NewSQLiteHistoryRepository(setupHistoryTestDB(t))

	err := repo.RecordEvent(context.Background(), 1, "exploded")
	if !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("RecordEvent() error = %v, want %v", err, ErrInvalidEvent)
	}
}

func TestRecordMatrix(t *testing.T) {
	db := setupHistoryTestDB(t)
	repo := NewSQLiteHistoryRepository(db)
	ctx := context.Background()

	m := daemon.NewMatrix(2, 3)
	m.Data[0] = true
	m.Data[5] = true

	if err := repo.RecordMatrix(ctx, 3, m); err != nil {
		t.Fatalf("RecordMatrix() error = %v", err)
	}

	entries, err := repo.GetHistory(ctx, 3, 0)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries length = %d, want 1", len(entries))
	}
	if entries[0].Event != HistoryEventMatrix {
		t.Errorf("Event = %q, want %q", entries[0].Event, HistoryEventMatrix)
	}
	if entries[0].Matrix == nil || !entries[0].Matrix.Equal(m) {
		t.Errorf("Matrix = %+v, want %+v", entries[0].Matrix, m)
	}

	var pressed int
	if err := db.QueryRow("SELECT pressed FROM board_history WHERE board_id = '3'").Scan(&pressed); err != nil {
		t.Fatalf("query pressed: %v", err)
	}
	if pressed != 2 {
		t.Errorf("pressed = %d, want 2", pressed)
	}
}

func TestGetHistoryOrderAndLimit(t *testing.T) {
	db := setupHistoryTestDB(t)
	repo := NewSQLiteHistoryRepository(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	insertHistoryRow(t, db, 1, HistoryEventAdded, now.Add(-2*time.Hour))
	insertHistoryRow(t, db, 1, HistoryEventRemoved, now.Add(-1*time.Hour))
	insertHistoryRow(t, db, 1, HistoryEventAdded, now)
	insertHistoryRow(t, db, 2, HistoryEventAdded, now)

	entries, err := repo.GetHistory(ctx, 1, 2)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries length = %d, want 2", len(entries))
	}
	if !entries[0].CreatedAt.Equal(now) {
		t.Errorf("entry[0] CreatedAt = %s, want %s", entries[0].CreatedAt, now)
	}
	if entries[1].Event != HistoryEventRemoved {
		t.Errorf("entry[1] Event = %q, want %q", entries[1].Event, HistoryEventRemoved)
	}
}

func TestPruneHistory(t *testing.T) {
	db := setupHistoryTestDB(t)
	repo := NewSQLiteHistoryRepository(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	insertHistoryRow(t, db, 1, HistoryEventAdded, now.Add(-40*24*time.Hour))
	insertHistoryRow(t, db, 1, HistoryEventRemoved, now.Add(-12*time.Hour))

	deleted, err := repo.PruneHistory(ctx, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("PruneHistory() error = %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}

	entries, err := repo.GetHistory(ctx, 1, 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries length = %d, want 1", len(entries))
	}

	if _, err := repo.PruneHistory(ctx, 0); err == nil {
		t.Error("PruneHistory(0) error = nil, want error")
	}
}
