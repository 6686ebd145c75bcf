// Package database provides the SQLite store behind boardd's board history.
//
// It opens the database with WAL mode and a busy timeout, limits the pool to
// the single connection SQLite can write through, and applies migrations
// embedded by the migrations package.
//
// Usage:
//
//	db, err := database.Open(ctx, database.ConfigFrom(cfg.Database))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns must be nullable or have a default,
// and each .up.sql has a matching .down.sql.
package database
