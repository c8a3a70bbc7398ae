package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // driver: sqlite
)

const fallbackSchema = `
CREATE TABLE IF NOT EXISTS fallback_results (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL DEFAULT '',
	payload    TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fallback_results_user ON fallback_results(user_id, created_at);
`

// OpenFallbackStore opens (and creates if needed) the local SQLite file used
// when the document store cannot accept a result. Pass ":memory:" in tests.
func OpenFallbackStore(ctx context.Context, path string, log zerolog.Logger) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create fallback dir: %w", err)
		}
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single writer keeps SQLite free of SQLITE_BUSY under concurrent submits.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, fallbackSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure fallback schema: %w", err)
	}

	log.Info().Str("path", path).Msg("Fallback store ready")
	return db, nil
}
