// Package store provides the embedded SQLite database that owns all local
// game data: the unused-puzzle cache, game states, daily challenges, and
// sync bookkeeping.
//
// The database runs fully embedded (ncruces/go-sqlite3, no cgo) with WAL
// mode so the game can keep reading while a sync cycle writes. Every
// multi-row write goes through an explicit transaction; a mid-batch failure
// rolls the whole batch back and no partial write is ever visible.
//
// Schema:
//   - puzzles          immutable puzzle rows referenced by games/challenges
//   - puzzle_cache     downloaded-but-unplayed pool, local-only
//   - game_states      in-progress and completed games, synced flag per row
//   - daily_challenges one puzzle per (date, difficulty)
//   - app_settings     key/value sync bookkeeping
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// schemaVersion is bumped whenever migrations are added below.
const schemaVersion = 1

// Store wraps the SQLite connection with game-specific operations.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates a database connection at the specified path.
//
// The database is opened in embedded mode with WAL for concurrent reads.
// If the database doesn't exist it is created; call InitSchema before any
// other operation.
//
// The caller MUST call Close() when done.
func Open(path string) (*Store, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{
		conn: conn,
		path: path,
	}

	// WAL keeps gameplay reads unblocked during sync writes.
	if _, err := s.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := s.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := s.conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// RawDB returns the underlying sql.DB connection.
func (s *Store) RawDB() *sql.DB {
	return s.conn
}

// Close closes the database connection after checkpointing the WAL.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// InitSchema creates the database schema if it doesn't exist.
//
// Idempotent - safe to call on every app start. Also runs any pending
// migrations recorded in db_version.
func (s *Store) InitSchema() error {
	return s.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the database schema with context support.
func (s *Store) InitSchemaContext(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS puzzles (
		puzzle_string TEXT PRIMARY KEY,
		rating REAL NOT NULL DEFAULT 0,
		difficulty TEXT NOT NULL CHECK(difficulty IN ('easy', 'medium', 'hard', 'diabolical')),
		is_symmetric INTEGER NOT NULL DEFAULT 0,
		clue_count INTEGER NOT NULL,
		source TEXT NOT NULL DEFAULT 'sudokodus',
		created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_puzzles_difficulty ON puzzles(difficulty);

	CREATE TABLE IF NOT EXISTS puzzle_cache (
		puzzle_string TEXT PRIMARY KEY,
		rating REAL NOT NULL DEFAULT 0,
		difficulty TEXT NOT NULL CHECK(difficulty IN ('easy', 'medium', 'hard', 'diabolical')),
		is_symmetric INTEGER NOT NULL DEFAULT 0,
		clue_count INTEGER NOT NULL,
		source TEXT NOT NULL DEFAULT 'sudokodus',
		fetched_at TEXT NOT NULL,
		is_used INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_puzzle_cache_difficulty_used
	    ON puzzle_cache(difficulty, is_used);

	CREATE TABLE IF NOT EXISTS game_states (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		puzzle_string TEXT NOT NULL,
		current_state TEXT NOT NULL,
		notes TEXT,
		is_completed INTEGER NOT NULL DEFAULT 0,
		hints_used INTEGER NOT NULL DEFAULT 0,
		moves_history TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		synced INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (puzzle_string) REFERENCES puzzles(puzzle_string)
	);

	CREATE INDEX IF NOT EXISTS idx_game_states_user_id ON game_states(user_id);
	CREATE INDEX IF NOT EXISTS idx_game_states_completed ON game_states(is_completed);
	CREATE INDEX IF NOT EXISTS idx_game_states_synced ON game_states(synced);

	CREATE TABLE IF NOT EXISTS daily_challenges (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		difficulty TEXT NOT NULL CHECK(difficulty IN ('easy', 'medium', 'hard', 'diabolical')),
		puzzle_string TEXT NOT NULL,
		FOREIGN KEY (puzzle_string) REFERENCES puzzles(puzzle_string),
		UNIQUE(date, difficulty)
	);

	CREATE INDEX IF NOT EXISTS idx_daily_challenges_date ON daily_challenges(date);

	CREATE TABLE IF NOT EXISTS app_settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS db_version (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		version INTEGER NOT NULL
	);

	INSERT OR IGNORE INTO db_version (id, version) VALUES (1, 1);
	`

	if _, err := s.conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s.migrate(ctx)
}

// migrate applies pending schema migrations sequentially.
func (s *Store) migrate(ctx context.Context) error {
	var current int
	err := s.conn.QueryRowContext(ctx, `SELECT version FROM db_version WHERE id = 1`).Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for v := current + 1; v <= schemaVersion; v++ {
		tx, err := s.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", v, err)
		}

		// Migration statements for version v go here as the schema evolves.

		if _, err := tx.ExecContext(ctx, `UPDATE db_version SET version = ? WHERE id = 1`, v); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", v, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", v, err)
		}
	}

	return nil
}
