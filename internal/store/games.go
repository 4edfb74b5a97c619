package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sudokodus/sudokodus/internal/schema"
)

// ErrGameNotFound is returned when a game state id has no local row.
var ErrGameNotFound = errors.New("store: game state not found")

const gameStateColumns = `
	id, user_id, puzzle_string, current_state, notes, is_completed,
	hints_used, moves_history, created_at, updated_at, synced`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGameState(row rowScanner) (*schema.GameState, error) {
	var (
		g         schema.GameState
		userID    sql.NullString
		notes     sql.NullString
		moves     sql.NullString
		createdAt string
		updatedAt string
	)
	err := row.Scan(
		&g.ID, &userID, &g.PuzzleString, &g.CurrentState, &notes, &g.IsCompleted,
		&g.HintsUsed, &moves, &createdAt, &updatedAt, &g.Synced)
	if err != nil {
		return nil, err
	}

	g.UserID = userID.String
	g.Notes = notes.String
	g.MovesHistory = moves.String
	g.CreatedAt = parseDBTime(createdAt)
	g.UpdatedAt = parseDBTime(updatedAt)
	return &g, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// InsertGameState creates a new local game row.
//
// The referenced puzzle row must already exist; foreign keys are enforced.
func (s *Store) InsertGameState(ctx context.Context, g *schema.GameState) error {
	if err := g.Validate(); err != nil {
		return fmt.Errorf("invalid game state: %w", err)
	}

	query := `
	INSERT INTO game_states (` + gameStateColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.conn.ExecContext(ctx, query,
		g.ID,
		nullable(g.UserID),
		g.PuzzleString,
		g.CurrentState,
		nullable(g.Notes),
		g.IsCompleted,
		g.HintsUsed,
		nullable(g.MovesHistory),
		g.CreatedAt.UTC().Format(time.RFC3339),
		g.UpdatedAt.UTC().Format(time.RFC3339),
		g.Synced,
	)
	if err != nil {
		return fmt.Errorf("failed to insert game state: %w", err)
	}

	return nil
}

// GetGameState returns a game row by id, or ErrGameNotFound.
func (s *Store) GetGameState(ctx context.Context, id string) (*schema.GameState, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+gameStateColumns+` FROM game_states WHERE id = ?`, id)

	g, err := scanGameState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGameNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get game state: %w", err)
	}
	return g, nil
}

// UpdateGameState overwrites the mutable fields of a local game row.
//
// Every gameplay edit lands here: updated_at is bumped and the synced flag
// cleared so the next push cycle picks the row up.
func (s *Store) UpdateGameState(ctx context.Context, g *schema.GameState) error {
	g.UpdatedAt = time.Now().UTC()
	g.Synced = false

	if err := g.Validate(); err != nil {
		return fmt.Errorf("invalid game state: %w", err)
	}

	query := `
	UPDATE game_states SET
		current_state = ?, notes = ?, is_completed = ?, hints_used = ?,
		moves_history = ?, updated_at = ?, synced = 0
	WHERE id = ?
	`

	res, err := s.conn.ExecContext(ctx, query,
		g.CurrentState,
		nullable(g.Notes),
		g.IsCompleted,
		g.HintsUsed,
		nullable(g.MovesHistory),
		g.UpdatedAt.Format(time.RFC3339),
		g.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update game state: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrGameNotFound
	}

	return nil
}

// UnsyncedGameStates returns all local rows with pending edits for a user.
func (s *Store) UnsyncedGameStates(ctx context.Context, userID string) ([]*schema.GameState, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+gameStateColumns+` FROM game_states WHERE synced = 0 AND user_id = ?`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query unsynced game states: %w", err)
	}
	defer rows.Close()

	var out []*schema.GameState
	for rows.Next() {
		g, err := scanGameState(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan game state: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate game states: %w", err)
	}

	return out, nil
}

// MarkGameStateSynced flips a row's synced flag after a confirmed remote
// round-trip.
func (s *Store) MarkGameStateSynced(ctx context.Context, id string) error {
	_, err := s.conn.ExecContext(ctx,
		`UPDATE game_states SET synced = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark game state synced: %w", err)
	}
	return nil
}

// PuzzleResolver fetches a puzzle that the local store is missing, typically
// from the remote backend. It may return (nil, nil) when the puzzle cannot
// be found anywhere.
type PuzzleResolver func(ctx context.Context, puzzleString string) (*schema.Puzzle, error)

// ApplyRemoteGameStates merges a batch of remotely-newer rows into the local
// store inside a single transaction.
//
// Per row: if a local row exists and its updated_at is at least as new as
// the remote's, the remote row is skipped (last-write-wins, local wins
// ties). Otherwise the row is upserted with synced=1. A referenced puzzle
// missing locally is resolved and inserted first so the foreign key holds.
//
// The lastSyncKey bookkeeping value is set to syncTime inside the same
// transaction, so it only advances when the whole batch commits. Returns
// the number of rows applied.
func (s *Store) ApplyRemoteGameStates(ctx context.Context, states []*schema.GameState,
	resolve PuzzleResolver, lastSyncKey string, syncTime time.Time) (int, error) {

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	applied := 0
	for _, remote := range states {
		if err := remote.Validate(); err != nil {
			return 0, fmt.Errorf("invalid remote game state %q: %w", remote.ID, err)
		}

		var localUpdated string
		err := tx.QueryRowContext(ctx,
			`SELECT updated_at FROM game_states WHERE id = ?`, remote.ID).Scan(&localUpdated)
		switch {
		case err == nil:
			if !parseDBTime(localUpdated).Before(remote.UpdatedAt) {
				continue // local row is at least as new
			}
		case errors.Is(err, sql.ErrNoRows):
			// New row, always applied.
		default:
			return 0, fmt.Errorf("failed to read local game state %q: %w", remote.ID, err)
		}

		// Satisfy the foreign key before the referencing row.
		var found string
		err = tx.QueryRowContext(ctx,
			`SELECT puzzle_string FROM puzzles WHERE puzzle_string = ?`, remote.PuzzleString).Scan(&found)
		if errors.Is(err, sql.ErrNoRows) {
			puzzle, rerr := resolve(ctx, remote.PuzzleString)
			if rerr != nil {
				return 0, fmt.Errorf("failed to resolve puzzle %q: %w", remote.PuzzleString, rerr)
			}
			if puzzle == nil {
				return 0, fmt.Errorf("puzzle %q referenced by game %q not found", remote.PuzzleString, remote.ID)
			}
			if err := insertPuzzleTx(ctx, tx, puzzle); err != nil {
				return 0, err
			}
		} else if err != nil {
			return 0, fmt.Errorf("failed to check puzzle %q: %w", remote.PuzzleString, err)
		}

		query := `
		INSERT OR REPLACE INTO game_states (` + gameStateColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
		`
		_, err = tx.ExecContext(ctx, query,
			remote.ID,
			nullable(remote.UserID),
			remote.PuzzleString,
			remote.CurrentState,
			nullable(remote.Notes),
			remote.IsCompleted,
			remote.HintsUsed,
			nullable(remote.MovesHistory),
			remote.CreatedAt.UTC().Format(time.RFC3339),
			remote.UpdatedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to upsert game state %q: %w", remote.ID, err)
		}
		applied++
	}

	if lastSyncKey != "" {
		_, err = tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO app_settings (key, value) VALUES (?, ?)`,
			lastSyncKey, syncTime.UTC().Format(time.RFC3339))
		if err != nil {
			return 0, fmt.Errorf("failed to record sync time: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit pull batch: %w", err)
	}

	return applied, nil
}

func insertPuzzleTx(ctx context.Context, tx *sql.Tx, p *schema.Puzzle) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid puzzle %q: %w", p.PuzzleString, err)
	}

	source := p.Source
	if source == "" {
		source = schema.DefaultSource
	}
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := tx.ExecContext(ctx, `
	INSERT OR IGNORE INTO puzzles (
		puzzle_string, rating, difficulty, is_symmetric, clue_count, source, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		p.PuzzleString,
		p.Rating,
		string(p.Difficulty),
		p.IsSymmetric,
		p.ClueCount,
		source,
		createdAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert puzzle %q: %w", p.PuzzleString, err)
	}
	return nil
}
