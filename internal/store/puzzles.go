package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sudokodus/sudokodus/internal/schema"
)

// ErrNoUnusedPuzzles is returned when the cache has no unused puzzle of the
// requested difficulty.
var ErrNoUnusedPuzzles = errors.New("store: no unused puzzles in cache")

// sqliteTimeLayout is what SQLite's CURRENT_TIMESTAMP default produces.
const sqliteTimeLayout = "2006-01-02 15:04:05"

func parseDBTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse(sqliteTimeLayout, s); err == nil {
		return t
	}
	return time.Time{}
}

// UpsertPuzzle inserts a puzzle row if it doesn't already exist.
//
// Puzzles are immutable, so a duplicate key is a no-op rather than an
// update.
func (s *Store) UpsertPuzzle(ctx context.Context, p *schema.Puzzle) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid puzzle: %w", err)
	}

	source := p.Source
	if source == "" {
		source = schema.DefaultSource
	}
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
	INSERT OR IGNORE INTO puzzles (
		puzzle_string, rating, difficulty, is_symmetric, clue_count, source, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.conn.ExecContext(ctx, query,
		p.PuzzleString,
		p.Rating,
		string(p.Difficulty),
		p.IsSymmetric,
		p.ClueCount,
		source,
		createdAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert puzzle: %w", err)
	}

	return nil
}

// PuzzleExists reports whether a puzzle row is present locally.
func (s *Store) PuzzleExists(ctx context.Context, puzzleString string) (bool, error) {
	var found string
	err := s.conn.QueryRowContext(ctx,
		`SELECT puzzle_string FROM puzzles WHERE puzzle_string = ?`, puzzleString).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check puzzle existence: %w", err)
	}
	return true, nil
}

// GetPuzzle returns a puzzle row, or nil if it isn't present locally.
func (s *Store) GetPuzzle(ctx context.Context, puzzleString string) (*schema.Puzzle, error) {
	query := `
	SELECT puzzle_string, rating, difficulty, is_symmetric, clue_count, source, created_at
	FROM puzzles WHERE puzzle_string = ?
	`

	var (
		p         schema.Puzzle
		diff      string
		createdAt string
	)
	err := s.conn.QueryRowContext(ctx, query, puzzleString).Scan(
		&p.PuzzleString, &p.Rating, &diff, &p.IsSymmetric, &p.ClueCount, &p.Source, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get puzzle: %w", err)
	}

	p.Difficulty = schema.Difficulty(diff)
	p.CreatedAt = parseDBTime(createdAt)
	return &p, nil
}

// AddPuzzlesToCache batch-inserts fetched puzzles into the unused pool.
//
// The whole batch runs in one transaction; on failure nothing is inserted.
// Duplicate puzzle strings are ignored, so re-running a fetch never creates
// duplicate rows. Returns the number of rows actually inserted.
func (s *Store) AddPuzzlesToCache(ctx context.Context, puzzles []schema.CachedPuzzle) (int, error) {
	if len(puzzles) == 0 {
		return 0, nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT OR IGNORE INTO puzzle_cache (
		puzzle_string, rating, difficulty, is_symmetric, clue_count, source, fetched_at, is_used
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	inserted := 0
	for i := range puzzles {
		p := &puzzles[i]
		if err := p.Puzzle.Validate(); err != nil {
			return 0, fmt.Errorf("invalid puzzle %q: %w", p.PuzzleString, err)
		}

		source := p.Source
		if source == "" {
			source = schema.DefaultSource
		}
		fetchedAt := now
		if !p.FetchedAt.IsZero() {
			fetchedAt = p.FetchedAt.UTC().Format(time.RFC3339)
		}

		res, err := stmt.ExecContext(ctx,
			p.PuzzleString,
			p.Rating,
			string(p.Difficulty),
			p.IsSymmetric,
			p.ClueCount,
			source,
			fetchedAt,
			p.IsUsed,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert puzzle %q: %w", p.PuzzleString, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit puzzle batch: %w", err)
	}

	return inserted, nil
}

// CountUnusedPuzzles returns the number of unused cached puzzles for one
// difficulty.
func (s *Store) CountUnusedPuzzles(ctx context.Context, d schema.Difficulty) (int, error) {
	var count int
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM puzzle_cache WHERE difficulty = ? AND is_used = 0`,
		string(d)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unused puzzles: %w", err)
	}
	return count, nil
}

// UnusedPuzzleCounts returns unused cache counts grouped by difficulty.
// Difficulties with no cached puzzles are present with a zero count.
func (s *Store) UnusedPuzzleCounts(ctx context.Context) (map[schema.Difficulty]int, error) {
	counts := make(map[schema.Difficulty]int, len(schema.Difficulties()))
	for _, d := range schema.Difficulties() {
		counts[d] = 0
	}

	rows, err := s.conn.QueryContext(ctx, `
	SELECT difficulty, COUNT(*) FROM puzzle_cache
	WHERE is_used = 0
	GROUP BY difficulty
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count unused puzzles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			diff  string
			count int
		)
		if err := rows.Scan(&diff, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count row: %w", err)
		}
		counts[schema.Difficulty(diff)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate count rows: %w", err)
	}

	return counts, nil
}

// CachedPuzzleStrings returns every puzzle string in the cache, used or not.
//
// Replenishment excludes this full set from remote fetches so that played
// puzzles are never re-imported.
func (s *Store) CachedPuzzleStrings(ctx context.Context) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT puzzle_string FROM puzzle_cache`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cached puzzles: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var ps string
		if err := rows.Scan(&ps); err != nil {
			return nil, fmt.Errorf("failed to scan puzzle string: %w", err)
		}
		out = append(out, ps)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cached puzzles: %w", err)
	}

	return out, nil
}

// RandomUnusedPuzzle picks a random unused cache entry for a difficulty.
//
// Returns ErrNoUnusedPuzzles when the pool for that difficulty is empty.
func (s *Store) RandomUnusedPuzzle(ctx context.Context, d schema.Difficulty) (*schema.CachedPuzzle, error) {
	query := `
	SELECT puzzle_string, rating, difficulty, is_symmetric, clue_count, source, fetched_at, is_used
	FROM puzzle_cache
	WHERE difficulty = ? AND is_used = 0
	ORDER BY RANDOM()
	LIMIT 1
	`

	var (
		p         schema.CachedPuzzle
		diff      string
		fetchedAt string
	)
	err := s.conn.QueryRowContext(ctx, query, string(d)).Scan(
		&p.PuzzleString, &p.Rating, &diff, &p.IsSymmetric, &p.ClueCount, &p.Source,
		&fetchedAt, &p.IsUsed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoUnusedPuzzles
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pick unused puzzle: %w", err)
	}

	p.Difficulty = schema.Difficulty(diff)
	p.FetchedAt = parseDBTime(fetchedAt)
	return &p, nil
}

// MarkPuzzleUsed flips a cache entry's is_used flag to true.
//
// The flag only ever transitions false to true; marking an already-used
// entry is a no-op. Returns an error if the entry isn't in the cache.
func (s *Store) MarkPuzzleUsed(ctx context.Context, puzzleString string) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE puzzle_cache SET is_used = 1 WHERE puzzle_string = ? AND is_used = 0`,
		puzzleString)
	if err != nil {
		return fmt.Errorf("failed to mark puzzle used: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		var found string
		err := s.conn.QueryRowContext(ctx,
			`SELECT puzzle_string FROM puzzle_cache WHERE puzzle_string = ?`, puzzleString).Scan(&found)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("puzzle %q is not in the cache", puzzleString)
		}
		if err != nil {
			return fmt.Errorf("failed to check cache entry: %w", err)
		}
		// Already used: idempotent.
	}

	return nil
}
