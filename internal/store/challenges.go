package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sudokodus/sudokodus/internal/schema"
)

// ChallengesForDate returns the locally stored challenges for one date.
func (s *Store) ChallengesForDate(ctx context.Context, date string) ([]*schema.DailyChallenge, error) {
	rows, err := s.conn.QueryContext(ctx, `
	SELECT id, date, difficulty, puzzle_string
	FROM daily_challenges WHERE date = ?
	ORDER BY difficulty
	`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily challenges: %w", err)
	}
	defer rows.Close()

	var out []*schema.DailyChallenge
	for rows.Next() {
		var (
			c    schema.DailyChallenge
			diff string
		)
		if err := rows.Scan(&c.ID, &c.Date, &diff, &c.PuzzleString); err != nil {
			return nil, fmt.Errorf("failed to scan daily challenge: %w", err)
		}
		c.Difficulty = schema.Difficulty(diff)
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate daily challenges: %w", err)
	}

	return out, nil
}

// CountChallengesForDate returns how many challenge rows exist for a date.
func (s *Store) CountChallengesForDate(ctx context.Context, date string) (int, error) {
	var count int
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM daily_challenges WHERE date = ?`, date).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count daily challenges: %w", err)
	}
	return count, nil
}

// AvailableChallengeDates returns all dates with locally stored challenges,
// sorted ascending.
func (s *Store) AvailableChallengeDates(ctx context.Context) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT DISTINCT date FROM daily_challenges ORDER BY date`)
	if err != nil {
		return nil, fmt.Errorf("failed to list challenge dates: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var date string
		if err := rows.Scan(&date); err != nil {
			return nil, fmt.Errorf("failed to scan challenge date: %w", err)
		}
		out = append(out, date)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate challenge dates: %w", err)
	}

	return out, nil
}

// UpsertDailyChallenges replaces a batch of challenge rows in one
// transaction.
//
// Referenced puzzles missing locally are resolved and inserted first so the
// foreign key holds. On any failure the whole batch rolls back.
func (s *Store) UpsertDailyChallenges(ctx context.Context, challenges []*schema.DailyChallenge,
	resolve PuzzleResolver) error {

	if len(challenges) == 0 {
		return nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, c := range challenges {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("invalid daily challenge %q: %w", c.ID, err)
		}

		var found string
		err := tx.QueryRowContext(ctx,
			`SELECT puzzle_string FROM puzzles WHERE puzzle_string = ?`, c.PuzzleString).Scan(&found)
		if errors.Is(err, sql.ErrNoRows) {
			puzzle, rerr := resolve(ctx, c.PuzzleString)
			if rerr != nil {
				return fmt.Errorf("failed to resolve puzzle %q: %w", c.PuzzleString, rerr)
			}
			if puzzle == nil {
				return fmt.Errorf("puzzle %q referenced by challenge %q not found", c.PuzzleString, c.ID)
			}
			if err := insertPuzzleTx(ctx, tx, puzzle); err != nil {
				return err
			}
		} else if err != nil {
			return fmt.Errorf("failed to check puzzle %q: %w", c.PuzzleString, err)
		}

		_, err = tx.ExecContext(ctx, `
		INSERT INTO daily_challenges (id, date, difficulty, puzzle_string)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(date, difficulty) DO UPDATE SET
			id = excluded.id,
			puzzle_string = excluded.puzzle_string
		`,
			c.ID, c.Date, string(c.Difficulty), c.PuzzleString)
		if err != nil {
			return fmt.Errorf("failed to upsert challenge %q: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit challenge batch: %w", err)
	}

	return nil
}
