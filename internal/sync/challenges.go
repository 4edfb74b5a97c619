package sync

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/sudokodus/sudokodus/internal/remote"
	"github.com/sudokodus/sudokodus/internal/retry"
	"github.com/sudokodus/sudokodus/internal/schema"
	"github.com/sudokodus/sudokodus/internal/store"
)

// ChallengeSync pulls daily challenges for today and a rolling window
// of past days.
type ChallengeSync struct {
	store  *store.Store
	remote remote.Client
	retry  retry.Config
	logger *log.Logger

	// WindowDays is how many past days to backfill. Zero means only
	// today.
	WindowDays int

	// PerDate is the expected challenge count per date. Dates that
	// already hold this many rows are skipped.
	PerDate int

	// now is swapped in tests.
	now func() time.Time
}

// NewChallengeSync creates a daily challenge synchronizer. A nil logger
// logs to stderr.
func NewChallengeSync(s *store.Store, r remote.Client, retryCfg retry.Config, logger *log.Logger) *ChallengeSync {
	if logger == nil {
		logger = log.New(os.Stderr, "[challenges] ", log.LstdFlags)
	}
	return &ChallengeSync{
		store:      s,
		remote:     r,
		retry:      retryCfg,
		logger:     logger,
		WindowDays: 30,
		PerDate:    4,
		now:        time.Now,
	}
}

// SyncToday fetches today's challenges if they are not complete locally.
func (c *ChallengeSync) SyncToday(ctx context.Context) error {
	return c.syncDate(ctx, c.now().UTC().Format(schema.DateFormat))
}

// SyncWindow backfills challenges for today and the previous WindowDays
// days. Dates already complete locally cost no network traffic. A
// failing date is logged and skipped so one bad day does not block the
// rest.
func (c *ChallengeSync) SyncWindow(ctx context.Context) error {
	if !c.remote.IsAvailable() {
		return remote.ErrUnavailable
	}

	today := c.now().UTC()
	var firstErr error
	for i := 0; i <= c.WindowDays; i++ {
		date := today.AddDate(0, 0, -i).Format(schema.DateFormat)
		if err := c.syncDate(ctx, date); err != nil {
			c.logger.Printf("failed to sync challenges for %s: %v", date, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (c *ChallengeSync) syncDate(ctx context.Context, date string) error {
	count, err := c.store.CountChallengesForDate(ctx, date)
	if err != nil {
		return fmt.Errorf("failed to count local challenges: %w", err)
	}
	if count >= c.PerDate {
		return nil
	}

	if !c.remote.IsAvailable() {
		return remote.ErrUnavailable
	}

	var challenges []*schema.DailyChallenge
	err = retry.Do(ctx, c.retry, func(ctx context.Context) error {
		var ferr error
		challenges, ferr = c.remote.FetchDailyChallenges(ctx, date)
		return ferr
	})
	if err != nil {
		return fmt.Errorf("failed to fetch challenges for %s: %w", date, err)
	}
	if len(challenges) == 0 {
		return nil
	}

	if err := c.store.UpsertDailyChallenges(ctx, challenges, c.resolvePuzzle); err != nil {
		return fmt.Errorf("failed to store challenges for %s: %w", date, err)
	}
	c.logger.Printf("stored %d challenges for %s", len(challenges), date)
	return nil
}

func (c *ChallengeSync) resolvePuzzle(ctx context.Context, puzzleString string) (*schema.Puzzle, error) {
	p, err := c.remote.FetchPuzzle(ctx, puzzleString)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("puzzle %s not found on backend", puzzleString)
	}
	return p, nil
}
