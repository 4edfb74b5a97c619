package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/sudokodus/sudokodus/internal/schema"
)

// setupTestStore creates a temporary database for testing.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.InitSchema(); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}

	return s
}

// testPuzzleString generates a distinct valid 81-digit puzzle string.
func testPuzzleString(n int) string {
	return fmt.Sprintf("%081d", n)
}

func testPuzzle(n int, d schema.Difficulty) schema.Puzzle {
	return schema.Puzzle{
		PuzzleString: testPuzzleString(n),
		Rating:       1.2,
		Difficulty:   d,
		ClueCount:    30,
		Source:       schema.DefaultSource,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
}

func testGameState(t *testing.T, id, userID, puzzleString string) *schema.GameState {
	t.Helper()

	cells, err := schema.InitialCells(puzzleString)
	if err != nil {
		t.Fatalf("InitialCells failed: %v", err)
	}
	state, err := schema.EncodeCells(cells)
	if err != nil {
		t.Fatalf("EncodeCells failed: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	return &schema.GameState{
		ID:           id,
		UserID:       userID,
		PuzzleString: puzzleString,
		CurrentState: state,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestInitSchemaIdempotent(t *testing.T) {
	s := setupTestStore(t)

	// Safe to run on every app start.
	if err := s.InitSchema(); err != nil {
		t.Fatalf("second InitSchema failed: %v", err)
	}
	if err := s.InitSchema(); err != nil {
		t.Fatalf("third InitSchema failed: %v", err)
	}
}

func TestUpsertPuzzle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	p := testPuzzle(1, schema.Easy)
	if err := s.UpsertPuzzle(ctx, &p); err != nil {
		t.Fatalf("UpsertPuzzle failed: %v", err)
	}

	exists, err := s.PuzzleExists(ctx, p.PuzzleString)
	if err != nil {
		t.Fatalf("PuzzleExists failed: %v", err)
	}
	if !exists {
		t.Fatal("puzzle not found after insert")
	}

	// Puzzles are immutable: a second insert with different fields is a no-op.
	changed := p
	changed.Rating = 9.9
	if err := s.UpsertPuzzle(ctx, &changed); err != nil {
		t.Fatalf("second UpsertPuzzle failed: %v", err)
	}

	got, err := s.GetPuzzle(ctx, p.PuzzleString)
	if err != nil {
		t.Fatalf("GetPuzzle failed: %v", err)
	}
	if diff := cmp.Diff(&p, got, cmpopts.EquateApproxTime(time.Second)); diff != "" {
		t.Errorf("puzzle mismatch (-want +got):\n%s", diff)
	}
}

func TestGetPuzzleMissing(t *testing.T) {
	s := setupTestStore(t)

	got, err := s.GetPuzzle(context.Background(), testPuzzleString(99))
	if err != nil {
		t.Fatalf("GetPuzzle failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing puzzle, got %+v", got)
	}
}

func TestAddPuzzlesToCache(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	batch := []schema.CachedPuzzle{
		{Puzzle: testPuzzle(1, schema.Easy)},
		{Puzzle: testPuzzle(2, schema.Easy)},
		{Puzzle: testPuzzle(3, schema.Medium)},
	}

	inserted, err := s.AddPuzzlesToCache(ctx, batch)
	if err != nil {
		t.Fatalf("AddPuzzlesToCache failed: %v", err)
	}
	if inserted != 3 {
		t.Errorf("expected 3 inserted, got %d", inserted)
	}

	// Duplicate keys are ignored, never duplicated.
	inserted, err = s.AddPuzzlesToCache(ctx, batch)
	if err != nil {
		t.Fatalf("second AddPuzzlesToCache failed: %v", err)
	}
	if inserted != 0 {
		t.Errorf("expected 0 inserted on duplicate batch, got %d", inserted)
	}

	strings, err := s.CachedPuzzleStrings(ctx)
	if err != nil {
		t.Fatalf("CachedPuzzleStrings failed: %v", err)
	}
	if len(strings) != 3 {
		t.Errorf("expected 3 cached puzzles, got %d", len(strings))
	}

	counts, err := s.UnusedPuzzleCounts(ctx)
	if err != nil {
		t.Fatalf("UnusedPuzzleCounts failed: %v", err)
	}
	if counts[schema.Easy] != 2 || counts[schema.Medium] != 1 || counts[schema.Hard] != 0 {
		t.Errorf("unexpected counts: %v", counts)
	}
}

func TestAddPuzzlesToCacheRollsBackOnInvalidRow(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	bad := testPuzzle(2, schema.Easy)
	bad.PuzzleString = "short"

	_, err := s.AddPuzzlesToCache(ctx, []schema.CachedPuzzle{
		{Puzzle: testPuzzle(1, schema.Easy)},
		{Puzzle: bad},
	})
	if err == nil {
		t.Fatal("expected error for invalid puzzle")
	}

	// The whole batch rolled back: no partial write visible.
	count, err := s.CountUnusedPuzzles(ctx, schema.Easy)
	if err != nil {
		t.Fatalf("CountUnusedPuzzles failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 puzzles after rollback, got %d", count)
	}
}

func TestMarkPuzzleUsed(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if _, err := s.AddPuzzlesToCache(ctx, []schema.CachedPuzzle{
		{Puzzle: testPuzzle(1, schema.Hard)},
	}); err != nil {
		t.Fatalf("AddPuzzlesToCache failed: %v", err)
	}

	ps := testPuzzleString(1)
	if err := s.MarkPuzzleUsed(ctx, ps); err != nil {
		t.Fatalf("MarkPuzzleUsed failed: %v", err)
	}

	// Used puzzles are never offered again.
	if _, err := s.RandomUnusedPuzzle(ctx, schema.Hard); err != ErrNoUnusedPuzzles {
		t.Errorf("expected ErrNoUnusedPuzzles, got %v", err)
	}

	// Marking again is a no-op, not an error.
	if err := s.MarkPuzzleUsed(ctx, ps); err != nil {
		t.Errorf("second MarkPuzzleUsed failed: %v", err)
	}

	if err := s.MarkPuzzleUsed(ctx, testPuzzleString(42)); err == nil {
		t.Error("expected error for puzzle not in cache")
	}
}

func TestRandomUnusedPuzzle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if _, err := s.AddPuzzlesToCache(ctx, []schema.CachedPuzzle{
		{Puzzle: testPuzzle(1, schema.Easy)},
		{Puzzle: testPuzzle(2, schema.Medium)},
	}); err != nil {
		t.Fatalf("AddPuzzlesToCache failed: %v", err)
	}

	got, err := s.RandomUnusedPuzzle(ctx, schema.Medium)
	if err != nil {
		t.Fatalf("RandomUnusedPuzzle failed: %v", err)
	}
	if got.PuzzleString != testPuzzleString(2) {
		t.Errorf("got puzzle %q, want %q", got.PuzzleString, testPuzzleString(2))
	}
	if got.IsUsed {
		t.Error("unused puzzle reported as used")
	}
}

func TestGameStateLifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	p := testPuzzle(1, schema.Easy)
	if err := s.UpsertPuzzle(ctx, &p); err != nil {
		t.Fatalf("UpsertPuzzle failed: %v", err)
	}

	g := testGameState(t, "game-1", "user-1", p.PuzzleString)
	if err := s.InsertGameState(ctx, g); err != nil {
		t.Fatalf("InsertGameState failed: %v", err)
	}

	got, err := s.GetGameState(ctx, "game-1")
	if err != nil {
		t.Fatalf("GetGameState failed: %v", err)
	}
	if got.Synced {
		t.Error("new game state should not be synced")
	}

	// Edits bump updated_at and clear synced.
	if err := s.MarkGameStateSynced(ctx, "game-1"); err != nil {
		t.Fatalf("MarkGameStateSynced failed: %v", err)
	}
	before := got.UpdatedAt

	got.HintsUsed = 2
	if err := s.UpdateGameState(ctx, got); err != nil {
		t.Fatalf("UpdateGameState failed: %v", err)
	}

	updated, err := s.GetGameState(ctx, "game-1")
	if err != nil {
		t.Fatalf("GetGameState failed: %v", err)
	}
	if updated.Synced {
		t.Error("edited game state should have synced cleared")
	}
	if updated.HintsUsed != 2 {
		t.Errorf("hints_used = %d, want 2", updated.HintsUsed)
	}
	if updated.UpdatedAt.Before(before) {
		t.Error("updated_at was not bumped")
	}
}

func TestGameStateNotFound(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if _, err := s.GetGameState(ctx, "missing"); err != ErrGameNotFound {
		t.Errorf("expected ErrGameNotFound, got %v", err)
	}

	p := testPuzzle(1, schema.Easy)
	if err := s.UpsertPuzzle(ctx, &p); err != nil {
		t.Fatalf("UpsertPuzzle failed: %v", err)
	}
	g := testGameState(t, "missing", "user-1", p.PuzzleString)
	if err := s.UpdateGameState(ctx, g); err != ErrGameNotFound {
		t.Errorf("expected ErrGameNotFound on update, got %v", err)
	}
}

func TestUnsyncedGameStates(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	p := testPuzzle(1, schema.Easy)
	if err := s.UpsertPuzzle(ctx, &p); err != nil {
		t.Fatalf("UpsertPuzzle failed: %v", err)
	}

	for _, id := range []string{"g1", "g2", "g3"} {
		g := testGameState(t, id, "user-1", p.PuzzleString)
		if err := s.InsertGameState(ctx, g); err != nil {
			t.Fatalf("InsertGameState failed: %v", err)
		}
	}
	other := testGameState(t, "g4", "user-2", p.PuzzleString)
	if err := s.InsertGameState(ctx, other); err != nil {
		t.Fatalf("InsertGameState failed: %v", err)
	}

	if err := s.MarkGameStateSynced(ctx, "g2"); err != nil {
		t.Fatalf("MarkGameStateSynced failed: %v", err)
	}

	unsynced, err := s.UnsyncedGameStates(ctx, "user-1")
	if err != nil {
		t.Fatalf("UnsyncedGameStates failed: %v", err)
	}
	if len(unsynced) != 2 {
		t.Fatalf("expected 2 unsynced rows, got %d", len(unsynced))
	}
	for _, g := range unsynced {
		if g.ID == "g2" || g.ID == "g4" {
			t.Errorf("unexpected row %q in unsynced set", g.ID)
		}
	}
}

func noResolve(ctx context.Context, puzzleString string) (*schema.Puzzle, error) {
	return nil, fmt.Errorf("unexpected resolve of %q", puzzleString)
}

func TestApplyRemoteGameStatesLastWriteWins(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	p := testPuzzle(1, schema.Easy)
	if err := s.UpsertPuzzle(ctx, &p); err != nil {
		t.Fatalf("UpsertPuzzle failed: %v", err)
	}

	local := testGameState(t, "game-1", "user-1", p.PuzzleString)
	local.UpdatedAt = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	local.CreatedAt = local.UpdatedAt
	if err := s.InsertGameState(ctx, local); err != nil {
		t.Fatalf("InsertGameState failed: %v", err)
	}

	// Remote row older than local: skipped.
	older := *local
	older.HintsUsed = 9
	older.UpdatedAt = local.UpdatedAt.Add(-time.Hour)
	applied, err := s.ApplyRemoteGameStates(ctx, []*schema.GameState{&older}, noResolve,
		KeyLastRemoteSync, time.Now())
	if err != nil {
		t.Fatalf("ApplyRemoteGameStates failed: %v", err)
	}
	if applied != 0 {
		t.Errorf("expected 0 applied for older remote row, got %d", applied)
	}

	// Equal timestamps: local wins ties.
	tie := *local
	tie.HintsUsed = 9
	applied, err = s.ApplyRemoteGameStates(ctx, []*schema.GameState{&tie}, noResolve,
		KeyLastRemoteSync, time.Now())
	if err != nil {
		t.Fatalf("ApplyRemoteGameStates failed: %v", err)
	}
	if applied != 0 {
		t.Errorf("expected 0 applied on tie, got %d", applied)
	}

	// Remote row newer than local: overwrites, marked synced.
	newer := *local
	newer.HintsUsed = 9
	newer.UpdatedAt = local.UpdatedAt.Add(time.Hour)
	applied, err = s.ApplyRemoteGameStates(ctx, []*schema.GameState{&newer}, noResolve,
		KeyLastRemoteSync, time.Now())
	if err != nil {
		t.Fatalf("ApplyRemoteGameStates failed: %v", err)
	}
	if applied != 1 {
		t.Fatalf("expected 1 applied for newer remote row, got %d", applied)
	}

	got, err := s.GetGameState(ctx, "game-1")
	if err != nil {
		t.Fatalf("GetGameState failed: %v", err)
	}
	if got.HintsUsed != 9 {
		t.Errorf("hints_used = %d, want 9 (remote row should have won)", got.HintsUsed)
	}
	if !got.Synced {
		t.Error("pulled row should be marked synced")
	}
}

func TestApplyRemoteGameStatesResolvesMissingPuzzle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	missing := testPuzzle(7, schema.Diabolical)
	remote := testGameState(t, "game-7", "user-1", missing.PuzzleString)

	resolved := false
	resolve := func(ctx context.Context, puzzleString string) (*schema.Puzzle, error) {
		resolved = true
		if puzzleString != missing.PuzzleString {
			return nil, fmt.Errorf("unexpected puzzle %q", puzzleString)
		}
		return &missing, nil
	}

	applied, err := s.ApplyRemoteGameStates(ctx, []*schema.GameState{remote}, resolve,
		KeyLastRemoteSync, time.Now())
	if err != nil {
		t.Fatalf("ApplyRemoteGameStates failed: %v", err)
	}
	if applied != 1 {
		t.Fatalf("expected 1 applied, got %d", applied)
	}
	if !resolved {
		t.Error("resolver was not called for missing puzzle")
	}

	exists, err := s.PuzzleExists(ctx, missing.PuzzleString)
	if err != nil {
		t.Fatalf("PuzzleExists failed: %v", err)
	}
	if !exists {
		t.Error("referenced puzzle was not inserted")
	}
}

func TestApplyRemoteGameStatesRollsBackBatch(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	p := testPuzzle(1, schema.Easy)
	if err := s.UpsertPuzzle(ctx, &p); err != nil {
		t.Fatalf("UpsertPuzzle failed: %v", err)
	}

	good := testGameState(t, "game-1", "user-1", p.PuzzleString)
	bad := testGameState(t, "game-2", "user-1", testPuzzleString(55))

	failing := func(ctx context.Context, puzzleString string) (*schema.Puzzle, error) {
		return nil, fmt.Errorf("network down")
	}

	_, err := s.ApplyRemoteGameStates(ctx, []*schema.GameState{good, bad}, failing,
		KeyLastRemoteSync, time.Now())
	if err == nil {
		t.Fatal("expected error from failing resolver")
	}

	// Nothing from the batch is visible, and the watermark did not move.
	if _, err := s.GetGameState(ctx, "game-1"); err != ErrGameNotFound {
		t.Errorf("expected rollback of game-1, got err=%v", err)
	}
	watermark, err := s.GetSettingTime(ctx, KeyLastRemoteSync)
	if err != nil {
		t.Fatalf("GetSettingTime failed: %v", err)
	}
	if !watermark.IsZero() {
		t.Errorf("sync watermark advanced despite rollback: %v", watermark)
	}
}

func TestUpsertDailyChallenges(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	puzzles := map[string]schema.Puzzle{
		testPuzzleString(1): testPuzzle(1, schema.Easy),
		testPuzzleString(2): testPuzzle(2, schema.Medium),
	}
	resolve := func(ctx context.Context, puzzleString string) (*schema.Puzzle, error) {
		p, ok := puzzles[puzzleString]
		if !ok {
			return nil, nil
		}
		return &p, nil
	}

	challenges := []*schema.DailyChallenge{
		{ID: "dc-1", Date: "2026-09-01", Difficulty: schema.Easy, PuzzleString: testPuzzleString(1)},
		{ID: "dc-2", Date: "2026-09-01", Difficulty: schema.Medium, PuzzleString: testPuzzleString(2)},
	}

	if err := s.UpsertDailyChallenges(ctx, challenges, resolve); err != nil {
		t.Fatalf("UpsertDailyChallenges failed: %v", err)
	}

	count, err := s.CountChallengesForDate(ctx, "2026-09-01")
	if err != nil {
		t.Fatalf("CountChallengesForDate failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 challenges, got %d", count)
	}

	// Replacing a (date, difficulty) pair keeps the table unique.
	replacement := []*schema.DailyChallenge{
		{ID: "dc-1b", Date: "2026-09-01", Difficulty: schema.Easy, PuzzleString: testPuzzleString(1)},
	}
	if err := s.UpsertDailyChallenges(ctx, replacement, resolve); err != nil {
		t.Fatalf("replacement upsert failed: %v", err)
	}
	count, err = s.CountChallengesForDate(ctx, "2026-09-01")
	if err != nil {
		t.Fatalf("CountChallengesForDate failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 challenges after replacement, got %d", count)
	}

	dates, err := s.AvailableChallengeDates(ctx)
	if err != nil {
		t.Fatalf("AvailableChallengeDates failed: %v", err)
	}
	if diff := cmp.Diff([]string{"2026-09-01"}, dates); diff != "" {
		t.Errorf("dates mismatch (-want +got):\n%s", diff)
	}
}

func TestSettings(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	value, err := s.GetSetting(ctx, "missing")
	if err != nil {
		t.Fatalf("GetSetting failed: %v", err)
	}
	if value != "" {
		t.Errorf("expected empty value for missing key, got %q", value)
	}

	if err := s.SetSetting(ctx, "k", "v1"); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}
	if err := s.SetSetting(ctx, "k", "v2"); err != nil {
		t.Fatalf("SetSetting overwrite failed: %v", err)
	}
	value, err = s.GetSetting(ctx, "k")
	if err != nil {
		t.Fatalf("GetSetting failed: %v", err)
	}
	if value != "v2" {
		t.Errorf("value = %q, want v2", value)
	}

	now := time.Now().UTC().Truncate(time.Second)
	if err := s.SetSettingTime(ctx, KeyLastSyncTime, now); err != nil {
		t.Fatalf("SetSettingTime failed: %v", err)
	}
	got, err := s.GetSettingTime(ctx, KeyLastSyncTime)
	if err != nil {
		t.Fatalf("GetSettingTime failed: %v", err)
	}
	if !got.Equal(now) {
		t.Errorf("time = %v, want %v", got, now)
	}
}

func TestPuzzlePoolDepletionFlag(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	depleted, err := s.IsPuzzlePoolDepleted(ctx)
	if err != nil {
		t.Fatalf("IsPuzzlePoolDepleted failed: %v", err)
	}
	if depleted {
		t.Error("fresh database reports depleted pool")
	}

	if err := s.SetPuzzlePoolDepleted(ctx); err != nil {
		t.Fatalf("SetPuzzlePoolDepleted failed: %v", err)
	}
	depleted, err = s.IsPuzzlePoolDepleted(ctx)
	if err != nil {
		t.Fatalf("IsPuzzlePoolDepleted failed: %v", err)
	}
	if !depleted {
		t.Error("depletion flag not persisted")
	}

	if err := s.ClearPuzzlePoolDepleted(ctx); err != nil {
		t.Fatalf("ClearPuzzlePoolDepleted failed: %v", err)
	}
	depleted, err = s.IsPuzzlePoolDepleted(ctx)
	if err != nil {
		t.Fatalf("IsPuzzlePoolDepleted failed: %v", err)
	}
	if depleted {
		t.Error("depletion flag survived clear")
	}
}

func TestAnonymousUserID(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	first, err := s.AnonymousUserID(ctx)
	if err != nil {
		t.Fatalf("AnonymousUserID failed: %v", err)
	}
	if first == "" {
		t.Fatal("empty anonymous user id")
	}

	second, err := s.AnonymousUserID(ctx)
	if err != nil {
		t.Fatalf("second AnonymousUserID failed: %v", err)
	}
	if first != second {
		t.Errorf("anonymous id not stable: %q vs %q", first, second)
	}
}
