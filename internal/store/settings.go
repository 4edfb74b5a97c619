package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Bookkeeping keys in app_settings.
const (
	// KeyLastSyncTime records the end of the last successful full sync cycle.
	KeyLastSyncTime = "last_sync_time"

	// KeyLastRemoteSync is the incremental-pull watermark for game states.
	KeyLastRemoteSync = "last_supabase_sync"

	// KeyPuzzlePoolDepleted suppresses puzzle fetches once the remote pool
	// ran dry. Cleared by a manual sync.
	KeyPuzzlePoolDepleted = "puzzle_database_depleted"

	// KeyLastPuzzleSync records the last puzzle replenishment attempt, used
	// for the fetch cooldown.
	KeyLastPuzzleSync = "last_puzzle_sync"

	// KeyAnonymousUserID is the stable per-device identity used before
	// sign-in.
	KeyAnonymousUserID = "anonymous_user_id"
)

// GetSetting reads a bookkeeping value. Missing keys return ("", nil).
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.conn.QueryRowContext(ctx,
		`SELECT value FROM app_settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read setting %q: %w", key, err)
	}
	return value, nil
}

// SetSetting writes a bookkeeping value.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO app_settings (key, value) VALUES (?, ?)`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write setting %q: %w", key, err)
	}
	return nil
}

// DeleteSetting removes a bookkeeping value. Missing keys are a no-op.
func (s *Store) DeleteSetting(ctx context.Context, key string) error {
	_, err := s.conn.ExecContext(ctx, `DELETE FROM app_settings WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete setting %q: %w", key, err)
	}
	return nil
}

// GetSettingTime reads a bookkeeping timestamp. Missing or unparseable
// values return the zero time.
func (s *Store) GetSettingTime(ctx context.Context, key string) (time.Time, error) {
	value, err := s.GetSetting(ctx, key)
	if err != nil || value == "" {
		return time.Time{}, err
	}
	return parseDBTime(value), nil
}

// SetSettingTime writes a bookkeeping timestamp.
func (s *Store) SetSettingTime(ctx context.Context, key string, t time.Time) error {
	return s.SetSetting(ctx, key, t.UTC().Format(time.RFC3339))
}

// IsPuzzlePoolDepleted reports whether the remote pool has been flagged
// empty.
func (s *Store) IsPuzzlePoolDepleted(ctx context.Context) (bool, error) {
	value, err := s.GetSetting(ctx, KeyPuzzlePoolDepleted)
	if err != nil {
		return false, err
	}
	return value == "true", nil
}

// SetPuzzlePoolDepleted records that a remote fetch came back empty.
// Once set, replenishment stays suppressed until ClearPuzzlePoolDepleted.
func (s *Store) SetPuzzlePoolDepleted(ctx context.Context) error {
	return s.SetSetting(ctx, KeyPuzzlePoolDepleted, "true")
}

// ClearPuzzlePoolDepleted re-enables puzzle fetches, e.g. on manual sync.
func (s *Store) ClearPuzzlePoolDepleted(ctx context.Context) error {
	return s.DeleteSetting(ctx, KeyPuzzlePoolDepleted)
}

// AnonymousUserID returns the stable per-device user id, creating and
// persisting one on first call.
func (s *Store) AnonymousUserID(ctx context.Context) (string, error) {
	id, err := s.GetSetting(ctx, KeyAnonymousUserID)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}

	id = uuid.NewString()
	if err := s.SetSetting(ctx, KeyAnonymousUserID, id); err != nil {
		return "", err
	}
	return id, nil
}
