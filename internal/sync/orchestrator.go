package sync

import (
	"context"
	"fmt"
	"log"
	"os"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/sudokodus/sudokodus/internal/cache"
	"github.com/sudokodus/sudokodus/internal/remote"
	"github.com/sudokodus/sudokodus/internal/store"
)

// State is the orchestrator's coarse activity state.
type State string

const (
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
)

// Event is a sync lifecycle notification for status consumers.
type Event struct {
	Type   string    `json:"type"`
	Detail string    `json:"detail,omitempty"`
	Time   time.Time `json:"time"`
}

// Event types emitted by the orchestrator.
const (
	EventCycleStart    = "cycle_start"
	EventCycleComplete = "cycle_complete"
	EventCycleError    = "cycle_error"
	EventNetworkChange = "network_change"
)

// Status is a point-in-time snapshot of sync health.
type Status struct {
	State           State     `json:"state"`
	Online          bool      `json:"online"`
	RemoteAvailable bool      `json:"remote_available"`
	LastSyncTime    time.Time `json:"last_sync_time"`
	LastError       string    `json:"last_error,omitempty"`
	PoolDepleted    bool      `json:"pool_depleted"`
}

// Orchestrator runs the sync cycle and guards against overlap.
type Orchestrator struct {
	store      *store.Store
	remote     remote.Client
	cache      *cache.Manager
	games      *GameSync
	challenges *ChallengeSync
	logger     *log.Logger

	// PuzzleSyncCooldown is the minimum gap between puzzle
	// replenishment attempts inside automatic cycles.
	PuzzleSyncCooldown time.Duration

	syncing atomic.Bool
	online  atomic.Bool

	mu      stdsync.Mutex
	userID  string
	lastErr error
	subs    []chan Event

	// now is swapped in tests.
	now func() time.Time
}

// NewOrchestrator wires the sync components together. A nil logger logs
// to stderr. The orchestrator starts online.
func NewOrchestrator(s *store.Store, r remote.Client, cm *cache.Manager,
	games *GameSync, challenges *ChallengeSync, logger *log.Logger) *Orchestrator {

	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	o := &Orchestrator{
		store:              s,
		remote:             r,
		cache:              cm,
		games:              games,
		challenges:         challenges,
		logger:             logger,
		PuzzleSyncCooldown: 5 * time.Minute,
		now:                time.Now,
	}
	o.online.Store(true)
	return o
}

// SetUserID sets the identity game states sync under. When empty, the
// stored anonymous id is used.
func (o *Orchestrator) SetUserID(id string) {
	o.mu.Lock()
	o.userID = id
	o.mu.Unlock()
}

// SetOnline flips network availability. Sync calls while offline return
// without touching the network. Returns true if the value changed.
func (o *Orchestrator) SetOnline(online bool) bool {
	changed := o.online.Swap(online) != online
	if changed {
		o.emit(Event{Type: EventNetworkChange, Detail: fmt.Sprintf("online=%t", online)})
	}
	return changed
}

// Online reports the current network flag.
func (o *Orchestrator) Online() bool { return o.online.Load() }

// Subscribe registers a status event listener. Events are dropped, not
// queued, when the subscriber falls behind.
func (o *Orchestrator) Subscribe() <-chan Event {
	ch := make(chan Event, 16)
	o.mu.Lock()
	o.subs = append(o.subs, ch)
	o.mu.Unlock()
	return ch
}

func (o *Orchestrator) emit(e Event) {
	e.Time = o.now().UTC()
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, ch := range o.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Status returns a snapshot of sync health.
func (o *Orchestrator) Status(ctx context.Context) Status {
	st := Status{
		State:           StateIdle,
		Online:          o.online.Load(),
		RemoteAvailable: o.remote.IsAvailable(),
	}
	if o.syncing.Load() {
		st.State = StateSyncing
	}

	o.mu.Lock()
	if o.lastErr != nil {
		st.LastError = o.lastErr.Error()
	}
	o.mu.Unlock()

	if t, err := o.store.GetSettingTime(ctx, store.KeyLastSyncTime); err == nil {
		st.LastSyncTime = t
	}
	if depleted, err := o.store.IsPuzzlePoolDepleted(ctx); err == nil {
		st.PoolDepleted = depleted
	}
	return st
}

// RunSyncCycle runs one full sync pass: puzzle cache check, daily
// challenges, game state push, game state pull. Steps run in that order
// and the first failure aborts the remainder. If a cycle is already in
// flight the call returns immediately with no error.
func (o *Orchestrator) RunSyncCycle(ctx context.Context) error {
	return o.runCycle(ctx, false)
}

// ManualSync is a user-initiated cycle. It clears the puzzle pool
// depletion flag and ignores the replenishment cooldown, so a backend
// that has since gained puzzles is retried immediately.
func (o *Orchestrator) ManualSync(ctx context.Context) error {
	if err := o.cache.ClearDepletion(ctx); err != nil {
		return fmt.Errorf("failed to clear depletion flag: %w", err)
	}
	if err := o.store.DeleteSetting(ctx, store.KeyLastPuzzleSync); err != nil {
		return fmt.Errorf("failed to clear puzzle sync cooldown: %w", err)
	}
	return o.runCycle(ctx, true)
}

func (o *Orchestrator) runCycle(ctx context.Context, manual bool) error {
	if !o.syncing.CompareAndSwap(false, true) {
		o.logger.Printf("sync already in progress, skipping")
		return nil
	}
	defer o.syncing.Store(false)

	if !o.online.Load() || !o.remote.IsAvailable() {
		o.logger.Printf("offline, skipping sync cycle")
		return nil
	}

	o.emit(Event{Type: EventCycleStart})
	err := o.cycle(ctx, manual)

	o.mu.Lock()
	o.lastErr = err
	o.mu.Unlock()

	if err != nil {
		o.logger.Printf("sync cycle failed: %v", err)
		o.emit(Event{Type: EventCycleError, Detail: err.Error()})
		return err
	}

	o.emit(Event{Type: EventCycleComplete})
	return nil
}

func (o *Orchestrator) cycle(ctx context.Context, manual bool) error {
	if err := o.syncPuzzles(ctx, manual); err != nil {
		return fmt.Errorf("puzzle sync: %w", err)
	}
	// Automatic cycles only need today's challenges; manual syncs
	// backfill the whole window.
	if manual {
		if err := o.challenges.SyncWindow(ctx); err != nil {
			return fmt.Errorf("challenge sync: %w", err)
		}
	} else if err := o.challenges.SyncToday(ctx); err != nil {
		return fmt.Errorf("challenge sync: %w", err)
	}

	userID, err := o.resolveUserID(ctx)
	if err != nil {
		return err
	}
	if _, _, err := o.games.Push(ctx, userID); err != nil {
		return fmt.Errorf("push: %w", err)
	}
	if _, err := o.games.Pull(ctx, userID); err != nil {
		return fmt.Errorf("pull: %w", err)
	}

	if err := o.store.SetSettingTime(ctx, store.KeyLastSyncTime, o.now().UTC()); err != nil {
		return fmt.Errorf("failed to record sync time: %w", err)
	}
	return nil
}

// syncPuzzles replenishes the cache, honoring the cooldown for
// automatic cycles.
func (o *Orchestrator) syncPuzzles(ctx context.Context, manual bool) error {
	if !manual {
		last, err := o.store.GetSettingTime(ctx, store.KeyLastPuzzleSync)
		if err != nil {
			return fmt.Errorf("failed to read puzzle sync time: %w", err)
		}
		if !last.IsZero() && o.now().UTC().Sub(last) < o.PuzzleSyncCooldown {
			return nil
		}
	}

	if err := o.cache.Replenish(ctx); err != nil {
		return err
	}
	return o.store.SetSettingTime(ctx, store.KeyLastPuzzleSync, o.now().UTC())
}

// SyncGameStates pushes and pulls game states without the puzzle or
// challenge steps. Used by the periodic timer and file watcher, which
// fire far more often than puzzle replenishment needs.
func (o *Orchestrator) SyncGameStates(ctx context.Context) error {
	if !o.syncing.CompareAndSwap(false, true) {
		return nil
	}
	defer o.syncing.Store(false)

	if !o.online.Load() || !o.remote.IsAvailable() {
		return nil
	}

	userID, err := o.resolveUserID(ctx)
	if err != nil {
		return err
	}

	if _, _, err := o.games.Push(ctx, userID); err != nil {
		err = fmt.Errorf("push: %w", err)
		o.recordErr(err)
		return err
	}
	if _, err := o.games.Pull(ctx, userID); err != nil {
		err = fmt.Errorf("pull: %w", err)
		o.recordErr(err)
		return err
	}

	o.recordErr(nil)
	return nil
}

func (o *Orchestrator) recordErr(err error) {
	o.mu.Lock()
	o.lastErr = err
	o.mu.Unlock()
}

func (o *Orchestrator) resolveUserID(ctx context.Context) (string, error) {
	o.mu.Lock()
	id := o.userID
	o.mu.Unlock()
	if id != "" {
		return id, nil
	}

	id, err := o.store.AnonymousUserID(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to resolve user id: %w", err)
	}
	return id, nil
}
