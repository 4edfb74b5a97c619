// Package daemon runs sync in the background.
//
// The daemon:
// 1. Watches the database file for writes by the game process
// 2. Pushes and pulls game states on a debounced trigger
// 3. Runs the full sync cycle on a periodic ticker
// 4. Handles graceful shutdown
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	enginesync "github.com/sudokodus/sudokodus/internal/sync"
)

// Config holds configuration for the daemon.
type Config struct {
	// SyncInterval is how often the full sync cycle runs.
	SyncInterval time.Duration

	// DebounceInterval is how long to wait after a database write before
	// syncing game states. This batches rapid saves together.
	DebounceInterval time.Duration

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:     60 * time.Second,
		DebounceInterval: 2 * time.Second,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon drives the orchestrator from timers and file events.
type Daemon struct {
	orch   *enginesync.Orchestrator
	dbPath string
	config *Config

	watcher   *fsnotify.Watcher
	pendingMu sync.Mutex
	pendingAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a daemon watching dbPath for external writes.
//
// Use Start() to begin syncing.
func New(orch *enginesync.Orchestrator, dbPath string) (*Daemon, error) {
	return NewWithConfig(orch, dbPath, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration.
func NewWithConfig(orch *enginesync.Orchestrator, dbPath string, config *Config) (*Daemon, error) {
	if orch == nil {
		return nil, fmt.Errorf("orchestrator cannot be nil")
	}
	if dbPath == "" {
		return nil, fmt.Errorf("dbPath cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		orch:    orch,
		dbPath:  dbPath,
		config:  config,
		watcher: watcher,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start begins the daemon's operation.
//
// The daemon will:
// 1. Run one full sync cycle immediately
// 2. Watch the database file for writes by other processes
// 3. Sync game states on debounced file events
// 4. Run the full cycle on the periodic ticker
//
// This blocks until ctx is cancelled.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	if err := d.orch.RunSyncCycle(d.ctx); err != nil {
		d.config.Logger.Printf("Initial sync failed: %v", err)
	}

	// Watch the directory, not the file: SQLite swaps WAL files around
	// and fsnotify loses per-file watches on rename.
	watchDir := filepath.Dir(d.dbPath)
	if err := d.watcher.Add(watchDir); err != nil {
		return fmt.Errorf("failed to watch database directory: %w", err)
	}
	d.config.Logger.Printf("Watching: %s", watchDir)

	d.wg.Add(3)
	go d.watchFileEvents()
	go d.processPendingSync()
	go d.runPeriodicCycle()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")

	d.cancel()

	if err := d.watcher.Close(); err != nil {
		d.config.Logger.Printf("Error closing watcher: %v", err)
	}

	d.wg.Wait()

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// SetOnline updates network availability. Coming back online triggers
// an immediate full cycle so queued local changes go out right away.
func (d *Daemon) SetOnline(online bool) {
	if !d.orch.SetOnline(online) {
		return
	}
	if online {
		d.config.Logger.Println("Network restored, triggering sync")
		go func() {
			if err := d.orch.RunSyncCycle(d.ctx); err != nil {
				d.config.Logger.Printf("Reconnect sync failed: %v", err)
			}
		}()
	}
}

// watchFileEvents monitors filesystem events and marks sync pending.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !d.isDatabaseFile(event.Name) {
				continue
			}

			d.markPending()

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// isDatabaseFile reports whether path is the database or its WAL.
func (d *Daemon) isDatabaseFile(path string) bool {
	base := filepath.Base(d.dbPath)
	name := filepath.Base(path)
	return name == base || name == base+"-wal"
}

func (d *Daemon) markPending() {
	d.pendingMu.Lock()
	d.pendingAt = time.Now()
	d.pendingMu.Unlock()
}

// processPendingSync syncs game states once writes settle down.
func (d *Daemon) processPendingSync() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.pendingMu.Lock()
			pendingAt := d.pendingAt
			ready := !pendingAt.IsZero() && time.Since(pendingAt) >= d.config.DebounceInterval
			if ready {
				d.pendingAt = time.Time{}
			}
			d.pendingMu.Unlock()

			if !ready {
				continue
			}

			if err := d.orch.SyncGameStates(d.ctx); err != nil {
				d.config.Logger.Printf("Error syncing game states: %v", err)
			}
		}
	}
}

// runPeriodicCycle runs the full sync cycle on the configured interval.
func (d *Daemon) runPeriodicCycle() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			if err := d.orch.RunSyncCycle(d.ctx); err != nil {
				d.config.Logger.Printf("Error running sync cycle: %v", err)
			}
		}
	}
}
