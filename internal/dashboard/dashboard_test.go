package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/sudokodus/sudokodus/internal/cache"
	"github.com/sudokodus/sudokodus/internal/remote/remotetest"
	"github.com/sudokodus/sudokodus/internal/retry"
	"github.com/sudokodus/sudokodus/internal/store"
	enginesync "github.com/sudokodus/sudokodus/internal/sync"
)

func startTestServer(t *testing.T) *Server {
	t.Helper()
	srv := NewServer(&Config{Port: 0})
	if err := srv.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	t.Cleanup(func() { _ = srv.Stop() })
	return srv
}

func dialTestClient(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, fmt.Sprintf("ws://%s/ws", srv.GetAddr()), nil)
	if err != nil {
		t.Fatalf("failed to dial server: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })

	// Wait until the server registered the client.
	deadline := time.After(5 * time.Second)
	for srv.ClientCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("server never registered the client")
		case <-time.After(5 * time.Millisecond):
		}
	}
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("failed to decode message: %v", err)
	}
	return msg
}

func TestBroadcastReachesClient(t *testing.T) {
	srv := startTestServer(t)
	conn := dialTestClient(t, srv)

	data, _ := json.Marshal(map[string]string{"error": "boom"})
	srv.Broadcast(Message{Type: MessageTypeCycleError, Data: data})

	msg := readMessage(t, conn)
	if msg.Type != MessageTypeCycleError {
		t.Errorf("message type = %s, want cycle_error", msg.Type)
	}
	if msg.Timestamp.IsZero() {
		t.Error("broadcast did not stamp the message")
	}

	var payload map[string]string
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if payload["error"] != "boom" {
		t.Errorf("payload = %v", payload)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := startTestServer(t)

	resp, err := http.Get(fmt.Sprintf("http://%s/health", srv.GetAddr()))
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode health body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("health status field = %v", body["status"])
	}
}

func setupEngine(t *testing.T) (*enginesync.Orchestrator, *cache.Manager) {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.InitSchema(); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}

	f := remotetest.NewFake()
	retryCfg := retry.Config{MaxAttempts: 1, Delay: time.Millisecond}
	cm := cache.NewManager(s, f, cache.Config{
		MinPuzzleCount:     1,
		FetchBatchSize:     1,
		ReplenishThreshold: 1,
		Retry:              retryCfg,
	}, nil)
	gs := enginesync.NewGameSync(s, f, retryCfg, nil)
	cs := enginesync.NewChallengeSync(s, f, retryCfg, nil)
	cs.WindowDays = 0
	return enginesync.NewOrchestrator(s, f, cm, gs, cs, nil), cm
}

func TestStatusEndpointServesSnapshot(t *testing.T) {
	srv := startTestServer(t)
	orch, cm := setupEngine(t)

	h := NewHandler(srv, orch, cm, nil)
	h.Start()
	defer h.Stop()

	resp, err := http.Get(fmt.Sprintf("http://%s/status", srv.GetAddr()))
	if err != nil {
		t.Fatalf("status request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code = %d", resp.StatusCode)
	}

	var body struct {
		Sync  enginesync.Status `json:"sync"`
		Cache []CacheStatusData `json:"cache"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode status body: %v", err)
	}
	if body.Sync.State != enginesync.StateIdle {
		t.Errorf("sync state = %s, want idle", body.Sync.State)
	}
	if len(body.Cache) != 4 {
		t.Errorf("cache rows = %d, want 4 difficulties", len(body.Cache))
	}
}

func TestHandlerForwardsCycleEvents(t *testing.T) {
	srv := startTestServer(t)
	orch, cm := setupEngine(t)

	h := NewHandler(srv, orch, cm, nil)
	h.Start()
	defer h.Stop()

	conn := dialTestClient(t, srv)

	// First frame is the welcome snapshot.
	if msg := readMessage(t, conn); msg.Type != MessageTypeSyncStatus {
		t.Fatalf("welcome message type = %s, want sync_status", msg.Type)
	}

	if err := orch.RunSyncCycle(context.Background()); err != nil {
		t.Fatalf("RunSyncCycle failed: %v", err)
	}

	// A completed cycle produces a cycle_complete followed by a cache
	// status update.
	sawComplete := false
	sawCache := false
	for i := 0; i < 3 && !(sawComplete && sawCache); i++ {
		switch readMessage(t, conn).Type {
		case MessageTypeCycleComplete:
			sawComplete = true
		case MessageTypeCacheStatus:
			sawCache = true
		}
	}
	if !sawComplete || !sawCache {
		t.Errorf("complete=%t cache=%t, want both broadcast", sawComplete, sawCache)
	}
}
