package dashboard

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/sudokodus/sudokodus/internal/cache"
	enginesync "github.com/sudokodus/sudokodus/internal/sync"
)

// Handler subscribes to orchestrator events and forwards them to the
// WebSocket server as dashboard messages.
type Handler struct {
	server *Server
	orch   *enginesync.Orchestrator
	cache  *cache.Manager
	logger *log.Logger

	stop   context.CancelFunc
	wg     sync.WaitGroup
	events <-chan enginesync.Event
}

// NewHandler creates an event handler bridging the orchestrator to the
// dashboard server. It also wires the server's /status endpoint.
func NewHandler(server *Server, orch *enginesync.Orchestrator, cm *cache.Manager, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}

	h := &Handler{
		server: server,
		orch:   orch,
		cache:  cm,
		logger: logger,
	}
	server.SetStatusFunc(h.statusSnapshot)
	return h
}

// Start begins forwarding orchestrator events. Call Stop to end.
func (h *Handler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	h.stop = cancel
	h.events = h.orch.Subscribe()

	h.wg.Add(1)
	go h.forwardEvents(ctx)
}

// Stop ends event forwarding.
func (h *Handler) Stop() {
	if h.stop != nil {
		h.stop()
	}
	h.wg.Wait()
}

func (h *Handler) forwardEvents(ctx context.Context) {
	defer h.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-h.events:
			if !ok {
				return
			}
			h.handleEvent(ctx, ev)
		}
	}
}

func (h *Handler) handleEvent(ctx context.Context, ev enginesync.Event) {
	switch ev.Type {
	case enginesync.EventCycleComplete:
		h.broadcastStatus(ctx, MessageTypeCycleComplete)
		h.broadcastCacheStatus()

	case enginesync.EventCycleError:
		data, _ := json.Marshal(map[string]string{"error": ev.Detail})
		h.server.Broadcast(Message{
			Type:      MessageTypeCycleError,
			Timestamp: ev.Time,
			Data:      data,
		})

	case enginesync.EventNetworkChange:
		data, _ := json.Marshal(map[string]string{"change": ev.Detail})
		h.server.Broadcast(Message{
			Type:      MessageTypeNetwork,
			Timestamp: ev.Time,
			Data:      data,
		})
	}
}

// broadcastStatus sends the current sync status under the given type.
func (h *Handler) broadcastStatus(ctx context.Context, t MessageType) {
	data, err := json.Marshal(h.orch.Status(ctx))
	if err != nil {
		h.logger.Printf("Failed to marshal status: %v", err)
		return
	}
	h.server.Broadcast(Message{Type: t, Data: data})
}

// broadcastCacheStatus sends per-difficulty pool counts.
func (h *Handler) broadcastCacheStatus() {
	status := h.cache.Status()
	rows := make([]CacheStatusData, 0, len(status))
	for d, st := range status {
		rows = append(rows, CacheStatusData{
			Difficulty: string(d),
			Status:     string(st.Status),
			Unused:     st.Unused,
		})
	}

	data, err := json.Marshal(rows)
	if err != nil {
		h.logger.Printf("Failed to marshal cache status: %v", err)
		return
	}
	h.server.Broadcast(Message{Type: MessageTypeCacheStatus, Data: data})
}

// statusSnapshot serves the /status endpoint.
func (h *Handler) statusSnapshot(ctx context.Context) any {
	type snapshot struct {
		Sync  enginesync.Status `json:"sync"`
		Cache []CacheStatusData `json:"cache"`
	}

	status := h.cache.Status()
	rows := make([]CacheStatusData, 0, len(status))
	for d, st := range status {
		rows = append(rows, CacheStatusData{
			Difficulty: string(d),
			Status:     string(st.Status),
			Unused:     st.Unused,
		})
	}

	return snapshot{
		Sync:  h.orch.Status(ctx),
		Cache: rows,
	}
}
