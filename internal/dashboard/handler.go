package dashboard

import (
	"io"
	"log/slog"
	"sync"

	engine "github.com/framesync/framesync/internal/sync"
)

// Handler turns engine notifications into dashboard messages. Register it
// with the engine's SetNotifier so syncs started from any transport reach
// WebSocket clients.
type Handler struct {
	server *Server
	logger *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// Stats counts what the handler has seen since it was created
type Stats struct {
	Syncs         int `json:"syncs"`
	FailedSyncs   int `json:"failedSyncs"`
	ResolvedSyncs int `json:"resolvedSyncs"`
	Pulls         int `json:"pulls"`
	FailedPulls   int `json:"failedPulls"`
	CommitsPulled int `json:"commitsPulled"`
}

var _ engine.Notifier = (*Handler)(nil)

// NewHandler creates a new event handler connected to a dashboard server.
// The server reports the handler's Stats on /health.
func NewHandler(server *Server, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	h := &Handler{server: server, logger: logger}
	server.handlerMu.Lock()
	server.handler = h
	server.handlerMu.Unlock()
	return h
}

// SyncCompleted broadcasts every finished sync except busy ones
func (h *Handler) SyncCompleted(res engine.SyncResult) {
	if res.Busy {
		return
	}

	h.mu.Lock()
	h.stats.Syncs++
	if !res.Success {
		h.stats.FailedSyncs++
	}
	if res.AutoResolvedConflict {
		h.stats.ResolvedSyncs++
	}
	h.mu.Unlock()

	h.logger.Debug("broadcasting sync result", "success", res.Success, "committed", res.Committed)
	h.server.BroadcastData(MessageTypeSyncComplete, res)
}

// PullCompleted broadcasts pulls that received commits or failed; skipped
// polls are too frequent to be worth sending
func (h *Handler) PullCompleted(rep engine.PullReport) {
	if rep.Success && !rep.PulledChanges {
		return
	}

	h.mu.Lock()
	h.stats.Pulls++
	if !rep.Success {
		h.stats.FailedPulls++
	}
	h.stats.CommitsPulled += rep.CommitsReceived
	h.mu.Unlock()

	h.server.BroadcastData(MessageTypePullComplete, rep)
}

// GetStats returns a copy of the counters
func (h *Handler) GetStats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}
