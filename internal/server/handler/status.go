package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// FeedSource reports the freshness of the live book views.
type FeedSource interface {
	Snapshot(venue domain.Venue) (domain.OrderbookSnapshot, bool)
	Age(venue domain.Venue) time.Duration
	Rejected(venue domain.Venue) int64
}

// EngineSource reports the coordinator's operational state.
type EngineSource interface {
	Stuck() bool
}

// StatusHandler serves the engine status endpoint.
type StatusHandler struct {
	symbol  string
	dryRun  bool
	started time.Time
	feeds   FeedSource
	engine  EngineSource
}

// NewStatusHandler creates a StatusHandler. started is the process start time
// used for the uptime field.
func NewStatusHandler(symbol string, dryRun bool, started time.Time, feeds FeedSource, engine EngineSource) *StatusHandler {
	return &StatusHandler{symbol: symbol, dryRun: dryRun, started: started, feeds: feeds, engine: engine}
}

type venueStatus struct {
	Connected  bool   `json:"connected"`
	AgeMs      int64  `json:"age_ms"`
	UpdateID   int64  `json:"update_id"`
	Rejected   int64  `json:"rejected_snapshots"`
	CapturedAt string `json:"captured_at,omitempty"`
}

// GetStatus responds with uptime, per-venue feed freshness, and the stuck
// flag. GET /api/v1/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	venues := map[string]venueStatus{}
	for _, v := range []domain.Venue{domain.VenueMEXC, domain.VenueBingX} {
		vs := venueStatus{
			AgeMs:    h.feeds.Age(v).Milliseconds(),
			Rejected: h.feeds.Rejected(v),
		}
		if snap, ok := h.feeds.Snapshot(v); ok {
			vs.Connected = true
			vs.UpdateID = snap.UpdateID
			vs.CapturedAt = snap.CapturedAt.UTC().Format(time.RFC3339Nano)
		}
		venues[string(v)] = vs
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"symbol":         h.symbol,
		"dry_run":        h.dryRun,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"stuck":          h.engine.Stuck(),
		"venues":         venues,
	})
}
