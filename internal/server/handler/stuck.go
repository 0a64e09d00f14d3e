package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// StuckHandler serves stuck-position markers and lets the operator clear
// them. Trading on the affected pair stays halted until every open marker is
// cleared.
type StuckHandler struct {
	store  domain.StuckPositionStore
	logger *slog.Logger
}

// NewStuckHandler creates a StuckHandler backed by the given store.
func NewStuckHandler(store domain.StuckPositionStore, logger *slog.Logger) *StuckHandler {
	return &StuckHandler{store: store, logger: logger}
}

// ListStuck responds with all open stuck-position markers.
// GET /api/v1/stuck
func (h *StuckHandler) ListStuck(w http.ResponseWriter, r *http.Request) {
	positions, err := h.store.ListOpen(r.Context(), r.URL.Query().Get("symbol"))
	if err != nil {
		logHandler(h.logger, "stuck").ErrorContext(r.Context(), "list failed",
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list stuck positions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stuck_positions": positions,
		"count":           len(positions),
	})
}

// ClearStuck marks one stuck-position marker as cleared.
// POST /api/v1/stuck/{id}/clear
func (h *StuckHandler) ClearStuck(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing stuck position id")
		return
	}

	if err := h.store.Clear(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "stuck position not found")
			return
		}
		logHandler(h.logger, "stuck").ErrorContext(r.Context(), "clear failed",
			slog.String("stuck_id", id),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to clear stuck position")
		return
	}

	logHandler(h.logger, "stuck").InfoContext(r.Context(), "stuck position cleared by operator",
		slog.String("stuck_id", id))
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared", "id": id})
}
