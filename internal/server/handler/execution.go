package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// ExecutionHandler serves the append-only execution log over HTTP.
type ExecutionHandler struct {
	store  domain.ExecutionStore
	logger *slog.Logger
}

// NewExecutionHandler creates an ExecutionHandler backed by the given store.
func NewExecutionHandler(store domain.ExecutionStore, logger *slog.Logger) *ExecutionHandler {
	return &ExecutionHandler{store: store, logger: logger}
}

// ListExecutions responds with the most recent execution records.
// GET /api/v1/executions?limit=N
func (h *ExecutionHandler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	recs, err := h.store.ListRecent(r.Context(), opts.Limit)
	if err != nil {
		logHandler(h.logger, "executions").ErrorContext(r.Context(), "list failed",
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"executions": recs,
		"count":      len(recs),
	})
}

// GetExecution responds with a single execution record by id.
// GET /api/v1/executions/{id}
func (h *ExecutionHandler) GetExecution(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing execution id")
		return
	}

	rec, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "execution not found")
			return
		}
		logHandler(h.logger, "executions").ErrorContext(r.Context(), "get failed",
			slog.String("execution_id", id),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load execution")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}
