package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Piyushhbhutoria/memory-wall/internal/platform/httpx"
	"github.com/Piyushhbhutoria/memory-wall/internal/services"
)

const maxExpiryBatch = 1000

// WindowPruner drops idle rate limit windows.
type WindowPruner interface {
	Prune(ctx context.Context) (int, error)
}

// MaintenanceHandlers exposes the internal jobs triggered by Cloud Scheduler.
type MaintenanceHandlers struct {
	walls   services.WallService
	limiter WindowPruner
	batch   int
	clock   func() time.Time
}

// NewMaintenanceHandlers constructs the internal job handlers. batch bounds each expiry run.
func NewMaintenanceHandlers(walls services.WallService, limiter WindowPruner, batch int, clock func() time.Time) *MaintenanceHandlers {
	if clock == nil {
		clock = time.Now
	}
	return &MaintenanceHandlers{walls: walls, limiter: limiter, batch: batch, clock: clock}
}

// Routes registers the /internal/maintenance endpoints.
func (h *MaintenanceHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/maintenance/expire-walls", h.expireWalls)
	r.Post("/maintenance/prune-rate-limits", h.pruneRateLimits)
}

func (h *MaintenanceHandlers) expireWalls(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.walls == nil {
		writeUnavailable(w, r, "wall")
		return
	}
	batch := h.batch
	if raw := r.URL.Query().Get("batch"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_input", "batch must be a positive integer", http.StatusBadRequest))
			return
		}
		batch = min(value, maxExpiryBatch)
	}

	expired, err := h.walls.ExpireWalls(ctx, h.clock().UTC(), batch)
	if err != nil {
		writeServiceError(ctx, w, err, nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]int{"expired": expired})
}

func (h *MaintenanceHandlers) pruneRateLimits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.limiter == nil {
		writeUnavailable(w, r, "rate_limit")
		return
	}
	pruned, err := h.limiter.Prune(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("prune_failed", err.Error(), http.StatusServiceUnavailable))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]int{"pruned": pruned})
}
