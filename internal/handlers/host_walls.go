package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Piyushhbhutoria/memory-wall/internal/guard"
	"github.com/Piyushhbhutoria/memory-wall/internal/platform/auth"
	"github.com/Piyushhbhutoria/memory-wall/internal/platform/httpx"
	"github.com/Piyushhbhutoria/memory-wall/internal/platform/pagination"
	"github.com/Piyushhbhutoria/memory-wall/internal/services"
)

// HostWallHandlers exposes wall management for signed-in hosts.
type HostWallHandlers struct {
	authn      *auth.Authenticator
	walls      services.WallService
	validation ValidationRecorder
}

// NewHostWallHandlers constructs handlers enforcing Firebase authentication before invoking the
// wall service.
func NewHostWallHandlers(authn *auth.Authenticator, walls services.WallService, validation ValidationRecorder) *HostWallHandlers {
	return &HostWallHandlers{
		authn:      authn,
		walls:      walls,
		validation: validation,
	}
}

// Routes registers the /host/walls endpoints.
func (h *HostWallHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireHost())
	}
	r.Post("/walls", h.createWall)
	r.Get("/walls", h.listWalls)
	r.Patch("/walls/{wallId}", h.updateWall)
	r.Delete("/walls/{wallId}", h.deleteWall)
}

func (h *HostWallHandlers) createWall(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req guard.CreateWallRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	wall, err := h.walls.CreateWall(ctx, services.CreateWallCommand{HostUID: identity.UID, Request: req})
	if err != nil {
		writeServiceError(ctx, w, err, h.validation)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, buildWallPayload(wall, true))
}

func (h *HostWallHandlers) listWalls(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	params, err := pagination.FromRequest(r, pagination.Feed)
	if err != nil {
		writePaginationError(w, r, err)
		return
	}
	page, err := h.walls.ListHostWalls(ctx, identity.UID, services.Pagination{
		PageSize:  params.PageSize,
		PageToken: params.PageToken,
	})
	if err != nil {
		writeServiceError(ctx, w, err, h.validation)
		return
	}
	items := make([]wallPayload, 0, len(page.Items))
	for _, wall := range page.Items {
		items = append(items, buildWallPayload(wall, true))
	}
	httpx.WriteJSON(w, http.StatusOK, wallListResponse{Items: items, NextPageToken: page.NextPageToken})
}

func (h *HostWallHandlers) updateWall(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req guard.UpdateWallRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	wall, err := h.walls.UpdateWall(ctx, services.UpdateWallCommand{
		ActorUID: identity.UID,
		IsAdmin:  identity.IsAdmin(),
		WallID:   chi.URLParam(r, "wallId"),
		Request:  req,
	})
	if err != nil {
		writeServiceError(ctx, w, err, h.validation)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildWallPayload(wall, true))
}

func (h *HostWallHandlers) deleteWall(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	err := h.walls.DeleteWall(ctx, services.DeleteWallCommand{
		ActorUID: identity.UID,
		IsAdmin:  identity.IsAdmin(),
		WallID:   chi.URLParam(r, "wallId"),
	})
	if err != nil {
		writeServiceError(ctx, w, err, h.validation)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HostWallHandlers) identity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	if h.walls == nil {
		writeUnavailable(w, r, "wall")
		return nil, false
	}
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}
