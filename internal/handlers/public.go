package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Piyushhbhutoria/memory-wall/internal/guard"
	"github.com/Piyushhbhutoria/memory-wall/internal/platform/httpx"
	"github.com/Piyushhbhutoria/memory-wall/internal/platform/pagination"
	"github.com/Piyushhbhutoria/memory-wall/internal/services"
)

// PublicHandlerDeps bundles the services behind the visitor endpoints.
type PublicHandlerDeps struct {
	Walls      services.WallService
	Memories   services.MemoryService
	Comments   services.CommentService
	Reactions  services.ReactionService
	Media      services.MediaService
	Identities *guard.IdentityGenerator
	Validation ValidationRecorder
}

// PublicHandlers exposes the anonymous visitor endpoints of a wall.
type PublicHandlers struct {
	walls      services.WallService
	memories   services.MemoryService
	comments   services.CommentService
	reactions  services.ReactionService
	media      services.MediaService
	identities *guard.IdentityGenerator
	validation ValidationRecorder
}

// NewPublicHandlers constructs the visitor handlers. Missing services answer 503.
func NewPublicHandlers(deps PublicHandlerDeps) *PublicHandlers {
	identities := deps.Identities
	if identities == nil {
		identities = guard.NewIdentityGenerator(nil)
	}
	return &PublicHandlers{
		walls:      deps.Walls,
		memories:   deps.Memories,
		comments:   deps.Comments,
		reactions:  deps.Reactions,
		media:      deps.Media,
		identities: identities,
		validation: deps.Validation,
	}
}

// Routes registers the visitor endpoints.
func (h *PublicHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/walls/{wallId}", h.getWall)
	r.Get("/walls/{wallId}/memories", h.listMemories)
	r.Post("/walls/{wallId}/memories", h.createMemory)
	r.Post("/walls/{wallId}/media", h.uploadMedia)
	r.Get("/memories/{memoryId}/comments", h.listComments)
	r.Post("/memories/{memoryId}/comments", h.createComment)
	r.Get("/memories/{memoryId}/reactions", h.listReactions)
	r.Post("/memories/{memoryId}/reactions", h.react)
	r.Post("/identity", h.identity)
}

func (h *PublicHandlers) getWall(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.walls == nil {
		writeUnavailable(w, r, "wall")
		return
	}
	wall, err := h.walls.GetWall(ctx, chi.URLParam(r, "wallId"))
	if err != nil {
		writeServiceError(ctx, w, err, h.validation)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildWallPayload(wall, false))
}

func (h *PublicHandlers) listMemories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.memories == nil {
		writeUnavailable(w, r, "memory")
		return
	}
	params, err := pagination.FromRequest(r, pagination.Feed)
	if err != nil {
		writePaginationError(w, r, err)
		return
	}
	page, err := h.memories.ListMemories(ctx, chi.URLParam(r, "wallId"), services.Pagination{
		PageSize:  params.PageSize,
		PageToken: params.PageToken,
	})
	if err != nil {
		writeServiceError(ctx, w, err, h.validation)
		return
	}
	items := make([]memoryPayload, 0, len(page.Items))
	for _, memory := range page.Items {
		items = append(items, buildMemoryPayload(memory))
	}
	httpx.WriteJSON(w, http.StatusOK, memoryListResponse{Items: items, NextPageToken: page.NextPageToken})
}

type createMemoryRequest struct {
	guard.CreateMemoryRequest
	Fingerprint string `json:"fingerprint"`
}

func (h *PublicHandlers) createMemory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.memories == nil {
		writeUnavailable(w, r, "memory")
		return
	}
	var req createMemoryRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	memory, err := h.memories.CreateMemory(ctx, services.CreateMemoryCommand{
		WallID:      chi.URLParam(r, "wallId"),
		Fingerprint: resolveFingerprint(r, req.Fingerprint, h.identities),
		Request:     req.CreateMemoryRequest,
	})
	if err != nil {
		writeServiceError(ctx, w, err, h.validation)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, buildMemoryPayload(memory))
}

func (h *PublicHandlers) listComments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.comments == nil {
		writeUnavailable(w, r, "comment")
		return
	}
	comments, err := h.comments.ListComments(ctx, chi.URLParam(r, "memoryId"))
	if err != nil {
		writeServiceError(ctx, w, err, h.validation)
		return
	}
	items := make([]commentPayload, 0, len(comments))
	for _, comment := range comments {
		items = append(items, buildCommentPayload(comment))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

type createCommentRequest struct {
	guard.CreateCommentRequest
	Fingerprint string `json:"fingerprint"`
}

func (h *PublicHandlers) createComment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.comments == nil {
		writeUnavailable(w, r, "comment")
		return
	}
	var req createCommentRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	comment, err := h.comments.CreateComment(ctx, services.CreateCommentCommand{
		MemoryID:    chi.URLParam(r, "memoryId"),
		Fingerprint: resolveFingerprint(r, req.Fingerprint, h.identities),
		Request:     req.CreateCommentRequest,
	})
	if err != nil {
		writeServiceError(ctx, w, err, h.validation)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, buildCommentPayload(comment))
}

func (h *PublicHandlers) listReactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reactions == nil {
		writeUnavailable(w, r, "reaction")
		return
	}
	counts, err := h.reactions.ListReactions(ctx, chi.URLParam(r, "memoryId"))
	if err != nil {
		writeServiceError(ctx, w, err, h.validation)
		return
	}
	items := make([]reactionCountPayload, 0, len(counts))
	for _, count := range counts {
		items = append(items, reactionCountPayload{Emoji: count.Emoji, Count: count.Count})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

type createReactionRequest struct {
	guard.CreateReactionRequest
	Fingerprint string `json:"fingerprint"`
}

func (h *PublicHandlers) react(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reactions == nil {
		writeUnavailable(w, r, "reaction")
		return
	}
	var req createReactionRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	reaction, created, err := h.reactions.React(ctx, services.ReactCommand{
		MemoryID:    chi.URLParam(r, "memoryId"),
		Fingerprint: resolveFingerprint(r, req.Fingerprint, h.identities),
		Request:     req.CreateReactionRequest,
	})
	if err != nil {
		writeServiceError(ctx, w, err, h.validation)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httpx.WriteJSON(w, status, reactionPayload{
		ID:        reaction.ID,
		MemoryID:  reaction.MemoryID,
		Emoji:     reaction.Emoji,
		CreatedAt: formatTime(reaction.CreatedAt),
	})
}

// identity answers the token the visitor should send as X-Wall-Fingerprint. A posted environment
// takes precedence over the request headers.
func (h *PublicHandlers) identity(w http.ResponseWriter, r *http.Request) {
	env := guard.EnvironmentFromRequest(r)
	if body, err := readLimitedBody(r, maxJSONBodySize); err == nil {
		var posted guard.Environment
		if err := json.Unmarshal(body, &posted); err != nil {
			httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
			return
		}
		env = posted
	} else if errors.Is(err, errBodyTooLarge) {
		httpx.WriteError(r.Context(), w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"fingerprint": h.identities.Generate(env)})
}

func writeUnavailable(w http.ResponseWriter, r *http.Request, name string) {
	httpx.WriteError(r.Context(), w, httpx.NewError(name+"_service_unavailable", name+" service unavailable", http.StatusServiceUnavailable))
}

func writePaginationError(w http.ResponseWriter, r *http.Request, err error) {
	message := "invalid pagination parameters"
	if errors.Is(err, pagination.ErrInvalidPageToken) {
		message = "invalid pageToken"
	} else if errors.Is(err, pagination.ErrInvalidPageSize) {
		message = strings.TrimPrefix(err.Error(), "pagination: ")
	}
	httpx.WriteError(r.Context(), w, httpx.NewError("invalid_input", message, http.StatusBadRequest))
}
