package handlers

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Piyushhbhutoria/memory-wall/internal/guard"
	"github.com/Piyushhbhutoria/memory-wall/internal/platform/httpx"
	"github.com/Piyushhbhutoria/memory-wall/internal/services"
)

const (
	multipartOverhead  = 1 << 20
	multipartMemoryCap = 8 << 20
)

// uploadMedia accepts a multipart form with file, fingerprint and an optional wallId that must
// match the path.
func (h *PublicHandlers) uploadMedia(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.media == nil {
		writeUnavailable(w, r, "media")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, guard.MaxFileSize+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemoryCap); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeServiceError(ctx, w, &guard.ValidationError{Field: "file", Reason: guard.ReasonFileTooLarge}, h.validation)
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "expected multipart form data", http.StatusBadRequest))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	wallID := chi.URLParam(r, "wallId")
	if formWall := strings.TrimSpace(r.FormValue("wallId")); formWall != "" && formWall != wallID {
		writeServiceError(ctx, w, &guard.ValidationError{Field: "wallId", Reason: "wallId does not match the upload path"}, h.validation)
		return
	}

	cmd := services.UploadMediaCommand{
		WallID:      wallID,
		Fingerprint: resolveFingerprint(r, r.FormValue("fingerprint"), h.identities),
	}

	file, header, err := r.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		// Body stays nil; the service reports the missing file.
	case err != nil:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unreadable file part", http.StatusBadRequest))
		return
	default:
		defer file.Close()
		cmd.Body = file
		cmd.FileName = header.Filename
		cmd.Size = header.Size
		cmd.ContentType = partContentType(header)
	}

	media, err := h.media.UploadMedia(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err, h.validation)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, uploadPayload{
		URL:        media.URL,
		Path:       media.Path,
		MemoryType: media.MemoryType,
		MediaType:  media.MediaType,
		Size:       media.Size,
	})
}

func partContentType(header *multipart.FileHeader) string {
	if header == nil {
		return ""
	}
	return header.Header.Get("Content-Type")
}
