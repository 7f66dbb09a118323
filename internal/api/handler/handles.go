package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/segmenter/internal/api/response"
	"github.com/kiranshivaraju/segmenter/internal/handle"
	"github.com/kiranshivaraju/segmenter/pkg/models"
)

// HandleOpener resolves a handle ID to its bytes.
type HandleOpener interface {
	Open(ctx context.Context, id uuid.UUID) (models.Handle, []byte, error)
}

var _ HandleOpener = (*handle.Registry)(nil)

// NewHandleHandler returns an http.HandlerFunc for GET /api/v1/handles/{handleID}.
func NewHandleHandler(o HandleOpener) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "handleID"))
		if err != nil {
			response.Error(w, http.StatusNotFound, "HANDLE_NOT_FOUND", "Handle not found", nil)
			return
		}

		h, data, err := o.Open(r.Context(), id)
		if err != nil {
			switch {
			case errors.Is(err, handle.ErrHandleNotFound), errors.Is(err, handle.ErrHandleExpired):
				response.Error(w, http.StatusNotFound, "HANDLE_NOT_FOUND", "Handle not found", nil)
			default:
				slog.ErrorContext(r.Context(), "open handle", "handle_id", id, "error", err)
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"An unexpected error occurred", nil)
			}
			return
		}

		var attachment string
		if download, _ := strconv.ParseBool(r.URL.Query().Get("download")); download {
			attachment = h.Name
		}
		response.Blob(w, h.MediaType, attachment, data)
	}
}
