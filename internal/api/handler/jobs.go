package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/segmenter/internal/api/response"
	"github.com/kiranshivaraju/segmenter/internal/controller"
)

// NewSubmitHandler returns an http.HandlerFunc for POST /api/v1/jobs. The job
// outlives the request; clients poll GET /api/v1/state for its outcome.
func NewSubmitHandler(s Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithoutCancel(r.Context())

		done, err := s.Start(ctx)
		if err != nil {
			switch {
			case errors.Is(err, controller.ErrNoSelection):
				response.Error(w, http.StatusConflict, "NO_SELECTION",
					"Select an image before submitting", nil)
			case errors.Is(err, controller.ErrJobInFlight):
				response.Error(w, http.StatusConflict, "JOB_IN_FLIGHT",
					"A segmentation job is already running", nil)
			case errors.Is(err, controller.ErrClosed):
				response.Error(w, http.StatusServiceUnavailable, "SHUTTING_DOWN",
					"The server is shutting down", nil)
			default:
				slog.ErrorContext(r.Context(), "start job", "error", err)
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"An unexpected error occurred", nil)
			}
			return
		}

		go func() {
			if err := <-done; err != nil {
				slog.InfoContext(ctx, "segmentation outcome discarded", "reason", err)
				return
			}
			slog.DebugContext(ctx, "segmentation job settled")
		}()

		response.Accepted(w, newStateView(s.Snapshot()))
	}
}
