package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gabriel-vasile/mimetype"
	"github.com/kiranshivaraju/segmenter/internal/api/response"
	"github.com/kiranshivaraju/segmenter/internal/controller"
	"github.com/kiranshivaraju/segmenter/pkg/models"
)

const (
	// FileField is the multipart field carrying the uploaded image.
	FileField = "file"

	defaultUploadName = "upload"
	// multipartOverhead bounds the body bytes spent on boundaries, headers
	// and ignored fields around the file part.
	multipartOverhead = 1 << 20
)

var (
	errUploadTooLarge = errors.New("upload too large")
	errMissingFile    = errors.New("file part is required")
)

// NewSelectHandler returns an http.HandlerFunc for POST /api/v1/selection.
func NewSelectHandler(s Session, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)

		name, data, err := readUpload(r, maxBytes)
		if err != nil {
			switch {
			case errors.Is(err, errUploadTooLarge):
				response.Error(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE",
					"The image exceeds the upload limit", map[string]int64{"max_bytes": maxBytes})
			case errors.Is(err, errMissingFile):
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"file is required", nil)
			default:
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"Expected a multipart/form-data body", nil)
			}
			return
		}

		artifact := models.InputArtifact{
			Name:      name,
			MediaType: mimetype.Detect(data).String(),
			Data:      data,
		}
		if !artifact.IsImage() {
			response.Error(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE",
				"Only image files can be selected", map[string]string{"media_type": artifact.MediaType})
			return
		}

		if err := s.Select(r.Context(), artifact); err != nil {
			switch {
			case errors.Is(err, controller.ErrSuperseded):
				response.Error(w, http.StatusConflict, "SELECTION_SUPERSEDED",
					"A newer selection replaced this one", nil)
			case errors.Is(err, controller.ErrClosed):
				response.Error(w, http.StatusServiceUnavailable, "SHUTTING_DOWN",
					"The server is shutting down", nil)
			default:
				slog.ErrorContext(r.Context(), "select image", "error", err)
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"An unexpected error occurred", nil)
			}
			return
		}

		response.JSON(w, newStateView(s.Snapshot()))
	}
}

// readUpload returns the name and bytes of the first FileField part.
func readUpload(r *http.Request, maxBytes int64) (string, []byte, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return "", nil, err
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return "", nil, errMissingFile
		}
		if err != nil {
			return "", nil, tooLarge(err)
		}
		if part.FormName() != FileField {
			part.Close()
			continue
		}

		data, err := io.ReadAll(io.LimitReader(part, maxBytes+1))
		part.Close()
		if err != nil {
			return "", nil, tooLarge(err)
		}
		if int64(len(data)) > maxBytes {
			return "", nil, errUploadTooLarge
		}

		name := part.FileName()
		if name == "" {
			name = defaultUploadName
		}
		return name, data, nil
	}
}

func tooLarge(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return errUploadTooLarge
	}
	return err
}
