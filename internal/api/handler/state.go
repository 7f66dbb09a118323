package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/segmenter/internal/api/response"
	"github.com/kiranshivaraju/segmenter/internal/controller"
	"github.com/kiranshivaraju/segmenter/pkg/models"
)

// HandlesPath is the route prefix under which handle blobs are served.
const HandlesPath = "/api/v1/handles/"

// Session is the part of the submission controller the handlers drive.
type Session interface {
	Select(ctx context.Context, artifact models.InputArtifact) error
	Start(ctx context.Context) (<-chan error, error)
	Snapshot() controller.Snapshot
}

var _ Session = (*controller.Controller)(nil)

// NewStateHandler returns an http.HandlerFunc for GET /api/v1/state.
func NewStateHandler(s Session) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		response.JSON(w, newStateView(s.Snapshot()))
	}
}

type stateView struct {
	Status    models.JobStatus      `json:"status"`
	Seq       uint64                `json:"seq,omitempty"`
	CanSubmit bool                  `json:"can_submit"`
	Selection *controller.Selection `json:"selection"`
	Preview   *handleView           `json:"preview"`
	Result    *handleView           `json:"result"`
	Error     *models.ErrorDetail   `json:"error"`
}

type handleView struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	MediaType   string    `json:"media_type"`
	Size        int       `json:"size"`
	URL         string    `json:"url"`
	DownloadURL string    `json:"download_url,omitempty"`
}

func newStateView(snap controller.Snapshot) stateView {
	v := stateView{
		Status:    snap.State.Status(),
		CanSubmit: snap.CanSubmit,
		Selection: snap.Selection,
	}
	if !snap.Preview.IsZero() {
		v.Preview = newHandleView(snap.Preview, false)
	}

	switch s := snap.State.(type) {
	case models.Running:
		v.Seq = s.Seq
	case models.Succeeded:
		v.Seq = s.Seq
		v.Result = newHandleView(s.Result, true)
	case models.Failed:
		v.Seq = s.Seq
		detail := s.Detail
		v.Error = &detail
	}
	return v
}

func newHandleView(h models.Handle, downloadable bool) *handleView {
	url := HandlesPath + h.ID.String()
	v := &handleView{
		ID:        h.ID,
		Name:      h.Name,
		MediaType: h.MediaType,
		Size:      h.Size,
		URL:       url,
	}
	if downloadable {
		v.DownloadURL = url + "?download=1"
	}
	return v
}
