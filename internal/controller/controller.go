// Package controller implements the submission controller: it holds the
// selected image and its preview, runs at most one segmentation job at a
// time and exposes the job's outcome as a JobState.
//
// The controller does not log; callers observe it through State and Snapshot.
package controller

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/kiranshivaraju/segmenter/internal/segment"
	"github.com/kiranshivaraju/segmenter/pkg/models"
)

var (
	// ErrNoSelection is returned by Submit when no image is selected.
	ErrNoSelection = errors.New("no image selected")
	// ErrJobInFlight is returned by Submit while a job is running.
	ErrJobInFlight = errors.New("segmentation job already running")
	// ErrSuperseded is returned when a newer Select or Submit made an
	// operation's outcome stale. The outcome was discarded.
	ErrSuperseded = errors.New("superseded by a newer selection")
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("controller closed")
)

const (
	resultBaseName   = "segmented"
	defaultResultExt = ".png"
)

// Handles mints and releases viewable handles. *handle.Registry satisfies it.
type Handles interface {
	Acquire(ctx context.Context, slot models.Slot, name, mediaType string, data []byte) (models.Handle, error)
	Release(ctx context.Context, h models.Handle)
}

// Selection describes the currently selected image without exposing its bytes.
type Selection struct {
	Name      string `json:"name"`
	MediaType string `json:"media_type"`
	Size      int    `json:"size"`
}

// Snapshot is a consistent view of the controller for the presentation layer.
type Snapshot struct {
	State     models.JobState
	Selection *Selection
	Preview   models.Handle
	CanSubmit bool
}

// Controller tracks one selection and one job. All methods are safe for
// concurrent use; Submit blocks its caller while the request is outstanding
// without holding the lock, so Select and State stay available.
type Controller struct {
	client  segment.Client
	handles Handles

	mu       sync.Mutex
	artifact *models.InputArtifact
	preview  models.Handle
	state    models.JobState
	// seq increases on every Select, Submit and Close. A job outcome is
	// applied only if seq still equals the value taken when it started.
	seq    uint64
	closed bool
}

// New creates an idle controller.
func New(client segment.Client, handles Handles) *Controller {
	return &Controller{
		client:  client,
		handles: handles,
		state:   models.Idle{},
	}
}

// Select makes artifact the current input. The previous preview and any
// result are released, the state returns to Idle and an outstanding job's
// outcome will be discarded. The artifact is expected to be an image already.
func (c *Controller) Select(ctx context.Context, artifact models.InputArtifact) error {
	artifact.Data = bytes.Clone(artifact.Data)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	stale := c.resetLocked()
	seq := c.seq
	c.mu.Unlock()

	c.release(ctx, stale)

	preview, err := c.handles.Acquire(ctx, models.SlotPreview, artifact.Name, artifact.MediaType, artifact.Data)
	if err != nil {
		return fmt.Errorf("registering preview: %w", err)
	}

	c.mu.Lock()
	if c.closed || c.seq != seq {
		closed := c.closed
		c.mu.Unlock()
		c.handles.Release(ctx, preview)
		if closed {
			return ErrClosed
		}
		return ErrSuperseded
	}
	c.artifact = &artifact
	c.preview = preview
	c.mu.Unlock()

	return nil
}

// Submit sends the selected image to the segmentation service and waits for
// the outcome, which is reported through State as Succeeded or Failed.
// It returns nil once the job has settled, ErrNoSelection, ErrJobInFlight or
// ErrClosed without touching any state, and ErrSuperseded if the selection
// changed while the request was outstanding.
func (c *Controller) Submit(ctx context.Context) error {
	job, err := c.begin()
	if err != nil {
		return err
	}
	return c.finish(ctx, job)
}

// Start is Submit without the wait: the preconditions are checked and the
// state moves to Running before it returns. The channel receives what Submit
// would have returned once the job settles.
func (c *Controller) Start(ctx context.Context) (<-chan error, error) {
	job, err := c.begin()
	if err != nil {
		return nil, err
	}
	done := make(chan error, 1)
	go func() {
		done <- c.finish(ctx, job)
	}()
	return done, nil
}

type job struct {
	seq      uint64
	artifact models.InputArtifact
	prior    models.Handle
}

func (c *Controller) begin() (job, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return job{}, ErrClosed
	}
	if c.artifact == nil {
		return job{}, ErrNoSelection
	}
	var prior models.Handle
	switch s := c.state.(type) {
	case models.Running:
		return job{}, ErrJobInFlight
	case models.Succeeded:
		prior = s.Result
	}
	c.seq++
	c.state = models.Running{Seq: c.seq}
	return job{seq: c.seq, artifact: *c.artifact, prior: prior}, nil
}

func (c *Controller) finish(ctx context.Context, j job) error {
	c.handles.Release(ctx, j.prior)

	next := c.run(ctx, j.seq, j.artifact)
	if next == nil {
		return c.staleErr()
	}

	c.mu.Lock()
	if c.closed || c.seq != j.seq {
		c.mu.Unlock()
		if s, ok := next.(models.Succeeded); ok {
			c.handles.Release(ctx, s.Result)
		}
		return c.staleErr()
	}
	c.state = next
	c.mu.Unlock()

	return nil
}

// run performs the request and turns its outcome into the next state.
// It returns nil when the job went stale before a result handle was minted.
func (c *Controller) run(ctx context.Context, seq uint64, artifact models.InputArtifact) models.JobState {
	pred, err := c.client.Predict(ctx, artifact)
	if err != nil {
		return models.Failed{Seq: seq, Detail: detailFor(err)}
	}

	if !c.current(seq) {
		return nil
	}

	result, err := c.handles.Acquire(ctx, models.SlotResult, resultName(pred.MediaType), pred.MediaType, pred.Data)
	if err != nil {
		return models.Failed{Seq: seq, Detail: models.ErrorDetail{
			Kind:    models.ErrorKindResource,
			Message: err.Error(),
		}}
	}
	return models.Succeeded{Seq: seq, Result: result}
}

// State returns the current job state.
func (c *Controller) State() models.JobState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Preview returns the preview handle of the current selection.
func (c *Controller) Preview() (models.Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.preview, !c.preview.IsZero()
}

// Snapshot returns state, selection and preview taken under one lock.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		State:   c.state,
		Preview: c.preview,
	}
	if c.artifact != nil {
		snap.Selection = &Selection{
			Name:      c.artifact.Name,
			MediaType: c.artifact.MediaType,
			Size:      c.artifact.Size(),
		}
	}
	_, running := c.state.(models.Running)
	snap.CanSubmit = !c.closed && c.artifact != nil && !running
	return snap
}

// Close releases the preview and any result. An outstanding job runs to
// completion but its outcome is discarded. Close is idempotent.
func (c *Controller) Close(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	stale := c.resetLocked()
	c.mu.Unlock()

	c.release(ctx, stale)
}

// resetLocked clears the selection and result, returns to Idle and starts a
// new generation. It returns the handles the caller must release.
func (c *Controller) resetLocked() []models.Handle {
	stale := []models.Handle{c.preview}
	if s, ok := c.state.(models.Succeeded); ok {
		stale = append(stale, s.Result)
	}
	c.artifact = nil
	c.preview = models.Handle{}
	c.state = models.Idle{}
	c.seq++
	return stale
}

func (c *Controller) release(ctx context.Context, hs []models.Handle) {
	for _, h := range hs {
		c.handles.Release(ctx, h)
	}
}

func (c *Controller) current(seq uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && c.seq == seq
}

func (c *Controller) staleErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return ErrSuperseded
}

// detailFor classifies a Predict error. Anything without a status code means
// no response was received.
func detailFor(err error) models.ErrorDetail {
	var statusErr *segment.StatusError
	if errors.As(err, &statusErr) {
		return models.ErrorDetail{
			Kind:    models.ErrorKindServer,
			Message: fmt.Sprintf("server error %d", statusErr.Code),
		}
	}
	return models.ErrorDetail{
		Kind:    models.ErrorKindTransport,
		Message: err.Error(),
	}
}

// resultName picks the download name for a result of the given media type.
func resultName(mediaType string) string {
	ext := defaultResultExt
	if m := mimetype.Lookup(mediaType); m != nil && m.Extension() != "" {
		ext = m.Extension()
	}
	return resultBaseName + ext
}
