package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/kiranshivaraju/segmenter/internal/controller"
	"github.com/kiranshivaraju/segmenter/internal/handle"
	"github.com/kiranshivaraju/segmenter/internal/segment"
	"github.com/kiranshivaraju/segmenter/pkg/models"
)

const handleTTL = time.Hour

// ErrNotImage is returned for inputs whose content is not an image.
var ErrNotImage = errors.New("not an image")

// JobError reports a job that ended in Failed.
type JobError struct {
	Detail models.ErrorDetail
}

func (e *JobError) Error() string {
	return fmt.Sprintf("segmentation failed (%s): %s", e.Detail.Kind, e.Detail.Message)
}

// predict runs one select, submit and save cycle. An empty out picks the
// result's own name. It returns the written path and its size.
func predict(ctx context.Context, client segment.Client, in, out string) (string, int, error) {
	data, err := os.ReadFile(in)
	if err != nil {
		return "", 0, fmt.Errorf("reading input: %w", err)
	}

	artifact := models.InputArtifact{
		Name:      filepath.Base(in),
		MediaType: mimetype.Detect(data).String(),
		Data:      data,
	}
	if !artifact.IsImage() {
		return "", 0, fmt.Errorf("%s: %w (%s)", in, ErrNotImage, artifact.MediaType)
	}

	registry := handle.NewRegistry(handle.NewMemoryStore(), handleTTL)
	ctrl := controller.New(client, registry)
	defer ctrl.Close(context.WithoutCancel(ctx))

	if err := ctrl.Select(ctx, artifact); err != nil {
		return "", 0, err
	}
	if err := ctrl.Submit(ctx); err != nil {
		return "", 0, err
	}

	switch s := ctrl.State().(type) {
	case models.Succeeded:
		_, blob, err := registry.Open(ctx, s.Result.ID)
		if err != nil {
			return "", 0, fmt.Errorf("opening result: %w", err)
		}
		if out == "" {
			out = s.Result.Name
		}
		if err := os.WriteFile(out, blob, 0o644); err != nil {
			return "", 0, fmt.Errorf("writing result: %w", err)
		}
		return out, len(blob), nil
	case models.Failed:
		return "", 0, &JobError{Detail: s.Detail}
	default:
		return "", 0, fmt.Errorf("job ended in unexpected state %q", s.Status())
	}
}
