package segment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/kiranshivaraju/segmenter/pkg/models"
)

// Sentinel errors for segmentation service failures.
// ErrServiceUnreachable and ErrServiceTimeout mean no HTTP response arrived.
var (
	ErrServiceUnreachable = errors.New("segmentation service unreachable")
	ErrServiceTimeout     = errors.New("segmentation service timeout")
	ErrServerStatus       = errors.New("segmentation service error status")
)

const (
	predictPath = "/predict"
	// FormField is the multipart field the service reads the image from.
	FormField = "file"

	defaultFileName  = "upload"
	defaultMediaType = "image/png"
)

// StatusError reports a response with a non-success status code.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server error %d", e.Code)
}

// Is lets errors.Is(err, ErrServerStatus) match any StatusError.
func (e *StatusError) Is(target error) bool {
	return target == ErrServerStatus
}

// Prediction is the annotated image returned by the service, taken verbatim.
type Prediction struct {
	MediaType string
	Data      []byte
}

// Client is the interface for talking to the segmentation service.
type Client interface {
	Predict(ctx context.Context, artifact models.InputArtifact) (Prediction, error)
	Ready(ctx context.Context) error
}

// HTTPClient implements Client over the service's HTTP API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a new segmentation service client. A zero timeout
// leaves requests bounded only by their context.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Predict uploads the artifact and returns the annotated image.
// Exactly one request is issued; there are no retries.
func (c *HTTPClient) Predict(ctx context.Context, artifact models.InputArtifact) (Prediction, error) {
	body, contentType, err := encodeArtifact(artifact)
	if err != nil {
		return Prediction{}, fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+predictPath, body)
	if err != nil {
		return Prediction{}, fmt.Errorf("%w: building request: %v", ErrServiceUnreachable, err)
	}
	httpReq.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Prediction{}, classifyError(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Prediction{}, &StatusError{Code: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Prediction{}, classifyError(err)
	}

	slog.DebugContext(ctx, "segmentation received",
		slog.Int("status", resp.StatusCode),
		slog.Int("bytes", len(data)),
		slog.Duration("elapsed", time.Since(start)))

	return Prediction{
		MediaType: resultMediaType(resp.Header.Get("Content-Type"), data),
		Data:      data,
	}, nil
}

// Ready probes the service root, which answers 200 once the API is up.
func (c *HTTPClient) Ready(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return classifyError(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: service not ready", &StatusError{Code: resp.StatusCode})
	}
	return nil
}

// IsTransport reports whether err means the request never produced a response.
func IsTransport(err error) bool {
	return errors.Is(err, ErrServiceUnreachable) || errors.Is(err, ErrServiceTimeout)
}

// encodeArtifact builds a multipart body with a single file part.
func encodeArtifact(artifact models.InputArtifact) (*bytes.Buffer, string, error) {
	name := artifact.Name
	if name == "" {
		name = defaultFileName
	}
	mediaType := artifact.MediaType
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{
		"name":     FormField,
		"filename": name,
	}))
	header.Set("Content-Type", mediaType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(artifact.Data); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body, writer.FormDataContentType(), nil
}

// resultMediaType trusts a specific Content-Type header and sniffs otherwise.
func resultMediaType(header string, data []byte) string {
	if mt, _, err := mime.ParseMediaType(header); err == nil && mt != "application/octet-stream" {
		return mt
	}
	if len(data) == 0 {
		return defaultMediaType
	}
	detected := mimetype.Detect(data)
	if detected.Is("application/octet-stream") {
		return defaultMediaType
	}
	return detected.String()
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrServiceTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrServiceTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrServiceUnreachable, err)
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
