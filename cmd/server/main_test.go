package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kiranshivaraju/segmenter/internal/config"
	"github.com/kiranshivaraju/segmenter/internal/handle"
	"github.com/kiranshivaraju/segmenter/internal/segment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ─── fakes ──────────────────────────────────────────────────────────────────

type testService struct {
	readyErr error
}

func (s *testService) Ready(_ context.Context) error { return s.readyErr }

type testStore struct {
	pingErr error
}

func (s *testStore) Ping(_ context.Context) error { return s.pingErr }

var _ healthChecker = (*segment.HTTPClient)(nil)
var _ pinger = (*handle.Registry)(nil)

// ─── health handler tests ───────────────────────────────────────────────────

func TestHealthHandler_AllOK(t *testing.T) {
	h := healthHandler(&testService{}, &testStore{})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	data := body["data"].(map[string]any)
	assert.Equal(t, "ok", data["status"])
	services := data["services"].(map[string]any)
	assert.Equal(t, "ok", services["segmentation_service"])
	assert.Equal(t, "ok", services["handle_store"])
}

func TestHealthHandler_ServiceDegraded(t *testing.T) {
	h := healthHandler(&testService{readyErr: segment.ErrServiceUnreachable}, &testStore{})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "DEGRADED", errObj["code"])
	details := errObj["details"].(map[string]any)
	assert.Equal(t, "degraded", details["segmentation_service"])
	assert.Equal(t, "ok", details["handle_store"])
}

func TestHealthHandler_StoreDegraded(t *testing.T) {
	h := healthHandler(&testService{}, &testStore{pingErr: errors.New("redis down")})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealthHandler_AgainstLiveService(t *testing.T) {
	svc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"message":"ok"}`))
	}))
	defer svc.Close()

	registry := handle.NewRegistry(handle.NewMemoryStore(), time.Minute)
	h := healthHandler(segment.NewHTTPClient(svc.URL, time.Second), registry)

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

// ─── openStore tests ────────────────────────────────────────────────────────

func TestOpenStore_Memory(t *testing.T) {
	store, closeStore, err := openStore(context.Background(), config.HandleConfig{Store: config.HandleStoreMemory})
	require.NoError(t, err)
	defer closeStore()

	assert.IsType(t, &handle.MemoryStore{}, store)
}

func TestOpenStore_InvalidRedisURL(t *testing.T) {
	_, _, err := openStore(context.Background(), config.HandleConfig{
		Store:    config.HandleStoreRedis,
		RedisURL: "not-a-url",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create redis store")
}

func TestOpenStore_UnreachableRedis(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, _, err := openStore(ctx, config.HandleConfig{
		Store:    config.HandleStoreRedis,
		RedisURL: "redis://127.0.0.1:1",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping redis")
}

// ─── run() config validation tests ──────────────────────────────────────────

func TestRun_FailsOnInvalidConfig(t *testing.T) {
	t.Setenv("SEGMENT_API_URL", "ftp://localhost:8000")

	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestRun_FailsOnRedisWithoutURL(t *testing.T) {
	t.Setenv("HANDLE_STORE", "redis")
	t.Setenv("REDIS_URL", "")

	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestRun_FailsOnUnreachableRedis(t *testing.T) {
	t.Setenv("HANDLE_STORE", "redis")
	t.Setenv("REDIS_URL", "redis://127.0.0.1:1")
	t.Setenv("SEGMENT_API_URL", "http://localhost:8000")

	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping redis")
}

// ─── shutdown timeout constant test ─────────────────────────────────────────

func TestShutdownTimeout(t *testing.T) {
	assert.Equal(t, 30*time.Second, shutdownTimeout)
}
