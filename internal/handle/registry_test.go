package handle_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/segmenter/internal/handle"
	"github.com/kiranshivaraju/segmenter/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingStore rejects writes and counts deletes.
type failingStore struct {
	putErr    error
	deleteErr error
	deletes   int
}

func (s *failingStore) Put(context.Context, uuid.UUID, []byte, time.Duration) error { return s.putErr }
func (s *failingStore) Get(context.Context, uuid.UUID) ([]byte, bool, error)        { return nil, false, nil }
func (s *failingStore) Delete(context.Context, uuid.UUID) error {
	s.deletes++
	return s.deleteErr
}
func (s *failingStore) Ping(context.Context) error { return s.putErr }

func newRegistry() (*handle.Registry, *handle.MemoryStore) {
	store := handle.NewMemoryStore()
	return handle.NewRegistry(store, time.Minute), store
}

func TestAcquire_Open(t *testing.T) {
	reg, _ := newRegistry()
	ctx := context.Background()

	h, err := reg.Acquire(ctx, models.SlotPreview, "cat.png", "image/png", []byte("pixels"))
	require.NoError(t, err)
	assert.False(t, h.IsZero())
	assert.Equal(t, models.SlotPreview, h.Slot)
	assert.Equal(t, "cat.png", h.Name)
	assert.Equal(t, 6, h.Size)
	assert.Equal(t, 1, reg.Live())

	got, data, err := reg.Open(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, h, got)
	assert.Equal(t, []byte("pixels"), data)
}

func TestAcquire_DistinctIDs(t *testing.T) {
	reg, _ := newRegistry()
	ctx := context.Background()

	a, err := reg.Acquire(ctx, models.SlotPreview, "", "image/png", []byte("a"))
	require.NoError(t, err)
	b, err := reg.Acquire(ctx, models.SlotResult, "", "image/png", []byte("b"))
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, reg.Live())
}

func TestRelease_RemovesBlob(t *testing.T) {
	reg, store := newRegistry()
	ctx := context.Background()

	h, err := reg.Acquire(ctx, models.SlotResult, "segmented.png", "image/png", []byte("mask"))
	require.NoError(t, err)

	reg.Release(ctx, h)

	assert.Equal(t, 0, reg.Live())
	assert.Equal(t, 0, store.Len())
	_, _, err = reg.Open(ctx, h.ID)
	assert.ErrorIs(t, err, handle.ErrHandleNotFound)
}

func TestRelease_Idempotent(t *testing.T) {
	reg, store := newRegistry()
	ctx := context.Background()

	keep, err := reg.Acquire(ctx, models.SlotPreview, "", "image/png", []byte("keep"))
	require.NoError(t, err)
	drop, err := reg.Acquire(ctx, models.SlotResult, "", "image/png", []byte("drop"))
	require.NoError(t, err)

	reg.Release(ctx, drop)
	reg.Release(ctx, drop)
	reg.Release(ctx, models.Handle{})
	reg.Release(ctx, models.Handle{ID: uuid.New()})

	assert.Equal(t, 1, reg.Live())
	assert.Equal(t, 1, store.Len())
	_, data, err := reg.Open(ctx, keep.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("keep"), data)
}

func TestRelease_DeletesOnlyOnce(t *testing.T) {
	store := &failingStore{}
	reg := handle.NewRegistry(store, time.Minute)
	ctx := context.Background()

	h, err := reg.Acquire(ctx, models.SlotPreview, "", "image/png", nil)
	require.NoError(t, err)

	reg.Release(ctx, h)
	reg.Release(ctx, h)
	assert.Equal(t, 1, store.deletes)
}

func TestRelease_StoreErrorSwallowed(t *testing.T) {
	store := &failingStore{deleteErr: errors.New("redis down")}
	reg := handle.NewRegistry(store, time.Minute)
	ctx := context.Background()

	h, err := reg.Acquire(ctx, models.SlotPreview, "", "image/png", nil)
	require.NoError(t, err)

	reg.Release(ctx, h)
	assert.Equal(t, 0, reg.Live())
}

func TestRelease_CanceledContextStillDeletes(t *testing.T) {
	reg, store := newRegistry()
	h, err := reg.Acquire(context.Background(), models.SlotPreview, "", "image/png", []byte("x"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	reg.Release(ctx, h)

	assert.Equal(t, 0, store.Len())
}

func TestAcquire_StoreError(t *testing.T) {
	reg := handle.NewRegistry(&failingStore{putErr: errors.New("redis down")}, time.Minute)

	h, err := reg.Acquire(context.Background(), models.SlotResult, "", "image/png", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "result")
	assert.True(t, h.IsZero())
	assert.Equal(t, 0, reg.Live())
}

func TestOpen_Expired(t *testing.T) {
	reg, store := newRegistry()
	ctx := context.Background()

	h, err := reg.Acquire(ctx, models.SlotResult, "", "image/png", []byte("x"))
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, h.ID))

	_, _, err = reg.Open(ctx, h.ID)
	assert.ErrorIs(t, err, handle.ErrHandleExpired)
}

func TestBlobKey(t *testing.T) {
	id := uuid.MustParse("7b7c1c36-3f0e-4b0c-9f55-1f5c2d3e4a5b")
	assert.Equal(t, "segmenter:handle:7b7c1c36-3f0e-4b0c-9f55-1f5c2d3e4a5b", handle.BlobKey(id))
}
