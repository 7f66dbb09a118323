// Package handle manages viewable handles: short-lived references to preview
// and result blobs that must be released once superseded.
package handle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/segmenter/pkg/models"
)

var (
	// ErrHandleNotFound is returned for unknown or already released handles.
	ErrHandleNotFound = errors.New("handle not found")
	// ErrHandleExpired is returned when a live handle's blob is gone from the store.
	ErrHandleExpired = errors.New("handle blob expired")
)

const releaseTimeout = 5 * time.Second

// Registry mints and releases handles. It tracks which handles are live so
// that Release is idempotent and leaks are observable through Live.
type Registry struct {
	store BlobStore
	ttl   time.Duration

	mu   sync.RWMutex
	live map[uuid.UUID]models.Handle
}

// NewRegistry creates a registry over store. ttl is passed to the store on
// every Put and bounds blobs orphaned by a crash.
func NewRegistry(store BlobStore, ttl time.Duration) *Registry {
	return &Registry{
		store: store,
		ttl:   ttl,
		live:  make(map[uuid.UUID]models.Handle),
	}
}

// Acquire stores data and returns a new live handle for it.
func (r *Registry) Acquire(ctx context.Context, slot models.Slot, name, mediaType string, data []byte) (models.Handle, error) {
	h := models.Handle{
		ID:        uuid.New(),
		Slot:      slot,
		Name:      name,
		MediaType: mediaType,
		Size:      len(data),
		CreatedAt: time.Now().UTC(),
	}

	if err := r.store.Put(ctx, h.ID, data, r.ttl); err != nil {
		return models.Handle{}, fmt.Errorf("storing %s blob: %w", slot, err)
	}

	r.mu.Lock()
	r.live[h.ID] = h
	r.mu.Unlock()

	return h, nil
}

// Release drops the handle and deletes its blob. Zero, unknown and already
// released handles are ignored.
func (r *Registry) Release(ctx context.Context, h models.Handle) {
	if h.IsZero() {
		return
	}

	r.mu.Lock()
	_, ok := r.live[h.ID]
	delete(r.live, h.ID)
	r.mu.Unlock()
	if !ok {
		return
	}

	// The handle is already unreachable; a failed delete leaves the blob to the store TTL.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	_ = r.store.Delete(ctx, h.ID)
}

// Open returns a live handle and its bytes.
func (r *Registry) Open(ctx context.Context, id uuid.UUID) (models.Handle, []byte, error) {
	r.mu.RLock()
	h, ok := r.live[id]
	r.mu.RUnlock()
	if !ok {
		return models.Handle{}, nil, ErrHandleNotFound
	}

	data, found, err := r.store.Get(ctx, id)
	if err != nil {
		return models.Handle{}, nil, fmt.Errorf("loading blob: %w", err)
	}
	if !found {
		return models.Handle{}, nil, ErrHandleExpired
	}
	return h, data, nil
}

// Live returns the number of handles acquired and not yet released.
func (r *Registry) Live() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.live)
}

// Ping checks the backing store.
func (r *Registry) Ping(ctx context.Context) error {
	return r.store.Ping(ctx)
}
