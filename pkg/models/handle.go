package models

import (
	"time"

	"github.com/google/uuid"
)

// Slot names the owner of a viewable handle. A controller holds at most one
// live handle per slot.
type Slot string

const (
	SlotPreview Slot = "preview"
	SlotResult  Slot = "result"
)

// Handle is a short-lived reference used to render a blob (preview or result)
// without re-transmitting it. The blob itself lives in the handle registry
// until the handle is released.
type Handle struct {
	ID        uuid.UUID `json:"id"`
	Slot      Slot      `json:"slot"`
	Name      string    `json:"name"`
	MediaType string    `json:"media_type"`
	Size      int       `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// IsZero reports whether h refers to nothing.
func (h Handle) IsZero() bool {
	return h.ID == uuid.Nil
}
