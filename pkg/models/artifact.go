// Package models contains shared data models used across the segmenter codebase.
package models

import "strings"

// InputArtifact is the user-supplied image to be segmented.
// It is treated as an opaque blob; only its media type is inspected.
type InputArtifact struct {
	Name      string
	MediaType string
	Data      []byte
}

// IsImage reports whether the artifact carries an image media type.
func (a InputArtifact) IsImage() bool {
	return strings.HasPrefix(strings.ToLower(a.MediaType), "image/")
}

// Size returns the artifact length in bytes.
func (a InputArtifact) Size() int {
	return len(a.Data)
}
