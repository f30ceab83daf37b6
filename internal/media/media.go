// Package media stores uploaded post images.
package media

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

var ErrInvalidKey = errors.New("invalid media key")

// Store persists image blobs under generated keys.
type Store interface {
	Save(ctx context.Context, contentType string, data []byte, ext string) (string, error)
	// Delete is a no-op for keys that do not exist.
	Delete(ctx context.Context, key string) error
	// URL is where browsers fetch key from.
	URL(key string) string
}

// NewKey returns "posts/<uuid><ext>".
func NewKey(ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return "posts/" + uuid.New().String() + ext
}

// ValidKey rejects keys that could escape the media root.
func ValidKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return false
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return false
		}
	}
	return true
}
