// Package storage persists media objects under opaque keys and maps them to
// public URLs.
package storage

import (
	"context"
	"io"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// Store is a write-once object store for uploaded media.
type Store interface {
	// Put streams r to the store and returns the new object's key once the
	// backend has acknowledged the write.
	Put(ctx context.Context, r io.Reader, contentType string) (string, error)
	// PublicURL returns the unauthenticated URL clients fetch key from.
	PublicURL(key string) string
}

// NewKey mints a random object key. The extension follows the declared
// content type so the object is served with a sensible type.
func NewKey(contentType string) string {
	return uuid.NewString() + Extension(contentType)
}

// Extension returns the canonical file extension for contentType, or "" if
// the type is unknown.
func Extension(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	if m := mimetype.Lookup(mediaType); m != nil {
		return m.Extension()
	}
	return ""
}

func publicURL(baseURL, key string) string {
	return strings.TrimSuffix(baseURL, "/") + "/" + key
}
