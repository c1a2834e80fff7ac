package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

const tempPrefix = ".upload-"

// FSStore keeps media in a local directory and serves it over HTTP. It is
// meant for development; objects are published by atomic rename.
type FSStore struct {
	dir     string
	baseURL string
}

var _ Store = (*FSStore)(nil)

// NewFSStore creates dir if needed.
func NewFSStore(dir, baseURL string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &FSStore{dir: dir, baseURL: baseURL}, nil
}

func (s *FSStore) Put(ctx context.Context, r io.Reader, contentType string) (key string, err error) {
	tmp, err := os.CreateTemp(s.dir, tempPrefix+"*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, r); err != nil {
		return "", fmt.Errorf("write media: %w", err)
	}
	if err = ctx.Err(); err != nil {
		return "", err
	}
	if err = tmp.Sync(); err != nil {
		return "", fmt.Errorf("sync media: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return "", fmt.Errorf("close media: %w", err)
	}

	key = NewKey(contentType)
	if err = os.Rename(tmp.Name(), filepath.Join(s.dir, key)); err != nil {
		return "", fmt.Errorf("publish media: %w", err)
	}
	return key, nil
}

func (s *FSStore) PublicURL(key string) string {
	return publicURL(s.baseURL, key)
}

// Handler serves stored objects by key. Mount it with the key as the whole
// remaining request path, e.g. behind http.StripPrefix("/media/", ...).
func (s *FSStore) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/")
		if !validKey(key) {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, filepath.Join(s.dir, key))
	})
}

func validKey(key string) bool {
	return key != "" &&
		!strings.HasPrefix(key, ".") &&
		!strings.ContainsAny(key, `/\`)
}
