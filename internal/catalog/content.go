package catalog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var videoTypes = map[string]bool{
	"video/mp4":        true,
	"video/quicktime":  true,
	"video/webm":       true,
	"video/x-m4v":      true,
	"video/3gpp":       true,
	"video/3gpp2":      true,
	"video/x-matroska": true,
	"video/mpeg":       true,
	"video/x-msvideo":  true,
	"video/ogg":        true,
}

var imageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

const sniffLen = 3072

// resolveContentType settles the media type of an upload. Declared types are
// trusted when present; a missing or generic type is sniffed from the head of
// body without consuming it.
func resolveContentType(declared string, body *bufio.Reader, allowed map[string]bool) (string, error) {
	if _, err := body.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("%w: empty body", ErrBadRequest)
		}
		return "", fmt.Errorf("read upload: %w", err)
	}

	contentType := baseType(declared)
	if contentType == "" || contentType == "application/octet-stream" {
		head, err := body.Peek(sniffLen)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
			return "", fmt.Errorf("read upload: %w", err)
		}
		contentType = baseType(mimetype.Detect(head).String())
	}

	if !allowed[contentType] {
		return "", fmt.Errorf("%w: unsupported content type %q", ErrBadRequest, contentType)
	}
	return contentType, nil
}

func baseType(contentType string) string {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(contentType)
	}
	return mediaType
}

// limitReader counts bytes read and fails with ErrTooLarge past max.
type limitReader struct {
	r        io.Reader
	max      int64
	n        int64
	exceeded bool
}

func (l *limitReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.n += int64(n)
	if l.max > 0 && l.n > l.max {
		l.exceeded = true
		return n, ErrTooLarge
	}
	return n, err
}
