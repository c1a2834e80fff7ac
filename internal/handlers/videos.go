package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// multipartOverhead is allowed on top of the file size for boundaries, part
// headers and small form fields.
const multipartOverhead = 1 << 20

// VideoHandler serves video listing, upload and visibility endpoints.
type VideoHandler struct {
	Catalog        Catalog
	MaxUploadBytes int64
}

// Feed handles GET /video.
func (h VideoHandler) Feed(w http.ResponseWriter, r *http.Request) {
	videos, err := h.Catalog.ListPublicFeed(r.Context())
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	respondJSON(r.Context(), w, http.StatusOK, newVideoList(h.Catalog, videos))
}

// Upload handles POST /video with a multipart body whose "file" part holds
// the video. The part is streamed straight through to the media store.
func (h VideoHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes+multipartOverhead)
	}

	reader, err := r.MultipartReader()
	if err != nil {
		badRequest(ctx, w, "expected multipart/form-data body")
		return
	}

	part, err := filePart(reader)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(ctx, w, err)
			return
		}
		badRequest(ctx, w, err.Error())
		return
	}
	defer part.Close()

	video, err := h.Catalog.UploadVideo(ctx, bearerToken(r), part, part.Header.Get("Content-Type"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, newVideoResponse(h.Catalog, video))
}

var errMissingFile = errors.New(`multipart field "file" is required`)

func filePart(reader *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, errMissingFile
		}
		if err != nil {
			return nil, err
		}
		if part.FormName() == "file" {
			return part, nil
		}
		_ = part.Close()
	}
}

// Get handles GET /video/{id}.
func (h VideoHandler) Get(w http.ResponseWriter, r *http.Request) {
	video, found, err := h.Catalog.GetVideo(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	if !found {
		respondJSON(r.Context(), w, http.StatusNotFound, errorResponse{Error: "video not found"})
		return
	}
	respondJSON(r.Context(), w, http.StatusOK, newVideoResponse(h.Catalog, video))
}

type visibilityRequest struct {
	Visibility string `json:"visibility"`
}

// SetVisibility handles PATCH /video/{id}.
func (h VideoHandler) SetVisibility(w http.ResponseWriter, r *http.Request) {
	var req visibilityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(r.Context(), w, "invalid request body")
		return
	}

	video, err := h.Catalog.SetVisibility(r.Context(), bearerToken(r), chi.URLParam(r, "id"), req.Visibility)
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	respondJSON(r.Context(), w, http.StatusOK, newVideoResponse(h.Catalog, video))
}

// ListForUser handles GET /user/{id}/video.
func (h VideoHandler) ListForUser(w http.ResponseWriter, r *http.Request) {
	videos, err := h.Catalog.ListVideosForUser(r.Context(), chi.URLParam(r, "id"), bearerToken(r))
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	respondJSON(r.Context(), w, http.StatusOK, newVideoList(h.Catalog, videos))
}
