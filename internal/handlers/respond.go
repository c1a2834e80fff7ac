package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/PS-Soundwave/virtu/internal/catalog"
	"github.com/PS-Soundwave/virtu/internal/logging"
	"github.com/PS-Soundwave/virtu/internal/models"
)

type errorResponse struct {
	Error string `json:"error"`
}

type videoResponse struct {
	ID           string    `json:"id"`
	Key          string    `json:"key"`
	ThumbnailKey string    `json:"thumbnail_key,omitempty"`
	OwnerID      string    `json:"owner_id"`
	Visibility   string    `json:"visibility"`
	ContentType  string    `json:"content_type"`
	SizeBytes    int64     `json:"size_bytes"`
	CreatedAt    time.Time `json:"created_at"`
	URL          string    `json:"url"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
}

type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type suggestionsResponse struct {
	Suggestions []string `json:"suggestions"`
}

type followInfoResponse struct {
	Followers   int64 `json:"followers"`
	Following   int64 `json:"following"`
	IsFollowing bool  `json:"is_following"`
}

func newVideoResponse(c Catalog, v models.Video) videoResponse {
	return videoResponse{
		ID:           v.ID,
		Key:          v.Key,
		ThumbnailKey: v.ThumbnailKey,
		OwnerID:      v.OwnerID,
		Visibility:   string(v.Visibility),
		ContentType:  v.ContentType,
		SizeBytes:    v.SizeBytes,
		CreatedAt:    v.CreatedAt.UTC(),
		URL:          c.MediaURL(v.Key),
		ThumbnailURL: c.MediaURL(v.ThumbnailKey),
	}
}

func newVideoList(c Catalog, videos []models.Video) []videoResponse {
	out := make([]videoResponse, 0, len(videos))
	for _, v := range videos {
		out = append(out, newVideoResponse(c, v))
	}
	return out
}

func newUserResponse(u models.User) userResponse {
	return userResponse{ID: u.ID, Username: u.Username}
}

func newUserList(users []models.User) []userResponse {
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, newUserResponse(u))
	}
	return out
}

func newFollowInfoResponse(info models.FollowInfo) followInfoResponse {
	return followInfoResponse{Followers: info.Followers, Following: info.Following, IsFollowing: info.IsFollowing}
}

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
	}
}

// statusFor maps a catalog error onto an HTTP status.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, catalog.ErrTooLarge), errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, catalog.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, catalog.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as a JSON error body. Internal failures are logged
// in full but reported to the client generically.
func respondError(ctx context.Context, w http.ResponseWriter, err error) {
	status := statusFor(err)
	logger := logging.FromContext(ctx)

	message := err.Error()
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
		message = "internal server error"
	} else {
		logger.Warn("request rejected", "status", status, "error", err)
	}

	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="virtu"`)
	}
	respondJSON(ctx, w, status, errorResponse{Error: message})
}

func badRequest(ctx context.Context, w http.ResponseWriter, message string) {
	logging.FromContext(ctx).Warn("request rejected", "status", http.StatusBadRequest, "error", message)
	respondJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: message})
}

// bearerToken extracts the credential from the Authorization header. A header
// using another scheme is returned whole so verification rejects it rather
// than the request being treated as anonymous.
func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	scheme, token, ok := strings.Cut(header, " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return header
}

// decodeJSON reads a small JSON request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	return dec.Decode(dst)
}
