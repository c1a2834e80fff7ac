package handlers

import (
	"context"
	"io"

	"github.com/PS-Soundwave/virtu/internal/models"
)

// Catalog is the service surface the HTTP handlers expose.
type Catalog interface {
	ListPublicFeed(ctx context.Context) ([]models.Video, error)
	ListVideosForUser(ctx context.Context, ownerID, credential string) ([]models.Video, error)
	UploadVideo(ctx context.Context, credential string, body io.Reader, contentType string) (models.Video, error)
	SetVisibility(ctx context.Context, credential, videoID, visibility string) (models.Video, error)
	GetVideo(ctx context.Context, videoID string) (models.Video, bool, error)

	Me(ctx context.Context, credential string) (models.User, error)
	SetMyUsername(ctx context.Context, credential, username string) (models.User, error)
	SearchUsers(ctx context.Context, query string) ([]models.User, error)
	UserByUsername(ctx context.Context, username string) (models.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)

	Follow(ctx context.Context, credential, userID string) (models.FollowInfo, error)
	Unfollow(ctx context.Context, credential, userID string) (models.FollowInfo, error)
	FollowInfo(ctx context.Context, userID, credential string) (models.FollowInfo, error)

	MediaURL(key string) string
}
