package repositories

import (
	"context"
	"time"

	"github.com/PS-Soundwave/virtu/internal/models"
)

// FollowRepository defines data access for directed follow edges.
type FollowRepository interface {
	Follow(ctx context.Context, followerID, followeeID string, at time.Time) error
	Unfollow(ctx context.Context, followerID, followeeID string) error
	Info(ctx context.Context, userID, viewerID string) (models.FollowInfo, error)
}
