package repositories

import (
	"context"

	"github.com/PS-Soundwave/virtu/internal/models"
)

// VideoRepository exposes data access for catalog video records.
type VideoRepository interface {
	Create(ctx context.Context, video models.Video) error
	FindByID(ctx context.Context, id string) (models.Video, error)
	ListPublic(ctx context.Context) ([]models.Video, error)
	ListByOwner(ctx context.Context, ownerID string, includePrivate bool) ([]models.Video, error)
	SetVisibility(ctx context.Context, id string, visibility models.Visibility) (models.Video, error)
	SetThumbnail(ctx context.Context, id, thumbnailKey string) (models.Video, error)
}
