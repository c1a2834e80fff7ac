package repositories

import (
	"context"
	"time"

	"github.com/PS-Soundwave/virtu/internal/models"
)

// UserRepository defines the data access contract for users.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByUsername(ctx context.Context, username string) (models.User, error)
	Search(ctx context.Context, query string, limit int) ([]models.User, error)
	SetUsername(ctx context.Context, id, username string, now time.Time) (models.User, error)
}
