// Package directory owns user records and the follow graph around them.
package directory

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PS-Soundwave/virtu/internal/models"
	"github.com/PS-Soundwave/virtu/internal/repositories"
)

var (
	// ErrInvalidUsername is returned for usernames outside the allowed format.
	ErrInvalidUsername = errors.New("username must be 3-30 characters of letters, digits, '_' or '.'")
	// ErrUsernameTaken is returned when another user already holds the username.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrSelfFollow is returned when a user tries to follow or unfollow themselves.
	ErrSelfFollow = errors.New("cannot follow yourself")
	// ErrUserNotFound is returned when the followee has no user record.
	ErrUserNotFound = errors.New("user not found")
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.]{3,30}$`)

// DefaultSearchLimit caps search results when no limit is configured.
const DefaultSearchLimit = 20

// Directory coordinates user and follow persistence.
type Directory struct {
	users       repositories.UserRepository
	follows     repositories.FollowRepository
	searchLimit int
	now         func() time.Time
}

// New constructs a Directory. A non-positive searchLimit selects DefaultSearchLimit.
func New(users repositories.UserRepository, follows repositories.FollowRepository, searchLimit int) *Directory {
	if searchLimit <= 0 {
		searchLimit = DefaultSearchLimit
	}
	return &Directory{
		users:       users,
		follows:     follows,
		searchLimit: searchLimit,
		now:         time.Now,
	}
}

// ValidUsername reports whether username has the accepted shape.
func ValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

func (d *Directory) GetByID(ctx context.Context, id string) (models.User, bool, error) {
	if id == "" {
		return models.User{}, false, nil
	}
	return found(d.users.FindByID(ctx, id))
}

// GetByUsername looks up an exact, case-sensitive username.
func (d *Directory) GetByUsername(ctx context.Context, username string) (models.User, bool, error) {
	if username == "" {
		return models.User{}, false, nil
	}
	return found(d.users.FindByUsername(ctx, username))
}

func found(user models.User, err error) (models.User, bool, error) {
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		return models.User{}, false, nil
	case err != nil:
		return models.User{}, false, err
	}
	return user, true, nil
}

// UsernameExists reports whether any user holds username.
func (d *Directory) UsernameExists(ctx context.Context, username string) (bool, error) {
	_, ok, err := d.GetByUsername(ctx, username)
	return ok, err
}

// Search returns users whose username contains query, ignoring case. A blank
// query matches nobody.
func (d *Directory) Search(ctx context.Context, query string) ([]models.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.User{}, nil
	}

	users, err := d.users.Search(ctx, query, d.searchLimit)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	return users, nil
}

// SetUsername claims username for userID, creating the user on first claim.
// Reclaiming a name the caller already holds succeeds without change.
func (d *Directory) SetUsername(ctx context.Context, userID, username string) (models.User, error) {
	if !ValidUsername(username) {
		return models.User{}, ErrInvalidUsername
	}

	user, err := d.users.SetUsername(ctx, userID, username, d.now())
	if errors.Is(err, repositories.ErrConflict) {
		return models.User{}, fmt.Errorf("%w: %w", ErrUsernameTaken, err)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("set username: %w", err)
	}
	return user, nil
}

// Follow makes followerID follow followeeID. Following twice is a no-op.
func (d *Directory) Follow(ctx context.Context, followerID, followeeID string) error {
	if followerID == followeeID {
		return ErrSelfFollow
	}

	err := d.follows.Follow(ctx, followerID, followeeID, d.now())
	if errors.Is(err, repositories.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrUserNotFound, err)
	}
	if err != nil {
		return fmt.Errorf("follow: %w", err)
	}
	return nil
}

func (d *Directory) Unfollow(ctx context.Context, followerID, followeeID string) error {
	if followerID == followeeID {
		return ErrSelfFollow
	}
	if err := d.follows.Unfollow(ctx, followerID, followeeID); err != nil {
		return fmt.Errorf("unfollow: %w", err)
	}
	return nil
}

// FollowInfo returns the follow aggregates for userID. An empty viewerID
// means an anonymous viewer, who never follows anyone.
func (d *Directory) FollowInfo(ctx context.Context, userID, viewerID string) (models.FollowInfo, error) {
	info, err := d.follows.Info(ctx, userID, viewerID)
	if err != nil {
		return models.FollowInfo{}, fmt.Errorf("follow info: %w", err)
	}
	if viewerID == "" {
		info.IsFollowing = false
	}
	return info, nil
}
