package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PS-Soundwave/virtu/internal/directory"
	"github.com/PS-Soundwave/virtu/internal/models"
)

// Me returns the caller's user record; ErrNotFound until a username is claimed.
func (s *Service) Me(ctx context.Context, credential string) (user models.User, err error) {
	ctx, end := startSpan(ctx, "catalog.Me")
	defer end(&err)

	ctx, callerID, err := s.authenticate(ctx, credential)
	if err != nil {
		return models.User{}, err
	}

	user, ok, err := s.users.GetByID(ctx, callerID)
	if err != nil {
		return models.User{}, fmt.Errorf("get user: %w", err)
	}
	if !ok {
		return models.User{}, fmt.Errorf("%w: no username claimed", ErrNotFound)
	}
	return user, nil
}

// SetMyUsername claims username for the caller.
func (s *Service) SetMyUsername(ctx context.Context, credential, username string) (user models.User, err error) {
	ctx, end := startSpan(ctx, "catalog.SetMyUsername")
	defer end(&err)

	ctx, callerID, err := s.authenticate(ctx, credential)
	if err != nil {
		return models.User{}, err
	}

	user, err = s.users.SetUsername(ctx, callerID, strings.TrimSpace(username))
	switch {
	case errors.Is(err, directory.ErrInvalidUsername):
		return models.User{}, fmt.Errorf("%w: %w", ErrBadRequest, err)
	case errors.Is(err, directory.ErrUsernameTaken):
		return models.User{}, fmt.Errorf("%w: %w", ErrConflict, err)
	case err != nil:
		return models.User{}, err
	}
	return user, nil
}

func (s *Service) SearchUsers(ctx context.Context, query string) (users []models.User, err error) {
	ctx, end := startSpan(ctx, "catalog.SearchUsers")
	defer end(&err)

	return s.users.Search(ctx, query)
}

func (s *Service) UserByUsername(ctx context.Context, username string) (user models.User, err error) {
	ctx, end := startSpan(ctx, "catalog.UserByUsername")
	defer end(&err)

	if strings.TrimSpace(username) == "" {
		return models.User{}, fmt.Errorf("%w: username is required", ErrBadRequest)
	}

	user, ok, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return models.User{}, fmt.Errorf("get user by username: %w", err)
	}
	if !ok {
		return models.User{}, fmt.Errorf("%w: user %q", ErrNotFound, username)
	}
	return user, nil
}

func (s *Service) UsernameExists(ctx context.Context, username string) (exists bool, err error) {
	ctx, end := startSpan(ctx, "catalog.UsernameExists")
	defer end(&err)

	if strings.TrimSpace(username) == "" {
		return false, fmt.Errorf("%w: username is required", ErrBadRequest)
	}
	return s.users.UsernameExists(ctx, username)
}

// Follow makes the caller follow userID and returns userID's updated aggregates.
func (s *Service) Follow(ctx context.Context, credential, userID string) (info models.FollowInfo, err error) {
	ctx, end := startSpan(ctx, "catalog.Follow")
	defer end(&err)

	ctx, callerID, err := s.authenticate(ctx, credential)
	if err != nil {
		return models.FollowInfo{}, err
	}

	if err := s.users.Follow(ctx, callerID, userID); err != nil {
		return models.FollowInfo{}, classifyFollowError(err)
	}
	return s.users.FollowInfo(ctx, userID, callerID)
}

// Unfollow removes the caller's edge to userID, if any.
func (s *Service) Unfollow(ctx context.Context, credential, userID string) (info models.FollowInfo, err error) {
	ctx, end := startSpan(ctx, "catalog.Unfollow")
	defer end(&err)

	ctx, callerID, err := s.authenticate(ctx, credential)
	if err != nil {
		return models.FollowInfo{}, err
	}

	if err := s.users.Unfollow(ctx, callerID, userID); err != nil {
		return models.FollowInfo{}, classifyFollowError(err)
	}
	return s.users.FollowInfo(ctx, userID, callerID)
}

func classifyFollowError(err error) error {
	switch {
	case errors.Is(err, directory.ErrSelfFollow):
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	case errors.Is(err, directory.ErrUserNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}

// FollowInfo returns userID's follow aggregates from the viewpoint of the
// optional credential's holder.
func (s *Service) FollowInfo(ctx context.Context, userID, credential string) (info models.FollowInfo, err error) {
	ctx, end := startSpan(ctx, "catalog.FollowInfo")
	defer end(&err)

	ctx, viewerID, err := s.viewer(ctx, credential)
	if err != nil {
		return models.FollowInfo{}, err
	}
	return s.users.FollowInfo(ctx, userID, viewerID)
}
