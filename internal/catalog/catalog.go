// Package catalog implements the Virtu API surface over the user directory,
// the video records and the media store.
package catalog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/PS-Soundwave/virtu/internal/auth"
	"github.com/PS-Soundwave/virtu/internal/events"
	"github.com/PS-Soundwave/virtu/internal/logging"
	"github.com/PS-Soundwave/virtu/internal/models"
	"github.com/PS-Soundwave/virtu/internal/repositories"
	"github.com/PS-Soundwave/virtu/internal/storage"
)

// Directory is the subset of the user directory the catalog relies on.
type Directory interface {
	GetByID(ctx context.Context, id string) (models.User, bool, error)
	GetByUsername(ctx context.Context, username string) (models.User, bool, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	Search(ctx context.Context, query string) ([]models.User, error)
	SetUsername(ctx context.Context, userID, username string) (models.User, error)
	Follow(ctx context.Context, followerID, followeeID string) error
	Unfollow(ctx context.Context, followerID, followeeID string) error
	FollowInfo(ctx context.Context, userID, viewerID string) (models.FollowInfo, error)
}

// EventQueue accepts upload notifications for asynchronous delivery.
type EventQueue interface {
	Enqueue(ctx context.Context, event events.VideoUploaded) error
}

// Dependencies wires the collaborators of a Service. Events may be nil.
type Dependencies struct {
	Verifier auth.Verifier
	Users    Directory
	Videos   repositories.VideoRepository
	Media    storage.Store
	Events   EventQueue
}

// Options tunes request limits.
type Options struct {
	MaxUploadBytes int64
}

// Service implements every catalog operation. Methods taking a credential
// resolve the caller first; an empty credential means no caller.
type Service struct {
	verifier  auth.Verifier
	users     Directory
	videos    repositories.VideoRepository
	media     storage.Store
	events    EventQueue
	maxUpload int64
	now       func() time.Time
}

func New(deps Dependencies, opts Options) *Service {
	return &Service{
		verifier:  deps.Verifier,
		users:     deps.Users,
		videos:    deps.Videos,
		media:     deps.Media,
		events:    deps.Events,
		maxUpload: opts.MaxUploadBytes,
		now:       time.Now,
	}
}

func startSpan(ctx context.Context, name string) (context.Context, func(*error)) {
	ctx, span := logging.StartSpan(ctx, name)
	return ctx, func(errp *error) {
		if err := *errp; err != nil && !IsClientError(err) {
			span.Fail(err)
		}
		span.End()
	}
}

// authenticate resolves credential to a user id.
func (s *Service) authenticate(ctx context.Context, credential string) (context.Context, string, error) {
	if strings.TrimSpace(credential) == "" {
		return ctx, "", fmt.Errorf("%w: missing credential", ErrUnauthenticated)
	}

	identity, err := s.verifier.Verify(ctx, credential)
	if errors.Is(err, auth.ErrInvalidCredential) {
		return ctx, "", fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	if err != nil {
		return ctx, "", fmt.Errorf("verify credential: %w", err)
	}

	return logging.WithUserID(ctx, identity.UserID), identity.UserID, nil
}

// viewer resolves an optional credential. No credential yields an anonymous
// viewer; a credential that fails verification is still an error.
func (s *Service) viewer(ctx context.Context, credential string) (context.Context, string, error) {
	if strings.TrimSpace(credential) == "" {
		return ctx, "", nil
	}
	return s.authenticate(ctx, credential)
}

// ListPublicFeed returns every public video, newest first.
func (s *Service) ListPublicFeed(ctx context.Context) (videos []models.Video, err error) {
	ctx, end := startSpan(ctx, "catalog.ListPublicFeed")
	defer end(&err)

	videos, err = s.videos.ListPublic(ctx)
	if err != nil {
		return nil, fmt.Errorf("list public videos: %w", err)
	}
	return videos, nil
}

// ListVideosForUser lists ownerID's videos. The owner also sees private ones.
func (s *Service) ListVideosForUser(ctx context.Context, ownerID, credential string) (videos []models.Video, err error) {
	ctx, end := startSpan(ctx, "catalog.ListVideosForUser")
	defer end(&err)

	ctx, viewerID, err := s.viewer(ctx, credential)
	if err != nil {
		return nil, err
	}

	videos, err = s.videos.ListByOwner(ctx, ownerID, viewerID != "" && viewerID == ownerID)
	if err != nil {
		return nil, fmt.Errorf("list videos for %s: %w", ownerID, err)
	}
	return videos, nil
}

// UploadVideo stores body as a new public video owned by the caller. The
// record is written only after the media store has acknowledged the bytes.
func (s *Service) UploadVideo(ctx context.Context, credential string, body io.Reader, contentType string) (video models.Video, err error) {
	ctx, end := startSpan(ctx, "catalog.UploadVideo")
	defer end(&err)

	ctx, ownerID, err := s.authenticate(ctx, credential)
	if err != nil {
		return models.Video{}, err
	}

	key, contentType, size, err := s.store(ctx, body, contentType, videoTypes)
	if err != nil {
		return models.Video{}, err
	}

	video = models.Video{
		ID:          uuid.NewString(),
		Key:         key,
		OwnerID:     ownerID,
		Visibility:  models.VisibilityPublic,
		ContentType: contentType,
		SizeBytes:   size,
		CreatedAt:   s.now().UTC(),
	}

	if err := s.videos.Create(ctx, video); err != nil {
		logging.FromContext(ctx).Error("video record not written, stored object orphaned",
			slog.String("key", key), slog.Any("error", err))
		return models.Video{}, fmt.Errorf("create video: %w", err)
	}

	s.announce(ctx, video)
	return video, nil
}

// store validates and streams an upload into the media store.
func (s *Service) store(ctx context.Context, body io.Reader, declared string, allowed map[string]bool) (key, contentType string, size int64, err error) {
	if body == nil {
		return "", "", 0, fmt.Errorf("%w: empty body", ErrBadRequest)
	}

	limited := &limitReader{r: body, max: s.maxUpload}
	buffered := bufio.NewReaderSize(limited, sniffLen)

	contentType, err = resolveContentType(declared, buffered, allowed)
	if err != nil {
		if limited.exceeded {
			return "", "", 0, ErrTooLarge
		}
		return "", "", 0, err
	}

	key, err = s.media.Put(ctx, buffered, contentType)
	if limited.exceeded {
		return "", "", 0, ErrTooLarge
	}
	if err != nil {
		return "", "", 0, fmt.Errorf("store media: %w", err)
	}

	return key, contentType, limited.n, nil
}

func (s *Service) announce(ctx context.Context, video models.Video) {
	if s.events == nil {
		return
	}
	event := events.VideoUploaded{
		VideoID:     video.ID,
		Key:         video.Key,
		OwnerID:     video.OwnerID,
		ContentType: video.ContentType,
		SizeBytes:   video.SizeBytes,
		URL:         s.MediaURL(video.Key),
		UploadedAt:  video.CreatedAt,
	}
	// The record is committed; a client hanging up now must not lose its event.
	if err := s.events.Enqueue(context.WithoutCancel(ctx), event); err != nil {
		logging.FromContext(ctx).Warn("upload event dropped", slog.String("video_id", video.ID), slog.Any("error", err))
	}
}

// SetVisibility changes a video's visibility. Only the owner may do so.
func (s *Service) SetVisibility(ctx context.Context, credential, videoID, visibility string) (video models.Video, err error) {
	ctx, end := startSpan(ctx, "catalog.SetVisibility")
	defer end(&err)

	ctx, callerID, err := s.authenticate(ctx, credential)
	if err != nil {
		return models.Video{}, err
	}

	vis, ok := models.ParseVisibility(visibility)
	if !ok {
		return models.Video{}, fmt.Errorf("%w: unknown visibility %q", ErrBadRequest, visibility)
	}

	current, err := s.findVideo(ctx, videoID)
	if err != nil {
		return models.Video{}, err
	}
	if current.OwnerID != callerID {
		return models.Video{}, fmt.Errorf("%w: video %s belongs to another user", ErrForbidden, videoID)
	}
	if current.Visibility == vis {
		return current, nil
	}

	video, err = s.videos.SetVisibility(ctx, videoID, vis)
	if errors.Is(err, repositories.ErrNotFound) {
		return models.Video{}, fmt.Errorf("%w: video %s", ErrNotFound, videoID)
	}
	if err != nil {
		return models.Video{}, fmt.Errorf("set visibility: %w", err)
	}
	return video, nil
}

// GetVideo returns a video by id regardless of its visibility.
func (s *Service) GetVideo(ctx context.Context, videoID string) (video models.Video, found bool, err error) {
	ctx, end := startSpan(ctx, "catalog.GetVideo")
	defer end(&err)

	video, err = s.videos.FindByID(ctx, videoID)
	if errors.Is(err, repositories.ErrNotFound) {
		return models.Video{}, false, nil
	}
	if err != nil {
		return models.Video{}, false, fmt.Errorf("get video: %w", err)
	}
	return video, true, nil
}

// AttachThumbnail stores an image and records it as the video's thumbnail.
// It is an operator action and performs no caller check.
func (s *Service) AttachThumbnail(ctx context.Context, videoID string, body io.Reader, contentType string) (video models.Video, err error) {
	ctx, end := startSpan(ctx, "catalog.AttachThumbnail")
	defer end(&err)

	if _, err := s.findVideo(ctx, videoID); err != nil {
		return models.Video{}, err
	}

	key, _, _, err := s.store(ctx, body, contentType, imageTypes)
	if err != nil {
		return models.Video{}, err
	}

	video, err = s.videos.SetThumbnail(ctx, videoID, key)
	if err != nil {
		return models.Video{}, fmt.Errorf("set thumbnail: %w", err)
	}
	return video, nil
}

func (s *Service) findVideo(ctx context.Context, videoID string) (models.Video, error) {
	video, err := s.videos.FindByID(ctx, videoID)
	if errors.Is(err, repositories.ErrNotFound) {
		return models.Video{}, fmt.Errorf("%w: video %s", ErrNotFound, videoID)
	}
	if err != nil {
		return models.Video{}, fmt.Errorf("find video: %w", err)
	}
	return video, nil
}

// MediaURL is where clients fetch the object stored under key.
func (s *Service) MediaURL(key string) string {
	if key == "" {
		return ""
	}
	return s.media.PublicURL(key)
}
