package repositories

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PS-Soundwave/virtu/internal/models"
)

// MemoryUserRepository is an in-process UserRepository for tests and local tooling.
type MemoryUserRepository struct {
	mu    sync.Mutex
	users map[string]models.User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]models.User)}
}

func (m *MemoryUserRepository) FindByID(_ context.Context, id string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return user, nil
}

func (m *MemoryUserRepository) FindByUsername(_ context.Context, username string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, user := range m.users {
		if user.Username == username {
			return user, nil
		}
	}
	return models.User{}, ErrNotFound
}

func (m *MemoryUserRepository) Search(_ context.Context, query string, limit int) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	needle := strings.ToLower(query)
	matches := make([]models.User, 0)
	for _, user := range m.users {
		if strings.Contains(strings.ToLower(user.Username), needle) {
			matches = append(matches, user)
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		pi := strings.HasPrefix(strings.ToLower(matches[i].Username), needle)
		pj := strings.HasPrefix(strings.ToLower(matches[j].Username), needle)
		if pi != pj {
			return pi
		}
		if !matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].CreatedAt.Before(matches[j].CreatedAt)
		}
		return matches[i].ID < matches[j].ID
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (m *MemoryUserRepository) SetUsername(_ context.Context, id, username string, now time.Time) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, user := range m.users {
		if user.Username == username && user.ID != id {
			return models.User{}, ErrConflict
		}
	}

	user, ok := m.users[id]
	if !ok {
		user = models.User{ID: id, CreatedAt: now.UTC()}
	}
	user.Username = username
	user.UpdatedAt = now.UTC()
	m.users[id] = user
	return user, nil
}

type followEdge struct {
	follower, followee string
}

// MemoryFollowRepository is an in-process FollowRepository. Followees must
// exist in users, mirroring the foreign key on the follows table.
type MemoryFollowRepository struct {
	users *MemoryUserRepository

	mu    sync.Mutex
	edges map[followEdge]time.Time
}

func NewMemoryFollowRepository(users *MemoryUserRepository) *MemoryFollowRepository {
	return &MemoryFollowRepository{users: users, edges: make(map[followEdge]time.Time)}
}

func (m *MemoryFollowRepository) Follow(ctx context.Context, followerID, followeeID string, at time.Time) error {
	if _, err := m.users.FindByID(ctx, followeeID); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	edge := followEdge{followerID, followeeID}
	if _, ok := m.edges[edge]; !ok {
		m.edges[edge] = at
	}
	return nil
}

func (m *MemoryFollowRepository) Unfollow(_ context.Context, followerID, followeeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.edges, followEdge{followerID, followeeID})
	return nil
}

func (m *MemoryFollowRepository) Info(_ context.Context, userID, viewerID string) (models.FollowInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var info models.FollowInfo
	for edge := range m.edges {
		if edge.followee == userID {
			info.Followers++
			if edge.follower == viewerID {
				info.IsFollowing = true
			}
		}
		if edge.follower == userID {
			info.Following++
		}
	}
	return info, nil
}

// MemoryVideoRepository is an in-process VideoRepository.
type MemoryVideoRepository struct {
	mu     sync.Mutex
	videos map[string]models.Video
}

func NewMemoryVideoRepository() *MemoryVideoRepository {
	return &MemoryVideoRepository{videos: make(map[string]models.Video)}
}

func (m *MemoryVideoRepository) Create(_ context.Context, video models.Video) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.videos {
		if existing.ID == video.ID || existing.Key == video.Key {
			return ErrConflict
		}
	}
	m.videos[video.ID] = video
	return nil
}

func (m *MemoryVideoRepository) FindByID(_ context.Context, id string) (models.Video, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	video, ok := m.videos[id]
	if !ok {
		return models.Video{}, ErrNotFound
	}
	return video, nil
}

func (m *MemoryVideoRepository) ListPublic(_ context.Context) ([]models.Video, error) {
	return m.filter(func(v models.Video) bool { return v.Visibility == models.VisibilityPublic }), nil
}

func (m *MemoryVideoRepository) ListByOwner(_ context.Context, ownerID string, includePrivate bool) ([]models.Video, error) {
	return m.filter(func(v models.Video) bool {
		return v.OwnerID == ownerID && (includePrivate || v.Visibility == models.VisibilityPublic)
	}), nil
}

// filter returns matching videos newest first, ties broken by id descending.
func (m *MemoryVideoRepository) filter(keep func(models.Video) bool) []models.Video {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Video, 0)
	for _, video := range m.videos {
		if keep(video) {
			out = append(out, video)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (m *MemoryVideoRepository) SetVisibility(_ context.Context, id string, visibility models.Visibility) (models.Video, error) {
	return m.update(id, func(v *models.Video) { v.Visibility = visibility })
}

func (m *MemoryVideoRepository) SetThumbnail(_ context.Context, id, thumbnailKey string) (models.Video, error) {
	return m.update(id, func(v *models.Video) { v.ThumbnailKey = thumbnailKey })
}

func (m *MemoryVideoRepository) update(id string, apply func(*models.Video)) (models.Video, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	video, ok := m.videos[id]
	if !ok {
		return models.Video{}, ErrNotFound
	}
	apply(&video)
	m.videos[id] = video
	return video, nil
}
