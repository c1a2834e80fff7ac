package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/PS-Soundwave/virtu/internal/db"
	"github.com/PS-Soundwave/virtu/internal/models"
)

// PostgresUserRepository provides PostgreSQL-backed persistence for users.
type PostgresUserRepository struct {
	pool db.Pool
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// FindByID fetches a user by identifier.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	return r.findOne(ctx, `
        SELECT id, username, created_at, updated_at
        FROM users
        WHERE id = $1
    `, id)
}

// FindByUsername fetches a user by exact username.
func (r *PostgresUserRepository) FindByUsername(ctx context.Context, username string) (models.User, error) {
	return r.findOne(ctx, `
        SELECT id, username, created_at, updated_at
        FROM users
        WHERE username = $1
    `, username)
}

func (r *PostgresUserRepository) findOne(ctx context.Context, query string, arg string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var user models.User
	if err := conn.QueryRow(ctx, query, arg).Scan(&user.ID, &user.Username, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return models.User{}, translate(err, "select user")
	}

	return user, nil
}

// Search returns users whose username contains query, case-insensitively.
// Prefix matches sort first, then accounts in creation order.
func (r *PostgresUserRepository) Search(ctx context.Context, query string, limit int) ([]models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id, username, created_at, updated_at
        FROM users
        WHERE username ILIKE '%' || $1::TEXT || '%'
        ORDER BY (username ILIKE $1::TEXT || '%') DESC, created_at ASC, id ASC
        LIMIT $2
    `, escapeLike(query), limit)
	if err != nil {
		return nil, fmt.Errorf("query user search: %w", err)
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		var user models.User
		if err := rows.Scan(&user.ID, &user.Username, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user search: %w", err)
	}

	return users, nil
}

// SetUsername claims username for the user, creating the user row on first use.
// The check and write run in one serializable transaction so concurrent claims
// of the same name resolve to a single winner.
func (r *PostgresUserRepository) SetUsername(ctx context.Context, id, username string, now time.Time) (models.User, error) {
	var user models.User

	err := db.Serializable(ctx, r.pool, func(tx pgx.Tx) error {
		var owner string
		err := tx.QueryRow(ctx, `SELECT id FROM users WHERE username = $1`, username).Scan(&owner)
		switch {
		case err == nil && owner != id:
			return ErrConflict
		case err != nil && !errors.Is(err, pgx.ErrNoRows):
			return fmt.Errorf("check username owner: %w", err)
		}

		return tx.QueryRow(ctx, `
            INSERT INTO users (id, username, created_at, updated_at)
            VALUES ($1, $2, $3, $3)
            ON CONFLICT (id)
            DO UPDATE SET username = EXCLUDED.username, updated_at = EXCLUDED.updated_at
            RETURNING id, username, created_at, updated_at
        `, id, username, now.UTC()).Scan(&user.ID, &user.Username, &user.CreatedAt, &user.UpdatedAt)
	})
	if err != nil {
		return models.User{}, translate(err, "set username")
	}

	return user, nil
}

// PostgresFollowRepository provides PostgreSQL-backed persistence for follow edges.
type PostgresFollowRepository struct {
	pool db.Pool
}

// NewPostgresFollowRepository constructs a follow repository backed by PostgreSQL.
func NewPostgresFollowRepository(pool db.Pool) *PostgresFollowRepository {
	return &PostgresFollowRepository{pool: pool}
}

// Follow records the edge follower -> followee. Existing edges are left untouched.
func (r *PostgresFollowRepository) Follow(ctx context.Context, followerID, followeeID string, at time.Time) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO follows (follower_id, followee_id, created_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (follower_id, followee_id) DO NOTHING
    `, followerID, followeeID, at.UTC())
	if err != nil {
		return translate(err, "insert follow")
	}

	return nil
}

// Unfollow removes the edge follower -> followee if it exists.
func (r *PostgresFollowRepository) Unfollow(ctx context.Context, followerID, followeeID string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `
        DELETE FROM follows
        WHERE follower_id = $1 AND followee_id = $2
    `, followerID, followeeID); err != nil {
		return fmt.Errorf("delete follow: %w", err)
	}

	return nil
}

// Info returns follower and following counts for userID and whether viewerID follows them.
func (r *PostgresFollowRepository) Info(ctx context.Context, userID, viewerID string) (models.FollowInfo, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.FollowInfo{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var info models.FollowInfo
	err = conn.QueryRow(ctx, `
        SELECT
            (SELECT count(*) FROM follows WHERE followee_id = $1),
            (SELECT count(*) FROM follows WHERE follower_id = $1),
            EXISTS (SELECT 1 FROM follows WHERE follower_id = $2 AND followee_id = $1)
    `, userID, viewerID).Scan(&info.Followers, &info.Following, &info.IsFollowing)
	if err != nil {
		return models.FollowInfo{}, fmt.Errorf("select follow info: %w", err)
	}

	return info, nil
}

// PostgresVideoRepository provides PostgreSQL-backed persistence for catalog videos.
type PostgresVideoRepository struct {
	pool db.Pool
}

// NewPostgresVideoRepository constructs a video repository backed by PostgreSQL.
func NewPostgresVideoRepository(pool db.Pool) *PostgresVideoRepository {
	return &PostgresVideoRepository{pool: pool}
}

const videoColumns = `id, key, thumbnail_key, owner_id, visibility, content_type, size_bytes, created_at`

// Create stores a new video record.
func (r *PostgresVideoRepository) Create(ctx context.Context, video models.Video) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	visibility := video.Visibility
	if visibility == "" {
		visibility = models.VisibilityPublic
	}

	_, err = conn.Exec(ctx, `
        INSERT INTO videos (`+videoColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `, video.ID, video.Key, nullString(video.ThumbnailKey), video.OwnerID, string(visibility), video.ContentType, video.SizeBytes, video.CreatedAt.UTC())
	if err != nil {
		return translate(err, "insert video")
	}

	return nil
}

// FindByID fetches a single video regardless of visibility.
func (r *PostgresVideoRepository) FindByID(ctx context.Context, id string) (models.Video, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Video{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	video, err := scanVideo(conn.QueryRow(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = $1`, id))
	if err != nil {
		return models.Video{}, translate(err, "select video")
	}

	return video, nil
}

// ListPublic returns every public video, newest first.
func (r *PostgresVideoRepository) ListPublic(ctx context.Context) ([]models.Video, error) {
	return r.list(ctx, `
        SELECT `+videoColumns+`
        FROM videos
        WHERE visibility = 'public'
        ORDER BY created_at DESC, id DESC
    `)
}

// ListByOwner returns an owner's videos, newest first. Private videos are
// included only when includePrivate is set.
func (r *PostgresVideoRepository) ListByOwner(ctx context.Context, ownerID string, includePrivate bool) ([]models.Video, error) {
	return r.list(ctx, `
        SELECT `+videoColumns+`
        FROM videos
        WHERE owner_id = $1 AND ($2 OR visibility = 'public')
        ORDER BY created_at DESC, id DESC
    `, ownerID, includePrivate)
}

func (r *PostgresVideoRepository) list(ctx context.Context, query string, args ...any) ([]models.Video, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query videos: %w", err)
	}
	defer rows.Close()

	videos := make([]models.Video, 0)
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, video)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate videos: %w", err)
	}

	return videos, nil
}

// SetVisibility updates a video's visibility and returns the stored record.
func (r *PostgresVideoRepository) SetVisibility(ctx context.Context, id string, visibility models.Visibility) (models.Video, error) {
	return r.update(ctx, `
        UPDATE videos
        SET visibility = $2
        WHERE id = $1
        RETURNING `+videoColumns, id, string(visibility))
}

// SetThumbnail attaches a thumbnail object key to a video.
func (r *PostgresVideoRepository) SetThumbnail(ctx context.Context, id, thumbnailKey string) (models.Video, error) {
	return r.update(ctx, `
        UPDATE videos
        SET thumbnail_key = $2
        WHERE id = $1
        RETURNING `+videoColumns, id, thumbnailKey)
}

func (r *PostgresVideoRepository) update(ctx context.Context, query string, args ...any) (models.Video, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Video{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	video, err := scanVideo(conn.QueryRow(ctx, query, args...))
	if err != nil {
		return models.Video{}, translate(err, "update video")
	}

	return video, nil
}

func scanVideo(row pgx.Row) (models.Video, error) {
	var (
		video      models.Video
		thumbnail  sql.NullString
		visibility string
	)
	if err := row.Scan(&video.ID, &video.Key, &thumbnail, &video.OwnerID, &visibility, &video.ContentType, &video.SizeBytes, &video.CreatedAt); err != nil {
		return models.Video{}, err
	}
	video.ThumbnailKey = thumbnail.String
	video.Visibility = models.Visibility(visibility)
	video.CreatedAt = video.CreatedAt.UTC()
	return video, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

var _ UserRepository = (*PostgresUserRepository)(nil)
var _ FollowRepository = (*PostgresFollowRepository)(nil)
var _ VideoRepository = (*PostgresVideoRepository)(nil)
