package models

import "time"

// User represents a Virtu account. The ID is the subject issued by the
// identity provider; the row exists once the user has claimed a username.
type User struct {
	ID        string
	Username  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Visibility controls who may see a video in listings.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// ParseVisibility validates a client supplied visibility value.
func ParseVisibility(value string) (Visibility, bool) {
	switch Visibility(value) {
	case VisibilityPublic, VisibilityPrivate:
		return Visibility(value), true
	default:
		return "", false
	}
}

// Video is the catalog record for an uploaded clip. Key and ThumbnailKey
// reference objects in the media store.
type Video struct {
	ID           string
	Key          string
	ThumbnailKey string
	OwnerID      string
	Visibility   Visibility
	ContentType  string
	SizeBytes    int64
	CreatedAt    time.Time
}

// HasThumbnail reports whether a thumbnail has been attached.
func (v Video) HasThumbnail() bool {
	return v.ThumbnailKey != ""
}

// FollowInfo aggregates follow edges around a single user.
type FollowInfo struct {
	Followers   int64
	Following   int64
	IsFollowing bool
}
