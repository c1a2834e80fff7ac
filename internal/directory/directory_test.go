package directory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/PS-Soundwave/virtu/internal/models"
	"github.com/PS-Soundwave/virtu/internal/repositories"
)

func newTestDirectory(t *testing.T) *Directory {
	t.Helper()
	users := repositories.NewMemoryUserRepository()
	dir := New(users, repositories.NewMemoryFollowRepository(users), 0)

	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	dir.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}
	return dir
}

func mustClaim(t *testing.T, dir *Directory, id, username string) models.User {
	t.Helper()
	user, err := dir.SetUsername(context.Background(), id, username)
	if err != nil {
		t.Fatalf("claim %s: %v", username, err)
	}
	return user
}

func TestSetUsername(t *testing.T) {
	ctx := context.Background()
	dir := newTestDirectory(t)

	if _, ok, err := dir.GetByID(ctx, "u1"); err != nil || ok {
		t.Fatalf("expected no user before first claim, got ok=%v err=%v", ok, err)
	}

	mustClaim(t, dir, "u1", "alice")
	mustClaim(t, dir, "u1", "alice")

	if _, err := dir.SetUsername(ctx, "u2", "alice"); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken got %v", err)
	}

	user, ok, err := dir.GetByUsername(ctx, "alice")
	if err != nil || !ok || user.ID != "u1" {
		t.Fatalf("unexpected lookup result %+v ok=%v err=%v", user, ok, err)
	}

	if _, ok, _ := dir.GetByUsername(ctx, "Alice"); ok {
		t.Fatal("expected exact-match username lookup")
	}

	exists, err := dir.UsernameExists(ctx, "alice")
	if err != nil || !exists {
		t.Fatalf("expected alice to exist, got %v %v", exists, err)
	}
	exists, err = dir.UsernameExists(ctx, "nobody")
	if err != nil || exists {
		t.Fatalf("expected nobody to be free, got %v %v", exists, err)
	}
}

func TestSetUsernameRejectsMalformed(t *testing.T) {
	dir := newTestDirectory(t)

	for _, name := range []string{"", "ab", "has space", "émile", "this_name_is_way_too_long_to_be_valid"} {
		t.Run(name, func(t *testing.T) {
			if _, err := dir.SetUsername(context.Background(), "u1", name); !errors.Is(err, ErrInvalidUsername) {
				t.Fatalf("expected ErrInvalidUsername got %v", err)
			}
		})
	}
}

func TestSetUsernameConcurrentClaims(t *testing.T) {
	dir := newTestDirectory(t)

	const claimants = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		taken     int
	)

	wg.Add(claimants)
	for i := 0; i < claimants; i++ {
		go func(i int) {
			defer wg.Done()
			_, err := dir.SetUsername(context.Background(), fmt.Sprintf("u%d", i), "bob")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrUsernameTaken):
				taken++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if successes != 1 || taken != claimants-1 {
		t.Fatalf("expected one winner, got %d successes and %d conflicts", successes, taken)
	}
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	dir := newTestDirectory(t)
	mustClaim(t, dir, "u1", "alice")
	mustClaim(t, dir, "u2", "albert")
	mustClaim(t, dir, "u3", "bob")

	empty, err := dir.Search(ctx, "   ")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil result, got %#v", empty)
	}

	for i := 0; i < 2; i++ {
		got, err := dir.Search(ctx, " al ")
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(got) != 2 || got[0].Username != "alice" || got[1].Username != "albert" {
			t.Fatalf("unexpected search result %+v", got)
		}
	}

	upper, err := dir.Search(ctx, "BO")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(upper) != 1 || upper[0].Username != "bob" {
		t.Fatalf("expected case-insensitive match, got %+v", upper)
	}
}

func TestSearchLimit(t *testing.T) {
	users := repositories.NewMemoryUserRepository()
	dir := New(users, repositories.NewMemoryFollowRepository(users), 2)
	for i := 0; i < 5; i++ {
		mustClaim(t, dir, fmt.Sprintf("u%d", i), fmt.Sprintf("user%d", i))
	}

	got, err := dir.Search(context.Background(), "user")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected limit of 2, got %d", len(got))
	}
}

func TestFollow(t *testing.T) {
	ctx := context.Background()
	dir := newTestDirectory(t)
	mustClaim(t, dir, "subject", "subject")

	for i := 0; i < 3; i++ {
		if err := dir.Follow(ctx, "fan", "subject"); err != nil {
			t.Fatalf("follow: %v", err)
		}
	}

	info, err := dir.FollowInfo(ctx, "subject", "fan")
	if err != nil {
		t.Fatalf("follow info: %v", err)
	}
	if info.Followers != 1 || !info.IsFollowing {
		t.Fatalf("expected a single edge, got %+v", info)
	}

	anonymous, err := dir.FollowInfo(ctx, "subject", "")
	if err != nil {
		t.Fatalf("follow info: %v", err)
	}
	if anonymous.IsFollowing || anonymous.Followers != 1 {
		t.Fatalf("unexpected anonymous info %+v", anonymous)
	}

	if err := dir.Follow(ctx, "subject", "subject"); !errors.Is(err, ErrSelfFollow) {
		t.Fatalf("expected ErrSelfFollow got %v", err)
	}
	if err := dir.Unfollow(ctx, "subject", "subject"); !errors.Is(err, ErrSelfFollow) {
		t.Fatalf("expected ErrSelfFollow on unfollow got %v", err)
	}
	self, err := dir.FollowInfo(ctx, "subject", "subject")
	if err != nil {
		t.Fatalf("follow info: %v", err)
	}
	if self.Following != 0 || self.IsFollowing {
		t.Fatalf("expected no self edge, got %+v", self)
	}

	if err := dir.Follow(ctx, "fan", "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound got %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := dir.Unfollow(ctx, "fan", "subject"); err != nil {
			t.Fatalf("unfollow: %v", err)
		}
	}
	info, err = dir.FollowInfo(ctx, "subject", "fan")
	if err != nil {
		t.Fatalf("follow info: %v", err)
	}
	if info.Followers != 0 || info.IsFollowing {
		t.Fatalf("expected edge removed, got %+v", info)
	}
}
