package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/PS-Soundwave/virtu/internal/config"
)

type fakePool struct{}

func (fakePool) Acquire(context.Context) (*pgxpool.Conn, error) {
	return nil, errors.New("not implemented")
}

func (fakePool) Close() {}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildDependenciesLocal(t *testing.T) {
	cfg := config.Config{
		MaxUploadBytes: 1 << 20,
		Identity:       config.IdentityConfig{HMACSecret: "secret", CacheTTL: time.Minute},
		ObjectStore: config.ObjectStoreConfig{
			Backend:       config.MediaBackendLocal,
			LocalDir:      t.TempDir(),
			PublicBaseURL: "http://localhost:8080/media",
		},
		RateLimit:      config.RateLimitConfig{UploadsPerMinute: 10, SearchesPerMinute: 0, Burst: 2},
		TrustedProxies: "10.0.0.0/8",
	}

	deps, cleanup, err := buildDependencies(context.Background(), fakePool{}, cfg, quietLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cleanup == nil {
		t.Fatal("expected cleanup function")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := cleanup(ctx); err != nil {
			t.Errorf("cleanup: %v", err)
		}
	}()

	if deps.Catalog == nil {
		t.Fatal("expected catalog to be configured")
	}
	if deps.Media == nil {
		t.Fatal("expected local media handler to be mounted")
	}
	if deps.UploadLimiter == nil || deps.SearchLimiter != nil {
		t.Fatal("expected only the upload limiter to be configured")
	}
	if len(deps.TrustedProxies) != 1 {
		t.Fatalf("unexpected trusted proxies %v", deps.TrustedProxies)
	}
	if deps.MaxUploadBytes != 1<<20 {
		t.Fatalf("unexpected upload limit %d", deps.MaxUploadBytes)
	}
	if got := deps.Catalog.MediaURL("k.mp4"); got != "http://localhost:8080/media/k.mp4" {
		t.Fatalf("unexpected media url %q", got)
	}
}

func TestBuildDependenciesRemote(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	cfg := config.Config{
		MaxUploadBytes: 1 << 20,
		Identity:       config.IdentityConfig{CertificatesURL: "https://certs.example.com", CacheTTL: time.Minute},
		ObjectStore: config.ObjectStoreConfig{
			Backend:       config.MediaBackendS3,
			Bucket:        "virtu-media",
			Region:        "us-east-1",
			Endpoint:      "http://localhost:9000",
			PublicBaseURL: "https://cdn.example.com",
		},
		Redis:  config.RedisConfig{Address: "localhost:6379"},
		Events: config.EventsConfig{QueueURL: "https://sqs.us-east-1.amazonaws.com/123/uploads", Region: "us-east-1"},
	}

	deps, cleanup, err := buildDependencies(context.Background(), fakePool{}, cfg, quietLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = cleanup(context.Background()) }()

	if deps.Media != nil {
		t.Fatal("expected no local media handler for the s3 backend")
	}
	if got := deps.Catalog.MediaURL("k.mp4"); got != "https://cdn.example.com/k.mp4" {
		t.Fatalf("unexpected media url %q", got)
	}
}

func TestBuildDependenciesRejectsMalformedProxies(t *testing.T) {
	cfg := config.Config{
		MaxUploadBytes: 1 << 20,
		TrustedProxies: "10.0.0.0/8, proxy.internal",
		Identity:       config.IdentityConfig{HMACSecret: "secret"},
		ObjectStore:    config.ObjectStoreConfig{Backend: config.MediaBackendLocal, LocalDir: t.TempDir()},
	}

	if _, _, err := buildDependencies(context.Background(), fakePool{}, cfg, quietLogger()); err == nil {
		t.Fatal("expected malformed trusted proxy list to fail")
	}
}

func TestBuildVerifierWithHMACSecret(t *testing.T) {
	verifier := buildVerifier(config.IdentityConfig{HMACSecret: "secret", Audience: "virtu", CacheTTL: time.Minute}, nil)

	claims := jwt.RegisteredClaims{
		Subject:   "uid-1",
		Audience:  jwt.ClaimStrings{"virtu"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	identity, err := verifier.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if identity.UserID != "uid-1" {
		t.Fatalf("unexpected user id %q", identity.UserID)
	}
}

func TestRunRejectsUnknownCommands(t *testing.T) {
	if err := Run(context.Background(), nil); err == nil {
		t.Fatal("expected error without a command")
	}
	if err := Run(context.Background(), []string{"launch"}); err == nil {
		t.Fatal("expected error for unknown command")
	}
	if err := Run(context.Background(), []string{"attach-thumbnail", "only-one-arg"}); err == nil {
		t.Fatal("expected usage error")
	}
}

func TestListMigrations(t *testing.T) {
	migrations, err := listMigrations("../../migrations")
	if err != nil {
		t.Fatalf("list migrations: %v", err)
	}
	if len(migrations) == 0 || migrations[0] != "0001_init.sql" {
		t.Fatalf("unexpected migrations %v", migrations)
	}
}
