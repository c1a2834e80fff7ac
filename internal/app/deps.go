package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/PS-Soundwave/virtu/internal/auth"
	"github.com/PS-Soundwave/virtu/internal/catalog"
	"github.com/PS-Soundwave/virtu/internal/config"
	"github.com/PS-Soundwave/virtu/internal/db"
	"github.com/PS-Soundwave/virtu/internal/directory"
	"github.com/PS-Soundwave/virtu/internal/events"
	"github.com/PS-Soundwave/virtu/internal/handlers"
	"github.com/PS-Soundwave/virtu/internal/middleware"
	"github.com/PS-Soundwave/virtu/internal/repositories"
	"github.com/PS-Soundwave/virtu/internal/storage"
)

// components holds the wired service graph and what must be released on exit.
type components struct {
	catalog *catalog.Service
	media   http.Handler
	closers []func(context.Context) error
}

func (c *components) close(ctx context.Context) error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// buildDependencies wires together concrete implementations used by the HTTP handlers.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config, logger *slog.Logger) (handlers.Dependencies, func(context.Context) error, error) {
	proxies, err := middleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return handlers.Dependencies{}, nil, fmt.Errorf("configure trusted proxies: %w", err)
	}

	c, err := buildComponents(ctx, pool, cfg, logger)
	if err != nil {
		return handlers.Dependencies{}, nil, err
	}

	rl := cfg.RateLimit
	deps := handlers.Dependencies{
		TrustedProxies: proxies,
		Catalog:        c.catalog,
		Logger:         logger,
		Media:          c.media,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}
	if rl.UploadsPerMinute > 0 {
		deps.UploadLimiter = middleware.NewIPRateLimiter(rl.UploadsPerMinute, time.Minute, rl.Burst, 10*time.Minute)
	}
	if rl.SearchesPerMinute > 0 {
		deps.SearchLimiter = middleware.NewIPRateLimiter(rl.SearchesPerMinute, time.Minute, rl.Burst, 10*time.Minute)
	}

	return deps, c.close, nil
}

func buildComponents(ctx context.Context, pool db.Pool, cfg config.Config, logger *slog.Logger) (*components, error) {
	c := &components{}

	var redisClient *redis.Client
	if cfg.Redis.Address != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		c.closers = append(c.closers, func(context.Context) error { return redisClient.Close() })
	}

	store, media, err := buildStore(ctx, cfg.ObjectStore)
	if err != nil {
		_ = c.close(ctx)
		return nil, err
	}
	c.media = media

	sink, err := buildSink(ctx, cfg.Events, logger)
	if err != nil {
		_ = c.close(ctx)
		return nil, err
	}
	dispatcher := events.NewDispatcher(sink, events.DispatcherConfig{
		QueueSize: cfg.Events.QueueSize,
		Workers:   cfg.Events.Workers,
	}, logger)
	c.closers = append(c.closers, dispatcher.Shutdown)

	users := repositories.NewPostgresUserRepository(pool)
	follows := repositories.NewPostgresFollowRepository(pool)

	c.catalog = catalog.New(catalog.Dependencies{
		Verifier: buildVerifier(cfg.Identity, redisClient),
		Users:    directory.New(users, follows, cfg.SearchLimit),
		Videos:   repositories.NewPostgresVideoRepository(pool),
		Media:    store,
		Events:   dispatcher,
	}, catalog.Options{MaxUploadBytes: cfg.MaxUploadBytes})

	return c, nil
}

// buildVerifier prefers the identity provider's published certificates and
// falls back to a shared HMAC secret. Results are cached in Redis when a
// client is supplied, otherwise in process.
func buildVerifier(cfg config.IdentityConfig, redisClient *redis.Client) auth.Verifier {
	var keys auth.KeySource = auth.HMACKeys(cfg.HMACSecret)
	if cfg.CertificatesURL != "" {
		keys = auth.NewCertificateSet(cfg.CertificatesURL, nil)
	}

	verifier := auth.NewJWTVerifier(keys, auth.JWTOptions{
		Issuer:   cfg.Issuer,
		Audience: cfg.Audience,
	})

	var cache auth.TokenCache = auth.NewMemoryTokenCache()
	if redisClient != nil {
		cache = auth.NewRedisTokenCache(redisClient)
	}
	return auth.NewCachingVerifier(verifier, cache, cfg.CacheTTL)
}

func buildStore(ctx context.Context, cfg config.ObjectStoreConfig) (storage.Store, http.Handler, error) {
	switch cfg.Backend {
	case config.MediaBackendS3:
		store, err := storage.NewS3Store(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("configure s3 media store: %w", err)
		}
		return store, nil, nil
	case config.MediaBackendLocal:
		store, err := storage.NewFSStore(cfg.LocalDir, cfg.PublicBaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("configure local media store: %w", err)
		}
		return store, store.Handler(), nil
	default:
		return nil, nil, fmt.Errorf("unknown media backend %q", cfg.Backend)
	}
}

func buildSink(ctx context.Context, cfg config.EventsConfig, logger *slog.Logger) (events.Sink, error) {
	if cfg.QueueURL == "" {
		return events.LogSink{Logger: logger}, nil
	}
	sink, err := events.NewSQSSink(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("configure sqs event sink: %w", err)
	}
	return sink, nil
}
