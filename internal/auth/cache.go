package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/PS-Soundwave/virtu/internal/logging"
)

// TokenCache stores verified identities keyed by credential digest.
type TokenCache interface {
	Get(ctx context.Context, key string) (Identity, bool, error)
	Set(ctx context.Context, key string, identity Identity, ttl time.Duration) error
}

// CachingVerifier wraps another Verifier and remembers successful
// verifications. Entries never outlive the credential's own expiry.
type CachingVerifier struct {
	base  Verifier
	cache TokenCache
	ttl   time.Duration
	now   func() time.Time
}

// NewCachingVerifier returns a Verifier that caches results for at most ttl.
func NewCachingVerifier(base Verifier, cache TokenCache, ttl time.Duration) *CachingVerifier {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachingVerifier{base: base, cache: cache, ttl: ttl, now: time.Now}
}

// Verify serves cached identities when available and otherwise delegates.
// Cache failures are logged and fall through to a fresh verification.
func (c *CachingVerifier) Verify(ctx context.Context, credential string) (Identity, error) {
	key := cacheKey(credential)
	logger := logging.FromContext(ctx)

	identity, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		logger.Warn("credential cache lookup failed", "error", err)
	}
	if ok && c.now().Before(identity.ExpiresAt) {
		return identity, nil
	}

	identity, err = c.base.Verify(ctx, credential)
	if err != nil {
		return Identity{}, err
	}

	ttl := c.ttl
	if remaining := identity.ExpiresAt.Sub(c.now()); remaining < ttl {
		ttl = remaining
	}
	if ttl > 0 {
		if err := c.cache.Set(ctx, key, identity, ttl); err != nil {
			logger.Warn("credential cache store failed", "error", err)
		}
	}

	return identity, nil
}

func cacheKey(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])
}

type cacheEntry struct {
	identity Identity
	expires  time.Time
}

// MemoryTokenCache is a process-local TokenCache.
type MemoryTokenCache struct {
	mu    sync.RWMutex
	items map[string]cacheEntry
	now   func() time.Time
}

func NewMemoryTokenCache() *MemoryTokenCache {
	return &MemoryTokenCache{items: make(map[string]cacheEntry), now: time.Now}
}

func (m *MemoryTokenCache) Get(_ context.Context, key string) (Identity, bool, error) {
	m.mu.RLock()
	entry, ok := m.items[key]
	m.mu.RUnlock()
	if !ok || !m.now().Before(entry.expires) {
		return Identity{}, false, nil
	}
	return entry.identity, true, nil
}

// Set stores identity and evicts any expired entries.
func (m *MemoryTokenCache) Set(_ context.Context, key string, identity Identity, ttl time.Duration) error {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	for k, entry := range m.items {
		if !now.Before(entry.expires) {
			delete(m.items, k)
		}
	}
	m.items[key] = cacheEntry{identity: identity, expires: now.Add(ttl)}
	return nil
}
