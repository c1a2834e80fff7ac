package auth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

// ErrKeysUnavailable reports that verification keys could not be loaded. It
// is an infrastructure failure, not a verdict on the credential.
var ErrKeysUnavailable = errors.New("verification keys unavailable")

// HMACKeys verifies HS256 tokens signed with a shared secret.
type HMACKeys []byte

func (k HMACKeys) Methods() []string { return []string{jwt.SigningMethodHS256.Alg()} }

func (k HMACKeys) Key(context.Context, *jwt.Token) (any, error) {
	if len(k) == 0 {
		return nil, errors.New("hmac secret not configured")
	}
	return []byte(k), nil
}

// CertificateSet verifies RS256 tokens against the identity provider's
// published x509 certificates, a JSON object mapping key id to PEM.
// The set is refetched once the response's max-age has elapsed. A token
// naming an unknown key id triggers a refetch only if none was attempted in
// the last minKeyRefetch, so unknown ids cannot be used to hammer the
// provider. Concurrent refetches share one request.
type CertificateSet struct {
	url    string
	client *http.Client
	now    func() time.Time
	group  singleflight.Group

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	expires   time.Time
	attempted time.Time
}

const (
	defaultCertificateMaxAge = time.Hour
	minKeyRefetch            = time.Minute
)

// NewCertificateSet returns a key source backed by the certificates at url.
func NewCertificateSet(url string, client *http.Client) *CertificateSet {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &CertificateSet{url: url, client: client, now: time.Now}
}

func (c *CertificateSet) Methods() []string { return []string{jwt.SigningMethodRS256.Alg()} }

func (c *CertificateSet) Key(ctx context.Context, token *jwt.Token) (any, error) {
	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		return nil, errors.New("token has no key id")
	}

	c.mu.Lock()
	now := c.now()
	key, known := c.keys[kid]
	fresh := now.Before(c.expires)
	recent := now.Sub(c.attempted) < minKeyRefetch
	c.mu.Unlock()

	switch {
	case known && fresh:
		return key, nil
	case fresh && recent:
		return nil, fmt.Errorf("unknown key id %q", kid)
	}

	if _, err, _ := c.group.Do(c.url, func() (any, error) {
		return nil, c.refresh(ctx)
	}); err != nil {
		return nil, err
	}

	c.mu.Lock()
	key, known = c.keys[kid]
	c.mu.Unlock()
	if !known {
		return nil, fmt.Errorf("unknown key id %q", kid)
	}
	return key, nil
}

// refresh fetches the certificate map without holding mu and swaps it in.
func (c *CertificateSet) refresh(ctx context.Context) error {
	c.mu.Lock()
	c.attempted = c.now()
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("%w: build certificate request: %w", ErrKeysUnavailable, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: fetch certificates: %w", ErrKeysUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: fetch certificates: unexpected status %d", ErrKeysUnavailable, resp.StatusCode)
	}

	var pems map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&pems); err != nil {
		return fmt.Errorf("%w: decode certificates: %w", ErrKeysUnavailable, err)
	}

	keys := make(map[string]*rsa.PublicKey, len(pems))
	for kid, pem := range pems {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pem))
		if err != nil {
			return fmt.Errorf("%w: parse certificate %q: %w", ErrKeysUnavailable, kid, err)
		}
		keys[kid] = key
	}

	c.mu.Lock()
	c.keys = keys
	c.expires = c.now().Add(maxAge(resp.Header.Get("Cache-Control")))
	c.mu.Unlock()
	return nil
}

func maxAge(cacheControl string) time.Duration {
	for _, directive := range strings.Split(cacheControl, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(directive), "=")
		if !ok || !strings.EqualFold(name, "max-age") {
			continue
		}
		seconds, err := strconv.Atoi(strings.Trim(value, `"`))
		if err != nil || seconds <= 0 {
			break
		}
		return time.Duration(seconds) * time.Second
	}
	return defaultCertificateMaxAge
}
