package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type certificateServer struct {
	*httptest.Server
	hits atomic.Int32
}

func encodePublicKeys(t *testing.T, keys map[string]*rsa.PrivateKey) map[string]string {
	t.Helper()

	pems := make(map[string]string, len(keys))
	for kid, key := range keys {
		der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
		if err != nil {
			t.Fatalf("marshal public key: %v", err)
		}
		pems[kid] = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
	}
	return pems
}

func newCertificateServer(t *testing.T, cacheControl string, keys map[string]*rsa.PrivateKey) *certificateServer {
	t.Helper()

	pems := encodePublicKeys(t, keys)
	srv := &certificateServer{}
	srv.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		srv.hits.Add(1)
		if cacheControl != "" {
			w.Header().Set("Cache-Control", cacheControl)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(pems)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func generateKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func signRS256(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.RegisteredClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestCertificateSetVerifiesAndCaches(t *testing.T) {
	key := generateKey(t)
	srv := newCertificateServer(t, "public, max-age=600, must-revalidate", map[string]*rsa.PrivateKey{"k1": key})

	verifier := NewJWTVerifier(NewCertificateSet(srv.URL, srv.Client()), JWTOptions{})

	for i := 0; i < 3; i++ {
		identity, err := verifier.Verify(context.Background(), signRS256(t, key, "k1", validClaims()))
		if err != nil {
			t.Fatalf("verify attempt %d: %v", i+1, err)
		}
		if identity.UserID != "uid-1" {
			t.Fatalf("unexpected user id %q", identity.UserID)
		}
	}

	if hits := srv.hits.Load(); hits != 1 {
		t.Fatalf("expected certificates to be fetched once, got %d", hits)
	}
}

func TestCertificateSetRefreshesAfterMaxAge(t *testing.T) {
	key := generateKey(t)
	srv := newCertificateServer(t, "max-age=60", map[string]*rsa.PrivateKey{"k1": key})

	certs := NewCertificateSet(srv.URL, srv.Client())
	now := time.Now()
	certs.now = func() time.Time { return now }
	verifier := NewJWTVerifier(certs, JWTOptions{})

	token := signRS256(t, key, "k1", validClaims())
	if _, err := verifier.Verify(context.Background(), token); err != nil {
		t.Fatalf("verify: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := verifier.Verify(context.Background(), token); err != nil {
		t.Fatalf("verify after expiry: %v", err)
	}

	if hits := srv.hits.Load(); hits != 2 {
		t.Fatalf("expected a refetch after max-age, got %d fetches", hits)
	}
}

func TestCertificateSetRejectsUnknownKeyAndWrongSigner(t *testing.T) {
	key := generateKey(t)
	srv := newCertificateServer(t, "max-age=600", map[string]*rsa.PrivateKey{"k1": key})
	verifier := NewJWTVerifier(NewCertificateSet(srv.URL, srv.Client()), JWTOptions{})

	if _, err := verifier.Verify(context.Background(), signRS256(t, key, "k2", validClaims())); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential for unknown kid, got %v", err)
	}

	other := generateKey(t)
	if _, err := verifier.Verify(context.Background(), signRS256(t, other, "k1", validClaims())); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential for foreign signer, got %v", err)
	}

	if _, err := verifier.Verify(context.Background(), signHS256(t, testSecret, validClaims())); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential for HS256 token, got %v", err)
	}
}

func TestCertificateSetUnknownKeyIDsDoNotRefetch(t *testing.T) {
	key := generateKey(t)
	srv := newCertificateServer(t, "max-age=3600", map[string]*rsa.PrivateKey{"k1": key})
	verifier := NewJWTVerifier(NewCertificateSet(srv.URL, srv.Client()), JWTOptions{})

	if _, err := verifier.Verify(context.Background(), signRS256(t, key, "k1", validClaims())); err != nil {
		t.Fatalf("verify: %v", err)
	}

	attacker := generateKey(t)
	tokens := make([]string, 50)
	for i := range tokens {
		tokens[i] = signRS256(t, attacker, fmt.Sprintf("bogus-%d", i), validClaims())
	}

	var wg sync.WaitGroup
	for _, token := range tokens {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := verifier.Verify(context.Background(), token); !errors.Is(err, ErrInvalidCredential) {
				t.Errorf("expected ErrInvalidCredential for unknown kid, got %v", err)
			}
		}()
	}
	wg.Wait()

	if hits := srv.hits.Load(); hits != 1 {
		t.Fatalf("expected a single certificate fetch, got %d", hits)
	}
}

func TestCertificateSetPicksUpRotatedKey(t *testing.T) {
	oldKey, newKey := generateKey(t), generateKey(t)

	var current atomic.Value
	current.Store(encodePublicKeys(t, map[string]*rsa.PrivateKey{"k1": oldKey}))
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Cache-Control", "max-age=3600")
		_ = json.NewEncoder(w).Encode(current.Load())
	}))
	defer srv.Close()

	certs := NewCertificateSet(srv.URL, srv.Client())
	now := time.Now()
	certs.now = func() time.Time { return now }
	verifier := NewJWTVerifier(certs, JWTOptions{})

	if _, err := verifier.Verify(context.Background(), signRS256(t, oldKey, "k1", validClaims())); err != nil {
		t.Fatalf("verify: %v", err)
	}

	current.Store(encodePublicKeys(t, map[string]*rsa.PrivateKey{"k1": oldKey, "k2": newKey}))
	rotated := signRS256(t, newKey, "k2", validClaims())

	if _, err := verifier.Verify(context.Background(), rotated); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected rotated key to be unknown right after a fetch, got %v", err)
	}

	now = now.Add(minKeyRefetch + time.Second)
	if _, err := verifier.Verify(context.Background(), rotated); err != nil {
		t.Fatalf("verify with rotated key: %v", err)
	}
	if got := hits.Load(); got != 2 {
		t.Fatalf("expected two certificate fetches, got %d", got)
	}
}

func TestCertificateSetUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	verifier := NewJWTVerifier(NewCertificateSet(srv.URL, srv.Client()), JWTOptions{})
	_, err := verifier.Verify(context.Background(), signRS256(t, generateKey(t), "k1", validClaims()))
	if !errors.Is(err, ErrKeysUnavailable) {
		t.Fatalf("expected ErrKeysUnavailable got %v", err)
	}
	if errors.Is(err, ErrInvalidCredential) {
		t.Fatal("key outage must not be reported as an invalid credential")
	}
}

func TestMaxAge(t *testing.T) {
	cases := map[string]time.Duration{
		"":                               defaultCertificateMaxAge,
		"no-cache":                       defaultCertificateMaxAge,
		"public, max-age=19302, must-re": 19302 * time.Second,
		"MAX-AGE=10":                     10 * time.Second,
		"max-age=abc":                    defaultCertificateMaxAge,
		"max-age=0":                      defaultCertificateMaxAge,
	}
	for header, want := range cases {
		if got := maxAge(header); got != want {
			t.Errorf("maxAge(%q) = %v want %v", header, got, want)
		}
	}
}
