package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidCredential is returned for any credential that cannot be
// resolved to a user: malformed, expired, wrongly signed or missing a subject.
var ErrInvalidCredential = errors.New("invalid credential")

// Identity is the verified caller behind a credential.
type Identity struct {
	UserID    string    `json:"uid"`
	ExpiresAt time.Time `json:"exp"`
}

// Verifier resolves a bearer credential to a stable user id.
type Verifier interface {
	Verify(ctx context.Context, credential string) (Identity, error)
}

// KeySource supplies verification keys for signed tokens.
type KeySource interface {
	// Methods lists the signing algorithms the source can verify.
	Methods() []string
	// Key returns the key that verifies token.
	Key(ctx context.Context, token *jwt.Token) (any, error)
}

// JWTOptions constrains which tokens a JWTVerifier accepts.
type JWTOptions struct {
	Issuer   string
	Audience string
	Leeway   time.Duration
}

// JWTVerifier validates ID tokens issued by the external identity provider.
type JWTVerifier struct {
	keys   KeySource
	parser *jwt.Parser
}

// NewJWTVerifier constructs a verifier over the provided key source.
func NewJWTVerifier(keys KeySource, opts JWTOptions) *JWTVerifier {
	if opts.Leeway <= 0 {
		opts.Leeway = 30 * time.Second
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods(keys.Methods()),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(opts.Leeway),
	}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
	}
	if opts.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(opts.Audience))
	}

	return &JWTVerifier{keys: keys, parser: jwt.NewParser(parserOpts...)}
}

// Verify checks the credential's signature and registered claims.
func (v *JWTVerifier) Verify(ctx context.Context, credential string) (Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return Identity{}, fmt.Errorf("%w: empty credential", ErrInvalidCredential)
	}

	claims := &jwt.RegisteredClaims{}
	_, err := v.parser.ParseWithClaims(credential, claims, func(token *jwt.Token) (any, error) {
		return v.keys.Key(ctx, token)
	})
	if errors.Is(err, ErrKeysUnavailable) {
		return Identity{}, err
	}
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}

	if strings.TrimSpace(claims.Subject) == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidCredential)
	}

	return Identity{UserID: claims.Subject, ExpiresAt: claims.ExpiresAt.Time}, nil
}
