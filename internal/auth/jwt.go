package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// ErrNoToken is returned when the request carries no bearer token.
var ErrNoToken = errors.New("missing bearer token")

// Config holds the token verification settings.
type Config struct {
	Secret   string        `env:"AUTH_JWT_SECRET"`
	Issuer   string        `env:"AUTH_JWT_ISSUER"`
	Audience string        `env:"AUTH_JWT_AUDIENCE"`
	Leeway   time.Duration `env:"AUTH_JWT_LEEWAY"  envDefault:"30s"`
}

// Authenticator validates HMAC-signed bearer tokens.
type Authenticator struct {
	secret []byte
	opts   []jwtlib.ParserOption
}

// NewAuthenticator creates an authenticator. An empty secret rejects every token.
func NewAuthenticator(cfg Config) *Authenticator {
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithLeeway(cfg.Leeway),
	}

	if cfg.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(cfg.Issuer))
	}

	if cfg.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(cfg.Audience))
	}

	return &Authenticator{secret: []byte(cfg.Secret), opts: opts}
}

// Authenticate extracts and verifies the bearer token of r.
func (a *Authenticator) Authenticate(r *http.Request) (*Identity, error) {
	header := r.Header.Get("Authorization")
	tokenStr, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(tokenStr) == "" {
		return nil, ErrNoToken
	}

	return a.Verify(strings.TrimSpace(tokenStr))
}

// Verify validates a raw token and returns its identity.
func (a *Authenticator) Verify(tokenStr string) (*Identity, error) {
	if len(a.secret) == 0 {
		return nil, errors.New("token verification is not configured")
	}

	claims := jwtlib.MapClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(*jwtlib.Token) (any, error) {
		return a.secret, nil
	}, a.opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, errors.New("token missing sub claim")
	}

	identity := &Identity{Subject: subject}
	if email, ok := claims["email"].(string); ok {
		identity.Email = email
	}

	return identity, nil
}
