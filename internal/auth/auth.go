// Package auth guards the HTTP transport: bearer tokens presented by the
// chat relay and the bcrypt-hashed key for maintenance endpoints.
package auth

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
	ErrBadAdminKey  = errors.New("invalid admin key")
)

const issuer = "sunnie-bot"

type Config struct {
	// JWTSecret enables bearer auth on the command routes when set.
	JWTSecret string
	TokenTTL  time.Duration
	// AdminKeyHash is a bcrypt hash; admin routes are disabled without it.
	AdminKeyHash string
}

func ConfigFromEnv() Config {
	cfg := Config{
		JWTSecret:    os.Getenv("TRANSPORT_JWT_SECRET"),
		TokenTTL:     24 * time.Hour,
		AdminKeyHash: os.Getenv("ADMIN_KEY_HASH"),
	}
	if v := os.Getenv("TRANSPORT_TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.TokenTTL = d
		}
	}
	return cfg
}

// TokenVerifier issues and checks HS256 tokens for the transport relay.
type TokenVerifier struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenVerifier returns nil when no secret is configured.
func NewTokenVerifier(cfg Config) *TokenVerifier {
	if cfg.JWTSecret == "" {
		return nil
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenVerifier{secret: []byte(cfg.JWTSecret), ttl: ttl, now: time.Now}
}

// Issue signs a token for subject. ttl <= 0 uses the configured lifetime.
func (v *TokenVerifier) Issue(subject string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = v.ttl
	}
	now := v.now()
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(v.secret)
}

// Verify parses raw and returns its subject.
func (v *TokenVerifier) Verify(raw string) (string, error) {
	if raw == "" {
		return "", ErrMissingToken
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return claims.Subject, nil
}

// AdminKey checks the key sent to maintenance endpoints.
type AdminKey struct {
	hash []byte
}

// NewAdminKey returns nil when no hash is configured.
func NewAdminKey(cfg Config) *AdminKey {
	if cfg.AdminKeyHash == "" {
		return nil
	}
	return &AdminKey{hash: []byte(cfg.AdminKeyHash)}
}

// HashAdminKey produces the value for ADMIN_KEY_HASH.
func HashAdminKey(key string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (a *AdminKey) Check(key string) error {
	if key == "" || bcrypt.CompareHashAndPassword(a.hash, []byte(key)) != nil {
		return ErrBadAdminKey
	}
	return nil
}
