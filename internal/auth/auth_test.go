package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestTokenVerifier_RoundTrip(t *testing.T) {
	v := NewTokenVerifier(Config{JWTSecret: "s3cret"})
	require.NotNil(t, v)

	tok, err := v.Issue("relay", 0)
	require.NoError(t, err)
	sub, err := v.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "relay", sub)
}

func TestTokenVerifier_Rejects(t *testing.T) {
	v := NewTokenVerifier(Config{JWTSecret: "s3cret", TokenTTL: time.Hour})
	other := NewTokenVerifier(Config{JWTSecret: "different"})

	forged, err := other.Issue("relay", 0)
	require.NoError(t, err)

	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	v.now = func() time.Time { return base }
	expired, err := v.Issue("relay", time.Minute)
	require.NoError(t, err)
	v.now = func() time.Time { return base.Add(2 * time.Minute) }

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Issuer: issuer, Subject: "relay"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := map[string]string{
		"wrong secret": forged,
		"expired":      expired,
		"alg none":     none,
		"garbage":      "not.a.token",
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(tok)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}

	_, err = v.Verify("")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestNewTokenVerifier_DisabledWithoutSecret(t *testing.T) {
	assert.Nil(t, NewTokenVerifier(Config{}))
	assert.Nil(t, NewAdminKey(Config{}))
}

func TestAdminKey(t *testing.T) {
	hash, err := HashAdminKey("open-sesame", bcrypt.MinCost)
	require.NoError(t, err)

	k := NewAdminKey(Config{AdminKeyHash: hash})
	require.NotNil(t, k)
	assert.NoError(t, k.Check("open-sesame"))
	assert.ErrorIs(t, k.Check("nope"), ErrBadAdminKey)
	assert.ErrorIs(t, k.Check(""), ErrBadAdminKey)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("TRANSPORT_JWT_SECRET", "abc")
	t.Setenv("TRANSPORT_TOKEN_TTL", "90m")
	t.Setenv("ADMIN_KEY_HASH", "$2a$04$x")
	cfg := ConfigFromEnv()
	assert.Equal(t, Config{JWTSecret: "abc", TokenTTL: 90 * time.Minute, AdminKeyHash: "$2a$04$x"}, cfg)
}
