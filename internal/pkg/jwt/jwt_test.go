package jwt

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	secret := []byte("k")
	tk, err := GenerateToken("u1", secret, time.Hour)
	require.NoError(t, err)
	claims, err := ParseToken(tk, secret)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, issuer, claims.Issuer)
}

func TestParseTokenRejects(t *testing.T) {
	secret := []byte("k")
	expired, err := GenerateToken("u1", secret, -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(expired, secret)
	require.ErrorIs(t, err, ErrInvalidToken)

	other, err := GenerateToken("u1", []byte("other"), time.Hour)
	require.NoError(t, err)
	_, err = ParseToken(other, secret)
	require.ErrorIs(t, err, ErrInvalidToken)

	foreign, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, Claims{
		UserID:           "u1",
		RegisteredClaims: jwtlib.RegisteredClaims{Issuer: "someone-else"},
	}).SignedString(secret)
	require.NoError(t, err)
	_, err = ParseToken(foreign, secret)
	require.ErrorIs(t, err, ErrInvalidToken)
}
