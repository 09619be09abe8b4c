package jwt

import (
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, claims Claims) string {
	t.Helper()
	token := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(getSecretKey()))
	require.NoError(t, err)
	return signed
}

func TestValidateTokenExtractsPrincipal(t *testing.T) {
	signed := signToken(t, Claims{
		PrincipalID: "p1",
		DisplayName: "Alice",
		RegisteredClaims: gojwt.RegisteredClaims{
			ExpiresAt: gojwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	claims, err := ValidateToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "p1", claims.PrincipalID)
	assert.Equal(t, "Alice", claims.DisplayName)
}

func TestValidateTokenFallsBackToSubject(t *testing.T) {
	signed := signToken(t, Claims{
		RegisteredClaims: gojwt.RegisteredClaims{
			Subject:   "p-sub",
			ExpiresAt: gojwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	claims, err := ValidateToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "p-sub", claims.PrincipalID)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	signed := signToken(t, Claims{
		PrincipalID: "p1",
		RegisteredClaims: gojwt.RegisteredClaims{
			ExpiresAt: gojwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})

	_, err := ValidateToken(signed)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateTokenRejectsGarbageAndMissingPrincipal(t *testing.T) {
	_, err := ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	signed := signToken(t, Claims{
		RegisteredClaims: gojwt.RegisteredClaims{
			ExpiresAt: gojwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	_, err = ValidateToken(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
