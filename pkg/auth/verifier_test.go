package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/medflow/medflow-stock/pkg/auth"
	"github.com/medflow/medflow-stock/pkg/config"
	"github.com/medflow/medflow-stock/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-with-enough-entropy"

func sign(t *testing.T, method jwt.SigningMethod, key interface{}, claims auth.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func validClaims(userID string, expiresIn time.Duration) auth.Claims {
	now := time.Now()
	return auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "medflow",
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		},
		UserID: userID,
		Email:  "almacen@hospital.test",
		Role:   "warehouse",
	}
}

func TestVerifier_Verify(t *testing.T) {
	v := auth.NewVerifier(&config.JWTConfig{Secret: testSecret, Issuer: "medflow"})

	t.Run("valid token yields actor", func(t *testing.T) {
		token := sign(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims("42", time.Hour))

		a, err := v.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, int64(42), a.ID)
		assert.Equal(t, "almacen@hospital.test", a.Email)
		assert.Equal(t, "warehouse", a.Role)
	})

	t.Run("subject used when user_id absent", func(t *testing.T) {
		claims := validClaims("7", time.Hour)
		claims.UserID = ""
		token := sign(t, jwt.SigningMethodHS256, []byte(testSecret), claims)

		a, err := v.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, int64(7), a.ID)
	})

	t.Run("expired token", func(t *testing.T) {
		token := sign(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims("42", -time.Hour))

		_, err := v.Verify(token)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrUnauthorized))
	})

	t.Run("wrong secret", func(t *testing.T) {
		token := sign(t, jwt.SigningMethodHS256, []byte("another-secret"), validClaims("42", time.Hour))

		_, err := v.Verify(token)
		assert.True(t, errors.Is(err, errors.ErrTokenInvalid))
	})

	t.Run("wrong issuer", func(t *testing.T) {
		claims := validClaims("42", time.Hour)
		claims.Issuer = "someone-else"
		token := sign(t, jwt.SigningMethodHS256, []byte(testSecret), claims)

		_, err := v.Verify(token)
		assert.True(t, errors.Is(err, errors.ErrTokenInvalid))
	})

	t.Run("non numeric user id", func(t *testing.T) {
		token := sign(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims("abc", time.Hour))

		_, err := v.Verify(token)
		assert.True(t, errors.Is(err, errors.ErrTokenInvalid))
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := v.Verify("not-a-token")
		assert.True(t, errors.Is(err, errors.ErrTokenInvalid))
	})
}
