package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/dojaang-api/internal/models"
	appErrors "github.com/noah-isme/dojaang-api/pkg/errors"
)

func signToken(t *testing.T, secret string, claims *models.JWTClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func claimsFor(role models.UserRole, issuer string, ttl time.Duration) *models.JWTClaims {
	now := time.Now()
	return &models.JWTClaims{
		UserID: "user-1",
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

func TestTokenServiceValidateToken(t *testing.T) {
	svc := NewTokenService(TokenConfig{Secret: "secret", Issuer: "dojaang-id"})

	claims, err := svc.ValidateToken(signToken(t, "secret", claimsFor(models.RoleCoach, "dojaang-id", time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, models.RoleCoach, claims.Role)
	assert.Equal(t, "user-1", claims.UserID)
}

func TestTokenServiceRejectsBadTokens(t *testing.T) {
	svc := NewTokenService(TokenConfig{Secret: "secret", Issuer: "dojaang-id"})

	cases := map[string]string{
		"wrong_secret": signToken(t, "other", claimsFor(models.RoleAdmin, "dojaang-id", time.Hour)),
		"expired":      signToken(t, "secret", claimsFor(models.RoleAdmin, "dojaang-id", -time.Minute)),
		"wrong_issuer": signToken(t, "secret", claimsFor(models.RoleAdmin, "elsewhere", time.Hour)),
		"unknown_role": signToken(t, "secret", claimsFor(models.UserRole("JANITOR"), "dojaang-id", time.Hour)),
		"garbage":      "not-a-token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			require.Error(t, err)
			assert.Equal(t, appErrors.ErrUnauthorized.Code, appCode(err))
		})
	}
}
