package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTService_RoundTrip(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("secret"))

	token, expiresAt, err := svc.GenerateAccessToken("0190d1c2-0000-7000-8000-000000000001", "ops@example.com",
		[]string{"staff"}, []string{PermissionRead, PermissionWrite}, false)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expiresAt, time.Minute)

	user, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "0190d1c2-0000-7000-8000-000000000001", user.UserID)
	assert.Equal(t, []string{PermissionRead, PermissionWrite}, user.Permissions)
	assert.False(t, user.IsAdmin)
}

func TestJWTService_Rejects(t *testing.T) {
	issuer := NewJWTService(JWTConfig{Secret: "secret", Issuer: "storefront", AccessTokenTTL: time.Minute})
	valid, _, err := issuer.GenerateAccessToken("u1", "", nil, nil, false)
	require.NoError(t, err)

	expired := NewJWTService(JWTConfig{Secret: "secret", AccessTokenTTL: time.Minute})
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expiredToken, _, err := expired.GenerateAccessToken("u1", "", nil, nil, false)
	require.NoError(t, err)

	otherIssuer, _, err := NewJWTService(JWTConfig{Secret: "secret", Issuer: "elsewhere", AccessTokenTTL: time.Minute}).
		GenerateAccessToken("u1", "", nil, nil, false)
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "u1"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		svc   *JWTService
		token string
	}{
		{"wrong secret", NewJWTService(JWTConfig{Secret: "other", Issuer: "storefront"}), valid},
		{"expired", NewJWTService(DefaultJWTConfig("secret")), expiredToken},
		{"issuer mismatch", issuer, otherIssuer},
		{"unsigned", issuer, unsigned},
		{"garbage", issuer, "not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.svc.ValidateToken(tt.token)
			assert.Error(t, err)
		})
	}
}

func TestJWTService_FallsBackToSubject(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("secret"))
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "subject-id",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	user, err := svc.ValidateToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "subject-id", user.UserID)
}
