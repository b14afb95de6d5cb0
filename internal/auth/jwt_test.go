package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/looproute/looproute/internal/auth"
)

const (
	testIssuer   = "https://api.looproute.app"
	testAudience = "looproute-api"
)

func newService(key, issuer, audience string) *auth.JWTService {
	return auth.NewJWTService(auth.JWTConfig{
		SigningKey: key,
		Issuer:     issuer,
		Audience:   audience,
	})
}

func TestJWTService_GenerateAndValidateAccessToken(t *testing.T) {
	svc := newService("test-secret-key-for-testing-only", testIssuer, testAudience)

	// Generate token
	token, expiresAt, err := svc.GenerateAccessToken(auth.Principal{UserID: "usr_test123"})
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))

	// Validate token
	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "usr_test123", claims.UserID)
	assert.Equal(t, "usr_test123", claims.Subject)
	assert.Equal(t, testIssuer, claims.Issuer)
	assert.Equal(t, auth.Principal{UserID: "usr_test123"}, claims.Principal())
}

func TestJWTService_PremiumClaim(t *testing.T) {
	svc := newService("test-secret-key-for-testing-only", testIssuer, testAudience)

	token, _, err := svc.GenerateAccessToken(auth.Principal{UserID: "usr_premium", Premium: true})
	require.NoError(t, err)

	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.True(t, claims.Premium)
	assert.True(t, claims.Principal().Premium)
}

func TestJWTService_InvalidToken(t *testing.T) {
	svc := newService("test-secret-key-for-testing-only", testIssuer, testAudience)

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"malformed token", "not.a.valid.jwt"},
		{"invalid base64", "xxx.yyy.zzz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ValidateAccessToken(tt.token)
			assert.Error(t, err)
		})
	}
}

func TestJWTService_WrongSigningKey(t *testing.T) {
	// Generate with one key
	svc1 := newService("key-one", testIssuer, testAudience)
	token, _, err := svc1.GenerateAccessToken(auth.Principal{UserID: "usr_test123"})
	require.NoError(t, err)

	// Validate with different key
	svc2 := newService("key-two", testIssuer, testAudience)
	_, err = svc2.ValidateAccessToken(token)
	assert.ErrorIs(t, err, auth.ErrInvalidAccessToken)
}

func TestJWTService_WrongIssuer(t *testing.T) {
	token, _, err := newService("test-key", "issuer-one", testAudience).
		GenerateAccessToken(auth.Principal{UserID: "usr_test123"})
	require.NoError(t, err)

	_, err = newService("test-key", "issuer-two", testAudience).ValidateAccessToken(token)
	assert.Error(t, err)
}

func TestJWTService_WrongAudience(t *testing.T) {
	token, _, err := newService("test-key", testIssuer, "audience-one").
		GenerateAccessToken(auth.Principal{UserID: "usr_test123"})
	require.NoError(t, err)

	_, err = newService("test-key", testIssuer, "audience-two").ValidateAccessToken(token)
	assert.Error(t, err)
}

func TestJWTService_Expired(t *testing.T) {
	issued := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	now := issued

	svc := auth.NewJWTService(auth.JWTConfig{
		SigningKey: "test-key",
		Issuer:     testIssuer,
		Audience:   testAudience,
		Now:        func() time.Time { return now },
	})

	token, expiresAt, err := svc.GenerateAccessToken(auth.Principal{UserID: "usr_test123"})
	require.NoError(t, err)
	assert.Equal(t, issued.Add(auth.AccessTokenExpiry), expiresAt)

	now = expiresAt.Add(time.Minute)
	_, err = svc.ValidateAccessToken(token)
	assert.ErrorIs(t, err, auth.ErrAccessTokenExpired)
}

func TestJWTService_MissingUserID(t *testing.T) {
	svc := newService("test-key", testIssuer, testAudience)

	_, _, err := svc.GenerateAccessToken(auth.Principal{})
	assert.ErrorIs(t, err, auth.ErrMissingUserID)

	// A correctly signed token without a uid claim is rejected.
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Audience:  jwt.ClaimStrings{testAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte("test-key"))
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(signed)
	assert.ErrorIs(t, err, auth.ErrMissingUserID)
}

func TestJWTService_KeyRotation(t *testing.T) {
	old := newService("old-key", testIssuer, testAudience)
	token, _, err := old.GenerateAccessToken(auth.Principal{UserID: "usr_rotated"})
	require.NoError(t, err)

	rotated := auth.NewJWTService(auth.JWTConfig{
		SigningKey:          "new-key",
		PreviousSigningKeys: []string{"", "old-key"},
		Issuer:              testIssuer,
		Audience:            testAudience,
	})

	claims, err := rotated.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "usr_rotated", claims.UserID)

	// New tokens are signed with the current key only.
	fresh, _, err := rotated.GenerateAccessToken(auth.Principal{UserID: "usr_rotated"})
	require.NoError(t, err)
	_, err = old.ValidateAccessToken(fresh)
	assert.ErrorIs(t, err, auth.ErrInvalidAccessToken)
	_, err = newService("new-key", testIssuer, testAudience).ValidateAccessToken(fresh)
	assert.NoError(t, err)
}

func TestJWTService_Leeway(t *testing.T) {
	issued := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	now := issued

	svc := auth.NewJWTService(auth.JWTConfig{
		SigningKey: "test-key",
		Issuer:     testIssuer,
		Audience:   testAudience,
		Leeway:     20 * time.Second,
		Now:        func() time.Time { return now },
	})
	token, expiresAt, err := svc.GenerateAccessToken(auth.Principal{UserID: "usr_test123"})
	require.NoError(t, err)

	now = expiresAt.Add(10 * time.Second)
	_, err = svc.ValidateAccessToken(token)
	assert.NoError(t, err)

	now = expiresAt.Add(time.Minute)
	_, err = svc.ValidateAccessToken(token)
	assert.ErrorIs(t, err, auth.ErrAccessTokenExpired)
}

func TestJWTService_NoSigningKey(t *testing.T) {
	svc := newService("", testIssuer, testAudience)

	_, _, err := svc.GenerateAccessToken(auth.Principal{UserID: "usr_test123"})
	assert.ErrorIs(t, err, auth.ErrNoSigningKey)

	_, err = svc.ValidateAccessToken("a.b.c")
	assert.ErrorIs(t, err, auth.ErrNoSigningKey)
}
