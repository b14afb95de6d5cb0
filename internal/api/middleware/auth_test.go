package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/looproute/looproute/internal/api/middleware"
	"github.com/looproute/looproute/internal/auth"
)

const testSigningKey = "test-secret-key-for-testing-only"

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func createTestJWTService() *auth.JWTService {
	return auth.NewJWTService(auth.JWTConfig{
		SigningKey: testSigningKey,
		Issuer:     "https://api.looproute.app",
		Audience:   "looproute-api",
	})
}

func issueToken(t *testing.T, svc *auth.JWTService, p auth.Principal) string {
	t.Helper()
	token, _, err := svc.GenerateAccessToken(p)
	require.NoError(t, err)
	return token
}

func TestAuth_Rejections(t *testing.T) {
	svc := createTestJWTService()

	expiredSvc := auth.NewJWTService(auth.JWTConfig{
		SigningKey: testSigningKey,
		Issuer:     "https://api.looproute.app",
		Audience:   "looproute-api",
		Now:        func() time.Time { return time.Now().Add(-2 * time.Hour) },
	})
	expired := issueToken(t, expiredSvc, auth.Principal{UserID: "usr_old"})

	tests := []struct {
		name       string
		header     string
		wantDetail string
		wantError  bool
	}{
		{"missing header", "", "missing authorization header", false},
		{"no scheme", "token123", "invalid authorization header format", false},
		{"basic scheme", "Basic dXNlcjpwYXNz", "invalid authorization header format", false},
		{"scheme only", "Bearer", "invalid authorization header format", false},
		{"empty token", "Bearer ", "missing bearer token", false},
		{"garbage token", "Bearer invalid.jwt.token", "invalid access token", true},
		{"expired token", "Bearer " + expired, "access token has expired", true},
	}

	handler := middleware.Auth(svc)(okHandler())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/routes:generate", http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
			assert.Contains(t, rec.Body.String(), tt.wantDetail)
			assert.Contains(t, rec.Body.String(), `"instance":"/v1/routes:generate"`)

			challenge := rec.Header().Get("WWW-Authenticate")
			assert.Contains(t, challenge, `Bearer realm="looproute"`)
			if tt.wantError {
				assert.Contains(t, challenge, `error="invalid_token"`)
			} else {
				assert.NotContains(t, challenge, "error=")
			}
		})
	}
}

func TestAuth_ValidToken(t *testing.T) {
	svc := createTestJWTService()
	token := issueToken(t, svc, auth.Principal{UserID: "usr_testuser123", Premium: true})

	var got auth.Principal
	handler := middleware.Auth(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = middleware.GetPrincipal(r.Context())
		assert.Equal(t, "usr_testuser123", middleware.GetUserID(r.Context()))
		w.WriteHeader(http.StatusOK)
	}))

	for _, scheme := range []string{"Bearer", "bearer", "BEARER"} {
		t.Run(scheme, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/ops/status", http.NoBody)
			req.Header.Set("Authorization", scheme+" "+token)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Empty(t, rec.Header().Get("WWW-Authenticate"))
			assert.Equal(t, auth.Principal{UserID: "usr_testuser123", Premium: true}, got)
		})
	}
}

func TestPrincipalContext(t *testing.T) {
	_, ok := middleware.GetPrincipal(context.Background())
	assert.False(t, ok)
	assert.Empty(t, middleware.GetUserID(context.Background()))

	ctx := middleware.WithPrincipal(context.Background(), auth.Principal{UserID: "usr_1"})
	p, ok := middleware.GetPrincipal(ctx)
	require.True(t, ok)
	assert.Equal(t, "usr_1", p.UserID)
	assert.False(t, p.Premium)
}
