package response_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/looproute/looproute/internal/api/middleware"
	"github.com/looproute/looproute/internal/api/models"
	"github.com/looproute/looproute/internal/api/response"
)

// requestWithID returns a request whose context went through the RequestID middleware.
func requestWithID(t *testing.T, method, path string) *http.Request {
	t.Helper()
	var processed *http.Request
	middleware.RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		processed = r
	})).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(method, path, http.NoBody))
	require.NotNil(t, processed)
	return processed
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) models.Problem {
	t.Helper()
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var problem models.Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	return problem
}

func TestJSON(t *testing.T) {
	req := requestWithID(t, http.MethodGet, "/v1/ops/health")
	rec := httptest.NewRecorder()

	response.JSON(rec, req, http.StatusOK, map[string]string{"status": "OK"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, middleware.GetRequestID(req.Context()), rec.Header().Get(middleware.RequestIDHeader))
	assert.JSONEq(t, `{"status":"OK"}`, rec.Body.String())
}

func TestJSON_WithoutRequestID(t *testing.T) {
	rec := httptest.NewRecorder()
	response.JSON(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody), http.StatusAccepted, nil)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Header().Get(middleware.RequestIDHeader))
	assert.Empty(t, rec.Body.String())
}

func TestBody(t *testing.T) {
	req := requestWithID(t, http.MethodPost, "/v1/routes:generate")
	rec := httptest.NewRecorder()

	response.Body(rec, req, http.StatusOK, "application/gpx+xml", []byte("<gpx></gpx>"))

	assert.Equal(t, "application/gpx+xml", rec.Header().Get("Content-Type"))
	assert.Equal(t, "<gpx></gpx>", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
}

func TestNoContent(t *testing.T) {
	req := requestWithID(t, http.MethodDelete, "/v1/anything")
	rec := httptest.NewRecorder()

	response.NoContent(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
}

func TestProblemHelpers(t *testing.T) {
	tests := []struct {
		name       string
		write      func(http.ResponseWriter, *http.Request, string)
		wantStatus int
		wantType   string
	}{
		{"unauthorized", response.Unauthorized, http.StatusUnauthorized, models.ProblemTypeUnauthorized},
		{"not found", response.NotFound, http.StatusNotFound, models.ProblemTypeNotFound},
		{"no route", response.NoRoute, http.StatusUnprocessableEntity, models.ProblemTypeNoRoute},
		{"internal error", response.InternalError, http.StatusInternalServerError, models.ProblemTypeInternal},
		{"generation failed", response.GenerationFailed, http.StatusBadGateway, models.ProblemTypeGenerationFailed},
		{"service unavailable", response.ServiceUnavailable, http.StatusServiceUnavailable, models.ProblemTypeUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := requestWithID(t, http.MethodPost, "/v1/routes:generate")
			rec := httptest.NewRecorder()

			tt.write(rec, req, "something happened")

			assert.Equal(t, tt.wantStatus, rec.Code)
			problem := decodeProblem(t, rec)
			assert.Equal(t, tt.wantType, problem.Type)
			assert.Equal(t, tt.wantStatus, problem.Status)
			assert.Equal(t, "something happened", problem.Detail)
			assert.Equal(t, "/v1/routes:generate", problem.Instance)
			assert.Equal(t, middleware.GetRequestID(req.Context()), problem.TraceID)
		})
	}
}

func TestBadRequest_IncludesFieldErrors(t *testing.T) {
	req := requestWithID(t, http.MethodPost, "/v1/routes:generate")
	rec := httptest.NewRecorder()

	response.BadRequest(rec, req, "invalid request", []models.FieldError{
		{Field: "distanceKm", Message: "must be at most 50", Code: "MAX"},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	problem := decodeProblem(t, rec)
	assert.Equal(t, models.ProblemTypeValidation, problem.Type)
	require.Len(t, problem.Errors, 1)
	assert.Equal(t, "distanceKm", problem.Errors[0].Field)
}

func TestQuotaExceeded_SetsRetryAfter(t *testing.T) {
	req := requestWithID(t, http.MethodPost, "/v1/routes:generate")
	rec := httptest.NewRecorder()

	response.QuotaExceeded(rec, req, "Monthly limit reached", time.Now().Add(90*time.Minute))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	retryAfter, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.InDelta(t, 5400, retryAfter, 5)
	assert.Equal(t, models.ProblemTypeQuotaExceeded, decodeProblem(t, rec).Type)
}

func TestQuotaExceeded_PastResetOmitsRetryAfter(t *testing.T) {
	req := requestWithID(t, http.MethodPost, "/v1/routes:generate")
	rec := httptest.NewRecorder()

	response.QuotaExceeded(rec, req, "Monthly limit reached", time.Time{})

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Empty(t, rec.Header().Get("Retry-After"))
}
