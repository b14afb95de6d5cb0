// Package response writes JSON bodies and RFC 7807 problems for the API handlers.
package response

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/looproute/looproute/internal/api/middleware"
	"github.com/looproute/looproute/internal/api/models"
)

// JSON writes data as JSON with the given status code.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	setRequestID(w, r)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// Body writes a pre-encoded body such as a GPX document.
func Body(w http.ResponseWriter, r *http.Request, status int, contentType string, data []byte) {
	setRequestID(w, r)
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// NoContent writes a 204 No Content response.
func NoContent(w http.ResponseWriter, r *http.Request) {
	setRequestID(w, r)
	w.WriteHeader(http.StatusNoContent)
}

func setRequestID(w http.ResponseWriter, r *http.Request) {
	if requestID := middleware.GetRequestID(r.Context()); requestID != "" {
		w.Header().Set(middleware.RequestIDHeader, requestID)
	}
}

// Error writes problem with the request path as its instance.
func Error(w http.ResponseWriter, r *http.Request, problem *models.Problem) {
	problem.WithInstance(r.URL.Path).Write(w)
}

func write(w http.ResponseWriter, r *http.Request, build func(traceID, detail string) *models.Problem, detail string) {
	Error(w, r, build(middleware.GetRequestID(r.Context()), detail))
}

// BadRequest writes a 400 validation problem with per-field errors.
func BadRequest(w http.ResponseWriter, r *http.Request, detail string, errors []models.FieldError) {
	Error(w, r, models.NewBadRequest(middleware.GetRequestID(r.Context()), detail, errors))
}

// Unauthorized writes a 401 problem.
func Unauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	write(w, r, models.NewUnauthorized, detail)
}

// NotFound writes a 404 problem.
func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	write(w, r, models.NewNotFound, detail)
}

// NoRoute writes a 422 problem for places no route can be built from.
func NoRoute(w http.ResponseWriter, r *http.Request, detail string) {
	write(w, r, models.NewNoRoute, detail)
}

// QuotaExceeded writes a 429 problem for an exhausted monthly allowance.
// Retry-After counts down to resetAt, the start of the next quota month.
func QuotaExceeded(w http.ResponseWriter, r *http.Request, detail string, resetAt time.Time) {
	if wait := time.Until(resetAt); wait > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(int64(math.Ceil(wait.Seconds())), 10))
	}
	write(w, r, models.NewQuotaExceeded, detail)
}

// InternalError writes a 500 problem. detail must not leak internals.
func InternalError(w http.ResponseWriter, r *http.Request, detail string) {
	write(w, r, models.NewInternalError, detail)
}

// GenerationFailed writes a 502 problem for routes the upstream API could not produce.
func GenerationFailed(w http.ResponseWriter, r *http.Request, detail string) {
	write(w, r, models.NewGenerationFailed, detail)
}

// ServiceUnavailable writes a 503 problem.
func ServiceUnavailable(w http.ResponseWriter, r *http.Request, detail string) {
	write(w, r, models.NewServiceUnavailable, detail)
}
