package models

import (
	"encoding/json"
	"net/http"
)

// Problem is an RFC 7807 error body, served as application/problem+json.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	// TraceID is the request ID, also sent as X-Request-Id.
	TraceID string `json:"traceId"`

	// Errors lists per-field validation failures.
	Errors []FieldError `json:"errors,omitempty"`
}

// FieldError is a validation failure on one request field, named by its JSON path.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

const problemBase = "https://api.looproute.app/problems/"

// Problem type URIs.
const (
	ProblemTypeValidation           = problemBase + "validation-error"
	ProblemTypeUnauthorized         = problemBase + "unauthorized"
	ProblemTypeTLSRequired          = problemBase + "tls-required"
	ProblemTypeNotFound             = problemBase + "not-found"
	ProblemTypeUnsupportedMediaType = problemBase + "unsupported-media-type"
	ProblemTypeNoRoute              = problemBase + "no-route"
	ProblemTypeTooManyRequests      = problemBase + "too-many-requests"
	ProblemTypeQuotaExceeded        = problemBase + "quota-exceeded"
	ProblemTypeInternal             = problemBase + "internal-error"
	ProblemTypeGenerationFailed     = problemBase + "generation-failed"
	ProblemTypeUnavailable          = problemBase + "service-unavailable"
)

// NewProblem creates a Problem without detail.
func NewProblem(problemType, title string, status int, traceID string) *Problem {
	return &Problem{
		Type:    problemType,
		Title:   title,
		Status:  status,
		TraceID: traceID,
	}
}

// Error makes a Problem usable as an error value.
func (p *Problem) Error() string {
	if p.Detail == "" {
		return p.Title
	}
	return p.Title + ": " + p.Detail
}

// WithDetail sets the occurrence-specific explanation.
func (p *Problem) WithDetail(detail string) *Problem {
	p.Detail = detail
	return p
}

// WithInstance sets the request path the problem occurred on.
func (p *Problem) WithInstance(instance string) *Problem {
	p.Instance = instance
	return p
}

// WithErrors sets the per-field validation failures.
func (p *Problem) WithErrors(errors []FieldError) *Problem {
	p.Errors = errors
	return p
}

// Write writes the Problem with its status code.
func (p *Problem) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	if p.TraceID != "" {
		w.Header().Set("X-Request-Id", p.TraceID)
	}
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

func newProblem(problemType, title string, status int) func(traceID, detail string) *Problem {
	return func(traceID, detail string) *Problem {
		return NewProblem(problemType, title, status, traceID).WithDetail(detail)
	}
}

// Constructors for the problems the API returns. Each takes the request ID and a detail.
var (
	NewUnauthorized         = newProblem(ProblemTypeUnauthorized, "Unauthorized", http.StatusUnauthorized)
	NewTLSRequired          = newProblem(ProblemTypeTLSRequired, "TLS required", http.StatusForbidden)
	NewNotFound             = newProblem(ProblemTypeNotFound, "Not found", http.StatusNotFound)
	NewUnsupportedMediaType = newProblem(ProblemTypeUnsupportedMediaType, "Unsupported media type", http.StatusUnsupportedMediaType)
	NewNoRoute              = newProblem(ProblemTypeNoRoute, "No route found", http.StatusUnprocessableEntity)
	NewTooManyRequests      = newProblem(ProblemTypeTooManyRequests, "Too many requests", http.StatusTooManyRequests)
	NewQuotaExceeded        = newProblem(ProblemTypeQuotaExceeded, "Quota exceeded", http.StatusTooManyRequests)
	NewInternalError        = newProblem(ProblemTypeInternal, "Internal server error", http.StatusInternalServerError)
	NewGenerationFailed     = newProblem(ProblemTypeGenerationFailed, "Route generation failed", http.StatusBadGateway)
	NewServiceUnavailable   = newProblem(ProblemTypeUnavailable, "Service unavailable", http.StatusServiceUnavailable)
)

// NewBadRequest creates a 400 validation problem.
func NewBadRequest(traceID, detail string, errors []FieldError) *Problem {
	return NewProblem(ProblemTypeValidation, "Validation error", http.StatusBadRequest, traceID).
		WithDetail(detail).
		WithErrors(errors)
}
