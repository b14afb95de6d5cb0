// Package middleware provides HTTP middleware for the LoopRoute API.
package middleware

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-Id"

const maxRequestIDLength = 64

// requestInfoKey is the context key for per-request metadata.
type requestInfoKey struct{}

// requestInfo is created once per request and filled in by later middleware,
// so outer middleware such as Logger can report the authenticated user.
type requestInfo struct {
	id string

	mu     sync.Mutex
	userID string
}

// RequestID generates a unique request ID and adds it to the request context.
// A well-formed inbound X-Request-Id is kept. The ID is echoed in the response header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if !validRequestID(requestID) {
			requestID = "req_" + uuid.Must(uuid.NewV7()).String()
		}

		w.Header().Set(RequestIDHeader, requestID)

		ctx := context.WithValue(r.Context(), requestInfoKey{}, &requestInfo{id: requestID})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if info := getRequestInfo(ctx); info != nil {
		return info.id
	}
	return ""
}

func getRequestInfo(ctx context.Context) *requestInfo {
	info, _ := ctx.Value(requestInfoKey{}).(*requestInfo)
	return info
}

// setRequestUser records the authenticated user for outer middleware.
func setRequestUser(ctx context.Context, userID string) {
	if info := getRequestInfo(ctx); info != nil {
		info.mu.Lock()
		info.userID = userID
		info.mu.Unlock()
	}
}

// requestUser returns the user recorded by setRequestUser, if any.
func requestUser(ctx context.Context) string {
	info := getRequestInfo(ctx)
	if info == nil {
		return ""
	}
	info.mu.Lock()
	defer info.mu.Unlock()
	return info.userID
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if c < '!' || c > '~' {
			return false
		}
	}
	return true
}
