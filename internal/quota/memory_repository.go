package quota

import (
	"context"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository.
// Counters are lost on restart.
type InMemoryRepository struct {
	mu    sync.Mutex
	usage map[string]Usage
}

// NewInMemoryRepository creates a new in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		usage: make(map[string]Usage),
	}
}

// Get returns the stored counter for a user.
func (r *InMemoryRepository) Get(_ context.Context, userID string) (*Usage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.usage[userID]
	if !ok {
		return nil, ErrUsageNotFound
	}
	return &u, nil
}

// Increment adds one generation when the user is below limit.
func (r *InMemoryRepository) Increment(_ context.Context, userID, month string, limit int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.usage[userID]
	if !ok || u.Month != month {
		u = Usage{UserID: userID, Month: month}
	}
	if u.Count >= limit {
		return u.Count, ErrQuotaExceeded
	}
	u.Count++
	r.usage[userID] = u
	return u.Count, nil
}

// Decrement removes one generation from the user's counter for month.
func (r *InMemoryRepository) Decrement(_ context.Context, userID, month string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.usage[userID]
	if !ok || u.Month != month || u.Count == 0 {
		return nil
	}
	u.Count--
	r.usage[userID] = u
	return nil
}
