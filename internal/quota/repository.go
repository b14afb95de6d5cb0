package quota

import "context"

// Repository stores generation counters. Increment and Decrement must be atomic
// with respect to each other across every process sharing the store.
type Repository interface {
	// Get returns the stored counter for a user, or ErrUsageNotFound.
	Get(ctx context.Context, userID string) (*Usage, error)

	// Increment adds one generation to the user's counter for month when it is
	// below limit. A counter from another month starts over at 1. It returns the
	// new count, or the current count with ErrQuotaExceeded.
	Increment(ctx context.Context, userID, month string, limit int) (int, error)

	// Decrement removes one generation from the user's counter for month.
	// Counters at zero or from another month are left alone.
	Decrement(ctx context.Context, userID, month string) error
}
