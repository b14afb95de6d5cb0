package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ServiceConfig holds configuration for the quota service.
type ServiceConfig struct {
	// Repository stores counters.
	Repository Repository

	// MonthlyLimit is the free allowance (default: 5).
	MonthlyLimit int

	// Now returns the current time (default: time.Now).
	Now func() time.Time

	// Logger for quota operations.
	Logger zerolog.Logger
}

// Service meters route generations per user and month.
type Service struct {
	repo   Repository
	limit  int
	now    func() time.Time
	logger zerolog.Logger
}

// NewService creates a new quota service.
func NewService(cfg ServiceConfig) *Service {
	limit := cfg.MonthlyLimit
	if limit <= 0 {
		limit = DefaultMonthlyLimit
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:   cfg.Repository,
		limit:  limit,
		now:    now,
		logger: cfg.Logger,
	}
}

// Limit returns the free monthly allowance.
func (s *Service) Limit() int {
	return s.limit
}

// Usage returns the user's counter for the current month without consuming it.
func (s *Service) Usage(ctx context.Context, userID string, premium bool) (Usage, error) {
	usage, err := s.current(ctx, userID)
	if err != nil {
		return Usage{}, err
	}
	if !premium {
		usage.Limit = s.limit
	}
	return usage, nil
}

// Consume counts one generation for a free user. Premium users are never limited
// and their generations are not counted. It returns ErrQuotaExceeded once the
// month's allowance is used up. The check and the increment are one repository
// operation, so replicas sharing a store cannot overspend.
func (s *Service) Consume(ctx context.Context, userID string, premium bool) (Usage, error) {
	if premium {
		return s.current(ctx, userID)
	}

	usage := Usage{UserID: userID, Month: MonthOf(s.now()), Limit: s.limit}
	count, err := s.repo.Increment(ctx, userID, usage.Month, s.limit)
	if errors.Is(err, ErrQuotaExceeded) {
		usage.Count = count
		s.logger.Info().
			Str("user_id", userID).
			Str("month", usage.Month).
			Int("count", count).
			Msg("generation quota exceeded")
		return usage, ErrQuotaExceeded
	}
	if err != nil {
		return Usage{}, fmt.Errorf("consume quota: %w", err)
	}
	usage.Count = count
	return usage, nil
}

// Refund returns one generation to a free user, for generations that produced no route.
func (s *Service) Refund(ctx context.Context, userID string, premium bool) error {
	if premium {
		return nil
	}
	if err := s.repo.Decrement(ctx, userID, MonthOf(s.now())); err != nil {
		return fmt.Errorf("refund quota: %w", err)
	}
	return nil
}

// current loads the user's counter, resetting counters from an earlier month.
func (s *Service) current(ctx context.Context, userID string) (Usage, error) {
	month := MonthOf(s.now())

	stored, err := s.repo.Get(ctx, userID)
	if errors.Is(err, ErrUsageNotFound) {
		return Usage{UserID: userID, Month: month}, nil
	}
	if err != nil {
		return Usage{}, fmt.Errorf("load quota usage: %w", err)
	}
	if stored.Month != month {
		return Usage{UserID: userID, Month: month}, nil
	}
	return Usage{UserID: userID, Month: month, Count: stored.Count}, nil
}
