// Package quota enforces the monthly route generation allowance.
package quota

import (
	"errors"
	"time"
)

// DefaultMonthlyLimit is the number of generations a free user gets per calendar month.
const DefaultMonthlyLimit = 5

// monthLayout formats Usage.Month.
const monthLayout = "2006-01"

var (
	// ErrQuotaExceeded is returned when a free user has used this month's allowance.
	ErrQuotaExceeded = errors.New("monthly generation quota exceeded")

	// ErrUsageNotFound is returned by repositories for users without a stored counter.
	ErrUsageNotFound = errors.New("quota usage not found")
)

// Usage is a user's generation count for one month.
type Usage struct {
	UserID string
	Month  string // YYYY-MM, UTC
	Count  int

	// Limit is the allowance for Month. Zero means unlimited.
	Limit int
}

// Remaining returns the generations left this month, or -1 when unlimited.
func (u Usage) Remaining() int {
	if u.Limit == 0 {
		return -1
	}
	return max(u.Limit-u.Count, 0)
}

// MonthOf returns the quota month of t.
func MonthOf(t time.Time) string {
	return t.UTC().Format(monthLayout)
}

// ResetsAt returns the start of the month after u.Month in UTC, when the count starts over.
// It returns the zero time when Month is malformed.
func (u Usage) ResetsAt() time.Time {
	start, err := time.Parse(monthLayout, u.Month)
	if err != nil {
		return time.Time{}
	}
	return start.AddDate(0, 1, 0)
}
