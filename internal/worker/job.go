// Package worker provides background route generation for LoopRoute.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/looproute/looproute/internal/routing"
)

const (
	// DefaultJobTimeout bounds a single generation job.
	DefaultJobTimeout = 60 * time.Second

	// DefaultMaxRetryAge bounds redelivery when delivery attempts are not tracked.
	DefaultMaxRetryAge = 15 * time.Minute
)

// Point represents a geographic coordinate.
type Point struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon float64 `json:"lon" validate:"gte=-180,lte=180"`
}

// JobPreferences are the route preferences of a generation job.
type JobPreferences struct {
	Quiet         bool `json:"quiet,omitempty"`
	UrbanExplorer bool `json:"urban_explorer,omitempty"`
	AvoidStairs   bool `json:"avoid_stairs,omitempty"`
}

// GenerationJob is a route generation request received from the jobs subscription.
type GenerationJob struct {
	JobID       string         `json:"job_id"`
	UserID      string         `json:"user_id" validate:"required"`
	Origin      *Point         `json:"origin" validate:"required"`
	DistanceKm  float64        `json:"distance_km" validate:"gte=0.5,lte=50"`
	Preferences JobPreferences `json:"preferences"`
}

func (j GenerationJob) coordinate() routing.Coordinate {
	return routing.Coordinate{Lat: j.Origin.Lat, Lon: j.Origin.Lon}
}

func (j GenerationJob) preferences() routing.Preferences {
	return routing.Preferences{
		Quiet:         j.Preferences.Quiet,
		UrbanExplorer: j.Preferences.UrbanExplorer,
		AvoidStairs:   j.Preferences.AvoidStairs,
	}
}

// GenerationResult is published to the results topic once a job finishes.
type GenerationResult struct {
	JobID         string    `json:"job_id"`
	UserID        string    `json:"user_id"`
	Accepted      bool      `json:"accepted"`
	Attempts      int       `json:"attempts,omitempty"`
	DistanceKm    float64   `json:"distance_km,omitempty"`
	PercentageOff float64   `json:"percentage_off,omitempty"`
	Polyline      string    `json:"polyline,omitempty"`
	Error         string    `json:"error,omitempty"`
	CompletedAt   time.Time `json:"completed_at"`
}

// Disposition tells the subscriber what to do with a message.
type Disposition int

const (
	// Ack removes the message from the subscription.
	Ack Disposition = iota
	// Nack asks for redelivery.
	Nack
)

func (d Disposition) String() string {
	if d == Nack {
		return "nack"
	}
	return "ack"
}

// isRetryable reports whether a failed job may succeed on redelivery.
func isRetryable(err error) bool {
	var routingErr *routing.Error
	if errors.As(err, &routingErr) {
		return routingErr.IsRetryable()
	}
	return errors.Is(err, routing.ErrProviderUnavailable) ||
		errors.Is(err, routing.ErrRateLimitExceeded) ||
		errors.Is(err, context.DeadlineExceeded)
}
