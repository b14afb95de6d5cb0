package routing

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type stubDirections struct {
	name  string
	route *Route
	calls atomic.Int32
	delay time.Duration

	mu  sync.Mutex
	err error
}

func (m *stubDirections) Directions(ctx context.Context, _, _ Coordinate) (*Route, error) {
	m.calls.Add(1)
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.route, nil
}

func (m *stubDirections) Name() string { return m.name }

func (m *stubDirections) fail(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// fakeClock is advanced by hand.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func walkingRoute(meters float64) *Route {
	return &Route{
		Kind:           KindDeviceComputed,
		Path:           []Coordinate{{Lat: 52.3676, Lon: 4.9041}, {Lat: 52.3702, Lon: 4.8952}},
		DistanceMeters: meters,
	}
}

var (
	dam     = Coordinate{Lat: 52.3731, Lon: 4.8926}
	vondel  = Coordinate{Lat: 52.3580, Lon: 4.8686}
	museum  = Coordinate{Lat: 52.3600, Lon: 4.8852}
	farAway = Coordinate{Lat: 52.0907, Lon: 5.1214}
)

func newDirectionsFixture(provider *stubDirections) (*DirectionsService, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	svc := NewDirectionsService(DirectionsServiceConfig{
		Provider:        provider,
		CacheTTL:        time.Minute,
		StaleIfErrorTTL: 10 * time.Minute,
		Now:             clock.Now,
	})
	return svc, clock
}

func TestDirectionsService_CachesWithinTTL(t *testing.T) {
	provider := &stubDirections{name: "google-maps", route: walkingRoute(1850)}
	svc, clock := newDirectionsFixture(provider)

	for i := 0; i < 3; i++ {
		route, err := svc.Directions(context.Background(), dam, vondel)
		if err != nil {
			t.Fatalf("call %d: unexpected error: %v", i, err)
		}
		if route.DistanceMeters != 1850 || route.Kind != KindDeviceComputed {
			t.Fatalf("call %d: unexpected route %+v", i, route)
		}
	}
	if n := provider.calls.Load(); n != 1 {
		t.Fatalf("expected 1 provider call while fresh, got %d", n)
	}

	clock.Advance(time.Minute)
	if _, err := svc.Directions(context.Background(), dam, vondel); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := provider.calls.Load(); n != 2 {
		t.Errorf("expected a refetch once the TTL passed, got %d calls", n)
	}
}

func TestDirectionsService_GridSharesNearbyEndpoints(t *testing.T) {
	provider := &stubDirections{name: "google-maps", route: walkingRoute(1850)}
	svc := NewDirectionsService(DirectionsServiceConfig{Provider: provider, CacheGridSize: 0.01})

	_, _ = svc.Directions(context.Background(), Coordinate{Lat: 52.3731, Lon: 4.8926}, vondel)
	_, _ = svc.Directions(context.Background(), Coordinate{Lat: 52.3735, Lon: 4.8921}, vondel)
	if n := provider.calls.Load(); n != 1 {
		t.Errorf("expected one call for origins in the same cell, got %d", n)
	}

	_, _ = svc.Directions(context.Background(), dam, farAway)
	if n := provider.calls.Load(); n != 2 {
		t.Errorf("expected a call for a different destination cell, got %d", n)
	}
}

func TestDirectionsService_StaleIfError(t *testing.T) {
	provider := &stubDirections{name: "google-maps", route: walkingRoute(1850)}
	svc, clock := newDirectionsFixture(provider)

	if _, err := svc.Directions(context.Background(), dam, museum); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	provider.fail(ErrProviderUnavailable)

	clock.Advance(5 * time.Minute)
	route, err := svc.Directions(context.Background(), dam, museum)
	if err != nil {
		t.Fatalf("expected the stale route, got error: %v", err)
	}
	if route.DistanceMeters != 1850 {
		t.Errorf("expected stale distance 1850, got %f", route.DistanceMeters)
	}
	if stats := svc.CacheStats(); stats.Stale != 1 || stats.Fresh != 0 {
		t.Errorf("expected 1 stale entry, got %+v", stats)
	}

	clock.Advance(5 * time.Minute)
	if _, err := svc.Directions(context.Background(), dam, museum); !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("expected provider error past the stale window, got %v", err)
	}
}

func TestDirectionsService_ErrorWithoutCache(t *testing.T) {
	provider := &stubDirections{name: "google-maps", err: ErrNoRouteFound}
	svc, _ := newDirectionsFixture(provider)

	if _, err := svc.Directions(context.Background(), dam, museum); !errors.Is(err, ErrNoRouteFound) {
		t.Fatalf("expected ErrNoRouteFound, got %v", err)
	}
}

func TestDirectionsService_InvalidCoordinates(t *testing.T) {
	provider := &stubDirections{name: "google-maps"}
	svc, _ := newDirectionsFixture(provider)

	tests := []struct {
		name        string
		origin      Coordinate
		destination Coordinate
		code        string
	}{
		{"origin latitude", Coordinate{Lat: 91}, dam, "INVALID_ORIGIN"},
		{"destination longitude", dam, Coordinate{Lon: 181}, "INVALID_DESTINATION"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Directions(context.Background(), tt.origin, tt.destination)

			var routingErr *Error
			if !errors.As(err, &routingErr) {
				t.Fatalf("expected *Error, got %T", err)
			}
			if routingErr.Code != tt.code || routingErr.Provider != "google-maps" {
				t.Errorf("unexpected error %+v", routingErr)
			}
			if !errors.Is(err, ErrInvalidCoordinates) {
				t.Errorf("expected ErrInvalidCoordinates, got %v", err)
			}
		})
	}
	if n := provider.calls.Load(); n != 0 {
		t.Errorf("provider called %d times for invalid input", n)
	}
}

func TestDirectionsService_ConcurrentMissesShareOneCall(t *testing.T) {
	provider := &stubDirections{name: "google-maps", route: walkingRoute(1850), delay: 50 * time.Millisecond}
	svc, _ := newDirectionsFixture(provider)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Directions(context.Background(), dam, vondel); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := provider.calls.Load(); n != 1 {
		t.Errorf("expected 1 shared provider call, got %d", n)
	}
}

func TestDirectionsService_CallerCancellationLeavesSharedCall(t *testing.T) {
	provider := &stubDirections{name: "google-maps", route: walkingRoute(1850), delay: 100 * time.Millisecond}
	svc, _ := newDirectionsFixture(provider)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := svc.Directions(context.Background(), dam, vondel)
		done <- err
	}()

	if _, err := svc.Directions(ctx, dam, vondel); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected the impatient caller to time out, got %v", err)
	}
	if err := <-done; err != nil {
		t.Errorf("patient caller should still get the route, got %v", err)
	}
	if svc.CacheStats().Fresh != 1 {
		t.Error("expected the shared result to be cached")
	}
}

func TestDirectionsService_SweepsPastStaleWindow(t *testing.T) {
	provider := &stubDirections{name: "google-maps", route: walkingRoute(900)}
	svc, clock := newDirectionsFixture(provider)

	_, _ = svc.Directions(context.Background(), dam, vondel)
	clock.Advance(11 * time.Minute)
	_, _ = svc.Directions(context.Background(), dam, museum)

	if stats := svc.CacheStats(); stats.Entries != 1 || stats.Fresh != 1 {
		t.Errorf("expected only the new entry to survive, got %+v", stats)
	}
}

func TestDirectionsService_InvalidateCache(t *testing.T) {
	provider := &stubDirections{name: "google-maps", route: walkingRoute(1850)}
	svc, _ := newDirectionsFixture(provider)

	_, _ = svc.Directions(context.Background(), dam, vondel)
	svc.InvalidateCache()
	if n := svc.CacheStats().Entries; n != 0 {
		t.Fatalf("expected empty cache after invalidation, got %d entries", n)
	}

	_, _ = svc.Directions(context.Background(), dam, vondel)
	if n := provider.calls.Load(); n != 2 {
		t.Errorf("expected a refetch after invalidation, got %d calls", n)
	}
}

func TestDirectionsService_CellKey(t *testing.T) {
	svc := NewDirectionsService(DirectionsServiceConfig{Provider: &stubDirections{name: "google-maps"}})

	if got, want := svc.cellKey(dam, farAway), "52.3730,4.8920:52.0900,5.1210"; got != want {
		t.Errorf("cellKey = %q, want %q", got, want)
	}
	if svc.Name() != "google-maps" || svc.CacheStats().Provider != "google-maps" {
		t.Error("expected the provider name to be reported")
	}
}
