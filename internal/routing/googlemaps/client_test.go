package googlemaps

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/looproute/looproute/internal/routing"
)

var (
	dam        = routing.Coordinate{Lat: 52.3731, Lon: 4.8926}
	westerkerk = routing.Coordinate{Lat: 52.3745, Lon: 4.8840}
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(ClientConfig{
		APIKey:     "test-key",
		BaseURL:    baseURL,
		HTTPClient: &http.Client{},
		Timeout:    2 * time.Second,
		Logger:     zerolog.Nop(),
	})
	require.NoError(t, err)
	return c
}

func serveJSON(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func TestClient_Directions(t *testing.T) {
	fixture, err := os.ReadFile("testdata/directions_response.json")
	require.NoError(t, err)

	var query map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/maps/api/directions/json", r.URL.Path)
		q := r.URL.Query()
		query = map[string]string{
			"origin":      q.Get("origin"),
			"destination": q.Get("destination"),
			"mode":        q.Get("mode"),
			"key":         q.Get("key"),
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(fixture)
	}))
	defer server.Close()

	route, err := newTestClient(t, server.URL).Directions(context.Background(), dam, westerkerk)
	require.NoError(t, err)

	assert.Equal(t, "52.373100,4.892600", query["origin"])
	assert.Equal(t, "52.374500,4.884000", query["destination"])
	assert.Equal(t, "walking", query["mode"])
	assert.Equal(t, "test-key", query["key"])

	assert.Equal(t, routing.KindDeviceComputed, route.Kind)
	require.Len(t, route.Path, 3)
	assert.InDelta(t, 38.5, route.Path[0].Lat, 1e-5)
	assert.InDelta(t, -126.453, route.Path[2].Lon, 1e-5)
	assert.Equal(t, 1200.0, route.DistanceMeters)
	require.NotNil(t, route.DurationSeconds)
	assert.Equal(t, 900.0, *route.DurationSeconds)
	assert.Nil(t, route.ElevationGainMeters)

	require.Len(t, route.Steps, 2)
	assert.Equal(t, "Head north on Damrak", route.Steps[0].Instruction)
	assert.Equal(t, 800.0, route.Steps[0].DistanceMeters)
	assert.Len(t, route.Steps[0].Path, 2)
	assert.Equal(t, "Turn left Destination will be on the right", route.Steps[1].Instruction)
	// Steps without a polyline fall back to their end points.
	assert.Equal(t, []routing.Coordinate{{Lat: 40.7, Lon: -120.95}, {Lat: 43.252, Lon: -126.453}}, route.Steps[1].Path)
}

func TestClient_Directions_Statuses(t *testing.T) {
	tests := []struct {
		name      string
		status    string
		sentinel  error
		retryable bool
	}{
		{name: "zero results", status: "ZERO_RESULTS", sentinel: routing.ErrNoRouteFound},
		{name: "not found", status: "NOT_FOUND", sentinel: routing.ErrNoRouteFound},
		{name: "over query limit", status: "OVER_QUERY_LIMIT", sentinel: routing.ErrRateLimitExceeded, retryable: true},
		{name: "invalid request", status: "INVALID_REQUEST", sentinel: routing.ErrInvalidRequest},
		{name: "request denied", status: "REQUEST_DENIED", sentinel: routing.ErrProviderUnavailable, retryable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(serveJSON(`{"routes": [], "status": "` + tt.status + `", "error_message": "test"}`))
			defer server.Close()

			_, err := newTestClient(t, server.URL).Directions(context.Background(), dam, westerkerk)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)

			var rerr *routing.Error
			require.True(t, errors.As(err, &rerr))
			assert.Equal(t, ProviderName, rerr.Provider)
			assert.Equal(t, routing.KindProtocol, rerr.Kind)
			assert.Equal(t, tt.status, rerr.Code)
			assert.Equal(t, tt.retryable, rerr.IsRetryable())
		})
	}
}

func TestClient_Directions_EmptyGeometry(t *testing.T) {
	server := httptest.NewServer(serveJSON(`{"routes": [{"overview_polyline": {"points": ""}, "legs": []}], "status": "OK"}`))
	defer server.Close()

	_, err := newTestClient(t, server.URL).Directions(context.Background(), dam, westerkerk)
	assert.ErrorIs(t, err, routing.ErrDecode)
}

func TestClient_Directions_NetworkError(t *testing.T) {
	server := httptest.NewServer(serveJSON(`{}`))
	url := server.URL
	server.Close()

	_, err := newTestClient(t, url).Directions(context.Background(), dam, westerkerk)
	require.Error(t, err)
	assert.ErrorIs(t, err, routing.ErrProviderUnavailable)

	var rerr *routing.Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, routing.KindTransport, rerr.Kind)
	assert.True(t, rerr.IsRetryable())
}

func TestClient_Directions_InvalidCoordinates(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1")

	_, err := c.Directions(context.Background(), routing.Coordinate{Lat: 91}, westerkerk)
	assert.ErrorIs(t, err, routing.ErrInvalidCoordinates)

	_, err = c.Directions(context.Background(), dam, routing.Coordinate{Lon: 181})
	assert.ErrorIs(t, err, routing.ErrInvalidCoordinates)
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient(ClientConfig{})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestClient_Name(t *testing.T) {
	assert.Equal(t, ProviderName, newTestClient(t, "http://127.0.0.1:1").Name())
}

func TestClient_ImplementsDirectionsProvider(t *testing.T) {
	var _ routing.DirectionsProvider = newTestClient(t, "http://127.0.0.1:1")
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "Head <b>north</b>", want: "Head north"},
		{in: "Turn <b>right</b><div>Pass the church</div>", want: "Turn right Pass the church"},
		{in: "  plain   text ", want: "plain text"},
		{in: "Cross &amp; continue", want: "Cross & continue"},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, stripHTML(tt.in), tt.in)
	}
}
