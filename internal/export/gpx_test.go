package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/looproute/looproute/internal/routing"
	"github.com/looproute/looproute/pkg/polyline"
)

func testRoute() *routing.Route {
	path := []routing.Coordinate{
		{Lat: 52.37310, Lon: 4.89260},
		{Lat: 52.37800, Lon: 4.90000},
		{Lat: 52.36500, Lon: 4.88500},
		{Lat: 52.37310, Lon: 4.89260},
	}
	return &routing.Route{
		Kind:           routing.KindExternalAPI,
		Path:           path,
		DistanceMeters: 5000,
		Steps: []routing.Step{
			{Instruction: "Head north", DistanceMeters: 2000, Path: path[0:2]},
			{Instruction: "", DistanceMeters: 10, Path: path[1:2]},
			{Instruction: "Turn left", DistanceMeters: 3000, Path: path[1:4]},
		},
	}
}

func TestToGPX(t *testing.T) {
	route := testRoute()
	ts := time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)

	doc, err := ToGPX(route, GPXOptions{Time: ts, Waypoints: true})
	require.NoError(t, err)

	assert.Equal(t, "5.0 km loop", doc.Name)
	require.NotNil(t, doc.Time)
	assert.True(t, doc.Time.Equal(ts))
	require.Len(t, doc.Tracks, 1)
	require.Len(t, doc.Tracks[0].Segments, 1)

	points := doc.Tracks[0].Segments[0].Points
	require.Len(t, points, len(route.Path))
	for i, p := range points {
		assert.Equal(t, route.Path[i].Lat, p.Latitude)
		assert.Equal(t, route.Path[i].Lon, p.Longitude)
	}

	// Steps without an instruction are skipped.
	require.Len(t, doc.Waypoints, 2)
	assert.Equal(t, "Head north", doc.Waypoints[0].Name)
	assert.Equal(t, "Turn left", doc.Waypoints[1].Name)
	assert.Equal(t, 52.378, doc.Waypoints[1].Latitude)
}

func TestToGPX_Names(t *testing.T) {
	route := testRoute()

	doc, err := ToGPX(route, GPXOptions{Name: "Morning loop"})
	require.NoError(t, err)
	assert.Equal(t, "Morning loop", doc.Name)
	assert.Nil(t, doc.Time)
	assert.Empty(t, doc.Waypoints)

	route.Kind = routing.KindDeviceComputed
	doc, err = ToGPX(route, GPXOptions{})
	require.NoError(t, err)
	assert.Equal(t, "5.0 km walk", doc.Name)
}

func TestToGPX_EmptyRoute(t *testing.T) {
	_, err := ToGPX(nil, GPXOptions{})
	assert.ErrorIs(t, err, ErrEmptyRoute)

	_, err = ToGPX(&routing.Route{}, GPXOptions{})
	assert.ErrorIs(t, err, ErrEmptyRoute)

	var buf bytes.Buffer
	assert.ErrorIs(t, WriteGPX(&buf, &routing.Route{}, GPXOptions{}), ErrEmptyRoute)
	assert.Zero(t, buf.Len())
}

func TestWriteGPX_ParsesBack(t *testing.T) {
	route := testRoute()

	var buf bytes.Buffer
	require.NoError(t, WriteGPX(&buf, route, GPXOptions{Name: "Canal loop"}))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "<?xml"))
	assert.Contains(t, out, "<trkpt")
	assert.Contains(t, out, "Canal loop")

	parsed, err := ParseGPX(&buf)
	require.NoError(t, err)
	assert.Equal(t, routing.KindDeviceComputed, parsed.Kind)
	require.Len(t, parsed.Path, len(route.Path))
	assert.InDelta(t, route.Path[1].Lat, parsed.Path[1].Lat, 1e-9)

	// Parsed distance is measured along the track.
	coords := make([]polyline.Coordinate, len(route.Path))
	for i, c := range route.Path {
		coords[i] = polyline.Coordinate{Lat: c.Lat, Lon: c.Lon}
	}
	assert.InEpsilon(t, polyline.Length(coords), parsed.DistanceMeters, 0.01)
}

func TestParseGPX_Invalid(t *testing.T) {
	_, err := ParseGPX(strings.NewReader("not xml"))
	assert.Error(t, err)

	_, err = ParseGPX(strings.NewReader(`<?xml version="1.0"?><gpx version="1.1" creator="test"></gpx>`))
	assert.ErrorIs(t, err, ErrEmptyRoute)
}
