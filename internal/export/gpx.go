// Package export renders routes in interchange formats.
package export

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tkrajina/gpxgo/gpx"

	"github.com/looproute/looproute/internal/routing"
)

// ContentTypeGPX is the media type of GPX documents.
const ContentTypeGPX = "application/gpx+xml"

const creator = "looproute"

// ErrEmptyRoute is returned when a route has no path to export.
var ErrEmptyRoute = errors.New("route has no path")

// GPXOptions controls GPX rendering.
type GPXOptions struct {
	// Name of the track. Defaults to a distance based name like "5.0 km loop".
	Name string

	// Time stamps the document metadata. Zero omits it.
	Time time.Time

	// Waypoints adds a waypoint at the start of every instruction step.
	Waypoints bool
}

// ToGPX converts a route into a GPX document with a single track segment.
func ToGPX(route *routing.Route, opts GPXOptions) (*gpx.GPX, error) {
	if route == nil || len(route.Path) == 0 {
		return nil, ErrEmptyRoute
	}

	name := opts.Name
	if name == "" {
		name = defaultName(route)
	}

	doc := &gpx.GPX{
		Version: "1.1",
		Creator: creator,
		Name:    name,
	}
	if !opts.Time.IsZero() {
		t := opts.Time.UTC()
		doc.Time = &t
	}

	segment := gpx.GPXTrackSegment{Points: make([]gpx.GPXPoint, 0, len(route.Path))}
	for _, c := range route.Path {
		segment.Points = append(segment.Points, gpx.GPXPoint{
			Point: gpx.Point{Latitude: c.Lat, Longitude: c.Lon},
		})
	}
	doc.Tracks = []gpx.GPXTrack{{
		Name:     name,
		Type:     route.Kind.String(),
		Segments: []gpx.GPXTrackSegment{segment},
	}}

	if opts.Waypoints {
		for _, step := range route.Steps {
			if len(step.Path) == 0 || step.Instruction == "" {
				continue
			}
			doc.Waypoints = append(doc.Waypoints, gpx.GPXPoint{
				Point: gpx.Point{Latitude: step.Path[0].Lat, Longitude: step.Path[0].Lon},
				Name:  step.Instruction,
			})
		}
	}
	return doc, nil
}

// MarshalGPX renders a route as indented GPX 1.1 XML.
func MarshalGPX(route *routing.Route, opts GPXOptions) ([]byte, error) {
	doc, err := ToGPX(route, opts)
	if err != nil {
		return nil, err
	}
	data, err := doc.ToXml(gpx.ToXmlParams{Version: "1.1", Indent: true})
	if err != nil {
		return nil, fmt.Errorf("encoding gpx: %w", err)
	}
	return data, nil
}

// WriteGPX writes a route as GPX to w.
func WriteGPX(w io.Writer, route *routing.Route, opts GPXOptions) error {
	data, err := MarshalGPX(route, opts)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing gpx: %w", err)
	}
	return nil
}

// ParseGPX reads the first track of a GPX document back into a device computed route.
// Distance is measured along the track.
func ParseGPX(r io.Reader) (*routing.Route, error) {
	doc, err := gpx.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing gpx: %w", err)
	}

	route := &routing.Route{Kind: routing.KindDeviceComputed}
	for _, track := range doc.Tracks {
		for _, segment := range track.Segments {
			for _, p := range segment.Points {
				route.Path = append(route.Path, routing.Coordinate{Lat: p.Latitude, Lon: p.Longitude})
			}
		}
		if len(route.Path) > 0 {
			break
		}
	}
	if len(route.Path) == 0 {
		return nil, ErrEmptyRoute
	}
	route.DistanceMeters = doc.Length2D()
	return route, nil
}

func defaultName(route *routing.Route) string {
	if route.Kind == routing.KindDeviceComputed {
		return fmt.Sprintf("%.1f km walk", route.DistanceKm())
	}
	return fmt.Sprintf("%.1f km loop", route.DistanceKm())
}
