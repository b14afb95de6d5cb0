// Package poi counts points of interest inside a geographic area.
package poi

import (
	"context"
	"errors"
	"fmt"
)

// ErrInvalidBoundingBox indicates a bounding box with inverted or out-of-range corners.
var ErrInvalidBoundingBox = errors.New("invalid bounding box")

// Category is a point-of-interest category.
type Category string

// Supported categories.
const (
	CategoryMuseum        Category = "museum"
	CategoryLandmark      Category = "landmark"
	CategoryCafe          Category = "cafe"
	CategoryRestaurant    Category = "restaurant"
	CategoryTheater       Category = "theater"
	CategoryNationalPark  Category = "national_park"
	CategoryGasStation    Category = "gas_station"
	CategoryStore         Category = "store"
	CategoryAmusementPark Category = "amusement_park"
)

// UrbanCategories are the places an urban explorer wants to pass.
var UrbanCategories = []Category{
	CategoryMuseum,
	CategoryLandmark,
	CategoryCafe,
	CategoryRestaurant,
	CategoryTheater,
	CategoryNationalPark,
}

// CommercialCategories indicate busy, non-quiet streets.
var CommercialCategories = []Category{
	CategoryGasStation,
	CategoryStore,
	CategoryAmusementPark,
}

// BoundingBox is a geographic search region in degrees.
type BoundingBox struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64
}

// Validate checks the box corners are ordered and in range.
func (b BoundingBox) Validate() error {
	if b.MinLat < -90 || b.MaxLat > 90 || b.MinLon < -180 || b.MaxLon > 180 {
		return fmt.Errorf("%w: corners out of range", ErrInvalidBoundingBox)
	}
	if b.MinLat > b.MaxLat || b.MinLon > b.MaxLon {
		return fmt.Errorf("%w: min corner exceeds max corner", ErrInvalidBoundingBox)
	}
	return nil
}

// Searcher counts points of interest in a region.
type Searcher interface {
	// Count returns the number of distinct places matching any of the categories inside box.
	Count(ctx context.Context, box BoundingBox, categories []Category) (int, error)
}
