package routing

import "fmt"

// caloriesPerKm is the walking energy estimate per kilometer.
// One additional kilocalorie is counted per meter climbed.
const caloriesPerKm = 65

// Summary holds display figures for a route.
type Summary struct {
	DistanceKm          float64
	DurationMinutes     *int
	ElevationGainMeters *float64
	Calories            int

	DistanceLabel  string
	DurationLabel  string
	ElevationLabel string
	CaloriesLabel  string
}

// Summarize computes display figures for a route. Minutes and calories are
// truncated. Missing values get placeholder labels.
func Summarize(route *Route) Summary {
	if route == nil {
		return Summary{
			DistanceLabel:  "- km",
			DurationLabel:  "- min",
			ElevationLabel: "- m",
			CaloriesLabel:  "- cal",
		}
	}

	km := route.DistanceKm()
	s := Summary{
		DistanceKm:          km,
		ElevationGainMeters: route.ElevationGainMeters,
		DistanceLabel:       fmt.Sprintf("%.1f km", km),
		DurationLabel:       "- min",
		ElevationLabel:      "- m",
	}

	if route.DurationSeconds != nil {
		minutes := int(*route.DurationSeconds / 60)
		s.DurationMinutes = &minutes
		s.DurationLabel = fmt.Sprintf("%d min", minutes)
	}

	calories := km * caloriesPerKm
	if route.ElevationGainMeters != nil {
		s.ElevationLabel = fmt.Sprintf("%.0f m", *route.ElevationGainMeters)
		calories += *route.ElevationGainMeters
	}
	s.Calories = int(calories)
	s.CaloriesLabel = fmt.Sprintf("%d cal", s.Calories)

	return s
}
