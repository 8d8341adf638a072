package routing

import (
	"fmt"
	"math"
)

// Totals is the display form of a route's distance and time
type Totals struct {
	DistanceMeters float64 `json:"distance_meters"`
	TimeSeconds    float64 `json:"time_seconds"`
	DistanceKm     string  `json:"distance_km"` // Two decimals
	TimeMinutes    int     `json:"time_minutes"`
}

// Summarize reports the routing service's totals for display
func Summarize(route *Route) Totals {
	if route == nil {
		return Totals{DistanceKm: FormatKm(0)}
	}
	return Totals{
		DistanceMeters: route.TotalDistance,
		TimeSeconds:    route.TotalTime,
		DistanceKm:     FormatKm(route.TotalDistance),
		TimeMinutes:    RoundMinutes(route.TotalTime / 60),
	}
}

// FormatKm renders meters as kilometers with two decimals
func FormatKm(meters float64) string {
	return fmt.Sprintf("%.2f", meters/1000)
}

// RoundMinutes rounds half away from zero
func RoundMinutes(minutes float64) int {
	return int(math.Round(minutes))
}
