package routing

import (
	"github.com/dpup/route-planner/server/internal/lib/geo"
	"github.com/dpup/route-planner/server/internal/lib/waypoints"
)

// DefaultAssumedSpeedKmh is the flat speed used to derive leg durations.
// It does not vary with road class.
const DefaultAssumedSpeedKmh = 50.0

// Instruction is a turn-by-turn step of a computed route
type Instruction struct {
	Text            string  `json:"text"`
	Index           int     `json:"index"` // Offset into Route.Geometry the step applies near
	Type            string  `json:"type,omitempty"`
	Modifier        string  `json:"modifier,omitempty"`
	Road            string  `json:"road,omitempty"`
	DistanceMeters  float64 `json:"distance_meters"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// Route is the whole multi-leg trip returned by a routing service
type Route struct {
	Geometry      []geo.Point   `json:"geometry"`
	Instructions  []Instruction `json:"instructions"`
	TotalDistance float64       `json:"total_distance_meters"`
	TotalTime     float64       `json:"total_time_seconds"`
}

// Segment is the portion of a route between two consecutive waypoints
type Segment struct {
	Index           int           `json:"index"`
	OriginName      string        `json:"origin_name"`
	DestName        string        `json:"dest_name"`
	StartIndex      int           `json:"start_index"`
	EndIndex        int           `json:"end_index"`
	DistanceMeters  float64       `json:"distance_meters"`
	DurationMinutes float64       `json:"duration_minutes"`
	Instructions    []Instruction `json:"instructions"`
	Geometry        []geo.Point   `json:"geometry"`
}

// Partitioner splits a computed route into one Segment per leg
type Partitioner interface {
	// Partition returns len(points)-1 segments, or none for fewer than two waypoints
	Partition(points []waypoints.Waypoint, route *Route) []Segment

	// AssumedSpeedKmh reports the speed used for leg durations
	AssumedSpeedKmh() float64
}
