package waypoints

import (
	"fmt"

	"github.com/dpup/route-planner/server/internal/lib/geo"
)

// Kind is the role a waypoint plays in the trip
type Kind string

const (
	KindOrigin      Kind = "origin"
	KindStop        Kind = "stop"
	KindDestination Kind = "destination"
)

// Field IDs of the two fixed form entries
const (
	OriginFieldID      = "origin"
	DestinationFieldID = "destination"
)

// Waypoint is a parsed form entry the route must pass through
type Waypoint struct {
	ID         string    `json:"id"`
	Name       string    `json:"name,omitempty"`
	Position   geo.Point `json:"position"`
	Kind       Kind      `json:"kind"`
	StopNumber int       `json:"stop_number,omitempty"` // 1-based among parsed stops
}

// Label returns the display name, falling back to a positional default
func (w Waypoint) Label() string {
	if w.Name != "" {
		return w.Name
	}
	switch w.Kind {
	case KindOrigin:
		return "Origin"
	case KindDestination:
		return "Destination"
	default:
		return fmt.Sprintf("Stop %d", w.StopNumber)
	}
}

// Field is one name + coordinate text pair of the route form
type Field struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Coordinates string `json:"coordinates"` // "lat, lng"
}

// Preset is a named location that can be written into the active field
type Preset struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}
