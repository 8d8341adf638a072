package waypoints

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dpup/route-planner/server/internal/lib/geo"
)

// CoordinatePrompt is shown when origin or destination cannot be parsed
const CoordinatePrompt = "Please fill in the origin and destination coordinates in the format: -24.955296, -53.4747252"

var (
	ErrInvalidOrigin      = errors.New("origin coordinates are missing or invalid")
	ErrInvalidDestination = errors.New("destination coordinates are missing or invalid")
	ErrUnknownField       = errors.New("unknown form field")
)

const stopIDPrefix = "stop-"

// Form is the editable route input: origin, destination and an ordered list
// of stops. Stops are addressed by ID, never by position.
type Form struct {
	Origin      Field   `json:"origin"`
	Destination Field   `json:"destination"`
	Stops       []Field `json:"stops"`
	Active      string  `json:"active,omitempty"` // Field ID presets are written into

	stopCounter int
}

// NewForm returns an empty form with origin active
func NewForm() *Form {
	f := &Form{}
	f.Reset()
	return f
}

// Reset clears every field and restarts stop numbering
func (f *Form) Reset() {
	f.Origin = Field{ID: OriginFieldID}
	f.Destination = Field{ID: DestinationFieldID}
	f.Stops = nil
	f.Active = OriginFieldID
	f.stopCounter = 0
}

// AddStop appends an empty stop with a fresh ID
func (f *Form) AddStop() Field {
	f.syncStopCounter()
	f.stopCounter++
	stop := Field{ID: stopIDPrefix + strconv.Itoa(f.stopCounter)}
	f.Stops = append(f.Stops, stop)
	return stop
}

// RemoveStop deletes the stop with the given ID, reporting whether it existed.
// Removing the active stop makes origin active again.
func (f *Form) RemoveStop(id string) bool {
	for i, stop := range f.Stops {
		if stop.ID == id {
			f.Stops = append(f.Stops[:i], f.Stops[i+1:]...)
			if f.Active == id {
				f.Active = OriginFieldID
			}
			return true
		}
	}
	return false
}

// SetActive selects the field presets are written into
func (f *Form) SetActive(id string) error {
	if f.field(id) == nil {
		return fmt.Errorf("%w: %s", ErrUnknownField, id)
	}
	f.Active = id
	return nil
}

// ApplyPreset writes the preset's name and coordinates into the active field
func (f *Form) ApplyPreset(p Preset) error {
	field := f.field(f.Active)
	if field == nil {
		return fmt.Errorf("%w: %s", ErrUnknownField, f.Active)
	}
	field.Name = p.Name
	field.Coordinates = geo.FormatCoordinates(geo.Point{Latitude: p.Latitude, Longitude: p.Longitude})
	return nil
}

// field returns a pointer to the field with id, or nil
func (f *Form) field(id string) *Field {
	switch id {
	case OriginFieldID:
		return &f.Origin
	case DestinationFieldID:
		return &f.Destination
	}
	for i := range f.Stops {
		if f.Stops[i].ID == id {
			return &f.Stops[i]
		}
	}
	return nil
}

// syncStopCounter moves the counter past IDs of stops that arrived from
// outside AddStop (decoded JSON, CSV import) so new IDs stay unique.
func (f *Form) syncStopCounter() {
	for _, stop := range f.Stops {
		n, err := strconv.Atoi(strings.TrimPrefix(stop.ID, stopIDPrefix))
		if err == nil && strings.HasPrefix(stop.ID, stopIDPrefix) && n > f.stopCounter {
			f.stopCounter = n
		}
	}
}

// Collect parses the form into ordered waypoints: origin, stops, destination.
//
// Origin and destination must parse or the whole form is rejected. Stops that
// fail to parse are dropped without error, and stop numbers count only the
// stops that parsed.
func Collect(form Form) ([]Waypoint, error) {
	origin, originOK := geo.ParseCoordinates(form.Origin.Coordinates)
	destination, destinationOK := geo.ParseCoordinates(form.Destination.Coordinates)

	var errs []error
	if !originOK {
		errs = append(errs, ErrInvalidOrigin)
	}
	if !destinationOK {
		errs = append(errs, ErrInvalidDestination)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	points := []Waypoint{{
		ID:       OriginFieldID,
		Name:     strings.TrimSpace(form.Origin.Name),
		Position: origin,
		Kind:     KindOrigin,
	}}

	stopNumber := 0
	for _, stop := range form.Stops {
		position, ok := geo.ParseCoordinates(stop.Coordinates)
		if !ok {
			continue
		}
		stopNumber++
		points = append(points, Waypoint{
			ID:         stop.ID,
			Name:       strings.TrimSpace(stop.Name),
			Position:   position,
			Kind:       KindStop,
			StopNumber: stopNumber,
		})
	}

	points = append(points, Waypoint{
		ID:       DestinationFieldID,
		Name:     strings.TrimSpace(form.Destination.Name),
		Position: destination,
		Kind:     KindDestination,
	})

	return points, nil
}

// Positions returns the coordinates of points in order
func Positions(points []Waypoint) []geo.Point {
	positions := make([]geo.Point, len(points))
	for i, p := range points {
		positions[i] = p.Position
	}
	return positions
}
