package geo

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/golang/geo/s2"
	"github.com/twpayne/go-polyline"
)

// Earth's radius in meters
const earthRadius = 6371000

// geoUtils implements the GeoUtils interface
type geoUtils struct{}

// NewGeoUtils creates a new GeoUtils implementation
func NewGeoUtils() GeoUtils {
	return &geoUtils{}
}

// PlanarDistance treats lat/lng degrees as a flat plane. Only meaningful for
// comparing nearby points, never as a distance in meters.
func (g *geoUtils) PlanarDistance(p1, p2 Point) float64 {
	dlat := p1.Latitude - p2.Latitude
	dlon := p1.Longitude - p2.Longitude
	return math.Sqrt(dlat*dlat + dlon*dlon)
}

// PolylineLength sums the haversine distance of each consecutive pair.
// Out-of-range coordinates are not rejected here.
func (g *geoUtils) PolylineLength(points []Point) float64 {
	total := 0.0
	for i := 1; i < len(points); i++ {
		total += haversine(points[i-1], points[i])
	}
	return total
}

// haversine is the unvalidated great-circle distance in meters
func haversine(p1, p2 Point) float64 {
	// If points are the same, distance is 0
	if p1.Latitude == p2.Latitude && p1.Longitude == p2.Longitude {
		return 0
	}

	// Convert degrees to radians
	lat1 := p1.Latitude * math.Pi / 180
	lon1 := p1.Longitude * math.Pi / 180
	lat2 := p2.Latitude * math.Pi / 180
	lon2 := p2.Longitude * math.Pi / 180

	dlat := lat2 - lat1
	dlon := lon2 - lon1

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadius * c
}

// DecodePolyline decodes a precision-5 polyline string to point sequence
func (g *geoUtils) DecodePolyline(encoded string) ([]Point, error) {
	if encoded == "" {
		return nil, errors.New("encoded polyline string is empty")
	}

	coords, _, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, errors.New("failed to decode polyline: " + err.Error())
	}

	points := make([]Point, len(coords))
	for i, coord := range coords {
		points[i] = Point{
			Latitude:  coord[0],
			Longitude: coord[1],
		}

		if !IsValidCoordinate(points[i]) {
			return nil, errors.New("decoded polyline contains invalid coordinates")
		}
	}

	return points, nil
}

// EncodePolyline encodes points with the same precision DecodePolyline expects
func (g *geoUtils) EncodePolyline(points []Point) string {
	coords := make([][]float64, len(points))
	for i, p := range points {
		coords[i] = []float64{p.Latitude, p.Longitude}
	}
	return string(polyline.EncodeCoords(coords))
}

// Bounds returns the smallest lat/lng rectangle containing every point
func (g *geoUtils) Bounds(points []Point) (Bounds, bool) {
	if len(points) == 0 {
		return Bounds{}, false
	}

	bounder := s2.NewRectBounder()
	for _, p := range points {
		bounder.AddPoint(s2.PointFromLatLng(s2.LatLngFromDegrees(p.Latitude, p.Longitude)))
	}
	rect := bounder.RectBound()
	if rect.IsEmpty() {
		return Bounds{}, false
	}

	lo, hi := rect.Lo(), rect.Hi()
	return Bounds{
		SouthWest: Point{Latitude: lo.Lat.Degrees(), Longitude: lo.Lng.Degrees()},
		NorthEast: Point{Latitude: hi.Lat.Degrees(), Longitude: hi.Lng.Degrees()},
	}, true
}

// Coordinate Conversion Utilities

// ParseCoordinates converts "lat, lng" text into a Point. Exactly two
// comma-separated finite numbers are accepted; anything else reports false.
// Ranges are not checked.
func ParseCoordinates(text string) (Point, bool) {
	parts := strings.Split(strings.TrimSpace(text), ",")
	if len(parts) != 2 {
		return Point{}, false
	}

	lat, ok := parseFinite(parts[0])
	if !ok {
		return Point{}, false
	}
	lng, ok := parseFinite(parts[1])
	if !ok {
		return Point{}, false
	}

	return Point{Latitude: lat, Longitude: lng}, true
}

// parseFinite reads a plain decimal number, optionally with an exponent.
// Hex floats, digit separators and named values are rejected.
func parseFinite(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.IndexFunc(s, notDecimal) >= 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func notDecimal(r rune) bool {
	return !strings.ContainsRune("0123456789+-.eE", r)
}

// FormatCoordinates renders a Point the way ParseCoordinates reads it
func FormatCoordinates(p Point) string {
	return strconv.FormatFloat(p.Latitude, 'f', -1, 64) + ", " + strconv.FormatFloat(p.Longitude, 'f', -1, 64)
}

// NewPoint creates a Point from latitude and longitude values with validation
func NewPoint(latitude, longitude float64) (Point, error) {
	point := Point{Latitude: latitude, Longitude: longitude}
	if !IsValidCoordinate(point) {
		return Point{}, errors.New("invalid coordinates: latitude must be [-90, 90], longitude must be [-180, 180]")
	}
	return point, nil
}

// IsValidCoordinate validates latitude and longitude values
func IsValidCoordinate(point Point) bool {
	return point.Latitude >= -90 && point.Latitude <= 90 &&
		point.Longitude >= -180 && point.Longitude <= 180
}
