package geo

// Point represents a geographic coordinate
type Point struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// Bounds is the south-west / north-east box enclosing a set of points
type Bounds struct {
	SouthWest Point `json:"south_west"`
	NorthEast Point `json:"north_east"`
}

// GeoUtils interface defines geographic calculation utilities
type GeoUtils interface {
	// Euclidean distance on raw lat/lng degrees (no projection)
	PlanarDistance(p1, p2 Point) float64

	// Sum of great-circle distances between consecutive points in meters
	PolylineLength(points []Point) float64

	// Decode polyline string (precision 5) to point sequence
	DecodePolyline(encoded string) ([]Point, error)

	// Encode point sequence to polyline string (precision 5)
	EncodePolyline(points []Point) string

	// Bounding box of the points; false when points is empty
	Bounds(points []Point) (Bounds, bool)
}

// NewGeoUtils is implemented in geo.go
