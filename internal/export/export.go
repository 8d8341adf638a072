// Package export renders a planned trip for map tools: KML for Google Earth
// style viewers and GeoJSON for web maps.
package export

import (
	"fmt"
	"image/color"
	"io"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/twpayne/go-kml"

	"github.com/dpup/route-planner/server/internal/lib/geo"
	"github.com/dpup/route-planner/server/internal/lib/routing"
	"github.com/dpup/route-planner/server/internal/lib/waypoints"
)

// Plan is the exportable state of a computed trip
type Plan struct {
	Name      string
	Waypoints []waypoints.Waypoint
	Segments  []routing.Segment
	Traveled  func(index int) bool // nil means nothing traveled
}

func (p Plan) traveled(index int) bool {
	return p.Traveled != nil && p.Traveled(index)
}

var (
	pendingColor  = color.RGBA{R: 0x33, G: 0x66, B: 0xff, A: 0xff}
	traveledColor = color.RGBA{R: 0x99, G: 0x99, B: 0x99, A: 0xaa}
)

// WriteKML writes the plan as a KML document with one placemark per
// waypoint and one line per leg.
func WriteKML(w io.Writer, plan Plan) error {
	pendingStyle := kml.SharedStyle("leg-pending",
		kml.LineStyle(kml.Color(pendingColor), kml.Width(4)),
	)
	traveledStyle := kml.SharedStyle("leg-traveled",
		kml.LineStyle(kml.Color(traveledColor), kml.Width(4)),
	)

	stops := kml.Folder(kml.Name("Waypoints"))
	for _, wp := range plan.Waypoints {
		stops.Add(kml.Placemark(
			kml.Name(wp.Label()),
			kml.Description(string(wp.Kind)),
			kml.Point(kml.Coordinates(kmlCoordinate(wp.Position))),
		))
	}

	legs := kml.Folder(kml.Name("Legs"))
	for _, segment := range plan.Segments {
		style := pendingStyle.URL()
		if plan.traveled(segment.Index) {
			style = traveledStyle.URL()
		}

		coords := make([]kml.Coordinate, len(segment.Geometry))
		for i, p := range segment.Geometry {
			coords[i] = kmlCoordinate(p)
		}

		legs.Add(kml.Placemark(
			kml.Name(legName(segment)),
			kml.Description(legDescription(segment)),
			kml.StyleURL(style),
			kml.LineString(kml.Tessellate(true), kml.Coordinates(coords...)),
		))
	}

	doc := kml.KML(kml.Document(
		kml.Name(plan.Name),
		pendingStyle,
		traveledStyle,
		stops,
		legs,
	))
	return doc.WriteIndent(w, "", "  ")
}

// GeoJSON returns the plan as a FeatureCollection of waypoint points and
// leg line strings, with a bbox covering the whole trip.
func GeoJSON(plan Plan) ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	var bound orb.Bound
	hasBound := false

	extend := func(g orb.Geometry) {
		if !hasBound {
			bound = g.Bound()
			hasBound = true
			return
		}
		bound = bound.Union(g.Bound())
	}

	for _, wp := range plan.Waypoints {
		point := orbPoint(wp.Position)
		extend(point)

		f := geojson.NewFeature(point)
		f.Properties["role"] = "waypoint"
		f.Properties["id"] = wp.ID
		f.Properties["name"] = wp.Label()
		f.Properties["kind"] = string(wp.Kind)
		fc.Append(f)
	}

	for _, segment := range plan.Segments {
		line := make(orb.LineString, len(segment.Geometry))
		for i, p := range segment.Geometry {
			line[i] = orbPoint(p)
		}
		if len(line) > 0 {
			extend(line)
		}

		f := geojson.NewFeature(line)
		f.Properties["role"] = "leg"
		f.Properties["index"] = segment.Index
		f.Properties["name"] = legName(segment)
		f.Properties["distance_km"] = routing.FormatKm(segment.DistanceMeters)
		f.Properties["duration_minutes"] = routing.RoundMinutes(segment.DurationMinutes)
		f.Properties["instructions"] = len(segment.Instructions)
		f.Properties["traveled"] = plan.traveled(segment.Index)
		fc.Append(f)
	}

	if hasBound {
		fc.BBox = geojson.NewBBox(bound)
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode geojson: %w", err)
	}
	return data, nil
}

func legName(segment routing.Segment) string {
	return fmt.Sprintf("%s → %s", segment.OriginName, segment.DestName)
}

func legDescription(segment routing.Segment) string {
	return fmt.Sprintf("%s km, %d min", routing.FormatKm(segment.DistanceMeters), routing.RoundMinutes(segment.DurationMinutes))
}

// GeoJSON and KML both order coordinates longitude first
func orbPoint(p geo.Point) orb.Point {
	return orb.Point{p.Longitude, p.Latitude}
}

func kmlCoordinate(p geo.Point) kml.Coordinate {
	return kml.Coordinate{Lon: p.Longitude, Lat: p.Latitude}
}
