package routing

import (
	"math"

	"github.com/dpup/route-planner/server/internal/lib/geo"
	"github.com/dpup/route-planner/server/internal/lib/waypoints"
)

// partitioner implements the Partitioner interface
type partitioner struct {
	geoUtils        geo.GeoUtils
	assumedSpeedKmh float64
}

// NewPartitioner creates a Partitioner deriving durations from speedKmh.
// A non-positive speed falls back to DefaultAssumedSpeedKmh.
func NewPartitioner(speedKmh float64) Partitioner {
	if speedKmh <= 0 || math.IsNaN(speedKmh) || math.IsInf(speedKmh, 0) {
		speedKmh = DefaultAssumedSpeedKmh
	}
	return &partitioner{
		geoUtils:        geo.NewGeoUtils(),
		assumedSpeedKmh: speedKmh,
	}
}

// AssumedSpeedKmh returns the configured speed
func (p *partitioner) AssumedSpeedKmh() float64 {
	return p.assumedSpeedKmh
}

// Partition splits route into legs between consecutive waypoints. It never
// fails: degenerate routes produce zero-length segments.
func (p *partitioner) Partition(points []waypoints.Waypoint, route *Route) []Segment {
	if len(points) < 2 {
		return nil
	}

	var geometry []geo.Point
	var instructions []Instruction
	if route != nil {
		geometry = route.Geometry
		instructions = route.Instructions
	}

	claimed := make([]bool, len(instructions))
	segments := make([]Segment, 0, len(points)-1)
	for i := 0; i < len(points)-1; i++ {
		segment := Segment{
			Index:        i,
			OriginName:   points[i].Label(),
			DestName:     points[i+1].Label(),
			StartIndex:   -1,
			EndIndex:     -1,
			Instructions: []Instruction{},
			Geometry:     []geo.Point{},
		}

		anchors, ok := FindAnchors(geometry, points[i].Position, points[i+1].Position)
		if ok {
			segment.StartIndex = anchors.Start
			segment.EndIndex = anchors.End
			segment.Geometry = append(segment.Geometry, geometry[anchors.Start:anchors.End+1]...)
			segment.DistanceMeters = p.geoUtils.PolylineLength(segment.Geometry)
			segment.DurationMinutes = p.durationMinutes(segment.DistanceMeters)
			segment.Instructions = instructionsInRange(instructions, claimed, anchors.Start, anchors.End)
		}

		segments = append(segments, segment)
	}

	return segments
}

// durationMinutes converts a distance to minutes at the assumed speed
func (p *partitioner) durationMinutes(distanceMeters float64) float64 {
	return (distanceMeters / 1000) / p.assumedSpeedKmh * 60
}

// instructionsInRange returns the unclaimed instructions whose index lies in
// [start, end] and claims them. Adjacent legs share their boundary index, so
// an instruction there stays with the earlier leg.
func instructionsInRange(instructions []Instruction, claimed []bool, start, end int) []Instruction {
	matched := []Instruction{}
	for i, instruction := range instructions {
		if claimed[i] || instruction.Index < start || instruction.Index > end {
			continue
		}
		claimed[i] = true
		matched = append(matched, instruction)
	}
	return matched
}
