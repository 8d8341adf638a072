package services

import (
	"github.com/dpup/route-planner/server/internal/lib/geo"
	"github.com/dpup/route-planner/server/internal/lib/progress"
	"github.com/dpup/route-planner/server/internal/lib/routing"
	"github.com/dpup/route-planner/server/internal/lib/waypoints"
)

// WaypointView is a waypoint with its display label resolved
type WaypointView struct {
	waypoints.Waypoint
	Label string `json:"label"`
}

// Snapshot is everything a client needs to draw the current route
type Snapshot struct {
	Form            waypoints.Form        `json:"form"`
	Waypoints       []WaypointView        `json:"waypoints"`
	Totals          routing.Totals        `json:"totals"`
	Bounds          *geo.Bounds           `json:"bounds,omitempty"`
	Polyline        string                `json:"polyline"` // Encoded full route geometry
	Instructions    []routing.Instruction `json:"instructions"`
	Segments        []routing.Segment     `json:"segments"`
	AssumedSpeedKmh float64               `json:"assumed_speed_kmh"`
	Progress        progress.Summary      `json:"progress"`
	Traveled        []int                 `json:"traveled"`
	View            []progress.LegView    `json:"view"`
}

// snapshot builds a Snapshot. Callers hold session.mu and ensure a route.
func (s *PlannerService) snapshot(session *Session) *Snapshot {
	views := make([]WaypointView, len(session.waypoints))
	for i, wp := range session.waypoints {
		views[i] = WaypointView{Waypoint: wp, Label: wp.Label()}
	}

	snap := &Snapshot{
		Form:            session.form,
		Waypoints:       views,
		Totals:          routing.Summarize(session.route),
		Polyline:        s.geoUtils.EncodePolyline(session.route.Geometry),
		Instructions:    session.route.Instructions,
		Segments:        session.segments,
		AssumedSpeedKmh: s.partitioner.AssumedSpeedKmh(),
		Progress:        session.tracker.Summary(),
		Traveled:        session.tracker.Traveled(),
		View:            progress.View(session.segments, session.tracker, &session.focus),
	}
	if bounds, ok := s.geoUtils.Bounds(session.route.Geometry); ok {
		snap.Bounds = &bounds
	}
	return snap
}
