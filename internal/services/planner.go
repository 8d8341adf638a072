package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"

	prefaberrors "github.com/dpup/prefab/errors"
	"github.com/dpup/prefab/logging"

	"github.com/dpup/route-planner/server/internal/cache"
	"github.com/dpup/route-planner/server/internal/config"
	"github.com/dpup/route-planner/server/internal/export"
	"github.com/dpup/route-planner/server/internal/lib/geo"
	"github.com/dpup/route-planner/server/internal/lib/progress"
	"github.com/dpup/route-planner/server/internal/lib/routing"
	"github.com/dpup/route-planner/server/internal/lib/waypoints"
)

var (
	ErrCalculationInProgress = errors.New("a route calculation is already in progress")
	ErrCalculationSuperseded = errors.New("route was cleared while it was being calculated")
	ErrUnexpected            = errors.New("unexpected error while calculating the route")
	ErrNoRoute               = errors.New("no route has been calculated")
	ErrUnknownPreset         = errors.New("unknown preset")
)

// RouteError wraps a routing service failure. Its message is the service's
// own status message.
type RouteError struct {
	Err error
}

func (e *RouteError) Error() string { return e.Err.Error() }
func (e *RouteError) Unwrap() error { return e.Err }

// RouteClient computes a road route through points in order
type RouteClient interface {
	Route(ctx context.Context, points []geo.Point) (*routing.Route, error)
}

// PlannerService turns route forms into partitioned routes and keeps the
// per-session progress and focus state.
type PlannerService struct {
	client      RouteClient
	cache       *cache.Cache
	partitioner routing.Partitioner
	geoUtils    geo.GeoUtils
	sessions    *SessionStore
	config      *config.Config
	logger      logging.Logger // Used when a caller's context carries none
}

// NewPlannerService creates a new PlannerService. cache may be nil.
func NewPlannerService(client RouteClient, routeCache *cache.Cache, cfg *config.Config) *PlannerService {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &PlannerService{
		client:      client,
		cache:       routeCache,
		partitioner: routing.NewPartitioner(cfg.Routing.AssumedSpeedKmh),
		geoUtils:    geo.NewGeoUtils(),
		sessions:    NewSessionStore(),
		config:      cfg,
		logger:      logging.NewDevLogger().Named("planner"),
	}
}

// withLogger attaches fallback to ctx unless a logger is already scoped there
func withLogger(ctx context.Context, fallback logging.Logger) context.Context {
	if logging.FromContext(ctx) != nil {
		return ctx
	}
	return logging.With(ctx, fallback)
}

// Sessions exposes the session store for sweeping
func (s *PlannerService) Sessions() *SessionStore {
	return s.sessions
}

// Status reports live sessions and route cache usage
type Status struct {
	Sessions int               `json:"sessions"`
	Cache    *cache.CacheStats `json:"cache,omitempty"`
}

// Status returns the planner's current load
func (s *PlannerService) Status() Status {
	status := Status{Sessions: s.sessions.Len()}
	if s.cache != nil {
		stats := s.cache.Stats()
		status.Cache = &stats
	}
	return status
}

// Presets returns the configured preset locations
func (s *PlannerService) Presets() []waypoints.Preset {
	return s.config.WaypointPresets()
}

// ApplyPresets fills form fields from presets, keyed by field ID
func (s *PlannerService) ApplyPresets(form *waypoints.Form, presets map[string]string) error {
	for fieldID, presetID := range presets {
		preset, ok := s.config.FindPreset(presetID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownPreset, presetID)
		}
		if err := form.SetActive(fieldID); err != nil {
			return err
		}
		if err := form.ApplyPreset(preset); err != nil {
			return err
		}
	}
	return nil
}

// Calculate computes the route for form and replaces the session's route,
// legs, progress and focus. Only one calculation per session may run.
func (s *PlannerService) Calculate(ctx context.Context, sessionID string, form waypoints.Form) (snapshot *Snapshot, err error) {
	ctx = withLogger(ctx, s.logger)

	points, err := waypoints.Collect(form)
	if err != nil {
		return nil, err
	}

	session := s.sessions.Get(sessionID)
	if !session.calc.TryAcquire(1) {
		return nil, ErrCalculationInProgress
	}
	defer session.calc.Release(1)

	defer func() {
		if r := recover(); r != nil {
			stack, _ := prefaberrors.ParseStack(debug.Stack())
			skipFrames := 3
			numFrames := 5
			logging.Errorw(ctx, "Route calculation: recovered from panic",
				"session", session.ID, "error", r, "error.stack_trace", stack.MinimalStack(skipFrames, numFrames))
			snapshot = nil
			err = ErrUnexpected
		}
	}()

	session.mu.Lock()
	gen := session.generation
	session.mu.Unlock()

	route, err := s.route(ctx, waypoints.Positions(points))
	if err != nil {
		logging.Warnw(ctx, "Route calculation failed", "session", session.ID, "waypoints", len(points), "error", err)
		return nil, err
	}

	segments := s.partitioner.Partition(points, route)

	session.mu.Lock()
	defer session.mu.Unlock()
	if !session.replace(gen, form, points, route, segments) {
		return nil, ErrCalculationSuperseded
	}

	logging.Infow(ctx, "Route calculated", "session", session.ID,
		"waypoints", len(points), "segments", len(segments), "distance_m", route.TotalDistance)
	return s.snapshot(session), nil
}

// CalculateCSV imports a name,latitude,longitude file and calculates it
func (s *PlannerService) CalculateCSV(ctx context.Context, sessionID string, r io.Reader) (*Snapshot, error) {
	form, err := waypoints.ParseCSV(r)
	if err != nil {
		return nil, err
	}
	return s.Calculate(ctx, sessionID, *form)
}

// route consults the cache before asking the routing service
func (s *PlannerService) route(ctx context.Context, points []geo.Point) (*routing.Route, error) {
	profile := s.config.Routing.Profile
	if s.cache != nil {
		cached, found, err := s.cache.GetRoute(profile, points)
		if err != nil {
			logging.Warnw(ctx, "Route cache read failed", "error", err)
		} else if found {
			return cached, nil
		}
	}

	route, err := s.client.Route(ctx, points)
	if err != nil {
		return nil, &RouteError{Err: err}
	}

	if s.cache != nil {
		if err := s.cache.SetRoute(profile, points, route, s.config.Routing.CacheTTL); err != nil {
			logging.Warnw(ctx, "Route cache write failed", "error", err)
		}
	}
	return route, nil
}

// Clear drops the session's route, progress and focus. A calculation still
// in flight will have its result discarded.
func (s *PlannerService) Clear(sessionID string) {
	session := s.sessions.Get(sessionID)
	session.mu.Lock()
	defer session.mu.Unlock()
	session.reset()
}

// Toggle marks a leg as traveled or not and returns the new summary
func (s *PlannerService) Toggle(sessionID string, index int, traveled bool) (progress.Summary, error) {
	session := s.sessions.Get(sessionID)
	session.mu.Lock()
	defer session.mu.Unlock()

	if session.tracker == nil {
		return progress.Summary{}, ErrNoRoute
	}
	if err := session.tracker.Toggle(index, traveled); err != nil {
		return progress.Summary{}, err
	}
	return session.tracker.Summary(), nil
}

// Focus toggles the single highlighted leg and returns the per-leg view
func (s *PlannerService) Focus(sessionID string, index int) ([]progress.LegView, error) {
	session := s.sessions.Get(sessionID)
	session.mu.Lock()
	defer session.mu.Unlock()

	if session.route == nil {
		return nil, ErrNoRoute
	}
	if err := session.focus.Toggle(index, len(session.segments)); err != nil {
		return nil, err
	}
	return progress.View(session.segments, session.tracker, &session.focus), nil
}

// Snapshot returns the session's current route state
func (s *PlannerService) Snapshot(sessionID string) (*Snapshot, error) {
	session := s.sessions.Get(sessionID)
	session.mu.Lock()
	defer session.mu.Unlock()

	if session.route == nil {
		return nil, ErrNoRoute
	}
	return s.snapshot(session), nil
}

// ExportPlan returns the session's route in exportable form
func (s *PlannerService) ExportPlan(sessionID string) (export.Plan, error) {
	session := s.sessions.Get(sessionID)
	session.mu.Lock()
	defer session.mu.Unlock()

	if session.route == nil {
		return export.Plan{}, ErrNoRoute
	}

	traveled := make(map[int]bool)
	for _, index := range session.tracker.Traveled() {
		traveled[index] = true
	}
	return export.Plan{
		Name:      planName(session.waypoints),
		Waypoints: session.waypoints,
		Segments:  session.segments,
		Traveled:  func(index int) bool { return traveled[index] },
	}, nil
}

func planName(points []waypoints.Waypoint) string {
	if len(points) < 2 {
		return "Route"
	}
	return fmt.Sprintf("%s to %s", points[0].Label(), points[len(points)-1].Label())
}
