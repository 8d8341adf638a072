package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dpup/prefab/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dpup/route-planner/server/internal/cache"
	"github.com/dpup/route-planner/server/internal/clients/osrm"
	"github.com/dpup/route-planner/server/internal/config"
	"github.com/dpup/route-planner/server/internal/lib/geo"
	"github.com/dpup/route-planner/server/internal/lib/progress"
	"github.com/dpup/route-planner/server/internal/lib/routing"
	"github.com/dpup/route-planner/server/internal/lib/waypoints"
)

// MockRouteClient is a mock implementation of RouteClient
type MockRouteClient struct {
	mock.Mock
}

func (m *MockRouteClient) Route(ctx context.Context, points []geo.Point) (*routing.Route, error) {
	args := m.Called(ctx, points)
	route, _ := args.Get(0).(*routing.Route)
	return route, args.Error(1)
}

// equatorRoute runs from (0,0) to (0,2) in 200 evenly spaced points
func equatorRoute() *routing.Route {
	geometry := make([]geo.Point, 200)
	for i := range geometry {
		geometry[i] = geo.Point{Latitude: 0, Longitude: 2 * float64(i) / 199}
	}
	return &routing.Route{
		Geometry: geometry,
		Instructions: []routing.Instruction{
			{Text: "Head east", Index: 0},
			{Text: "Continue straight", Index: 100},
			{Text: "You have arrived at your destination", Index: 199},
		},
		TotalDistance: 222390,
		TotalTime:     9000,
	}
}

func testForm() waypoints.Form {
	form := waypoints.NewForm()
	form.Origin.Coordinates = "0, 0"
	form.Origin.Name = "A"
	form.AddStop()
	form.Stops[0].Coordinates = "0, 1"
	form.Destination.Coordinates = "0, 2"
	return *form
}

func newTestPlanner(client RouteClient) *PlannerService {
	cfg := config.DefaultConfig()
	return NewPlannerService(client, cache.NewCache(), cfg)
}

func TestCalculate_Success(t *testing.T) {
	client := &MockRouteClient{}
	client.On("Route", mock.Anything, mock.Anything).Return(equatorRoute(), nil)

	planner := newTestPlanner(client)
	snap, err := planner.Calculate(context.Background(), "s1", testForm())
	require.NoError(t, err)

	require.Len(t, snap.Waypoints, 3)
	assert.Equal(t, "A", snap.Waypoints[0].Label)
	assert.Equal(t, "Stop 1", snap.Waypoints[1].Label)
	assert.Equal(t, "Destination", snap.Waypoints[2].Label)

	require.Len(t, snap.Segments, 2)
	assert.Equal(t, "A", snap.Segments[0].OriginName)
	assert.Equal(t, "Stop 1", snap.Segments[0].DestName)
	assert.InDelta(t, snap.Segments[0].DistanceMeters, snap.Segments[1].DistanceMeters, 1500)

	assert.Equal(t, "222.39", snap.Totals.DistanceKm)
	assert.Equal(t, 150, snap.Totals.TimeMinutes)
	assert.Equal(t, progress.Summary{Total: 2}, snap.Progress)
	assert.Empty(t, snap.Traveled)
	require.NotNil(t, snap.Bounds)
	assert.NotEmpty(t, snap.Polyline)
	assert.InDelta(t, 50, snap.AssumedSpeedKmh, 1e-9)

	// Waypoints are sent to the routing service in form order
	points := client.Calls[0].Arguments.Get(1).([]geo.Point)
	assert.Equal(t, []geo.Point{{Latitude: 0, Longitude: 0}, {Latitude: 0, Longitude: 1}, {Latitude: 0, Longitude: 2}}, points)
}

func TestCalculate_InvalidEndpoints(t *testing.T) {
	client := &MockRouteClient{}
	planner := newTestPlanner(client)

	form := testForm()
	form.Origin.Coordinates = "somewhere"
	form.Destination.Coordinates = ""

	_, err := planner.Calculate(context.Background(), "s1", form)
	assert.ErrorIs(t, err, waypoints.ErrInvalidOrigin)
	assert.ErrorIs(t, err, waypoints.ErrInvalidDestination)
	client.AssertNotCalled(t, "Route", mock.Anything, mock.Anything)
}

func TestCalculate_RoutingFailure(t *testing.T) {
	client := &MockRouteClient{}
	client.On("Route", mock.Anything, mock.Anything).Return(nil,
		&osrm.RoutingError{Code: "NoRoute", Message: "Impossible route between points"})

	planner := newTestPlanner(client)
	_, err := planner.Calculate(context.Background(), "s1", testForm())

	var routeErr *RouteError
	require.True(t, errors.As(err, &routeErr))
	assert.Equal(t, "NoRoute: Impossible route between points", err.Error())

	// Nothing was stored
	_, err = planner.Snapshot("s1")
	assert.ErrorIs(t, err, ErrNoRoute)
}

func TestCalculate_UsesCache(t *testing.T) {
	client := &MockRouteClient{}
	client.On("Route", mock.Anything, mock.Anything).Return(equatorRoute(), nil).Once()

	planner := newTestPlanner(client)
	_, err := planner.Calculate(context.Background(), "s1", testForm())
	require.NoError(t, err)
	_, err = planner.Calculate(context.Background(), "s2", testForm())
	require.NoError(t, err)

	client.AssertNumberOfCalls(t, "Route", 1)
}

func TestCalculate_RecoversFromPanic(t *testing.T) {
	client := &MockRouteClient{}
	client.On("Route", mock.Anything, mock.Anything).Panic("routing exploded")

	planner := newTestPlanner(client)
	snap, err := planner.Calculate(context.Background(), "s1", testForm())
	assert.Nil(t, snap)
	assert.ErrorIs(t, err, ErrUnexpected)

	// The guard was released
	client.ExpectedCalls = nil
	client.On("Route", mock.Anything, mock.Anything).Return(equatorRoute(), nil)
	_, err = planner.Calculate(context.Background(), "s1", testForm())
	assert.NoError(t, err)
}

func TestCalculate_ScopesLoggerOnBareContext(t *testing.T) {
	var seen logging.Logger
	client := &MockRouteClient{}
	client.On("Route", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			seen = logging.FromContext(args.Get(0).(context.Context))
		}).
		Return(equatorRoute(), nil)

	// No cache, so every calculation reaches the client
	planner := NewPlannerService(client, nil, config.DefaultConfig())
	_, err := planner.Calculate(context.Background(), "cli", testForm())
	require.NoError(t, err)
	assert.NotNil(t, seen, "routing client should receive a context with a logger")

	// A caller's own logger is kept
	own := logging.NewDevLogger().Named("caller")
	_, err = planner.Calculate(logging.With(context.Background(), own), "other", testForm())
	require.NoError(t, err)
	assert.Same(t, own, seen)

	// A panic on a bare context is still reported as an error
	client.ExpectedCalls = nil
	client.On("Route", mock.Anything, mock.Anything).Panic("boom")
	assert.NotPanics(t, func() {
		_, err = planner.Calculate(context.Background(), "cli", testForm())
	})
	assert.ErrorIs(t, err, ErrUnexpected)
}

func TestCalculate_GuardAndSupersede(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	client := &MockRouteClient{}
	client.On("Route", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		close(started)
		<-release
	}).Return(equatorRoute(), nil).Once()

	planner := NewPlannerService(client, nil, config.DefaultConfig())

	type result struct {
		snap *Snapshot
		err  error
	}
	done := make(chan result, 1)
	go func() {
		snap, err := planner.Calculate(context.Background(), "s1", testForm())
		done <- result{snap, err}
	}()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("calculation never reached the routing service")
	}

	// A second request on the same session is rejected, not queued
	_, err := planner.Calculate(context.Background(), "s1", testForm())
	assert.ErrorIs(t, err, ErrCalculationInProgress)

	// Clearing while in flight discards the result
	planner.Clear("s1")
	close(release)

	select {
	case res := <-done:
		assert.Nil(t, res.snap)
		assert.ErrorIs(t, res.err, ErrCalculationSuperseded)
	case <-time.After(time.Second):
		t.Fatal("calculation did not finish")
	}

	_, err = planner.Snapshot("s1")
	assert.ErrorIs(t, err, ErrNoRoute)
}

func TestToggleAndFocus(t *testing.T) {
	client := &MockRouteClient{}
	client.On("Route", mock.Anything, mock.Anything).Return(equatorRoute(), nil)
	planner := newTestPlanner(client)

	_, err := planner.Toggle("s1", 0, true)
	assert.ErrorIs(t, err, ErrNoRoute)
	_, err = planner.Focus("s1", 0)
	assert.ErrorIs(t, err, ErrNoRoute)

	snap, err := planner.Calculate(context.Background(), "s1", testForm())
	require.NoError(t, err)

	summary, err := planner.Toggle("s1", 1, true)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Count)
	assert.InDelta(t, snap.Segments[1].DistanceMeters, summary.DistanceMeters, 1e-9)

	_, err = planner.Toggle("s1", 2, true)
	assert.ErrorIs(t, err, progress.ErrSegmentOutOfRange)

	view, err := planner.Focus("s1", 0)
	require.NoError(t, err)
	assert.True(t, view[0].Focused)
	assert.True(t, view[1].Dimmed)
	assert.True(t, view[1].Traveled)

	view, err = planner.Focus("s1", 0)
	require.NoError(t, err)
	assert.False(t, view[0].Focused)
	assert.False(t, view[0].Dimmed)

	// Recalculating discards progress and focus
	_, err = planner.Focus("s1", 1)
	require.NoError(t, err)
	snap, err = planner.Calculate(context.Background(), "s1", testForm())
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Progress.Count)
	for _, v := range snap.View {
		assert.False(t, v.Focused)
	}

	// Sessions are independent
	_, err = planner.Snapshot("other")
	assert.ErrorIs(t, err, ErrNoRoute)
}

func TestCalculateCSV(t *testing.T) {
	client := &MockRouteClient{}
	client.On("Route", mock.Anything, mock.Anything).Return(equatorRoute(), nil)
	planner := newTestPlanner(client)

	csv := "nome,latitude,longitude\nStart,0,0\nMiddle,0,1\nEnd,0,2\n"
	snap, err := planner.CalculateCSV(context.Background(), "s1", strings.NewReader(csv))
	require.NoError(t, err)

	require.Len(t, snap.Segments, 2)
	assert.Equal(t, "Start", snap.Segments[0].OriginName)
	assert.Equal(t, "Middle", snap.Segments[0].DestName)
	assert.Equal(t, "End", snap.Segments[1].DestName)

	_, err = planner.CalculateCSV(context.Background(), "s1", strings.NewReader("Only,0,0\n"))
	assert.ErrorIs(t, err, waypoints.ErrTooFewRows)
}

func TestApplyPresets(t *testing.T) {
	planner := newTestPlanner(&MockRouteClient{})

	form := waypoints.NewForm()
	err := planner.ApplyPresets(form, map[string]string{
		waypoints.OriginFieldID:      "cascavel-centro",
		waypoints.DestinationFieldID: "aeroporto",
	})
	require.NoError(t, err)
	assert.Equal(t, "Centro, Cascavel", form.Origin.Name)
	assert.Equal(t, "-24.955296, -53.4747252", form.Origin.Coordinates)
	assert.Equal(t, "Aeroporto Municipal de Cascavel", form.Destination.Name)

	err = planner.ApplyPresets(form, map[string]string{waypoints.OriginFieldID: "nowhere"})
	assert.ErrorIs(t, err, ErrUnknownPreset)

	err = planner.ApplyPresets(form, map[string]string{"stop-9": "catedral"})
	assert.ErrorIs(t, err, waypoints.ErrUnknownField)
}

func TestExportPlan(t *testing.T) {
	client := &MockRouteClient{}
	client.On("Route", mock.Anything, mock.Anything).Return(equatorRoute(), nil)
	planner := newTestPlanner(client)

	_, err := planner.ExportPlan("s1")
	assert.ErrorIs(t, err, ErrNoRoute)

	_, err = planner.Calculate(context.Background(), "s1", testForm())
	require.NoError(t, err)
	_, err = planner.Toggle("s1", 0, true)
	require.NoError(t, err)

	plan, err := planner.ExportPlan("s1")
	require.NoError(t, err)
	assert.Equal(t, "A to Destination", plan.Name)
	assert.Len(t, plan.Waypoints, 3)
	assert.Len(t, plan.Segments, 2)
	assert.True(t, plan.Traveled(0))
	assert.False(t, plan.Traveled(1))
}

func TestSessionStore_Sweep(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewSessionStore()
	store.now = func() time.Time { return now }

	store.Get("old")
	busy := store.Get("busy")
	require.True(t, busy.calc.TryAcquire(1))

	now = now.Add(3 * time.Hour)
	store.Get("fresh")

	removed := store.Sweep(time.Hour)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 2, store.Len())

	busy.calc.Release(1)
	assert.Equal(t, 1, store.Sweep(time.Hour))

	assert.Equal(t, DefaultSessionID, store.Get("").ID)
}
