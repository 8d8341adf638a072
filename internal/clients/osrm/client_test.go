package osrm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dpup/route-planner/server/internal/lib/geo"
)

// MockHTTPDoer is a mock implementation of HTTPDoer
type MockHTTPDoer struct {
	mock.Mock
}

func (m *MockHTTPDoer) Do(req *http.Request) (*http.Response, error) {
	args := m.Called(req)
	resp, _ := args.Get(0).(*http.Response)
	return resp, args.Error(1)
}

// Helper function to load test fixture data
func loadTestFixture(t *testing.T, filename string) string {
	data, err := os.ReadFile("testdata/" + filename)
	require.NoError(t, err, "Failed to load test fixture %s", filename)
	return string(data)
}

// Helper function to create mock HTTP response
func createMockResponse(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

var cascavelPoints = []geo.Point{
	{Latitude: -24.95530, Longitude: -53.47473},
	{Latitude: -24.96000, Longitude: -53.46500},
	{Latitude: -24.96460, Longitude: -53.45900},
}

func TestRoute_Success(t *testing.T) {
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Return(
		createMockResponse(200, loadTestFixture(t, "cascavel_route.json")), nil)

	client := NewClientWithHTTPDoer("https://osrm.test", "driving", mockHTTP)

	route, err := client.Route(context.Background(), cascavelPoints)
	require.NoError(t, err)
	require.NotNil(t, route)

	assert.InDelta(t, 1690.7, route.TotalDistance, 1e-9)
	assert.InDelta(t, 185.1, route.TotalTime, 1e-9)

	// Step geometries are concatenated: 3+2+2 and 2+3+2 points
	require.Len(t, route.Geometry, 14)
	assert.InDelta(t, -24.95530, route.Geometry[0].Latitude, 1e-5)
	assert.InDelta(t, -53.45900, route.Geometry[13].Longitude, 1e-5)

	require.Len(t, route.Instructions, 6)
	indices := []int{}
	for _, instruction := range route.Instructions {
		indices = append(indices, instruction.Index)
	}
	assert.Equal(t, []int{0, 3, 5, 7, 9, 12}, indices)

	assert.Equal(t, "Head southeast on Rua Sete de Setembro", route.Instructions[0].Text)
	assert.Equal(t, "Turn right onto Avenida Brasil", route.Instructions[1].Text)
	assert.Equal(t, "You have arrived at stop 1", route.Instructions[2].Text)
	assert.Equal(t, "Turn left onto Rua Paraná", route.Instructions[4].Text)
	assert.Equal(t, "You have arrived at your destination", route.Instructions[5].Text)
	assert.Equal(t, "turn", route.Instructions[1].Type)
	assert.Equal(t, "right", route.Instructions[1].Modifier)
	assert.InDelta(t, 560.2, route.Instructions[1].DistanceMeters, 1e-9)

	mockHTTP.AssertExpectations(t)
}

func TestRoute_RequestShape(t *testing.T) {
	var gotPath, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(loadTestFixture(t, "cascavel_route.json")))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", "driving", 5*time.Second)
	_, err := client.Route(context.Background(), cascavelPoints)
	require.NoError(t, err)

	assert.Equal(t, "/route/v1/driving/-53.474730,-24.955300;-53.465000,-24.960000;-53.459000,-24.964600", gotPath)
	assert.Contains(t, gotQuery, "steps=true")
	assert.Contains(t, gotQuery, "geometries=polyline")
	assert.Contains(t, gotQuery, "overview=false")
}

func TestRoute_RoutingErrorIsVerbatim(t *testing.T) {
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Return(
		createMockResponse(400, `{"code":"NoRoute","message":"Impossible route between points"}`), nil)

	client := NewClientWithHTTPDoer("", "", mockHTTP)

	route, err := client.Route(context.Background(), cascavelPoints[:2])
	assert.Nil(t, route)

	var routingErr *RoutingError
	require.True(t, errors.As(err, &routingErr))
	assert.Equal(t, "NoRoute", routingErr.Code)
	assert.Equal(t, "NoRoute: Impossible route between points", err.Error())

	mockHTTP.AssertExpectations(t)
}

func TestRoute_NoRoutes(t *testing.T) {
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Return(
		createMockResponse(200, `{"code":"Ok","routes":[]}`), nil)

	client := NewClientWithHTTPDoer("", "", mockHTTP)

	_, err := client.Route(context.Background(), cascavelPoints)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no routes found in response")
}

func TestRoute_RateLimit(t *testing.T) {
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Return(
		createMockResponse(429, `Too Many Requests`), nil)

	client := NewClientWithHTTPDoer("", "", mockHTTP)

	_, err := client.Route(context.Background(), cascavelPoints)
	var routingErr *RoutingError
	require.True(t, errors.As(err, &routingErr))
	assert.Equal(t, "TooManyRequests", routingErr.Code)
}

func TestRoute_ServerErrorWithoutJSON(t *testing.T) {
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Return(
		createMockResponse(502, `<html>Bad Gateway</html>`), nil)

	client := NewClientWithHTTPDoer("", "", mockHTTP)

	_, err := client.Route(context.Background(), cascavelPoints)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API error 502")
}

func TestRoute_TransportError(t *testing.T) {
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Return(nil, errors.New("connection refused"))

	client := NewClientWithHTTPDoer("", "", mockHTTP)

	_, err := client.Route(context.Background(), cascavelPoints)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRoute_TooFewPoints(t *testing.T) {
	client := NewClientWithHTTPDoer("", "", &MockHTTPDoer{})

	_, err := client.Route(context.Background(), cascavelPoints[:1])
	assert.ErrorIs(t, err, ErrTooFewPoints)
}

func TestInstructionText(t *testing.T) {
	tests := []struct {
		step RouteStep
		want string
	}{
		{RouteStep{Maneuver: Maneuver{Type: "depart", BearingAfter: 2}}, "Head north"},
		{RouteStep{Name: "BR-277", Maneuver: Maneuver{Type: "depart", BearingAfter: 268}}, "Head west on BR-277"},
		{RouteStep{Name: "Rua A", Maneuver: Maneuver{Type: "roundabout", Exit: 2}}, "Take the 2nd exit at the roundabout onto Rua A"},
		{RouteStep{Ref: "PR-180", Maneuver: Maneuver{Type: "merge", Modifier: "slight left"}}, "Merge slight left onto PR-180"},
		{RouteStep{Maneuver: Maneuver{Type: "end of road", Modifier: "uturn"}}, "Make a U-turn"},
		{RouteStep{Name: "Rua B", Maneuver: Maneuver{Type: "new name"}}, "Continue onto Rua B"},
		{RouteStep{Name: "Rua C", Maneuver: Maneuver{Type: "continue", Modifier: "straight"}}, "Continue straight on Rua C"},
		{RouteStep{Name: "Rua D", Maneuver: Maneuver{Type: "fork"}}, "Keep straight at the fork onto Rua D"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, instructionText(tt.step, 0, true))
	}

	assert.Equal(t, "11th", ordinal(11))
	assert.Equal(t, "23rd", ordinal(23))
	assert.Equal(t, "101st", ordinal(101))
}
