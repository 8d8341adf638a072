package osrm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dpup/route-planner/server/internal/lib/geo"
	"github.com/dpup/route-planner/server/internal/lib/routing"
)

// DefaultBaseURL is the public OSRM demo server
const DefaultBaseURL = "https://router.project-osrm.org"

// ErrTooFewPoints is returned when fewer than two coordinates are requested
var ErrTooFewPoints = errors.New("at least two coordinates are required")

// HTTPDoer is the part of *http.Client the client needs
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RoutingError is a failure status reported by the routing service itself
type RoutingError struct {
	Code    string
	Message string
}

func (e *RoutingError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// Client provides access to the OSRM route/v1 service
type Client struct {
	httpClient HTTPDoer
	baseURL    string
	profile    string
	geoUtils   geo.GeoUtils
}

// NewClient creates a new OSRM client. An empty baseURL uses the demo server.
func NewClient(baseURL, profile string, timeout time.Duration) *Client {
	return NewClientWithHTTPDoer(baseURL, profile, &http.Client{
		Timeout: timeout,
	})
}

// NewClientWithHTTPDoer creates a client using doer for requests
func NewClientWithHTTPDoer(baseURL, profile string, doer HTTPDoer) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if profile == "" {
		profile = "driving"
	}
	return &Client{
		httpClient: doer,
		baseURL:    strings.TrimRight(baseURL, "/"),
		profile:    profile,
		geoUtils:   geo.NewGeoUtils(),
	}
}

// Route computes a road route visiting points in order
func (c *Client) Route(ctx context.Context, points []geo.Point) (*routing.Route, error) {
	if len(points) < 2 {
		return nil, ErrTooFewPoints
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.routeURL(points), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RoutingError{Code: "TooManyRequests", Message: "rate limit exceeded"}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var response RouteResponse
	if err := json.Unmarshal(body, &response); err != nil {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
		}
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	// OSRM reports failures as a JSON code, often alongside a 4xx status
	if response.Code != "Ok" {
		return nil, &RoutingError{Code: response.Code, Message: response.Message}
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	if len(response.Routes) == 0 {
		return nil, &RoutingError{Code: "NoRoute", Message: "no routes found in response"}
	}

	return c.processRouteResponse(response.Routes[0])
}

// routeURL builds the route/v1 request; OSRM takes lng,lat pairs
func (c *Client) routeURL(points []geo.Point) string {
	coords := make([]string, len(points))
	for i, p := range points {
		coords[i] = strconv.FormatFloat(p.Longitude, 'f', 6, 64) + "," + strconv.FormatFloat(p.Latitude, 'f', 6, 64)
	}

	params := url.Values{}
	params.Set("overview", "false")
	params.Set("geometries", "polyline")
	params.Set("steps", "true")

	return fmt.Sprintf("%s/route/v1/%s/%s?%s", c.baseURL, c.profile, strings.Join(coords, ";"), params.Encode())
}

// processRouteResponse flattens step geometries into one route geometry.
// Each instruction's index is the offset of its step's first point.
func (c *Client) processRouteResponse(route RouteResult) (*routing.Route, error) {
	result := &routing.Route{
		Geometry:      []geo.Point{},
		Instructions:  []routing.Instruction{},
		TotalDistance: route.Distance,
		TotalTime:     route.Duration,
	}

	for legIndex, leg := range route.Legs {
		lastLeg := legIndex == len(route.Legs)-1
		for _, step := range leg.Steps {
			var points []geo.Point
			if step.Geometry != "" {
				decoded, err := c.geoUtils.DecodePolyline(step.Geometry)
				if err != nil {
					return nil, fmt.Errorf("failed to decode step geometry: %w", err)
				}
				points = decoded
			}

			result.Instructions = append(result.Instructions, routing.Instruction{
				Text:            instructionText(step, legIndex, lastLeg),
				Index:           len(result.Geometry),
				Type:            step.Maneuver.Type,
				Modifier:        step.Maneuver.Modifier,
				Road:            step.Name,
				DistanceMeters:  step.Distance,
				DurationSeconds: step.Duration,
			})
			result.Geometry = append(result.Geometry, points...)
		}
	}

	// Instructions past the end point at the last coordinate
	if n := len(result.Geometry); n > 0 {
		for i := range result.Instructions {
			if result.Instructions[i].Index >= n {
				result.Instructions[i].Index = n - 1
			}
		}
	}

	return result, nil
}

// RouteResponse represents the route/v1 response structure
type RouteResponse struct {
	Code    string        `json:"code"`
	Message string        `json:"message,omitempty"`
	Routes  []RouteResult `json:"routes"`
}

// RouteResult represents a single route in the response
type RouteResult struct {
	Distance float64    `json:"distance"`
	Duration float64    `json:"duration"`
	Legs     []RouteLeg `json:"legs"`
}

// RouteLeg represents the part of a route between two requested coordinates
type RouteLeg struct {
	Distance float64     `json:"distance"`
	Duration float64     `json:"duration"`
	Summary  string      `json:"summary"`
	Steps    []RouteStep `json:"steps"`
}

// RouteStep represents one maneuver and the road travelled after it
type RouteStep struct {
	Distance float64  `json:"distance"`
	Duration float64  `json:"duration"`
	Geometry string   `json:"geometry"`
	Name     string   `json:"name"`
	Ref      string   `json:"ref,omitempty"`
	Mode     string   `json:"mode"`
	Maneuver Maneuver `json:"maneuver"`
}

// Maneuver describes the action at the start of a step
type Maneuver struct {
	Type          string    `json:"type"`
	Modifier      string    `json:"modifier,omitempty"`
	BearingAfter  float64   `json:"bearing_after"`
	BearingBefore float64   `json:"bearing_before"`
	Exit          int       `json:"exit,omitempty"`
	Location      []float64 `json:"location"` // lng, lat
}
