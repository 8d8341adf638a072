package services

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/dpup/prefab/logging"

	"github.com/dpup/route-planner/server/internal/export"
	"github.com/dpup/route-planner/server/internal/lib/progress"
	"github.com/dpup/route-planner/server/internal/lib/waypoints"
)

// SessionHeader selects the planner session a request operates on
const SessionHeader = "X-Session-ID"

const maxBodyBytes = 1 << 20

// routeRequest is a route form plus optional preset assignments
type routeRequest struct {
	waypoints.Form
	Presets map[string]string `json:"presets,omitempty"` // Field ID -> preset ID
}

type traveledRequest struct {
	Traveled bool `json:"traveled"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler serves the planner's JSON API under /api/v1
type Handler struct {
	planner     *PlannerService
	corsOrigins []string
	mux         *http.ServeMux
}

// NewHandler creates the API handler. corsOrigins may contain "*".
func NewHandler(planner *PlannerService, corsOrigins []string) *Handler {
	h := &Handler{
		planner:     planner,
		corsOrigins: corsOrigins,
		mux:         http.NewServeMux(),
	}

	h.mux.HandleFunc("POST /api/v1/route", h.calculate)
	h.mux.HandleFunc("POST /api/v1/route/csv", h.calculateCSV)
	h.mux.HandleFunc("GET /api/v1/route", h.snapshot)
	h.mux.HandleFunc("DELETE /api/v1/route", h.clear)
	h.mux.HandleFunc("PUT /api/v1/route/segments/{index}/traveled", h.toggleTraveled)
	h.mux.HandleFunc("POST /api/v1/route/segments/{index}/focus", h.focus)
	h.mux.HandleFunc("GET /api/v1/route/export.kml", h.exportKML)
	h.mux.HandleFunc("GET /api/v1/route/export.geojson", h.exportGeoJSON)
	h.mux.HandleFunc("GET /api/v1/presets", h.presets)
	h.mux.HandleFunc("GET /api/v1/status", h.status)

	return h
}

// ServeHTTP implements http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if origin := h.allowedOrigin(r.Header.Get("Origin")); origin != "" {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+SessionHeader)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	}
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.mux.ServeHTTP(w, r.WithContext(withLogger(r.Context(), h.planner.logger)))
}

func (h *Handler) allowedOrigin(origin string) string {
	if origin == "" {
		return ""
	}
	for _, allowed := range h.corsOrigins {
		if allowed == "*" {
			return "*"
		}
		if strings.EqualFold(allowed, origin) {
			return origin
		}
	}
	return ""
}

func (h *Handler) calculate(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	form := req.Form
	if form.Origin.ID == "" {
		form.Origin.ID = waypoints.OriginFieldID
	}
	if form.Destination.ID == "" {
		form.Destination.ID = waypoints.DestinationFieldID
	}
	if err := h.planner.ApplyPresets(&form, req.Presets); err != nil {
		h.writeError(w, r, err)
		return
	}

	snapshot, err := h.planner.Calculate(r.Context(), sessionID(r), form)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) calculateCSV(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.planner.CalculateCSV(r.Context(), sessionID(r), io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.planner.Snapshot(sessionID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) clear(w http.ResponseWriter, r *http.Request) {
	h.planner.Clear(sessionID(r))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) toggleTraveled(w http.ResponseWriter, r *http.Request) {
	index, ok := segmentIndex(w, r)
	if !ok {
		return
	}

	var req traveledRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	summary, err := h.planner.Toggle(sessionID(r), index, req.Traveled)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) focus(w http.ResponseWriter, r *http.Request) {
	index, ok := segmentIndex(w, r)
	if !ok {
		return
	}

	view, err := h.planner.Focus(sessionID(r), index)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) exportKML(w http.ResponseWriter, r *http.Request) {
	plan, err := h.planner.ExportPlan(sessionID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.google-earth.kml+xml")
	w.Header().Set("Content-Disposition", `attachment; filename="route.kml"`)
	if err := export.WriteKML(w, plan); err != nil {
		logging.Errorw(r.Context(), "Failed to write KML export", "error", err)
	}
}

func (h *Handler) exportGeoJSON(w http.ResponseWriter, r *http.Request) {
	plan, err := h.planner.ExportPlan(sessionID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	data, err := export.GeoJSON(plan)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	if _, err := w.Write(data); err != nil {
		logging.Errorw(r.Context(), "Failed to write GeoJSON export", "error", err)
	}
}

func (h *Handler) presets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.planner.Presets())
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.planner.Status())
}

// writeError maps planner errors to HTTP statuses. Routing failures keep the
// routing service's message; anything unrecognized gets a generic message.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var routeErr *RouteError
	switch {
	case errors.Is(err, waypoints.ErrInvalidOrigin), errors.Is(err, waypoints.ErrInvalidDestination):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: waypoints.CoordinatePrompt})
	case errors.Is(err, waypoints.ErrTooFewRows), errors.Is(err, waypoints.ErrUnknownField), errors.Is(err, ErrUnknownPreset):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, progress.ErrSegmentOutOfRange), errors.Is(err, ErrNoRoute):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, ErrCalculationInProgress), errors.Is(err, ErrCalculationSuperseded):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.As(err, &routeErr):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: routeErr.Error()})
	default:
		logging.Errorw(r.Context(), "Planner request failed", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: ErrUnexpected.Error()})
	}
}

func segmentIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "segment index must be an integer"})
		return 0, false
	}
	return index, true
}

func sessionID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(SessionHeader)); id != "" {
		return id
	}
	return DefaultSessionID
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
