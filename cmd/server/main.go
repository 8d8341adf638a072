package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"

	"github.com/dpup/prefab"
	"github.com/dpup/prefab/logging"
	"github.com/joho/godotenv"

	"github.com/dpup/route-planner/server/internal/cache"
	"github.com/dpup/route-planner/server/internal/clients/osrm"
	"github.com/dpup/route-planner/server/internal/config"
	"github.com/dpup/route-planner/server/internal/services"
)

func main() {
	// Local .env files feed PF__ overrides during development
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	// Load configuration using Prefab's config system
	appConfig := loadConfig()

	// Background loops and request handlers share the server's logger
	ctx := logging.EnsureLogger(context.Background())

	// Initialize route cache
	cacheInstance := cache.NewCache()
	cacheInstance.StartPeriodicCleanup(ctx, appConfig.Routing.CleanupInterval)

	// Initialize routing service client
	osrmClient := osrm.NewClient(appConfig.Routing.BaseURL, appConfig.Routing.Profile, appConfig.Routing.Timeout)

	plannerService := services.NewPlannerService(osrmClient, cacheInstance, appConfig)
	apiHandler := services.NewHandler(plannerService, appConfig.API.CorsOrigins)

	sweeper := services.NewSessionSweeper(plannerService.Sessions(), appConfig.Routing.CleanupInterval, appConfig.API.SessionIdle)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	log.Printf("Route Planner API Server starting")
	log.Printf("Routing service: %s (profile %s)", appConfig.Routing.BaseURL, appConfig.Routing.Profile)
	log.Printf("Presets configured: %d", len(appConfig.Presets))

	// Server configuration (port, etc.) will be loaded from prefab.yaml/env vars
	server := prefab.New(
		prefab.WithContext(ctx),
		prefab.WithHTTPHandlerFunc("/api/v1/", apiHandler.ServeHTTP),
		prefab.WithHTTPHandlerFunc("/", homepageHandler),
	)

	// Start the server (blocks until shutdown)
	if err := server.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// loadConfig loads configuration using Prefab's config system.
// Configuration is loaded from prefab.yaml and environment variables with PF__ prefix;
// sections that are absent keep their defaults.
func loadConfig() *config.Config {
	appConfig := config.DefaultConfig()

	if err := prefab.Config.Unmarshal("routing", &appConfig.Routing); err != nil {
		log.Fatalf("Failed to unmarshal routing section: %v", err)
	}

	if err := prefab.Config.Unmarshal("api", &appConfig.API); err != nil {
		log.Fatalf("Failed to unmarshal api section: %v", err)
	}

	if prefab.Config.Exists("presets") {
		var presets []config.Preset
		if err := prefab.Config.Unmarshal("presets", &presets); err != nil {
			log.Fatalf("Failed to unmarshal presets section: %v", err)
		}
		appConfig.Presets = presets
	}

	if err := appConfig.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	return appConfig
}

// homepageHandler serves a simple HTML homepage at the server root
func homepageHandler(w http.ResponseWriter, r *http.Request) {
	// Only handle the root path
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	html := `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>route-planner</title>
    <style>
        body {
            font-family: 'Courier New', Consolas, monospace;
            background: #000;
            color: #0f0;
            padding: 20px;
            line-height: 1.4;
        }
        a { color: #0ff; text-decoration: none; }
        a:hover { text-decoration: underline; }
        pre { margin: 0; }
        .header { color: #ff0; }
    </style>
</head>
<body>
<pre>
<span class="header">route-planner</span>

Multi-stop route planning: origin, destination and stops in, per-leg
distance, time and turn-by-turn instructions out.

<span class="header">API Endpoints:</span>

  POST   /api/v1/route                           - Calculate a route from a form
  POST   /api/v1/route/csv                       - Calculate from name,latitude,longitude rows
  <a href="/api/v1/route">GET    /api/v1/route</a>                           - Current route and progress
  DELETE /api/v1/route                           - Clear the route
  PUT    /api/v1/route/segments/{index}/traveled - Mark a leg as traveled
  POST   /api/v1/route/segments/{index}/focus    - Focus or unfocus a leg
  <a href="/api/v1/route/export.kml">GET    /api/v1/route/export.kml</a>                - KML export
  <a href="/api/v1/route/export.geojson">GET    /api/v1/route/export.geojson</a>            - GeoJSON export
  <a href="/api/v1/presets">GET    /api/v1/presets</a>                         - Preset locations
  <a href="/api/v1/status">GET    /api/v1/status</a>                          - Live sessions and route cache usage

Sessions are selected with the X-Session-ID header.

<span class="header">Data Sources:</span>
  • OSRM route service   - Road geometry, distances and maneuvers

<span class="header">Example Usage:</span>
  curl -X POST -d '{"origin":{"coordinates":"-24.955296, -53.4747252"},"destination":{"coordinates":"-25.0003, -53.5008"}}' /api/v1/route
</pre>
</body>
</html>`

	if _, err := fmt.Fprint(w, html); err != nil {
		slog.Error("Failed to write homepage HTML", "error", err)
	}
}
