package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/dpup/route-planner/server/internal/lib/geo"
	"github.com/dpup/route-planner/server/internal/lib/waypoints"
)

// EnvPrefix prefixes environment overrides. Nested keys use a double
// underscore, e.g. ROUTEPLANNER_ROUTING__BASE_URL.
const EnvPrefix = "ROUTEPLANNER_"

// Config represents the complete planner configuration
type Config struct {
	API     APIConfig     `koanf:"api"`
	Routing RoutingConfig `koanf:"routing"`
	Presets []Preset      `koanf:"presets"`
}

// APIConfig holds HTTP API settings not managed by prefab
type APIConfig struct {
	CorsOrigins []string      `koanf:"cors_origins"`
	SessionIdle time.Duration `koanf:"session_idle"` // Sessions unused this long are dropped
}

// RoutingConfig holds routing service and partitioning settings
type RoutingConfig struct {
	BaseURL         string        `koanf:"base_url"`
	Profile         string        `koanf:"profile"`
	Timeout         time.Duration `koanf:"timeout"`
	AssumedSpeedKmh float64       `koanf:"assumed_speed_kmh"`
	CacheTTL        time.Duration `koanf:"cache_ttl"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
}

// Preset is a named location that can fill any waypoint field
type Preset struct {
	ID   string  `koanf:"id"`
	Name string  `koanf:"name"`
	Lat  float64 `koanf:"lat"`
	Lng  float64 `koanf:"lng"`
}

// ToPreset converts a configured preset to the waypoint form type
func (p Preset) ToPreset() waypoints.Preset {
	return waypoints.Preset{
		ID:        p.ID,
		Name:      p.Name,
		Latitude:  p.Lat,
		Longitude: p.Lng,
	}
}

// WaypointPresets converts all configured presets
func (c *Config) WaypointPresets() []waypoints.Preset {
	presets := make([]waypoints.Preset, len(c.Presets))
	for i, p := range c.Presets {
		presets[i] = p.ToPreset()
	}
	return presets
}

// FindPreset looks up a preset by ID
func (c *Config) FindPreset(id string) (waypoints.Preset, bool) {
	for _, p := range c.Presets {
		if p.ID == id {
			return p.ToPreset(), true
		}
	}
	return waypoints.Preset{}, false
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			CorsOrigins: []string{"*"},
			SessionIdle: 2 * time.Hour,
		},
		Routing: RoutingConfig{
			BaseURL:         "https://router.project-osrm.org",
			Profile:         "driving",
			Timeout:         10 * time.Second,
			AssumedSpeedKmh: 50,
			CacheTTL:        10 * time.Minute,
			CleanupInterval: 5 * time.Minute,
		},
		Presets: []Preset{
			{
				ID:   "cascavel-centro",
				Name: "Centro, Cascavel",
				Lat:  -24.955296,
				Lng:  -53.4747252,
			},
			{
				ID:   "catedral",
				Name: "Catedral Nossa Senhora Aparecida",
				Lat:  -24.9555,
				Lng:  -53.4553,
			},
			{
				ID:   "lago-municipal",
				Name: "Lago Municipal de Cascavel",
				Lat:  -24.9640,
				Lng:  -53.4431,
			},
			{
				ID:   "rodoviaria",
				Name: "Terminal Rodoviário de Cascavel",
				Lat:  -24.9713,
				Lng:  -53.4805,
			},
			{
				ID:   "aeroporto",
				Name: "Aeroporto Municipal de Cascavel",
				Lat:  -25.0003,
				Lng:  -53.5008,
			},
		},
	}
}

// Load reads configuration from defaults, an optional YAML file and
// ROUTEPLANNER_ environment variables, in increasing priority.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(DefaultConfig().values(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail at request time
func (c *Config) Validate() error {
	if c.Routing.Timeout <= 0 {
		return fmt.Errorf("routing.timeout must be positive, got %s", c.Routing.Timeout)
	}
	if c.Routing.CleanupInterval <= 0 {
		return fmt.Errorf("routing.cleanup_interval must be positive, got %s", c.Routing.CleanupInterval)
	}
	seen := make(map[string]bool, len(c.Presets))
	for _, p := range c.Presets {
		if p.ID == "" {
			return fmt.Errorf("preset %q has no id", p.Name)
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate preset id %q", p.ID)
		}
		seen[p.ID] = true
		if _, err := geo.NewPoint(p.Lat, p.Lng); err != nil {
			return fmt.Errorf("preset %q: %w", p.ID, err)
		}
	}
	return nil
}

// envKey maps ROUTEPLANNER_ROUTING__BASE_URL to routing.base_url
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// values flattens c into koanf keys
func (c *Config) values() map[string]any {
	presets := make([]any, len(c.Presets))
	for i, p := range c.Presets {
		presets[i] = map[string]any{
			"id":   p.ID,
			"name": p.Name,
			"lat":  p.Lat,
			"lng":  p.Lng,
		}
	}

	return map[string]any{
		"api.cors_origins":          c.API.CorsOrigins,
		"api.session_idle":          c.API.SessionIdle,
		"routing.base_url":          c.Routing.BaseURL,
		"routing.profile":           c.Routing.Profile,
		"routing.timeout":           c.Routing.Timeout,
		"routing.assumed_speed_kmh": c.Routing.AssumedSpeedKmh,
		"routing.cache_ttl":         c.Routing.CacheTTL,
		"routing.cleanup_interval":  c.Routing.CleanupInterval,
		"presets":                   presets,
	}
}
