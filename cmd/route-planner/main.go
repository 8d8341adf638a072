package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/dpup/prefab/logging"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/dpup/route-planner/server/internal/cache"
	"github.com/dpup/route-planner/server/internal/clients/osrm"
	"github.com/dpup/route-planner/server/internal/config"
	"github.com/dpup/route-planner/server/internal/export"
	"github.com/dpup/route-planner/server/internal/lib/routing"
	"github.com/dpup/route-planner/server/internal/lib/waypoints"
	"github.com/dpup/route-planner/server/internal/services"
)

const cliSession = "cli"

// stopList collects repeated --stop flags
type stopList []string

func (s *stopList) String() string { return strings.Join(*s, " | ") }

func (s *stopList) Set(value string) error {
	*s = append(*s, value)
	return nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "plan":
		handlePlan(os.Args[2:])
	case "presets":
		handlePresets(os.Args[2:])
	case "help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

type planOptions struct {
	configPath        string
	origin            string
	destination       string
	stops             stopList
	originPreset      string
	destinationPreset string
	csvPath           string
	traveled          string
	focus             int
	format            string
	verbose           bool
}

func handlePlan(args []string) {
	var opts planOptions
	fs := flag.NewFlagSet("plan", flag.ExitOnError)
	fs.StringVar(&opts.configPath, "config", "", "Path to YAML config file")
	fs.StringVar(&opts.origin, "origin", "", `Origin as "lat, lng" (optionally "Name=lat, lng")`)
	fs.StringVar(&opts.destination, "destination", "", `Destination as "lat, lng" (optionally "Name=lat, lng")`)
	fs.Var(&opts.stops, "stop", "Intermediate stop, repeatable, same format as --origin")
	fs.StringVar(&opts.originPreset, "origin-preset", "", "Preset ID to use as origin")
	fs.StringVar(&opts.destinationPreset, "destination-preset", "", "Preset ID to use as destination")
	fs.StringVar(&opts.csvPath, "csv", "", "CSV file of name,latitude,longitude rows")
	fs.StringVar(&opts.traveled, "traveled", "", "Comma separated leg indices to mark as traveled, e.g. 0,2")
	fs.IntVar(&opts.focus, "focus", -1, "Leg index to focus")
	fs.StringVar(&opts.format, "format", "text", "Output format: text, json, kml or geojson")
	fs.BoolVar(&opts.verbose, "verbose", false, "Enable debug logging")

	fs.Parse(args)

	if opts.csvPath == "" && (opts.origin == "" && opts.originPreset == "" || opts.destination == "" && opts.destinationPreset == "") {
		fmt.Println("Example usage:")
		fmt.Println(`  route-planner plan --origin "-24.955296, -53.4747252" --destination "-24.9713, -53.4805"`)
		fmt.Println(`  route-planner plan --origin-preset cascavel-centro --stop "Lago=-24.9640, -53.4431" --destination-preset aeroporto`)
		fmt.Println(`  route-planner plan --csv stops.csv --traveled 0 --format geojson`)
		os.Exit(1)
	}

	logger := newLogger(opts.verbose)
	defer func() { _ = logger.Sync() }()

	cfg := loadConfig(logger, opts.configPath)
	planner := newPlanner(cfg)
	ctx := logging.With(context.Background(), cliLogger{logger})

	var (
		snapshot *services.Snapshot
		err      error
	)
	if opts.csvPath != "" {
		file, openErr := os.Open(opts.csvPath)
		if openErr != nil {
			logger.Fatalw("Error opening CSV file", "path", opts.csvPath, "error", openErr)
		}
		defer file.Close()
		snapshot, err = planner.CalculateCSV(ctx, cliSession, file)
	} else {
		form, formErr := buildForm(planner, opts)
		if formErr != nil {
			logger.Fatalw("Error building route form", "error", formErr)
		}
		snapshot, err = planner.Calculate(ctx, cliSession, *form)
	}
	if err != nil {
		logger.Fatalw("Route calculation failed", "error", err)
	}
	logger.Debugw("Route calculated", "segments", len(snapshot.Segments), "distance_m", snapshot.Totals.DistanceMeters)

	indices, err := parseIndices(opts.traveled)
	if err != nil {
		logger.Fatalw("Invalid --traveled value", "value", opts.traveled, "error", err)
	}
	for _, index := range indices {
		if _, err := planner.Toggle(cliSession, index, true); err != nil {
			logger.Fatalw("Cannot mark leg as traveled", "leg", index, "error", err)
		}
	}
	if opts.focus >= 0 {
		if _, err := planner.Focus(cliSession, opts.focus); err != nil {
			logger.Fatalw("Cannot focus leg", "leg", opts.focus, "error", err)
		}
	}

	if err := writeOutput(os.Stdout, planner, opts.format); err != nil {
		logger.Fatalw("Error writing output", "format", opts.format, "error", err)
	}
}

func handlePresets(args []string) {
	fs := flag.NewFlagSet("presets", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config file")
	verbose := fs.Bool("verbose", false, "Enable debug logging")
	fs.Parse(args)

	logger := newLogger(*verbose)
	defer func() { _ = logger.Sync() }()

	cfg := loadConfig(logger, *configPath)
	fmt.Printf("%-18s %-36s %s\n", "ID", "NAME", "COORDINATES")
	for _, p := range cfg.Presets {
		fmt.Printf("%-18s %-36s %v, %v\n", p.ID, p.Name, p.Lat, p.Lng)
	}
}

func newLogger(verbose bool) *zap.SugaredLogger {
	zapConfig := zap.NewDevelopmentConfig()
	if !verbose {
		zapConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zapConfig.OutputPaths = []string{"stderr"}

	logger, err := zapConfig.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	return logger.Sugar()
}

// cliLogger scopes the CLI's zap logger into contexts handed to the planner
type cliLogger struct {
	*zap.SugaredLogger
}

var _ logging.Logger = cliLogger{}

func (l cliLogger) Named(name string) logging.Logger {
	return cliLogger{l.SugaredLogger.Named(name)}
}

func (l cliLogger) With(field string, value interface{}) logging.Logger {
	return cliLogger{l.SugaredLogger.With(field, value)}
}

func loadConfig(logger *zap.SugaredLogger, path string) *config.Config {
	if err := godotenv.Load(); err != nil {
		logger.Debugw("No .env file loaded", "error", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		logger.Fatalw("Error loading configuration", "error", err)
	}
	logger.Debugw("Configuration loaded", "routing", cfg.Routing.BaseURL, "presets", len(cfg.Presets))
	return cfg
}

func newPlanner(cfg *config.Config) *services.PlannerService {
	client := osrm.NewClient(cfg.Routing.BaseURL, cfg.Routing.Profile, cfg.Routing.Timeout)
	return services.NewPlannerService(client, cache.NewCache(), cfg)
}

// buildForm assembles the route form from flags
func buildForm(planner *services.PlannerService, opts planOptions) (*waypoints.Form, error) {
	form := waypoints.NewForm()
	form.Origin.Name, form.Origin.Coordinates = splitNamed(opts.origin)
	form.Destination.Name, form.Destination.Coordinates = splitNamed(opts.destination)
	for _, value := range opts.stops {
		form.AddStop()
		stop := &form.Stops[len(form.Stops)-1]
		stop.Name, stop.Coordinates = splitNamed(value)
	}

	presets := map[string]string{}
	if opts.originPreset != "" {
		presets[waypoints.OriginFieldID] = opts.originPreset
	}
	if opts.destinationPreset != "" {
		presets[waypoints.DestinationFieldID] = opts.destinationPreset
	}
	if err := planner.ApplyPresets(form, presets); err != nil {
		return nil, err
	}
	return form, nil
}

// splitNamed splits "Name=lat, lng" into its name and coordinate text
func splitNamed(value string) (name, coordinates string) {
	if i := strings.Index(value, "="); i >= 0 {
		return strings.TrimSpace(value[:i]), strings.TrimSpace(value[i+1:])
	}
	return "", strings.TrimSpace(value)
}

func parseIndices(value string) ([]int, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	var indices []int
	for _, part := range strings.Split(value, ",") {
		index, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("leg index %q is not an integer", part)
		}
		indices = append(indices, index)
	}
	return indices, nil
}

func writeOutput(w io.Writer, planner *services.PlannerService, format string) error {
	switch format {
	case "text":
		snapshot, err := planner.Snapshot(cliSession)
		if err != nil {
			return err
		}
		printPlan(w, snapshot)
		return nil
	case "json":
		snapshot, err := planner.Snapshot(cliSession)
		if err != nil {
			return err
		}
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(snapshot)
	case "kml":
		plan, err := planner.ExportPlan(cliSession)
		if err != nil {
			return err
		}
		return export.WriteKML(w, plan)
	case "geojson":
		plan, err := planner.ExportPlan(cliSession)
		if err != nil {
			return err
		}
		data, err := export.GeoJSON(plan)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func printPlan(w io.Writer, snapshot *services.Snapshot) {
	fmt.Fprintf(w, "Total: %s km, %d min\n", snapshot.Totals.DistanceKm, snapshot.Totals.TimeMinutes)
	fmt.Fprintf(w, "Traveled: %d of %d legs, %s km, %d min\n\n",
		snapshot.Progress.Count, snapshot.Progress.Total,
		routing.FormatKm(snapshot.Progress.DistanceMeters), routing.RoundMinutes(snapshot.Progress.DurationMinutes))

	for i, segment := range snapshot.Segments {
		marker := " "
		if i < len(snapshot.View) {
			switch {
			case snapshot.View[i].Focused:
				marker = ">"
			case snapshot.View[i].Traveled:
				marker = "x"
			}
		}

		fmt.Fprintf(w, "[%s] Leg %d: %s → %s  %s km, %d min\n", marker, i+1,
			segment.OriginName, segment.DestName,
			routing.FormatKm(segment.DistanceMeters), routing.RoundMinutes(segment.DurationMinutes))
		for _, instruction := range segment.Instructions {
			fmt.Fprintf(w, "      - %s\n", instruction.Text)
		}
	}
}

func printUsage() {
	fmt.Println("route-planner - Multi-stop route planning from the terminal")
	fmt.Println("")
	fmt.Println("Usage:")
	fmt.Println("  route-planner <command> [options]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  plan      Calculate a route and print legs, progress and exports")
	fmt.Println("  presets   List configured preset locations")
	fmt.Println("  help      Show this help message")
	fmt.Println("")
	fmt.Println("Configuration is read from --config and overridden by ROUTEPLANNER_ environment")
	fmt.Println("variables (e.g. ROUTEPLANNER_ROUTING__BASE_URL). A local .env file fills in unset ones.")
}
