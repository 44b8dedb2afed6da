package startup

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"strings"
	"time"

	"ffmpeg-api/internal/logging"

	"github.com/gorilla/mux"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

const rule = "------------------------------------------------------------"

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// LogSection prints a section header in the startup log.
func LogSection(title string) {
	logging.Info("")
	logging.Info(rule)
	logging.Info("%s", title)
	logging.Info(rule)
}

// LogDatabaseInit logs database initialization
func LogDatabaseInit(duration time.Duration) {
	LogSection("DATABASE")
	logging.Info("  [OK] SQLite store ready in %v", duration.Round(time.Millisecond))
}

// LogFFmpegInit checks that the ffmpeg and ffprobe binaries run. A missing
// binary is reported but does not stop startup; every operation will fail
// with a processing error until it is installed.
func LogFFmpegInit(ffmpegPath, ffprobePath string) bool {
	LogSection("FFMPEG")

	ok := true
	for _, bin := range []string{ffmpegPath, ffprobePath} {
		version, err := CheckBinary(bin)
		if err != nil {
			logging.Warn("  %s check failed: %v", bin, err)
			ok = false
			continue
		}
		logging.Info("  [OK] %s", version)
	}
	if !ok {
		logging.Warn("  Media operations will fail until the binaries are available")
	}
	return ok
}

// LogQueueInit logs job queue startup
func LogQueueInit(workers int, requeued bool) {
	LogSection("JOB QUEUE")
	logging.Info("  Workers: %d", workers)
	if requeued {
		logging.Info("  Jobs interrupted by the last shutdown are re-queued")
	}
}

// LogCleanupInit logs the retention schedule
func LogCleanupInit(interval, initialDelay time.Duration) {
	LogSection("CLEANUP")
	logging.Info("  First sweep in %v, then every %v", initialDelay, interval)
}

// CheckBinary runs "bin -version" and returns the first line of its output.
func CheckBinary(bin string) (string, error) {
	path, err := exec.LookPath(bin)
	if err != nil {
		return "", fmt.Errorf("%s not found in PATH", bin)
	}
	logging.Debug("  %s path: %s", bin, path)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("failed to get %s version: %w", bin, err)
	}

	first, _, _ := strings.Cut(string(output), "\n")
	return strings.TrimSpace(first), nil
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// GetRoutes extracts all registered routes from a mux.Router. Routes
// without a method matcher, such as subrouter prefixes, are reported with
// method "*".
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}
		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs the route table grouped by first path segment. The
// table is only printed at debug level.
func LogHTTPRoutes(router *mux.Router, logHealthChecks bool) {
	LogSection("HTTP SERVER SETUP")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		groups := make(map[string][]RouteInfo)
		count := 0
		for _, route := range routes {
			if route.Method == "*" {
				continue
			}
			g := getRouteGroup(route.Path)
			if g == "" {
				g = "root"
			}
			groups[g] = append(groups[g], route)
			count++
		}

		names := make([]string, 0, len(groups))
		for g := range groups {
			names = append(names, g)
		}
		sort.Strings(names)

		logging.Debug("  Registered routes (%d total):", count)
		for _, g := range names {
			logging.Debug("  [%s]", g)
			for _, route := range groups[g] {
				logging.Debug("    %-6s %s", route.Method, route.Path)
			}
		}
	}

	logging.Info("  W3C access logging enabled")
	if logHealthChecks {
		logging.Info("    Health check logging: ON")
	} else {
		logging.Info("    Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

func getRouteGroup(path string) string {
	first, _, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	LogSection("SERVER STARTED")
	logging.Info("  Startup time:    %v", config.StartupDuration.Round(time.Millisecond))
	logging.Info("  API:             http://0.0.0.0:%s", config.Port)
	if config.MetricsEnabled {
		logging.Info("  Metrics:         http://0.0.0.0:%s/metrics", config.MetricsPort)
	} else {
		logging.Info("  Metrics:         DISABLED")
	}
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info(rule)
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(reason string) {
	LogSection(fmt.Sprintf("SHUTDOWN INITIATED (%s)", reason))
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

const banner = `
    ________                               ___    ____  ____
   / ____/ /_____ ___  ____  ___  ____ _  /   |  / __ \/  _/
  / /_  / /_/ __ '__ \/ __ \/ _ \/ __ '/ / /| | / /_/ // /
 / __/ / __/ / / / / / /_/ /  __/ /_/ / / ___ |/ ____// /
/_/   /_/ /_/ /_/ /_/ .___/\___/\__, / /_/  |_/_/   /___/
                   /_/         /____/`

func printBanner() {
	fmt.Println(rule + banner + "\n" + rule)
	logging.Info("  Version:    %s (%s, built %s)", Version, Commit, BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
}

func logSystemInfo() {
	LogSection("SYSTEM INFORMATION")
	logging.Info("  Go %s on %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs: %d host, GOMAXPROCS %d", runtime.NumCPU(), runtime.GOMAXPROCS(0))
	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if hostname, err := os.Hostname(); err == nil {
		logging.Debug("  Hostname: %s", hostname)
	}
}
