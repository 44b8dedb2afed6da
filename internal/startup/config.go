package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ffmpeg-api/internal/logging"
	"ffmpeg-api/internal/workers"
)

// Config holds all application configuration
type Config struct {
	DataDir     string
	DatabaseDir string
	Port        string
	MetricsPort string

	MetricsEnabled  bool
	LogHealthChecks bool

	FFmpegPath          string
	FFprobePath         string
	FFmpegTimeout       time.Duration
	MaxConcurrentFFmpeg int
	MaxUploadSize       int64
	JobWorkers          int

	ResultTTL       time.Duration
	UploadTTL       time.Duration
	CompletedJobTTL time.Duration
	FailedJobTTL    time.Duration

	CleanupInterval     time.Duration
	CleanupInitialDelay time.Duration

	// MemoryLimit is the container memory limit in bytes (0 = unknown).
	MemoryLimit int64
	MemoryRatio float64

	// Derived paths
	UploadDir    string
	ResultsDir   string
	TempDir      string
	DatabasePath string
}

// Volumes maps volume labels to their directories, for metrics and
// filesystem retry labels.
func (c *Config) Volumes() map[string]string {
	return map[string]string{
		"uploads":  c.UploadDir,
		"results":  c.ResultsDir,
		"temp":     c.TempDir,
		"database": c.DatabaseDir,
	}
}

// source resolves a setting from the environment, then the optional YAML
// file, then the default.
type source struct {
	file map[string]string
}

// loadSource reads the YAML file named by CONFIG_FILE, if any. Keys are the
// environment variable names in lower case, e.g. "ffmpeg_timeout: 10m".
func loadSource() (*source, error) {
	s := &source{file: map[string]string{}}

	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	for k, v := range raw {
		s.file[strings.ToLower(k)] = v
	}
	logging.Info("  Config file:         %s (%d settings)", path, len(raw))
	return s, nil
}

func (s *source) get(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	if value, ok := s.file[strings.ToLower(key)]; ok && value != "" {
		return value
	}
	return defaultValue
}

func (s *source) bool(key string, defaultValue bool) bool {
	value := s.get(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func (s *source) int(key string, defaultValue int) int {
	value := s.get(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		logging.Warn("Invalid value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func (s *source) int64(key string, defaultValue int64) int64 {
	value := s.get(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil || parsed < 0 {
		logging.Warn("Invalid value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func (s *source) float(key string, defaultValue float64) float64 {
	value := s.get(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		logging.Warn("Invalid value for %s: %q, using default: %.2f", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func (s *source) duration(key string, defaultValue time.Duration) time.Duration {
	value := s.get(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed < 0 {
		logging.Warn("Invalid %s %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

// LoadConfig loads configuration from environment variables and the
// optional CONFIG_FILE, then prepares the data directories.
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	src, err := loadSource()
	if err != nil {
		return nil, err
	}

	cfg, err := resolveConfig(src)
	if err != nil {
		return nil, err
	}
	logConfig(cfg)

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	if err := prepareDirectories(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveConfig applies defaults and derives paths without touching disk.
func resolveConfig(src *source) (*Config, error) {
	dataDir, err := filepath.Abs(src.get("DATA_DIR", "/disk"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	databaseDir, err := filepath.Abs(src.get("DATABASE_DIR", filepath.Join(dataDir, "db")))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database directory path: %w", err)
	}

	cfg := &Config{
		DataDir:             dataDir,
		DatabaseDir:         databaseDir,
		Port:                src.get("PORT", "8000"),
		MetricsPort:         src.get("METRICS_PORT", "9090"),
		MetricsEnabled:      src.bool("METRICS_ENABLED", true),
		LogHealthChecks:     src.bool("LOG_HEALTH_CHECKS", true),
		FFmpegPath:          src.get("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:         src.get("FFPROBE_PATH", "ffprobe"),
		FFmpegTimeout:       src.duration("FFMPEG_TIMEOUT", 0),
		MaxConcurrentFFmpeg: src.int("MAX_CONCURRENT_FFMPEG", 0),
		MaxUploadSize:       src.int64("MAX_UPLOAD_SIZE", 0),
		JobWorkers:          src.int(workers.OverrideEnv, 0),
		ResultTTL:           src.duration("RESULT_TTL", 3*time.Hour),
		UploadTTL:           src.duration("UPLOAD_TTL", 3*time.Hour),
		CompletedJobTTL:     src.duration("COMPLETED_JOB_TTL", 8*time.Hour),
		FailedJobTTL:        src.duration("FAILED_JOB_TTL", 168*time.Hour),
		CleanupInterval:     src.duration("CLEANUP_INTERVAL", time.Hour),
		CleanupInitialDelay: src.duration("CLEANUP_INITIAL_DELAY", 5*time.Minute),
		MemoryLimit:         src.int64("MEMORY_LIMIT", 0),
		MemoryRatio:         src.float("MEMORY_RATIO", 0),
		UploadDir:           filepath.Join(dataDir, "uploads"),
		ResultsDir:          filepath.Join(dataDir, "results"),
		TempDir:             filepath.Join(dataDir, "temp"),
		DatabasePath:        filepath.Join(databaseDir, "ffmpeg-api.db"),
	}
	if cfg.JobWorkers == 0 {
		cfg.JobWorkers = workers.ForTranscode(4)
	}
	if cfg.CleanupInterval == 0 {
		logging.Warn("CLEANUP_INTERVAL must be positive, using default: 1h")
		cfg.CleanupInterval = time.Hour
	}
	return cfg, nil
}

func logConfig(cfg *Config) {
	logging.Info("  DATA_DIR:              %s", cfg.DataDir)
	logging.Info("  DATABASE_DIR:          %s", cfg.DatabaseDir)
	logging.Info("  PORT:                  %s", cfg.Port)
	logging.Info("  METRICS_PORT:          %s", cfg.MetricsPort)
	logging.Info("  METRICS_ENABLED:       %v", cfg.MetricsEnabled)
	logging.Info("  FFMPEG_PATH:           %s", cfg.FFmpegPath)
	logging.Info("  FFPROBE_PATH:          %s", cfg.FFprobePath)
	logging.Info("  FFMPEG_TIMEOUT:        %s", durationOrNone(cfg.FFmpegTimeout))
	logging.Info("  MAX_CONCURRENT_FFMPEG: %s", limitOrUnlimited(int64(cfg.MaxConcurrentFFmpeg)))
	logging.Info("  MAX_UPLOAD_SIZE:       %s", limitOrUnlimited(cfg.MaxUploadSize))
	logging.Info("  JOB_WORKERS:           %d", cfg.JobWorkers)
	logging.Info("  RESULT_TTL:            %v", cfg.ResultTTL)
	logging.Info("  UPLOAD_TTL:            %v", cfg.UploadTTL)
	logging.Info("  COMPLETED_JOB_TTL:     %v", cfg.CompletedJobTTL)
	logging.Info("  FAILED_JOB_TTL:        %v", cfg.FailedJobTTL)
	logging.Info("  CLEANUP_INTERVAL:      %v", cfg.CleanupInterval)
	logging.Info("  CLEANUP_INITIAL_DELAY: %v", cfg.CleanupInitialDelay)
	logging.Info("  LOG_HEALTH_CHECKS:     %v", cfg.LogHealthChecks)
	logging.Info("  LOG_LEVEL:             %s", logging.GetLevel())
}

func durationOrNone(d time.Duration) string {
	if d <= 0 {
		return "none"
	}
	return d.String()
}

func limitOrUnlimited(n int64) string {
	if n <= 0 {
		return "unlimited"
	}
	return strconv.FormatInt(n, 10)
}

func prepareDirectories(cfg *Config) error {
	required := []struct {
		path string
		name string
	}{
		{cfg.DatabaseDir, "database"},
		{cfg.UploadDir, "uploads"},
		{cfg.ResultsDir, "results"},
		{cfg.TempDir, "temp"},
	}
	for _, d := range required {
		if err := ensureDirectory(d.path, d.name); err != nil {
			return fmt.Errorf("%s directory error: %w", d.name, err)
		}
		logging.Debug("  Testing %s directory write access...", d.name)
		if err := testWriteAccess(d.path); err != nil {
			return fmt.Errorf("%s directory is not writable: %w", d.name, err)
		}
		logging.Info("  [OK] %-9s %s", d.name, d.path)
	}
	return nil
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}
