// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// # Configuration
//
// Configuration is read by [LoadConfig] from environment variables. When
// CONFIG_FILE names a YAML file, its keys (the variable names in lower case)
// fill in anything the environment leaves unset:
//
//	data_dir: /mnt/media
//	ffmpeg_timeout: 15m
//	max_concurrent_ffmpeg: 2
//
// Supported settings:
//
//   - DATA_DIR: root of uploads/, results/ and temp/ (default: /disk)
//   - DATABASE_DIR: SQLite directory (default: $DATA_DIR/db)
//   - PORT: HTTP server port (default: 8000)
//   - METRICS_PORT, METRICS_ENABLED: Prometheus server (default: 9090, true)
//   - FFMPEG_PATH, FFPROBE_PATH: binaries (default: ffmpeg, ffprobe)
//   - FFMPEG_TIMEOUT: per-invocation limit as Go duration (default: none)
//   - MAX_CONCURRENT_FFMPEG: simultaneous child processes (default: unlimited)
//   - MAX_UPLOAD_SIZE: request body limit in bytes (default: unlimited)
//   - JOB_WORKERS: async job workers (default: one per four CPUs, at most 4)
//   - RESULT_TTL, UPLOAD_TTL: file retention (default: 3h each)
//   - COMPLETED_JOB_TTL, FAILED_JOB_TTL: job record retention (default: 8h, 168h)
//   - CLEANUP_INTERVAL, CLEANUP_INITIAL_DELAY: sweeper schedule (default: 1h, 5m)
//   - MEMORY_LIMIT, MEMORY_RATIO: container memory and Go heap share
//   - LOG_LEVEL, LOG_FORMAT, LOG_HEALTH_CHECKS: logging
//
// Invalid values are logged and replaced by their default.
//
// # Directory Setup
//
// All data directories are created if missing and must be writable; startup
// fails otherwise. A missing ffmpeg or ffprobe binary is only a warning.
//
// # Build Information
//
// Version, Commit and BuildTime are injected at build time:
//
//	go build -ldflags "-X ffmpeg-api/internal/startup.Version=1.2.0"
package startup
