// Package main provides the entry point for the FFmpeg API server.
//
// The server is a thin REST layer over the ffmpeg and ffprobe binaries. It
// offers synchronous endpoints that upload, process and stream a result in
// one request, and an asynchronous path where files are stored once and
// queued jobs run against them.
//
// # Application Lifecycle
//
//  1. Configuration Loading: Reads environment variables and the optional
//     CONFIG_FILE, then creates the data directories
//  2. Memory Configuration: Sets GOMEMLIMIT from MEMORY_LIMIT and MEMORY_RATIO
//  3. Database Initialization: Opens the SQLite job and upload store
//  4. Component Initialization:
//     - FFmpeg Runner: Resolves the binaries and the concurrency limit
//     - Job Queue: Re-queues interrupted jobs and starts JOB_WORKERS workers
//     - Cleanup Sweeper: Removes expired files and records
//     - Memory Monitor: Holds job workers back under memory pressure
//     - Metrics Collector: Refreshes job, disk and memory gauges
//  5. HTTP Server Setup: Configures routes and middleware
//  6. Graceful Shutdown: Handles SIGINT/SIGTERM and stops all components
//
// # HTTP Server
//
// The application runs two HTTP servers:
//
//  1. Main Server (default port 8000): operations, uploads, jobs and probes
//  2. Metrics Server (default port 9090, optional): Prometheus /metrics
//
// # Environment Variables
//
//   - DATA_DIR: Root of uploads/, results/ and temp/ (default: /disk)
//   - DATABASE_DIR: Directory for the SQLite database (default: $DATA_DIR/db)
//   - PORT / METRICS_PORT / METRICS_ENABLED
//   - FFMPEG_PATH / FFPROBE_PATH / FFMPEG_TIMEOUT / MAX_CONCURRENT_FFMPEG
//   - MAX_UPLOAD_SIZE: Request body limit in bytes (0 = unlimited)
//   - JOB_WORKERS: Asynchronous workers
//   - RESULT_TTL / UPLOAD_TTL / COMPLETED_JOB_TTL / FAILED_JOB_TTL
//   - CLEANUP_INTERVAL / CLEANUP_INITIAL_DELAY
//   - MEMORY_LIMIT / MEMORY_RATIO / GOMEMLIMIT
//   - LOG_LEVEL / LOG_FORMAT / LOG_HEALTH_CHECKS
//
// # Graceful Shutdown
//
//  1. Stop accepting new HTTP requests (30s timeout)
//  2. Kill running ffmpeg children
//  3. Stop job workers; a job that was running stays in processing and is
//     re-queued on the next start
//  4. Stop the sweeper, memory monitor and metrics collector
//  5. Close the database
//
// # Related Packages
//
//   - [ffmpeg-api/internal/ffmpeg]: Argument templates, process runner, ffprobe
//   - [ffmpeg-api/internal/handlers]: HTTP request handlers
//   - [ffmpeg-api/internal/jobs]: Priority job queue and workers
//   - [ffmpeg-api/internal/database]: SQLite upload and job store
//   - [ffmpeg-api/internal/cleanup]: Request scopes and the retention sweeper
//   - [ffmpeg-api/internal/startup]: Configuration and initialization
package main
