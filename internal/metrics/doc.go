// Package metrics provides Prometheus instrumentation for ffmpeg-api.
//
// Metrics are registered on the default registry with promauto and are
// prefixed "ffmpeg_api_". They are served on the separate metrics port by
// promhttp.Handler().
//
// # Metric Categories
//
// ## HTTP Metrics
//
//   - HTTPRequestsTotal: Counter by method, path and status
//   - HTTPRequestDuration: Histogram by method and path
//   - HTTPRequestsInFlight: Gauge of requests being served
//
// ## FFmpeg Metrics
//
//   - FFmpegInvocationsTotal: Counter by operation and status (success/error/timeout/canceled)
//   - FFmpegDuration: Histogram of child process wall-clock time by operation
//   - FFmpegProcessesInProgress: Gauge of running child processes
//
// ## Upload and Job Metrics
//
//   - UploadsTotal, UploadBytesTotal: Received uploads
//   - UploadsStored: Gauge of upload records
//   - JobsSubmittedTotal, JobsFinishedTotal, JobDuration: Queue throughput
//   - JobsByStatus: Gauge of stored jobs per status
//   - JobWorkersBusy: Gauge of workers currently processing
//
// ## Cleanup Metrics
//
//   - CleanupRunsTotal, CleanupLastRunTimestamp, CleanupLastRunDuration
//   - CleanupFilesDeleted, CleanupBytesFreed, CleanupErrors: By target
//   - ScopedFilesReleased: Per-request temporary files removed at scope exit
//
// ## Storage Metrics
//
//   - DiskUsageBytes, DiskUsageRatio: Volume usage from gopsutil
//   - DirectoryBytes: Bytes held in each data directory
//   - DBSizeBytes: SQLite main, WAL and SHM file sizes
//   - Filesystem*: Operation latency and ESTALE retry counters
//
// # Collector
//
// [Collector] refreshes the gauges that must be computed periodically:
//
//	collector := metrics.NewCollector(db, dbPath, volumes, time.Minute)
//	collector.Start()
//	defer collector.Stop()
//
// # Prometheus Queries
//
// FFmpeg failure rate by operation:
//
//	sum(rate(ffmpeg_api_ffmpeg_invocations_total{status!="success"}[5m])) by (operation)
//	  / sum(rate(ffmpeg_api_ffmpeg_invocations_total[5m])) by (operation)
//
// P95 compression time:
//
//	histogram_quantile(0.95, sum(rate(ffmpeg_api_ffmpeg_duration_seconds_bucket{operation="compress_video"}[15m])) by (le))
//
// Queue backlog:
//
//	ffmpeg_api_jobs{status="pending"}
package metrics
