package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ffmpeg_api_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ffmpeg_api_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ffmpeg_api_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	HTTPResponseBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ffmpeg_api_http_response_bytes_total",
			Help: "Bytes written in HTTP response bodies, by route",
		},
		[]string{"method", "path"},
	)
)

// FFmpeg process metrics
var (
	FFmpegInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ffmpeg_api_ffmpeg_invocations_total",
			Help: "Total number of ffmpeg/ffprobe invocations by operation and outcome",
		},
		[]string{"operation", "status"}, // status: success, error, timeout, canceled
	)

	FFmpegDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ffmpeg_api_ffmpeg_duration_seconds",
			Help:    "Wall-clock duration of ffmpeg/ffprobe invocations",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"operation"},
	)

	FFmpegProcessesInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ffmpeg_api_ffmpeg_processes_in_progress",
			Help: "Number of ffmpeg/ffprobe child processes currently running",
		},
	)
)

// Upload metrics
var (
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ffmpeg_api_uploads_total",
			Help: "Total number of uploaded files by outcome",
		},
		[]string{"status"}, // success, error, too_large
	)

	UploadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ffmpeg_api_upload_bytes_total",
			Help: "Total bytes received in uploaded files",
		},
	)
)

// Job queue metrics
var (
	JobsSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ffmpeg_api_jobs_submitted_total",
			Help: "Total number of jobs submitted by type",
		},
		[]string{"job_type"},
	)

	JobsFinishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ffmpeg_api_jobs_finished_total",
			Help: "Total number of jobs that reached a terminal state",
		},
		[]string{"job_type", "status"}, // completed, failed, canceled
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ffmpeg_api_job_duration_seconds",
			Help:    "Job processing duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"job_type"},
	)

	JobsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ffmpeg_api_jobs",
			Help: "Number of jobs currently stored by status",
		},
		[]string{"status"},
	)

	JobWorkersBusy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ffmpeg_api_job_workers_busy",
			Help: "Number of job workers currently processing a job",
		},
	)

	UploadsStored = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ffmpeg_api_uploads_stored",
			Help: "Number of upload records currently stored",
		},
	)
)

// Cleanup metrics
var (
	CleanupRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ffmpeg_api_cleanup_runs_total",
			Help: "Total number of cleanup sweeps",
		},
	)

	CleanupFilesDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ffmpeg_api_cleanup_files_deleted_total",
			Help: "Total number of expired files deleted by target",
		},
		[]string{"target"},
	)

	CleanupBytesFreed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ffmpeg_api_cleanup_bytes_freed_total",
			Help: "Total bytes freed by cleanup sweeps by target",
		},
		[]string{"target"},
	)

	CleanupErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ffmpeg_api_cleanup_errors_total",
			Help: "Total number of errors during cleanup sweeps by target",
		},
		[]string{"target"},
	)

	CleanupLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ffmpeg_api_cleanup_last_run_timestamp",
			Help: "Unix timestamp of the last cleanup sweep",
		},
	)

	CleanupLastRunDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ffmpeg_api_cleanup_last_run_duration_seconds",
			Help: "Duration of the last cleanup sweep in seconds",
		},
	)

	ScopedFilesReleased = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ffmpeg_api_scoped_files_released_total",
			Help: "Total number of per-request temporary files removed at scope exit",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ffmpeg_api_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ffmpeg_api_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ffmpeg_api_db_connections_open",
			Help: "Number of open database connections",
		},
	)

	DBSizeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ffmpeg_api_db_size_bytes",
			Help: "Size of SQLite database files in bytes",
		},
		[]string{"file"}, // "main", "wal", "shm"
	)
)

// Storage metrics
var (
	DiskUsageBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ffmpeg_api_disk_usage_bytes",
			Help: "Disk usage of the volume backing each data directory",
		},
		[]string{"volume", "kind"}, // kind: total, used, free
	)

	DiskUsageRatio = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ffmpeg_api_disk_usage_ratio",
			Help: "Used fraction (0.0-1.0) of the volume backing each data directory",
		},
		[]string{"volume"},
	)

	DirectoryBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ffmpeg_api_directory_bytes",
			Help: "Total size of the files in each data directory",
		},
		[]string{"volume"},
	)

	SystemMemoryUsedRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ffmpeg_api_system_memory_used_ratio",
			Help: "Used fraction (0.0-1.0) of host memory",
		},
	)

	GoMemAllocBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ffmpeg_api_go_memalloc_bytes",
			Help: "Current heap allocation in bytes",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ffmpeg_api_memory_paused",
			Help: "1 while job workers are paused by memory pressure",
		},
	)

	MemoryPausesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ffmpeg_api_memory_pauses_total",
			Help: "Number of times memory pressure paused job workers",
		},
	)
)

// Filesystem metrics
var (
	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ffmpeg_api_filesystem_operation_duration_seconds",
			Help:    "Duration of filesystem operations by volume",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"volume", "operation"},
	)

	FilesystemOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ffmpeg_api_filesystem_operation_errors_total",
			Help: "Total number of failed filesystem operations by volume",
		},
		[]string{"volume", "operation"},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ffmpeg_api_filesystem_retry_attempts_total",
			Help: "Total number of filesystem retry attempts",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ffmpeg_api_filesystem_retry_success_total",
			Help: "Total number of filesystem operations that succeeded after retrying",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ffmpeg_api_filesystem_retry_failures_total",
			Help: "Total number of filesystem operations that failed after all retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ffmpeg_api_filesystem_stale_errors_total",
			Help: "Total number of stale file handle (ESTALE) errors",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ffmpeg_api_filesystem_retry_duration_seconds",
			Help:    "Total time spent in filesystem operations including retries",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation", "volume"},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ffmpeg_api_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
