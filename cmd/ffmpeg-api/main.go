package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"ffmpeg-api/internal/cleanup"
	"ffmpeg-api/internal/database"
	"ffmpeg-api/internal/ffmpeg"
	"ffmpeg-api/internal/filesystem"
	"ffmpeg-api/internal/handlers"
	"ffmpeg-api/internal/jobs"
	"ffmpeg-api/internal/logging"
	"ffmpeg-api/internal/memory"
	"ffmpeg-api/internal/metrics"
	"ffmpeg-api/internal/middleware"
	"ffmpeg-api/internal/startup"
	"ffmpeg-api/internal/streaming"
)

const shutdownTimeout = 30 * time.Second

func main() {
	startTime := time.Now()

	// Load configuration
	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	startup.LogSection("MEMORY")
	memory.ConfigureLimit(config.MemoryLimit, config.MemoryRatio)

	volumes := config.Volumes()
	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(volumes))
	filesystem.SetObserver(metrics.NewFilesystemObserver())

	operations := make([]string, len(ffmpeg.Operations))
	for i, op := range ffmpeg.Operations {
		operations[i] = string(op)
	}
	volumeNames := make([]string, 0, len(volumes))
	for name := range volumes {
		volumeNames = append(volumeNames, name)
	}
	metrics.InitializeMetrics(operations, volumeNames)
	metrics.SetAppInfo(startup.Version, startup.Commit, runtime.Version())

	// Initialize database
	dbStart := time.Now()
	retention := database.Retention{
		Upload:       config.UploadTTL,
		CompletedJob: config.CompletedJobTTL,
		FailedJob:    config.FailedJobTTL,
	}
	db, err := database.New(context.Background(), config.DatabasePath, retention)
	if err != nil {
		startup.LogFatal("Failed to initialize database: %v", err)
	}
	defer db.Close()
	startup.LogDatabaseInit(time.Since(dbStart))

	// Initialize ffmpeg runner
	startup.LogFFmpegInit(config.FFmpegPath, config.FFprobePath)
	runner := ffmpeg.NewRunner(ffmpeg.Config{
		FFmpegPath:    config.FFmpegPath,
		FFprobePath:   config.FFprobePath,
		Timeout:       config.FFmpegTimeout,
		MaxConcurrent: config.MaxConcurrentFFmpeg,
	})

	monitor := memory.NewMonitor(memory.DefaultMonitorConfig())

	// Initialize job queue
	startup.LogQueueInit(config.JobWorkers, true)
	queue := jobs.NewQueue(db, runner, jobs.Config{
		Workers:    config.JobWorkers,
		ResultsDir: config.ResultsDir,
		TempDir:    config.TempDir,
		Gate:       monitor,
	})

	startup.LogCleanupInit(config.CleanupInterval, config.CleanupInitialDelay)
	sweeper := cleanup.NewSweeper(cleanup.SweeperConfig{
		Targets: []cleanup.Target{
			{
				Name: "uploads",
				Dir:  config.UploadDir,
				TTL:  config.UploadTTL,
				Skip: func(ctx context.Context, path string) bool {
					tracked, err := db.HasUploadFile(ctx, path)
					if err != nil {
						logging.Warn("Keeping %s: upload lookup failed: %v", path, err)
						return true
					}
					return tracked
				},
			},
			{Name: "results", Dir: config.ResultsDir, TTL: config.ResultTTL, Skip: cleanup.InUse},
			{Name: "temp", Dir: config.TempDir, TTL: config.ResultTTL, Skip: cleanup.InUse},
		},
		Hooks:        append(queue.ExpiryHooks(), cleanup.Hook{Name: "database", Run: db.Checkpoint}),
		Interval:     config.CleanupInterval,
		InitialDelay: config.CleanupInitialDelay,
	})

	collector := metrics.NewCollector(db, config.DatabasePath, volumes, time.Minute)
	collector.Start()
	defer collector.Stop()

	// Initialize handlers
	h := handlers.New(db, queue, runner, handlers.Config{
		DataDir:       config.DataDir,
		UploadDir:     config.UploadDir,
		TempDir:       config.TempDir,
		MaxUploadSize: config.MaxUploadSize,
		Retention:     retention,
		Stream:        streaming.DefaultConfig(),
	})

	// Setup router
	router := setupRouter(h)

	// Log routes dynamically
	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	// Apply logging middleware
	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	loggedHandler := middleware.Logger(loggingConfig)(router)

	// Apply compression middleware
	compressionConfig := middleware.DefaultCompressionConfig()
	handler := middleware.Compression(compressionConfig)(loggedHandler)

	// Create server. Uploads and long encodes need no read or write
	// deadline; streaming.TimeoutWriter guards stalled downloads.
	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	var metricsSrv *http.Server
	if config.MetricsEnabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", h.MetricsHandler())
		metricsSrv = &http.Server{
			Addr:              ":" + config.MetricsPort,
			Handler:           metricsMux,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		startup.LogServerStarted(startup.ServerConfig{
			Port:            config.Port,
			MetricsPort:     config.MetricsPort,
			MetricsEnabled:  config.MetricsEnabled,
			StartupDuration: time.Since(startTime),
		})
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if metricsSrv != nil {
		g.Go(func() error {
			if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error { return queue.Run(gctx) })
	g.Go(func() error { return sweeper.Run(gctx) })
	g.Go(func() error { return monitor.Run(gctx) })

	g.Go(func() error {
		<-gctx.Done()
		reason := "component failure"
		if ctx.Err() != nil {
			reason = "SIGINT/SIGTERM"
		}
		shutdown(reason, runner, collector, srv, metricsSrv)
		return nil
	})

	if err := g.Wait(); err != nil {
		startup.LogFatal("Server error: %v", err)
	}
	startup.LogShutdownComplete()
}

func setupRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))

	// Health check and version routes
	r.HandleFunc("/", h.Root).Methods("GET")
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	// Routes stay on the root router: a method mismatch inside a
	// subrouter answers 404 instead of 405.

	// Synchronous operations
	r.HandleFunc("/video/detalles", h.Metadata).Methods("POST")
	r.HandleFunc("/video/extraer-audio", h.ExtractAudio).Methods("POST")
	r.HandleFunc("/video/comprimir", h.CompressVideo).Methods("POST")
	r.HandleFunc("/video/convertir-mp4", h.ConvertMP4).Methods("POST")
	r.HandleFunc("/audio/cortar", h.CutAudio).Methods("POST")
	r.HandleFunc("/audio/unir", h.ConcatAudio).Methods("POST")
	r.HandleFunc("/imagen/captura", h.CaptureFrame).Methods("POST")
	r.HandleFunc("/reset", h.Reset).Methods("DELETE")

	// Stored uploads
	r.HandleFunc("/upload", h.CreateUpload).Methods("POST")
	r.HandleFunc("/upload/{id}", h.GetUpload).Methods("GET")
	r.HandleFunc("/upload/{id}", h.DeleteUpload).Methods("DELETE")
	r.HandleFunc("/uploads", h.ListUploads).Methods("GET")

	// Job queue
	r.HandleFunc("/jobs/create", h.CreateJob).Methods("POST")
	r.HandleFunc("/jobs/status/{id}", h.JobStatus).Methods("GET")
	r.HandleFunc("/jobs/queue", h.JobQueue).Methods("GET")
	r.HandleFunc("/jobs/download/{id}", h.DownloadResult).Methods("GET")
	r.HandleFunc("/jobs/stats", h.JobStats).Methods("GET")
	r.HandleFunc("/jobs/{id}", h.CancelJob).Methods("DELETE")

	return r
}

func shutdown(reason string, runner *ffmpeg.Runner, collector *metrics.Collector, servers ...*http.Server) {
	startup.LogShutdownInitiated(reason)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP servers")
	for _, srv := range servers {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(ctx); err != nil {
			logging.Warn("Server shutdown error: %v", err)
		}
	}
	startup.LogShutdownStepComplete("HTTP servers stopped")

	startup.LogShutdownStep("Stopping ffmpeg processes")
	runner.Shutdown()
	startup.LogShutdownStepComplete("ffmpeg processes stopped")

	startup.LogShutdownStep("Stopping metrics collector")
	collector.Stop()
	startup.LogShutdownStepComplete("Metrics collector stopped")
}
