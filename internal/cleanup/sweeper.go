package cleanup

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"ffmpeg-api/internal/filesystem"
	"ffmpeg-api/internal/logging"
	"ffmpeg-api/internal/metrics"
)

// Target is a directory whose regular files expire after TTL, measured from
// their modification time.
type Target struct {
	Name string
	Dir  string
	TTL  time.Duration
	// Skip, when set, keeps an expired file that is still in use.
	Skip func(ctx context.Context, path string) bool
}

// Hook runs after the file targets on every sweep, typically to expire
// database records. It returns the number of records it removed.
type Hook struct {
	Name string
	Run  func(ctx context.Context, now time.Time) (int, error)
}

// Report summarises one sweep.
type Report struct {
	FilesDeleted   int       `json:"files_deleted"`
	BytesFreed     int64     `json:"bytes_freed"`
	RecordsDeleted int       `json:"records_deleted"`
	Errors         int       `json:"errors"`
	StartedAt      time.Time `json:"started_at"`
}

// SpaceFreedMB returns BytesFreed in megabytes rounded to two decimals.
func (r Report) SpaceFreedMB() float64 {
	return RoundMB(r.BytesFreed)
}

// RoundMB converts bytes to megabytes rounded to two decimals.
func RoundMB(b int64) float64 {
	return float64(int64(float64(b)/(1024*1024)*100+0.5)) / 100
}

// SweeperConfig configures a Sweeper.
type SweeperConfig struct {
	Targets      []Target
	Hooks        []Hook
	Interval     time.Duration
	InitialDelay time.Duration
}

// Sweeper periodically deletes expired files and records.
type Sweeper struct {
	targets      []Target
	hooks        []Hook
	interval     time.Duration
	initialDelay time.Duration
	retry        filesystem.RetryConfig
	now          func() time.Time
}

// NewSweeper creates a sweeper. A non-positive interval defaults to one hour.
func NewSweeper(cfg SweeperConfig) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	return &Sweeper{
		targets:      cfg.Targets,
		hooks:        cfg.Hooks,
		interval:     cfg.Interval,
		initialDelay: cfg.InitialDelay,
		retry:        filesystem.DefaultRetryConfig(),
		now:          time.Now,
	}
}

// Run sweeps after the initial delay and then on every interval until ctx
// is canceled.
func (s *Sweeper) Run(ctx context.Context) error {
	logging.Info("Cleanup sweeper started (interval %v, first run in %v)", s.interval, s.initialDelay)

	if s.initialDelay > 0 {
		timer := time.NewTimer(s.initialDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}

	s.Sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info("Cleanup sweeper stopped")
			return nil
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs every target and hook once.
func (s *Sweeper) Sweep(ctx context.Context) Report {
	start := s.now()
	report := Report{StartedAt: start}

	for _, t := range s.targets {
		if ctx.Err() != nil {
			break
		}
		s.sweepTarget(ctx, t, start, &report)
	}

	for _, h := range s.hooks {
		if ctx.Err() != nil {
			break
		}
		n, err := h.Run(ctx, start)
		if err != nil {
			report.Errors++
			metrics.CleanupErrors.WithLabelValues(h.Name).Inc()
			logging.Error("Cleanup hook %s failed: %v", h.Name, err)
			continue
		}
		report.RecordsDeleted += n
		metrics.CleanupFilesDeleted.WithLabelValues(h.Name).Add(float64(n))
	}

	duration := time.Since(start)
	metrics.CleanupRunsTotal.Inc()
	metrics.CleanupLastRunTimestamp.Set(float64(start.Unix()))
	metrics.CleanupLastRunDuration.Set(duration.Seconds())

	logging.Info("Cleanup complete: %d file(s) deleted, %.2f MB freed, %d record(s) expired, %d error(s) in %v",
		report.FilesDeleted, report.SpaceFreedMB(), report.RecordsDeleted, report.Errors, duration)
	return report
}

func (s *Sweeper) sweepTarget(ctx context.Context, t Target, now time.Time, report *Report) {
	entries, err := os.ReadDir(t.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logging.Warn("Cleanup directory %s does not exist", t.Dir)
			return
		}
		report.Errors++
		metrics.CleanupErrors.WithLabelValues(t.Name).Inc()
		logging.Error("Failed to list %s: %v", t.Dir, err)
		return
	}

	cutoff := now.Add(-t.TTL)
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		path := filepath.Join(t.Dir, e.Name())

		info, err := e.Info()
		if err != nil {
			// Removed concurrently.
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if t.Skip != nil && t.Skip(ctx, path) {
			logging.Debug("Keeping %s: still referenced", e.Name())
			continue
		}

		if err := filesystem.RemoveWithRetry(path, s.retry); err != nil {
			report.Errors++
			metrics.CleanupErrors.WithLabelValues(t.Name).Inc()
			logging.Error("Failed to delete %s: %v", path, err)
			continue
		}

		report.FilesDeleted++
		report.BytesFreed += info.Size()
		metrics.CleanupFilesDeleted.WithLabelValues(t.Name).Inc()
		metrics.CleanupBytesFreed.WithLabelValues(t.Name).Add(float64(info.Size()))
		logging.Info("Deleted expired %s file %s (age %v, %.2f MB)",
			t.Name, e.Name(), now.Sub(info.ModTime()).Truncate(time.Minute), RoundMB(info.Size()))
	}
}
