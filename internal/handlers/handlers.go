package handlers

import (
	"time"

	"github.com/shirou/gopsutil/v4/disk"

	"ffmpeg-api/internal/database"
	"ffmpeg-api/internal/jobs"
	"ffmpeg-api/internal/streaming"
	"ffmpeg-api/internal/upload"
)

// Config holds the handler settings taken from startup configuration.
type Config struct {
	DataDir       string
	UploadDir     string
	TempDir       string
	MaxUploadSize int64
	// Retention is reported by /jobs/stats.
	Retention database.Retention
	Stream    streaming.Config
}

type Handlers struct {
	db      *database.Database
	queue   *jobs.Queue
	proc    jobs.Processor
	uploads *upload.Store // persistent uploads for jobs
	scratch *upload.Store // per-request files of the synchronous endpoints
	config  Config
	started time.Time

	diskUsage func(path string) (*disk.UsageStat, error)
}

func New(db *database.Database, queue *jobs.Queue, proc jobs.Processor, config Config) *Handlers {
	if config.Stream == (streaming.Config{}) {
		config.Stream = streaming.DefaultConfig()
	}
	if config.Retention == (database.Retention{}) {
		config.Retention = database.DefaultRetention
	}
	return &Handlers{
		db:        db,
		queue:     queue,
		proc:      proc,
		uploads:   upload.NewStore(config.UploadDir, config.MaxUploadSize),
		scratch:   upload.NewStore(config.TempDir, config.MaxUploadSize),
		config:    config,
		started:   time.Now(),
		diskUsage: disk.Usage,
	}
}
