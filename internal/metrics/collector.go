package metrics

import (
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"

	"ffmpeg-api/internal/filesystem"
	"ffmpeg-api/internal/logging"
)

// StatsProvider supplies the stored job and upload counts.
type StatsProvider interface {
	GetStats() Stats
}

// Stats holds the current job and upload counts.
type Stats struct {
	PendingJobs    int
	ProcessingJobs int
	CompletedJobs  int
	FailedJobs     int
	CanceledJobs   int
	Uploads        int
}

// Collector periodically refreshes gauges that are computed rather than
// recorded inline: job counts, disk usage, directory sizes and memory.
type Collector struct {
	statsProvider StatsProvider
	dbPath        string
	volumes       map[string]string // volume name → directory
	interval      time.Duration
	stopChan      chan struct{}
	stopOnce      sync.Once
}

// NewCollector creates a new metrics collector. provider may be nil.
func NewCollector(provider StatsProvider, dbPath string, volumes map[string]string, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		dbPath:        dbPath,
		volumes:       volumes,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection. It is safe to call more than once.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
}

func (c *Collector) collectLoop() {
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	c.collectStats()
	c.collectStorage()
	c.collectDBSize()
	c.collectMemory()
}

func (c *Collector) collectStats() {
	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.GetStats()

	JobsByStatus.WithLabelValues("pending").Set(float64(stats.PendingJobs))
	JobsByStatus.WithLabelValues("processing").Set(float64(stats.ProcessingJobs))
	JobsByStatus.WithLabelValues("completed").Set(float64(stats.CompletedJobs))
	JobsByStatus.WithLabelValues("failed").Set(float64(stats.FailedJobs))
	JobsByStatus.WithLabelValues("canceled").Set(float64(stats.CanceledJobs))
	UploadsStored.Set(float64(stats.Uploads))

	logging.Debug("Metrics collected: pending=%d, processing=%d, completed=%d, failed=%d, uploads=%d",
		stats.PendingJobs, stats.ProcessingJobs, stats.CompletedJobs, stats.FailedJobs, stats.Uploads)
}

func (c *Collector) collectStorage() {
	for name, dir := range c.volumes {
		if usage, err := disk.Usage(dir); err == nil {
			DiskUsageBytes.WithLabelValues(name, "total").Set(float64(usage.Total))
			DiskUsageBytes.WithLabelValues(name, "used").Set(float64(usage.Used))
			DiskUsageBytes.WithLabelValues(name, "free").Set(float64(usage.Free))
			DiskUsageRatio.WithLabelValues(name).Set(usage.UsedPercent / 100)
		} else {
			logging.Debug("Disk usage unavailable for %s (%s): %v", name, dir, err)
		}

		if _, size, err := filesystem.DirSize(dir); err == nil {
			DirectoryBytes.WithLabelValues(name).Set(float64(size))
		}
	}
}

func (c *Collector) collectDBSize() {
	if c.dbPath == "" {
		return
	}

	for label, suffix := range map[string]string{"main": "", "wal": "-wal", "shm": "-shm"} {
		info, err := os.Stat(c.dbPath + suffix)
		if err != nil {
			DBSizeBytes.WithLabelValues(label).Set(0)
			continue
		}
		DBSizeBytes.WithLabelValues(label).Set(float64(info.Size()))
	}
}

func (c *Collector) collectMemory() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	GoMemAllocBytes.Set(float64(m.Alloc))

	if vm, err := mem.VirtualMemory(); err == nil {
		SystemMemoryUsedRatio.Set(vm.UsedPercent / 100)
	}
}
