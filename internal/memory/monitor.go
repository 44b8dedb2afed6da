package memory

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/mem"

	"ffmpeg-api/internal/logging"
	"ffmpeg-api/internal/metrics"
)

// Sampler returns the used fraction (0.0-1.0) of the memory being watched.
type Sampler func() (float64, error)

// SystemSampler reads host memory usage through gopsutil. Inside a
// container this is the memory visible to the container.
func SystemSampler() (float64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent / 100, nil
}

// MonitorConfig configures a Monitor.
type MonitorConfig struct {
	// ResumeBelow is the usage under which paused work resumes.
	ResumeBelow float64
	// PauseAbove is the usage at or over which new work is held back.
	PauseAbove    float64
	CheckInterval time.Duration
	// Sampler defaults to SystemSampler.
	Sampler Sampler
}

// DefaultMonitorConfig pauses at 90% and resumes below 80%.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		ResumeBelow:   0.80,
		PauseAbove:    0.90,
		CheckInterval: 5 * time.Second,
		Sampler:       SystemSampler,
	}
}

// Monitor samples memory usage and holds back new ffmpeg work while usage is
// critical. Work already running is never interrupted.
type Monitor struct {
	config MonitorConfig

	mu      sync.RWMutex
	usage   float64
	paused  bool
	resumed chan struct{} // closed when a pause ends
}

// NewMonitor creates a monitor. Call Run to start sampling.
func NewMonitor(config MonitorConfig) *Monitor {
	def := DefaultMonitorConfig()
	if config.Sampler == nil {
		config.Sampler = def.Sampler
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = def.CheckInterval
	}
	if config.PauseAbove <= 0 || config.PauseAbove > 1 {
		config.PauseAbove = def.PauseAbove
	}
	if config.ResumeBelow <= 0 || config.ResumeBelow > config.PauseAbove {
		config.ResumeBelow = config.PauseAbove
	}
	return &Monitor{
		config:  config,
		resumed: make(chan struct{}),
	}
}

// Run samples until ctx is canceled. A pause in effect when Run returns is
// lifted so waiters are released.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	m.Check()
	for {
		select {
		case <-ctx.Done():
			m.setPaused(false, m.Usage())
			return nil
		case <-ticker.C:
			m.Check()
		}
	}
}

// Check takes one sample and updates the pause state.
func (m *Monitor) Check() {
	usage, err := m.config.Sampler()
	if err != nil {
		logging.Debug("Memory sample failed: %v", err)
		return
	}

	m.mu.Lock()
	m.usage = usage
	paused := m.paused
	m.mu.Unlock()

	switch {
	case !paused && usage >= m.config.PauseAbove:
		logging.Warn("Memory critical (%.1f%% used), pausing new jobs", usage*100)
		metrics.MemoryPausesTotal.Inc()
		m.setPaused(true, usage)
	case paused && usage < m.config.ResumeBelow:
		logging.Info("Memory recovered (%.1f%% used), resuming jobs", usage*100)
		m.setPaused(false, usage)
	}
}

func (m *Monitor) setPaused(paused bool, usage float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paused == paused {
		return
	}
	m.paused = paused
	m.usage = usage
	if paused {
		metrics.MemoryPaused.Set(1)
		return
	}
	metrics.MemoryPaused.Set(0)
	close(m.resumed)
	m.resumed = make(chan struct{})
}

// Wait blocks while the monitor is paused. It returns ctx.Err() if ctx ends
// first.
func (m *Monitor) Wait(ctx context.Context) error {
	m.mu.RLock()
	if !m.paused {
		m.mu.RUnlock()
		return nil
	}
	resumed := m.resumed
	m.mu.RUnlock()

	select {
	case <-resumed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Paused reports whether new work is being held back.
func (m *Monitor) Paused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paused
}

// Usage returns the last sampled usage.
func (m *Monitor) Usage() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.usage
}
