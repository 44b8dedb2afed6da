package memory

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"testing"
	"time"
)

// fakeSampler returns a settable usage value.
type fakeSampler struct {
	mu    sync.Mutex
	usage float64
	err   error
}

func (f *fakeSampler) set(u float64) {
	f.mu.Lock()
	f.usage = u
	f.mu.Unlock()
}

func (f *fakeSampler) sample() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.usage, f.err
}

func newTestMonitor(s *fakeSampler) *Monitor {
	return NewMonitor(MonitorConfig{
		ResumeBelow:   0.5,
		PauseAbove:    0.8,
		CheckInterval: 5 * time.Millisecond,
		Sampler:       s.sample,
	})
}

func TestMonitorHysteresis(t *testing.T) {
	s := &fakeSampler{}
	m := newTestMonitor(s)

	steps := []struct {
		usage  float64
		paused bool
	}{
		{0.3, false},
		{0.79, false},
		{0.8, true},
		{0.6, true}, // between the marks: stays paused
		{0.49, false},
		{0.7, false},
	}
	for _, step := range steps {
		s.set(step.usage)
		m.Check()
		if m.Paused() != step.paused {
			t.Errorf("usage %.2f: Paused() = %v, want %v", step.usage, m.Paused(), step.paused)
		}
		if m.Usage() != step.usage {
			t.Errorf("Usage() = %v, want %v", m.Usage(), step.usage)
		}
	}
}

func TestMonitorSampleError(t *testing.T) {
	s := &fakeSampler{usage: 0.9}
	m := newTestMonitor(s)
	m.Check()

	s.mu.Lock()
	s.err = errors.New("unavailable")
	s.usage = 0.1
	s.mu.Unlock()
	m.Check()

	if !m.Paused() {
		t.Error("a failed sample should not change the pause state")
	}
}

func TestMonitorWait(t *testing.T) {
	s := &fakeSampler{}
	m := newTestMonitor(s)

	if err := m.Wait(context.Background()); err != nil {
		t.Fatalf("Wait when not paused = %v", err)
	}

	s.set(0.95)
	m.Check()

	done := make(chan error, 1)
	go func() { done <- m.Wait(context.Background()) }()

	select {
	case <-done:
		t.Fatal("Wait returned while paused")
	case <-time.After(20 * time.Millisecond):
	}

	s.set(0.1)
	m.Check()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Wait = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after resume")
	}
}

func TestMonitorWaitContext(t *testing.T) {
	s := &fakeSampler{usage: 0.95}
	m := newTestMonitor(s)
	m.Check()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := m.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait = %v, want DeadlineExceeded", err)
	}
}

func TestMonitorRunReleasesOnStop(t *testing.T) {
	s := &fakeSampler{usage: 0.95}
	m := newTestMonitor(s)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for !m.Paused() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !m.Paused() {
		t.Fatal("monitor never paused")
	}

	cancel()
	<-done
	if m.Paused() {
		t.Error("Run should lift the pause on exit")
	}
}

func TestNewMonitorDefaults(t *testing.T) {
	m := NewMonitor(MonitorConfig{})
	def := DefaultMonitorConfig()
	if m.config.PauseAbove != def.PauseAbove || m.config.CheckInterval != def.CheckInterval {
		t.Errorf("config = %+v, want defaults", m.config)
	}
	if m.config.ResumeBelow > m.config.PauseAbove {
		t.Error("ResumeBelow must not exceed PauseAbove")
	}
	if m.config.Sampler == nil {
		t.Error("Sampler should default to SystemSampler")
	}
}

func TestSystemSampler(t *testing.T) {
	u, err := SystemSampler()
	if err != nil {
		t.Skipf("system memory unavailable: %v", err)
	}
	if u <= 0 || u > 1 {
		t.Errorf("SystemSampler() = %v, want (0, 1]", u)
	}
}

func TestConfigureLimit(t *testing.T) {
	prev := debug.SetMemoryLimit(-1)
	t.Cleanup(func() { debug.SetMemoryLimit(prev) })
	t.Setenv("GOMEMLIMIT", "")

	tests := []struct {
		name      string
		limit     int64
		ratio     float64
		source    string
		wantLimit int64
	}{
		{"no limit", 0, 0.5, "none", 0},
		{"explicit ratio", 1 << 30, 0.25, "MEMORY_LIMIT", 1 << 28},
		{"default ratio", 1 << 30, 0, "MEMORY_LIMIT", 1 << 29},
		{"out of range ratio", 1 << 30, 1.5, "MEMORY_LIMIT", 1 << 29},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ConfigureLimit(tt.limit, tt.ratio)
			if res.Source != tt.source {
				t.Errorf("Source = %q, want %q", res.Source, tt.source)
			}
			if res.GoMemLimit != tt.wantLimit {
				t.Errorf("GoMemLimit = %d, want %d", res.GoMemLimit, tt.wantLimit)
			}
			if res.Configured() != (tt.wantLimit > 0) {
				t.Errorf("Configured() = %v", res.Configured())
			}
			if tt.wantLimit > 0 && debug.SetMemoryLimit(-1) != tt.wantLimit {
				t.Errorf("runtime limit = %d, want %d", debug.SetMemoryLimit(-1), tt.wantLimit)
			}
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1 << 20, "1.0 MiB"},
		{3 << 30, "3.0 GiB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
