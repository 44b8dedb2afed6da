package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type mockStatsProvider struct {
	stats Stats
}

func (m *mockStatsProvider) GetStats() Stats {
	return m.stats
}

func TestNewCollector(t *testing.T) {
	provider := &mockStatsProvider{}
	c := NewCollector(provider, "/disk/db/ffmpeg-api.db", map[string]string{"uploads": "/disk/uploads"}, time.Minute)

	if c.statsProvider != provider {
		t.Error("statsProvider not set")
	}
	if c.interval != time.Minute {
		t.Errorf("interval = %v, want 1m", c.interval)
	}
	if c.stopChan == nil {
		t.Error("stopChan not initialized")
	}
}

func TestCollectStats(t *testing.T) {
	c := NewCollector(&mockStatsProvider{stats: Stats{
		PendingJobs:    3,
		ProcessingJobs: 1,
		CompletedJobs:  7,
		FailedJobs:     2,
		CanceledJobs:   1,
		Uploads:        5,
	}}, "", nil, time.Minute)

	c.collectStats()

	tests := map[string]float64{
		"pending":    3,
		"processing": 1,
		"completed":  7,
		"failed":     2,
		"canceled":   1,
	}
	for status, want := range tests {
		if got := value(t, JobsByStatus.WithLabelValues(status)); got != want {
			t.Errorf("JobsByStatus{%s} = %v, want %v", status, got, want)
		}
	}
	if got := value(t, UploadsStored); got != 5 {
		t.Errorf("UploadsStored = %v, want 5", got)
	}
}

func TestCollectWithNilProvider(t *testing.T) {
	c := NewCollector(nil, "", nil, time.Minute)
	c.collect()
}

func TestCollectStorage(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.mp3"), make([]byte, 100), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c := NewCollector(nil, "", map[string]string{"results": dir}, time.Minute)
	c.collectStorage()

	if got := value(t, DirectoryBytes.WithLabelValues("results")); got != 100 {
		t.Errorf("DirectoryBytes = %v, want 100", got)
	}
	if got := value(t, DiskUsageBytes.WithLabelValues("results", "total")); got <= 0 {
		t.Errorf("DiskUsageBytes{total} = %v, want > 0", got)
	}
}

func TestCollectDBSize(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "ffmpeg-api.db")
	if err := os.WriteFile(dbPath, make([]byte, 4096), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(dbPath+"-wal", make([]byte, 512), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c := NewCollector(nil, dbPath, nil, time.Minute)
	c.collectDBSize()

	if got := value(t, DBSizeBytes.WithLabelValues("main")); got != 4096 {
		t.Errorf("DBSizeBytes{main} = %v, want 4096", got)
	}
	if got := value(t, DBSizeBytes.WithLabelValues("wal")); got != 512 {
		t.Errorf("DBSizeBytes{wal} = %v, want 512", got)
	}
	if got := value(t, DBSizeBytes.WithLabelValues("shm")); got != 0 {
		t.Errorf("DBSizeBytes{shm} = %v, want 0", got)
	}
}

func TestCollectMemory(t *testing.T) {
	c := NewCollector(nil, "", nil, time.Minute)
	c.collectMemory()

	if got := value(t, GoMemAllocBytes); got <= 0 {
		t.Errorf("GoMemAllocBytes = %v, want > 0", got)
	}
}

func TestCollectorStartStop(_ *testing.T) {
	c := NewCollector(&mockStatsProvider{}, "", nil, 10*time.Millisecond)
	c.Start()
	time.Sleep(30 * time.Millisecond)
	c.Stop()
}

func TestCollectorMultipleStops(_ *testing.T) {
	c := NewCollector(nil, "", nil, time.Minute)
	c.Start()
	c.Stop()
	c.Stop()
}
