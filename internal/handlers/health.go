package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"ffmpeg-api/internal/database"
	"ffmpeg-api/internal/logging"
	"ffmpeg-api/internal/startup"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`

	// System info
	GoVersion    string `json:"go_version"`
	NumCPU       int    `json:"num_cpu"`
	NumGoroutine int    `json:"num_goroutine"`

	Jobs  *database.JobStats `json:"jobs,omitempty"`
	Error string             `json:"error,omitempty"`
}

// HealthCheck returns the health status of the service
// GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:       statusHealthy,
		Version:      startup.Version,
		Uptime:       time.Since(h.started).Round(time.Second).String(),
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
	}

	stats, err := h.db.JobStats(r.Context())
	if err != nil {
		logging.Warn("Health check could not read job stats: %v", err)
		response.Status = statusDegraded
		response.Error = "database unavailable"
	} else {
		response.Jobs = &stats
	}

	writeJSONStatus(w, http.StatusOK, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
// GET /livez
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{
			"status": "alive",
		})
	}
}

// ReadinessCheck returns 200 only when the database answers and the data
// volume can be read.
// GET /readyz
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		logging.Warn("Readiness: database ping failed: %v", err)
		writeJSONStatus(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"reason": "database",
		})
		return
	}

	usage, err := h.diskUsage(h.config.DataDir)
	if err != nil {
		logging.Warn("Readiness: data directory unavailable: %v", err)
		writeJSONStatus(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"reason": "storage",
		})
		return
	}

	writeJSONStatus(w, http.StatusOK, map[string]interface{}{
		"status":          "ready",
		"disk_used_pct":   usage.UsedPercent,
		"disk_free_bytes": usage.Free,
	})
}

// MetricsHandler serves the Prometheus registry.
func (h *Handlers) MetricsHandler() http.Handler {
	return promhttp.Handler()
}
