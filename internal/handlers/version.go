package handlers

import (
	"net/http"

	"ffmpeg-api/internal/startup"
)

// GetVersion returns the application version and build information
func (h *Handlers) GetVersion(w http.ResponseWriter, _ *http.Request) {
	buildInfo := startup.GetBuildInfo()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, buildInfo)
}

// Root describes the API.
// GET /
func (h *Handlers) Root(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]interface{}{
		"message": "FFmpeg media processing API",
		"version": startup.Version,
		"status":  "online",
		"endpoints": map[string]map[string]string{
			"video": {
				"POST /video/detalles":      "Probe a media file (format, streams, tags)",
				"POST /video/extraer-audio": "Extract the audio track to MP3",
				"POST /video/comprimir":     "Compress a video to H.264/AAC MP4",
				"POST /video/convertir-mp4": "Convert a video to MP4",
			},
			"audio": {
				"POST /audio/cortar": "Cut audio between inicio and fin",
				"POST /audio/unir":   "Concatenate two or more audio files",
			},
			"imagen": {
				"POST /imagen/captura": "Capture one frame as WebP",
			},
			"uploads": {
				"POST /upload":          "Store a file for later jobs",
				"GET /upload/{id}":      "Upload details",
				"GET /uploads":          "List uploads",
				"DELETE /upload/{id}":   "Delete an unreferenced upload",
			},
			"jobs": {
				"POST /jobs/create":          "Queue an operation on stored uploads",
				"GET /jobs/status/{id}":      "Job state and progress",
				"GET /jobs/queue":            "Pending jobs in execution order",
				"GET /jobs/download/{id}":    "Download a completed result",
				"DELETE /jobs/{id}":          "Cancel a pending job",
				"GET /jobs/stats":            "Job counts by state",
			},
			"maintenance": {
				"GET /health":    "Health summary",
				"GET /livez":     "Liveness probe",
				"GET /readyz":    "Readiness probe",
				"GET /version":   "Build information",
				"DELETE /reset":  "Delete every temporary file",
			},
		},
	})
}
