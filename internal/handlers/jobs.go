package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"ffmpeg-api/internal/database"
	"ffmpeg-api/internal/ffmpeg"
	"ffmpeg-api/internal/jobs"
	"ffmpeg-api/internal/streaming"
	"ffmpeg-api/internal/upload"
)

// maxJobFormSize bounds the /jobs/create body; it carries ids and
// parameters only.
const maxJobFormSize = 1 << 20

// paramUploadIDs lists extra inputs for concat_audios.
const paramUploadIDs = "upload_ids"

var errBadParameters = errors.New("parameters must be a JSON object of strings, numbers or booleans")

// jobResponse is a job record with its priority name.
type jobResponse struct {
	*database.Job
	PriorityName string `json:"priority_name"`
	QueuePos     int    `json:"queue_position,omitempty"`
}

func newJobResponse(j *database.Job) jobResponse {
	return jobResponse{Job: j, PriorityName: jobs.PriorityName(j.Priority)}
}

// decodeParameters converts the JSON parameters field into the string map
// stored on the job. upload_ids is split out as the extra inputs.
func decodeParameters(raw string) (map[string]string, []string, error) {
	if strings.TrimSpace(raw) == "" {
		raw = "{}"
	}

	var values map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &values); err != nil || values == nil {
		return nil, nil, errBadParameters
	}

	params := make(map[string]string, len(values))
	var extra []string
	for k, v := range values {
		switch tv := v.(type) {
		case nil:
		case string:
			params[k] = tv
		case float64:
			params[k] = strconv.FormatFloat(tv, 'f', -1, 64)
		case bool:
			params[k] = strconv.FormatBool(tv)
		case []interface{}:
			if k != paramUploadIDs {
				return nil, nil, errBadParameters
			}
			for _, id := range tv {
				s, ok := id.(string)
				if !ok || s == "" {
					return nil, nil, fmt.Errorf("%w: upload_ids must be a list of ids", errBadParameters)
				}
				extra = append(extra, s)
			}
		default:
			return nil, nil, errBadParameters
		}
	}
	return params, extra, nil
}

// CreateJob queues an operation over stored uploads.
// POST /jobs/create
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJobFormSize)

	uploadID := strings.TrimSpace(r.FormValue("upload_id"))
	jobType := ffmpeg.Operation(strings.TrimSpace(r.FormValue("job_type")))
	if uploadID == "" {
		writeJSONError(w, "upload_id is required", http.StatusBadRequest)
		return
	}

	params, extra, err := decodeParameters(r.FormValue("parameters"))
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if !jobType.Valid() {
		names := make([]string, len(ffmpeg.Operations))
		for i, op := range ffmpeg.Operations {
			names[i] = string(op)
		}
		writeJSONError(w, fmt.Sprintf("Invalid job_type %q. Valid types: %s", jobType, strings.Join(names, ", ")),
			http.StatusBadRequest)
		return
	}

	job, err := h.queue.Submit(r.Context(), jobType, append([]string{uploadID}, extra...), params)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeJSONError(w, "Upload not found", http.StatusNotFound)
			return
		}
		writeError(w, r, err)
		return
	}

	priority := jobs.PriorityName(job.Priority)
	writeJSONStatus(w, http.StatusOK, map[string]interface{}{
		"job_id":       job.ID,
		"upload_id":    uploadID,
		"upload_ids":   job.UploadIDs,
		"job_type":     job.Type,
		"status":       job.Status,
		"priority":     priority,
		"message":      fmt.Sprintf("Job created with %s priority", strings.ToUpper(priority)),
		"status_url":   "/jobs/status/" + job.ID,
		"download_url": "/jobs/download/" + job.ID,
	})
}

// JobStatus returns the job record.
// GET /jobs/status/{id}
func (h *Handlers) JobStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookupJob(w, r)
	if !ok {
		return
	}
	writeJSONStatus(w, http.StatusOK, newJobResponse(job))
}

// JobQueue lists pending jobs in the order workers will run them.
// GET /jobs/queue
func (h *Handlers) JobQueue(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.JobStats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	pending, err := h.db.ListPendingJobs(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	items := make([]jobResponse, len(pending))
	for i := range pending {
		items[i] = newJobResponse(&pending[i])
		items[i].QueuePos = i + 1
	}

	writeJSONStatus(w, http.StatusOK, map[string]interface{}{
		"stats":         stats,
		"pending_jobs":  items,
		"total_pending": len(items),
	})
}

// DownloadResult streams the result of a completed job.
// GET /jobs/download/{id}
func (h *Handlers) DownloadResult(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookupJob(w, r)
	if !ok {
		return
	}

	if job.Status != database.StatusCompleted {
		writeJSONStatus(w, http.StatusBadRequest, map[string]interface{}{
			"error":    fmt.Sprintf("Job not completed. Current status: %s", job.Status),
			"status":   job.Status,
			"progress": job.Progress,
		})
		return
	}

	if _, err := os.Stat(job.OutputFile); job.OutputFile == "" || err != nil {
		writeJSONError(w, "Result file not found or expired", http.StatusNotFound)
		return
	}

	ext := filepath.Ext(job.OutputFile)
	h.sendFile(w, r, streaming.Attachment{
		Path:        job.OutputFile,
		ContentType: ffmpeg.ContentType(ext),
		Filename:    upload.BaseName(job.OriginalFilename) + ext,
	})
}

// CancelJob cancels a pending job.
// DELETE /jobs/{id}
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	job, err := h.queue.Cancel(r.Context(), id)
	switch {
	case errors.Is(err, database.ErrNotFound):
		writeJSONError(w, "Job not found", http.StatusNotFound)
		return
	case errors.Is(err, database.ErrInvalidState):
		if job.Status == database.StatusProcessing {
			writeJSONError(w, "Cannot cancel a job that is processing", http.StatusBadRequest)
			return
		}
		writeJSONStatus(w, http.StatusOK, map[string]interface{}{
			"message": fmt.Sprintf("Job already %s", job.Status),
			"status":  job.Status,
		})
		return
	case err != nil:
		writeError(w, r, err)
		return
	}

	writeJSONStatus(w, http.StatusOK, map[string]string{
		"message": "Job canceled",
		"job_id":  id,
	})
}

// JobStats returns job counts by state and the retention of finished jobs.
// GET /jobs/stats
func (h *Handlers) JobStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.JobStats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	retention := h.config.Retention
	writeJSONStatus(w, http.StatusOK, map[string]interface{}{
		"queue": map[string]int{
			"pending":    stats.Pending,
			"processing": stats.Processing,
		},
		"completed": map[string]interface{}{
			"count":           stats.Completed,
			"retention_hours": retention.CompletedJob.Hours(),
		},
		"failed": map[string]interface{}{
			"count":           stats.Failed,
			"retention_hours": retention.FailedJob.Hours(),
		},
		"canceled": map[string]interface{}{
			"count": stats.Canceled,
		},
		"total_active": stats.Pending + stats.Processing,
	})
}

func (h *Handlers) lookupJob(w http.ResponseWriter, r *http.Request) (*database.Job, bool) {
	job, err := h.db.GetJob(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeJSONError(w, "Job not found", http.StatusNotFound)
		} else {
			writeError(w, r, err)
		}
		return nil, false
	}
	return job, true
}
