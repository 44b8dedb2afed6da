package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"ffmpeg-api/internal/cleanup"
	"ffmpeg-api/internal/database"
	"ffmpeg-api/internal/filesystem"
	"ffmpeg-api/internal/logging"
)

// uploadResponse is an upload record with its size in megabytes.
type uploadResponse struct {
	*database.Upload
	FileSizeMB float64 `json:"file_size_mb"`
}

func newUploadResponse(u *database.Upload) uploadResponse {
	return uploadResponse{Upload: u, FileSizeMB: cleanup.RoundMB(u.Size)}
}

// CreateUpload stores a file so jobs can reference it.
// POST /upload
func (h *Handlers) CreateUpload(w http.ResponseWriter, r *http.Request) {
	scope := cleanup.NewScope()
	defer scope.Release()

	in, err := h.uploads.SaveOne(w, r, "file", scope)
	if err != nil {
		writeError(w, r, err)
		return
	}

	u := &database.Upload{
		ID:       in.ID,
		Filename: in.Filename,
		FilePath: in.Path,
		Size:     in.Size,
	}
	if err := h.db.CreateUpload(r.Context(), u); err != nil {
		writeError(w, r, err)
		return
	}
	scope.Keep(in.Path)

	logging.Info("Upload stored: %s (%s, %.2f MB)", u.ID, u.Filename, cleanup.RoundMB(u.Size))

	writeJSONStatus(w, http.StatusOK, map[string]interface{}{
		"upload_id":      u.ID,
		"filename":       u.Filename,
		"file_size_mb":   cleanup.RoundMB(u.Size),
		"status":         "ready",
		"message":        "File uploaded; create jobs with this upload_id",
		"create_job_url": "/jobs/create",
		"expires_at":     u.ExpiresAt,
	})
}

// GetUpload returns one upload record.
// GET /upload/{id}
func (h *Handlers) GetUpload(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	u, err := h.db.GetUpload(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeJSONError(w, "Upload not found", http.StatusNotFound)
			return
		}
		writeError(w, r, err)
		return
	}

	writeJSONStatus(w, http.StatusOK, newUploadResponse(u))
}

// ListUploads returns every upload, newest first.
// GET /uploads
func (h *Handlers) ListUploads(w http.ResponseWriter, r *http.Request) {
	uploads, err := h.db.ListUploads(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	items := make([]uploadResponse, len(uploads))
	for i := range uploads {
		items[i] = newUploadResponse(&uploads[i])
	}

	writeJSONStatus(w, http.StatusOK, map[string]interface{}{
		"uploads": items,
		"total":   len(items),
	})
}

// DeleteUpload removes an upload no job references.
// DELETE /upload/{id}
func (h *Handlers) DeleteUpload(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	u, err := h.db.DeleteUpload(r.Context(), id)
	switch {
	case errors.Is(err, database.ErrNotFound):
		writeJSONError(w, "Upload not found", http.StatusNotFound)
		return
	case errors.Is(err, database.ErrInUse):
		writeJSONStatus(w, http.StatusBadRequest, map[string]interface{}{
			"error":     "Upload is referenced by queued or running jobs",
			"ref_count": u.RefCount,
		})
		return
	case err != nil:
		writeError(w, r, err)
		return
	}

	removeUploadFile(u.FilePath)

	writeJSONStatus(w, http.StatusOK, map[string]string{
		"message":   "Upload deleted",
		"upload_id": id,
	})
}

// removeUploadFile deletes the file of a deleted record. The record is
// already gone, so a failure only leaves an orphan for the sweeper.
func removeUploadFile(path string) {
	if err := filesystem.RemoveWithRetry(path, filesystem.DefaultRetryConfig()); err != nil {
		logging.Warn("Failed to remove upload file %s: %v", path, err)
	}
}
