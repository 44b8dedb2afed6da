package database

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when an upload or job id does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInUse is returned when deleting an upload that queued or running jobs still reference.
	ErrInUse = errors.New("upload is referenced by active jobs")
	// ErrInvalidState is returned when a job transition is not allowed from its current status.
	ErrInvalidState = errors.New("invalid job state")
)

// JobStatus is the lifecycle state of a job.
type JobStatus string

// Job statuses.
const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusCanceled   JobStatus = "canceled"
)

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCanceled
}

// Upload is a stored input file that jobs can reference.
type Upload struct {
	ID         string     `json:"upload_id"`
	Filename   string     `json:"filename"`
	FilePath   string     `json:"-"`
	Size       int64      `json:"file_size"`
	UploadedAt time.Time  `json:"uploaded_at"`
	RefCount   int        `json:"ref_count"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// Job is a queued FFmpeg operation over one or more uploads.
type Job struct {
	ID               string            `json:"job_id"`
	Type             string            `json:"job_type"`
	Status           JobStatus         `json:"status"`
	Priority         int               `json:"priority"`
	UploadIDs        []string          `json:"upload_ids"`
	InputFiles       []string          `json:"-"`
	OriginalFilename string            `json:"original_filename"`
	FileSize         int64             `json:"file_size"`
	Parameters       map[string]string `json:"parameters,omitempty"`
	OutputFile       string            `json:"-"`
	Error            string            `json:"error,omitempty"`
	Progress         int               `json:"progress"`
	CreatedAt        time.Time         `json:"created_at"`
	StartedAt        *time.Time        `json:"started_at,omitempty"`
	CompletedAt      *time.Time        `json:"completed_at,omitempty"`
	ExpiresAt        *time.Time        `json:"expires_at,omitempty"`
}

// NewJob describes a job to enqueue.
type NewJob struct {
	Type       string
	Priority   int
	UploadIDs  []string
	Parameters map[string]string
}

// JobStats holds job counts by status.
type JobStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Canceled   int `json:"canceled"`
	Total      int `json:"total"`
}

// Retention controls when finished records expire.
type Retention struct {
	Upload       time.Duration
	CompletedJob time.Duration
	FailedJob    time.Duration
}

// DefaultRetention matches the documented defaults.
var DefaultRetention = Retention{
	Upload:       3 * time.Hour,
	CompletedJob: 8 * time.Hour,
	FailedJob:    168 * time.Hour,
}
