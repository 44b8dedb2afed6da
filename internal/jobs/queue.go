package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"ffmpeg-api/internal/cleanup"
	"ffmpeg-api/internal/database"
	"ffmpeg-api/internal/ffmpeg"
	"ffmpeg-api/internal/filesystem"
	"ffmpeg-api/internal/logging"
	"ffmpeg-api/internal/metrics"
)

// ErrInvalidJobType is returned by Submit for unknown operations.
var ErrInvalidJobType = errors.New("invalid job type")

// Processor executes operations. *ffmpeg.Runner implements it.
type Processor interface {
	Prober
	Run(ctx context.Context, req ffmpeg.Request) error
}

// Config configures a Queue.
type Config struct {
	Workers    int
	ResultsDir string
	TempDir    string
	// PollInterval bounds how long an idle worker waits before checking the
	// database again. Submit wakes workers immediately.
	PollInterval time.Duration
	// Gate, when set, is consulted before each claim. *memory.Monitor
	// implements it.
	Gate Gate
}

// Gate holds workers back between jobs.
type Gate interface {
	Wait(ctx context.Context) error
}

// Queue schedules and runs jobs.
type Queue struct {
	db    *database.Database
	proc  Processor
	cfg   Config
	wake  chan struct{}
	retry filesystem.RetryConfig
	log   hclog.Logger
}

// NewQueue creates a queue. Workers defaults to 1 and PollInterval to one second.
func NewQueue(db *database.Database, proc Processor, cfg Config) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Queue{
		db:    db,
		proc:  proc,
		cfg:   cfg,
		wake:  make(chan struct{}, cfg.Workers),
		retry: filesystem.DefaultRetryConfig(),
		log:   logging.Named("jobs"),
	}
}

// Submit validates and enqueues a job over the given uploads. Unknown uploads
// return database.ErrNotFound; invalid parameters return the ffmpeg
// validation error.
func (q *Queue) Submit(ctx context.Context, op ffmpeg.Operation, uploadIDs []string, params map[string]string) (*database.Job, error) {
	if !op.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidJobType, op)
	}

	p, err := ffmpeg.ParseParams(params)
	if err != nil {
		return nil, err
	}
	if err := ffmpeg.Validate(op, len(uploadIDs), p); err != nil {
		return nil, err
	}

	job, err := q.db.CreateJob(ctx, database.NewJob{
		Type:       string(op),
		Priority:   PriorityFor(op),
		UploadIDs:  uploadIDs,
		Parameters: params,
	})
	if err != nil {
		return nil, err
	}

	metrics.JobsSubmittedTotal.WithLabelValues(job.Type).Inc()
	q.log.Info("job queued", "job_id", job.ID, "type", job.Type, "priority", PriorityName(job.Priority),
		"uploads", len(uploadIDs))
	q.notify()
	return job, nil
}

// Cancel cancels a pending job.
func (q *Queue) Cancel(ctx context.Context, id string) (*database.Job, error) {
	job, err := q.db.CancelJob(ctx, id)
	if err != nil {
		return job, err
	}
	metrics.JobsFinishedTotal.WithLabelValues(job.Type, string(database.StatusCanceled)).Inc()
	q.log.Info("job canceled", "job_id", id)
	return job, nil
}

func (q *Queue) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Run re-queues jobs interrupted by a previous shutdown and processes jobs
// until ctx is canceled. A job interrupted by cancellation stays in
// processing and is re-queued on the next start.
func (q *Queue) Run(ctx context.Context) error {
	n, err := q.db.RequeueProcessing(ctx)
	if err != nil {
		return fmt.Errorf("requeue interrupted jobs: %w", err)
	}
	if n > 0 {
		q.log.Warn("re-queued interrupted jobs", "count", n)
	}

	q.log.Info("job workers started", "workers", q.cfg.Workers)

	var wg sync.WaitGroup
	for i := range q.cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.worker(ctx, i)
		}()
	}
	wg.Wait()

	q.log.Info("job workers stopped")
	return nil
}

func (q *Queue) worker(ctx context.Context, id int) {
	ticker := time.NewTicker(q.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}
		if q.cfg.Gate != nil {
			if err := q.cfg.Gate.Wait(ctx); err != nil {
				return
			}
		}

		job, err := q.db.ClaimNextJob(ctx)
		if err != nil {
			if ctx.Err() == nil {
				q.log.Error("claiming job", "worker", id, "error", err)
			}
		}
		if job != nil {
			q.process(ctx, job)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-q.wake:
		case <-ticker.C:
		}
	}
}

// process runs one claimed job to a terminal state.
func (q *Queue) process(ctx context.Context, job *database.Job) {
	start := time.Now()
	metrics.JobWorkersBusy.Inc()
	defer metrics.JobWorkersBusy.Dec()

	q.log.Info("job started", "job_id", job.ID, "type", job.Type, "file", job.OriginalFilename,
		"size_mb", cleanup.RoundMB(job.FileSize))

	output, err := q.execute(ctx, job)
	if err != nil && ctx.Err() != nil {
		q.log.Warn("job interrupted by shutdown", "job_id", job.ID)
		return
	}

	// Terminal writes must land even if the worker's context is canceled now.
	finishCtx := context.WithoutCancel(ctx)
	status := database.StatusCompleted
	if err != nil {
		status = database.StatusFailed
		q.log.Error("job failed", "job_id", job.ID, "type", job.Type, "error", err)
		err = q.db.FailJob(finishCtx, job.ID, clientMessage(err))
	} else {
		err = q.db.CompleteJob(finishCtx, job.ID, output)
		if err == nil {
			q.log.Info("job completed", "job_id", job.ID, "output", output,
				"duration", time.Since(start).Round(time.Millisecond))
		}
	}
	if err != nil {
		q.log.Error("recording job result", "job_id", job.ID, "error", err)
	}

	metrics.JobsFinishedTotal.WithLabelValues(job.Type, string(status)).Inc()
	metrics.JobDuration.WithLabelValues(job.Type).Observe(time.Since(start).Seconds())
}

// execute produces the job's result file and returns its path. Everything it
// creates is removed unless the job succeeds, in which case only the result
// is kept.
func (q *Queue) execute(ctx context.Context, job *database.Job) (string, error) {
	scope := cleanup.NewScope()
	defer scope.Release()

	if len(job.InputFiles) == 0 {
		return "", fmt.Errorf("%w: job has no inputs", ffmpeg.ErrInvalidParam)
	}

	op := ffmpeg.Operation(job.Type)
	params, err := ffmpeg.ParseParams(job.Parameters)
	if err != nil {
		return "", err
	}

	output := scope.Path(q.cfg.ResultsDir, job.ID, "output."+op.OutputExt(job.InputFiles[0]))

	if err := q.db.UpdateProgress(ctx, job.ID, 10); err != nil {
		q.log.Warn("updating progress", "job_id", job.ID, "error", err)
	}

	if op == ffmpeg.OpMetadata {
		err = q.writeMetadata(ctx, job.InputFiles[0], job.OriginalFilename, output)
	} else {
		req := ffmpeg.Request{
			Op:     op,
			Inputs: job.InputFiles,
			Output: output,
			Params: params,
		}
		if op == ffmpeg.OpConcatAudio {
			req.ListFile = scope.Path(q.cfg.TempDir, job.ID, "concat.tmp")
		}
		err = q.proc.Run(ctx, req)
	}
	if err != nil {
		return "", err
	}

	scope.Keep(output)
	return output, nil
}

func (q *Queue) writeMetadata(ctx context.Context, input, name, output string) error {
	md, err := Describe(ctx, q.proc, input, name)
	if err != nil {
		return err
	}

	f, err := filesystem.CreateWithRetry(output, q.retry)
	if err != nil {
		return fmt.Errorf("create metadata result: %w", err)
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(md); err != nil {
		_ = f.Close()
		return fmt.Errorf("write metadata result: %w", err)
	}
	return f.Close()
}

// clientMessage maps a processing error to the message stored on the job.
// Process details stay in the logs.
func clientMessage(err error) string {
	switch {
	case errors.Is(err, ffmpeg.ErrInvalidTimestamp), errors.Is(err, ffmpeg.ErrInvalidParam):
		return err.Error()
	case errors.Is(err, ffmpeg.ErrEmptyInput):
		return "input file is missing or empty"
	case errors.Is(err, ffmpeg.ErrInvalidMedia):
		return "input is not a valid media file"
	case errors.Is(err, context.DeadlineExceeded):
		return "processing timed out"
	case errors.Is(err, ffmpeg.ErrProcessFailed), errors.Is(err, ffmpeg.ErrNoOutput):
		return "media processing failed"
	default:
		return "internal error"
	}
}

// ExpiryHooks returns sweeper hooks that delete expired job and upload
// records together with their files.
func (q *Queue) ExpiryHooks() []cleanup.Hook {
	return []cleanup.Hook{
		{Name: "jobs", Run: q.expireJobs},
		{Name: "upload_records", Run: q.expireUploads},
	}
}

func (q *Queue) expireJobs(ctx context.Context, now time.Time) (int, error) {
	expired, err := q.db.DeleteExpiredJobs(ctx, now)
	if err != nil {
		return 0, err
	}
	for _, j := range expired {
		q.removeFile(j.OutputFile, "jobs")
	}
	return len(expired), nil
}

func (q *Queue) expireUploads(ctx context.Context, now time.Time) (int, error) {
	expired, err := q.db.DeleteExpiredUploads(ctx, now)
	if err != nil {
		return 0, err
	}
	for _, u := range expired {
		q.removeFile(u.FilePath, "upload_records")
	}
	return len(expired), nil
}

func (q *Queue) removeFile(path, target string) {
	if path == "" {
		return
	}
	info, statErr := os.Stat(path)
	if err := filesystem.RemoveWithRetry(path, q.retry); err != nil {
		metrics.CleanupErrors.WithLabelValues(target).Inc()
		q.log.Warn("removing expired file", "path", path, "error", err)
		return
	}
	if statErr == nil {
		metrics.CleanupFilesDeleted.WithLabelValues(target).Inc()
		metrics.CleanupBytesFreed.WithLabelValues(target).Add(float64(info.Size()))
	}
}
