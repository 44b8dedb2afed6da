package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ffmpeg-api/internal/metrics"
)

const jobColumns = `id, type, status, priority, upload_ids, input_files, original_filename, file_size,
	parameters, output_file, error, progress, created_at, started_at, completed_at, expires_at`

func scanJob(row rowScanner) (*Job, error) {
	var j Job
	var uploadIDs, inputFiles, params string
	var createdAt int64
	var startedAt, completedAt, expiresAt sql.NullInt64

	err := row.Scan(
		&j.ID, &j.Type, &j.Status, &j.Priority, &uploadIDs, &inputFiles, &j.OriginalFilename, &j.FileSize,
		&params, &j.OutputFile, &j.Error, &j.Progress, &createdAt, &startedAt, &completedAt, &expiresAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(uploadIDs), &j.UploadIDs); err != nil {
		return nil, fmt.Errorf("decode upload_ids for job %s: %w", j.ID, err)
	}
	if err := json.Unmarshal([]byte(inputFiles), &j.InputFiles); err != nil {
		return nil, fmt.Errorf("decode input_files for job %s: %w", j.ID, err)
	}
	if err := json.Unmarshal([]byte(params), &j.Parameters); err != nil {
		return nil, fmt.Errorf("decode parameters for job %s: %w", j.ID, err)
	}

	j.CreatedAt = time.Unix(createdAt, 0)
	j.StartedAt = nullTime(startedAt)
	j.CompletedAt = nullTime(completedAt)
	j.ExpiresAt = nullTime(expiresAt)
	return &j, nil
}

func marshalColumn(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CreateJob enqueues a pending job over the given uploads. Each upload's
// reference count is incremented and its expiry cleared in the same
// transaction. A missing upload returns ErrNotFound and nothing is written.
func (d *Database) CreateJob(ctx context.Context, nj NewJob) (*Job, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("create_job", start, err) }()

	if len(nj.UploadIDs) == 0 {
		err = fmt.Errorf("job requires at least one upload")
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	now := d.now()
	job := &Job{
		ID:         uuid.NewString(),
		Type:       nj.Type,
		Status:     StatusPending,
		Priority:   nj.Priority,
		UploadIDs:  append([]string(nil), nj.UploadIDs...),
		InputFiles: make([]string, 0, len(nj.UploadIDs)),
		Parameters: nj.Parameters,
		CreatedAt:  time.Unix(now.Unix(), 0),
	}
	if job.Parameters == nil {
		job.Parameters = map[string]string{}
	}

	for i, id := range nj.UploadIDs {
		var u *Upload
		u, err = scanUpload(tx.QueryRowContext(ctx, `SELECT `+uploadColumns+` FROM uploads WHERE id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			err = nil
			return nil, fmt.Errorf("upload %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return nil, err
		}
		if i == 0 {
			job.OriginalFilename = u.Filename
		}
		job.InputFiles = append(job.InputFiles, u.FilePath)
		job.FileSize += u.Size

		if _, err = tx.ExecContext(ctx,
			`UPDATE uploads SET ref_count = ref_count + 1, expires_at = NULL WHERE id = ?`, id,
		); err != nil {
			return nil, err
		}
	}

	uploadIDs, err := marshalColumn(job.UploadIDs)
	if err != nil {
		return nil, err
	}
	inputFiles, err := marshalColumn(job.InputFiles)
	if err != nil {
		return nil, err
	}
	params, err := marshalColumn(job.Parameters)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO jobs (id, type, status, priority, upload_ids, input_files, original_filename,
			file_size, parameters, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Type, job.Status, job.Priority, uploadIDs, inputFiles, job.OriginalFilename,
		job.FileSize, params, now.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return job, nil
}

// GetJob returns the job with the given id.
func (d *Database) GetJob(ctx context.Context, id string) (*Job, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_job", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var j *Job
	j, err = scanJob(d.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
		return nil, ErrNotFound
	}
	return j, err
}

// ListPendingJobs returns pending jobs in the order workers will claim them.
func (d *Database) ListPendingJobs(ctx context.Context) ([]Job, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_pending_jobs", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY priority, created_at, rowid`,
		StatusPending,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []Job{}
	for rows.Next() {
		var j *Job
		j, err = scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	err = rows.Err()
	return jobs, err
}

// ClaimNextJob moves the highest-priority, oldest pending job to processing
// and returns it. It returns nil, nil when the queue is empty.
func (d *Database) ClaimNextJob(ctx context.Context) (*Job, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("claim_job", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var id string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM jobs WHERE status = ? ORDER BY priority, created_at, rowid LIMIT 1`,
		StatusPending,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	now := d.now()
	if _, err = tx.ExecContext(ctx,
		`UPDATE jobs SET status = ?, started_at = ?, progress = 0 WHERE id = ? AND status = ?`,
		StatusProcessing, now.Unix(), id, StatusPending,
	); err != nil {
		return nil, err
	}

	var j *Job
	j, err = scanJob(tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return j, nil
}

// UpdateProgress records progress (0-100) for a processing job.
func (d *Database) UpdateProgress(ctx context.Context, id string, progress int) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("update_progress", start, err) }()

	progress = max(0, min(progress, 100))

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `UPDATE jobs SET progress = ? WHERE id = ? AND status = ?`, progress, id, StatusProcessing)
	return err
}

// CompleteJob marks a processing job completed with its result file.
func (d *Database) CompleteJob(ctx context.Context, id, outputFile string) error {
	return d.finishJob(ctx, id, StatusCompleted, outputFile, "")
}

// FailJob marks a processing job failed with a client-safe message.
func (d *Database) FailJob(ctx context.Context, id, message string) error {
	return d.finishJob(ctx, id, StatusFailed, "", message)
}

func (d *Database) finishJob(ctx context.Context, id string, status JobStatus, outputFile, message string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("finish_job", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var j *Job
	j, err = scanJob(tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if j.Status != StatusProcessing {
		return fmt.Errorf("job %s is %s: %w", id, j.Status, ErrInvalidState)
	}

	now := d.now()
	ttl := d.retention.CompletedJob
	progress := 100
	if status != StatusCompleted {
		ttl = d.retention.FailedJob
		progress = j.Progress
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE jobs SET status = ?, output_file = ?, error = ?, progress = ?, completed_at = ?, expires_at = ?
		WHERE id = ?`,
		status, outputFile, message, progress, now.Unix(), now.Add(ttl).Unix(), id,
	); err != nil {
		return err
	}

	if err = d.releaseUploads(ctx, tx, j.UploadIDs, now); err != nil {
		return err
	}

	err = tx.Commit()
	return err
}

// CancelJob cancels a pending job and returns it. Jobs in any other state
// return ErrInvalidState along with their current record.
func (d *Database) CancelJob(ctx context.Context, id string) (*Job, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("cancel_job", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var j *Job
	j, err = scanJob(tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if j.Status != StatusPending {
		return j, ErrInvalidState
	}

	now := d.now()
	expires := now.Add(d.retention.FailedJob)
	if _, err = tx.ExecContext(ctx,
		`UPDATE jobs SET status = ?, completed_at = ?, expires_at = ? WHERE id = ?`,
		StatusCanceled, now.Unix(), expires.Unix(), id,
	); err != nil {
		return nil, err
	}

	if err = d.releaseUploads(ctx, tx, j.UploadIDs, now); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}

	completed := time.Unix(now.Unix(), 0)
	j.Status = StatusCanceled
	j.CompletedAt = &completed
	j.ExpiresAt = &expires
	return j, nil
}

// releaseUploads drops one reference per upload; uploads reaching zero start
// their expiry clock.
func (d *Database) releaseUploads(ctx context.Context, tx *sql.Tx, ids []string, now time.Time) error {
	expires := now.Add(d.retention.Upload).Unix()
	for _, id := range ids {
		_, err := tx.ExecContext(ctx, `
			UPDATE uploads SET
				ref_count = MAX(ref_count - 1, 0),
				expires_at = CASE WHEN ref_count <= 1 THEN ? ELSE expires_at END
			WHERE id = ?`,
			expires, id,
		)
		if err != nil {
			return fmt.Errorf("release upload %s: %w", id, err)
		}
	}
	return nil
}

// RequeueProcessing returns jobs left in processing by an unclean shutdown to
// the pending state.
func (d *Database) RequeueProcessing(ctx context.Context) (int, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("requeue_processing", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := d.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, started_at = NULL, progress = 0 WHERE status = ?`,
		StatusPending, StatusProcessing,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// DeleteExpiredJobs removes finished jobs whose expiry has passed and returns
// the deleted records so their result files can be removed.
func (d *Database) DeleteExpiredJobs(ctx context.Context, now time.Time) ([]Job, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_expired_jobs", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status IN (?, ?, ?) AND expires_at IS NOT NULL AND expires_at <= ?`,
		StatusCompleted, StatusFailed, StatusCanceled, now.Unix(),
	)
	if err != nil {
		return nil, err
	}

	var expired []Job
	for rows.Next() {
		var j *Job
		j, err = scanJob(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		expired = append(expired, *j)
	}
	if err = rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for _, j := range expired {
		if _, err = tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, j.ID); err != nil {
			return nil, err
		}
	}

	err = tx.Commit()
	return expired, err
}

// JobStats returns job counts by status.
func (d *Database) JobStats(ctx context.Context) (JobStats, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("job_stats", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var stats JobStats
	rows, err := d.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return stats, err
	}
	defer rows.Close()

	for rows.Next() {
		var status JobStatus
		var n int
		if err = rows.Scan(&status, &n); err != nil {
			return stats, err
		}
		switch status {
		case StatusPending:
			stats.Pending = n
		case StatusProcessing:
			stats.Processing = n
		case StatusCompleted:
			stats.Completed = n
		case StatusFailed:
			stats.Failed = n
		case StatusCanceled:
			stats.Canceled = n
		}
		stats.Total += n
	}
	err = rows.Err()
	return stats, err
}

// GetStats implements metrics.StatsProvider.
func (d *Database) GetStats() metrics.Stats {
	d.UpdateDBMetrics()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	js, err := d.JobStats(ctx)
	if err != nil {
		return metrics.Stats{}
	}

	var uploads int
	d.mu.RLock()
	err = d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM uploads`).Scan(&uploads)
	d.mu.RUnlock()
	if err != nil {
		uploads = 0
	}

	return metrics.Stats{
		PendingJobs:    js.Pending,
		ProcessingJobs: js.Processing,
		CompletedJobs:  js.Completed,
		FailedJobs:     js.Failed,
		CanceledJobs:   js.Canceled,
		Uploads:        uploads,
	}
}
