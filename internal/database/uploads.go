package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const uploadColumns = `id, filename, file_path, size, uploaded_at, ref_count, expires_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUpload(row rowScanner) (*Upload, error) {
	var u Upload
	var uploadedAt int64
	var expiresAt sql.NullInt64

	if err := row.Scan(&u.ID, &u.Filename, &u.FilePath, &u.Size, &uploadedAt, &u.RefCount, &expiresAt); err != nil {
		return nil, err
	}

	u.UploadedAt = time.Unix(uploadedAt, 0)
	u.ExpiresAt = nullTime(expiresAt)
	return &u, nil
}

func nullTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0)
	return &t
}

// CreateUpload stores a new upload record. The upload starts unreferenced and
// expires after the upload retention unless a job picks it up.
func (d *Database) CreateUpload(ctx context.Context, u *Upload) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("create_upload", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	now := d.now()
	expires := now.Add(d.retention.Upload)
	u.UploadedAt = time.Unix(now.Unix(), 0)
	u.RefCount = 0
	u.ExpiresAt = &expires

	_, err = d.db.ExecContext(ctx,
		`INSERT INTO uploads (`+uploadColumns+`) VALUES (?, ?, ?, ?, ?, 0, ?)`,
		u.ID, u.Filename, u.FilePath, u.Size, now.Unix(), expires.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert upload: %w", err)
	}
	return nil
}

// GetUpload returns the upload with the given id.
func (d *Database) GetUpload(ctx context.Context, id string) (*Upload, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_upload", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var u *Upload
	u, err = scanUpload(d.db.QueryRowContext(ctx, `SELECT `+uploadColumns+` FROM uploads WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
		return nil, ErrNotFound
	}
	return u, err
}

// ListUploads returns all uploads, newest first.
func (d *Database) ListUploads(ctx context.Context) ([]Upload, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_uploads", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `SELECT `+uploadColumns+` FROM uploads ORDER BY uploaded_at DESC, rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	uploads := []Upload{}
	for rows.Next() {
		var u *Upload
		u, err = scanUpload(rows)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, *u)
	}
	err = rows.Err()
	return uploads, err
}

// DeleteUpload removes an unreferenced upload record and returns it so the
// caller can remove the file. Uploads still referenced by jobs return ErrInUse.
func (d *Database) DeleteUpload(ctx context.Context, id string) (*Upload, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_upload", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var u *Upload
	u, err = scanUpload(d.db.QueryRowContext(ctx, `SELECT `+uploadColumns+` FROM uploads WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if u.RefCount > 0 {
		return u, ErrInUse
	}

	_, err = d.db.ExecContext(ctx, `DELETE FROM uploads WHERE id = ? AND ref_count = 0`, id)
	return u, err
}

// DeleteExpiredUploads removes unreferenced uploads whose expiry has passed and
// returns the deleted records.
func (d *Database) DeleteExpiredUploads(ctx context.Context, now time.Time) ([]Upload, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_expired_uploads", start, err) }()

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
		`SELECT `+uploadColumns+` FROM uploads WHERE ref_count = 0 AND expires_at IS NOT NULL AND expires_at <= ?`,
		now.Unix(),
	)
	if err != nil {
		return nil, err
	}

	var expired []Upload
	for rows.Next() {
		var u *Upload
		u, err = scanUpload(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		expired = append(expired, *u)
	}
	if err = rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for _, u := range expired {
		if _, err = tx.ExecContext(ctx, `DELETE FROM uploads WHERE id = ?`, u.ID); err != nil {
			return nil, err
		}
	}

	err = tx.Commit()
	return expired, err
}

// HasUploadFile reports whether an upload record still owns the file at path.
func (d *Database) HasUploadFile(ctx context.Context, path string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var n int
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM uploads WHERE file_path = ?`, path).Scan(&n)
	return n > 0, err
}
