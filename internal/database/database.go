package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"ffmpeg-api/internal/logging"
	"ffmpeg-api/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// Database persists uploads and jobs.
type Database struct {
	db        *sql.DB
	dbPath    string
	mu        sync.RWMutex
	retention Retention
	now       func() time.Time
}

// New creates a new Database instance.
// dbPath is the full path to the database FILE (e.g., "/disk/db/ffmpeg-api.db"),
// and the parent directory must already exist and be writable.
func New(ctx context.Context, dbPath string, retention Retention) (*Database, error) {
	logging.Info("Database path: %s", dbPath)

	// Diagnose potential permission issues
	if err := diagnoseDatabasePermissions(dbPath); err != nil {
		logging.Warn("Database permission diagnostics: %v", err)
	}

	// busy_timeout helps prevent "database is locked" errors
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if retention == (Retention{}) {
		retention = DefaultRetention
	}

	d := &Database{
		db:        db,
		dbPath:    dbPath,
		retention: retention,
		now:       time.Now,
	}

	if err := d.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logging.Info("Database initialized successfully at %s", dbPath)
	return d, nil
}

func (d *Database) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS uploads (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		file_path TEXT NOT NULL UNIQUE,
		size INTEGER NOT NULL DEFAULT 0,
		uploaded_at INTEGER NOT NULL,
		ref_count INTEGER NOT NULL DEFAULT 0,
		expires_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_uploads_expires ON uploads(expires_at);

	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		priority INTEGER NOT NULL,
		upload_ids TEXT NOT NULL,
		input_files TEXT NOT NULL,
		original_filename TEXT NOT NULL DEFAULT '',
		file_size INTEGER NOT NULL DEFAULT 0,
		parameters TEXT NOT NULL DEFAULT '{}',
		output_file TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		progress INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		started_at INTEGER,
		completed_at INTEGER,
		expires_at INTEGER
	);

	-- Queue order: priority, then age
	CREATE INDEX IF NOT EXISTS idx_jobs_queue ON jobs(status, priority, created_at);
	CREATE INDEX IF NOT EXISTS idx_jobs_expires ON jobs(expires_at);
	`

	_, err := d.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// Checkpoint folds the WAL back into the main database file and truncates
// it. Its signature matches cleanup.Hook so it runs after each sweep, once
// expired records are gone.
func (d *Database) Checkpoint(ctx context.Context, _ time.Time) (int, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("checkpoint", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	_, err = d.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	return 0, err
}

// Ping verifies the database is reachable.
func (d *Database) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	return d.db.PingContext(ctx)
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.dbPath
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}

// UpdateDBMetrics updates database connection metrics
func (d *Database) UpdateDBMetrics() {
	stats := d.db.Stats()
	metrics.DBConnectionsOpen.Set(float64(stats.OpenConnections))
}

// diagnoseDatabasePermissions checks that the database directory is
// writable and that existing database files are not read-only. A read-only
// WAL or SHM file makes every write fail, so those are chmodded back.
func diagnoseDatabasePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)
	probe := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(probe, nil, 0o600); err != nil {
		return fmt.Errorf("database directory not writable: %w", err)
	}
	_ = os.Remove(probe)

	for _, f := range []struct {
		path   string
		repair bool
	}{
		{dbPath, false},
		{dbPath + "-wal", true},
		{dbPath + "-shm", true},
	} {
		info, err := os.Stat(f.path)
		if err != nil || info.Mode().Perm()&0o200 != 0 {
			continue
		}
		logging.Warn("%s is read-only (mode %v)", filepath.Base(f.path), info.Mode())
		if !f.repair {
			continue
		}
		if err := os.Chmod(f.path, 0o600); err != nil {
			logging.Error("Failed to fix permissions on %s: %v", f.path, err)
		} else {
			logging.Info("Fixed permissions on %s", filepath.Base(f.path))
		}
	}
	return nil
}
