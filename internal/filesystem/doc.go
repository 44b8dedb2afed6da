/*
Package filesystem wraps the os calls used on the data directories with
retries for ESTALE (stale file handle) errors.

The uploads, results and temp directories are often mounted from network
storage in container deployments. A stale handle there is transient, so
StatWithRetry, OpenWithRetry, CreateWithRetry and RemoveWithRetry retry it
with exponential backoff (3 retries, 50ms doubling to 500ms by default).
Every other error is returned immediately.

	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
	    return err
	}
	defer f.Close()

Operations are labeled by volume for metrics. Install a resolver and an
observer once at startup:

	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(map[string]string{
	    "uploads":  cfg.UploadsDir,
	    "results":  cfg.ResultsDir,
	    "temp":     cfg.TempDir,
	    "database": cfg.DatabaseDir,
	}))
	filesystem.SetObserver(metrics.NewFilesystemObserver())
*/
package filesystem
