package metrics

// InitializeMetrics pre-populates the expected label combinations so that
// every series is exported from the first scrape. Call once at startup.
func InitializeMetrics(operations []string, volumes []string) {
	for _, op := range operations {
		for _, status := range []string{"success", "error", "timeout", "canceled"} {
			FFmpegInvocationsTotal.WithLabelValues(op, status)
		}
		FFmpegDuration.WithLabelValues(op)

		JobsSubmittedTotal.WithLabelValues(op)
		JobDuration.WithLabelValues(op)
		for _, status := range []string{"completed", "failed", "canceled"} {
			JobsFinishedTotal.WithLabelValues(op, status)
		}
	}

	for _, status := range []string{"pending", "processing", "completed", "failed", "canceled"} {
		JobsByStatus.WithLabelValues(status)
	}

	for _, status := range []string{"success", "error", "too_large"} {
		UploadsTotal.WithLabelValues(status)
	}

	for _, target := range []string{"uploads", "results", "temp", "jobs", "upload_records", "scope"} {
		CleanupFilesDeleted.WithLabelValues(target)
		CleanupBytesFreed.WithLabelValues(target)
		CleanupErrors.WithLabelValues(target)
	}

	for _, file := range []string{"main", "wal", "shm"} {
		DBSizeBytes.WithLabelValues(file)
	}

	for _, vol := range append(volumes, "unknown") {
		for _, op := range []string{"stat", "open", "write", "remove"} {
			FilesystemOperationDuration.WithLabelValues(vol, op)
			FilesystemOperationErrors.WithLabelValues(vol, op)
			FilesystemRetryAttempts.WithLabelValues(op, vol)
			FilesystemRetrySuccess.WithLabelValues(op, vol)
			FilesystemRetryFailures.WithLabelValues(op, vol)
			FilesystemStaleErrors.WithLabelValues(op, vol)
			FilesystemRetryDuration.WithLabelValues(op, vol)
		}
	}
}
