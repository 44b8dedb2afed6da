package filesystem

// Observer receives filesystem operation metrics. The metrics package
// provides the Prometheus implementation; filesystem cannot import it
// directly without a cycle.
type Observer interface {
	// ObserveOperation records the duration and outcome of one operation on
	// a volume. operation is one of "stat", "open", "write", "remove".
	ObserveOperation(volume, operation string, durationSeconds float64, err error)

	ObserveRetryAttempt(retryOp, volume string)
	ObserveRetrySuccess(retryOp, volume string)
	ObserveRetryFailure(retryOp, volume string)
	ObserveRetryDuration(retryOp, volume string, durationSeconds float64)
	ObserveStaleError(retryOp, volume string)
}

// defaultObserver is nil in tests, which disables recording.
var defaultObserver Observer

// SetObserver installs the package-level observer. Call once at startup.
func SetObserver(o Observer) {
	defaultObserver = o
}

func observe() Observer {
	return defaultObserver
}
