package workers

import "runtime"

// OverrideEnv names the setting that pins the job worker count. It is read
// by the startup configuration, which falls back to ForTranscode.
const OverrideEnv = "JOB_WORKERS"

// transcodeShare is the share of CPUs given one worker each. Every ffmpeg
// child already runs several encoder threads.
const transcodeShare = 0.25

// Count returns cpus × multiplier workers, at least one and at most limit
// (0 for no limit).
func Count(cpus int, multiplier float64, limit int) int {
	n := int(float64(cpus) * multiplier)
	if n < 1 {
		n = 1
	}
	if limit > 0 && n > limit {
		n = limit
	}
	return n
}

// ForTranscode returns the job worker count for queued ffmpeg operations:
// one worker per four CPUs available to the process. GOMAXPROCS follows
// container CPU limits, unlike runtime.NumCPU.
func ForTranscode(limit int) int {
	return Count(runtime.GOMAXPROCS(0), transcodeShare, limit)
}
