/*
Package workers sizes the job worker pool in containerized environments.

runtime.NumCPU() reports the host's CPUs, not the container's limit. Since Go
1.19 GOMAXPROCS follows cgroup CPU limits, so ForTranscode scales from
runtime.GOMAXPROCS(0) instead:

	// A pod limited to 8 CPUs on a 64-core node
	n := workers.ForTranscode(4) // 2

Each queued job spawns an ffmpeg child that is already multi-threaded
(-threads, default 4), so only a quarter of the CPUs get a worker.

Operators pin the count with JOB_WORKERS; see the startup package.
*/
package workers
