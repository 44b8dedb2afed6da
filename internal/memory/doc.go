// Package memory keeps the service inside its container memory budget.
//
// ffmpeg children allocate outside the Go heap, so two mechanisms are used:
//
//   - [ConfigureLimit] sets GOMEMLIMIT to a fraction of MEMORY_LIMIT
//     (typically injected through the Kubernetes Downward API). An explicit
//     GOMEMLIMIT always wins. The default ratio of 0.5 leaves half the
//     container for child processes.
//   - [Monitor] samples memory usage (host or container memory via
//     gopsutil) and pauses job workers between jobs while usage is critical.
//     Synchronous endpoints are not throttled.
//
// Example:
//
//	memory.ConfigureLimit(cfg.MemoryLimit, cfg.MemoryRatio)
//
//	mon := memory.NewMonitor(memory.DefaultMonitorConfig())
//	g.Go(func() error { return mon.Run(ctx) })
//
//	// in a worker, before claiming a job
//	if err := mon.Wait(ctx); err != nil {
//		return
//	}
package memory
