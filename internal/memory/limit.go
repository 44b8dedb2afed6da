package memory

import (
	"math"
	"os"
	"runtime/debug"
	"strconv"

	"ffmpeg-api/internal/logging"
)

// DefaultRatio is the share of the container limit given to the Go heap.
// The rest is left for ffmpeg and ffprobe children, which run outside it.
const DefaultRatio = 0.5

// LimitResult reports how GOMEMLIMIT was configured.
type LimitResult struct {
	// Source is "GOMEMLIMIT", "MEMORY_LIMIT" or "none".
	Source         string
	ContainerLimit int64
	GoMemLimit     int64
	Ratio          float64
}

// Configured reports whether a Go memory limit is in effect.
func (r LimitResult) Configured() bool {
	return r.GoMemLimit > 0
}

// ConfigureLimit sets the Go soft memory limit to ratio × containerLimit.
// An explicit GOMEMLIMIT in the environment always wins; a zero
// containerLimit leaves the runtime default. Ratios outside (0, 1] fall
// back to DefaultRatio.
func ConfigureLimit(containerLimit int64, ratio float64) LimitResult {
	if env := os.Getenv("GOMEMLIMIT"); env != "" {
		res := LimitResult{Source: "GOMEMLIMIT"}
		if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
			res.GoMemLimit = limit
		}
		logging.Info("  GOMEMLIMIT set via environment: %s", env)
		return res
	}

	if containerLimit <= 0 {
		logging.Debug("  MEMORY_LIMIT not set, GOMEMLIMIT left at runtime default")
		return LimitResult{Source: "none"}
	}

	if ratio <= 0 || ratio > 1 {
		if ratio != 0 {
			logging.Warn("  MEMORY_RATIO %.2f out of range (0.0-1.0], using %.2f", ratio, DefaultRatio)
		}
		ratio = DefaultRatio
	}

	limit := int64(float64(containerLimit) * ratio)
	debug.SetMemoryLimit(limit)

	logging.Info("  GOMEMLIMIT: %s (%.0f%% of %s container limit)",
		FormatBytes(limit), ratio*100, FormatBytes(containerLimit))

	return LimitResult{
		Source:         "MEMORY_LIMIT",
		ContainerLimit: containerLimit,
		GoMemLimit:     limit,
		Ratio:          ratio,
	}
}

// FormatBytes renders b with binary units, e.g. "1.5 GiB".
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return strconv.FormatInt(b, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return strconv.FormatFloat(float64(b)/float64(div), 'f', 1, 64) + " " + string("KMGTPE"[exp]) + "iB"
}
