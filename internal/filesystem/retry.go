package filesystem

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"ffmpeg-api/internal/logging"
)

// VolumeResolver maps file paths to data volume names ("uploads", "results",
// "temp", "database") for metric labels. The longest matching prefix wins.
type VolumeResolver struct {
	mounts []volumeMount // longest path first
}

type volumeMount struct {
	prefix string // absolute, with trailing slash
	name   string
}

// NewVolumeResolver builds a resolver from volume name → directory.
func NewVolumeResolver(volumes map[string]string) *VolumeResolver {
	mounts := make([]volumeMount, 0, len(volumes))
	for name, dir := range volumes {
		abs, err := filepath.Abs(dir)
		if err != nil {
			abs = dir
		}
		mounts = append(mounts, volumeMount{prefix: strings.TrimSuffix(abs, "/") + "/", name: name})
	}

	sort.Slice(mounts, func(i, j int) bool {
		return len(mounts[i].prefix) > len(mounts[j].prefix)
	})

	return &VolumeResolver{mounts: mounts}
}

// Resolve returns the volume containing path, or "unknown".
func (vr *VolumeResolver) Resolve(path string) string {
	if vr == nil {
		return "unknown"
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "unknown"
	}

	for _, m := range vr.mounts {
		if strings.HasPrefix(abs+"/", m.prefix) {
			return m.name
		}
	}
	return "unknown"
}

var defaultResolver *VolumeResolver

// SetDefaultVolumeResolver installs the resolver used when a RetryConfig
// does not carry its own.
func SetDefaultVolumeResolver(vr *VolumeResolver) {
	defaultResolver = vr
}

// RetryConfig controls how stale file handle errors are retried.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// VolumeResolver overrides the package-level resolver.
	VolumeResolver *VolumeResolver
}

// DefaultRetryConfig returns 3 retries with 50ms backoff doubling up to 500ms.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}
}

func (c *RetryConfig) resolveVolume(path string) string {
	if c.VolumeResolver != nil {
		return c.VolumeResolver.Resolve(path)
	}
	return defaultResolver.Resolve(path)
}

// isStaleHandle reports whether err is ESTALE, which network filesystems
// return transiently when a handle is invalidated on the server.
func isStaleHandle(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.ESTALE
	}
	return false
}

// withRetry runs fn until it succeeds, fails with a non-ESTALE error, or
// exhausts the retry budget.
func withRetry(op, path string, config RetryConfig, fn func() error) error {
	start := time.Now()
	volume := config.resolveVolume(path)
	obs := observe()
	backoff := config.InitialBackoff

	finish := func(err error) error {
		elapsed := time.Since(start).Seconds()
		if obs != nil {
			obs.ObserveOperation(volume, op, elapsed, err)
			obs.ObserveRetryDuration(op, volume, elapsed)
		}
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 0 {
				logging.Info("%s succeeded on retry %d for %s", op, attempt, path)
				if obs != nil {
					obs.ObserveRetrySuccess(op, volume)
				}
			}
			return finish(nil)
		}

		lastErr = err
		if !isStaleHandle(err) {
			return finish(err)
		}
		if obs != nil {
			obs.ObserveStaleError(op, volume)
		}

		if attempt < config.MaxRetries {
			if obs != nil {
				obs.ObserveRetryAttempt(op, volume)
			}
			logging.Debug("%s stale file handle for %s, retrying in %v (attempt %d/%d)",
				op, path, backoff, attempt+1, config.MaxRetries)
			time.Sleep(backoff)

			backoff *= 2
			if backoff > config.MaxBackoff {
				backoff = config.MaxBackoff
			}
		}
	}

	logging.Warn("%s failed after %d retries for %s: %v", op, config.MaxRetries, path, lastErr)
	if obs != nil {
		obs.ObserveRetryFailure(op, volume)
	}
	return finish(lastErr)
}

// StatWithRetry is os.Stat with ESTALE retries.
func StatWithRetry(path string, config RetryConfig) (os.FileInfo, error) {
	var info os.FileInfo
	err := withRetry("stat", path, config, func() error {
		var err error
		info, err = os.Stat(path)
		return err
	})
	return info, err
}

// OpenWithRetry is os.Open with ESTALE retries.
func OpenWithRetry(path string, config RetryConfig) (*os.File, error) {
	var f *os.File
	err := withRetry("open", path, config, func() error {
		var err error
		f, err = os.Open(path)
		return err
	})
	return f, err
}

// CreateWithRetry creates (or truncates) path for writing with ESTALE retries.
func CreateWithRetry(path string, config RetryConfig) (*os.File, error) {
	var f *os.File
	err := withRetry("write", path, config, func() error {
		var err error
		f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
		return err
	})
	return f, err
}

// RemoveWithRetry deletes path with ESTALE retries. A missing file is not an
// error.
func RemoveWithRetry(path string, config RetryConfig) error {
	return withRetry("remove", path, config, func() error {
		err := os.Remove(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	})
}

// DirSize sums the sizes of the regular files directly under dir.
func DirSize(dir string) (files int, bytes int64, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, 0, err
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files++
		bytes += info.Size()
	}
	return files, bytes, nil
}
