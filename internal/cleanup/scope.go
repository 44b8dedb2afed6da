package cleanup

import (
	"context"
	"path/filepath"
	"sync"

	"ffmpeg-api/internal/filesystem"
	"ffmpeg-api/internal/logging"
	"ffmpeg-api/internal/metrics"
)

// Scope collects the temporary files of one unit of work so they can be
// removed together. The zero value is not usable; call NewScope.
type Scope struct {
	mu       sync.Mutex
	paths    []string
	hooks    []func()
	released bool
	retry    filesystem.RetryConfig
}

// live counts the scopes currently tracking each path.
var live = struct {
	sync.Mutex
	paths map[string]int
}{paths: make(map[string]int)}

func liveKey(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

func markLive(paths []string, delta int) {
	live.Lock()
	defer live.Unlock()
	for _, p := range paths {
		k := liveKey(p)
		if n := live.paths[k] + delta; n > 0 {
			live.paths[k] = n
		} else {
			delete(live.paths, k)
		}
	}
}

// InUse reports whether an unreleased scope tracks path. It matches the
// Target.Skip signature so sweeps leave files of running work alone.
func InUse(_ context.Context, path string) bool {
	live.Lock()
	defer live.Unlock()
	return live.paths[liveKey(path)] > 0
}

// NewScope returns an empty scope.
func NewScope() *Scope {
	return &Scope{retry: filesystem.DefaultRetryConfig()}
}

// Track registers paths for removal. Paths added after Release are removed
// immediately.
func (s *Scope) Track(paths ...string) {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		for _, p := range paths {
			s.remove(p)
		}
		return
	}
	s.paths = append(s.paths, paths...)
	s.mu.Unlock()
	markLive(paths, 1)
}

// Path builds dir/{id}_{suffix} and registers it.
func (s *Scope) Path(dir, id, suffix string) string {
	p := filepath.Join(dir, id+"_"+suffix)
	s.Track(p)
	return p
}

// OnRelease registers fn to run when the scope is released, after the
// tracked files are removed.
func (s *Scope) OnRelease(fn func()) {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		fn()
		return
	}
	s.hooks = append(s.hooks, fn)
	s.mu.Unlock()
}

// Keep stops tracking path so Release leaves it in place.
func (s *Scope) Keep(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.paths {
		if p == path {
			s.paths = append(s.paths[:i], s.paths[i+1:]...)
			markLive([]string{p}, -1)
			return
		}
	}
}

// Release removes every tracked file and runs the release hooks. It returns
// the number of files removed and is safe to call more than once.
func (s *Scope) Release() int {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return 0
	}
	s.released = true
	paths, hooks := s.paths, s.hooks
	s.paths, s.hooks = nil, nil
	s.mu.Unlock()
	defer markLive(paths, -1)

	removed := 0
	for _, p := range paths {
		if s.remove(p) {
			removed++
		}
	}
	for _, fn := range hooks {
		fn()
	}

	if removed > 0 {
		metrics.ScopedFilesReleased.Add(float64(removed))
		logging.Debug("Released %d temporary file(s)", removed)
	}
	return removed
}

// remove deletes p and reports whether a file was actually removed.
func (s *Scope) remove(p string) bool {
	info, err := filesystem.StatWithRetry(p, s.retry)
	if err != nil {
		return false
	}
	if info.IsDir() {
		return false
	}
	if err := filesystem.RemoveWithRetry(p, s.retry); err != nil {
		logging.Warn("Failed to remove temporary file %s: %v", p, err)
		metrics.CleanupErrors.WithLabelValues("scope").Inc()
		return false
	}
	return true
}
