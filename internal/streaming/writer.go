package streaming

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"ffmpeg-api/internal/logging"
)

// Sentinel errors for streaming operations.
var (
	// ErrWriteTimeout indicates that a single write exceeded WriteTimeout,
	// typically because the client is reading too slowly.
	ErrWriteTimeout = errors.New("write timeout exceeded")

	// ErrClientGone indicates that the request context was canceled before
	// the body was fully written.
	ErrClientGone = errors.New("client disconnected")

	// ErrStreamCanceled indicates that the writer was closed or timed out
	// while idle.
	ErrStreamCanceled = errors.New("stream canceled")
)

// Config configures a TimeoutWriter.
type Config struct {
	// WriteTimeout bounds a single write to the client.
	WriteTimeout time.Duration
	// IdleTimeout bounds the time between successful writes (0 disables).
	IdleTimeout time.Duration
	// ChunkSize splits large writes and flushes after each chunk (0 disables).
	ChunkSize int
}

// DefaultConfig returns the settings used for result downloads.
func DefaultConfig() Config {
	return Config{
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		ChunkSize:    64 * 1024,
	}
}

// TimeoutWriter wraps an http.ResponseWriter so a stalled or vanished client
// cannot hold the handler goroutine indefinitely.
type TimeoutWriter struct {
	w       http.ResponseWriter
	ctx     context.Context
	cancel  context.CancelFunc
	config  Config
	flusher http.Flusher

	mu        sync.Mutex
	started   time.Time
	lastWrite time.Time
	written   int64
	closed    bool
}

// NewTimeoutWriter creates a writer bound to ctx, usually the request context.
func NewTimeoutWriter(ctx context.Context, w http.ResponseWriter, config Config) *TimeoutWriter {
	wctx, cancel := context.WithCancel(ctx)
	now := time.Now()

	tw := &TimeoutWriter{
		w:         w,
		ctx:       wctx,
		cancel:    cancel,
		config:    config,
		started:   now,
		lastWrite: now,
	}
	if f, ok := w.(http.Flusher); ok {
		tw.flusher = f
	}

	if config.IdleTimeout > 0 {
		go tw.watchIdle()
	}
	return tw
}

// Write implements io.Writer.
func (tw *TimeoutWriter) Write(p []byte) (int, error) {
	tw.mu.Lock()
	closed := tw.closed
	tw.mu.Unlock()
	if closed {
		return 0, ErrStreamCanceled
	}

	chunk := tw.config.ChunkSize
	if chunk <= 0 || len(p) <= chunk {
		return tw.writeOnce(p)
	}

	total := 0
	for len(p) > 0 {
		n := min(chunk, len(p))
		written, err := tw.writeOnce(p[:n])
		total += written
		if err != nil {
			return total, err
		}
		p = p[n:]
		if tw.flusher != nil {
			tw.flusher.Flush()
		}
	}
	return total, nil
}

func (tw *TimeoutWriter) writeOnce(p []byte) (int, error) {
	if err := tw.ctx.Err(); err != nil {
		return 0, tw.contextError()
	}
	if tw.config.WriteTimeout <= 0 {
		n, err := tw.w.Write(p)
		tw.record(n)
		return n, err
	}

	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := tw.w.Write(p)
		done <- result{n, err}
	}()

	timer := time.NewTimer(tw.config.WriteTimeout)
	defer timer.Stop()

	select {
	case res := <-done:
		tw.record(res.n)
		return res.n, res.err
	case <-timer.C:
		tw.cancel()
		return 0, ErrWriteTimeout
	case <-tw.ctx.Done():
		return 0, tw.contextError()
	}
}

func (tw *TimeoutWriter) record(n int) {
	if n <= 0 {
		return
	}
	tw.mu.Lock()
	tw.written += int64(n)
	tw.lastWrite = time.Now()
	tw.mu.Unlock()
}

func (tw *TimeoutWriter) watchIdle() {
	ticker := time.NewTicker(tw.config.IdleTimeout / 4)
	defer ticker.Stop()

	for {
		select {
		case <-tw.ctx.Done():
			return
		case <-ticker.C:
			tw.mu.Lock()
			idle := time.Since(tw.lastWrite)
			closed := tw.closed
			tw.mu.Unlock()

			if closed {
				return
			}
			if idle > tw.config.IdleTimeout {
				logging.Warn("Stream idle timeout exceeded: %v", idle)
				tw.cancel()
				return
			}
		}
	}
}

// contextError distinguishes a departed client from a writer canceled by
// Close or the idle watchdog.
func (tw *TimeoutWriter) contextError() error {
	tw.mu.Lock()
	closed := tw.closed
	tw.mu.Unlock()
	if closed {
		return ErrStreamCanceled
	}
	if idle := time.Since(tw.lastWriteTime()); tw.config.IdleTimeout > 0 && idle > tw.config.IdleTimeout {
		return ErrStreamCanceled
	}
	return ErrClientGone
}

func (tw *TimeoutWriter) lastWriteTime() time.Time {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.lastWrite
}

// Close stops the idle watchdog. Further writes fail with ErrStreamCanceled.
func (tw *TimeoutWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.closed {
		return nil
	}
	tw.closed = true
	tw.cancel()
	return nil
}

// Stats returns bytes written and time since creation.
func (tw *TimeoutWriter) Stats() (bytesWritten int64, duration time.Duration) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.written, time.Since(tw.started)
}
