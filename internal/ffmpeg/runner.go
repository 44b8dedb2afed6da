package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"golang.org/x/sync/semaphore"

	"ffmpeg-api/internal/logging"
	"ffmpeg-api/internal/metrics"
)

const stderrTailBytes = 4 * 1024

var (
	// ErrProcessFailed matches every *ProcessError.
	ErrProcessFailed = errors.New("media processing failed")

	// ErrEmptyInput is returned when an input file is missing or has no content.
	ErrEmptyInput = errors.New("input file is missing or empty")

	// ErrNoOutput is returned when ffmpeg exits successfully without
	// producing a non-empty output file.
	ErrNoOutput = errors.New("ffmpeg produced no output")

	// ErrInvalidMedia is returned when ffprobe cannot identify any format or
	// stream in the input.
	ErrInvalidMedia = errors.New("input is not a recognizable media file")
)

// ProcessError describes a child process that exited unsuccessfully. The
// captured stderr is meant for logs; clients only see a generic message.
type ProcessError struct {
	Tool     string
	Op       Operation
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("%s %s failed (exit %d): %v", e.Tool, e.Op, e.ExitCode, e.Err)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrProcessFailed) true for every ProcessError.
func (e *ProcessError) Is(target error) bool { return target == ErrProcessFailed }

// Executor runs a binary to completion. stdout may be nil. The returned
// string is the tail of the process's stderr.
type Executor interface {
	Execute(ctx context.Context, name string, args []string, stdout io.Writer) (stderr string, err error)
}

// execExecutor is the os/exec backed Executor.
type execExecutor struct{}

func (execExecutor) Execute(ctx context.Context, name string, args []string, stdout io.Writer) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = nil
	if stdout != nil {
		cmd.Stdout = stdout
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	return tail(stderr.Bytes(), stderrTailBytes), err
}

func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return string(b)
}

// Config configures a Runner.
type Config struct {
	FFmpegPath  string
	FFprobePath string
	// Timeout bounds a single invocation (0 = no limit).
	Timeout time.Duration
	// MaxConcurrent bounds simultaneous child processes (0 = unlimited).
	MaxConcurrent int
	// Executor overrides process execution, mainly for tests.
	Executor Executor
}

// Runner executes media operations through ffmpeg and ffprobe.
type Runner struct {
	ffmpegPath  string
	ffprobePath string
	timeout     time.Duration
	exec        Executor
	sem         *semaphore.Weighted

	// stopCtx is canceled by Shutdown and kills every running child.
	stopCtx context.Context
	stop    context.CancelFunc
}

// NewRunner creates a Runner from cfg, filling in defaults.
func NewRunner(cfg Config) *Runner {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	if cfg.Executor == nil {
		cfg.Executor = execExecutor{}
	}

	stopCtx, stop := context.WithCancel(context.Background())
	r := &Runner{
		ffmpegPath:  cfg.FFmpegPath,
		ffprobePath: cfg.FFprobePath,
		timeout:     cfg.Timeout,
		exec:        cfg.Executor,
		stopCtx:     stopCtx,
		stop:        stop,
	}
	if cfg.MaxConcurrent > 0 {
		r.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrent))
	}
	return r
}

// Shutdown kills all running child processes and makes further calls fail.
func (r *Runner) Shutdown() {
	r.stop()
}

// Run executes a non-metadata operation and verifies that it produced output.
func (r *Runner) Run(ctx context.Context, req Request) error {
	args, err := BuildArgs(req)
	if err != nil {
		return err
	}
	if err := checkInputs(req.Inputs); err != nil {
		return err
	}

	if req.Op == OpConcatAudio {
		if err := writeConcatList(req.ListFile, req.Inputs); err != nil {
			return err
		}
	}

	if _, err := r.invoke(ctx, req.Op, r.ffmpegPath, args, nil); err != nil {
		return err
	}

	info, err := os.Stat(req.Output)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("%w: %s", ErrNoOutput, filepath.Base(req.Output))
	}
	return nil
}

// invoke runs one child process with the concurrency, timeout and shutdown
// controls applied, recording metrics for op.
func (r *Runner) invoke(ctx context.Context, op Operation, bin string, args []string, stdout io.Writer) (string, error) {
	if r.sem != nil {
		if err := r.sem.Acquire(ctx, 1); err != nil {
			return "", err
		}
		defer r.sem.Release(1)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if r.timeout > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, r.timeout)
		defer cancel()
	}
	stopAfter := context.AfterFunc(r.stopCtx, cancel)
	defer stopAfter()

	metrics.FFmpegProcessesInProgress.Inc()
	defer metrics.FFmpegProcessesInProgress.Dec()

	logging.Debug("Running %s %v", bin, args)
	start := time.Now()
	stderr, err := r.exec.Execute(runCtx, bin, args, stdout)
	duration := time.Since(start)
	metrics.FFmpegDuration.WithLabelValues(string(op)).Observe(duration.Seconds())

	if err == nil {
		metrics.FFmpegInvocationsTotal.WithLabelValues(string(op), "success").Inc()
		logging.Debug("%s %s finished in %v", filepath.Base(bin), op, duration)
		return stderr, nil
	}

	// The caller went away; not a processing failure.
	if ctx.Err() != nil {
		metrics.FFmpegInvocationsTotal.WithLabelValues(string(op), "canceled").Inc()
		return stderr, ctx.Err()
	}

	status := "error"
	cause := err
	switch {
	case r.stopCtx.Err() != nil:
		status = "canceled"
		cause = fmt.Errorf("runner shut down: %w", err)
	case runCtx.Err() == context.DeadlineExceeded:
		status = "timeout"
		cause = fmt.Errorf("timed out after %v: %w", r.timeout, context.DeadlineExceeded)
	}
	metrics.FFmpegInvocationsTotal.WithLabelValues(string(op), status).Inc()

	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	}

	logging.Error("%s %s failed (exit %d) after %v: %s", filepath.Base(bin), op, exitCode, duration, stderr)
	return stderr, &ProcessError{
		Tool:     filepath.Base(bin),
		Op:       op,
		ExitCode: exitCode,
		Stderr:   stderr,
		Err:      cause,
	}
}

func checkInputs(paths []string) error {
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrEmptyInput, filepath.Base(p))
		}
		if info.IsDir() || info.Size() == 0 {
			return fmt.Errorf("%w: %s", ErrEmptyInput, filepath.Base(p))
		}
	}
	return nil
}

// writeConcatList writes the concat demuxer list with absolute paths, since
// the demuxer resolves relative entries against the list file's directory.
func writeConcatList(listFile string, inputs []string) error {
	abs := make([]string, 0, len(inputs))
	for _, in := range inputs {
		p, err := filepath.Abs(in)
		if err != nil {
			return fmt.Errorf("failed to resolve concat input %s: %w", in, err)
		}
		abs = append(abs, p)
	}
	if err := os.WriteFile(listFile, []byte(ConcatList(abs)), 0o600); err != nil {
		return fmt.Errorf("failed to write concat list: %w", err)
	}
	return nil
}
