package streaming

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// slowWriter blocks every Write until release is closed.
type slowWriter struct {
	header  http.Header
	release chan struct{}
}

func (s *slowWriter) Header() http.Header { return s.header }
func (s *slowWriter) WriteHeader(int)     {}
func (s *slowWriter) Write(p []byte) (int, error) {
	<-s.release
	return len(p), nil
}

// flushCounter records flushes alongside the body.
type flushCounter struct {
	*httptest.ResponseRecorder
	mu      sync.Mutex
	flushes int
}

func (f *flushCounter) Flush() {
	f.mu.Lock()
	f.flushes++
	f.mu.Unlock()
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	if c.WriteTimeout <= 0 || c.IdleTimeout <= 0 || c.ChunkSize <= 0 {
		t.Errorf("DefaultConfig() = %+v, want all positive", c)
	}
}

func TestTimeoutWriterWrite(t *testing.T) {
	rec := httptest.NewRecorder()
	tw := NewTimeoutWriter(context.Background(), rec, Config{WriteTimeout: time.Second})
	defer tw.Close()

	n, err := tw.Write([]byte("hello"))
	if err != nil || n != 5 {
		t.Fatalf("Write = %d, %v", n, err)
	}
	if rec.Body.String() != "hello" {
		t.Errorf("body = %q", rec.Body.String())
	}
	written, _ := tw.Stats()
	if written != 5 {
		t.Errorf("Stats written = %d, want 5", written)
	}
}

func TestTimeoutWriterChunking(t *testing.T) {
	fc := &flushCounter{ResponseRecorder: httptest.NewRecorder()}
	tw := NewTimeoutWriter(context.Background(), fc, Config{ChunkSize: 4})
	defer tw.Close()

	data := []byte("0123456789")
	n, err := tw.Write(data)
	if err != nil || n != len(data) {
		t.Fatalf("Write = %d, %v", n, err)
	}
	if !bytes.Equal(fc.Body.Bytes(), data) {
		t.Errorf("body = %q", fc.Body.String())
	}
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.flushes != 3 {
		t.Errorf("flushes = %d, want 3", fc.flushes)
	}
}

func TestTimeoutWriterWriteTimeout(t *testing.T) {
	sw := &slowWriter{header: http.Header{}, release: make(chan struct{})}
	defer close(sw.release)

	tw := NewTimeoutWriter(context.Background(), sw, Config{WriteTimeout: 20 * time.Millisecond})
	defer tw.Close()

	if _, err := tw.Write([]byte("x")); !errors.Is(err, ErrWriteTimeout) {
		t.Errorf("err = %v, want ErrWriteTimeout", err)
	}
}

func TestTimeoutWriterClientGone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tw := NewTimeoutWriter(ctx, httptest.NewRecorder(), Config{WriteTimeout: time.Second})
	defer tw.Close()

	cancel()
	if _, err := tw.Write([]byte("x")); !errors.Is(err, ErrClientGone) {
		t.Errorf("err = %v, want ErrClientGone", err)
	}
}

func TestTimeoutWriterClosed(t *testing.T) {
	tw := NewTimeoutWriter(context.Background(), httptest.NewRecorder(), Config{})
	if err := tw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if _, err := tw.Write([]byte("x")); !errors.Is(err, ErrStreamCanceled) {
		t.Errorf("err = %v, want ErrStreamCanceled", err)
	}
}

func TestTimeoutWriterIdle(t *testing.T) {
	tw := NewTimeoutWriter(context.Background(), httptest.NewRecorder(), Config{IdleTimeout: 20 * time.Millisecond})
	defer tw.Close()

	time.Sleep(100 * time.Millisecond)
	if _, err := tw.Write([]byte("x")); !errors.Is(err, ErrStreamCanceled) {
		t.Errorf("err = %v, want ErrStreamCanceled", err)
	}
}

func TestSendFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.mp3")
	body := strings.Repeat("a", 1000)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	err := SendFile(context.Background(), rec, Attachment{
		Path:        path,
		ContentType: "audio/mpeg",
		Filename:    "audio_song.mp3",
	}, Config{WriteTimeout: time.Second, ChunkSize: 128})
	if err != nil {
		t.Fatalf("SendFile failed: %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	h := rec.Header()
	if got := h.Get("Content-Type"); got != "audio/mpeg" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := h.Get("Content-Length"); got != "1000" {
		t.Errorf("Content-Length = %q", got)
	}
	if got := h.Get("Content-Disposition"); got != "attachment; filename=audio_song.mp3" {
		t.Errorf("Content-Disposition = %q", got)
	}
	if h.Get("Transfer-Encoding") != "" {
		t.Error("Transfer-Encoding must not be set with Content-Length")
	}
	if rec.Body.String() != body {
		t.Errorf("body length = %d, want 1000", rec.Body.Len())
	}
}

func TestSendFileMissing(t *testing.T) {
	rec := httptest.NewRecorder()
	err := SendFile(context.Background(), rec, Attachment{
		Path:        filepath.Join(t.TempDir(), "nope"),
		ContentType: "video/mp4",
		Filename:    "x.mp4",
	}, DefaultConfig())
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want ErrNotExist", err)
	}
	if rec.Header().Get("Content-Type") != "" {
		t.Error("headers should not be written for a missing file")
	}
}

func TestContentDisposition(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     string
	}{
		{"plain", "clip.mp4", "attachment; filename=clip.mp4"},
		{"spaces", "my clip.mp4", `attachment; filename="my clip.mp4"`},
		{"empty", "", "attachment; filename=download"},
		{"unicode", "canción.mp3", "attachment; filename*=utf-8''canci%C3%B3n.mp3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ContentDisposition(tt.filename); got != tt.want {
				t.Errorf("ContentDisposition(%q) = %q, want %q", tt.filename, got, tt.want)
			}
		})
	}
}
