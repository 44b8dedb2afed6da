package ffmpeg

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func requireBinaries(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found, skipping integration test")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not found, skipping integration test")
	}
}

// generate runs ffmpeg with lavfi sources to build a test input.
func generate(t *testing.T, path string, args ...string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	full := append([]string{"-hide_banner", "-loglevel", "error"}, args...)
	full = append(full, "-y", path)
	if out, err := exec.CommandContext(ctx, "ffmpeg", full...).CombinedOutput(); err != nil {
		t.Skipf("could not generate %s: %v: %s", filepath.Base(path), err, out)
	}
}

func tone(t *testing.T, path string, seconds string) {
	t.Helper()
	generate(t, path, "-f", "lavfi", "-i", "sine=frequency=440:sample_rate=44100:duration="+seconds, "-c:a", "pcm_s16le")
}

// encoders returns the output of "ffmpeg -encoders" for availability checks.
func encoders(t *testing.T) string {
	t.Helper()
	out, err := exec.Command("ffmpeg", "-hide_banner", "-encoders").Output()
	if err != nil {
		t.Skipf("listing encoders: %v", err)
	}
	return string(out)
}

func probeDuration(t *testing.T, r *Runner, path string) float64 {
	t.Helper()
	res, err := r.Probe(context.Background(), path)
	if err != nil {
		t.Fatalf("Probe(%s) error = %v", filepath.Base(path), err)
	}
	return res.DurationSeconds()
}

func assertNonEmpty(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("output missing: %v", err)
	}
	if info.Size() == 0 {
		t.Fatalf("output %s is empty", filepath.Base(path))
	}
}

func TestIntegrationConcatDuration(t *testing.T) {
	requireBinaries(t)
	dir := t.TempDir()
	r := NewRunner(Config{Timeout: time.Minute})

	a := filepath.Join(dir, "a.wav")
	b := filepath.Join(dir, "b.wav")
	tone(t, a, "1")
	tone(t, b, "2")

	out := filepath.Join(dir, "merged.wav")
	err := r.Run(context.Background(), Request{
		Op:       OpConcatAudio,
		Inputs:   []string{a, b},
		Output:   out,
		ListFile: filepath.Join(dir, "concat.tmp"),
	})
	if err != nil {
		t.Fatalf("Run(concat) error = %v", err)
	}
	assertNonEmpty(t, out)

	sum := probeDuration(t, r, a) + probeDuration(t, r, b)
	got := probeDuration(t, r, out)
	// Container durations are rounded to the microsecond.
	if got < sum-0.001 {
		t.Errorf("merged duration = %.3fs, want >= %.3fs", got, sum)
	}
}

func TestIntegrationMetadataRejectsText(t *testing.T) {
	requireBinaries(t)
	dir := t.TempDir()
	notes := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(notes, []byte("these are not the frames you are looking for\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := NewRunner(Config{}).Probe(context.Background(), notes)
	if !errors.Is(err, ErrInvalidMedia) {
		t.Fatalf("Probe(text) error = %v, want ErrInvalidMedia", err)
	}
}

func TestIntegrationOperations(t *testing.T) {
	requireBinaries(t)
	dir := t.TempDir()
	r := NewRunner(Config{Timeout: 2 * time.Minute})
	available := encoders(t)

	song := filepath.Join(dir, "song.wav")
	tone(t, song, "3")

	clip := filepath.Join(dir, "clip.mkv")
	generate(t, clip,
		"-f", "lavfi", "-i", "testsrc=size=160x120:rate=10:duration=2",
		"-f", "lavfi", "-i", "sine=frequency=220:duration=2",
		"-c:v", "mpeg4", "-c:a", "pcm_s16le", "-shortest")

	tests := []struct {
		name     string
		op       Operation
		input    string
		params   Params
		encoders []string
	}{
		{"extract audio", OpExtractAudio, clip, Params{}, []string{"libmp3lame"}},
		{"compress", OpCompress, clip, Params{MaxThreads: 1}, []string{"libx264", "aac"}},
		{"convert mp4", OpConvertMP4, clip, Params{MaxThreads: 1}, []string{"libx264", "aac"}},
		{"cut audio", OpCutAudio, song, Params{Start: "00:00:00.5", End: "00:00:01.5"}, nil},
		{"capture frame", OpCaptureFrame, clip, Params{Timestamp: "00:00:01"}, []string{"libwebp"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, enc := range tt.encoders {
				if !strings.Contains(available, " "+enc+" ") {
					t.Skipf("ffmpeg built without %s", enc)
				}
			}

			out := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "_")+"."+tt.op.OutputExt(tt.input))
			err := r.Run(context.Background(), Request{
				Op:     tt.op,
				Inputs: []string{tt.input},
				Output: out,
				Params: tt.params,
			})
			if err != nil {
				t.Fatalf("Run(%s) error = %v", tt.op, err)
			}
			assertNonEmpty(t, out)
		})
	}

	t.Run("metadata", func(t *testing.T) {
		res, err := r.Probe(context.Background(), clip)
		if err != nil {
			t.Fatalf("Probe() error = %v", err)
		}
		if len(res.Streams) != 2 {
			t.Errorf("streams = %d, want video and audio", len(res.Streams))
		}
		if d := res.DurationSeconds(); d <= 0 {
			t.Errorf("duration = %v, want > 0", d)
		}
	})
}
