package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ProbeResult is the subset of ffprobe's JSON output returned to clients.
type ProbeResult struct {
	Format  Format   `json:"format"`
	Streams []Stream `json:"streams"`
}

// Format describes the container.
type Format struct {
	Filename       string            `json:"filename"`
	NbStreams      int               `json:"nb_streams"`
	FormatName     string            `json:"format_name"`
	FormatLongName string            `json:"format_long_name,omitempty"`
	StartTime      string            `json:"start_time,omitempty"`
	Duration       string            `json:"duration,omitempty"`
	Size           string            `json:"size,omitempty"`
	BitRate        string            `json:"bit_rate,omitempty"`
	ProbeScore     int               `json:"probe_score,omitempty"`
	Tags           map[string]string `json:"tags,omitempty"`
}

// Stream describes one elementary stream.
type Stream struct {
	Index         int               `json:"index"`
	CodecName     string            `json:"codec_name,omitempty"`
	CodecLongName string            `json:"codec_long_name,omitempty"`
	CodecType     string            `json:"codec_type"`
	Profile       string            `json:"profile,omitempty"`
	Width         int               `json:"width,omitempty"`
	Height        int               `json:"height,omitempty"`
	PixFmt        string            `json:"pix_fmt,omitempty"`
	SampleRate    string            `json:"sample_rate,omitempty"`
	Channels      int               `json:"channels,omitempty"`
	ChannelLayout string            `json:"channel_layout,omitempty"`
	RFrameRate    string            `json:"r_frame_rate,omitempty"`
	AvgFrameRate  string            `json:"avg_frame_rate,omitempty"`
	Duration      string            `json:"duration,omitempty"`
	BitRate       string            `json:"bit_rate,omitempty"`
	Tags          map[string]string `json:"tags,omitempty"`
}

// DurationSeconds returns the container duration, or 0 when unknown.
func (p *ProbeResult) DurationSeconds() float64 {
	d, err := strconv.ParseFloat(p.Format.Duration, 64)
	if err != nil {
		return 0
	}
	return d
}

// Probe runs ffprobe on path and decodes its format and stream report.
func (r *Runner) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	if err := checkInputs([]string{path}); err != nil {
		return nil, err
	}

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}

	var stdout bytes.Buffer
	if _, err := r.invoke(ctx, OpMetadata, r.ffprobePath, args, &stdout); err != nil {
		// ffprobe exits nonzero on input it cannot parse. Kills from
		// timeouts and shutdown have no exit code and stay process errors.
		var pe *ProcessError
		if errors.As(err, &pe) && pe.ExitCode > 0 {
			return nil, fmt.Errorf("%w: %w", ErrInvalidMedia, err)
		}
		return nil, err
	}

	return decodeProbe(stdout.Bytes())
}

func decodeProbe(data []byte) (*ProbeResult, error) {
	var result ProbeResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("%w: unreadable ffprobe output: %v", ErrInvalidMedia, err)
	}
	if result.Format.FormatName == "" && len(result.Streams) == 0 {
		return nil, ErrInvalidMedia
	}
	return &result, nil
}
