package ffmpeg

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Defaults applied when a parameter is left at its zero value.
const (
	DefaultMP3Quality  = 2
	DefaultWebPQuality = 85
	DefaultMaxThreads  = 4
	compressCRF        = "28"
	compressFPS        = "30"
	convertCRF         = "23"
	audioBitrate       = "128k"
	webpCompressionLvl = "6"
	maxAllowedThreads  = 64
	maxMP3Quality      = 9
	maxWebPQuality     = 100
)

var (
	// ErrInvalidTimestamp is returned for timestamps that are not
	// HH:MM:SS[.fff], MM:SS[.fff] or plain seconds.
	ErrInvalidTimestamp = errors.New("invalid timestamp")

	// ErrInvalidParam is returned for out-of-range or missing parameters.
	ErrInvalidParam = errors.New("invalid parameter")
)

// Params carries the scalar parameters of an operation. Zero values select
// the defaults documented on each field.
type Params struct {
	Start      string // cut_audio start (required)
	End        string // cut_audio end (required, after Start)
	Timestamp  string // capture_frame position (required)
	Quality    *int   // extract_audio: -q:a 0-9 (default 2); capture_frame: 0-100 (default 85)
	MaxThreads int    // compress_video / convert_mp4 (default 4)
}

// Request is everything needed to run one operation.
type Request struct {
	Op     Operation
	Inputs []string
	Output string
	// ListFile is the concat demuxer list path; required for concat_audios.
	ListFile string
	Params   Params
}

var timestampPattern = regexp.MustCompile(`^(?:(\d+):)?([0-5]?\d):([0-5]\d)(?:\.(\d{1,6}))?$|^(\d+)(?:\.(\d{1,6}))?$`)

// ParseTimestamp converts an ffmpeg-style position into seconds.
func ParseTimestamp(s string) (float64, error) {
	s = strings.TrimSpace(s)
	m := timestampPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
	}

	if m[5] != "" {
		v, err := strconv.ParseFloat(strings.TrimSuffix(m[5]+"."+m[6], "."), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
		}
		return v, nil
	}

	var hours, minutes, seconds int
	if m[1] != "" {
		hours, _ = strconv.Atoi(m[1])
	}
	minutes, _ = strconv.Atoi(m[2])
	seconds, _ = strconv.Atoi(m[3])

	total := float64(hours*3600 + minutes*60 + seconds)
	if m[4] != "" {
		frac, _ := strconv.ParseFloat("0."+m[4], 64)
		total += frac
	}
	return total, nil
}

// BuildArgs returns the ffmpeg argument vector (without the binary name) for
// a request. get_metadata runs through ffprobe and has no ffmpeg arguments.
func BuildArgs(req Request) ([]string, error) {
	if req.Op == OpMetadata {
		return nil, fmt.Errorf("%w: %s is served by ffprobe", ErrInvalidParam, req.Op)
	}
	if !req.Op.Valid() {
		return nil, fmt.Errorf("%w: unknown operation %q", ErrInvalidParam, req.Op)
	}
	if req.Output == "" {
		return nil, fmt.Errorf("%w: output path is required", ErrInvalidParam)
	}

	minInputs := 1
	if req.Op == OpConcatAudio {
		minInputs = 2
	}
	if len(req.Inputs) < minInputs {
		return nil, fmt.Errorf("%w: %s needs at least %d input(s), got %d", ErrInvalidParam, req.Op, minInputs, len(req.Inputs))
	}
	if req.Op != OpConcatAudio && len(req.Inputs) > 1 {
		return nil, fmt.Errorf("%w: %s takes exactly one input", ErrInvalidParam, req.Op)
	}

	p := req.Params
	in := req.Inputs[0]

	switch req.Op {
	case OpExtractAudio:
		q, err := quality(p.Quality, DefaultMP3Quality, maxMP3Quality)
		if err != nil {
			return nil, err
		}
		return []string{
			"-i", in,
			"-vn",
			"-acodec", "libmp3lame",
			"-q:a", strconv.Itoa(q),
			"-y",
			req.Output,
		}, nil

	case OpCompress:
		threads, err := maxThreads(p.MaxThreads)
		if err != nil {
			return nil, err
		}
		return []string{
			"-i", in,
			"-vcodec", "libx264",
			"-crf", compressCRF,
			"-r", compressFPS,
			"-preset", "veryfast",
			"-threads", strconv.Itoa(threads),
			"-acodec", "aac",
			"-b:a", audioBitrate,
			"-y",
			req.Output,
		}, nil

	case OpConvertMP4:
		threads, err := maxThreads(p.MaxThreads)
		if err != nil {
			return nil, err
		}
		return []string{
			"-i", in,
			"-c:v", "libx264",
			"-preset", "veryfast",
			"-crf", convertCRF,
			"-threads", strconv.Itoa(threads),
			"-c:a", "aac",
			"-b:a", audioBitrate,
			"-movflags", "+faststart",
			"-y",
			req.Output,
		}, nil

	case OpCutAudio:
		if err := ValidateRange(p.Start, p.End); err != nil {
			return nil, err
		}
		return []string{
			"-i", in,
			"-ss", strings.TrimSpace(p.Start),
			"-to", strings.TrimSpace(p.End),
			"-c", "copy",
			"-y",
			req.Output,
		}, nil

	case OpConcatAudio:
		if req.ListFile == "" {
			return nil, fmt.Errorf("%w: concat list file is required", ErrInvalidParam)
		}
		return []string{
			"-f", "concat",
			"-safe", "0",
			"-i", req.ListFile,
			"-c", "copy",
			"-y",
			req.Output,
		}, nil

	case OpCaptureFrame:
		if _, err := ParseTimestamp(p.Timestamp); err != nil {
			return nil, err
		}
		q, err := quality(p.Quality, DefaultWebPQuality, maxWebPQuality)
		if err != nil {
			return nil, err
		}
		return []string{
			"-ss", strings.TrimSpace(p.Timestamp),
			"-i", in,
			"-frames:v", "1",
			"-c:v", "libwebp",
			"-quality", strconv.Itoa(q),
			"-compression_level", webpCompressionLvl,
			"-y",
			req.Output,
		}, nil
	}

	return nil, fmt.Errorf("%w: unsupported operation %q", ErrInvalidParam, req.Op)
}

// ValidateRange checks that start and end are valid timestamps and that end
// falls strictly after start.
func ValidateRange(start, end string) error {
	s, err := ParseTimestamp(start)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	e, err := ParseTimestamp(end)
	if err != nil {
		return fmt.Errorf("end: %w", err)
	}
	if e <= s {
		return fmt.Errorf("%w: end %q must be after start %q", ErrInvalidTimestamp, end, start)
	}
	return nil
}

// ConcatList renders the concat demuxer input list for paths.
func ConcatList(paths []string) string {
	var b strings.Builder
	for _, p := range paths {
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(p, "'", `'\''`))
		b.WriteString("'\n")
	}
	return b.String()
}

func quality(q *int, def, maxValue int) (int, error) {
	if q == nil {
		return def, nil
	}
	if *q < 0 || *q > maxValue {
		return 0, fmt.Errorf("%w: quality %d out of range 0-%d", ErrInvalidParam, *q, maxValue)
	}
	return *q, nil
}

func maxThreads(n int) (int, error) {
	if n == 0 {
		return DefaultMaxThreads, nil
	}
	if n < 0 || n > maxAllowedThreads {
		return 0, fmt.Errorf("%w: max_threads %d out of range 1-%d", ErrInvalidParam, n, maxAllowedThreads)
	}
	return n, nil
}
