package jobs

import (
	"context"

	"ffmpeg-api/internal/audiotags"
	"ffmpeg-api/internal/ffmpeg"
	"ffmpeg-api/internal/logging"
)

// Metadata is the get_metadata result: the ffprobe report plus any embedded
// audio tags.
type Metadata struct {
	*ffmpeg.ProbeResult
	Tags *audiotags.Tags `json:"tags,omitempty"`
}

// Prober runs ffprobe.
type Prober interface {
	Probe(ctx context.Context, path string) (*ffmpeg.ProbeResult, error)
}

// Describe probes path and attaches its audio tags. The reported filename
// is replaced by name so server paths never reach clients. Tag read
// failures are logged and leave Tags empty.
func Describe(ctx context.Context, p Prober, path, name string) (*Metadata, error) {
	res, err := p.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	res.Format.Filename = name

	tags, err := audiotags.Read(path)
	if err != nil {
		logging.Debug("Reading tags from %s: %v", path, err)
	}
	return &Metadata{ProbeResult: res, Tags: tags}, nil
}
