package jobs

import "ffmpeg-api/internal/ffmpeg"

// Job priorities. Lower values run first.
const (
	PriorityHigh   = 10
	PriorityNormal = 50
	PriorityLow    = 100
)

var priorities = map[ffmpeg.Operation]int{
	ffmpeg.OpMetadata:     PriorityHigh,
	ffmpeg.OpCaptureFrame: PriorityHigh,
	ffmpeg.OpExtractAudio: PriorityNormal,
	ffmpeg.OpCutAudio:     PriorityNormal,
	ffmpeg.OpConcatAudio:  PriorityNormal,
	ffmpeg.OpCompress:     PriorityLow,
	ffmpeg.OpConvertMP4:   PriorityLow,
}

// PriorityFor returns the queue priority of op.
func PriorityFor(op ffmpeg.Operation) int {
	if p, ok := priorities[op]; ok {
		return p
	}
	return PriorityLow
}

// PriorityName returns "high", "normal" or "low".
func PriorityName(p int) string {
	switch {
	case p <= PriorityHigh:
		return "high"
	case p <= PriorityNormal:
		return "normal"
	default:
		return "low"
	}
}
