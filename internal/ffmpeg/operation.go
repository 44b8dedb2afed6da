package ffmpeg

import (
	"path/filepath"
	"strings"
)

// Operation identifies one of the fixed media transformations.
type Operation string

const (
	OpMetadata     Operation = "get_metadata"
	OpExtractAudio Operation = "extract_audio"
	OpCompress     Operation = "compress_video"
	OpConvertMP4   Operation = "convert_mp4"
	OpCutAudio     Operation = "cut_audio"
	OpConcatAudio  Operation = "concat_audios"
	OpCaptureFrame Operation = "capture_frame"
)

// Operations lists every supported operation in a stable order.
var Operations = []Operation{
	OpMetadata,
	OpExtractAudio,
	OpCompress,
	OpConvertMP4,
	OpCutAudio,
	OpConcatAudio,
	OpCaptureFrame,
}

// Valid reports whether o is a known operation.
func (o Operation) Valid() bool {
	for _, op := range Operations {
		if op == o {
			return true
		}
	}
	return false
}

// OutputExt returns the extension (without the dot) of the file the
// operation produces. Stream-copy operations keep the container of their
// first input so "-c copy" stays valid.
func (o Operation) OutputExt(firstInput string) string {
	switch o {
	case OpMetadata:
		return "json"
	case OpExtractAudio:
		return "mp3"
	case OpCompress, OpConvertMP4:
		return "mp4"
	case OpCaptureFrame:
		return "webp"
	case OpCutAudio, OpConcatAudio:
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(firstInput), "."))
		if _, ok := audioContainers[ext]; ok {
			return ext
		}
		return "mp3"
	default:
		return "bin"
	}
}

var audioContainers = map[string]string{
	"mp3":  "audio/mpeg",
	"m4a":  "audio/mp4",
	"aac":  "audio/aac",
	"wav":  "audio/wav",
	"flac": "audio/flac",
	"ogg":  "audio/ogg",
	"opus": "audio/opus",
}

var contentTypes = map[string]string{
	"mp4":  "video/mp4",
	"webp": "image/webp",
	"json": "application/json",
}

// ContentType returns the MIME type for an output extension.
func ContentType(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ct, ok := audioContainers[ext]; ok {
		return ct
	}
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}
