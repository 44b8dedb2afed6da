// Package ffmpeg builds argument vectors for the supported media operations
// and runs ffmpeg/ffprobe as child processes.
//
// It supports:
//   - Metadata extraction (ffprobe JSON of format and streams)
//   - Audio extraction to MP3
//   - H.264 compression and MP4 conversion
//   - Audio trimming and lossless concatenation
//   - Single frame capture to WebP
//
// Every invocation is bound to the caller's context, so a client that
// disconnects kills the child process. FFmpeg and FFprobe must be installed
// and available in the system PATH, or named explicitly in Config.
package ffmpeg
