package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"ffmpeg-api/internal/cleanup"
	"ffmpeg-api/internal/ffmpeg"
	"ffmpeg-api/internal/jobs"
	"ffmpeg-api/internal/logging"
	"ffmpeg-api/internal/streaming"
	"ffmpeg-api/internal/upload"
)

// syncOperation describes one synchronous endpoint: the form field holding
// the input files, the form fields mapped to operation parameters and the
// name offered for the download.
type syncOperation struct {
	op     ffmpeg.Operation
	field  string
	params map[string]string
	name   func(inputs []upload.Handle, ext string) string
}

var (
	extractAudio = syncOperation{
		op:     ffmpeg.OpExtractAudio,
		field:  "file",
		params: map[string]string{"calidad": ffmpeg.ParamQuality},
		name: func(in []upload.Handle, _ string) string {
			return "audio_" + upload.BaseName(in[0].Filename) + ".mp3"
		},
	}
	compressVideo = syncOperation{
		op:     ffmpeg.OpCompress,
		field:  "file",
		params: map[string]string{"max_threads": ffmpeg.ParamMaxThreads},
		name: func(in []upload.Handle, _ string) string {
			return "compressed_" + upload.BaseName(in[0].Filename) + ".mp4"
		},
	}
	convertMP4 = syncOperation{
		op:     ffmpeg.OpConvertMP4,
		field:  "file",
		params: map[string]string{"max_threads": ffmpeg.ParamMaxThreads},
		name: func(in []upload.Handle, _ string) string {
			return upload.BaseName(in[0].Filename) + ".mp4"
		},
	}
	cutAudio = syncOperation{
		op:    ffmpeg.OpCutAudio,
		field: "file",
		params: map[string]string{
			"inicio": ffmpeg.ParamStart,
			"fin":    ffmpeg.ParamEnd,
		},
		name: func(in []upload.Handle, ext string) string {
			return "cut_" + upload.BaseName(in[0].Filename) + "." + ext
		},
	}
	concatAudio = syncOperation{
		op:    ffmpeg.OpConcatAudio,
		field: "files",
		name: func(in []upload.Handle, ext string) string {
			return fmt.Sprintf("merged_%d_audios.%s", len(in), ext)
		},
	}
	captureFrame = syncOperation{
		op:    ffmpeg.OpCaptureFrame,
		field: "file",
		params: map[string]string{
			"tiempo":  ffmpeg.ParamTimestamp,
			"calidad": ffmpeg.ParamQuality,
		},
		name: func(in []upload.Handle, _ string) string {
			return "frame_" + upload.BaseName(in[0].Filename) + ".webp"
		},
	}
)

// ExtractAudio extracts the audio track as MP3.
// POST /video/extraer-audio
func (h *Handlers) ExtractAudio(w http.ResponseWriter, r *http.Request) {
	h.runSync(w, r, extractAudio)
}

// CompressVideo re-encodes a video to a smaller H.264/AAC MP4.
// POST /video/comprimir
func (h *Handlers) CompressVideo(w http.ResponseWriter, r *http.Request) {
	h.runSync(w, r, compressVideo)
}

// ConvertMP4 converts a video to a web-friendly MP4.
// POST /video/convertir-mp4
func (h *Handlers) ConvertMP4(w http.ResponseWriter, r *http.Request) {
	h.runSync(w, r, convertMP4)
}

// CutAudio returns the audio between inicio and fin.
// POST /audio/cortar
func (h *Handlers) CutAudio(w http.ResponseWriter, r *http.Request) {
	h.runSync(w, r, cutAudio)
}

// ConcatAudio joins two or more audio files in upload order.
// POST /audio/unir
func (h *Handlers) ConcatAudio(w http.ResponseWriter, r *http.Request) {
	h.runSync(w, r, concatAudio)
}

// CaptureFrame grabs one frame at tiempo as WebP.
// POST /imagen/captura
func (h *Handlers) CaptureFrame(w http.ResponseWriter, r *http.Request) {
	h.runSync(w, r, captureFrame)
}

// Metadata probes an uploaded file and returns the report as JSON.
// POST /video/detalles
func (h *Handlers) Metadata(w http.ResponseWriter, r *http.Request) {
	scope := cleanup.NewScope()
	defer scope.Release()

	in, err := h.scratch.SaveOne(w, r, "file", scope)
	if err != nil {
		writeError(w, r, err)
		return
	}

	md, err := jobs.Describe(r.Context(), h.proc, in.Path, in.Filename)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSONStatus(w, http.StatusOK, md)
}

// runSync stores the request's files in the temp directory, runs op and
// streams the result back. Every file the request created is removed once
// the response has been written.
func (h *Handlers) runSync(w http.ResponseWriter, r *http.Request, so syncOperation) {
	scope := cleanup.NewScope()
	defer scope.Release()

	inputs, err := h.scratch.SaveForm(w, r, so.field, scope)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if so.field == "file" {
		inputs = inputs[:1]
	}

	values := make(map[string]string, len(so.params))
	for field, key := range so.params {
		if v := strings.TrimSpace(r.FormValue(field)); v != "" {
			values[key] = v
		}
	}
	params, err := ffmpeg.ParseParams(values)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := ffmpeg.Validate(so.op, len(inputs), params); err != nil {
		writeError(w, r, err)
		return
	}

	paths := make([]string, len(inputs))
	for i, in := range inputs {
		paths[i] = in.Path
	}

	id := inputs[0].ID
	ext := so.op.OutputExt(inputs[0].Filename)
	req := ffmpeg.Request{
		Op:     so.op,
		Inputs: paths,
		Output: scope.Path(h.config.TempDir, id, "output."+ext),
		Params: params,
	}
	if so.op == ffmpeg.OpConcatAudio {
		req.ListFile = scope.Path(h.config.TempDir, id, "concat.tmp")
	}

	if err := h.proc.Run(r.Context(), req); err != nil {
		writeError(w, r, err)
		return
	}

	h.sendFile(w, r, streaming.Attachment{
		Path:        req.Output,
		ContentType: ffmpeg.ContentType(ext),
		Filename:    so.name(inputs, ext),
	})
}

// sendFile streams a result. Failures before the headers are written get
// an error response; later ones mean the client went away and are only
// logged.
func (h *Handlers) sendFile(w http.ResponseWriter, r *http.Request, a streaming.Attachment) {
	err := streaming.SendFile(r.Context(), w, a, h.config.Stream)
	if err == nil {
		return
	}
	if w.Header().Get("Content-Disposition") == "" {
		writeError(w, r, err)
		return
	}
	logging.Warn("Streaming %s interrupted: %v", a.Filename, err)
}

// Reset deletes everything in the temporary directory.
// DELETE /reset
func (h *Handlers) Reset(w http.ResponseWriter, r *http.Request) {
	report, err := cleanup.Reset(h.config.TempDir)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSONStatus(w, http.StatusOK, map[string]interface{}{
		"status":         "success",
		"message":        "Temporary files deleted",
		"files_deleted":  report.FilesDeleted,
		"space_freed_mb": report.SpaceFreedMB(),
	})
}
