package handlers

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ffmpeg-api/internal/ffmpeg"
)

func dispositionFilename(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	disposition, params, err := mime.ParseMediaType(rr.Header().Get("Content-Disposition"))
	if err != nil {
		t.Fatalf("bad Content-Disposition %q: %v", rr.Header().Get("Content-Disposition"), err)
	}
	if disposition != "attachment" {
		t.Errorf("disposition = %q, want attachment", disposition)
	}
	return params["filename"]
}

func TestSyncOperations(t *testing.T) {
	mp4 := []byte("fake video")
	mp3 := []byte("fake audio")

	tests := []struct {
		name        string
		handler     func(*Handlers) http.HandlerFunc
		files       []formFile
		values      map[string]string
		wantOp      ffmpeg.Operation
		wantType    string
		wantName    string
		checkParams func(t *testing.T, p ffmpeg.Params)
	}{
		{
			name:     "extract audio",
			handler:  func(h *Handlers) http.HandlerFunc { return h.ExtractAudio },
			files:    []formFile{{"file", "clip.mp4", mp4}},
			values:   map[string]string{"calidad": "4"},
			wantOp:   ffmpeg.OpExtractAudio,
			wantType: "audio/mpeg",
			wantName: "audio_clip.mp3",
			checkParams: func(t *testing.T, p ffmpeg.Params) {
				if p.Quality == nil || *p.Quality != 4 {
					t.Errorf("quality = %v, want 4", p.Quality)
				}
			},
		},
		{
			name:     "compress video",
			handler:  func(h *Handlers) http.HandlerFunc { return h.CompressVideo },
			files:    []formFile{{"file", "clip.mov", mp4}},
			values:   map[string]string{"max_threads": "2"},
			wantOp:   ffmpeg.OpCompress,
			wantType: "video/mp4",
			wantName: "compressed_clip.mp4",
			checkParams: func(t *testing.T, p ffmpeg.Params) {
				if p.MaxThreads != 2 {
					t.Errorf("max threads = %d, want 2", p.MaxThreads)
				}
			},
		},
		{
			name:     "convert mp4",
			handler:  func(h *Handlers) http.HandlerFunc { return h.ConvertMP4 },
			files:    []formFile{{"file", "clip.mkv", mp4}},
			wantOp:   ffmpeg.OpConvertMP4,
			wantType: "video/mp4",
			wantName: "clip.mp4",
		},
		{
			name:     "cut audio keeps container",
			handler:  func(h *Handlers) http.HandlerFunc { return h.CutAudio },
			files:    []formFile{{"file", "song.m4a", mp3}},
			values:   map[string]string{"inicio": "00:00:05", "fin": "00:00:10"},
			wantOp:   ffmpeg.OpCutAudio,
			wantType: "audio/mp4",
			wantName: "cut_song.m4a",
			checkParams: func(t *testing.T, p ffmpeg.Params) {
				if p.Start != "00:00:05" || p.End != "00:00:10" {
					t.Errorf("range = %q..%q", p.Start, p.End)
				}
			},
		},
		{
			name:    "concat audio",
			handler: func(h *Handlers) http.HandlerFunc { return h.ConcatAudio },
			files: []formFile{
				{"files", "a.mp3", mp3},
				{"files", "b.mp3", mp3},
				{"files", "c.mp3", mp3},
			},
			wantOp:   ffmpeg.OpConcatAudio,
			wantType: "audio/mpeg",
			wantName: "merged_3_audios.mp3",
		},
		{
			name:     "capture frame",
			handler:  func(h *Handlers) http.HandlerFunc { return h.CaptureFrame },
			files:    []formFile{{"file", "clip.mp4", mp4}},
			values:   map[string]string{"tiempo": "1.5"},
			wantOp:   ffmpeg.OpCaptureFrame,
			wantType: "image/webp",
			wantName: "frame_clip.webp",
			checkParams: func(t *testing.T, p ffmpeg.Params) {
				if p.Timestamp != "1.5" || p.Quality != nil {
					t.Errorf("params = %+v, want timestamp 1.5 and default quality", p)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.proc.output = []byte("processed output")

			rr := httptest.NewRecorder()
			tt.handler(env.h)(rr, multipartRequest(t, "/", tt.files, tt.values))

			if rr.Code != http.StatusOK {
				t.Fatalf("status = %d, body %q", rr.Code, rr.Body.String())
			}
			if ct := rr.Header().Get("Content-Type"); ct != tt.wantType {
				t.Errorf("Content-Type = %q, want %q", ct, tt.wantType)
			}
			if rr.Header().Get("Content-Length") != "16" {
				t.Errorf("Content-Length = %q, want 16", rr.Header().Get("Content-Length"))
			}
			if got := dispositionFilename(t, rr); got != tt.wantName {
				t.Errorf("filename = %q, want %q", got, tt.wantName)
			}
			if rr.Body.String() != "processed output" {
				t.Errorf("body = %q", rr.Body.String())
			}

			req := env.proc.lastRequest(t)
			if req.Op != tt.wantOp {
				t.Errorf("op = %s, want %s", req.Op, tt.wantOp)
			}
			if len(req.Inputs) != len(tt.files) {
				t.Errorf("inputs = %d, want %d", len(req.Inputs), len(tt.files))
			}
			if tt.wantOp == ffmpeg.OpConcatAudio && req.ListFile == "" {
				t.Error("concat request needs a list file")
			}
			if tt.checkParams != nil {
				tt.checkParams(t, req.Params)
			}

			assertEmptyDir(t, env.temp)
		})
	}
}

func TestSyncOperationErrors(t *testing.T) {
	media := []byte("data")

	tests := []struct {
		name       string
		handler    func(*Handlers) http.HandlerFunc
		files      []formFile
		values     map[string]string
		procErr    error
		wantStatus int
		wantCalled bool
	}{
		{
			name:       "missing file field",
			handler:    func(h *Handlers) http.HandlerFunc { return h.ExtractAudio },
			files:      []formFile{{"other", "clip.mp4", media}},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "cut without end",
			handler:    func(h *Handlers) http.HandlerFunc { return h.CutAudio },
			files:      []formFile{{"file", "a.mp3", media}},
			values:     map[string]string{"inicio": "00:00:01"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "cut with malformed timestamp",
			handler:    func(h *Handlers) http.HandlerFunc { return h.CutAudio },
			files:      []formFile{{"file", "a.mp3", media}},
			values:     map[string]string{"inicio": "soon", "fin": "later"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "cut with end before start",
			handler:    func(h *Handlers) http.HandlerFunc { return h.CutAudio },
			files:      []formFile{{"file", "a.mp3", media}},
			values:     map[string]string{"inicio": "00:00:10", "fin": "00:00:05"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "concat with one file",
			handler:    func(h *Handlers) http.HandlerFunc { return h.ConcatAudio },
			files:      []formFile{{"files", "a.mp3", media}},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "quality not a number",
			handler:    func(h *Handlers) http.HandlerFunc { return h.ExtractAudio },
			files:      []formFile{{"file", "clip.mp4", media}},
			values:     map[string]string{"calidad": "best"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "capture without timestamp",
			handler:    func(h *Handlers) http.HandlerFunc { return h.CaptureFrame },
			files:      []formFile{{"file", "clip.mp4", media}},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "ffmpeg failure",
			handler:    func(h *Handlers) http.HandlerFunc { return h.CompressVideo },
			files:      []formFile{{"file", "clip.mp4", media}},
			procErr:    &ffmpeg.ProcessError{Op: ffmpeg.OpCompress, ExitCode: 1, Stderr: "Invalid data found", Err: errors.New("exit status 1")},
			wantStatus: http.StatusInternalServerError,
			wantCalled: true,
		},
		{
			name:       "empty input",
			handler:    func(h *Handlers) http.HandlerFunc { return h.ConvertMP4 },
			files:      []formFile{{"file", "clip.mp4", nil}},
			procErr:    ffmpeg.ErrEmptyInput,
			wantStatus: http.StatusBadRequest,
			wantCalled: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.proc.err = tt.procErr

			rr := httptest.NewRecorder()
			tt.handler(env.h)(rr, multipartRequest(t, "/", tt.files, tt.values))

			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %q)", rr.Code, tt.wantStatus, rr.Body.String())
			}
			body := decodeBody(t, rr)
			msg, _ := body["error"].(string)
			if msg == "" {
				t.Error("error response needs an error message")
			}
			if strings.Contains(msg, "Invalid data found") {
				t.Errorf("process stderr leaked to client: %q", msg)
			}

			env.proc.mu.Lock()
			called := len(env.proc.requests) > 0
			env.proc.mu.Unlock()
			if called != tt.wantCalled {
				t.Errorf("processor called = %v, want %v", called, tt.wantCalled)
			}

			assertEmptyDir(t, env.temp)
		})
	}
}

func TestSyncOperationNotMultipart(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/video/extraer-audio", strings.NewReader("plain"))
	req.Header.Set("Content-Type", "text/plain")
	rr := httptest.NewRecorder()
	env.h.ExtractAudio(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestSyncOperationTooLarge(t *testing.T) {
	env := newTestEnv(t)
	h := New(env.db, env.queue, env.proc, Config{
		DataDir:       env.data,
		UploadDir:     env.uploads,
		TempDir:       env.temp,
		MaxUploadSize: 64,
	})

	rr := httptest.NewRecorder()
	h.ExtractAudio(rr, multipartRequest(t, "/", []formFile{{"file", "big.mp4", make([]byte, 4096)}}, nil))

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rr.Code)
	}
	assertEmptyDir(t, env.temp)
}

func TestMetadata(t *testing.T) {
	env := newTestEnv(t)
	env.proc.probe = &ffmpeg.ProbeResult{
		Format:  ffmpeg.Format{Filename: "/disk/temp/0b1c_clip.mp4", FormatName: "mov,mp4,m4a,3gp,3g2,mj2", Duration: "12.5"},
		Streams: []ffmpeg.Stream{{Index: 0, CodecType: "video", CodecName: "h264", Width: 640, Height: 360}},
	}

	rr := httptest.NewRecorder()
	env.h.Metadata(rr, multipartRequest(t, "/video/detalles", []formFile{{"file", "clip.mp4", []byte("not really mp4")}}, nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %q", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	format, _ := body["format"].(map[string]interface{})
	if format["duration"] != "12.5" {
		t.Errorf("format = %v", format)
	}
	if format["filename"] != "clip.mp4" {
		t.Errorf("format.filename = %v, want the uploaded name", format["filename"])
	}
	if streams, _ := body["streams"].([]interface{}); len(streams) != 1 {
		t.Errorf("streams = %v", body["streams"])
	}
	if _, ok := body["tags"]; ok {
		t.Error("a file without tags should not report tags")
	}
	assertEmptyDir(t, env.temp)
}

func TestMetadataInvalidMedia(t *testing.T) {
	env := newTestEnv(t)
	env.proc.err = ffmpeg.ErrInvalidMedia

	rr := httptest.NewRecorder()
	env.h.Metadata(rr, multipartRequest(t, "/video/detalles", []formFile{{"file", "notes.txt", []byte("hello")}}, nil))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	body := decodeBody(t, rr)
	if _, ok := body["format"]; ok {
		t.Error("invalid media must not produce a probe report")
	}
}

// ffprobe exiting nonzero and ffprobe finding no streams are the same
// client mistake.
func TestMetadataToolRejectsInput(t *testing.T) {
	env := newTestEnv(t)
	env.proc.err = fmt.Errorf("%w: %w", ffmpeg.ErrInvalidMedia,
		&ffmpeg.ProcessError{Tool: "ffprobe", Op: ffmpeg.OpMetadata, ExitCode: 1, Err: errors.New("exit status 1")})

	rr := httptest.NewRecorder()
	env.h.Metadata(rr, multipartRequest(t, "/video/detalles", []formFile{{"file", "notes.txt", []byte("hello")}}, nil))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	if body := decodeBody(t, rr); body["error"] != ffmpeg.ErrInvalidMedia.Error() {
		t.Errorf("error = %v, want %q", body["error"], ffmpeg.ErrInvalidMedia.Error())
	}
}

func TestReset(t *testing.T) {
	env := newTestEnv(t)
	for _, name := range []string{"a_output.mp3", "b_concat.tmp"} {
		if err := os.WriteFile(filepath.Join(env.temp, name), make([]byte, 1024), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	rr := httptest.NewRecorder()
	env.h.Reset(rr, httptest.NewRequest(http.MethodDelete, "/reset", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["status"] != "success" || body["files_deleted"] != float64(2) {
		t.Errorf("body = %v", body)
	}
	assertEmptyDir(t, env.temp)

	if _, err := os.Stat(env.temp); err != nil {
		t.Errorf("reset must keep the temp directory itself: %v", err)
	}
}
