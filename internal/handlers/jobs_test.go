package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ffmpeg-api/internal/database"
	"ffmpeg-api/internal/ffmpeg"
)

func jobFormRequest(values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/jobs/create", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func jobRequest(method, path, id string) *http.Request {
	return withVars(httptest.NewRequest(method, path+id, nil), map[string]string{"id": id})
}

func TestDecodeParameters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		raw       string
		want      map[string]string
		wantExtra []string
		wantErr   bool
	}{
		{name: "empty", raw: "", want: map[string]string{}},
		{name: "strings and numbers", raw: `{"start_time":"00:00:01","quality":4,"max_threads":2.0}`,
			want: map[string]string{"start_time": "00:00:01", "quality": "4", "max_threads": "2"}},
		{name: "null ignored", raw: `{"quality":null}`, want: map[string]string{}},
		{name: "upload ids", raw: `{"upload_ids":["b","c"]}`, want: map[string]string{}, wantExtra: []string{"b", "c"}},
		{name: "not an object", raw: `[1,2]`, wantErr: true},
		{name: "malformed", raw: `{quality:`, wantErr: true},
		{name: "nested object", raw: `{"quality":{"v":1}}`, wantErr: true},
		{name: "upload ids not strings", raw: `{"upload_ids":[1]}`, wantErr: true},
		{name: "json null", raw: `null`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, extra, err := decodeParameters(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.want) {
				t.Errorf("params = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("params[%s] = %q, want %q", k, got[k], v)
				}
			}
			if strings.Join(extra, ",") != strings.Join(tt.wantExtra, ",") {
				t.Errorf("extra = %v, want %v", extra, tt.wantExtra)
			}
		})
	}
}

func TestCreateJob(t *testing.T) {
	env := newTestEnv(t)
	id := storeUpload(t, env, "clip.mp4", []byte("video"))

	rr := httptest.NewRecorder()
	env.h.CreateJob(rr, jobFormRequest(url.Values{
		"upload_id":  {id},
		"job_type":   {"extract_audio"},
		"parameters": {`{"quality": 3}`},
	}))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %q", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	jobID, _ := body["job_id"].(string)
	if body["status"] != "pending" || body["priority"] != "normal" || body["upload_id"] != id {
		t.Errorf("body = %v", body)
	}
	if body["status_url"] != "/jobs/status/"+jobID || body["download_url"] != "/jobs/download/"+jobID {
		t.Errorf("urls = %v %v", body["status_url"], body["download_url"])
	}

	job, err := env.db.GetJob(context.Background(), jobID)
	if err != nil {
		t.Fatalf("job not stored: %v", err)
	}
	if job.Parameters["quality"] != "3" {
		t.Errorf("stored parameters = %v", job.Parameters)
	}
}

func TestCreateJobConcatUploadIDs(t *testing.T) {
	env := newTestEnv(t)
	a := storeUpload(t, env, "a.mp3", []byte("a"))
	b := storeUpload(t, env, "b.mp3", []byte("b"))

	rr := httptest.NewRecorder()
	env.h.CreateJob(rr, jobFormRequest(url.Values{
		"upload_id":  {a},
		"job_type":   {"concat_audios"},
		"parameters": {`{"upload_ids":["` + b + `"]}`},
	}))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %q", rr.Code, rr.Body.String())
	}
	job, err := env.db.GetJob(context.Background(), decodeBody(t, rr)["job_id"].(string))
	if err != nil {
		t.Fatal(err)
	}
	if len(job.UploadIDs) != 2 || job.UploadIDs[0] != a || job.UploadIDs[1] != b {
		t.Errorf("upload ids = %v, want [%s %s]", job.UploadIDs, a, b)
	}
}

func TestCreateJobErrors(t *testing.T) {
	env := newTestEnv(t)
	id := storeUpload(t, env, "clip.mp4", []byte("video"))

	tests := []struct {
		name       string
		values     url.Values
		wantStatus int
	}{
		{"missing upload id", url.Values{"job_type": {"extract_audio"}}, http.StatusBadRequest},
		{"unknown upload", url.Values{"upload_id": {"nope"}, "job_type": {"extract_audio"}}, http.StatusNotFound},
		{"invalid job type", url.Values{"upload_id": {id}, "job_type": {"transcode_hls"}}, http.StatusBadRequest},
		{"malformed parameters", url.Values{"upload_id": {id}, "job_type": {"extract_audio"}, "parameters": {"{"}}, http.StatusBadRequest},
		{"invalid cut range", url.Values{"upload_id": {id}, "job_type": {"cut_audio"},
			"parameters": {`{"start_time":"00:00:09","end_time":"00:00:01"}`}}, http.StatusBadRequest},
		{"concat with one upload", url.Values{"upload_id": {id}, "job_type": {"concat_audios"}}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			env.h.CreateJob(rr, jobFormRequest(tt.values))

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %q)", rr.Code, tt.wantStatus, rr.Body.String())
			}
		})
	}

	stats, err := env.db.JobStats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 0 {
		t.Errorf("rejected requests created %d job(s)", stats.Total)
	}
}

func TestJobStatus(t *testing.T) {
	env := newTestEnv(t)
	id := storeUpload(t, env, "clip.mp4", []byte("video"))
	job, err := env.queue.Submit(context.Background(), ffmpeg.OpCompress, []string{id}, nil)
	if err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	env.h.JobStatus(rr, jobRequest(http.MethodGet, "/jobs/status/", job.ID))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["job_id"] != job.ID || body["status"] != "pending" || body["priority_name"] != "low" {
		t.Errorf("body = %v", body)
	}

	rr = httptest.NewRecorder()
	env.h.JobStatus(rr, jobRequest(http.MethodGet, "/jobs/status/", "missing"))
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown job status = %d, want 404", rr.Code)
	}
}

func TestJobQueueOrder(t *testing.T) {
	env := newTestEnv(t)
	id := storeUpload(t, env, "clip.mp4", []byte("video"))
	ctx := context.Background()

	for _, op := range []ffmpeg.Operation{ffmpeg.OpCompress, ffmpeg.OpExtractAudio, ffmpeg.OpMetadata} {
		if _, err := env.queue.Submit(ctx, op, []string{id}, nil); err != nil {
			t.Fatal(err)
		}
	}

	rr := httptest.NewRecorder()
	env.h.JobQueue(rr, httptest.NewRequest(http.MethodGet, "/jobs/queue", nil))

	body := decodeBody(t, rr)
	if body["total_pending"] != float64(3) {
		t.Fatalf("total_pending = %v", body["total_pending"])
	}
	pending := body["pending_jobs"].([]interface{})
	want := []string{"get_metadata", "extract_audio", "compress_video"}
	for i, item := range pending {
		j := item.(map[string]interface{})
		if j["job_type"] != want[i] || j["queue_position"] != float64(i+1) {
			t.Errorf("position %d = %v (%v), want %s", i+1, j["job_type"], j["queue_position"], want[i])
		}
	}
}

func TestDownloadResult(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := storeUpload(t, env, "holiday.mov", []byte("video"))
	job, err := env.queue.Submit(ctx, ffmpeg.OpConvertMP4, []string{id}, nil)
	if err != nil {
		t.Fatal(err)
	}

	// Pending jobs cannot be downloaded.
	rr := httptest.NewRecorder()
	env.h.DownloadResult(rr, jobRequest(http.MethodGet, "/jobs/download/", job.ID))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("pending download status = %d, want 400", rr.Code)
	}
	if body := decodeBody(t, rr); body["status"] != "pending" {
		t.Errorf("body = %v", body)
	}

	if _, err := env.db.ClaimNextJob(ctx); err != nil {
		t.Fatal(err)
	}
	output := filepath.Join(env.results, job.ID+"_output.mp4")
	if err := os.WriteFile(output, []byte("mp4 bytes"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := env.db.CompleteJob(ctx, job.ID, output); err != nil {
		t.Fatal(err)
	}

	rr = httptest.NewRecorder()
	env.h.DownloadResult(rr, jobRequest(http.MethodGet, "/jobs/download/", job.ID))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %q", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "video/mp4" {
		t.Errorf("Content-Type = %q", ct)
	}
	if got := dispositionFilename(t, rr); got != "holiday.mp4" {
		t.Errorf("filename = %q, want holiday.mp4", got)
	}
	if rr.Body.String() != "mp4 bytes" {
		t.Errorf("body = %q", rr.Body.String())
	}

	// After the sweeper removes the file the job reports it as expired.
	_ = os.Remove(output)
	rr = httptest.NewRecorder()
	env.h.DownloadResult(rr, jobRequest(http.MethodGet, "/jobs/download/", job.ID))
	if rr.Code != http.StatusNotFound {
		t.Errorf("expired download status = %d, want 404", rr.Code)
	}
}

func TestCancelJob(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := storeUpload(t, env, "clip.mp4", []byte("video"))

	pending, err := env.queue.Submit(ctx, ffmpeg.OpCompress, []string{id}, nil)
	if err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	env.h.CancelJob(rr, jobRequest(http.MethodDelete, "/jobs/", pending.ID))
	if rr.Code != http.StatusOK {
		t.Fatalf("cancel status = %d, body %q", rr.Code, rr.Body.String())
	}
	if body := decodeBody(t, rr); body["job_id"] != pending.ID {
		t.Errorf("body = %v", body)
	}

	// Canceling again reports the terminal state.
	rr = httptest.NewRecorder()
	env.h.CancelJob(rr, jobRequest(http.MethodDelete, "/jobs/", pending.ID))
	if rr.Code != http.StatusOK {
		t.Fatalf("repeat cancel status = %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["status"] != string(database.StatusCanceled) {
		t.Errorf("body = %v", body)
	}

	running, err := env.queue.Submit(ctx, ffmpeg.OpCompress, []string{id}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.db.ClaimNextJob(ctx); err != nil {
		t.Fatal(err)
	}
	rr = httptest.NewRecorder()
	env.h.CancelJob(rr, jobRequest(http.MethodDelete, "/jobs/", running.ID))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("processing cancel status = %d, want 400", rr.Code)
	}

	rr = httptest.NewRecorder()
	env.h.CancelJob(rr, jobRequest(http.MethodDelete, "/jobs/", "missing"))
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown cancel status = %d, want 404", rr.Code)
	}
}

func TestJobStatsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := storeUpload(t, env, "clip.mp4", []byte("video"))
	for range 2 {
		if _, err := env.queue.Submit(ctx, ffmpeg.OpExtractAudio, []string{id}, nil); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := env.db.ClaimNextJob(ctx); err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	env.h.JobStats(rr, httptest.NewRequest(http.MethodGet, "/jobs/stats", nil))

	body := decodeBody(t, rr)
	queue := body["queue"].(map[string]interface{})
	if queue["pending"] != float64(1) || queue["processing"] != float64(1) {
		t.Errorf("queue = %v", queue)
	}
	if body["total_active"] != float64(2) {
		t.Errorf("total_active = %v", body["total_active"])
	}
	completed := body["completed"].(map[string]interface{})
	if completed["retention_hours"] != database.DefaultRetention.CompletedJob.Hours() {
		t.Errorf("completed retention = %v", completed["retention_hours"])
	}
}
