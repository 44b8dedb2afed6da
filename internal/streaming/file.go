package streaming

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"ffmpeg-api/internal/filesystem"
	"ffmpeg-api/internal/logging"
)

// Attachment describes a file sent as a download.
type Attachment struct {
	Path        string
	ContentType string
	// Filename is the name offered to the client in Content-Disposition.
	Filename string
}

// SendFile writes the file as an attachment response with Content-Type,
// Content-Length and Content-Disposition set. Errors before the first byte
// (missing file) are returned without writing anything, so the caller can
// still send an error status.
func SendFile(ctx context.Context, w http.ResponseWriter, a Attachment, config Config) error {
	retry := filesystem.DefaultRetryConfig()
	f, err := filesystem.OpenWithRetry(a.Path, retry)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", a.Path, err)
	}

	h := w.Header()
	h.Set("Content-Type", a.ContentType)
	h.Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	h.Set("Content-Disposition", ContentDisposition(a.Filename))
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	tw := NewTimeoutWriter(ctx, w, config)
	defer func() {
		if err := tw.Close(); err != nil {
			logging.Warn("Failed to close timeout writer: %v", err)
		}
	}()

	_, err = io.Copy(tw, f)

	written, duration := tw.Stats()
	logging.Debug("Sent %s: %d of %d bytes in %v", a.Filename, written, info.Size(), duration)
	return err
}

// ContentDisposition formats an attachment header for filename. Non-ASCII
// names are encoded per RFC 2231.
func ContentDisposition(filename string) string {
	if filename == "" {
		filename = "download"
	}
	v := mime.FormatMediaType("attachment", map[string]string{"filename": filename})
	if v == "" {
		return `attachment; filename="download"`
	}
	return v
}
