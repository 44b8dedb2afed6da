package upload

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"ffmpeg-api/internal/cleanup"
	"ffmpeg-api/internal/filesystem"
	"ffmpeg-api/internal/logging"
	"ffmpeg-api/internal/metrics"
)

// memoryLimit is the part of a multipart body held in memory before the
// standard library spills to disk.
const memoryLimit = 32 << 20

const maxFilenameLen = 120

var (
	// ErrMissingFile is returned when the form has no part under the field.
	ErrMissingFile = errors.New("no file uploaded")

	// ErrTooLarge is returned when the body exceeds the configured limit.
	ErrTooLarge = errors.New("upload exceeds maximum size")

	// ErrMalformed is returned for bodies that are not valid multipart forms.
	ErrMalformed = errors.New("malformed multipart form")
)

// Handle identifies one stored upload.
type Handle struct {
	ID       string `json:"id"`
	Path     string `json:"-"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// Store writes uploads into a directory.
type Store struct {
	dir     string
	maxSize int64
	retry   filesystem.RetryConfig
}

// NewStore creates a store rooted at dir. maxSize bounds the request body in
// bytes; 0 disables the limit.
func NewStore(dir string, maxSize int64) *Store {
	return &Store{
		dir:     dir,
		maxSize: maxSize,
		retry:   filesystem.DefaultRetryConfig(),
	}
}

// Dir returns the directory uploads are written to.
func (s *Store) Dir() string {
	return s.dir
}

// ParseForm parses the multipart body of r, applying the size limit. The
// spill files the standard library creates are removed when scope is
// released.
func (s *Store) ParseForm(w http.ResponseWriter, r *http.Request, scope *cleanup.Scope) error {
	if r.MultipartForm != nil {
		return nil
	}
	if s.maxSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxSize)
	}

	err := r.ParseMultipartForm(memoryLimit)
	if r.MultipartForm != nil && scope != nil {
		form := r.MultipartForm
		scope.OnRelease(func() {
			if err := form.RemoveAll(); err != nil {
				logging.Warn("Failed to remove multipart spill files: %v", err)
			}
		})
	}
	if err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			metrics.UploadsTotal.WithLabelValues("too_large").Inc()
			return fmt.Errorf("%w (limit %d bytes)", ErrTooLarge, maxErr.Limit)
		case errors.Is(err, http.ErrNotMultipart), errors.Is(err, http.ErrMissingBoundary):
			return ErrMissingFile
		default:
			metrics.UploadsTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}
	return nil
}

// SaveForm stores every part under field. Each destination path is
// registered with scope before it is written, so a failed copy is still
// removed. With a nil scope the caller owns the files.
func (s *Store) SaveForm(w http.ResponseWriter, r *http.Request, field string, scope *cleanup.Scope) ([]Handle, error) {
	if err := s.ParseForm(w, r, scope); err != nil {
		return nil, err
	}

	headers := r.MultipartForm.File[field]
	if len(headers) == 0 {
		return nil, fmt.Errorf("%w: field %q", ErrMissingFile, field)
	}

	handles := make([]Handle, 0, len(headers))
	for _, fh := range headers {
		h, err := s.savePart(fh, scope)
		if err != nil {
			return nil, err
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// SaveOne is SaveForm for fields that carry a single file.
func (s *Store) SaveOne(w http.ResponseWriter, r *http.Request, field string, scope *cleanup.Scope) (Handle, error) {
	handles, err := s.SaveForm(w, r, field, scope)
	if err != nil {
		return Handle{}, err
	}
	return handles[0], nil
}

func (s *Store) savePart(fh *multipart.FileHeader, scope *cleanup.Scope) (Handle, error) {
	src, err := fh.Open()
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("error").Inc()
		return Handle{}, fmt.Errorf("failed to open uploaded part %q: %w", fh.Filename, err)
	}
	defer src.Close()

	return s.Save(src, fh.Filename, scope)
}

// Save copies src into a new upload file named after filename.
func (s *Store) Save(src io.Reader, filename string, scope *cleanup.Scope) (Handle, error) {
	id := uuid.NewString()
	name := SanitizeFilename(filename)
	path := filepath.Join(s.dir, id+"_"+name)
	if scope != nil {
		scope.Track(path)
	}

	dst, err := filesystem.CreateWithRetry(path, s.retry)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("error").Inc()
		return Handle{}, fmt.Errorf("failed to create upload file: %w", err)
	}

	n, copyErr := io.Copy(dst, src)
	closeErr := dst.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		if scope == nil {
			_ = os.Remove(path)
		}
		metrics.UploadsTotal.WithLabelValues("error").Inc()
		return Handle{}, fmt.Errorf("failed to write upload file: %w", copyErr)
	}

	metrics.UploadsTotal.WithLabelValues("success").Inc()
	metrics.UploadBytesTotal.Add(float64(n))
	logging.Debug("Stored upload %s (%s, %d bytes)", id, name, n)

	return Handle{ID: id, Path: path, Filename: name, Size: n}, nil
}

// SanitizeFilename reduces a client-supplied name to a safe base name:
// directory components are dropped, separators and control characters
// become underscores, and the result is length-limited with its extension
// kept. An unusable name becomes "upload".
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	if name == "/" || name == "." {
		return "upload"
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsControl(r), r == '/', r == ':', r == '"', r == '\'', r == '<', r == '>', r == '|', r == '?', r == '*':
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	name = strings.TrimSpace(b.String())
	name = strings.TrimLeft(name, ".")

	if name == "" {
		return "upload"
	}

	if len(name) > maxFilenameLen {
		ext := filepath.Ext(name)
		if len(ext) > 16 {
			ext = ""
		}
		name = truncateUTF8(strings.TrimSuffix(name, ext), maxFilenameLen-len(ext)) + ext
	}
	return name
}

func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8Start(s[n]) {
		n--
	}
	return s[:n]
}

func utf8Start(b byte) bool {
	return b&0xC0 != 0x80
}

// BaseName returns filename without its extension, for naming downloads.
func BaseName(filename string) string {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	if base == "" {
		return "output"
	}
	return base
}
