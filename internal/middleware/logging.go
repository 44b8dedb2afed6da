package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ffmpeg-api/internal/logging"
)

// ResponseWriter wrapper to capture status code and bytes written
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.wroteHeader = true
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// LoggingConfig holds configuration for the logging middleware
type LoggingConfig struct {
	SkipPaths       []string
	LogHealthChecks bool
}

// DefaultLoggingConfig returns the default configuration
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		SkipPaths:       []string{"/metrics"},
		LogHealthChecks: true,
	}
}

// w3cHeader lists the fields of each access log line.
const w3cHeader = "#Fields: date time c-ip cs-method cs-uri-stem cs-uri-query sc-status sc-bytes time-taken cs-bytes cs(Content-Type) cs(User-Agent) cs(Referer)"

// W3CLogger writes access log lines in W3C Extended Log Format
type W3CLogger struct {
	config LoggingConfig
	write  func(line string)
}

// NewW3CLogger creates a W3C logger writing through the application log.
func NewW3CLogger(config LoggingConfig) *W3CLogger {
	return &W3CLogger{
		config: config,
		write:  func(line string) { logging.Printf("%s", line) },
	}
}

var healthCheckPaths = map[string]bool{
	"/health": true,
	"/livez":  true,
	"/readyz": true,
}

// sanitizeLogField removes control characters that could be used for log injection.
// This includes newlines, carriage returns, tabs, null bytes, and ANSI escape sequences.
func sanitizeLogField(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r':
			// Replace newlines/carriage returns with spaces to prevent log line forging
			b.WriteRune(' ')
		case r == '\x00':
			// Strip null bytes entirely
			continue
		case r == '\x1b':
			// Strip ANSI escape character to prevent terminal escape injection
			continue
		case r < 0x20 && r != '\t':
			// Strip other control characters (except tab which is benign in logs)
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Logger returns HTTP logging middleware using W3C Extended Log Format
func Logger(config LoggingConfig) func(http.Handler) http.Handler {
	return NewW3CLogger(config).Middleware
}

// Middleware wraps next with access logging.
func (l *W3CLogger) Middleware(next http.Handler) http.Handler {
	l.write(w3cHeader)
	config := l.config

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shouldSkip(r.URL.Path, config) {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		wrapped := newResponseWriter(w)

		next.ServeHTTP(wrapped, r)

		l.logRequest(r, wrapped, time.Since(start))
	})
}

// logRequest logs a request in W3C Extended Log Format. Every
// client-controlled field is sanitized before it reaches the log.
func (l *W3CLogger) logRequest(r *http.Request, rw *responseWriter, duration time.Duration) {
	now := time.Now().UTC()

	contentType, _, _ := strings.Cut(r.Header.Get("Content-Type"), ";")

	fields := []string{
		now.Format("2006-01-02"),
		now.Format("15:04:05"),
		field(getClientIP(r)),
		field(r.Method),
		field(r.URL.Path),
		field(r.URL.RawQuery),
		strconv.Itoa(rw.statusCode),
		strconv.FormatInt(rw.bytesWritten, 10),
		strconv.FormatInt(duration.Milliseconds(), 10),
		requestSize(r),
		field(contentType),
		field(r.Header.Get("User-Agent")),
		field(r.Header.Get("Referer")),
	}

	l.write(strings.Join(fields, " "))
}

// field sanitizes and escapes one value; empty values become "-".
func field(v string) string {
	v = strings.TrimSpace(sanitizeLogField(v))
	if v == "" {
		return "-"
	}
	return escapeW3CField(v)
}

// requestSize reports the declared upload size, "-" when unknown.
func requestSize(r *http.Request) string {
	if r.ContentLength < 0 {
		return "-"
	}
	return strconv.FormatInt(r.ContentLength, 10)
}

func shouldSkip(path string, config LoggingConfig) bool {
	// Skip explicitly configured paths
	for _, skipPath := range config.SkipPaths {
		if strings.HasPrefix(path, skipPath) {
			return true
		}
	}

	// Skip health checks if disabled
	if !config.LogHealthChecks && healthCheckPaths[path] {
		return true
	}

	return false
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// escapeW3CField escapes a field value for W3C log format
// Replaces spaces with + and quotes with escaped quotes
func escapeW3CField(s string) string {
	// If contains space or special chars, quote it
	if strings.ContainsAny(s, " \t\"") {
		s = strings.ReplaceAll(s, "\"", "\"\"")
		return "\"" + s + "\""
	}
	return s
}
