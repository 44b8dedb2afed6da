package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"sync"
)

// CompressionConfig holds configuration for the compression middleware
type CompressionConfig struct {
	// MinSize is the minimum response size in bytes before compression is applied
	MinSize int
	// Level is the gzip compression level (gzip.BestSpeed to gzip.BestCompression)
	Level int
	// CompressibleTypes is a list of content types that should be compressed
	CompressibleTypes []string
}

// DefaultCompressionConfig returns the defaults used by the server. Media
// results are already compressed, so only API documents qualify.
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize: 1024,
		Level:   gzip.DefaultCompression,
		CompressibleTypes: []string{
			"application/json",
			"text/plain",
		},
	}
}

var gzipWriterPools sync.Map // level → *sync.Pool

func gzipPool(level int) *sync.Pool {
	if p, ok := gzipWriterPools.Load(level); ok {
		return p.(*sync.Pool)
	}
	p, _ := gzipWriterPools.LoadOrStore(level, &sync.Pool{
		New: func() interface{} {
			w, err := gzip.NewWriterLevel(io.Discard, level)
			if err != nil {
				w = gzip.NewWriter(io.Discard)
			}
			return w
		},
	})
	return p.(*sync.Pool)
}

// compressMode records what the writer decided for the response.
type compressMode int

const (
	modeUndecided compressMode = iota
	modeBuffering              // compressible type, waiting for MinSize bytes
	modePassthrough
	modeGzip
)

// gzipResponseWriter compresses compressible responses once they reach
// MinSize. Anything else, including file downloads, is passed through
// unbuffered as soon as its headers are known.
type gzipResponseWriter struct {
	http.ResponseWriter
	config     CompressionConfig
	mode       compressMode
	statusCode int
	buffer     []byte
	gz         *gzip.Writer
}

func newGzipResponseWriter(w http.ResponseWriter, config CompressionConfig) *gzipResponseWriter {
	return &gzipResponseWriter{
		ResponseWriter: w,
		config:         config,
		statusCode:     http.StatusOK,
	}
}

// WriteHeader records the status and decides the mode from the headers the
// handler has set.
func (g *gzipResponseWriter) WriteHeader(statusCode int) {
	if g.mode != modeUndecided {
		return
	}
	g.statusCode = statusCode
	g.decide()
}

func (g *gzipResponseWriter) decide() {
	h := g.Header()
	if h.Get("Content-Encoding") != "" || !g.compressible(h.Get("Content-Type")) ||
		g.statusCode == http.StatusNoContent || g.statusCode == http.StatusNotModified {
		g.mode = modePassthrough
		g.ResponseWriter.WriteHeader(g.statusCode)
		return
	}
	g.mode = modeBuffering
	g.buffer = make([]byte, 0, g.config.MinSize)
}

func (g *gzipResponseWriter) compressible(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	for _, t := range g.config.CompressibleTypes {
		if mediaType == t {
			return true
		}
	}
	return false
}

func (g *gzipResponseWriter) Write(data []byte) (int, error) {
	if g.mode == modeUndecided {
		g.WriteHeader(http.StatusOK)
	}

	switch g.mode {
	case modeGzip:
		return g.gz.Write(data)
	case modeBuffering:
		g.buffer = append(g.buffer, data...)
		if len(g.buffer) >= g.config.MinSize {
			if err := g.startGzip(); err != nil {
				return 0, err
			}
		}
		return len(data), nil
	default:
		return g.ResponseWriter.Write(data)
	}
}

// startGzip switches a buffered response to compression and writes what was
// buffered.
func (g *gzipResponseWriter) startGzip() error {
	h := g.Header()
	h.Del("Content-Length")
	h.Set("Content-Encoding", "gzip")
	h.Add("Vary", "Accept-Encoding")
	g.ResponseWriter.WriteHeader(g.statusCode)

	g.gz = gzipPool(g.config.Level).Get().(*gzip.Writer)
	g.gz.Reset(g.ResponseWriter)
	g.mode = modeGzip

	_, err := g.gz.Write(g.buffer)
	g.buffer = nil
	return err
}

// Close flushes a response that stayed under MinSize uncompressed and
// returns the gzip writer to its pool.
func (g *gzipResponseWriter) Close() error {
	switch g.mode {
	case modeUndecided:
		g.WriteHeader(g.statusCode)
		return nil
	case modeBuffering:
		g.mode = modePassthrough
		g.ResponseWriter.WriteHeader(g.statusCode)
		_, err := g.ResponseWriter.Write(g.buffer)
		g.buffer = nil
		return err
	case modeGzip:
		err := g.gz.Close()
		gzipPool(g.config.Level).Put(g.gz)
		g.gz = nil
		return err
	}
	return nil
}

// Flush implements http.Flusher. A buffered response is committed to
// compression first.
func (g *gzipResponseWriter) Flush() {
	if g.mode == modeUndecided {
		g.WriteHeader(g.statusCode)
	}
	if g.mode == modeBuffering {
		if err := g.startGzip(); err != nil {
			return
		}
	}
	if g.gz != nil {
		_ = g.gz.Flush()
	}
	if flusher, ok := g.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (g *gzipResponseWriter) Unwrap() http.ResponseWriter {
	return g.ResponseWriter
}

// Compression returns a middleware that gzips JSON and text responses for
// clients that accept it.
func Compression(config CompressionConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodHead || !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
				next.ServeHTTP(w, r)
				return
			}

			gzw := newGzipResponseWriter(w, config)
			defer func() { _ = gzw.Close() }()

			next.ServeHTTP(gzw, r)
		})
	}
}
