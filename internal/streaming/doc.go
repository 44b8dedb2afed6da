/*
Package streaming sends result files to HTTP clients with timeout protection.

Slow or disconnected clients can otherwise pin a handler goroutine, and with
it the result file the handler is about to delete. TimeoutWriter wraps an
http.ResponseWriter and bounds each write and the idle time between writes:

	err := streaming.SendFile(r.Context(), w, streaming.Attachment{
		Path:        output,
		ContentType: "audio/mpeg",
		Filename:    "audio_clip.mp3",
	}, streaming.DefaultConfig())
	if errors.Is(err, streaming.ErrClientGone) {
		// Not a server error
	}

# Errors

  - ErrWriteTimeout: a single write exceeded Config.WriteTimeout
  - ErrClientGone: the request context ended mid-stream
  - ErrStreamCanceled: the writer was closed or sat idle past Config.IdleTimeout

SendFile opens the file before writing headers, so a missing file surfaces as
an error the caller can still map to a status code.
*/
package streaming
