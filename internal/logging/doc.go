// Package logging provides a simple leveled logging interface for the
// ffmpeg-api service, backed by hclog.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information
//   - INFO: General operational messages
//   - WARN: Warning conditions
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the application
//
// The log level is configured via the LOG_LEVEL environment variable, and
// LOG_FORMAT=json switches the output to one JSON object per line. Output is
// written directly to stderr without buffering so container log collectors
// see every line as soon as it is emitted.
package logging
