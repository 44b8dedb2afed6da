// Package handlers provides the HTTP handlers of the FFmpeg API.
//
// It includes handlers for:
//   - Synchronous operations that upload, process and stream the result
//     in a single request
//   - Stored uploads and the asynchronous job queue built on them
//   - Health, readiness and version endpoints
//   - Resetting the temporary directory
package handlers
