// Package database provides SQLite persistence for the asynchronous side of
// the API.
//
// It stores:
//   - Uploads, with a reference count of the jobs that use them
//   - Jobs, their status, parameters and result file
//
// Uploads that no job references expire after the upload retention; finished
// jobs expire after the completed or failed job retention. Expired records are
// removed by the cleanup sweeper, which also deletes their files.
//
// The database uses WAL mode. Writes are serialized by an in-process lock so
// job claims are atomic across workers.
package database
