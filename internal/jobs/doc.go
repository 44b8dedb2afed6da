// Package jobs runs FFmpeg operations asynchronously.
//
// Jobs are stored in the database with a priority derived from their
// operation: quick probes and frame captures run before audio edits, which
// run before full video transcodes. A fixed pool of workers claims the next
// pending job, runs it through the same process runner as the synchronous
// endpoints and writes the result to results/{job}_output.{ext}.
//
// Results and the records that point at them expire through the cleanup
// sweeper hooks returned by Queue.ExpiryHooks.
package jobs
