/*
Package cleanup removes the files ffmpeg-api creates.

A [Scope] is owned by one request or job. Every path the request creates is
registered with it before the file is written, and a deferred Release
removes them all on every exit path:

	scope := cleanup.NewScope()
	defer scope.Release()

	out := scope.Path(cfg.ResultsDir, id, "output.mp3")

A [Sweeper] runs in the background and deletes files older than a per-target
TTL in the uploads, results and temp directories, then runs hooks that expire
database records. [Reset] empties a directory on demand.
*/
package cleanup
