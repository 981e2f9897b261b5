// Package worker owns the bridge's subprocess: spawning it, pumping its
// stdout/stderr into a single event feed, writing newline-terminated frames
// to its stdin, and terminating it.
//
// Key behaviors:
//   - Spawn failure is synchronous; everything after arrives as events
//   - One reader goroutine per stream; output is split into lines, the
//     error stream is forwarded as raw chunks
//   - Output decoding is configurable (utf-8 default, latin-1 supported)
//   - The process is reaped only after both readers finish, so Wait never
//     races the pipe reads
//   - Termination is SIGTERM → grace period → SIGKILL, idempotent
//
// The feed ends with exactly one EventExit and is then closed; consumers
// must drain it to completion.
package worker
