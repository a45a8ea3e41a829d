// Package procutil provides OS-level process liveness checks used by the
// Health Monitor's fallback path when the encoder supervisor's in-memory
// registry has no entry for a session (e.g. the host process itself was
// restarted).
package procutil

// IsAlive reports whether pid currently identifies a live OS process.
func IsAlive(pid int) bool { return isAlive(pid) }

// MatchesImage reports whether pid's process image looks like binPath's
// base name. Platforms that cannot introspect this conservatively return
// true, so the liveness check degrades to a plain pid check rather than
// gaining a spurious second failure mode.
func MatchesImage(pid int, binPath string) bool { return matchesImage(pid, binPath) }
