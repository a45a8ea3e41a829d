// Package lifecycle implements the Session state machine as data: an explicit
// table of allowed From→To edges per event, and a full State×Event decision
// matrix recording why a transition is forbidden when it is. This keeps
// invariant I2/I3 (pid and end_time presence tied to status) provable by
// inspection instead of scattered across call sites.
package lifecycle

// EventKind names a trigger for a session state transition.
type EventKind string

const (
	EvSpawnSucceeded     EventKind = "spawn_succeeded"
	EvSpawnFailed        EventKind = "spawn_failed"
	EvLivenessLost       EventKind = "liveness_lost"
	EvRestartSucceeded   EventKind = "restart_succeeded"
	EvRestartsExhausted  EventKind = "restarts_exhausted"
	EvStopRequested      EventKind = "stop_requested"
	EvPidMissingOnBoot   EventKind = "pid_missing_on_boot"
)
