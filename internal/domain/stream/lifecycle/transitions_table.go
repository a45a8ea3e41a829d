package lifecycle

import "github.com/liveforge/streamctl/internal/domain/stream/model"

// Transition is a single allowed edge in the session lifecycle state machine.
type Transition struct {
	From  model.SessionStatus
	To    model.SessionStatus
	Event EventKind
}

var transitionsTable = []Transition{
	// Start path
	{From: model.SessionStarting, To: model.SessionRunning, Event: EvSpawnSucceeded},
	{From: model.SessionStarting, To: model.SessionFailed, Event: EvSpawnFailed},

	// Stop path
	{From: model.SessionStarting, To: model.SessionStopped, Event: EvStopRequested},
	{From: model.SessionRunning, To: model.SessionStopped, Event: EvStopRequested},
	{From: model.SessionRecovering, To: model.SessionStopped, Event: EvStopRequested},

	// Health monitor: dead stream handling and restart
	{From: model.SessionRunning, To: model.SessionRecovering, Event: EvLivenessLost},
	{From: model.SessionRecovering, To: model.SessionRunning, Event: EvRestartSucceeded},
	{From: model.SessionRecovering, To: model.SessionFailed, Event: EvRestartsExhausted},

	// Boot reconciliation: a running row with no matching OS process
	{From: model.SessionRunning, To: model.SessionInterrupted, Event: EvPidMissingOnBoot},
	{From: model.SessionRecovering, To: model.SessionInterrupted, Event: EvPidMissingOnBoot},
}

// TransitionFor returns the allowed transition for a given status+event.
func TransitionFor(from model.SessionStatus, ev EventKind) (Transition, bool) {
	for _, tr := range transitionsTable {
		if tr.From == from && tr.Event == ev {
			return tr, true
		}
	}
	return Transition{}, false
}
