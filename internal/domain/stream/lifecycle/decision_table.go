package lifecycle

import "github.com/liveforge/streamctl/internal/domain/stream/model"

const (
	ForbiddenTerminalAbsorbing = "terminal_absorbing"
	ForbiddenOutOfOrder        = "out_of_order"
	ForbiddenAlreadyInState    = "already_in_state"
)

// Decision records whether a transition is allowed and, if not, why.
type Decision struct {
	Allowed bool
	Reason  string
}

func allowed() Decision        { return Decision{Allowed: true} }
func forbid(r string) Decision { return Decision{Allowed: false, Reason: r} }

// decisionTable defines an explicit decision for every Status×Event
// combination, so "is this forbidden, and why" never falls through to an
// implicit default.
var decisionTable = map[model.SessionStatus]map[EventKind]Decision{
	model.SessionStarting: {
		EvSpawnSucceeded:    allowed(),
		EvSpawnFailed:       allowed(),
		EvStopRequested:     allowed(),
		EvLivenessLost:      forbid(ForbiddenOutOfOrder),
		EvRestartSucceeded:  forbid(ForbiddenOutOfOrder),
		EvRestartsExhausted: forbid(ForbiddenOutOfOrder),
		EvPidMissingOnBoot:  forbid(ForbiddenOutOfOrder),
	},
	model.SessionRunning: {
		EvSpawnSucceeded:    forbid(ForbiddenOutOfOrder),
		EvSpawnFailed:       forbid(ForbiddenOutOfOrder),
		EvStopRequested:     allowed(),
		EvLivenessLost:      allowed(),
		EvRestartSucceeded:  forbid(ForbiddenOutOfOrder),
		EvRestartsExhausted: forbid(ForbiddenOutOfOrder),
		EvPidMissingOnBoot:  allowed(),
	},
	model.SessionRecovering: {
		EvSpawnSucceeded:    forbid(ForbiddenOutOfOrder),
		EvSpawnFailed:       forbid(ForbiddenOutOfOrder),
		EvStopRequested:     allowed(),
		EvLivenessLost:      forbid(ForbiddenAlreadyInState),
		EvRestartSucceeded:  allowed(),
		EvRestartsExhausted: allowed(),
		EvPidMissingOnBoot:  allowed(),
	},
	model.SessionStopped:     terminalDecisions(),
	model.SessionFailed:      terminalDecisions(),
	model.SessionInterrupted: terminalDecisions(),
}

func terminalDecisions() map[EventKind]Decision {
	return map[EventKind]Decision{
		EvSpawnSucceeded:    forbid(ForbiddenTerminalAbsorbing),
		EvSpawnFailed:       forbid(ForbiddenTerminalAbsorbing),
		EvStopRequested:     forbid(ForbiddenTerminalAbsorbing),
		EvLivenessLost:      forbid(ForbiddenTerminalAbsorbing),
		EvRestartSucceeded:  forbid(ForbiddenTerminalAbsorbing),
		EvRestartsExhausted: forbid(ForbiddenTerminalAbsorbing),
		EvPidMissingOnBoot:  forbid(ForbiddenTerminalAbsorbing),
	}
}

// DecisionFor returns the explicit decision for status×event.
func DecisionFor(from model.SessionStatus, ev EventKind) (Decision, bool) {
	m, ok := decisionTable[from]
	if !ok {
		return Decision{}, false
	}
	d, ok := m[ev]
	return d, ok
}
