package lifecycle

import (
	"time"

	"github.com/liveforge/streamctl/internal/domain/stream/model"
)

// Dispatch resolves and applies the next transition for ev against sess's
// current status. It is the only place session status is allowed to change,
// which is what keeps invariants I2 (pid presence) and I3 (end_time presence)
// true by construction rather than by caller discipline.
func Dispatch(sess *model.Session, ev EventKind, now time.Time) (Transition, error) {
	decision, ok := DecisionFor(sess.Status, ev)
	if !ok || !decision.Allowed {
		return Transition{}, model.ErrIllegalTransition
	}
	tr, ok := TransitionFor(sess.Status, ev)
	if !ok {
		return Transition{}, model.ErrIllegalTransition
	}

	apply(sess, tr, now)
	return tr, nil
}

func apply(sess *model.Session, tr Transition, now time.Time) {
	sess.Status = tr.To

	switch tr.To {
	case model.SessionRunning:
		sess.EndTime = nil
	case model.SessionRecovering:
		// The last known pid is kept while recovering (I2); Dispatch itself
		// only moves status.
	case model.SessionStopped, model.SessionFailed, model.SessionInterrupted:
		sess.EncoderPID = 0
		end := now
		sess.EndTime = &end
	}
}

// ForbiddenTransitionReason documents why a transition is disallowed, or ""
// if it is allowed (or the status×event pair is unmodeled).
func ForbiddenTransitionReason(from model.SessionStatus, ev EventKind) string {
	decision, ok := DecisionFor(from, ev)
	if !ok || decision.Allowed {
		return ""
	}
	return decision.Reason
}
