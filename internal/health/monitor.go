// Package health implements the Health Monitor (C7): a single cooperative
// task that wakes on a fixed tick and reconciles every active Session
// against reality — duration caps, encoder liveness, dead-stream recovery,
// and restart-count stability resets.
package health

import (
	"context"
	"errors"
	"time"

	"github.com/liveforge/streamctl/internal/domain/stream/manager"
	"github.com/liveforge/streamctl/internal/domain/stream/model"
	"github.com/liveforge/streamctl/internal/domain/stream/store"
	"github.com/liveforge/streamctl/internal/log"
	"github.com/liveforge/streamctl/internal/metrics"
	"github.com/liveforge/streamctl/internal/pipeline/encoder"
	"github.com/liveforge/streamctl/internal/procutil"
)

// TickInterval is how often the monitor reconciles active sessions.
const TickInterval = 10 * time.Second

// StabilityThreshold is how long a session must run continuously since its
// most recent restart before its restart_count resets to zero.
const StabilityThreshold = 3600 * time.Second

// RestartDelays is the delay sequence indexed by restart_count; reaching
// the end of the sequence without a successful restart finalizes the
// session as failed.
var RestartDelays = []time.Duration{
	5 * time.Second,
	30 * time.Second,
	120 * time.Second,
	300 * time.Second,
	600 * time.Second,
}

// EncoderStatusSource is the slice of the encoder supervisor (C1) the
// monitor needs: its registry presence is the primary liveness signal, and
// falling back to an OS-level check only happens when it has no entry at
// all. Satisfied by *encoder.Supervisor.
type EncoderStatusSource interface {
	Status(sessionID string) (encoder.StatusInfo, bool)
	TailLog(sessionID string, n int) []string
}

// SessionStopper is the slice of the Session Manager (C5) the monitor
// drives: duration-cap enforcement goes through Stop, dead-stream recovery
// goes through RestartEncoder (which bypasses admission, since the session
// already holds its slot). Satisfied by *manager.Manager.
type SessionStopper interface {
	Stop(ctx context.Context, scope manager.StopScope, target string) ([]string, error)
	RestartEncoder(ctx context.Context, sess model.Session) (int, error)
	RotateKey(ctx context.Context, sessionID string) (manager.SessionSummary, error)
}

// Monitor is the Health Monitor (C7). It implements suture.Service.
type Monitor struct {
	sessions       store.SessionStore
	supervisor     EncoderStatusSource
	manager        SessionStopper
	clock          store.Clock
	encoderBinPath string

	tickInterval       time.Duration
	restartDelays      []time.Duration
	stabilityThreshold time.Duration
}

// New builds a Monitor with the spec's fixed tick interval, restart-delay
// sequence, and stability threshold.
func New(sessions store.SessionStore, supervisor EncoderStatusSource, mgr SessionStopper, clock store.Clock, encoderBinPath string) *Monitor {
	return &Monitor{
		sessions:           sessions,
		supervisor:         supervisor,
		manager:            mgr,
		clock:              clock,
		encoderBinPath:     encoderBinPath,
		tickInterval:       TickInterval,
		restartDelays:      RestartDelays,
		stabilityThreshold: StabilityThreshold,
	}
}

// Serve implements suture.Service: it ticks until ctx is done.
func (m *Monitor) Serve(ctx context.Context) error {
	ticker := time.NewTicker(m.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// String implements suture.Service for log identification.
func (m *Monitor) String() string { return "health-monitor" }

func (m *Monitor) tick(ctx context.Context) {
	logger := log.WithComponentFromContext(ctx, "health-monitor")

	active, err := m.sessions.ActiveSessions(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("tick: list active sessions failed")
		return
	}
	for _, sess := range active {
		m.checkSession(ctx, sess)
	}
}

// checkSession applies the tick's decisions for one session, computed from
// a snapshot (the sess value passed in) and applied through short,
// from-state-asserting store calls — never inside a held transaction.
func (m *Monitor) checkSession(ctx context.Context, sess model.Session) {
	if sess.MaxDurationHours > 0 {
		cap := time.Duration(sess.MaxDurationHours) * time.Hour
		if m.clock.Now().Sub(sess.StartTime) >= cap {
			if _, err := m.manager.Stop(ctx, manager.StopBySession, sess.ID); err != nil {
				log.WithComponentFromContext(ctx, "health-monitor").Error().Err(err).
					Str(log.FieldSessionID, sess.ID).Msg("duration-cap stop failed")
			}
			return
		}
	}

	if m.isLive(sess) {
		m.maybeResetStability(ctx, sess)
		return
	}

	switch sess.Status {
	case model.SessionRunning:
		m.beginRecovery(ctx, sess)
	case model.SessionRecovering:
		// A restart attempt is already scheduled (see beginRecovery); this
		// tick has nothing further to do until it fires.
	}
}

// isLive asks C1's registry first; only when it has no entry at all (the
// host process was restarted and lost it) does it fall back to an OS-level
// pid check plus a process-image verification, per the mandatory
// disambiguation rule between C1 and C7's restart paths.
func (m *Monitor) isLive(sess model.Session) bool {
	if status, ok := m.supervisor.Status(sess.ID); ok {
		return status.Running
	}
	if sess.EncoderPID <= 0 {
		return false
	}
	return procutil.IsAlive(sess.EncoderPID) && procutil.MatchesImage(sess.EncoderPID, m.encoderBinPath)
}

// maybeResetStability implements P8: a session continuously running for
// ≥ StabilityThreshold since its most recent restart has restart_count
// reset to 0. The "since most recent restart" instant is the encoder
// supervisor's own StartedAt for the current process, which only C1
// provides; if the registry has no entry (C7 already took over liveness
// for this session) there is no reliable last-restart timestamp to reset
// against, so this is skipped rather than guessed.
func (m *Monitor) maybeResetStability(ctx context.Context, sess model.Session) {
	if sess.RestartCount == 0 {
		return
	}
	status, ok := m.supervisor.Status(sess.ID)
	if !ok {
		return
	}
	if m.clock.Now().Sub(status.StartedAt) >= m.stabilityThreshold {
		if err := m.sessions.ResetRestartCount(ctx, sess.ID); err != nil {
			log.WithComponentFromContext(ctx, "health-monitor").Error().Err(err).
				Str(log.FieldSessionID, sess.ID).Msg("reset restart count failed")
		}
	}
}

// beginRecovery captures the last log line, transitions the session to
// recovering, and arms the first delayed restart attempt.
func (m *Monitor) beginRecovery(ctx context.Context, sess model.Session) {
	logger := log.WithComponentFromContext(ctx, "health-monitor")

	lastLine := lastOrEmpty(m.supervisor.TailLog(sess.ID, 1))
	if err := m.sessions.MarkRecovering(ctx, sess.ID, lastLine); err != nil {
		logger.Error().Err(err).Str(log.FieldSessionID, sess.ID).Msg("mark recovering failed")
		return
	}
	m.scheduleRestartAttempt(sess.ID, sess.RestartCount)
}

// scheduleRestartAttempt arms a one-shot timer for the delay at
// restartDelays[attemptIndex], or finalizes the session as failed once the
// sequence is exhausted.
func (m *Monitor) scheduleRestartAttempt(sessionID string, attemptIndex int) {
	if attemptIndex >= len(m.restartDelays) {
		metrics.RecordRestartExhausted(metrics.PathHealthMonitor)
		m.finalizeFailed(sessionID)
		return
	}
	delay := m.restartDelays[attemptIndex]
	metrics.RecordEncoderRestart(metrics.PathHealthMonitor, delay.Seconds())
	time.AfterFunc(delay, func() {
		m.attemptRestart(sessionID, attemptIndex)
	})
}

// attemptRestart fires after a scheduled delay. It re-loads the session so
// a Stop (or any other transition) that raced the timer wins — the
// recovering-status check is the collision guard spec §5 requires.
func (m *Monitor) attemptRestart(sessionID string, attemptIndex int) {
	ctx := context.Background()
	logger := log.WithComponent("health-monitor")

	sess, err := m.sessions.GetByID(ctx, sessionID)
	if err != nil {
		logger.Error().Err(err).Str(log.FieldSessionID, sessionID).Msg("restart: reload failed")
		return
	}
	if sess.Status != model.SessionRecovering {
		return
	}

	if err := m.sessions.IncrementRestartCount(ctx, sessionID); err != nil {
		logger.Error().Err(err).Str(log.FieldSessionID, sessionID).Msg("restart: increment count failed")
	}

	pid, startErr := m.manager.RestartEncoder(ctx, sess)
	if startErr != nil {
		logger.Warn().Err(startErr).Str(log.FieldSessionID, sessionID).
			Int(log.FieldAttempt, attemptIndex).Msg("restart attempt failed")
		m.scheduleRestartAttempt(sessionID, attemptIndex+1)
		return
	}
	if err := m.sessions.MarkRunning(ctx, sessionID, pid); err != nil {
		logger.Error().Err(err).Str(log.FieldSessionID, sessionID).Msg("restart: mark running failed")
	}
}

// finalizeFailed fires once the restart-delay sequence is exhausted. Before
// giving up on the session it tries one stream key rotation — the session's
// own key may be the thing that's actually bad — and only falls back to
// marking the session failed outright when no fallback key is available.
func (m *Monitor) finalizeFailed(sessionID string) {
	ctx := context.Background()
	logger := log.WithComponent("health-monitor")

	if summary, err := m.manager.RotateKey(ctx, sessionID); err == nil {
		metrics.RecordKeyRotation()
		logger.Warn().Str(log.FieldSessionID, sessionID).
			Str("new_session_id", summary.SessionID).
			Msg("restart budget exhausted, rotated to fallback stream key")
		return
	} else if !errors.Is(err, model.ErrNoFallbackKey) {
		logger.Error().Err(err).Str(log.FieldSessionID, sessionID).Msg("rotation attempt failed")
	}

	lastLine := lastOrEmpty(m.supervisor.TailLog(sessionID, 1))
	if err := m.sessions.MarkFailed(ctx, sessionID, lastLine); err != nil {
		logger.Error().Err(err).
			Str(log.FieldSessionID, sessionID).Msg("finalize failed write failed")
	}
}

func lastOrEmpty(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}
