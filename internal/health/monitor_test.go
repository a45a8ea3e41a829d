package health

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liveforge/streamctl/internal/domain/stream/manager"
	"github.com/liveforge/streamctl/internal/domain/stream/model"
	"github.com/liveforge/streamctl/internal/pipeline/encoder"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memSessionStore struct {
	mu       sync.Mutex
	sessions map[string]model.Session
}

func newMemSessionStore(sessions ...model.Session) *memSessionStore {
	m := &memSessionStore{sessions: make(map[string]model.Session)}
	for _, s := range sessions {
		m.sessions[s.ID] = s
	}
	return m
}

func (m *memSessionStore) get(id string) model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

func (m *memSessionStore) CreateStarting(ctx context.Context, sess *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = *sess
	return nil
}

func (m *memSessionStore) MarkRunning(ctx context.Context, id string, pid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return model.ErrMissingSession
	}
	sess.Status = model.SessionRunning
	sess.EncoderPID = pid
	m.sessions[id] = sess
	return nil
}

func (m *memSessionStore) MarkRecovering(ctx context.Context, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return model.ErrMissingSession
	}
	if sess.Status != model.SessionRunning {
		return model.ErrIllegalTransition
	}
	sess.Status = model.SessionRecovering
	sess.LastError = reason
	m.sessions[id] = sess
	return nil
}

func (m *memSessionStore) MarkStopped(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return model.ErrMissingSession
	}
	sess.Status = model.SessionStopped
	m.sessions[id] = sess
	return nil
}

func (m *memSessionStore) MarkFailed(ctx context.Context, id, lastErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return model.ErrMissingSession
	}
	sess.Status = model.SessionFailed
	sess.LastError = lastErr
	m.sessions[id] = sess
	return nil
}

func (m *memSessionStore) MarkInterrupted(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return model.ErrMissingSession
	}
	sess.Status = model.SessionInterrupted
	m.sessions[id] = sess
	return nil
}

func (m *memSessionStore) IncrementRestartCount(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return model.ErrMissingSession
	}
	sess.RestartCount++
	m.sessions[id] = sess
	return nil
}

func (m *memSessionStore) ResetRestartCount(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return model.ErrMissingSession
	}
	sess.RestartCount = 0
	m.sessions[id] = sess
	return nil
}

func (m *memSessionStore) GetByID(ctx context.Context, id string) (model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return model.Session{}, model.ErrMissingSession
	}
	return sess, nil
}

func (m *memSessionStore) ActiveSessions(ctx context.Context) ([]model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Session
	for _, sess := range m.sessions {
		if sess.Status.IsActive() {
			out = append(out, sess)
		}
	}
	return out, nil
}

func (m *memSessionStore) ActiveByStreamKey(ctx context.Context, streamKeyID string) ([]model.Session, error) {
	return nil, nil
}

func (m *memSessionStore) CountActive(ctx context.Context) (int, error) { return 0, nil }

type fakeSupervisor struct {
	mu       sync.Mutex
	statuses map[string]encoder.StatusInfo
	tracked  map[string]bool
	logs     map[string][]string
}

func newFakeSupervisor() *fakeSupervisor {
	return &fakeSupervisor{
		statuses: make(map[string]encoder.StatusInfo),
		tracked:  make(map[string]bool),
		logs:     make(map[string][]string),
	}
}

func (f *fakeSupervisor) setRunning(sessionID string, startedAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracked[sessionID] = true
	f.statuses[sessionID] = encoder.StatusInfo{Running: true, StartedAt: startedAt, PID: 1234}
}

func (f *fakeSupervisor) setUntracked(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tracked, sessionID)
	delete(f.statuses, sessionID)
}

func (f *fakeSupervisor) Status(sessionID string) (encoder.StatusInfo, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.tracked[sessionID] {
		return encoder.StatusInfo{}, false
	}
	return f.statuses[sessionID], true
}

func (f *fakeSupervisor) TailLog(sessionID string, n int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logs[sessionID]
}

type fakeManager struct {
	mu         sync.Mutex
	stopped    []string
	restarts   []string
	restartErr error
	restartPID int

	rotations     []string
	rotateSuccess bool
	rotateSummary manager.SessionSummary
	rotateErr     error
}

func (f *fakeManager) Stop(ctx context.Context, scope manager.StopScope, target string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, target)
	return []string{target}, nil
}

func (f *fakeManager) RestartEncoder(ctx context.Context, sess model.Session) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarts = append(f.restarts, sess.ID)
	if f.restartErr != nil {
		return 0, f.restartErr
	}
	return f.restartPID, nil
}

func (f *fakeManager) restartCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.restarts)
}

// RotateKey defaults to reporting no fallback key available (the common
// case in these tests), so exhausted-retry tests fall through to the usual
// MarkFailed finalization unless a case opts into rotateSuccess/rotateErr.
func (f *fakeManager) RotateKey(ctx context.Context, sessionID string) (manager.SessionSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rotations = append(f.rotations, sessionID)
	if f.rotateSuccess {
		return f.rotateSummary, nil
	}
	if f.rotateErr != nil {
		return manager.SessionSummary{}, f.rotateErr
	}
	return manager.SessionSummary{}, model.ErrNoFallbackKey
}

func (f *fakeManager) rotationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rotations)
}

func TestMonitor_DurationCap_StopsSession(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	sess := model.Session{
		ID: "sess-1", Status: model.SessionRunning, MaxDurationHours: 1,
		StartTime: clock.Now().Add(-2 * time.Hour),
	}
	sessions := newMemSessionStore(sess)
	sup := newFakeSupervisor()
	sup.setRunning("sess-1", clock.Now())
	mgr := &fakeManager{}

	m := New(sessions, sup, mgr, clock, "/usr/bin/ffmpeg")
	m.checkSession(context.Background(), sess)

	assert.Equal(t, []string{"sess-1"}, mgr.stopped)
}

func TestMonitor_Live_ResetsStabilityAfterThreshold(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	sess := model.Session{
		ID: "sess-1", Status: model.SessionRunning, RestartCount: 2,
		StartTime: clock.Now().Add(-2 * time.Hour),
	}
	sessions := newMemSessionStore(sess)
	sup := newFakeSupervisor()
	sup.setRunning("sess-1", clock.Now().Add(-2*time.Hour))
	mgr := &fakeManager{}

	m := New(sessions, sup, mgr, clock, "/usr/bin/ffmpeg")
	m.stabilityThreshold = time.Hour
	m.checkSession(context.Background(), sess)

	assert.Equal(t, 0, sessions.get("sess-1").RestartCount)
}

func TestMonitor_Live_DoesNotResetBeforeThreshold(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	sess := model.Session{
		ID: "sess-1", Status: model.SessionRunning, RestartCount: 2,
		StartTime: clock.Now().Add(-10 * time.Minute),
	}
	sessions := newMemSessionStore(sess)
	sup := newFakeSupervisor()
	sup.setRunning("sess-1", clock.Now().Add(-10*time.Minute))
	mgr := &fakeManager{}

	m := New(sessions, sup, mgr, clock, "/usr/bin/ffmpeg")
	m.stabilityThreshold = time.Hour
	m.checkSession(context.Background(), sess)

	assert.Equal(t, 2, sessions.get("sess-1").RestartCount)
}

func TestMonitor_DeadStream_RecoversAndRestarts(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	sess := model.Session{
		ID: "sess-1", Status: model.SessionRunning, EncoderPID: 0,
		StartTime: clock.Now(),
	}
	sessions := newMemSessionStore(sess)
	sup := newFakeSupervisor() // untracked: simulates a crashed encoder
	mgr := &fakeManager{restartPID: 9999}

	m := New(sessions, sup, mgr, clock, "/usr/bin/ffmpeg")
	m.restartDelays = []time.Duration{5 * time.Millisecond}

	m.checkSession(context.Background(), sess)
	assert.Equal(t, model.SessionRecovering, sessions.get("sess-1").Status)

	require.Eventually(t, func() bool {
		return sessions.get("sess-1").Status == model.SessionRunning
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 9999, sessions.get("sess-1").EncoderPID)
	assert.Equal(t, 1, mgr.restartCount())
}

func TestMonitor_DeadStream_ExhaustsRetriesAndFails(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	sess := model.Session{
		ID: "sess-1", Status: model.SessionRunning, StartTime: clock.Now(),
	}
	sessions := newMemSessionStore(sess)
	sup := newFakeSupervisor()
	mgr := &fakeManager{restartErr: assert.AnError}

	m := New(sessions, sup, mgr, clock, "/usr/bin/ffmpeg")
	m.restartDelays = []time.Duration{2 * time.Millisecond, 2 * time.Millisecond}

	m.checkSession(context.Background(), sess)

	require.Eventually(t, func() bool {
		return sessions.get("sess-1").Status == model.SessionFailed
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 2, mgr.restartCount())
}

func TestMonitor_ExhaustedRetries_RotatesToFallbackKey(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	sess := model.Session{
		ID: "sess-1", Status: model.SessionRunning, StartTime: clock.Now(),
	}
	sessions := newMemSessionStore(sess)
	sup := newFakeSupervisor()
	mgr := &fakeManager{
		restartErr:    assert.AnError,
		rotateSuccess: true,
		rotateSummary: manager.SessionSummary{SessionID: "sess-2", Status: model.SessionRunning},
	}

	m := New(sessions, sup, mgr, clock, "/usr/bin/ffmpeg")
	m.restartDelays = []time.Duration{2 * time.Millisecond}

	m.checkSession(context.Background(), sess)

	require.Eventually(t, func() bool {
		return mgr.rotationCount() == 1
	}, time.Second, 5*time.Millisecond)

	// The original session is left alone here: RotateKey owns finalizing it
	// (and did so as a fake), so the monitor must not also call MarkFailed.
	assert.Equal(t, model.SessionRunning, sessions.get("sess-1").Status)
}

func TestMonitor_DeadStream_StopRacesRestart(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	sess := model.Session{
		ID: "sess-1", Status: model.SessionRunning, StartTime: clock.Now(),
	}
	sessions := newMemSessionStore(sess)
	sup := newFakeSupervisor()
	mgr := &fakeManager{restartPID: 42}

	m := New(sessions, sup, mgr, clock, "/usr/bin/ffmpeg")
	m.restartDelays = []time.Duration{20 * time.Millisecond}

	m.checkSession(context.Background(), sess)
	require.NoError(t, sessions.MarkStopped(context.Background(), "sess-1"))

	time.Sleep(40 * time.Millisecond)

	assert.Equal(t, model.SessionStopped, sessions.get("sess-1").Status)
	assert.Equal(t, 0, mgr.restartCount())
}

func TestMonitor_OSFallback_DeadWhenUntrackedAndNoPID(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	sess := model.Session{
		ID: "sess-1", Status: model.SessionRunning, EncoderPID: 0,
		StartTime: clock.Now(),
	}
	sessions := newMemSessionStore(sess)
	sup := newFakeSupervisor() // untracked: C1's registry has lost the session
	mgr := &fakeManager{}

	m := New(sessions, sup, mgr, clock, "/usr/bin/ffmpeg")
	// With no registry entry and no recorded pid, the OS-level fallback has
	// nothing to check against and must treat the session as dead.
	assert.False(t, m.isLive(sess))
}
