// Package scheduler implements the Scheduler (C6): deferred and recurring
// session starts. A ScheduledTrigger row is the persisted intent; a timer
// wheel entry keyed by job id is the in-memory mechanism that wakes the
// fire path at the right instant. The wheel is deliberately a thin
// collaborator (internal/scheduler/timerwheel.go) so its contract —
// RegisterOnce/Cancel/EnumerateActive — could be swapped for a different
// backing structure without touching fire-time logic.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/liveforge/streamctl/internal/domain/stream/manager"
	"github.com/liveforge/streamctl/internal/domain/stream/model"
	"github.com/liveforge/streamctl/internal/domain/stream/store"
	"github.com/liveforge/streamctl/internal/log"
	"github.com/liveforge/streamctl/internal/metrics"
)

// SessionStarter is the narrow slice of the Session Manager the scheduler's
// fire path needs. Satisfied by *manager.Manager.
type SessionStarter interface {
	StartManual(ctx context.Context, req manager.StartManualRequest) (manager.SessionSummary, error)
}

// ScheduleRequest carries the inputs to Schedule, matching spec §4.6's
// trigger_input plus the content fields StartManual itself takes.
type ScheduleRequest struct {
	StreamKeyID       string
	Mode              model.SessionMode
	AssetID           string
	PlaylistID        string
	BackgroundAssetID string
	AmbientAssetID    string
	AmbientVolume     float64
	Loop              bool
	MaxDurationHours  int

	ScheduledTime time.Time // must be UTC
	Recurrence    model.Recurrence
}

// Scheduler is the Scheduler (C6). It implements suture.Service (Serve,
// String) so it can be supervised alongside the rest of the control plane.
type Scheduler struct {
	triggers store.TriggerStore
	sessions store.SessionStore
	starter  SessionStarter
	clock    store.Clock
	wheel    *timerWheel
}

// New builds a Scheduler. Call Recover once at boot before Serve, so that
// pending triggers from a prior process are re-armed before traffic starts.
func New(triggers store.TriggerStore, sessions store.SessionStore, starter SessionStarter, clock store.Clock) *Scheduler {
	s := &Scheduler{triggers: triggers, sessions: sessions, starter: starter, clock: clock}
	s.wheel = newTimerWheel(s.fire)
	return s
}

// Serve implements suture.Service: it drives the timer wheel until ctx is
// done.
func (s *Scheduler) Serve(ctx context.Context) error {
	s.wheel.Run(ctx.Done())
	return ctx.Err()
}

// String implements suture.Service for log identification.
func (s *Scheduler) String() string { return "scheduler" }

func (s *Scheduler) contentFromRequest(req ScheduleRequest) (model.SessionContent, error) {
	switch req.Mode {
	case model.ModeSingle:
		if req.AssetID == "" {
			return model.SessionContent{}, model.ErrMissingContentID
		}
		return model.NewSingleContent(req.AssetID), nil
	case model.ModePlaylist:
		if req.PlaylistID == "" {
			return model.SessionContent{}, model.ErrMissingContentID
		}
		return model.NewPlaylistContent(req.PlaylistID), nil
	case model.ModeMusicPlaylist:
		if req.BackgroundAssetID == "" || req.PlaylistID == "" {
			return model.SessionContent{}, model.ErrMissingContentID
		}
		return model.NewMusicPlaylistContent(req.BackgroundAssetID, req.PlaylistID, req.AmbientAssetID, req.AmbientVolume), nil
	default:
		return model.SessionContent{}, model.ErrBadMode
	}
}

func requestFromContent(content model.SessionContent, streamKeyID string, loop bool, maxDurationHours int) manager.StartManualRequest {
	req := manager.StartManualRequest{
		StreamKeyID:      streamKeyID,
		Mode:             content.Mode(),
		Loop:             loop,
		MaxDurationHours: maxDurationHours,
	}
	if assetID, ok := content.AssetID(); ok {
		req.AssetID = assetID
	}
	if playlistID, ok := content.PlaylistID(); ok {
		req.PlaylistID = playlistID
	}
	if bgID, ok := content.BackgroundAssetID(); ok {
		req.BackgroundAssetID = bgID
	}
	if ambientID, ok := content.AmbientAssetID(); ok {
		req.AmbientAssetID = ambientID
	}
	req.AmbientVolume = content.AmbientVolume()
	return req
}

// validateScheduleInput checks the time/recurrence/content rules shared by
// Schedule and Reschedule, returning the resolved content on success.
func (s *Scheduler) validateScheduleInput(req ScheduleRequest) (model.SessionContent, error) {
	if req.ScheduledTime.UTC().Before(s.clock.Now()) {
		return model.SessionContent{}, model.ErrPastScheduledTime
	}
	switch req.Recurrence {
	case "", model.RecurrenceNone, model.RecurrenceDaily, model.RecurrenceWeekly:
	default:
		return model.SessionContent{}, model.ErrBadRecurrence
	}
	return s.contentFromRequest(req)
}

// Schedule implements spec §4.6's Schedule operation: persist a pending
// trigger row and register its one-shot timer.
func (s *Scheduler) Schedule(ctx context.Context, req ScheduleRequest) (model.ScheduledTrigger, error) {
	content, err := s.validateScheduleInput(req)
	if err != nil {
		return model.ScheduledTrigger{}, err
	}

	id := uuid.NewString()
	now := s.clock.Now()
	trig := &model.ScheduledTrigger{
		ID:               id,
		JobID:            id,
		StreamKeyID:      req.StreamKeyID,
		Content:          content,
		Loop:             req.Loop,
		MaxDurationHours: req.MaxDurationHours,
		ScheduledTime:    req.ScheduledTime.UTC(),
		Recurrence:       req.Recurrence,
		Status:           model.TriggerPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.triggers.Create(ctx, trig); err != nil {
		return model.ScheduledTrigger{}, err
	}

	s.wheel.RegisterOnce(trig.ScheduledTime, trig.JobID)
	return *trig, nil
}

// Cancel implements spec §4.6's cancellation: only pending triggers are
// cancellable, and the timer is deregistered before the status write
// returns.
func (s *Scheduler) Cancel(ctx context.Context, triggerID string) error {
	trig, err := s.triggers.GetByID(ctx, triggerID)
	if err != nil {
		return err
	}
	if trig.Status != model.TriggerPending {
		return model.ErrNotPending
	}

	s.wheel.Cancel(trig.JobID)

	trig.Status = model.TriggerCancelled
	trig.UpdatedAt = s.clock.Now()
	return s.triggers.Update(ctx, &trig)
}

// Reschedule implements PUT /live/schedule/{id}: only a pending trigger may
// be edited. The old timer is deregistered before the new one is armed, the
// same ordering Cancel uses.
func (s *Scheduler) Reschedule(ctx context.Context, triggerID string, req ScheduleRequest) (model.ScheduledTrigger, error) {
	trig, err := s.triggers.GetByID(ctx, triggerID)
	if err != nil {
		return model.ScheduledTrigger{}, err
	}
	if trig.Status != model.TriggerPending {
		return model.ScheduledTrigger{}, model.ErrNotPending
	}

	content, err := s.validateScheduleInput(req)
	if err != nil {
		return model.ScheduledTrigger{}, err
	}

	s.wheel.Cancel(trig.JobID)

	trig.StreamKeyID = req.StreamKeyID
	trig.Content = content
	trig.Loop = req.Loop
	trig.MaxDurationHours = req.MaxDurationHours
	trig.ScheduledTime = req.ScheduledTime.UTC()
	trig.Recurrence = req.Recurrence
	trig.UpdatedAt = s.clock.Now()
	if err := s.triggers.Update(ctx, &trig); err != nil {
		return model.ScheduledTrigger{}, err
	}

	s.wheel.RegisterOnce(trig.ScheduledTime, trig.JobID)
	return trig, nil
}

// fire is the timer wheel's callback, run in its own goroutine per job.
// The wheel's payload is the job id, which is assigned equal to the
// trigger's own id at creation, so the row itself is loaded inside
// fireTrigger's "re-load the row" step.
func (s *Scheduler) fire(jobID string) {
	ctx := log.ContextWithJobID(context.Background(), jobID)
	s.fireTrigger(ctx, model.ScheduledTrigger{ID: jobID})
}

func (s *Scheduler) fireTrigger(ctx context.Context, trig model.ScheduledTrigger) {
	logger := log.WithComponentFromContext(ctx, "scheduler")

	// Re-load to guard against a cancel/edit that raced the timer firing.
	fresh, err := s.triggers.GetByID(ctx, trig.ID)
	if err != nil {
		logger.Error().Err(err).Str(log.FieldTriggerID, trig.ID).Msg("fire: re-load failed")
		return
	}
	if fresh.Status != model.TriggerPending {
		// P7: firing a non-pending trigger is a no-op.
		return
	}

	fresh.Status = model.TriggerRunning
	fresh.UpdatedAt = s.clock.Now()
	if err := s.triggers.Update(ctx, &fresh); err != nil {
		logger.Error().Err(err).Str(log.FieldTriggerID, fresh.ID).Msg("fire: transition to running failed")
		return
	}

	summary, startErr := s.starter.StartManual(ctx, requestFromContent(fresh.Content, fresh.StreamKeyID, fresh.Loop, fresh.MaxDurationHours))
	if startErr != nil {
		fresh.Status = model.TriggerFailed
		fresh.ErrorMessage = startErr.Error()
		fresh.UpdatedAt = s.clock.Now()
		if err := s.triggers.Update(ctx, &fresh); err != nil {
			logger.Error().Err(err).Str(log.FieldTriggerID, fresh.ID).Msg("fire: finalize-failed write failed")
			return
		}
		metrics.RecordSchedulerFire(metrics.OutcomeFailed)
		// A fire-time failure does not retry, but recurrence is unaffected.
		s.scheduleNextOccurrence(ctx, fresh)
		return
	}

	fresh.Status = model.TriggerCompleted
	fresh.SpawnedSessionID = summary.SessionID
	fresh.UpdatedAt = s.clock.Now()
	if err := s.triggers.Update(ctx, &fresh); err != nil {
		logger.Error().Err(err).Str(log.FieldTriggerID, fresh.ID).Msg("fire: finalize-completed write failed")
		return
	}

	metrics.RecordSchedulerFire(metrics.OutcomeStarted)
	s.scheduleNextOccurrence(ctx, fresh)
}

// scheduleNextOccurrence implements the non-backfilling recurrence rule:
// only the single next future occurrence is queued, computed from the
// fired trigger's own scheduled_time, never from "now".
func (s *Scheduler) scheduleNextOccurrence(ctx context.Context, fired model.ScheduledTrigger) {
	logger := log.WithComponentFromContext(ctx, "scheduler")

	next, ok := fired.Recurrence.Next(fired.ScheduledTime)
	if !ok {
		return
	}

	id := uuid.NewString()
	now := s.clock.Now()
	trig := &model.ScheduledTrigger{
		ID:               id,
		JobID:            id,
		StreamKeyID:      fired.StreamKeyID,
		Content:          fired.Content,
		Loop:             fired.Loop,
		MaxDurationHours: fired.MaxDurationHours,
		ScheduledTime:    next,
		Recurrence:       fired.Recurrence,
		Status:           model.TriggerPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.triggers.Create(ctx, trig); err != nil {
		logger.Error().Err(err).Str(log.FieldTriggerID, fired.ID).Msg("recurrence: create next occurrence failed")
		return
	}
	s.wheel.RegisterOnce(trig.ScheduledTime, trig.JobID)
}

// Recover implements spec §4.6's boot recovery: pending triggers in the
// past fire immediately, pending triggers in the future are re-armed, and
// running triggers left over from a prior crash are reconciled against
// their spawned session's current status.
func (s *Scheduler) Recover(ctx context.Context) error {
	pending, err := s.triggers.Pending(ctx)
	if err != nil {
		return fmt.Errorf("scheduler recovery: list pending: %w", err)
	}
	now := s.clock.Now()
	for _, trig := range pending {
		if trig.ScheduledTime.After(now) {
			s.wheel.RegisterOnce(trig.ScheduledTime, trig.JobID)
			continue
		}
		go s.fireTrigger(ctx, trig)
	}

	running, err := s.triggers.Running(ctx)
	if err != nil {
		return fmt.Errorf("scheduler recovery: list running: %w", err)
	}
	for _, trig := range running {
		s.reconcileRunning(ctx, trig)
	}
	return nil
}

func (s *Scheduler) reconcileRunning(ctx context.Context, trig model.ScheduledTrigger) {
	logger := log.WithComponentFromContext(ctx, "scheduler")

	status := model.TriggerFailed
	if trig.SpawnedSessionID != "" {
		sess, err := s.sessions.GetByID(ctx, trig.SpawnedSessionID)
		if err == nil && sess.Status.IsActive() {
			status = model.TriggerCompleted
		}
	}

	trig.Status = status
	trig.UpdatedAt = s.clock.Now()
	if err := s.triggers.Update(ctx, &trig); err != nil {
		logger.Error().Err(err).Str(log.FieldTriggerID, trig.ID).Msg("recovery: reconcile running trigger failed")
		return
	}
	if status == model.TriggerCompleted {
		return
	}
	s.scheduleNextOccurrence(ctx, trig)
}
