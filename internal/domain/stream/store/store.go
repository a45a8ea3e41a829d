// Package store is the thin transactional layer over the entities of the
// domain model: all Session state transitions go through dedicated methods
// that assert the from-state, so an illegal transition surfaces as
// model.ErrIllegalTransition rather than silently overwriting a row.
package store

import (
	"context"
	"time"

	"github.com/liveforge/streamctl/internal/domain/stream/model"
)

// SessionStore persists Session rows and their state transitions.
type SessionStore interface {
	CreateStarting(ctx context.Context, sess *model.Session) error
	MarkRunning(ctx context.Context, id string, pid int) error
	MarkRecovering(ctx context.Context, id string, reason string) error
	MarkStopped(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, lastErr string) error
	MarkInterrupted(ctx context.Context, id string) error
	IncrementRestartCount(ctx context.Context, id string) error
	ResetRestartCount(ctx context.Context, id string) error

	GetByID(ctx context.Context, id string) (model.Session, error)
	ActiveSessions(ctx context.Context) ([]model.Session, error)
	ActiveByStreamKey(ctx context.Context, streamKeyID string) ([]model.Session, error)
	CountActive(ctx context.Context) (int, error)
}

// TriggerStore persists ScheduledTrigger rows.
type TriggerStore interface {
	Create(ctx context.Context, trig *model.ScheduledTrigger) error
	Update(ctx context.Context, trig *model.ScheduledTrigger) error
	GetByID(ctx context.Context, id string) (model.ScheduledTrigger, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, status model.TriggerStatus, streamKeyID string) ([]model.ScheduledTrigger, error)
	Pending(ctx context.Context) ([]model.ScheduledTrigger, error)
	Running(ctx context.Context) ([]model.ScheduledTrigger, error)
}

// KeyStore persists StreamKey rows.
type KeyStore interface {
	Create(ctx context.Context, key *model.StreamKey) error
	GetByID(ctx context.Context, id string) (model.StreamKey, error)
	List(ctx context.Context) ([]model.StreamKey, error)
	Deactivate(ctx context.Context, id string) error
}

// AssetStore persists Asset rows.
type AssetStore interface {
	Create(ctx context.Context, asset *model.Asset) error
	GetByID(ctx context.Context, id string) (model.Asset, error)
	List(ctx context.Context) ([]model.Asset, error)
	Delete(ctx context.Context, id string) error
}

// PlaylistStore persists Playlist rows and their ordered asset membership.
type PlaylistStore interface {
	Create(ctx context.Context, playlist *model.Playlist) error
	GetByID(ctx context.Context, id string) (model.Playlist, error)
	List(ctx context.Context) ([]model.Playlist, error)
}

// Clock abstracts time.Now for deterministic tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock is the production Clock backed by time.Now.
var SystemClock Clock = systemClock{}
