package main

import (
	"context"

	"github.com/liveforge/streamctl/internal/domain/stream/store"
	"github.com/liveforge/streamctl/internal/log"
)

// sessionStoreObserver implements encoder.RestartObserver, keeping Session
// rows in sync with restarts the supervisor's own in-process watcher
// performs without the Session Manager's involvement — the "supervisor"
// restart path distinct from the Health Monitor's own.
type sessionStoreObserver struct {
	sessions store.SessionStore
}

func (o sessionStoreObserver) OnRestartSucceeded(sessionID string, pid int) {
	ctx := context.Background()
	if err := o.sessions.IncrementRestartCount(ctx, sessionID); err != nil {
		log.WithComponent("encoder-supervisor").Error().Err(err).
			Str(log.FieldSessionID, sessionID).Msg("restart observer: increment count failed")
	}
	if err := o.sessions.MarkRunning(ctx, sessionID, pid); err != nil {
		log.WithComponent("encoder-supervisor").Error().Err(err).
			Str(log.FieldSessionID, sessionID).Msg("restart observer: mark running failed")
	}
}

func (o sessionStoreObserver) OnRestartsExhausted(sessionID string, lastErrorLine string) {
	ctx := context.Background()
	if err := o.sessions.MarkFailed(ctx, sessionID, lastErrorLine); err != nil {
		log.WithComponent("encoder-supervisor").Error().Err(err).
			Str(log.FieldSessionID, sessionID).Msg("restart observer: mark failed failed")
	}
}
