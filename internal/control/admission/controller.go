// Package admission enforces per-key exclusivity, the global concurrency
// cap, and the active-key check before any session is allowed to start.
// Admission is advisory: the caller must persist the new Session row with
// status "starting" in the same unit of work as a passing Admit call, or a
// concurrent admission can race past it.
package admission

import (
	"context"

	"github.com/liveforge/streamctl/internal/domain/stream/model"
	"github.com/liveforge/streamctl/internal/domain/stream/store"
	"github.com/liveforge/streamctl/internal/metrics"
)

// Decision is the outcome of an admission check.
type Decision struct {
	Allow   bool
	Problem *Problem
}

// Controller implements the four-step Admit algorithm.
type Controller struct {
	keys          store.KeyStore
	sessions      store.SessionStore
	maxConcurrent int
}

// NewController builds a Controller backed by the given stores. maxConcurrent
// is the global cap on sessions in {starting, running, recovering}.
func NewController(keys store.KeyStore, sessions store.SessionStore, maxConcurrent int) *Controller {
	return &Controller{keys: keys, sessions: sessions, maxConcurrent: maxConcurrent}
}

// Admit evaluates whether stream_key_id may start a new session.
//
// Order (strict):
//  1. unknown key -> reject
//  2. inactive key -> reject
//  3. key already has an active session -> reject (key-busy)
//  4. global active-session count at or above the cap -> reject (capacity-exhausted)
func (c *Controller) Admit(ctx context.Context, streamKeyID string) Decision {
	key, err := c.keys.GetByID(ctx, streamKeyID)
	if err != nil {
		metrics.RecordAdmissionReject(CodeUnknownKey)
		return Decision{Allow: false, Problem: NewUnknownKey(streamKeyID)}
	}
	if !key.Active {
		metrics.RecordAdmissionReject(CodeInactiveKey)
		return Decision{Allow: false, Problem: NewInactiveKey(streamKeyID)}
	}

	existing, err := c.sessions.ActiveByStreamKey(ctx, streamKeyID)
	if err != nil {
		metrics.RecordAdmissionReject(CodeUnknownKey)
		return Decision{Allow: false, Problem: NewUnknownKey(streamKeyID)}
	}
	if len(existing) > 0 {
		metrics.RecordAdmissionReject(CodeKeyBusy)
		return Decision{Allow: false, Problem: NewKeyBusy(streamKeyID, existing[0].ID)}
	}

	count, err := c.sessions.CountActive(ctx)
	if err != nil {
		metrics.RecordAdmissionReject(CodeUnknownKey)
		return Decision{Allow: false, Problem: NewUnknownKey(streamKeyID)}
	}
	if count >= c.maxConcurrent {
		metrics.RecordAdmissionReject(CodeCapacityExhausted)
		return Decision{Allow: false, Problem: NewCapacityExhausted(count, c.maxConcurrent)}
	}

	metrics.RecordAdmit()
	return Decision{Allow: true}
}

// AsModelError maps a rejected Decision onto the sentinel error taxonomy of
// internal/domain/stream/model, for callers that need a plain error rather
// than a wire-shaped Problem (e.g. the scheduler's fire path).
func (d Decision) AsModelError() error {
	if d.Allow || d.Problem == nil {
		return nil
	}
	switch d.Problem.Code {
	case CodeUnknownKey:
		return model.ErrUnknownKey
	case CodeInactiveKey:
		return model.ErrInactiveKey
	case CodeKeyBusy:
		return model.ErrKeyBusy
	case CodeCapacityExhausted:
		return model.ErrCapacityExhausted
	default:
		return model.ErrUnknownKey
	}
}
