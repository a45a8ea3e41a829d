package admission

import (
	"context"
	"testing"

	"github.com/liveforge/streamctl/internal/domain/stream/model"
	"github.com/liveforge/streamctl/internal/domain/stream/store"
	"github.com/stretchr/testify/require"
)

type fakeKeyStore struct {
	keys map[string]model.StreamKey
}

func (f fakeKeyStore) Create(ctx context.Context, key *model.StreamKey) error { return nil }
func (f fakeKeyStore) GetByID(ctx context.Context, id string) (model.StreamKey, error) {
	key, ok := f.keys[id]
	if !ok {
		return model.StreamKey{}, model.ErrUnknownKey
	}
	return key, nil
}
func (f fakeKeyStore) List(ctx context.Context) ([]model.StreamKey, error) { return nil, nil }
func (f fakeKeyStore) Deactivate(ctx context.Context, id string) error     { return nil }

type fakeSessionStore struct {
	store.SessionStore
	activeByKey map[string][]model.Session
	countActive int
}

func (f fakeSessionStore) ActiveByStreamKey(ctx context.Context, streamKeyID string) ([]model.Session, error) {
	return f.activeByKey[streamKeyID], nil
}

func (f fakeSessionStore) CountActive(ctx context.Context) (int, error) {
	return f.countActive, nil
}

func TestController_Admit_UnknownKey(t *testing.T) {
	c := NewController(fakeKeyStore{keys: map[string]model.StreamKey{}}, fakeSessionStore{}, 10)
	d := c.Admit(context.Background(), "missing")
	require.False(t, d.Allow)
	require.Equal(t, CodeUnknownKey, d.Problem.Code)
	require.ErrorIs(t, d.AsModelError(), model.ErrUnknownKey)
}

func TestController_Admit_InactiveKey(t *testing.T) {
	keys := fakeKeyStore{keys: map[string]model.StreamKey{"k1": {ID: "k1", Active: false}}}
	c := NewController(keys, fakeSessionStore{}, 10)
	d := c.Admit(context.Background(), "k1")
	require.False(t, d.Allow)
	require.Equal(t, CodeInactiveKey, d.Problem.Code)
}

func TestController_Admit_KeyBusy(t *testing.T) {
	keys := fakeKeyStore{keys: map[string]model.StreamKey{"k1": {ID: "k1", Active: true}}}
	sessions := fakeSessionStore{activeByKey: map[string][]model.Session{"k1": {{ID: "s1"}}}}
	c := NewController(keys, sessions, 10)
	d := c.Admit(context.Background(), "k1")
	require.False(t, d.Allow)
	require.Equal(t, CodeKeyBusy, d.Problem.Code)
}

func TestController_Admit_CapacityExhausted(t *testing.T) {
	keys := fakeKeyStore{keys: map[string]model.StreamKey{"k1": {ID: "k1", Active: true}}}
	sessions := fakeSessionStore{countActive: 10}
	c := NewController(keys, sessions, 10)
	d := c.Admit(context.Background(), "k1")
	require.False(t, d.Allow)
	require.Equal(t, CodeCapacityExhausted, d.Problem.Code)
}

func TestController_Admit_Allowed(t *testing.T) {
	keys := fakeKeyStore{keys: map[string]model.StreamKey{"k1": {ID: "k1", Active: true}}}
	sessions := fakeSessionStore{countActive: 2}
	c := NewController(keys, sessions, 10)
	d := c.Admit(context.Background(), "k1")
	require.True(t, d.Allow)
	require.Nil(t, d.Problem)
}
