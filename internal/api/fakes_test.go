package api

import (
	"context"
	"time"

	"github.com/liveforge/streamctl/internal/domain/stream/model"
)

type fakeKeyStore struct {
	keys       map[string]model.StreamKey
	deactivated []string
}

func newFakeKeyStore() *fakeKeyStore { return &fakeKeyStore{keys: map[string]model.StreamKey{}} }

func (f *fakeKeyStore) Create(ctx context.Context, key *model.StreamKey) error {
	f.keys[key.ID] = *key
	return nil
}

func (f *fakeKeyStore) GetByID(ctx context.Context, id string) (model.StreamKey, error) {
	k, ok := f.keys[id]
	if !ok {
		return model.StreamKey{}, model.ErrUnknownKey
	}
	return k, nil
}

func (f *fakeKeyStore) List(ctx context.Context) ([]model.StreamKey, error) {
	out := make([]model.StreamKey, 0, len(f.keys))
	for _, k := range f.keys {
		out = append(out, k)
	}
	return out, nil
}

func (f *fakeKeyStore) Deactivate(ctx context.Context, id string) error {
	f.deactivated = append(f.deactivated, id)
	return nil
}

type fakeAssetStore struct {
	assets  map[string]model.Asset
	deleted []string
}

func newFakeAssetStore() *fakeAssetStore { return &fakeAssetStore{assets: map[string]model.Asset{}} }

func (f *fakeAssetStore) Create(ctx context.Context, asset *model.Asset) error {
	f.assets[asset.ID] = *asset
	return nil
}

func (f *fakeAssetStore) GetByID(ctx context.Context, id string) (model.Asset, error) {
	a, ok := f.assets[id]
	if !ok {
		return model.Asset{}, model.ErrUnknownAsset
	}
	return a, nil
}

func (f *fakeAssetStore) List(ctx context.Context) ([]model.Asset, error) {
	out := make([]model.Asset, 0, len(f.assets))
	for _, a := range f.assets {
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeAssetStore) Delete(ctx context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	delete(f.assets, id)
	return nil
}

type fakePlaylistStore struct {
	playlists map[string]model.Playlist
}

func newFakePlaylistStore() *fakePlaylistStore {
	return &fakePlaylistStore{playlists: map[string]model.Playlist{}}
}

func (f *fakePlaylistStore) Create(ctx context.Context, playlist *model.Playlist) error {
	f.playlists[playlist.ID] = *playlist
	return nil
}

func (f *fakePlaylistStore) GetByID(ctx context.Context, id string) (model.Playlist, error) {
	p, ok := f.playlists[id]
	if !ok {
		return model.Playlist{}, model.ErrUnknownPlaylist
	}
	return p, nil
}

func (f *fakePlaylistStore) List(ctx context.Context) ([]model.Playlist, error) {
	out := make([]model.Playlist, 0, len(f.playlists))
	for _, p := range f.playlists {
		out = append(out, p)
	}
	return out, nil
}

type fakeSessionStore struct {
	sessions map[string]model.Session
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: map[string]model.Session{}}
}

func (f *fakeSessionStore) CreateStarting(ctx context.Context, sess *model.Session) error {
	sess.Status = model.SessionStarting
	f.sessions[sess.ID] = *sess
	return nil
}

func (f *fakeSessionStore) MarkRunning(ctx context.Context, id string, pid int) error {
	s := f.sessions[id]
	s.Status = model.SessionRunning
	s.EncoderPID = pid
	f.sessions[id] = s
	return nil
}

func (f *fakeSessionStore) MarkRecovering(ctx context.Context, id, reason string) error {
	s := f.sessions[id]
	s.Status = model.SessionRecovering
	s.LastError = reason
	f.sessions[id] = s
	return nil
}

func (f *fakeSessionStore) MarkStopped(ctx context.Context, id string) error {
	s := f.sessions[id]
	s.Status = model.SessionStopped
	f.sessions[id] = s
	return nil
}

func (f *fakeSessionStore) MarkFailed(ctx context.Context, id, lastErr string) error {
	s := f.sessions[id]
	s.Status = model.SessionFailed
	s.LastError = lastErr
	f.sessions[id] = s
	return nil
}

func (f *fakeSessionStore) MarkInterrupted(ctx context.Context, id string) error {
	s := f.sessions[id]
	s.Status = model.SessionInterrupted
	f.sessions[id] = s
	return nil
}

func (f *fakeSessionStore) IncrementRestartCount(ctx context.Context, id string) error {
	s := f.sessions[id]
	s.RestartCount++
	f.sessions[id] = s
	return nil
}

func (f *fakeSessionStore) ResetRestartCount(ctx context.Context, id string) error {
	s := f.sessions[id]
	s.RestartCount = 0
	f.sessions[id] = s
	return nil
}

func (f *fakeSessionStore) GetByID(ctx context.Context, id string) (model.Session, error) {
	s, ok := f.sessions[id]
	if !ok {
		return model.Session{}, model.ErrMissingSession
	}
	return s, nil
}

func (f *fakeSessionStore) ActiveSessions(ctx context.Context) ([]model.Session, error) {
	var out []model.Session
	for _, s := range f.sessions {
		if s.Status.IsActive() {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSessionStore) ActiveByStreamKey(ctx context.Context, streamKeyID string) ([]model.Session, error) {
	var out []model.Session
	for _, s := range f.sessions {
		if s.StreamKeyID == streamKeyID && s.Status.IsActive() {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSessionStore) CountActive(ctx context.Context) (int, error) {
	active, _ := f.ActiveSessions(ctx)
	return len(active), nil
}

type fakeTriggerStore struct {
	triggers map[string]model.ScheduledTrigger
}

func newFakeTriggerStore() *fakeTriggerStore {
	return &fakeTriggerStore{triggers: map[string]model.ScheduledTrigger{}}
}

func (f *fakeTriggerStore) Create(ctx context.Context, trig *model.ScheduledTrigger) error {
	f.triggers[trig.ID] = *trig
	return nil
}

func (f *fakeTriggerStore) Update(ctx context.Context, trig *model.ScheduledTrigger) error {
	f.triggers[trig.ID] = *trig
	return nil
}

func (f *fakeTriggerStore) GetByID(ctx context.Context, id string) (model.ScheduledTrigger, error) {
	t, ok := f.triggers[id]
	if !ok {
		return model.ScheduledTrigger{}, model.ErrMissingTrigger
	}
	return t, nil
}

func (f *fakeTriggerStore) Delete(ctx context.Context, id string) error {
	delete(f.triggers, id)
	return nil
}

func (f *fakeTriggerStore) List(ctx context.Context, status model.TriggerStatus, streamKeyID string) ([]model.ScheduledTrigger, error) {
	var out []model.ScheduledTrigger
	for _, t := range f.triggers {
		if status != "" && t.Status != status {
			continue
		}
		if streamKeyID != "" && t.StreamKeyID != streamKeyID {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeTriggerStore) Pending(ctx context.Context) ([]model.ScheduledTrigger, error) {
	return f.List(ctx, model.TriggerPending, "")
}

func (f *fakeTriggerStore) Running(ctx context.Context) ([]model.ScheduledTrigger, error) {
	return f.List(ctx, model.TriggerRunning, "")
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }
