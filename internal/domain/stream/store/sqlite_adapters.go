package store

import (
	"context"

	"github.com/liveforge/streamctl/internal/domain/stream/model"
)

// SqliteStore exposes the session-store method set directly (CreateStarting,
// MarkRunning, GetByID, ...) and a handful of per-aggregate methods with
// disambiguating names (GetKeyByID, GetAssetByID, ...) since one struct
// cannot host two differently-typed GetByID methods. The adapters below give
// each aggregate its own SessionStore-shaped view satisfying the narrower
// interfaces in store.go, for callers that only need one of them.

// Keys returns a KeyStore view over the shared database.
func (s *SqliteStore) Keys() KeyStore { return keyStoreAdapter{s} }

// Assets returns an AssetStore view over the shared database.
func (s *SqliteStore) Assets() AssetStore { return assetStoreAdapter{s} }

// Playlists returns a PlaylistStore view over the shared database.
func (s *SqliteStore) Playlists() PlaylistStore { return playlistStoreAdapter{s} }

// Triggers returns a TriggerStore view over the shared database.
func (s *SqliteStore) Triggers() TriggerStore { return triggerStoreAdapter{s} }

// Sessions returns a SessionStore view over the shared database. SqliteStore
// already implements the interface directly; this exists so callers can hold
// one narrow interface value alongside Keys()/Assets()/Playlists()/Triggers().
func (s *SqliteStore) Sessions() SessionStore { return s }

type keyStoreAdapter struct{ s *SqliteStore }

func (a keyStoreAdapter) Create(ctx context.Context, key *model.StreamKey) error { return a.s.Create(ctx, key) }
func (a keyStoreAdapter) GetByID(ctx context.Context, id string) (model.StreamKey, error) {
	return a.s.GetKeyByID(ctx, id)
}
func (a keyStoreAdapter) List(ctx context.Context) ([]model.StreamKey, error) { return a.s.ListKeys(ctx) }
func (a keyStoreAdapter) Deactivate(ctx context.Context, id string) error     { return a.s.Deactivate(ctx, id) }

type assetStoreAdapter struct{ s *SqliteStore }

func (a assetStoreAdapter) Create(ctx context.Context, asset *model.Asset) error {
	return a.s.CreateAsset(ctx, asset)
}
func (a assetStoreAdapter) GetByID(ctx context.Context, id string) (model.Asset, error) {
	return a.s.GetAssetByID(ctx, id)
}
func (a assetStoreAdapter) List(ctx context.Context) ([]model.Asset, error) { return a.s.ListAssets(ctx) }
func (a assetStoreAdapter) Delete(ctx context.Context, id string) error    { return a.s.DeleteAsset(ctx, id) }

type playlistStoreAdapter struct{ s *SqliteStore }

func (a playlistStoreAdapter) Create(ctx context.Context, playlist *model.Playlist) error {
	return a.s.CreatePlaylist(ctx, playlist)
}
func (a playlistStoreAdapter) GetByID(ctx context.Context, id string) (model.Playlist, error) {
	return a.s.GetPlaylistByID(ctx, id)
}
func (a playlistStoreAdapter) List(ctx context.Context) ([]model.Playlist, error) {
	return a.s.ListPlaylists(ctx)
}

type triggerStoreAdapter struct{ s *SqliteStore }

func (a triggerStoreAdapter) Create(ctx context.Context, trig *model.ScheduledTrigger) error {
	return a.s.CreateTrigger(ctx, trig)
}
func (a triggerStoreAdapter) Update(ctx context.Context, trig *model.ScheduledTrigger) error {
	return a.s.UpdateTrigger(ctx, trig)
}
func (a triggerStoreAdapter) GetByID(ctx context.Context, id string) (model.ScheduledTrigger, error) {
	return a.s.GetTriggerByID(ctx, id)
}
func (a triggerStoreAdapter) Delete(ctx context.Context, id string) error {
	return a.s.DeleteTrigger(ctx, id)
}
func (a triggerStoreAdapter) List(ctx context.Context, status model.TriggerStatus, streamKeyID string) ([]model.ScheduledTrigger, error) {
	return a.s.ListTriggers(ctx, status, streamKeyID)
}
func (a triggerStoreAdapter) Pending(ctx context.Context) ([]model.ScheduledTrigger, error) {
	return a.s.PendingTriggers(ctx)
}
func (a triggerStoreAdapter) Running(ctx context.Context) ([]model.ScheduledTrigger, error) {
	return a.s.RunningTriggers(ctx)
}
