package api

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liveforge/streamctl/internal/domain/stream/model"
)

func TestAssetReferencedByActiveSession_DirectAndPlaylistReferences(t *testing.T) {
	assets := newFakeAssetStore()
	playlists := newFakePlaylistStore()
	sessions := newFakeSessionStore()

	_ = assets.Create(context.Background(), &model.Asset{ID: "asset-direct", Path: "/a.mp4"})
	_ = assets.Create(context.Background(), &model.Asset{ID: "asset-in-playlist", Path: "/b.mp4"})
	_ = assets.Create(context.Background(), &model.Asset{ID: "asset-unused", Path: "/c.mp4"})

	_ = playlists.Create(context.Background(), &model.Playlist{
		ID:       "playlist-1",
		AssetIDs: []string{"asset-in-playlist"},
		Mode:     model.PlaylistSequence,
	})

	sessions.sessions["sess-direct"] = model.Session{
		ID:      "sess-direct",
		Status:  model.SessionRunning,
		Content: model.NewSingleContent("asset-direct"),
	}
	sessions.sessions["sess-playlist"] = model.Session{
		ID:      "sess-playlist",
		Status:  model.SessionRunning,
		Content: model.NewPlaylistContent("playlist-1"),
	}
	sessions.sessions["sess-stopped"] = model.Session{
		ID:      "sess-stopped",
		Status:  model.SessionStopped,
		Content: model.NewSingleContent("asset-unused"),
	}

	s := &Server{assets: assets, playlists: playlists, sessions: sessions}

	referenced, err := s.assetReferencedByActiveSession(context.Background(), "asset-direct")
	require.NoError(t, err)
	assert.True(t, referenced)

	referenced, err = s.assetReferencedByActiveSession(context.Background(), "asset-in-playlist")
	require.NoError(t, err)
	assert.True(t, referenced)

	referenced, err = s.assetReferencedByActiveSession(context.Background(), "asset-unused")
	require.NoError(t, err)
	assert.False(t, referenced, "asset only referenced by a stopped (inactive) session must not block deletion")
}

func TestHandleDeleteKey_ConflictsWhenActiveSessionExists(t *testing.T) {
	keys := newFakeKeyStore()
	sessions := newFakeSessionStore()

	_ = keys.Create(context.Background(), &model.StreamKey{ID: "key-1", Name: "k", Token: "t", Active: true})
	sessions.sessions["sess-1"] = model.Session{ID: "sess-1", StreamKeyID: "key-1", Status: model.SessionRunning}

	s := &Server{keys: keys, sessions: sessions}

	rec := newTestDeleteKeyRequest(t, s, "key-1")
	assert.Equal(t, 409, rec.Code)
	assert.Empty(t, keys.deactivated, "a conflicting key must not be deactivated")
}

func TestHandleDeleteKey_SucceedsWhenNoActiveSession(t *testing.T) {
	keys := newFakeKeyStore()
	sessions := newFakeSessionStore()

	_ = keys.Create(context.Background(), &model.StreamKey{ID: "key-1", Name: "k", Token: "t", Active: true})

	s := &Server{keys: keys, sessions: sessions}

	rec := newTestDeleteKeyRequest(t, s, "key-1")
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, []string{"key-1"}, keys.deactivated)
}
