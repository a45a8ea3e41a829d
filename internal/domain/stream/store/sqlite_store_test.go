package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/liveforge/streamctl/internal/domain/stream/model"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SqliteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSqliteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newStartingSession(streamKeyID, assetID string) *model.Session {
	return &model.Session{
		ID:          uuid.NewString(),
		StreamKeyID: streamKeyID,
		Content:     model.NewSingleContent(assetID),
	}
}

func TestSqliteStore_CreateStarting_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sess := newStartingSession("key-1", "asset-1")
	require.NoError(t, s.CreateStarting(ctx, sess))

	got, err := s.GetByID(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, model.SessionStarting, got.Status)
	assetID, ok := got.Content.AssetID()
	require.True(t, ok)
	require.Equal(t, "asset-1", assetID)
}

func TestSqliteStore_MarkRunning_ThenLivenessLostThenExhausted(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sess := newStartingSession("key-1", "asset-1")
	require.NoError(t, s.CreateStarting(ctx, sess))
	require.NoError(t, s.MarkRunning(ctx, sess.ID, 4242))

	got, err := s.GetByID(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, model.SessionRunning, got.Status)
	require.Equal(t, 4242, got.EncoderPID)

	require.NoError(t, s.MarkRecovering(ctx, sess.ID, "no data"))
	got, err = s.GetByID(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, model.SessionRecovering, got.Status)

	require.NoError(t, s.MarkRunning(ctx, sess.ID, 5353))
	got, err = s.GetByID(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, model.SessionRunning, got.Status)
	require.Equal(t, 5353, got.EncoderPID)

	require.NoError(t, s.MarkRecovering(ctx, sess.ID, "no data again"))
	require.NoError(t, s.MarkFailed(ctx, sess.ID, "restarts exhausted"))

	got, err = s.GetByID(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, model.SessionFailed, got.Status)
	require.Equal(t, 0, got.EncoderPID)
	require.NotNil(t, got.EndTime)
}

func TestSqliteStore_MarkStopped_IllegalFromTerminal(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sess := newStartingSession("key-1", "asset-1")
	require.NoError(t, s.CreateStarting(ctx, sess))
	require.NoError(t, s.MarkStopped(ctx, sess.ID))

	err := s.MarkStopped(ctx, sess.ID)
	require.ErrorIs(t, err, model.ErrIllegalTransition)
}

func TestSqliteStore_ActiveSessions_ExcludesTerminal(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	running := newStartingSession("key-1", "asset-1")
	require.NoError(t, s.CreateStarting(ctx, running))
	require.NoError(t, s.MarkRunning(ctx, running.ID, 1))

	stopped := newStartingSession("key-1", "asset-2")
	require.NoError(t, s.CreateStarting(ctx, stopped))
	require.NoError(t, s.MarkStopped(ctx, stopped.ID))

	active, err := s.ActiveSessions(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, running.ID, active[0].ID)

	count, err := s.CountActive(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestSqliteStore_ActiveByStreamKey_Scoped(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := newStartingSession("key-a", "asset-1")
	require.NoError(t, s.CreateStarting(ctx, a))
	b := newStartingSession("key-b", "asset-1")
	require.NoError(t, s.CreateStarting(ctx, b))

	active, err := s.ActiveByStreamKey(ctx, "key-a")
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, a.ID, active[0].ID)
}

func TestSqliteStore_GetByID_MissingSession(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetByID(context.Background(), "does-not-exist")
	require.ErrorIs(t, err, model.ErrMissingSession)
}

func TestSqliteStore_KeyStore_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	keys := s.Keys()

	key := &model.StreamKey{ID: uuid.NewString(), Name: "main", Token: "tok", Active: true}
	require.NoError(t, keys.Create(ctx, key))

	got, err := keys.GetByID(ctx, key.ID)
	require.NoError(t, err)
	require.True(t, got.Active)

	require.NoError(t, keys.Deactivate(ctx, key.ID))
	got, err = keys.GetByID(ctx, key.ID)
	require.NoError(t, err)
	require.False(t, got.Active)

	_, err = keys.GetByID(ctx, "missing")
	require.ErrorIs(t, err, model.ErrUnknownKey)
}

func TestSqliteStore_PlaylistStore_PreservesItemOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	assets := s.Assets()
	playlists := s.Playlists()

	ids := []string{uuid.NewString(), uuid.NewString(), uuid.NewString()}
	for _, id := range ids {
		require.NoError(t, assets.Create(ctx, &model.Asset{ID: id, Path: "/media/" + id, Source: model.AssetUploaded}))
	}

	playlist := &model.Playlist{ID: uuid.NewString(), AssetIDs: ids, Mode: model.PlaylistSequence}
	require.NoError(t, playlists.Create(ctx, playlist))

	got, err := playlists.GetByID(ctx, playlist.ID)
	require.NoError(t, err)
	require.Equal(t, ids, got.AssetIDs)
}

func TestSqliteStore_TriggerStore_PendingAndUpdate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	triggers := s.Triggers()

	trig := &model.ScheduledTrigger{
		ID:            uuid.NewString(),
		StreamKeyID:   "key-1",
		Content:       model.NewSingleContent("asset-1"),
		ScheduledTime: time.Now().UTC().Add(time.Hour),
		Recurrence:    model.RecurrenceNone,
	}
	require.NoError(t, triggers.Create(ctx, trig))

	pending, err := triggers.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	trig.Status = model.TriggerRunning
	trig.JobID = "job-1"
	require.NoError(t, triggers.Update(ctx, trig))

	running, err := triggers.Running(ctx)
	require.NoError(t, err)
	require.Len(t, running, 1)
	require.Equal(t, "job-1", running[0].JobID)

	require.NoError(t, triggers.Delete(ctx, trig.ID))
	_, err = triggers.GetByID(ctx, trig.ID)
	require.ErrorIs(t, err, model.ErrMissingTrigger)
}
