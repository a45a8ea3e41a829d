// Package manager implements the Session Manager (C5): the top-level API
// that composes the admission controller, the session store, and the
// encoder supervisor into StartManual/Stop/ForceReapOrphans.
package manager

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/google/uuid"

	"github.com/liveforge/streamctl/internal/control/admission"
	"github.com/liveforge/streamctl/internal/domain/stream/model"
	"github.com/liveforge/streamctl/internal/domain/stream/store"
	"github.com/liveforge/streamctl/internal/log"
	"github.com/liveforge/streamctl/internal/pipeline/encoder"
)

// StartManualRequest carries the inputs to StartManual, matching spec §4.5's
// StartManual(stream_key_id, mode, video_id|playlist_id, loop,
// max_duration_hours, optional extra_id) shape. Extra id fields are used
// only by ModeMusicPlaylist.
type StartManualRequest struct {
	StreamKeyID       string
	Mode              model.SessionMode
	AssetID           string // ModeSingle
	PlaylistID        string // ModePlaylist, or the music playlist for ModeMusicPlaylist
	BackgroundAssetID string // ModeMusicPlaylist
	AmbientAssetID    string // ModeMusicPlaylist, optional
	AmbientVolume     float64
	Loop              bool
	MaxDurationHours  int
}

// SessionSummary is StartManual's success result.
type SessionSummary struct {
	SessionID  string
	EncoderPID int
	Status     model.SessionStatus
}

// StopScope selects which sessions Stop targets.
type StopScope int

const (
	StopBySession StopScope = iota
	StopByKey
	StopAll
)

// Manager is the Session Manager (C5).
type Manager struct {
	// mu serializes StartManual end to end. Admission and persisting the
	// starting row are two separate store calls rather than one SQL
	// transaction (SessionStore's interface is per-call, not transactional);
	// this process-wide mutex is what actually closes the admission/insert
	// race, since this daemon is the sole writer to its database.
	mu sync.Mutex

	keys      store.KeyStore
	assets    store.AssetStore
	playlists store.PlaylistStore
	sessions  store.SessionStore

	admission     *admission.Controller
	supervisor    *encoder.Supervisor
	ingestBaseURL string
}

// New builds a Manager.
func New(keys store.KeyStore, assets store.AssetStore, playlists store.PlaylistStore, sessions store.SessionStore, admissionCtl *admission.Controller, supervisor *encoder.Supervisor, ingestBaseURL string) *Manager {
	return &Manager{
		keys:          keys,
		assets:        assets,
		playlists:     playlists,
		sessions:      sessions,
		admission:     admissionCtl,
		supervisor:    supervisor,
		ingestBaseURL: ingestBaseURL,
	}
}

// resolvedContent is the outcome of resolving a StartManualRequest's content
// ids into playable asset paths, ready to hand to the encoder supervisor.
type resolvedContent struct {
	content model.SessionContent

	assetPaths []string // single (len 1) / playlist

	backgroundPath  string
	musicAssetPaths []string
	ambientPath     string
}

// resolveContent validates a StartManualRequest's content ids, builds the
// SessionContent they describe, and resolves it to asset paths.
func (m *Manager) resolveContent(ctx context.Context, req StartManualRequest) (resolvedContent, error) {
	var content model.SessionContent
	switch req.Mode {
	case model.ModeSingle:
		if req.AssetID == "" {
			return resolvedContent{}, model.ErrMissingContentID
		}
		content = model.NewSingleContent(req.AssetID)
	case model.ModePlaylist:
		if req.PlaylistID == "" {
			return resolvedContent{}, model.ErrMissingContentID
		}
		content = model.NewPlaylistContent(req.PlaylistID)
	case model.ModeMusicPlaylist:
		if req.BackgroundAssetID == "" || req.PlaylistID == "" {
			return resolvedContent{}, model.ErrMissingContentID
		}
		content = model.NewMusicPlaylistContent(req.BackgroundAssetID, req.PlaylistID, req.AmbientAssetID, req.AmbientVolume)
	default:
		return resolvedContent{}, model.ErrBadMode
	}
	return m.resolveSessionContent(ctx, content)
}

// resolveSessionContent resolves an already-valid SessionContent (e.g. one
// loaded back off an existing Session row) to asset paths, without
// re-validating which ids are required for which mode — that check only
// makes sense against a fresh request.
func (m *Manager) resolveSessionContent(ctx context.Context, content model.SessionContent) (resolvedContent, error) {
	switch content.Mode() {
	case model.ModeSingle:
		assetID, _ := content.AssetID()
		asset, err := m.assets.GetByID(ctx, assetID)
		if err != nil {
			return resolvedContent{}, fmt.Errorf("%w: %v", model.ErrUnknownAsset, err)
		}
		return resolvedContent{content: content, assetPaths: []string{asset.Path}}, nil

	case model.ModePlaylist:
		playlistID, _ := content.PlaylistID()
		paths, err := m.resolvePlaylistPaths(ctx, playlistID)
		if err != nil {
			return resolvedContent{}, err
		}
		return resolvedContent{content: content, assetPaths: paths}, nil

	case model.ModeMusicPlaylist:
		backgroundID, _ := content.BackgroundAssetID()
		background, err := m.assets.GetByID(ctx, backgroundID)
		if err != nil {
			return resolvedContent{}, fmt.Errorf("%w: %v", model.ErrUnknownAsset, err)
		}
		playlistID, _ := content.PlaylistID()
		musicPaths, err := m.resolvePlaylistPaths(ctx, playlistID)
		if err != nil {
			return resolvedContent{}, err
		}
		var ambientPath string
		if ambientID, ok := content.AmbientAssetID(); ok {
			ambient, err := m.assets.GetByID(ctx, ambientID)
			if err != nil {
				return resolvedContent{}, fmt.Errorf("%w: %v", model.ErrUnknownAsset, err)
			}
			ambientPath = ambient.Path
		}
		return resolvedContent{
			content:         content,
			backgroundPath:  background.Path,
			musicAssetPaths: musicPaths,
			ambientPath:     ambientPath,
		}, nil

	default:
		return resolvedContent{}, model.ErrBadMode
	}
}

// resolvePlaylistPaths loads a playlist's asset ids, shuffles them if the
// playlist's own mode is random (preserving order otherwise), and resolves
// each to its asset path.
func (m *Manager) resolvePlaylistPaths(ctx context.Context, playlistID string) ([]string, error) {
	playlist, err := m.playlists.GetByID(ctx, playlistID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrUnknownPlaylist, err)
	}
	if len(playlist.AssetIDs) == 0 {
		return nil, model.ErrEmptyPlaylist
	}

	ids := append([]string{}, playlist.AssetIDs...)
	if playlist.Mode == model.PlaylistRandom {
		rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	}

	paths := make([]string, 0, len(ids))
	for _, id := range ids {
		asset, err := m.assets.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrUnknownAsset, err)
		}
		paths = append(paths, asset.Path)
	}
	return paths, nil
}

// StartManual implements spec §4.5's StartManual operation.
func (m *Manager) StartManual(ctx context.Context, req StartManualRequest) (SessionSummary, error) {
	resolved, err := m.resolveContent(ctx, req)
	if err != nil {
		return SessionSummary{}, err
	}

	key, err := m.keys.GetByID(ctx, req.StreamKeyID)
	if err != nil {
		return SessionSummary{}, model.ErrUnknownKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	decision := m.admission.Admit(ctx, req.StreamKeyID)
	if !decision.Allow {
		return SessionSummary{}, decision.AsModelError()
	}

	sess := &model.Session{
		ID:               uuid.NewString(),
		StreamKeyID:      req.StreamKeyID,
		Content:          resolved.content,
		Loop:             req.Loop,
		MaxDurationHours: req.MaxDurationHours,
	}
	if err := m.sessions.CreateStarting(ctx, sess); err != nil {
		return SessionSummary{}, err
	}

	rtmpURL := encoder.RTMPURL(m.ingestBaseURL, key.Token)
	pid, err := m.supervisor.Start(encoder.StartSpec{
		SessionID:       sess.ID,
		StreamKeyToken:  key.Token,
		RTMPURL:         rtmpURL,
		Mode:            req.Mode,
		Loop:            req.Loop,
		AssetPaths:      resolved.assetPaths,
		BackgroundPath:  resolved.backgroundPath,
		MusicAssetPaths: resolved.musicAssetPaths,
		AmbientPath:     resolved.ambientPath,
		AmbientVolume:   req.AmbientVolume,
	})
	if err != nil {
		_ = m.sessions.MarkFailed(ctx, sess.ID, err.Error())
		return SessionSummary{}, fmt.Errorf("%w: %v", model.ErrSpawnFailed, err)
	}

	if err := m.sessions.MarkRunning(ctx, sess.ID, pid); err != nil {
		log.WithComponent("session-manager").Error().Err(err).
			Str(log.FieldSessionID, sess.ID).Msg("failed to record running state after successful spawn")
		return SessionSummary{}, err
	}

	return SessionSummary{SessionID: sess.ID, EncoderPID: pid, Status: model.SessionRunning}, nil
}

// Stop implements spec §4.5's Stop operation across all three scopes.
func (m *Manager) Stop(ctx context.Context, scope StopScope, target string) ([]string, error) {
	var targets []model.Session
	var err error

	switch scope {
	case StopBySession:
		sess, getErr := m.sessions.GetByID(ctx, target)
		if getErr != nil {
			return nil, getErr
		}
		targets = []model.Session{sess}
	case StopByKey:
		targets, err = m.sessions.ActiveByStreamKey(ctx, target)
	case StopAll:
		targets, err = m.sessions.ActiveSessions(ctx)
	default:
		return nil, fmt.Errorf("unknown stop scope")
	}
	if err != nil {
		return nil, err
	}

	stopped := make([]string, 0, len(targets))
	for _, sess := range targets {
		if err := m.supervisor.Stop(ctx, sess.ID, encoder.StopGraceful); err != nil {
			log.WithComponent("session-manager").Error().Err(err).
				Str(log.FieldSessionID, sess.ID).Msg("encoder stop failed")
			continue
		}
		if err := m.sessions.MarkStopped(ctx, sess.ID); err != nil {
			log.WithComponent("session-manager").Error().Err(err).
				Str(log.FieldSessionID, sess.ID).Msg("failed to record stopped state")
			continue
		}
		stopped = append(stopped, sess.ID)
	}
	return stopped, nil
}

// ForceReapOrphans implements spec §4.5's orphan reconciliation: encoder
// processes the supervisor still tracks but that exited on their own are
// reaped, and Session rows stuck at "running" with no corresponding
// supervisor entry are transitioned to "interrupted" — the disambiguation
// rule between a crashed host process (registry lost) and a live one.
func (m *Manager) ForceReapOrphans(ctx context.Context) (killedCount int, err error) {
	reaped := m.supervisor.Reap()
	killedCount = len(reaped)

	active, err := m.sessions.ActiveSessions(ctx)
	if err != nil {
		return killedCount, err
	}

	for _, sess := range active {
		if sess.Status != model.SessionRunning {
			continue
		}
		if m.supervisor.IsTracked(sess.ID) {
			continue
		}
		if err := m.sessions.MarkInterrupted(ctx, sess.ID); err != nil {
			log.WithComponent("session-manager").Error().Err(err).
				Str(log.FieldSessionID, sess.ID).Msg("failed to mark orphaned session interrupted")
			continue
		}
	}

	return killedCount, nil
}

// RotateKey fails a session over to a different active, currently-unused
// stream key after a detected stream failure, one of the three mandatory
// Admit callers alongside StartManual and the scheduler's fire path. The
// failing session is finalized as failed (its key is presumed bad or
// exhausted) and a fresh session carrying the same content is admitted and
// started under the fallback key.
func (m *Manager) RotateKey(ctx context.Context, sessionID string) (SessionSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return SessionSummary{}, err
	}

	fallback, err := m.findFallbackKey(ctx, sess.StreamKeyID)
	if err != nil {
		return SessionSummary{}, err
	}

	resolved, err := m.resolveSessionContent(ctx, sess.Content)
	if err != nil {
		return SessionSummary{}, err
	}

	_ = m.supervisor.Stop(ctx, sess.ID, encoder.StopForce)
	if err := m.sessions.MarkFailed(ctx, sess.ID, fmt.Sprintf("stream key rotated to %s", fallback.ID)); err != nil {
		return SessionSummary{}, err
	}

	decision := m.admission.Admit(ctx, fallback.ID)
	if !decision.Allow {
		return SessionSummary{}, decision.AsModelError()
	}

	newSess := &model.Session{
		ID:               uuid.NewString(),
		StreamKeyID:      fallback.ID,
		Content:          resolved.content,
		Loop:             sess.Loop,
		MaxDurationHours: sess.MaxDurationHours,
	}
	if err := m.sessions.CreateStarting(ctx, newSess); err != nil {
		return SessionSummary{}, err
	}

	rtmpURL := encoder.RTMPURL(m.ingestBaseURL, fallback.Token)
	pid, err := m.supervisor.Start(encoder.StartSpec{
		SessionID:       newSess.ID,
		StreamKeyToken:  fallback.Token,
		RTMPURL:         rtmpURL,
		Mode:            resolved.content.Mode(),
		Loop:            newSess.Loop,
		AssetPaths:      resolved.assetPaths,
		BackgroundPath:  resolved.backgroundPath,
		MusicAssetPaths: resolved.musicAssetPaths,
		AmbientPath:     resolved.ambientPath,
		AmbientVolume:   resolved.content.AmbientVolume(),
	})
	if err != nil {
		_ = m.sessions.MarkFailed(ctx, newSess.ID, err.Error())
		return SessionSummary{}, fmt.Errorf("%w: %v", model.ErrSpawnFailed, err)
	}

	if err := m.sessions.MarkRunning(ctx, newSess.ID, pid); err != nil {
		return SessionSummary{}, err
	}

	log.WithComponent("session-manager").Warn().
		Str(log.FieldSessionID, sess.ID).
		Str("new_session_id", newSess.ID).
		Str("old_stream_key_id", sess.StreamKeyID).
		Str("new_stream_key_id", fallback.ID).
		Msg("stream key rotated after detected failure")

	return SessionSummary{SessionID: newSess.ID, EncoderPID: pid, Status: model.SessionRunning}, nil
}

// findFallbackKey returns the first active stream key, excluding
// excludeKeyID, not already bound to another active session.
func (m *Manager) findFallbackKey(ctx context.Context, excludeKeyID string) (model.StreamKey, error) {
	keys, err := m.keys.List(ctx)
	if err != nil {
		return model.StreamKey{}, err
	}

	active, err := m.sessions.ActiveSessions(ctx)
	if err != nil {
		return model.StreamKey{}, err
	}
	used := make(map[string]bool, len(active))
	for _, s := range active {
		used[s.StreamKeyID] = true
	}

	for _, k := range keys {
		if k.ID == excludeKeyID || !k.Active || used[k.ID] {
			continue
		}
		return k, nil
	}
	return model.StreamKey{}, model.ErrNoFallbackKey
}

// RestartEncoder re-spawns the encoder for an existing Session without
// going through admission — the session already counts against key
// exclusivity and the concurrency cap, so Admit would be redundant and
// Health Monitor (C7) calls this exactly when C1's in-memory registry has
// already lost track of the session (the host process was restarted),
// which is the one path where a fresh supervisor.Start call is the
// correct "restart", not a second concurrent session.
func (m *Manager) RestartEncoder(ctx context.Context, sess model.Session) (int, error) {
	resolved, err := m.resolveSessionContent(ctx, sess.Content)
	if err != nil {
		return 0, err
	}
	key, err := m.keys.GetByID(ctx, sess.StreamKeyID)
	if err != nil {
		return 0, model.ErrUnknownKey
	}

	rtmpURL := encoder.RTMPURL(m.ingestBaseURL, key.Token)
	return m.supervisor.Start(encoder.StartSpec{
		SessionID:       sess.ID,
		StreamKeyToken:  key.Token,
		RTMPURL:         rtmpURL,
		Mode:            sess.Content.Mode(),
		Loop:            sess.Loop,
		AssetPaths:      resolved.assetPaths,
		BackgroundPath:  resolved.backgroundPath,
		MusicAssetPaths: resolved.musicAssetPaths,
		AmbientPath:     resolved.ambientPath,
		AmbientVolume:   sess.Content.AmbientVolume(),
	})
}
