package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/liveforge/streamctl/internal/domain/stream/model"
)

func (s *Server) handleCreateKey(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" || req.Token == "" {
		writeError(w, r, model.ErrMissingContentID)
		return
	}

	key := &model.StreamKey{ID: uuid.NewString(), Name: req.Name, Token: req.Token, Active: true}
	if err := s.keys.Create(r.Context(), key); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, createdResponse{ID: key.ID})
}

func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.keys.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := make([]keyResponse, 0, len(keys))
	for _, k := range keys {
		resp = append(resp, newKeyResponse(k))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	keyID := chi.URLParam(r, "key_id")

	if _, err := s.keys.GetByID(r.Context(), keyID); err != nil {
		writeError(w, r, err)
		return
	}

	active, err := s.sessions.ActiveByStreamKey(r.Context(), keyID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(active) > 0 {
		writeError(w, r, model.ErrKeyReferenced)
		return
	}

	if err := s.keys.Deactivate(r.Context(), keyID); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) handleCreateAsset(w http.ResponseWriter, r *http.Request) {
	var req createAssetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		writeError(w, r, model.ErrMissingContentID)
		return
	}

	asset := &model.Asset{
		ID:              uuid.NewString(),
		Path:            req.Path,
		DurationSeconds: req.DurationSeconds,
		Source:          model.AssetSource(req.Source),
	}
	if err := s.assets.Create(r.Context(), asset); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, createdResponse{ID: asset.ID})
}

func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := s.assets.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := make([]assetResponse, 0, len(assets))
	for _, a := range assets {
		resp = append(resp, newAssetResponse(a))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteAsset(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "asset_id")

	if _, err := s.assets.GetByID(r.Context(), assetID); err != nil {
		writeError(w, r, err)
		return
	}

	referenced, err := s.assetReferencedByActiveSession(r.Context(), assetID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if referenced {
		writeError(w, r, model.ErrAssetReferenced)
		return
	}

	if err := s.assets.Delete(r.Context(), assetID); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// assetReferencedByActiveSession scans every active session's content for a
// reference to assetID, resolving playlist-mode sessions' membership. There
// is no reverse index from asset to session, so this is a linear scan over
// the (small, bounded-by-admission-capacity) set of active sessions.
func (s *Server) assetReferencedByActiveSession(ctx context.Context, assetID string) (bool, error) {
	active, err := s.sessions.ActiveSessions(ctx)
	if err != nil {
		return false, err
	}

	playlistCache := make(map[string]model.Playlist)
	resolvePlaylist := func(playlistID string) (model.Playlist, error) {
		if p, ok := playlistCache[playlistID]; ok {
			return p, nil
		}
		p, err := s.playlists.GetByID(ctx, playlistID)
		if err != nil {
			return model.Playlist{}, err
		}
		playlistCache[playlistID] = p
		return p, nil
	}

	for _, sess := range active {
		content := sess.Content
		if id, ok := content.AssetID(); ok && id == assetID {
			return true, nil
		}
		if id, ok := content.BackgroundAssetID(); ok && id == assetID {
			return true, nil
		}
		if id, ok := content.AmbientAssetID(); ok && id == assetID {
			return true, nil
		}
		if playlistID, ok := content.PlaylistID(); ok {
			playlist, err := resolvePlaylist(playlistID)
			if err != nil {
				continue
			}
			for _, memberID := range playlist.AssetIDs {
				if memberID == assetID {
					return true, nil
				}
			}
		}
	}
	return false, nil
}

func (s *Server) handleCreatePlaylist(w http.ResponseWriter, r *http.Request) {
	var req createPlaylistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.AssetIDs) == 0 {
		writeError(w, r, model.ErrEmptyPlaylist)
		return
	}

	for _, assetID := range req.AssetIDs {
		if _, err := s.assets.GetByID(r.Context(), assetID); err != nil {
			writeError(w, r, model.ErrUnknownAsset)
			return
		}
	}

	mode := model.PlaylistMode(req.Mode)
	if mode == "" {
		mode = model.PlaylistSequence
	}

	playlist := &model.Playlist{ID: uuid.NewString(), AssetIDs: req.AssetIDs, Mode: mode}
	if err := s.playlists.Create(r.Context(), playlist); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, createdResponse{ID: playlist.ID})
}

func (s *Server) handleGetPlaylist(w http.ResponseWriter, r *http.Request) {
	playlistID := chi.URLParam(r, "playlist_id")

	playlist, err := s.playlists.GetByID(r.Context(), playlistID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newPlaylistResponse(playlist))
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newConfigResponse(s.cfg))
}
