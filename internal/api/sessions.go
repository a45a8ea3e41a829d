package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/liveforge/streamctl/internal/domain/stream/manager"
	"github.com/liveforge/streamctl/internal/domain/stream/model"
)

func (s *Server) handleStartManual(w http.ResponseWriter, r *http.Request) {
	var req startManualRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, model.ErrBadMode)
		return
	}

	summary, err := s.manager.StartManual(r.Context(), req.toManagerRequest())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, newSessionSummaryResponse(summary))
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	s.doStop(w, r, manager.StopBySession, sessionID)
}

func (s *Server) handleStopByKey(w http.ResponseWriter, r *http.Request) {
	keyID := chi.URLParam(r, "stream_key_id")
	s.doStop(w, r, manager.StopByKey, keyID)
}

func (s *Server) handleStopAll(w http.ResponseWriter, r *http.Request) {
	s.doStop(w, r, manager.StopAll, "")
}

func (s *Server) doStop(w http.ResponseWriter, r *http.Request, scope manager.StopScope, target string) {
	stopped, err := s.manager.Stop(r.Context(), scope, target)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stopResponse{StoppedSessionIDs: stopped})
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")

	sess, err := s.sessions.GetByID(r.Context(), sessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, s.joinEncoderStatus(sess))
}

func (s *Server) handleActiveSessions(w http.ResponseWriter, r *http.Request) {
	active, err := s.sessions.ActiveSessions(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := make([]sessionStatusResponse, 0, len(active))
	for _, sess := range active {
		resp = append(resp, s.joinEncoderStatus(sess))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) joinEncoderStatus(sess model.Session) sessionStatusResponse {
	if info, ok := s.supervisor.Status(sess.ID); ok {
		return newSessionStatusResponse(sess, &info)
	}
	return newSessionStatusResponse(sess, nil)
}

func (s *Server) handleCleanupOrphans(w http.ResponseWriter, r *http.Request) {
	killed, err := s.manager.ForceReapOrphans(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cleanupOrphansResponse{KilledCount: killed})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
