package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/liveforge/streamctl/internal/domain/stream/model"
)

func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, model.ErrBadMode)
		return
	}

	trig, err := s.scheduler.Schedule(r.Context(), req.toSchedulerRequest())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, newTriggerResponse(trig))
}

func (s *Server) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	triggerID := chi.URLParam(r, "trigger_id")

	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, model.ErrBadMode)
		return
	}

	trig, err := s.scheduler.Reschedule(r.Context(), triggerID, req.toSchedulerRequest())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newTriggerResponse(trig))
}

func (s *Server) handleCancelSchedule(w http.ResponseWriter, r *http.Request) {
	triggerID := chi.URLParam(r, "trigger_id")

	if err := s.scheduler.Cancel(r.Context(), triggerID); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) handleListSchedule(w http.ResponseWriter, r *http.Request) {
	status := model.TriggerStatus(r.URL.Query().Get("status"))
	streamKeyID := r.URL.Query().Get("stream_key_id")

	triggers, err := s.triggers.List(r.Context(), status, streamKeyID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := make([]triggerResponse, 0, len(triggers))
	for _, t := range triggers {
		resp = append(resp, newTriggerResponse(t))
	}
	writeJSON(w, http.StatusOK, resp)
}
