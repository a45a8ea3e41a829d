package api

import (
	"errors"
	"net/http"

	"github.com/liveforge/streamctl/internal/control/admission"
	"github.com/liveforge/streamctl/internal/control/problem"
	"github.com/liveforge/streamctl/internal/domain/stream/model"
)

// writeError maps a domain sentinel error onto an RFC 7807 response. An
// *admission.Problem carries its own status/type/code and is passed through
// as-is; every other recognized sentinel gets a fixed mapping below.
// Anything unrecognized is a consistency-class bug (spec §7) and becomes a
// 500 with no detail leaked to the caller.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var admissionProblem *admission.Problem
	if errors.As(err, &admissionProblem) {
		admission.WriteProblem(w, r, admissionProblem)
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.sentinel) {
			problem.Write(w, r, m.status, m.problemType, m.title, m.code, err.Error(), nil)
			return
		}
	}

	problem.Write(w, r, http.StatusInternalServerError, "about:blank", "Internal Server Error", "INTERNAL", "an unexpected error occurred", nil)
}

type errorMapping struct {
	sentinel    error
	status      int
	problemType string
	title       string
	code        string
}

var errorMappings = []errorMapping{
	{model.ErrBadMode, http.StatusBadRequest, "validation/bad-mode", "Bad mode", "BAD_MODE"},
	{model.ErrMissingContentID, http.StatusBadRequest, "validation/missing-content-id", "Missing content id", "MISSING_CONTENT_ID"},
	{model.ErrUnknownAsset, http.StatusNotFound, "validation/unknown-asset", "Unknown asset", "UNKNOWN_ASSET"},
	{model.ErrUnknownPlaylist, http.StatusNotFound, "validation/unknown-playlist", "Unknown playlist", "UNKNOWN_PLAYLIST"},
	{model.ErrEmptyPlaylist, http.StatusBadRequest, "validation/empty-playlist", "Empty playlist", "EMPTY_PLAYLIST"},
	{model.ErrPastScheduledTime, http.StatusBadRequest, "validation/past-scheduled-time", "Scheduled time is in the past", "PAST_SCHEDULED_TIME"},
	{model.ErrBadRecurrence, http.StatusBadRequest, "validation/bad-recurrence", "Bad recurrence", "BAD_RECURRENCE"},

	{model.ErrUnknownKey, http.StatusNotFound, "policy/unknown-key", "Unknown stream key", "UNKNOWN_KEY"},
	{model.ErrInactiveKey, http.StatusConflict, "policy/inactive-key", "Stream key inactive", "INACTIVE_KEY"},
	{model.ErrKeyBusy, http.StatusConflict, "policy/key-busy", "Stream key busy", "KEY_BUSY"},
	{model.ErrCapacityExhausted, http.StatusTooManyRequests, "policy/capacity-exhausted", "Capacity exhausted", "CAPACITY_EXHAUSTED"},
	{model.ErrNotPending, http.StatusBadRequest, "policy/not-pending", "Trigger is not pending", "NOT_PENDING"},
	{model.ErrKeyReferenced, http.StatusConflict, "policy/key-referenced", "Stream key referenced by active session", "KEY_REFERENCED"},
	{model.ErrAssetReferenced, http.StatusConflict, "policy/asset-referenced", "Asset referenced by active session", "ASSET_REFERENCED"},

	{model.ErrSpawnFailed, http.StatusInternalServerError, "runtime/spawn-failed", "Encoder spawn failed", "SPAWN_FAILED"},
	{model.ErrStopTimeout, http.StatusInternalServerError, "runtime/stop-timeout", "Encoder stop timed out", "STOP_TIMEOUT"},
	{model.ErrEncoderCrashLoop, http.StatusInternalServerError, "runtime/crash-loop", "Encoder crash loop", "CRASH_LOOP"},
	{model.ErrManifestIO, http.StatusInternalServerError, "runtime/manifest-io", "Manifest I/O error", "MANIFEST_IO"},
	{model.ErrOrphanKillFailed, http.StatusInternalServerError, "runtime/orphan-kill-failed", "Orphan kill failed", "ORPHAN_KILL_FAILED"},

	{model.ErrIllegalTransition, http.StatusInternalServerError, "consistency/illegal-transition", "Illegal state transition", "ILLEGAL_TRANSITION"},
	{model.ErrMissingSession, http.StatusNotFound, "consistency/missing-session", "Session not found", "MISSING_SESSION"},
	{model.ErrMissingTrigger, http.StatusNotFound, "consistency/missing-trigger", "Trigger not found", "MISSING_TRIGGER"},
}
