package api

import (
	"time"

	"github.com/liveforge/streamctl/internal/config"
	"github.com/liveforge/streamctl/internal/domain/stream/manager"
	"github.com/liveforge/streamctl/internal/domain/stream/model"
	"github.com/liveforge/streamctl/internal/pipeline/encoder"
	"github.com/liveforge/streamctl/internal/scheduler"
)

// startManualRequest is the wire shape for POST /live/manual.
type startManualRequest struct {
	StreamKeyID       string  `json:"stream_key_id"`
	Mode              string  `json:"mode"`
	VideoID           string  `json:"video_id,omitempty"`
	PlaylistID        string  `json:"playlist_id,omitempty"`
	BackgroundAssetID string  `json:"background_asset_id,omitempty"`
	AmbientAssetID    string  `json:"ambient_asset_id,omitempty"`
	AmbientVolume     float64 `json:"ambient_volume,omitempty"`
	Loop              bool    `json:"loop"`
	MaxDurationHours  int     `json:"max_duration_hours,omitempty"`
}

func (req startManualRequest) toManagerRequest() manager.StartManualRequest {
	return manager.StartManualRequest{
		StreamKeyID:       req.StreamKeyID,
		Mode:              model.SessionMode(req.Mode),
		AssetID:           req.VideoID,
		PlaylistID:        req.PlaylistID,
		BackgroundAssetID: req.BackgroundAssetID,
		AmbientAssetID:    req.AmbientAssetID,
		AmbientVolume:     req.AmbientVolume,
		Loop:              req.Loop,
		MaxDurationHours:  req.MaxDurationHours,
	}
}

// sessionSummaryResponse is the wire shape for a successful StartManual call.
type sessionSummaryResponse struct {
	SessionID  string `json:"session_id"`
	EncoderPID int    `json:"encoder_pid"`
	Status     string `json:"status"`
}

func newSessionSummaryResponse(s manager.SessionSummary) sessionSummaryResponse {
	return sessionSummaryResponse{SessionID: s.SessionID, EncoderPID: s.EncoderPID, Status: string(s.Status)}
}

// stopResponse is the wire shape returned by every /live/stop* route.
type stopResponse struct {
	StoppedSessionIDs []string `json:"stopped_session_ids"`
}

// contentResponse mirrors model.SessionContent for read paths.
type contentResponse struct {
	Mode              string  `json:"mode"`
	VideoID           string  `json:"video_id,omitempty"`
	PlaylistID        string  `json:"playlist_id,omitempty"`
	BackgroundAssetID string  `json:"background_asset_id,omitempty"`
	AmbientAssetID    string  `json:"ambient_asset_id,omitempty"`
	AmbientVolume     float64 `json:"ambient_volume,omitempty"`
}

func newContentResponse(c model.SessionContent) contentResponse {
	resp := contentResponse{Mode: string(c.Mode())}
	if id, ok := c.AssetID(); ok {
		resp.VideoID = id
	}
	if id, ok := c.PlaylistID(); ok {
		resp.PlaylistID = id
	}
	if id, ok := c.BackgroundAssetID(); ok {
		resp.BackgroundAssetID = id
	}
	if id, ok := c.AmbientAssetID(); ok {
		resp.AmbientAssetID = id
	}
	resp.AmbientVolume = c.AmbientVolume()
	return resp
}

// encoderStatusResponse joins the supervisor's live process view onto a
// session's persisted state, per spec's "encoder_status" status field.
type encoderStatusResponse struct {
	PID           int     `json:"pid"`
	Running       bool    `json:"running"`
	ExitCode      int     `json:"exit_code"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	RestartCount  int     `json:"restart_count"`
	MaxRetries    int     `json:"max_retries"`
}

func newEncoderStatusResponse(info encoder.StatusInfo) encoderStatusResponse {
	return encoderStatusResponse{
		PID:           info.PID,
		Running:       info.Running,
		ExitCode:      info.ExitCode,
		UptimeSeconds: info.UptimeSeconds,
		RestartCount:  info.RestartCount,
		MaxRetries:    info.MaxRetries,
	}
}

// sessionStatusResponse is the wire shape for GET /live/status/{id} and the
// elements of GET /live/active.
type sessionStatusResponse struct {
	SessionID        string                  `json:"session_id"`
	StreamKeyID      string                  `json:"stream_key_id"`
	Content          contentResponse         `json:"content"`
	Loop             bool                    `json:"loop"`
	MaxDurationHours int                     `json:"max_duration_hours,omitempty"`
	Status           string                  `json:"status"`
	StartTime        *time.Time              `json:"start_time,omitempty"`
	EndTime          *time.Time              `json:"end_time,omitempty"`
	RestartCount     int                     `json:"restart_count"`
	LastError        string                  `json:"last_error,omitempty"`
	EncoderStatus    *encoderStatusResponse  `json:"encoder_status,omitempty"`
}

func newSessionStatusResponse(sess model.Session, encStatus *encoder.StatusInfo) sessionStatusResponse {
	resp := sessionStatusResponse{
		SessionID:        sess.ID,
		StreamKeyID:      sess.StreamKeyID,
		Content:          newContentResponse(sess.Content),
		Loop:             sess.Loop,
		MaxDurationHours: sess.MaxDurationHours,
		Status:           string(sess.Status),
		RestartCount:     sess.RestartCount,
		LastError:        sess.LastError,
		EndTime:          sess.EndTime,
	}
	if !sess.StartTime.IsZero() {
		resp.StartTime = &sess.StartTime
	}
	if encStatus != nil {
		e := newEncoderStatusResponse(*encStatus)
		resp.EncoderStatus = &e
	}
	return resp
}

// cleanupOrphansResponse is the wire shape for POST /live/cleanup-orphans.
type cleanupOrphansResponse struct {
	KilledCount int `json:"killed_count"`
}

// scheduleRequest is the wire shape for POST /live/schedule and PUT
// /live/schedule/{id}.
type scheduleRequest struct {
	StreamKeyID       string  `json:"stream_key_id"`
	Mode              string  `json:"mode"`
	VideoID           string  `json:"video_id,omitempty"`
	PlaylistID        string  `json:"playlist_id,omitempty"`
	BackgroundAssetID string  `json:"background_asset_id,omitempty"`
	AmbientAssetID    string  `json:"ambient_asset_id,omitempty"`
	AmbientVolume     float64 `json:"ambient_volume,omitempty"`
	Loop              bool    `json:"loop"`
	MaxDurationHours  int     `json:"max_duration_hours,omitempty"`
	ScheduledTime     time.Time `json:"scheduled_time"`
	Recurrence        string  `json:"recurrence,omitempty"`
}

func (req scheduleRequest) toSchedulerRequest() scheduler.ScheduleRequest {
	recurrence := model.Recurrence(req.Recurrence)
	if recurrence == "" {
		recurrence = model.RecurrenceNone
	}
	return scheduler.ScheduleRequest{
		StreamKeyID:       req.StreamKeyID,
		Mode:              model.SessionMode(req.Mode),
		AssetID:           req.VideoID,
		PlaylistID:        req.PlaylistID,
		BackgroundAssetID: req.BackgroundAssetID,
		AmbientAssetID:    req.AmbientAssetID,
		AmbientVolume:     req.AmbientVolume,
		Loop:              req.Loop,
		MaxDurationHours:  req.MaxDurationHours,
		ScheduledTime:     req.ScheduledTime.UTC(),
		Recurrence:        recurrence,
	}
}

// triggerResponse is the wire shape for a ScheduledTrigger.
type triggerResponse struct {
	TriggerID        string          `json:"trigger_id"`
	StreamKeyID      string          `json:"stream_key_id"`
	Content          contentResponse `json:"content"`
	Loop             bool            `json:"loop"`
	MaxDurationHours int             `json:"max_duration_hours,omitempty"`
	ScheduledTime    time.Time       `json:"scheduled_time"`
	Recurrence       string          `json:"recurrence"`
	Status           string          `json:"status"`
	SpawnedSessionID string          `json:"spawned_session_id,omitempty"`
	ErrorMessage     string          `json:"error_message,omitempty"`
}

func newTriggerResponse(t model.ScheduledTrigger) triggerResponse {
	return triggerResponse{
		TriggerID:        t.ID,
		StreamKeyID:      t.StreamKeyID,
		Content:          newContentResponse(t.Content),
		Loop:             t.Loop,
		MaxDurationHours: t.MaxDurationHours,
		ScheduledTime:    t.ScheduledTime,
		Recurrence:       string(t.Recurrence),
		Status:           string(t.Status),
		SpawnedSessionID: t.SpawnedSessionID,
		ErrorMessage:     t.ErrorMessage,
	}
}

// createKeyRequest is the wire shape for POST /keys.
type createKeyRequest struct {
	Name  string `json:"name"`
	Token string `json:"token"`
}

type keyResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

func newKeyResponse(k model.StreamKey) keyResponse {
	return keyResponse{ID: k.ID, Name: k.Name, Active: k.Active, CreatedAt: k.CreatedAt}
}

type createdResponse struct {
	ID string `json:"id"`
}

type successResponse struct {
	Success bool `json:"success"`
}

// createAssetRequest is the wire shape for POST /assets.
type createAssetRequest struct {
	Path            string  `json:"path"`
	DurationSeconds float64 `json:"duration_seconds"`
	Source          string  `json:"source"`
}

type assetResponse struct {
	ID              string  `json:"id"`
	Path            string  `json:"path"`
	DurationSeconds float64 `json:"duration_seconds"`
	Source          string  `json:"source"`
}

func newAssetResponse(a model.Asset) assetResponse {
	return assetResponse{ID: a.ID, Path: a.Path, DurationSeconds: a.DurationSeconds, Source: string(a.Source)}
}

// createPlaylistRequest is the wire shape for POST /playlists.
type createPlaylistRequest struct {
	Mode     string   `json:"mode"`
	AssetIDs []string `json:"asset_ids"`
}

type playlistResponse struct {
	ID       string   `json:"id"`
	Mode     string   `json:"mode"`
	AssetIDs []string `json:"asset_ids"`
}

func newPlaylistResponse(p model.Playlist) playlistResponse {
	return playlistResponse{ID: p.ID, Mode: string(p.Mode), AssetIDs: p.AssetIDs}
}

// configResponse is the wire shape for GET /config.
type configResponse struct {
	MaxConcurrentStreams int    `json:"max_concurrent_streams"`
	EncoderPath          string `json:"encoder_path"`
	IngestBaseURL        string `json:"ingest_base_url"`
}

func newConfigResponse(cfg config.AppConfig) configResponse {
	return configResponse{
		MaxConcurrentStreams: cfg.MaxConcurrentStreams,
		EncoderPath:          cfg.EncoderBin,
		IngestBaseURL:        cfg.IngestBaseURL,
	}
}
