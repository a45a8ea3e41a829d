package log

// Canonical field name constants for structured logging, kept stable so log
// queries don't have to chase renames.
const (
	FieldSessionID     = "session_id"
	FieldCorrelationID = "correlation_id"
	FieldRequestID     = "request_id"
	FieldJobID         = "job_id"
	FieldTriggerID     = "trigger_id"
	FieldStreamKeyID   = "stream_key_id"
	FieldPlaylistID    = "playlist_id"
	FieldAssetID       = "asset_id"

	FieldEvent     = "event"
	FieldComponent = "component"
	FieldPID       = "pid"

	FieldOldState = "old_state"
	FieldNewState = "new_state"

	FieldAttempt      = "attempt"
	FieldBackoffDelay = "backoff_delay_s"

	FieldPath = "path"
)
