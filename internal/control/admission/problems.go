package admission

import (
	"fmt"
	"net/http"

	"github.com/liveforge/streamctl/internal/control/problem"
)

// Problem codes, stable across releases.
const (
	CodeUnknownKey        = "ADMISSION_UNKNOWN_KEY"
	CodeInactiveKey       = "ADMISSION_INACTIVE_KEY"
	CodeKeyBusy           = "ADMISSION_KEY_BUSY"
	CodeCapacityExhausted = "ADMISSION_CAPACITY_EXHAUSTED"
)

// Problem is a lightweight RFC 7807 payload the controller returns as a pure
// value; the transport layer turns it into a wire response with WriteProblem.
type Problem struct {
	Status int
	Type   string
	Title  string
	Code   string
	Detail string
	Extra  map[string]any
}

func (p *Problem) Error() string {
	return fmt.Sprintf("[%s] %s: %s", p.Code, p.Title, p.Detail)
}

// NewUnknownKey returns a 404 problem for a stream key that does not exist.
func NewUnknownKey(streamKeyID string) *Problem {
	return &Problem{
		Status: http.StatusNotFound,
		Type:   "admission/unknown-key",
		Title:  "Unknown stream key",
		Code:   CodeUnknownKey,
		Detail: "The referenced stream key does not exist.",
		Extra:  map[string]any{"stream_key_id": streamKeyID},
	}
}

// NewInactiveKey returns a 409 problem for a soft-retired stream key.
func NewInactiveKey(streamKeyID string) *Problem {
	return &Problem{
		Status: http.StatusConflict,
		Type:   "admission/inactive-key",
		Title:  "Stream key inactive",
		Code:   CodeInactiveKey,
		Detail: "The stream key has been deactivated and cannot start new sessions.",
		Extra:  map[string]any{"stream_key_id": streamKeyID},
	}
}

// NewKeyBusy returns a 409 problem when a stream key already has an active session.
func NewKeyBusy(streamKeyID, existingSessionID string) *Problem {
	return &Problem{
		Status: http.StatusConflict,
		Type:   "admission/key-busy",
		Title:  "Stream key busy",
		Code:   CodeKeyBusy,
		Detail: "The stream key already has an active session.",
		Extra: map[string]any{
			"stream_key_id":       streamKeyID,
			"existing_session_id": existingSessionID,
		},
	}
}

// NewCapacityExhausted returns a 429 problem when the global concurrency cap is reached.
func NewCapacityExhausted(current, limit int) *Problem {
	return &Problem{
		Status: http.StatusTooManyRequests,
		Type:   "admission/capacity-exhausted",
		Title:  "Capacity exhausted",
		Code:   CodeCapacityExhausted,
		Detail: "The global concurrent-session cap has been reached.",
		Extra: map[string]any{
			"current": current,
			"limit":   limit,
		},
	}
}

// WriteProblem converts an admission.Problem to an HTTP response.
func WriteProblem(w http.ResponseWriter, r *http.Request, p *Problem) {
	problem.Write(w, r, p.Status, p.Type, p.Title, p.Code, p.Detail, p.Extra)
}
