// Package problem writes RFC 7807 problem-details error responses.
package problem

import (
	"encoding/json"
	"net/http"

	"github.com/liveforge/streamctl/internal/log"
)

const (
	// HeaderRequestID is the response header carrying the correlation id.
	HeaderRequestID = "X-Request-ID"
	// JSONKeyRequestID is the body field carrying the same id.
	JSONKeyRequestID = "requestId"
)

// Write writes an RFC 7807 problem-details body.
//
//   - problemType: canonical machine identifier (e.g. "admission/capacity-exhausted").
//   - title: human-readable short label (e.g. "Capacity Exhausted").
//   - code: stable machine-readable short code (e.g. "CAPACITY_EXHAUSTED").
//   - detail: human-readable explanation of this specific occurrence.
func Write(w http.ResponseWriter, r *http.Request, status int, problemType, title, code, detail string, extra map[string]any) {
	instance := ""
	if r != nil {
		instance = r.URL.EscapedPath()
	}

	reqID := ""
	if r != nil {
		reqID = log.RequestIDFromContext(r.Context())
	}
	if reqID == "" {
		reqID = w.Header().Get(HeaderRequestID)
	}

	res := map[string]any{
		"type":           problemType,
		"title":          title,
		"status":         status,
		"code":           code,
		JSONKeyRequestID: reqID,
	}
	if detail != "" {
		res["detail"] = detail
	}
	if instance != "" {
		res["instance"] = instance
	}

	for k, v := range extra {
		switch k {
		case "type", "title", "status", "detail", "instance", "code", JSONKeyRequestID:
			log.L().Warn().Str("key", k).Str("problem_type", problemType).Msg("ignoring reserved key in problem extras")
			continue
		}
		res[k] = v
	}

	if reqID != "" {
		w.Header().Set(HeaderRequestID, reqID)
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(res); err != nil {
		log.L().Error().Err(err).Str("type", problemType).Int("status", status).Msg("failed to encode problem response")
	}
}
