package model

import "time"

// StreamKey is a credential for one RTMP ingest endpoint.
type StreamKey struct {
	ID        string
	Name      string
	Token     string
	Active    bool
	CreatedAt time.Time
}
