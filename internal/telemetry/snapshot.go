package telemetry

import (
	"context"
	"strings"
	"time"

	"github.com/liveforge/streamctl/internal/domain/stream/model"
	"github.com/liveforge/streamctl/internal/domain/stream/store"
	"github.com/liveforge/streamctl/internal/log"
	"github.com/liveforge/streamctl/internal/metrics"
)

// SnapshotInterval is how often the hub pushes a status_update document.
const SnapshotInterval = 2 * time.Second

// statTailLines is how many trailing log lines are scanned for bitrate/fps/
// speed tokens; encoder progress lines are emitted on one line so one is
// normally enough, but a few more tolerates interleaved warnings.
const statTailLines = 5

// StatusUpdate is the document pushed to every /ws/monitoring subscriber.
type StatusUpdate struct {
	Type     string             `json:"type"`
	Sessions []SessionSnapshot `json:"sessions"`
}

// SessionSnapshot is one session's row inside a StatusUpdate.
type SessionSnapshot struct {
	ID              string           `json:"id"`
	StreamKeyID     string           `json:"stream_key_id"`
	Mode            model.SessionMode `json:"mode"`
	Status          model.SessionStatus `json:"status"`
	EncoderPID      int              `json:"encoder_pid"`
	StartTime       time.Time        `json:"start_time"`
	RuntimeSeconds  float64          `json:"runtime_seconds"`
	RestartCount    int              `json:"restart_count"`
	Stats           EncoderStats     `json:"stats"`
}

// EncoderStats holds the tokens scraped from the encoder's recent log
// output. Any token not found in the tail becomes "N/A".
type EncoderStats struct {
	Bitrate string `json:"bitrate"`
	FPS     string `json:"fps"`
	Speed   string `json:"speed"`
}

// SessionSource lists the sessions currently counted as active.
type SessionSource interface {
	ActiveSessions(ctx context.Context) ([]model.Session, error)
}

// LogTailer reads the last n lines of a session's encoder log.
type LogTailer interface {
	TailLog(sessionID string, n int) []string
}

// SnapshotPump is the suture.Service that ticks every SnapshotInterval and
// broadcasts a StatusUpdate built from the current active sessions.
type SnapshotPump struct {
	sessions SessionSource
	logs     LogTailer
	hub      *Hub
	clock    store.Clock
	interval time.Duration
}

// NewSnapshotPump builds a SnapshotPump at the spec's fixed 2s interval.
func NewSnapshotPump(sessions SessionSource, logs LogTailer, hub *Hub, clock store.Clock) *SnapshotPump {
	return &SnapshotPump{sessions: sessions, logs: logs, hub: hub, clock: clock, interval: SnapshotInterval}
}

// Serve implements suture.Service.
func (p *SnapshotPump) Serve(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// String implements suture.Service.
func (p *SnapshotPump) String() string { return "telemetry-snapshot-pump" }

func (p *SnapshotPump) tick(ctx context.Context) {
	sessions, err := p.sessions.ActiveSessions(ctx)
	if err != nil {
		log.WithComponent("telemetry-snapshot-pump").Error().Err(err).Msg("list active sessions failed")
		return
	}

	metrics.SetActiveSessions(float64(len(sessions)))

	doc := StatusUpdate{Type: "status_update", Sessions: make([]SessionSnapshot, 0, len(sessions))}
	for _, sess := range sessions {
		doc.Sessions = append(doc.Sessions, p.snapshotOne(sess))
	}
	p.hub.Broadcast(doc)
}

func (p *SnapshotPump) snapshotOne(sess model.Session) SessionSnapshot {
	return SessionSnapshot{
		ID:             sess.ID,
		StreamKeyID:    sess.StreamKeyID,
		Mode:           sess.Content.Mode(),
		Status:         sess.Status,
		EncoderPID:     sess.EncoderPID,
		StartTime:      sess.StartTime,
		RuntimeSeconds: p.clock.Now().Sub(sess.StartTime).Seconds(),
		RestartCount:   sess.RestartCount,
		Stats:          parseStats(p.logs.TailLog(sess.ID, statTailLines)),
	}
}

// parseStats scans log lines (most recent last) for "bitrate=", "fps=" and
// "speed=" tokens, keeping the most recently seen value of each. Tokens
// never observed in the tail default to "N/A".
func parseStats(lines []string) EncoderStats {
	stats := EncoderStats{Bitrate: "N/A", FPS: "N/A", Speed: "N/A"}
	for _, line := range lines {
		for _, field := range strings.Fields(line) {
			switch {
			case strings.HasPrefix(field, "bitrate="):
				stats.Bitrate = strings.TrimPrefix(field, "bitrate=")
			case strings.HasPrefix(field, "fps="):
				stats.FPS = strings.TrimPrefix(field, "fps=")
			case strings.HasPrefix(field, "speed="):
				stats.Speed = strings.TrimPrefix(field, "speed=")
			}
		}
	}
	return stats
}
