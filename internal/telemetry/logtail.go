package telemetry

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/liveforge/streamctl/internal/log"
)

// initialBacklog is how many lines /ws/logs/{id} sends before switching to
// follow mode.
const initialBacklog = 50

// tailPollInterval is the follow-mode poll rate (~10 Hz).
const tailPollInterval = 100 * time.Millisecond

// tailWindow bounds how far back each poll re-reads to find new lines; it
// must be at least the encoder's log ring capacity to never miss a burst.
const tailWindow = 200

// LogTailHandler serves /ws/logs/{session_id}: the last initialBacklog
// lines, then newly appended lines as they land, until the subscriber
// disconnects.
type LogTailHandler struct {
	logs LogTailer
}

// NewLogTailHandler builds a LogTailHandler over the given log source.
func NewLogTailHandler(logs LogTailer) *LogTailHandler {
	return &LogTailHandler{logs: logs}
}

// ServeSession upgrades the request and streams sessionID's log.
func (h *LogTailHandler) ServeSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithComponent("telemetry-logtail").Warn().Err(err).Msg("upgrade failed")
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	sent := h.logs.TailLog(sessionID, initialBacklog)
	if !writeLines(conn, sent) {
		return
	}

	ticker := time.NewTicker(tailPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-ticker.C:
			current := h.logs.TailLog(sessionID, tailWindow)
			fresh := newLinesSince(sent, current)
			if len(fresh) == 0 {
				continue
			}
			if !writeLines(conn, fresh) {
				return
			}
			sent = current
		}
	}
}

func writeLines(conn *websocket.Conn, lines []string) bool {
	for _, line := range lines {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			return false
		}
	}
	return true
}

// newLinesSince returns the lines in cur that come after the last line of
// prev. If prev's last line can't be found in cur (the ring wrapped past it
// between polls), the whole of cur is treated as new — a rare, best-effort
// fallback rather than a guarantee of gapless tailing.
func newLinesSince(prev, cur []string) []string {
	if len(prev) == 0 {
		return cur
	}
	last := prev[len(prev)-1]
	for i := len(cur) - 1; i >= 0; i-- {
		if cur[i] == last {
			return cur[i+1:]
		}
	}
	return cur
}
