package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liveforge/streamctl/internal/domain/stream/model"
)

func dialWS(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	require.NoError(t, err)
	return conn
}

func TestHub_BroadcastReachesAllSubscribers(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Serve(ctx)

	server := httptest.NewServer(http.HandlerFunc(hub.ServeMonitoring))
	defer server.Close()

	a := dialWS(t, server)
	defer a.Close()
	b := dialWS(t, server)
	defer b.Close()

	require.Eventually(t, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		return len(hub.clients) == 2
	}, time.Second, 5*time.Millisecond)

	hub.Broadcast(StatusUpdate{Type: "status_update"})

	for _, conn := range []*websocket.Conn{a, b} {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var doc StatusUpdate
		require.NoError(t, json.Unmarshal(data, &doc))
		assert.Equal(t, "status_update", doc.Type)
	}
}

func TestHub_SlowSubscriberDoesNotBlockOthers(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Serve(ctx)

	server := httptest.NewServer(http.HandlerFunc(hub.ServeMonitoring))
	defer server.Close()

	slow := dialWS(t, server)
	defer slow.Close()
	fast := dialWS(t, server)
	defer fast.Close()

	require.Eventually(t, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		return len(hub.clients) == 2
	}, time.Second, 5*time.Millisecond)

	// Flood past the slow client's buffer without ever reading from it.
	for i := 0; i < clientSendBuf+5; i++ {
		hub.Broadcast(StatusUpdate{Type: "status_update"})
	}

	_, _, err := fast.ReadMessage()
	assert.NoError(t, err)
}

type fakeSessionSource struct {
	sessions []model.Session
}

func (f *fakeSessionSource) ActiveSessions(ctx context.Context) ([]model.Session, error) {
	return f.sessions, nil
}

type fakeLogTailer struct {
	mu    sync.Mutex
	lines map[string][]string
}

func (f *fakeLogTailer) TailLog(sessionID string, n int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	lines := f.lines[sessionID]
	if len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func TestSnapshotPump_BuildsStatusUpdate(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 10, 0, 0, time.UTC)
	sess := model.Session{
		ID: "sess-1", StreamKeyID: "key-1", Content: model.NewSingleContent("a1"),
		Status: model.SessionRunning, EncoderPID: 42, StartTime: now.Add(-5 * time.Minute),
		RestartCount: 1,
	}
	sessions := &fakeSessionSource{sessions: []model.Session{sess}}
	logs := &fakeLogTailer{lines: map[string][]string{
		"sess-1": {"frame=100 fps=30 bitrate=4500kbits/s speed=1.0x"},
	}}
	hub := NewHub()
	pump := NewSnapshotPump(sessions, logs, hub, fixedClock{now: now})

	received := make(chan StatusUpdate, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case data := <-hub.broadcast:
				var doc StatusUpdate
				_ = json.Unmarshal(data, &doc)
				received <- doc
				return
			}
		}
	}()

	pump.tick(context.Background())

	select {
	case doc := <-received:
		require.Len(t, doc.Sessions, 1)
		snap := doc.Sessions[0]
		assert.Equal(t, "sess-1", snap.ID)
		assert.Equal(t, 42, snap.EncoderPID)
		assert.Equal(t, "30", snap.Stats.FPS)
		assert.Equal(t, "4500kbits/s", snap.Stats.Bitrate)
		assert.Equal(t, "1.0x", snap.Stats.Speed)
		assert.InDelta(t, 300, snap.RuntimeSeconds, 1)
	case <-time.After(time.Second):
		t.Fatal("did not receive broadcast")
	}
}

func TestParseStats_MissingTokensDefaultToNA(t *testing.T) {
	stats := parseStats([]string{"opening input", "fps=24"})
	assert.Equal(t, "N/A", stats.Bitrate)
	assert.Equal(t, "24", stats.FPS)
	assert.Equal(t, "N/A", stats.Speed)
}

func TestNewLinesSince_ReturnsOnlyAppendedLines(t *testing.T) {
	prev := []string{"a", "b", "c"}
	cur := []string{"a", "b", "c", "d", "e"}
	assert.Equal(t, []string{"d", "e"}, newLinesSince(prev, cur))
}

func TestNewLinesSince_WrappedRingResendsAll(t *testing.T) {
	prev := []string{"stale-line-no-longer-present"}
	cur := []string{"x", "y"}
	assert.Equal(t, cur, newLinesSince(prev, cur))
}

func TestLogTailHandler_SendsBacklogThenFollowsAppends(t *testing.T) {
	logs := &fakeLogTailer{lines: map[string][]string{"sess-1": {"line1", "line2"}}}
	handler := NewLogTailHandler(logs)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeSession(w, r, "sess-1")
	}))
	defer server.Close()

	conn := dialWS(t, server)
	defer conn.Close()

	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "line1", string(msg))
	_, msg, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "line2", string(msg))

	logs.mu.Lock()
	logs.lines["sess-1"] = append(logs.lines["sess-1"], "line3")
	logs.mu.Unlock()

	_, msg, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "line3", string(msg))
}
