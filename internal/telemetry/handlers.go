package telemetry

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/liveforge/streamctl/internal/log"
)

// upgrader is shared by both streaming endpoints. CheckOrigin is permissive
// because this surface is operator tooling behind the deployment's own
// access controls, not a public browser-facing API.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeMonitoring upgrades the request and joins the caller to the hub's
// status_update broadcast. It blocks until the subscriber disconnects.
func (h *Hub) ServeMonitoring(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithComponent("telemetry-hub").Warn().Err(err).Msg("upgrade failed")
		return
	}
	h.join(conn)
}
