// Package api exposes the control plane's HTTP surface: session lifecycle,
// scheduling, catalog CRUD, and the websocket/metrics side channels.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/liveforge/streamctl/internal/config"
	"github.com/liveforge/streamctl/internal/domain/stream/manager"
	"github.com/liveforge/streamctl/internal/domain/stream/store"
	"github.com/liveforge/streamctl/internal/metrics"
	"github.com/liveforge/streamctl/internal/pipeline/encoder"
	"github.com/liveforge/streamctl/internal/scheduler"
	"github.com/liveforge/streamctl/internal/telemetry"
)

// Server wires the domain layer (manager, scheduler, supervisor, stores)
// onto a chi router. It holds no business logic of its own beyond request
// decoding, response encoding, and error mapping.
type Server struct {
	manager    *manager.Manager
	scheduler  *scheduler.Scheduler
	supervisor *encoder.Supervisor

	keys      store.KeyStore
	assets    store.AssetStore
	playlists store.PlaylistStore
	sessions  store.SessionStore
	triggers  store.TriggerStore

	cfg config.AppConfig

	hub     *telemetry.Hub
	logtail *telemetry.LogTailHandler

	rateLimitPerMinute int
}

// Deps bundles Server's collaborators so New takes one argument instead of a
// long positional list.
type Deps struct {
	Manager    *manager.Manager
	Scheduler  *scheduler.Scheduler
	Supervisor *encoder.Supervisor

	Keys      store.KeyStore
	Assets    store.AssetStore
	Playlists store.PlaylistStore
	Sessions  store.SessionStore
	Triggers  store.TriggerStore

	Config config.AppConfig

	Hub     *telemetry.Hub
	LogTail *telemetry.LogTailHandler

	RateLimitPerMinute int
}

// New builds a Server from its dependencies. A zero RateLimitPerMinute
// disables rate limiting.
func New(d Deps) *Server {
	return &Server{
		manager:            d.Manager,
		scheduler:          d.Scheduler,
		supervisor:         d.Supervisor,
		keys:               d.Keys,
		assets:             d.Assets,
		playlists:          d.Playlists,
		sessions:           d.Sessions,
		triggers:           d.Triggers,
		cfg:                d.Config,
		hub:                d.Hub,
		logtail:            d.LogTail,
		rateLimitPerMinute: d.RateLimitPerMinute,
	}
}

// Handler builds the full HTTP handler: middleware stack, routes, and the
// websocket/metrics side channels.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(recoverer)
	r.Use(otelTracing("streamctl"))
	r.Use(requestID)
	r.Use(requestLogging)
	if s.rateLimitPerMinute > 0 {
		r.Use(rateLimit(s.rateLimitPerMinute))
	}

	r.Route("/live", func(r chi.Router) {
		r.Post("/manual", s.handleStartManual)
		r.Post("/stop/{session_id}", s.handleStopSession)
		r.Post("/stop-by-key/{stream_key_id}", s.handleStopByKey)
		r.Post("/stop-all", s.handleStopAll)
		r.Get("/status/{session_id}", s.handleSessionStatus)
		r.Get("/active", s.handleActiveSessions)
		r.Post("/cleanup-orphans", s.handleCleanupOrphans)

		r.Post("/schedule", s.handleCreateSchedule)
		r.Get("/schedule/list", s.handleListSchedule)
		r.Put("/schedule/{trigger_id}", s.handleUpdateSchedule)
		r.Delete("/schedule/{trigger_id}", s.handleCancelSchedule)
	})

	r.Route("/keys", func(r chi.Router) {
		r.Post("/", s.handleCreateKey)
		r.Get("/", s.handleListKeys)
		r.Delete("/{key_id}", s.handleDeleteKey)
	})

	r.Route("/assets", func(r chi.Router) {
		r.Post("/", s.handleCreateAsset)
		r.Get("/", s.handleListAssets)
		r.Delete("/{asset_id}", s.handleDeleteAsset)
	})

	r.Route("/playlists", func(r chi.Router) {
		r.Post("/", s.handleCreatePlaylist)
		r.Get("/{playlist_id}", s.handleGetPlaylist)
	})

	r.Get("/config", s.handleGetConfig)

	if s.hub != nil {
		r.Get("/ws/monitoring", s.hub.ServeMonitoring)
	}
	if s.logtail != nil {
		r.Get("/ws/logs/{session_id}", func(w http.ResponseWriter, r *http.Request) {
			s.logtail.ServeSession(w, r, chi.URLParam(r, "session_id"))
		})
	}
	r.Handle("/metrics", metrics.Handler())

	return r
}
