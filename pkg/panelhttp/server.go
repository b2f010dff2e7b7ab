// Package panelhttp exposes panels over WebSocket. Each connection gets
// its own session: a Coordinator plus TimeController driven by inbound
// browser events, with render state and picker updates streamed back.
package panelhttp

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vjranagit/promdash/pkg/panel"
	"github.com/vjranagit/promdash/pkg/promapi"
)

// ServerConfig configures the panel WebSocket server.
type ServerConfig struct {
	Client promapi.Client
	// Defaults are the options a fresh session starts with.
	Defaults panel.Options
	Logger   *slog.Logger
	Metrics  *panel.Metrics
	Now      func() time.Time
}

// Server upgrades connections and runs panel sessions.
type Server struct {
	client   promapi.Client
	defaults panel.Options
	log      *slog.Logger
	metrics  *panel.Metrics
	now      func() time.Time
	upgrader websocket.Upgrader
}

// NewServer creates a panel session server.
func NewServer(cfg ServerConfig) *Server {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Server{
		client:   cfg.Client,
		defaults: cfg.Defaults,
		log:      log,
		metrics:  cfg.Metrics,
		now:      now,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "err", err)
		return
	}

	id := uuid.NewString()
	sess := newSession(s, id, conn)
	s.log.Info("panel session opened", "session", id, "remote", r.RemoteAddr)
	sess.run()
	s.log.Info("panel session closed", "session", id)
}
