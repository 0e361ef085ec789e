package ws

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// Server upgrades HTTP requests to websocket connections and hands each one
// to the hub. Authentication happens in-band after the upgrade, so the
// endpoint itself is open.
type Server struct {
	hub      *Hub
	auth     tokenVerifier
	upgrader *websocket.Upgrader
}

func NewServer(hub *Hub, auth tokenVerifier) *Server {
	return &Server{
		hub:  hub,
		auth: auth,
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for now
			},
		},
	}
}

func (s *Server) HandleConnections(w http.ResponseWriter, r *http.Request) {
	opts := Options{
		SuppressEcho: r.URL.Query().Get("suppress_echo") == "true",
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("error upgrading to websocket", "error", err)
		return
	}

	c := NewConnection(s.hub, s.auth, conn, opts)
	if err := c.Handle(r.Context()); err != nil {
		slog.Debug("websocket session ended", "error", err)
	}
}
