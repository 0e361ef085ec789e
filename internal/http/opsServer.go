package http

import (
	"context"
	"log"
	"net/http"
	"sync"

	"hitch/internal/api"
	"hitch/internal/auth"
	"hitch/internal/ws"
)

// OpsServer is the operator listener, bound to loopback by default.
type OpsServer struct {
	server *http.Server
	wg     sync.WaitGroup
}

func NewOpsServer(authService *auth.AuthService, hub *ws.Hub, addr string) *OpsServer {
	opsHandler := api.NewOpsHandler(authService, hub)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /admin/accounts", opsHandler.AddAccountHandler)
	mux.HandleFunc("GET /status", opsHandler.StatusHandler)

	if addr == "" {
		addr = "localhost:8081"
	}

	return &OpsServer{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

func (s *OpsServer) Start() error {
	log.Printf("Ops API started on %s", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *OpsServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
