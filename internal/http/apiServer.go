package http

import (
	"context"
	"log"
	"net/http"
	"sync"

	"hitch/internal/api"
	"hitch/internal/auth"
	"hitch/internal/push"
	"hitch/internal/storage"
	"hitch/internal/trips"
	"hitch/internal/ws"
)

type APIServer struct {
	server *http.Server
	wg     sync.WaitGroup
}

func NewAPIServer(authService *auth.AuthService, hub *ws.Hub, storage *storage.BboltStorage, trips *trips.Store, push *push.Service, addr string) *APIServer {
	rtServer := ws.NewServer(hub, authService)
	apiHandlers := api.New(authService, hub, storage, trips, push)

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/login", apiHandlers.LoginHandler)
	mux.HandleFunc("POST /api/messages", apiHandlers.RequireAuth(apiHandlers.MessagesHandler))
	mux.HandleFunc("GET /api/messages", apiHandlers.RequireAuth(apiHandlers.RideMessagesHandler))
	mux.HandleFunc("POST /api/locations", apiHandlers.RequireAuth(apiHandlers.LocationsHandler))
	mux.HandleFunc("POST /api/bookings", apiHandlers.RequireAuth(apiHandlers.CreateBookingHandler))
	mux.HandleFunc("PUT /api/bookings/{id}/status", apiHandlers.RequireAuth(apiHandlers.BookingStatusHandler))
	mux.HandleFunc("POST /api/packages/{trackingNumber}/events", apiHandlers.RequireAuth(apiHandlers.PackageEventHandler))
	mux.HandleFunc("GET /api/packages/{trackingNumber}", apiHandlers.RequireAuth(apiHandlers.PackageHistoryHandler))
	mux.HandleFunc("POST /api/push/subscribe", apiHandlers.RequireAuth(apiHandlers.PushSubscribeHandler))
	mux.HandleFunc("GET /healthz", apiHandlers.HealthHandler)

	// Realtime endpoint, auth happens in-band after the upgrade.
	mux.HandleFunc("/api/rt", rtServer.HandleConnections)

	if addr == "" {
		addr = ":8080"
	}

	return &APIServer{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

func (s *APIServer) Start() error {
	log.Printf("Server started on %s", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
