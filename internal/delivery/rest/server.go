// Path: internal/delivery/rest/server.go
package rest

import (
	"context"
	"net/http"
	"time"

	"esp-hub/internal/delivery/ws"
)

// Server is the HTTP server carrying both the command API and the
// real-time WebSocket endpoints.
type Server struct {
	httpServer *http.Server
}

// NewServer creates and configures a new API server.
func NewServer(port string, service commandService, realtime *ws.Handler) *Server {
	deviceHandlers := NewDeviceHandlers(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/esp/", deviceHandlers.Route) // Trailing slash handles sub-paths
	realtime.Register(mux)

	return &Server{
		httpServer: &http.Server{
			Addr:    ":" + port,
			Handler: mux,
			// These bound the HTTP request/response cycle; upgraded
			// WebSocket connections clear their deadlines on hijack.
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  15 * time.Second,
		},
	}
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
