package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"

	"github.com/filmfeed/gateway/internal/auth"
	"github.com/filmfeed/gateway/internal/config"
	"github.com/filmfeed/gateway/internal/gateway"
)

// Server is the HTTP surface of the gateway: the WebSocket upgrade
// endpoint plus the presence API consumed by the rest of the
// application.
type Server struct {
	log            *log.Logger
	gw             *gateway.Gateway
	authn          *auth.Authenticator
	mux            *http.Server
	allowedOrigins []string
}

func NewServer(mux *http.ServeMux, logger *log.Logger, gw *gateway.Gateway, authn *auth.Authenticator, cfg *config.Config) *Server {
	s := &Server{
		log:            logger,
		gw:             gw,
		authn:          authn,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /ws", s.authMiddleware(s.serveWs))
	mux.HandleFunc("GET /api/presence", s.authMiddleware(s.listOnlineUsers))
	mux.HandleFunc("GET /api/presence/{userId}", s.authMiddleware(s.userOnline))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *Server) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
