package server

import (
	"context"
	"net/http"
	"time"

	"spacechat/internal/config"
	"spacechat/internal/logger"
)

// Server is the HTTP front of the messaging service.
type Server struct {
	httpServer *http.Server
}

// New wires the routes and middleware into an HTTP server.
func New(cfg *config.Config, h *Handlers) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/register", h.HandleRegister)
	mux.HandleFunc("POST /api/auth/login", h.HandleLogin)

	mux.Handle("POST /api/conversations", h.WithAuth(http.HandlerFunc(h.HandleOpenConversation)))
	mux.Handle("GET /api/conversations/{id}/messages", h.WithAuth(http.HandlerFunc(h.HandleListMessages)))
	mux.Handle("POST /api/conversations/{id}/messages", h.WithAuth(http.HandlerFunc(h.HandleSendMessage)))
	mux.Handle("GET /ws", h.WithAuth(http.HandlerFunc(h.HandleWebSocket)))

	return &Server{
		httpServer: &http.Server{
			Addr:        cfg.Server.ListenAddr,
			Handler:     withCORS(cfg.Server.AllowedOrigin, mux),
			ReadTimeout: time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		},
	}
}

// Start begins serving; it blocks until the server stops.
func (s *Server) Start() error {
	logger.Infof("HTTP server listening on %s", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func withCORS(allowedOrigin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Websocket upgrades negotiate their own origin check
		if r.Header.Get("Upgrade") == "websocket" {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
