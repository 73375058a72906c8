// Package server exposes the chat store and send gateway to browser clients
// over HTTP and websocket.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Server manages the HTTP listener lifecycle.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer builds the router and binds it to addr.
func NewServer(addr string, allowedOrigins []string, h *Handlers, logger *zap.Logger) *Server {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/chats", h.ListChats)
	r.Post("/chat", h.CreateChat)
	r.Post("/send-message", h.SendMessage)
	r.Get("/whatsapp-status", h.ProviderStatus)
	r.Get("/qr.png", h.QRImage)
	r.Get("/ws", h.WebSocket)

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Handler exposes the configured router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins serving requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("http server starting", zap.String("addr", s.httpServer.Addr))
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop performs a graceful shutdown.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("http server stopping")
	_ = s.httpServer.Shutdown(ctx)
}
