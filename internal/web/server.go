package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/actionsum/securetoggle/internal/config"
	"github.com/actionsum/securetoggle/internal/database"
)

type Server struct {
	config  *config.Config
	handler *Handler
	server  *http.Server
	logger  *slog.Logger
}

// NewServer builds the HTTP API. daemon may be nil when only history is served.
func NewServer(cfg *config.Config, repo *database.Repository, daemon Daemon, customPort int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	handler := NewHandler(cfg, repo, daemon, logger)
	mux := http.NewServeMux()
	handler.SetupRoutes(mux)

	port := cfg.Web.Port
	if customPort > 0 {
		port = customPort
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Web.Host, port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		config:  cfg,
		handler: handler,
		server:  httpServer,
		logger:  logger,
	}
}

// Start serves until Shutdown; http.ErrServerClosed is not reported as an error
func (s *Server) Start() error {
	s.logger.Info("starting web server", "url", "http://"+s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down web server")
	return s.server.Shutdown(ctx)
}

func (s *Server) GetAddress() string {
	return s.server.Addr
}
