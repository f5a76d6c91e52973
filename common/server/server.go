package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flowmesh/flowmesh/common/logger"
)

const shutdownGrace = 30 * time.Second

// Server wraps an HTTP server with signal-driven graceful shutdown.
type Server struct {
	httpServer *http.Server
	log        *logger.Logger
	name       string

	// onShutdown runs after the shutdown signal arrives but before the
	// listener closes. Used to cancel in-flight executions.
	onShutdown func(ctx context.Context)
}

// New creates a server around the given handler.
func New(name string, port int, handler http.Handler, log *logger.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		log:  log,
		name: name,
	}
}

// OnShutdown registers a hook invoked during graceful shutdown.
func (s *Server) OnShutdown(fn func(ctx context.Context)) {
	s.onShutdown = fn
}

// Start runs the server until it fails or a SIGINT/SIGTERM arrives.
func (s *Server) Start() error {
	serverErrors := make(chan error, 1)

	go func() {
		s.log.Info(fmt.Sprintf("%s starting", s.name), "addr", s.httpServer.Addr)
		serverErrors <- s.httpServer.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		s.log.Info("shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()

		if s.onShutdown != nil {
			s.onShutdown(ctx)
		}

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.Error("graceful shutdown failed", "error", err)
			if err := s.httpServer.Close(); err != nil {
				return fmt.Errorf("could not stop server: %w", err)
			}
		}

		s.log.Info("shutdown complete")
	}

	return nil
}
