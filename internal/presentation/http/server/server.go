// Package server owns the lifecycle of the widget engine's HTTP listener.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/miqyas/sizecore-go/internal/application/container"
	"github.com/miqyas/sizecore-go/internal/presentation/http/routes"
	"github.com/miqyas/sizecore-go/pkg/config"
)

// Server wraps the engine's http.Server with the configured timeouts and the
// widget route table.
type Server struct {
	httpServer *http.Server
}

// New builds the listener for the given port over the container's handlers.
func New(port string, c *container.Container) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         ":" + port,
			Handler:      routes.SetupRoutes(c),
			ReadTimeout:  config.ServerReadTimeout,
			WriteTimeout: config.ServerWriteTimeout,
			IdleTimeout:  config.ServerIdleTimeout,
		},
	}
}

// Start serves requests until Stop is called or the listener fails. A
// graceful shutdown is not an error.
func (s *Server) Start() error {
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http listener on %s: %w", s.httpServer.Addr, err)
	}
	return nil
}

// Stop drains in-flight requests within the context deadline.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
