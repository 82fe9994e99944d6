package metrics

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server provides an optional HTTP server for metrics.
// Use this only if your application does not already expose metrics.
type Server struct {
	app     *fiber.App
	addr    string
	errChan chan error
}

// NewServer creates a metrics server on the specified address.
// Example address: ":9090" or "localhost:9090"
func NewServer(addr string) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	return &Server{
		app:     app,
		addr:    addr,
		errChan: make(chan error, 1),
	}
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.addr
}

// Start starts the metrics server in a goroutine.
// Returns immediately. Check Err() to detect startup failures.
// Use Shutdown to stop the server.
func (s *Server) Start() {
	go func() {
		if err := s.app.Listen(s.addr); err != nil {
			s.errChan <- err
		}
	}()
}

// Err returns any error that occurred during server startup or operation.
// This is non-blocking and returns nil if no error has occurred.
func (s *Server) Err() error {
	select {
	case err := <-s.errChan:
		return err
	default:
		return nil
	}
}

// Shutdown gracefully shuts down the metrics server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
