// Package api exposes a Gatherer over HTTP.
//
// Routes:
//
//	POST /requests                 submit {"topic": "..."}
//	GET  /requests/:id             poll the processing summary
//	POST /requests/:id/partials    report {"collector_index": 0, "items": [...]}
//	GET  /healthz                  liveness
package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/getpup/pupsourcing-gather"
	"github.com/getpup/pupsourcing/es"
	"github.com/gofiber/fiber/v2"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
)

// Config holds configuration for the API server.
type Config struct {
	// ReadTimeout is the maximum duration for reading a request (default: 10s).
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration for writing a response (default: 10s).
	WriteTimeout time.Duration

	// Logger is for observability (optional).
	Logger es.Logger
}

// Server serves the HTTP surface of a Gatherer.
type Server struct {
	app      *fiber.App
	gatherer gather.Gatherer
	config   Config
}

// NewServer creates a new API server for the given Gatherer.
func NewServer(g gather.Gatherer, cfg Config) *Server {
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	s := &Server{
		gatherer: g,
		config:   cfg,
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "pupsourcing-gather",
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		DisableStartupMessage: true,
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
		ErrorHandler:          s.handleError,
	})
	s.app.Use(fiberrecover.New())

	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	s.app.Get("/healthz", s.healthCheck)

	s.app.Post("/requests", s.submit)
	s.app.Get("/requests/:id", s.result)
	s.app.Post("/requests/:id/partials", s.reportPartial)
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves HTTP on addr until Shutdown is called.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// ErrorResponse is the body of every error reply.
// RequestID is set when the failed call still created a request.
type ErrorResponse struct {
	Error     string           `json:"error"`
	Message   string           `json:"message"`
	RequestID gather.RequestID `json:"request_id,omitempty"`
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if !errors.As(err, &fe) {
		fe = fiber.NewError(fiber.StatusInternalServerError, "internal server error")
	}
	return s.writeError(c, fe, err, "")
}

func (s *Server) writeError(c *fiber.Ctx, fe *fiber.Error, err error, id gather.RequestID) error {
	if fe.Code >= fiber.StatusInternalServerError && s.config.Logger != nil {
		s.config.Logger.Error(c.UserContext(), "request failed",
			"method", c.Method(),
			"path", c.Path(),
			"status", fe.Code,
			"requestID", id,
			"error", err)
	}

	return c.Status(fe.Code).JSON(ErrorResponse{
		Error:     fmt.Sprintf("error_%d", fe.Code),
		Message:   fe.Message,
		RequestID: id,
	})
}

// statusFor maps domain errors to HTTP errors.
func statusFor(err error) *fiber.Error {
	switch {
	case errors.Is(err, gather.ErrInvalidTopic), errors.Is(err, gather.ErrInvalidCollectorIndex):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, gather.ErrUnknownRequest), errors.Is(err, gather.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, gather.ErrStoreUnavailable):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
