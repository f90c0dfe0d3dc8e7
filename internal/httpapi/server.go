package httpapi

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/biodoia/vettriage/internal/pipeline"
	"github.com/biodoia/vettriage/internal/providers"
	"github.com/biodoia/vettriage/pkg/middleware"
)

// Server espone la pipeline di triage via HTTP
type Server struct {
	app          *fiber.App
	orchestrator *pipeline.Orchestrator
	registry     *providers.Registry
}

// New crea un nuovo server HTTP
func New(orchestrator *pipeline.Orchestrator, registry *providers.Registry) *Server {
	app := fiber.New(fiber.Config{
		AppName:      "VetTriage",
		ServerHeader: "VetTriage/1.0",
		ErrorHandler: errorHandler,
		BodyLimit:    16 * 1024 * 1024, // immagini cliniche fino a 16MB
	})

	s := &Server{
		app:          app,
		orchestrator: orchestrator,
		registry:     registry,
	}

	s.setupMiddlewares()
	s.setupRoutes()

	return s
}

// errorHandler gestisce gli errori globali
func errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error":      message,
		"request_id": middleware.GetRequestID(c),
	})
}

// setupMiddlewares configura i middleware globali
func (s *Server) setupMiddlewares() {
	s.app.Use(middleware.Recovery())
	s.app.Use(middleware.RequestID())
	s.app.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	s.app.Use(middleware.Logging(middleware.LoggingConfig{
		SkipPaths: []string{"/health", "/metrics"},
	}))
}

// setupRoutes configura le route HTTP
func (s *Server) setupRoutes() {
	s.app.Get("/health", s.handleHealth)
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := s.app.Group("/api/v1")
	api.Post("/diagnose", s.handleDiagnose)
	api.Get("/providers", s.handleProviders)
}

// Listen avvia il server sull'indirizzo dato
func (s *Server) Listen(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	log.Info().Str("addr", addr).Msg("HTTP server starting")
	return s.app.Listen(addr)
}

// Shutdown arresta il server con grazia
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// App espone l'app Fiber (usato nei test)
func (s *Server) App() *fiber.App {
	return s.app
}
