package server

import (
	"context"
	"log"

	"clinic-chat-be/internal/bootstrap"
	"clinic-chat-be/internal/config"
	"clinic-chat-be/internal/pkg/logger"
	"clinic-chat-be/internal/pkg/serverutils"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

type Server struct {
	app       *fiber.App
	cfg       *config.Config
	container *bootstrap.Container
}

func New(cfg *config.Config, container *bootstrap.Container) *Server {
	app := NewApp(cfg.App.CorsAllowedOrigins, container.Logger)
	registerRoutes(app, container)

	return &Server{
		app:       app,
		cfg:       cfg,
		container: container,
	}
}

// NewApp builds the fiber app with the shared middleware stack and no routes.
func NewApp(corsOrigins string, log logger.ILogger) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit:             1 * 1024 * 1024,
		DisableStartupMessage: true,
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowCredentials: true,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		ExposeHeaders:    "Content-Length, Content-Type, Content-Disposition",
	}))

	// OpenTelemetry tracing middleware (traces all HTTP requests)
	app.Use(otelfiber.Middleware())

	app.Use(serverutils.ErrorHandlerMiddleware(log))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(serverutils.SuccessResponse[any]("ok", nil))
	})

	return app
}

func (s *Server) GetApp() *fiber.App {
	return s.app
}

func (s *Server) Run() error {
	log.Printf("Server is running on http://localhost:%s", s.cfg.App.Port)
	return s.app.Listen(":" + s.cfg.App.Port)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func registerRoutes(app *fiber.App, c *bootstrap.Container) {
	api := app.Group("/api")

	// Sockets first: /chat/v1/operators/ws would otherwise match /:userId.
	c.ChatWsHandler.RegisterRoutes(api, c.Auth)
	c.ChatController.RegisterRoutes(api)
}
