package app

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/kbassist/backend/internal/api/handlers"
	"github.com/kbassist/backend/internal/metrics"
	"github.com/kbassist/backend/internal/middleware/ratelimit"
	"github.com/kbassist/backend/internal/middleware/security"
	"github.com/kbassist/backend/internal/middleware/validation"
	"github.com/kbassist/backend/pkg/logger"
)

// Server is the HTTP surface over an App. Stop releases the rate limiter; it
// does not close the App.
type Server struct {
	*fiber.App
	limiter *ratelimit.RateLimiter
}

func NewServer(a *App) *Server {
	cfg := a.Config

	app := fiber.New(fiber.Config{
		AppName:      "kbassist",
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.Server.RateLimitPerMinute,
		Logger:               logger.GetLogger(),
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.Server.AllowedOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Client-ID",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		IsDevelopment:  cfg.Server.Development,
	}))

	systemHandler := handlers.NewSystemHandler(a.Engine, a.Source)
	var history handlers.HistoryReader
	if cfg.History.Enabled && a.SQLite != nil {
		history = a.SQLite
	}
	queryHandler := handlers.NewQueryHandler(a.Engine, cfg.Retrieval.DefaultK, history)
	wsHandler := handlers.NewWebSocketHandler(a.Engine, cfg.Retrieval.DefaultK, cfg.Retrieval.MaxK)

	app.Get("/", systemHandler.Root)
	app.Get("/metrics", metrics.MetricsHandler())

	api := app.Group("/api", limiter.Middleware(), validation.Middleware(validation.Config{
		MaxK:   cfg.Retrieval.MaxK,
		Logger: logger.GetLogger(),
	}))

	api.Get("/health", systemHandler.Health)
	api.Post("/query", queryHandler.HandleQuery)
	api.Get("/history", queryHandler.GetQueryHistory)
	api.Get("/stats", systemHandler.Stats)
	api.Post("/admin/rebuild", systemHandler.Rebuild)

	api.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	api.Get("/ws", websocket.New(wsHandler.HandleConnection))

	return &Server{App: app, limiter: limiter}
}

func (s *Server) Stop() {
	s.limiter.Stop()
}
