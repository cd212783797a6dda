package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/kbassist/backend/internal/articles"
	"github.com/kbassist/backend/internal/query"
	"github.com/kbassist/backend/pkg/logger"
)

type SystemHandler struct {
	queryEngine *query.Engine
	source      articles.Source
}

// NewSystemHandler serves health, stats and index rebuilds. source is re-read on
// every rebuild.
func NewSystemHandler(queryEngine *query.Engine, source articles.Source) *SystemHandler {
	return &SystemHandler{
		queryEngine: queryEngine,
		source:      source,
	}
}

func (h *SystemHandler) Root(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"name":    "KB Assist API",
		"status":  "running",
		"version": "1.0.0",
		"endpoints": []string{
			"GET /api/health",
			"POST /api/query",
			"GET /api/stats",
			"GET /api/history",
			"POST /api/admin/rebuild",
			"GET /api/ws",
			"GET /metrics",
		},
	})
}

func (h *SystemHandler) Health(c *fiber.Ctx) error {
	stats := h.queryEngine.Stats()
	status := "healthy"
	if !stats.Ready {
		status = "initializing"
	}
	return c.JSON(fiber.Map{
		"status":                 status,
		"rag_engine_initialized": stats.Ready,
		"generative_configured":  stats.GenerativeEnabled,
		"articles":               stats.ArticleCount,
		"generation":             stats.Generation,
	})
}

func (h *SystemHandler) Stats(c *fiber.Ctx) error {
	return c.JSON(h.queryEngine.Stats())
}

func (h *SystemHandler) Rebuild(c *fiber.Ctx) error {
	start := time.Now()

	records, err := h.source.Records(c.UserContext())
	if err != nil {
		logger.Error("Failed to read knowledge base", zap.Error(err))
		return writeError(c, err)
	}

	if err := h.queryEngine.Rebuild(c.UserContext(), records); err != nil {
		logger.Error("Index rebuild failed", zap.Error(err))
		return writeError(c, err)
	}

	stats := h.queryEngine.Stats()
	return c.JSON(fiber.Map{
		"status":      "rebuilt",
		"articles":    stats.ArticleCount,
		"generation":  stats.Generation,
		"duration_ms": time.Since(start).Milliseconds(),
	})
}
