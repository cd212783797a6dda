package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/kbassist/backend/internal/answer"
	"github.com/kbassist/backend/internal/middleware/validation"
	"github.com/kbassist/backend/internal/query"
	"github.com/kbassist/backend/internal/storage/models"
	"github.com/kbassist/backend/pkg/logger"
)

type HistoryReader interface {
	GetQueryHistory(ctx context.Context, limit int) ([]models.QueryRecord, error)
}

type QueryHandler struct {
	queryEngine *query.Engine
	defaultK    int
	history     HistoryReader
}

// NewQueryHandler serves /api/query. history may be nil when query history is
// disabled.
func NewQueryHandler(queryEngine *query.Engine, defaultK int, history HistoryReader) *QueryHandler {
	if defaultK < 1 {
		defaultK = 3
	}
	return &QueryHandler{
		queryEngine: queryEngine,
		defaultK:    defaultK,
		history:     history,
	}
}

func (h *QueryHandler) HandleQuery(c *fiber.Ctx) error {
	// Validated bodies use K == 0 for an omitted k; the validator rejects an
	// explicit 0 itself.
	body, ok := c.Locals(validation.SanitizedBodyKey).(validation.QueryBody)
	explicitK := false
	if !ok {
		var req struct {
			Query string `json:"query"`
			K     *int   `json:"k"`
			Mode  string `json:"mode"`
		}
		if err := c.BodyParser(&req); err != nil {
			logger.Error("Failed to parse request body", zap.Error(err))
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
		body = validation.QueryBody{Query: strings.TrimSpace(req.Query), Mode: req.Mode}
		if req.K != nil {
			body.K = *req.K
			explicitK = true
		}
	}

	if body.K == 0 && !explicitK {
		body.K = h.defaultK
	}

	mode, err := answer.ParseMode(body.Mode)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	response, err := h.queryEngine.Run(c.UserContext(), query.Request{
		Text: body.Query,
		K:    body.K,
		Mode: mode,
	})
	if err != nil {
		logger.Warn("Query failed", zap.Error(err))
		return writeError(c, err)
	}

	return c.JSON(response)
}

func (h *QueryHandler) GetQueryHistory(c *fiber.Ctx) error {
	if h.history == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Query history is disabled",
		})
	}

	limit := c.QueryInt("limit", 20)
	if limit < 1 || limit > 500 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "limit must be between 1 and 500",
		})
	}

	records, err := h.history.GetQueryHistory(c.UserContext(), limit)
	if err != nil {
		logger.Error("Failed to read query history", zap.Error(err))
		return writeError(c, err)
	}

	items := make([]fiber.Map, 0, len(records))
	for _, r := range records {
		items = append(items, fiber.Map{
			"id":                r.ID,
			"query":             r.QueryText,
			"k":                 r.K,
			"answer_mode":       r.AnswerMode,
			"confidence_score":  r.Confidence,
			"num_retrieved":     r.ResultsCount,
			"top_article_title": r.TopArticleTitle,
			"top_score":         r.TopScore,
			"generation":        r.Generation,
			"latency_ms":        r.LatencyMS,
			"created_at":        r.CreatedAt,
		})
	}

	return c.JSON(fiber.Map{
		"history": items,
	})
}
