package validation

import (
	"math"
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var xssPattern = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|onerror=|onload=|onclick=)`)

// SanitizedBodyKey holds the validated query body in fiber Locals.
const SanitizedBodyKey = "sanitized_body"

type Config struct {
	MaxQueryLength      int
	MaxK                int
	QueryPaths          []string
	AllowedContentTypes []string
	Logger              *zap.Logger
}

// QueryBody is the validated body of a query request. K is 0 when omitted.
type QueryBody struct {
	Query string
	K     int
	Mode  string
}

func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxQueryLength <= 0 {
		cfg.MaxQueryLength = 2000
	}
	if cfg.MaxK <= 0 {
		cfg.MaxK = 50
	}
	if len(cfg.QueryPaths) == 0 {
		cfg.QueryPaths = []string{"/api/query"}
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json"}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodPost || c.Method() == fiber.MethodPut {
			contentType := c.Get(fiber.HeaderContentType)
			if contentType != "" {
				allowed := false
				for _, allowedType := range cfg.AllowedContentTypes {
					if strings.Contains(contentType, allowedType) {
						allowed = true
						break
					}
				}
				if !allowed {
					return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
						"error": "Unsupported content type",
					})
				}
			}
		}

		if c.Method() != fiber.MethodPost || !matchesPath(c.Path(), cfg.QueryPaths) {
			return c.Next()
		}

		var req map[string]any
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}

		query, ok := req["query"].(string)
		if !ok || strings.TrimSpace(query) == "" {
			return badRequest(c, "Query is required and must be a non-empty string")
		}
		if len([]rune(query)) > cfg.MaxQueryLength {
			return badRequest(c, "Query exceeds maximum length")
		}
		if containsXSS(query) {
			cfg.Logger.Warn("Potential XSS attempt",
				zap.String("ip", c.IP()),
				zap.String("path", c.Path()),
			)
			return badRequest(c, "Invalid query content")
		}

		body := QueryBody{Query: sanitizeString(query)}

		if raw, present := req["k"]; present && raw != nil {
			k, ok := raw.(float64)
			if !ok || k != math.Trunc(k) || k < 1 || k > float64(cfg.MaxK) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "k must be an integer between 1 and the configured maximum",
					"max_k": cfg.MaxK,
				})
			}
			body.K = int(k)
		}

		if raw, present := req["mode"]; present && raw != nil {
			mode, ok := raw.(string)
			if !ok {
				return badRequest(c, "mode must be a string")
			}
			body.Mode = mode
		}

		c.Locals(SanitizedBodyKey, body)
		return c.Next()
	}
}

func matchesPath(path string, paths []string) bool {
	for _, p := range paths {
		if strings.TrimSuffix(path, "/") == p {
			return true
		}
	}
	return false
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

func containsXSS(input string) bool {
	return xssPattern.MatchString(input)
}

func sanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	return strings.TrimSpace(input)
}
