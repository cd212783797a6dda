package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/kbassist/backend/internal/answer"
	"github.com/kbassist/backend/internal/query"
	"github.com/kbassist/backend/pkg/logger"
)

const wsQueryTimeout = 60 * time.Second

type WebSocketHandler struct {
	queryEngine *query.Engine
	defaultK    int
	maxK        int
}

func NewWebSocketHandler(queryEngine *query.Engine, defaultK, maxK int) *WebSocketHandler {
	if defaultK < 1 {
		defaultK = 3
	}
	if maxK < defaultK {
		maxK = defaultK
	}
	return &WebSocketHandler{
		queryEngine: queryEngine,
		defaultK:    defaultK,
		maxK:        maxK,
	}
}

type wsMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	K       int    `json:"k"`
	Mode    string `json:"mode"`
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg wsMessage
		if err := c.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("Failed to read WebSocket message", zap.Error(err))
			}
			break
		}

		if msg.Type != "query" {
			continue
		}

		logger.Debug("Processing WebSocket query", zap.Int("query_length", len(msg.Content)))

		if err := h.streamResponse(c, msg); err != nil {
			logger.Warn("Failed to stream response", zap.Error(err))
			_, text := errorStatus(err)
			if werr := h.sendError(c, text); werr != nil {
				break
			}
		}
	}
}

func (h *WebSocketHandler) streamResponse(c *websocket.Conn, msg wsMessage) error {
	ctx, cancel := context.WithTimeout(context.Background(), wsQueryTimeout)
	defer cancel()

	k := msg.K
	if k == 0 {
		k = h.defaultK
	}
	if k > h.maxK {
		k = h.maxK
	}

	mode, err := answer.ParseMode(msg.Mode)
	if err != nil {
		return fmt.Errorf("%w: %v", query.ErrInvalidArgument, err)
	}

	if err := h.sendChunk(c, "status", "Processing query..."); err != nil {
		return err
	}

	response, err := h.queryEngine.Run(ctx, query.Request{
		Text: strings.TrimSpace(msg.Content),
		K:    k,
		Mode: mode,
	})
	if err != nil {
		return err
	}

	words := splitIntoWords(response.Answer)
	for i, word := range words {
		chunk := word
		if i < len(words)-1 && word != "\n" {
			chunk += " "
		}
		if err := h.sendChunk(c, "chunk", chunk); err != nil {
			return err
		}
	}

	return h.sendComplete(c, response)
}

func (h *WebSocketHandler) sendChunk(c *websocket.Conn, msgType, content string) error {
	return c.WriteJSON(map[string]interface{}{
		"type":    msgType,
		"content": content,
	})
}

func (h *WebSocketHandler) sendComplete(c *websocket.Conn, response *query.Response) error {
	return c.WriteJSON(map[string]interface{}{
		"type":        "complete",
		"message_id":  response.ID,
		"sources":     response.Results,
		"confidence":  response.Confidence,
		"answer_mode": response.AnswerMode,
		"generation":  response.Generation,
		"latency_ms":  response.LatencyMS,
	})
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) error {
	return c.WriteJSON(map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	})
}

func splitIntoWords(text string) []string {
	words := []string{}
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}

	for _, char := range text {
		switch char {
		case ' ', '\t':
			flush()
		case '\n':
			flush()
			words = append(words, "\n")
		default:
			current.WriteRune(char)
		}
	}
	flush()

	return words
}
