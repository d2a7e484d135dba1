package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/onboard-agent/backend/internal/rag"
	"github.com/onboard-agent/backend/pkg/logger"
)

type WebSocketHandler struct {
	engine *rag.Engine
}

func NewWebSocketHandler(engine *rag.Engine) *WebSocketHandler {
	return &WebSocketHandler{engine: engine}
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type      string            `json:"type"`
			Content   string            `json:"content"`
			UserID    int64             `json:"user_id"`
			Language  string            `json:"language"`
			UseMemory bool              `json:"use_memory"`
			UserInfo  map[string]string `json:"user_info"`
		}

		err := c.ReadJSON(&msg)
		if err != nil {
			logger.Error("Failed to read WebSocket message", zap.Error(err))
			break
		}

		if msg.Type != "query" {
			continue
		}

		logger.Info("Processing WebSocket query",
			zap.Int64("user_id", msg.UserID),
			zap.String("query", msg.Content))

		req := rag.Request{
			Query:     msg.Content,
			UserID:    msg.UserID,
			Profile:   parseProfile(msg.UserInfo),
			Language:  rag.Language(msg.Language),
			UseMemory: msg.UseMemory,
		}

		err = h.streamResponse(c, req)
		if err != nil {
			logger.Error("Failed to stream response", zap.Error(err))
			h.sendError(c, "Failed to process query")
		}
	}
}

func (h *WebSocketHandler) streamResponse(c *websocket.Conn, req rag.Request) error {
	ctx := context.Background()

	h.sendChunk(c, "status", "Processing query...")

	response, err := h.engine.ProcessQuery(ctx, req)
	if err != nil {
		if errors.Is(err, rag.ErrRateLimited) {
			h.sendError(c, "Rate limit exceeded. Please wait before making another request.")
			return nil
		}
		return err
	}

	words := splitIntoWords(response.Answer)
	for i, word := range words {
		chunk := word
		if i < len(words)-1 {
			chunk += " "
		}

		err := h.sendChunk(c, "chunk", chunk)
		if err != nil {
			return err
		}
	}

	return h.sendComplete(c, response)
}

func (h *WebSocketHandler) sendChunk(c *websocket.Conn, msgType, content string) error {
	msg := map[string]interface{}{
		"type":    msgType,
		"content": content,
	}

	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendComplete(c *websocket.Conn, response *rag.Response) error {
	msg := map[string]interface{}{
		"type":              "complete",
		"message_id":        response.ID,
		"sources":           response.Sources,
		"complexity":        response.Complexity,
		"processing_method": response.ProcessingMethod,
	}

	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	msg := map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	}

	c.WriteJSON(msg)
}

func splitIntoWords(text string) []string {
	words := []string{}
	currentWord := ""

	for _, char := range text {
		if char == ' ' || char == '\n' {
			if currentWord != "" {
				words = append(words, currentWord)
				currentWord = ""
			}
			if char == '\n' {
				words = append(words, "\n")
			}
		} else {
			currentWord += string(char)
		}
	}

	if currentWord != "" {
		words = append(words, currentWord)
	}

	return words
}
