package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/onboard-agent/backend/internal/rag"
	"github.com/onboard-agent/backend/pkg/logger"
)

type QueryHandler struct {
	engine *rag.Engine
}

func NewQueryHandler(engine *rag.Engine) *QueryHandler {
	return &QueryHandler{engine: engine}
}

type queryRequest struct {
	Query     string            `json:"query"`
	UserID    int64             `json:"user_id"`
	Language  string            `json:"language"`
	UseMemory bool              `json:"use_memory"`
	UserInfo  map[string]string `json:"user_info"`
}

// parseProfile maps the recognized user_info attributes onto a profile.
// Unknown keys in the payload are dropped at this boundary.
func parseProfile(info map[string]string) *rag.UserProfile {
	if len(info) == 0 {
		return nil
	}
	profile := &rag.UserProfile{
		Name:       info["name"],
		Position:   info["position"],
		Department: info["department"],
		StartDate:  info["start_date"],
	}
	if *profile == (rag.UserProfile{}) {
		return nil
	}
	return profile
}

func (h *QueryHandler) HandleQuery(c *fiber.Ctx) error {
	var req queryRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query is required",
		})
	}
	if req.UserID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id is required",
		})
	}

	response, err := h.engine.ProcessQuery(c.Context(), rag.Request{
		Query:     req.Query,
		UserID:    req.UserID,
		Profile:   parseProfile(req.UserInfo),
		Language:  rag.Language(req.Language),
		UseMemory: req.UseMemory,
	})
	if err != nil {
		if errors.Is(err, rag.ErrRateLimited) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Rate limit exceeded. Please wait before making another request.",
			})
		}
		logger.Error("Failed to process query", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process query",
		})
	}

	return c.JSON(response)
}

func (h *QueryHandler) GetHistory(c *fiber.Ctx) error {
	userID, err := c.ParamsInt("id")
	if err != nil || userID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid user id",
		})
	}

	history := h.engine.UserHistory(int64(userID))
	if history == nil {
		history = []rag.Message{}
	}

	return c.JSON(fiber.Map{
		"user_id": userID,
		"history": history,
	})
}
