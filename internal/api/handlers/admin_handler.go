package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/onboard-agent/backend/internal/rag"
	"github.com/onboard-agent/backend/pkg/logger"
)

type AdminHandler struct {
	engine *rag.Engine
}

func NewAdminHandler(engine *rag.Engine) *AdminHandler {
	return &AdminHandler{engine: engine}
}

func (h *AdminHandler) ClearMemory(c *fiber.Ctx) error {
	userID, err := c.ParamsInt("id")
	if err != nil || userID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid user id",
		})
	}

	cleared := h.engine.ClearUserMemory(int64(userID))
	return c.JSON(fiber.Map{
		"user_id": userID,
		"cleared": cleared,
	})
}

func (h *AdminHandler) InvalidateUserCache(c *fiber.Ctx) error {
	userID, err := c.ParamsInt("id")
	if err != nil || userID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid user id",
		})
	}

	removed := h.engine.InvalidateUserCache(c.Context(), int64(userID))
	logger.Info("Invalidated user cache",
		zap.Int("user_id", userID),
		zap.Int("removed", removed))

	return c.JSON(fiber.Map{
		"user_id": userID,
		"removed": removed,
	})
}

func (h *AdminHandler) InvalidateSearchCache(c *fiber.Ctx) error {
	var req struct {
		Pattern string `json:"pattern"`
	}
	// Body is optional; an empty pattern clears the whole search tier.
	_ = c.BodyParser(&req)

	removed := h.engine.InvalidateSearchCache(c.Context(), req.Pattern)
	logger.Info("Invalidated search cache", zap.Int("removed", removed))

	return c.JSON(fiber.Map{
		"removed": removed,
	})
}

func (h *AdminHandler) Health(c *fiber.Ctx) error {
	status := h.engine.HealthCheck(c.Context())

	code := fiber.StatusOK
	if status.Status == "unhealthy" {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(status)
}

func (h *AdminHandler) Ready(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ready",
	})
}
