package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/chrisx599/ChatEmail/internal/storage/sqlite"
	"github.com/chrisx599/ChatEmail/pkg/logger"
)

type CacheHandler struct {
	admin CacheAdmin
}

func NewCacheHandler(admin CacheAdmin) *CacheHandler {
	return &CacheHandler{
		admin: admin,
	}
}

func (h *CacheHandler) Status(c *fiber.Ctx) error {
	return c.JSON(h.admin.Status(c.UserContext()))
}

func (h *CacheHandler) ClearAll(c *fiber.Ctx) error {
	if err := h.admin.ClearAll(c.UserContext()); err != nil {
		logger.Error("Failed to clear cache", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to clear some collections",
		})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *CacheHandler) ClearCollection(c *fiber.Ctx) error {
	coll, err := sqlite.ParseCollection(c.Params("collection"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if err := h.admin.Clear(c.UserContext(), coll); err != nil {
		if errors.Is(err, sqlite.ErrUnknownCollection) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		logger.Error("Failed to clear collection", zap.String("collection", string(coll)), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to clear collection",
		})
	}
	return c.SendStatus(fiber.StatusNoContent)
}
