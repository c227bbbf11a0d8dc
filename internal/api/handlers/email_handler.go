package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/chrisx599/ChatEmail/internal/mail"
	"github.com/chrisx599/ChatEmail/pkg/logger"
)

type EmailHandler struct {
	fetcher EmailFetcher
	store   EmailStore
}

func NewEmailHandler(fetcher EmailFetcher, store EmailStore) *EmailHandler {
	return &EmailHandler{
		fetcher: fetcher,
		store:   store,
	}
}

// FetchEmails pulls new messages from the mailbox and caches them.
func (h *EmailHandler) FetchEmails(c *fiber.Ctx) error {
	emails, err := h.fetcher.FetchEmails(c.UserContext())
	if errors.Is(err, mail.ErrNotConfigured) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Mailbox is not configured",
		})
	}
	if err != nil {
		logger.Error("Failed to fetch emails", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Failed to fetch emails",
		})
	}

	if err := h.store.SaveEmails(c.UserContext(), emails); err != nil {
		logger.Warn("Failed to cache fetched emails", zap.Error(err))
	}

	return c.JSON(fiber.Map{
		"emails": emails,
		"count":  len(emails),
	})
}

// ListEmails returns the cached emails without contacting the mailbox.
func (h *EmailHandler) ListEmails(c *fiber.Ctx) error {
	emails := h.store.GetEmails(c.UserContext())
	return c.JSON(fiber.Map{
		"emails": emails,
		"count":  len(emails),
	})
}
