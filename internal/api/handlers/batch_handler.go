package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/chrisx599/ChatEmail/internal/batch"
	"github.com/chrisx599/ChatEmail/internal/middleware/validation"
	"github.com/chrisx599/ChatEmail/internal/storage/models"
	"github.com/chrisx599/ChatEmail/pkg/logger"
)

type BatchHandler struct {
	runner BatchRunner
	emails EmailStore
}

func NewBatchHandler(runner BatchRunner, emails EmailStore) *BatchHandler {
	return &BatchHandler{
		runner: runner,
		emails: emails,
	}
}

// Analyze runs a batch over the posted emails, or over the cached emails
// when none are posted.
func (h *BatchHandler) Analyze(c *fiber.Ctx) error {
	req, ok := c.Locals(validation.BatchRequestKey).(*validation.BatchRequest)
	if !ok {
		req = &validation.BatchRequest{}
		if len(c.Body()) > 0 {
			if err := c.BodyParser(req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid request body",
				})
			}
		}
	}

	emails := req.Emails
	if len(emails) == 0 {
		emails = h.emails.GetEmails(c.UserContext())
	}

	var opts []batch.RunOption
	if req.Refresh {
		opts = append(opts, batch.WithRefresh())
	}

	snap, err := h.runner.Run(c.UserContext(), emails, opts...)
	if errors.Is(err, batch.ErrNoEmails) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No emails to analyze",
		})
	}
	if err != nil {
		logger.Error("Batch analysis failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Batch analysis failed",
		})
	}

	status := fiber.StatusOK
	if snap.Superseded {
		status = fiber.StatusConflict
	}
	return c.Status(status).JSON(snapshotResponse(snap))
}

// Report returns the latest batch result.
func (h *BatchHandler) Report(c *fiber.Ctx) error {
	snap, ok := currentSnapshot(c.UserContext(), h.runner)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No batch report available",
		})
	}
	return c.JSON(snapshotResponse(snap))
}

func snapshotResponse(snap *models.Snapshot) fiber.Map {
	return fiber.Map{
		"batch_id":        snap.BatchID,
		"analyzed_emails": snap.AnalyzedEmails,
		"calendar_events": snap.CalendarEvents,
		"report":          snap.Report,
		"generated_at":    snap.GeneratedAt,
		"from_cache":      snap.FromCache,
		"superseded":      snap.Superseded,
	}
}
