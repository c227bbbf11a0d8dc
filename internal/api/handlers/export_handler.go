package handlers

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/chrisx599/ChatEmail/internal/export"
	"github.com/chrisx599/ChatEmail/pkg/logger"
)

type ExportHandler struct {
	runner BatchRunner
	dir    string
	prefix string
	now    func() time.Time
}

func NewExportHandler(runner BatchRunner, dir, prefix string) *ExportHandler {
	return &ExportHandler{
		runner: runner,
		dir:    dir,
		prefix: prefix,
		now:    time.Now,
	}
}

// Export renders the latest batch result as a download. With ?save=true the
// file is also written to the export directory.
func (h *ExportHandler) Export(c *fiber.Ctx) error {
	format, err := export.ParseFormat(c.Params("format"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	snap, ok := currentSnapshot(c.UserContext(), h.runner)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No batch report available",
		})
	}

	artifact, err := export.Export(format, snap, export.Options{
		GeneratedAt:    h.now(),
		FilenamePrefix: h.prefix,
	})
	switch {
	case errors.Is(err, export.ErrEmptySnapshot):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No batch report available",
		})
	case errors.Is(err, export.ErrInvalidSnapshot):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": err.Error(),
		})
	case err != nil:
		logger.Error("Failed to export report", zap.String("format", string(format)), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to export report",
		})
	}

	if c.QueryBool("save") {
		path, err := artifact.WriteTo(h.dir)
		if err != nil {
			logger.Error("Failed to save export", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to save export",
			})
		}
		c.Set("X-Export-Path", path)
	}

	if artifact.Fallback {
		c.Set("X-Export-Fallback", string(export.FormatHTML))
	}
	c.Set(fiber.HeaderContentType, artifact.ContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", artifact.Filename))
	return c.Send(artifact.Data)
}
