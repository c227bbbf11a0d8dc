package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/chrisx599/ChatEmail/internal/export"
	"github.com/chrisx599/ChatEmail/internal/storage/models"
	"github.com/chrisx599/ChatEmail/internal/storage/sqlite"
)

// BatchRequestKey is the Locals key holding the validated *BatchRequest.
const BatchRequestKey = "batch_request"

type BatchRequest struct {
	Emails  []models.Email `json:"emails"`
	Refresh bool           `json:"refresh"`
}

type Config struct {
	MaxEmails           int
	MaxFieldLength      int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

func (cfg Config) withDefaults() Config {
	if cfg.MaxEmails == 0 {
		cfg.MaxEmails = 200
	}
	if cfg.MaxFieldLength == 0 {
		cfg.MaxFieldLength = 1 << 20
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json"}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return cfg
}

func Middleware(cfg Config) fiber.Handler {
	cfg = cfg.withDefaults()

	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodPost || c.Method() == fiber.MethodPut {
			contentType := c.Get(fiber.HeaderContentType)
			if contentType != "" && !allowedType(contentType, cfg.AllowedContentTypes) {
				return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
					"error": "Unsupported content type",
				})
			}
		}

		path := c.Path()

		if c.Method() == fiber.MethodPost && strings.HasSuffix(path, "/batch/analyze") {
			req, err := parseBatchRequest(c.Body(), cfg)
			if err != nil {
				cfg.Logger.Warn("Rejected batch request",
					zap.String("ip", c.IP()),
					zap.Error(err),
				)
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": err.Error(),
				})
			}
			c.Locals(BatchRequestKey, req)
		}

		if strings.Contains(path, "/export/") {
			if _, err := export.ParseFormat(lastSegment(path)); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": err.Error(),
				})
			}
		}

		if c.Method() == fiber.MethodDelete && strings.Contains(path, "/cache/") {
			if _, err := sqlite.ParseCollection(lastSegment(path)); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": err.Error(),
				})
			}
		}

		return c.Next()
	}
}

// parseBatchRequest decodes and checks a batch body. An empty body is valid
// and means "analyze the cached emails".
func parseBatchRequest(body []byte, cfg Config) (*BatchRequest, error) {
	req := &BatchRequest{}
	if len(strings.TrimSpace(string(body))) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(body, req); err != nil {
		return nil, errors.New("Invalid JSON format")
	}
	if err := cfg.CheckBatch(req); err != nil {
		return nil, err
	}
	return req, nil
}

// CheckBatch enforces the email cap and field limits on req and sanitizes
// its emails in place. The error message is safe to return to clients.
func (cfg Config) CheckBatch(req *BatchRequest) error {
	cfg = cfg.withDefaults()
	if len(req.Emails) > cfg.MaxEmails {
		return errors.New("Too many emails in one batch")
	}

	seen := make(map[string]struct{}, len(req.Emails))
	for i := range req.Emails {
		e := &req.Emails[i]
		e.ID = sanitizeString(e.ID)
		if e.ID == "" {
			return errors.New("Every email needs an id")
		}
		if _, dup := seen[e.ID]; dup {
			return fmt.Errorf("Duplicate email id %s", e.ID)
		}
		seen[e.ID] = struct{}{}

		e.Subject = sanitizeString(e.Subject)
		e.From = sanitizeString(e.From)
		e.Body = strings.ReplaceAll(e.Body, "\x00", "")
		if len(e.Body) > cfg.MaxFieldLength || len(e.Subject) > cfg.MaxFieldLength {
			return errors.New("Email content exceeds maximum size")
		}
	}
	return nil
}

func allowedType(contentType string, allowed []string) bool {
	for _, t := range allowed {
		if strings.Contains(contentType, t) {
			return true
		}
	}
	return false
}

func lastSegment(path string) string {
	path = strings.TrimSuffix(path, "/")
	return path[strings.LastIndex(path, "/")+1:]
}

func sanitizeString(input string) string {
	input = strings.TrimSpace(input)
	input = strings.ReplaceAll(input, "\x00", "")
	return input
}
