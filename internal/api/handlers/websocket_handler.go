package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/chrisx599/ChatEmail/internal/batch"
	"github.com/chrisx599/ChatEmail/internal/middleware/validation"
	"github.com/chrisx599/ChatEmail/pkg/logger"
)

type WebSocketHandler struct {
	runner BatchRunner
	emails EmailStore
	limits validation.Config
}

// NewWebSocketHandler streams batches. Posted emails are checked against
// limits the same way the batch route checks them.
func NewWebSocketHandler(runner BatchRunner, emails EmailStore, limits validation.Config) *WebSocketHandler {
	return &WebSocketHandler{
		runner: runner,
		emails: emails,
		limits: limits,
	}
}

type wsRequest struct {
	Type string `json:"type"`
	validation.BatchRequest
}

// HandleConnection runs one batch per "analyze" message and streams a
// progress frame for every settled email before the final result.
func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg wsRequest
		if err := c.ReadJSON(&msg); err != nil {
			logger.Debug("WebSocket read ended", zap.Error(err))
			break
		}

		if msg.Type != "analyze" {
			h.sendError(c, "Unsupported message type")
			continue
		}

		if err := h.limits.CheckBatch(&msg.BatchRequest); err != nil {
			h.sendError(c, err.Error())
			continue
		}

		if err := h.streamBatch(c, msg); err != nil {
			logger.Error("Failed to stream batch", zap.Error(err))
			h.sendError(c, err.Error())
		}
	}
}

func (h *WebSocketHandler) streamBatch(c *websocket.Conn, msg wsRequest) error {
	ctx := context.Background()

	emails := msg.Emails
	if len(emails) == 0 {
		emails = h.emails.GetEmails(ctx)
	}

	if err := h.send(c, "status", map[string]interface{}{"total": len(emails)}); err != nil {
		return err
	}

	var writeErr error
	opts := []batch.RunOption{batch.WithProgress(func(p batch.Progress) {
		if writeErr == nil {
			writeErr = h.send(c, "progress", p)
		}
	})}
	if msg.Refresh {
		opts = append(opts, batch.WithRefresh())
	}

	snap, err := h.runner.Run(ctx, emails, opts...)
	if errors.Is(err, batch.ErrNoEmails) {
		return errors.New("no emails to analyze")
	}
	if err != nil {
		return errors.New("batch analysis failed")
	}
	if writeErr != nil {
		return writeErr
	}

	return h.send(c, "complete", snapshotResponse(snap))
}

func (h *WebSocketHandler) send(c *websocket.Conn, msgType string, payload interface{}) error {
	return c.WriteJSON(map[string]interface{}{
		"type":    msgType,
		"payload": payload,
	})
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	msg := map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	}

	if err := c.WriteJSON(msg); err != nil {
		logger.Debug("Failed to send WebSocket error", zap.Error(err))
	}
}
