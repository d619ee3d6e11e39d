package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/stemsplit/api/internal/model"
	"github.com/stemsplit/api/pkg/response"
)

const (
	defaultLogLimit = 100
	maxLogLimit     = 1000
)

// LogReader reads the shared event log
type LogReader interface {
	Entries(ctx context.Context, limit int64) ([]model.LogEntry, error)
}

type LogsHandler struct {
	log LogReader
}

func NewLogsHandler(log LogReader) *LogsHandler {
	return &LogsHandler{log: log}
}

// List handles GET /apiv1/logs?limit=N
func (h *LogsHandler) List(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultLogLimit)
	if limit <= 0 || limit > maxLogLimit {
		return response.ValidationError(c, "limit must be between 1 and 1000", fiber.Map{"limit": limit})
	}

	entries, err := h.log.Entries(c.UserContext(), int64(limit))
	if err != nil {
		return response.ServiceUnavailable(c, err.Error())
	}
	return response.OK(c, model.LogsResponse{Logs: entries})
}
