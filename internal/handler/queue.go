package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/stemsplit/api/internal/model"
	"github.com/stemsplit/api/internal/service"
	"github.com/stemsplit/api/pkg/response"
)

type QueueHandler struct {
	service *service.QueueService
}

func NewQueueHandler(svc *service.QueueService) *QueueHandler {
	return &QueueHandler{service: svc}
}

// List handles GET /apiv1/queue
func (h *QueueHandler) List(c *fiber.Ctx) error {
	items, err := h.service.PeekAll(c.UserContext())
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, model.QueueResponse{Queue: items})
}

// Dead handles GET /apiv1/queue/dead
func (h *QueueHandler) Dead(c *fiber.Ctx) error {
	items, err := h.service.PeekDead(c.UserContext())
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, model.QueueResponse{Queue: items})
}
