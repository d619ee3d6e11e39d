package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/stemsplit/api/internal/model"
	"github.com/stemsplit/api/internal/service"
	"github.com/stemsplit/api/pkg/response"
)

type TrackHandler struct {
	service *service.RetrievalService
}

func NewTrackHandler(svc *service.RetrievalService) *TrackHandler {
	return &TrackHandler{service: svc}
}

// Get handles GET /apiv1/track/:hash/:part
func (h *TrackHandler) Get(c *fiber.Ctx) error {
	track, err := h.service.Fetch(c.UserContext(), c.Params("hash"), c.Params("part"))
	if err != nil {
		return serviceError(c, err)
	}

	c.Attachment(track.Key)
	c.Set(fiber.HeaderContentType, "audio/mpeg")
	// fasthttp closes the body once it has been sent
	return c.SendStream(track.Body, int(track.Size))
}

// Remove handles GET|DELETE /apiv1/remove/:hash/:part
func (h *TrackHandler) Remove(c *fiber.Ctx) error {
	key, err := h.service.Remove(c.UserContext(), c.Params("hash"), c.Params("part"))
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, model.DeleteResponse{Deleted: key})
}
