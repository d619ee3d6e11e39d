package handler

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/stemsplit/api/internal/model"
	"github.com/stemsplit/api/internal/service"
	"github.com/stemsplit/api/pkg/response"
)

type SeparateHandler struct {
	service   *service.SubmissionService
	validator *validator.Validate
}

func NewSeparateHandler(svc *service.SubmissionService, v *validator.Validate) *SeparateHandler {
	return &SeparateHandler{
		service:   svc,
		validator: v,
	}
}

// Separate handles POST /apiv1/separate
func (h *SeparateHandler) Separate(c *fiber.Ctx) error {
	// Clients do not always send a JSON content type
	var req model.SeparateRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return response.MalformedInput(c, "Invalid request body")
	}

	if req.MP3 == "" {
		return response.MissingField(c, "missing 'mp3' base64 field")
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.SubmitEncoded(c.UserContext(), &req)
	if err != nil {
		return serviceError(c, err)
	}

	return response.OK(c, result)
}
