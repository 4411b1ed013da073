package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/kpipulse/api/internal/model"
	"github.com/kpipulse/api/internal/service"
	"github.com/kpipulse/api/internal/status"
	"github.com/kpipulse/api/pkg/response"
)

type TrainingHandler struct {
	service   *service.TrainingService
	validator *validator.Validate
}

func NewTrainingHandler(svc *service.TrainingService, v *validator.Validate) *TrainingHandler {
	return &TrainingHandler{service: svc, validator: v}
}

// Start handles POST /api/training/start
func (h *TrainingHandler) Start(c *fiber.Ctx) error {
	var req model.TrainingStartRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return response.ValidationError(c, "Invalid request body", nil)
		}
		if err := h.validator.Struct(&req); err != nil {
			return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
		}
	}

	if err := h.service.Start(c.Context(), req.Lines, req.Models); err != nil {
		if errors.Is(err, status.ErrAlreadyRunning) {
			return response.Conflict(c, "A training job is already running")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, model.JobAcceptedResponse{Message: "Model training started"})
}

// Status handles GET /api/training/status
func (h *TrainingHandler) Status(c *fiber.Ctx) error {
	return response.OK(c, h.service.Status())
}
