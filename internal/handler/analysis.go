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

type AnalysisHandler struct {
	service   *service.AnalysisService
	validator *validator.Validate
}

func NewAnalysisHandler(svc *service.AnalysisService, v *validator.Validate) *AnalysisHandler {
	return &AnalysisHandler{service: svc, validator: v}
}

// Generate handles POST /api/analysis/generate/:line
func (h *AnalysisHandler) Generate(c *fiber.Ctx) error {
	req := model.AnalysisGenerateRequest{Line: c.Params("line")}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	if err := h.service.Start(c.Context(), req.Line); err != nil {
		if errors.Is(err, status.ErrAlreadyRunning) {
			return response.Conflict(c, "An analysis job is already running")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, model.JobAcceptedResponse{Message: "Analysis generation started for line " + req.Line})
}

// Status handles GET /api/analysis/status
func (h *AnalysisHandler) Status(c *fiber.Ctx) error {
	return response.OK(c, h.service.Status())
}
