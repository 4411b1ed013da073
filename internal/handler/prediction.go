package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/kpipulse/api/internal/model"
	"github.com/kpipulse/api/internal/runner"
	"github.com/kpipulse/api/internal/service"
	"github.com/kpipulse/api/pkg/response"
)

// PredictionHandler exposes the synchronous prediction endpoints. Unlike
// the job endpoints these block on the worker process and return its
// result in the response body.
type PredictionHandler struct {
	service   *service.PredictionService
	validator *validator.Validate
}

func NewPredictionHandler(svc *service.PredictionService, v *validator.Validate) *PredictionHandler {
	return &PredictionHandler{service: svc, validator: v}
}

// Predict handles POST /api/predict
func (h *PredictionHandler) Predict(c *fiber.Ctx) error {
	var req model.PredictRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Predict(c.Context(), req.ModelName, req.Features)
	if err != nil {
		return predictionError(c, err)
	}
	return response.OK(c, result)
}

// Features handles POST /api/predict/features
func (h *PredictionHandler) Features(c *fiber.Ctx) error {
	var req model.ModelFeaturesRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Features(c.Context(), req.Line)
	if err != nil {
		return predictionError(c, err)
	}
	return response.OK(c, result)
}

// Metrics handles POST /api/predict/metrics
func (h *PredictionHandler) Metrics(c *fiber.Ctx) error {
	var req model.ModelNameRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Metrics(c.Context(), req.ModelName)
	if err != nil {
		return predictionError(c, err)
	}
	return response.OK(c, result)
}

// Equation handles POST /api/predict/equation
func (h *PredictionHandler) Equation(c *fiber.Ctx) error {
	var req model.ModelNameRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Equation(c.Context(), req.ModelName)
	if err != nil {
		return predictionError(c, err)
	}
	return response.OK(c, result)
}

// predictionError maps worker failures onto the error envelope.
func predictionError(c *fiber.Ctx, err error) error {
	var execErr *runner.ExecError
	var parseErr *runner.ParseError
	switch {
	case errors.Is(err, runner.ErrScriptNotFound):
		return response.ServiceError(c, "Prediction worker is not available")
	case errors.As(err, &execErr):
		return response.WorkerError(c, "Prediction failed", execErr.Stderr)
	case errors.As(err, &parseErr):
		return response.WorkerError(c, "Prediction worker returned invalid output", nil)
	default:
		return response.ServiceError(c, err.Error())
	}
}
