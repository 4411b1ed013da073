package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/kpipulse/api/internal/model"
	"github.com/kpipulse/api/internal/service"
	"github.com/kpipulse/api/pkg/response"
)

type NotificationHandler struct {
	service *service.NotificationService
}

func NewNotificationHandler(svc *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{service: svc}
}

// List handles GET /api/notifications
func (h *NotificationHandler) List(c *fiber.Ctx) error {
	notifications, err := h.service.List(c.Context())
	if err != nil {
		return response.ServiceError(c, "Failed to load notifications")
	}
	return response.OK(c, notifications)
}

// MarkAllRead handles POST /api/notifications/read
func (h *NotificationHandler) MarkAllRead(c *fiber.Ctx) error {
	if err := h.service.MarkAllRead(c.Context()); err != nil {
		return response.ServiceError(c, "Failed to mark notifications as read")
	}
	return response.OK(c, model.MarkReadResponse{Message: "All notifications marked as read"})
}
