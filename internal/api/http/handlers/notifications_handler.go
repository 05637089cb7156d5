package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/karteji/internal/api/dto"
	"github.com/spec-kit/karteji/internal/auth"
	"github.com/spec-kit/karteji/internal/service"
)

// NotificationsHandler serves the notification feed.
type NotificationsHandler struct {
	service *service.NotificationService
}

// NewNotificationsHandler constructs handler.
func NewNotificationsHandler(notificationService *service.NotificationService) *NotificationsHandler {
	return &NotificationsHandler{service: notificationService}
}

// List GET /notifications?limit=.
func (h *NotificationsHandler) List(c *fiber.Ctx) error {
	items, err := h.service.List(c.UserContext(), auth.IdentityFromContext(c), c.QueryInt("limit", 0))
	if err != nil {
		return err
	}
	out := make([]dto.NotificationResponse, 0, len(items))
	for _, n := range items {
		out = append(out, dto.NewNotificationResponse(n))
	}
	return c.JSON(fiber.Map{"data": out})
}
