package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/karteji/internal/api/dto"
	"github.com/spec-kit/karteji/internal/auth"
	"github.com/spec-kit/karteji/internal/service"
	apperrors "github.com/spec-kit/karteji/pkg/errorutil"
)

// SettingsHandler serves the setup wizard.
type SettingsHandler struct {
	service *service.SettingsService
}

// NewSettingsHandler constructs handler.
func NewSettingsHandler(settingsService *service.SettingsService) *SettingsHandler {
	return &SettingsHandler{service: settingsService}
}

// Get GET /settings/organization.
func (h *SettingsHandler) Get(c *fiber.Ctx) error {
	settings, err := h.service.Get(c.UserContext(), auth.IdentityFromContext(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewSettingsResponse(*settings)})
}

// Save PUT /settings/organization.
func (h *SettingsHandler) Save(c *fiber.Ctx) error {
	var req dto.SettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(req); err != nil {
		return err
	}
	settings, err := h.service.Save(c.UserContext(), auth.IdentityFromContext(c), service.SettingsInput{
		Name:            req.Name,
		Region:          req.Region,
		Period:          req.Period,
		DefaultLanguage: req.DefaultLanguage,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewSettingsResponse(*settings)})
}
