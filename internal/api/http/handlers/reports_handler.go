package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/karteji/internal/api/dto"
	"github.com/spec-kit/karteji/internal/auth"
	"github.com/spec-kit/karteji/internal/service"
	apperrors "github.com/spec-kit/karteji/pkg/errorutil"
)

// ReportsHandler manages organization documents.
type ReportsHandler struct {
	service *service.ReportService
}

// NewReportsHandler constructs handler.
func NewReportsHandler(reportService *service.ReportService) *ReportsHandler {
	return &ReportsHandler{service: reportService}
}

// List GET /reports.
func (h *ReportsHandler) List(c *fiber.Ctx) error {
	reports, err := h.service.List(c.UserContext(), auth.IdentityFromContext(c))
	if err != nil {
		return err
	}
	items := make([]dto.ReportResponse, 0, len(reports))
	for _, r := range reports {
		items = append(items, dto.NewReportResponse(r))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Create POST /reports.
func (h *ReportsHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateReportRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(req); err != nil {
		return err
	}
	report, err := h.service.Create(c.UserContext(), auth.IdentityFromContext(c), service.CreateReportInput{
		Name: req.Name,
		Size: req.Size,
		URL:  req.URL,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewReportResponse(*report)})
}

// Delete DELETE /reports/:id.
func (h *ReportsHandler) Delete(c *fiber.Ctx) error {
	if err := h.service.Delete(c.UserContext(), auth.IdentityFromContext(c), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}
