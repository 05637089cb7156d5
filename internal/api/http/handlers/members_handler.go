package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/karteji/internal/api/dto"
	"github.com/spec-kit/karteji/internal/auth"
	"github.com/spec-kit/karteji/internal/domain"
	"github.com/spec-kit/karteji/internal/service"
	apperrors "github.com/spec-kit/karteji/pkg/errorutil"
)

// MembersHandler serves the roster and member edits.
type MembersHandler struct {
	service *service.MembershipService
}

// NewMembersHandler constructs handler.
func NewMembersHandler(membershipService *service.MembershipService) *MembersHandler {
	return &MembersHandler{service: membershipService}
}

// Me GET /me.
func (h *MembersHandler) Me(c *fiber.Ctx) error {
	card, err := h.service.Card(c.UserContext(), auth.IdentityFromContext(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.MeResponse{
		Member: dto.NewMemberResponse(card.Member),
		Card: dto.CardResponse{
			CardNumber:       card.CardNumber,
			OrganizationName: card.OrganizationName,
			Verified:         card.Verified,
		},
	}})
}

// UpdateMe PATCH /me.
func (h *MembersHandler) UpdateMe(c *fiber.Ctx) error {
	var req dto.UpdateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(req); err != nil {
		return err
	}
	member, err := h.service.UpdateProfile(c.UserContext(), auth.IdentityFromContext(c), req.ToInput())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewMemberResponse(*member)})
}

// List GET /members.
func (h *MembersHandler) List(c *fiber.Ctx) error {
	var query dto.MemberListQuery
	if err := c.QueryParser(&query); err != nil {
		return apperrors.NewValidationError("invalid query", nil)
	}
	if err := dto.Validate(query); err != nil {
		return err
	}
	members, err := h.service.List(c.UserContext(), auth.IdentityFromContext(c), query.Search, domain.Role(query.Role))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewMemberList(members)})
}

// Structure GET /members/structure.
func (h *MembersHandler) Structure(c *fiber.Ctx) error {
	members, err := h.service.Structure(c.UserContext(), auth.IdentityFromContext(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewMemberList(members)})
}

// Stats GET /members/stats.
func (h *MembersHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.service.Stats(c.UserContext(), auth.IdentityFromContext(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.StatsResponse{
		Total:       stats.Total,
		Active:      stats.Active,
		Inactive:    stats.Inactive,
		Pending:     stats.Pending,
		Quarantined: stats.Quarantined,
		AsOf:        stats.AsOf,
	}})
}

// Get GET /members/:id.
func (h *MembersHandler) Get(c *fiber.Ctx) error {
	member, err := h.service.Get(c.UserContext(), auth.IdentityFromContext(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewMemberResponse(*member)})
}

// Edit PATCH /members/:id.
func (h *MembersHandler) Edit(c *fiber.Ctx) error {
	var req dto.EditMemberRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(req); err != nil {
		return err
	}
	member, err := h.service.EditMember(c.UserContext(), auth.IdentityFromContext(c), c.Params("id"), req.ToInput())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewMemberResponse(*member)})
}

// Delete DELETE /members/:id.
func (h *MembersHandler) Delete(c *fiber.Ctx) error {
	if err := h.service.DeleteMember(c.UserContext(), auth.IdentityFromContext(c), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}
