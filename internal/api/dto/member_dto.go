package dto

import (
	"time"

	"github.com/spec-kit/karteji/internal/domain"
	"github.com/spec-kit/karteji/internal/service"
)

// EditMemberRequest is a partial role/status change.
type EditMemberRequest struct {
	Role   *string `json:"role" validate:"omitempty,member_role"`
	Status *string `json:"status" validate:"omitempty,member_status"`
}

// ToInput converts the request to the service input.
func (r EditMemberRequest) ToInput() service.EditInput {
	var in service.EditInput
	if r.Role != nil {
		role := domain.Role(*r.Role)
		in.Role = &role
	}
	if r.Status != nil {
		status := domain.MemberStatus(*r.Status)
		in.Status = &status
	}
	return in
}

// UpdateProfileRequest is the caller's own name/avatar change.
type UpdateProfileRequest struct {
	Name   *string `json:"name" validate:"omitempty,max=120"`
	Avatar *string `json:"avatar" validate:"omitempty,url"`
}

// ToInput converts the request to the service input.
func (r UpdateProfileRequest) ToInput() service.ProfileInput {
	return service.ProfileInput{Name: r.Name, Avatar: r.Avatar}
}

// MemberListQuery filters the roster.
type MemberListQuery struct {
	Search string `query:"search" validate:"max=120"`
	Role   string `query:"role" validate:"omitempty,member_role"`
}

// MemberResponse is the wire form of a member.
type MemberResponse struct {
	ID       string              `json:"id"`
	Name     string              `json:"name"`
	Email    string              `json:"email"`
	Role     domain.Role         `json:"role"`
	Status   domain.MemberStatus `json:"status"`
	Avatar   string              `json:"avatar,omitempty"`
	JoinedAt time.Time           `json:"joined_at"`
}

// NewMemberResponse maps a domain member.
func NewMemberResponse(m domain.Member) MemberResponse {
	return MemberResponse{
		ID:       m.ID,
		Name:     m.Name,
		Email:    m.Email,
		Role:     m.Role,
		Status:   m.Status,
		Avatar:   m.Avatar,
		JoinedAt: m.JoinedAt,
	}
}

// NewMemberList maps a slice, never returning nil.
func NewMemberList(members []domain.Member) []MemberResponse {
	out := make([]MemberResponse, 0, len(members))
	for _, m := range members {
		out = append(out, NewMemberResponse(m))
	}
	return out
}

// StatsResponse carries dashboard counts.
type StatsResponse struct {
	Total       int       `json:"total"`
	Active      int       `json:"active"`
	Inactive    int       `json:"inactive"`
	Pending     int       `json:"pending"`
	Quarantined int       `json:"quarantined"`
	AsOf        time.Time `json:"as_of"`
}

// CardResponse is the digital membership card.
type CardResponse struct {
	CardNumber       string `json:"card_number"`
	OrganizationName string `json:"organization_name"`
	Verified         bool   `json:"verified"`
}

// MeResponse is the caller's own record plus card.
type MeResponse struct {
	Member MemberResponse `json:"member"`
	Card   CardResponse   `json:"card"`
}
