package dto

import (
	"time"

	"github.com/spec-kit/karteji/internal/domain"
)

// SettingsRequest is submitted by the setup wizard.
type SettingsRequest struct {
	Name            string `json:"name" validate:"required,max=200"`
	Region          string `json:"region" validate:"max=200"`
	Period          string `json:"period" validate:"max=50"`
	DefaultLanguage string `json:"default_language" validate:"omitempty,oneof=id en"`
}

// SettingsResponse is the stored organization settings.
type SettingsResponse struct {
	Name             string    `json:"name"`
	Region           string    `json:"region"`
	Period           string    `json:"period"`
	DefaultLanguage  string    `json:"default_language"`
	SetupCompletedAt time.Time `json:"setup_completed_at"`
}

// NewSettingsResponse maps settings.
func NewSettingsResponse(s domain.OrganizationSettings) SettingsResponse {
	return SettingsResponse{
		Name:             s.Name,
		Region:           s.Region,
		Period:           s.Period,
		DefaultLanguage:  s.DefaultLanguage,
		SetupCompletedAt: s.SetupCompletedAt,
	}
}
