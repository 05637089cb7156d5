package domain

import "time"

// OrganizationSettings is captured once by the setup wizard.
type OrganizationSettings struct {
	Name             string
	Region           string
	Period           string
	DefaultLanguage  string
	SetupCompletedAt time.Time
}
