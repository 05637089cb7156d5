package domain

import "time"

// Identity is an authenticated account known to the session provider.
type Identity struct {
	ID           string
	DisplayName  string
	Email        string
	PasswordHash string
	Avatar       string
	CreatedAt    time.Time
}
