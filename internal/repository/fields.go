package repository

import (
	"time"
)

// Collections used by the service.
const (
	MembersCollection       = "members"
	IdentitiesCollection    = "identities"
	ReportsCollection       = "reports"
	SettingsCollection      = "settings"
	NotificationsCollection = "notifications"
)

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}

// timeField reads an RFC 3339 string; anything else yields the zero time.
func timeField(fields map[string]any, key string) time.Time {
	s, ok := fields[key].(string)
	if !ok || s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// storedTimeLayout is RFC 3339 with fixed-width nanoseconds so stored strings sort chronologically.
const storedTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(storedTimeLayout)
}
