package domain

import "time"

// Notification is a feed entry produced from a lifecycle event.
type Notification struct {
	ID        string
	Type      string
	Title     string
	Body      string
	ActorID   string
	SubjectID string
	CreatedAt time.Time
}
