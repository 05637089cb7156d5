package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/karteji/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventMemberRegistered EventType = "member_registered"
	EventMemberApproved   EventType = "member_approved"
	EventMemberRejected   EventType = "member_rejected"
	EventMemberUpdated    EventType = "member_updated"
	EventMemberDeleted    EventType = "member_deleted"
	EventReportDeleted    EventType = "report_deleted"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	ActorID   string    `json:"actor_id,omitempty"`
	SubjectID string    `json:"subject_id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// NewEvent stamps an event with a fresh id and the current time.
func NewEvent(t EventType, actorID, subjectID string, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		ActorID:   actorID,
		SubjectID: subjectID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// MemberRegisteredPayload payload.
type MemberRegisteredPayload struct {
	Name      string              `json:"name"`
	Role      domain.Role         `json:"role"`
	Status    domain.MemberStatus `json:"status"`
	Bootstrap bool                `json:"bootstrap"`
}

// MemberChangedPayload covers approve, reject, edit and delete.
type MemberChangedPayload struct {
	Name      string              `json:"name"`
	OldRole   domain.Role         `json:"old_role"`
	NewRole   domain.Role         `json:"new_role,omitempty"`
	OldStatus domain.MemberStatus `json:"old_status"`
	NewStatus domain.MemberStatus `json:"new_status,omitempty"`
}

// ReportDeletedPayload payload.
type ReportDeletedPayload struct {
	Name string `json:"name"`
}
