package dto

import (
	"time"

	"github.com/spec-kit/karteji/internal/domain"
)

// CreateReportRequest payload.
type CreateReportRequest struct {
	Name string `json:"name" validate:"required,max=255"`
	Size string `json:"size" validate:"max=32"`
	URL  string `json:"url" validate:"required,url"`
}

// ReportResponse metadata.
type ReportResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Size       string    `json:"size"`
	URL        string    `json:"url"`
	UploadedBy string    `json:"uploaded_by"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewReportResponse maps a report.
func NewReportResponse(r domain.ReportFile) ReportResponse {
	return ReportResponse{
		ID:         r.ID,
		Name:       r.Name,
		Size:       r.Size,
		URL:        r.URL,
		UploadedBy: r.UploadedBy,
		CreatedAt:  r.CreatedAt,
	}
}

// NotificationResponse is one feed entry.
type NotificationResponse struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	ActorID   string    `json:"actor_id,omitempty"`
	SubjectID string    `json:"subject_id"`
	CreatedAt time.Time `json:"created_at"`
}

// NewNotificationResponse maps a notification.
func NewNotificationResponse(n domain.Notification) NotificationResponse {
	return NotificationResponse{
		ID:        n.ID,
		Type:      n.Type,
		Title:     n.Title,
		Body:      n.Body,
		ActorID:   n.ActorID,
		SubjectID: n.SubjectID,
		CreatedAt: n.CreatedAt,
	}
}
