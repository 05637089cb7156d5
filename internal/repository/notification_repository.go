package repository

import (
	"context"

	"github.com/spec-kit/karteji/internal/docstore"
	"github.com/spec-kit/karteji/internal/domain"
)

// NotificationRepository stores the notification feed.
type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	ListRecent(ctx context.Context, limit int) ([]domain.Notification, error)
}

type notificationRepository struct {
	store docstore.Store
}

// NewNotificationRepository returns a document-store-backed implementation.
func NewNotificationRepository(store docstore.Store) NotificationRepository {
	return &notificationRepository{store: store}
}

func (r *notificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	id, err := r.store.Insert(ctx, NotificationsCollection, n.ID, map[string]any{
		"type":      n.Type,
		"title":     n.Title,
		"body":      n.Body,
		"actorId":   n.ActorID,
		"subjectId": n.SubjectID,
		"createdAt": formatTime(n.CreatedAt),
	})
	if err != nil {
		return err
	}
	n.ID = id
	return nil
}

// ListRecent returns notifications newest first; limit <= 0 returns all.
func (r *notificationRepository) ListRecent(ctx context.Context, limit int) ([]domain.Notification, error) {
	recs, err := r.store.Find(ctx, docstore.Query{
		Collection: NotificationsCollection,
		OrderBy:    []docstore.Order{{Field: "createdAt", Desc: true}},
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Notification, 0, len(recs))
	for _, rec := range recs {
		out = append(out, domain.Notification{
			ID:        rec.ID,
			Type:      stringField(rec.Fields, "type"),
			Title:     stringField(rec.Fields, "title"),
			Body:      stringField(rec.Fields, "body"),
			ActorID:   stringField(rec.Fields, "actorId"),
			SubjectID: stringField(rec.Fields, "subjectId"),
			CreatedAt: timeField(rec.Fields, "createdAt"),
		})
	}
	return out, nil
}
