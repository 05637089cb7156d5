package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/karteji/internal/config"
	"github.com/spec-kit/karteji/internal/domain"
	"github.com/spec-kit/karteji/internal/events"
	"github.com/spec-kit/karteji/internal/repository"
	apperrors "github.com/spec-kit/karteji/pkg/errorutil"
)

const defaultNotificationLimit = 20

// NotificationService turns lifecycle events into feed entries and outbound notices.
type NotificationService struct {
	dispatcher    events.Dispatcher
	notifications repository.NotificationRepository
	dir           MemberDirectory
	logger        *zap.Logger
	cfg           config.NotificationConfig
	opTimeout     time.Duration
}

// NewNotificationService creates the service.
func NewNotificationService(cfg config.Config, dispatcher events.Dispatcher, repo repository.NotificationRepository, dir MemberDirectory, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher:    dispatcher,
		notifications: repo,
		dir:           dir,
		logger:        logger,
		cfg:           cfg.Notification,
		opTimeout:     opTimeoutOr(cfg.Directory.OpTimeout()),
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventMemberRegistered, n.handleMemberRegistered)
	n.dispatcher.Subscribe(events.EventMemberApproved, n.handleMemberDecision)
	n.dispatcher.Subscribe(events.EventMemberRejected, n.handleMemberDecision)
	n.dispatcher.Subscribe(events.EventMemberUpdated, n.handleMemberDecision)
	n.dispatcher.Subscribe(events.EventMemberDeleted, n.handleMemberDecision)
	n.dispatcher.Subscribe(events.EventReportDeleted, n.handleReportDeleted)
}

// List returns the latest feed entries for an active member.
func (n *NotificationService) List(ctx context.Context, actor *domain.Identity, limit int) ([]domain.Notification, error) {
	if _, _, err := activeMemberOf(n.dir, actor); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = defaultNotificationLimit
	}
	opCtx, cancel := context.WithTimeout(ctx, n.opTimeout)
	defer cancel()
	items, err := n.notifications.ListRecent(opCtx, limit)
	if err != nil {
		return nil, apperrors.NewStoreFailure("list notifications", err)
	}
	return items, nil
}

func (n *NotificationService) handleMemberRegistered(ctx context.Context, event events.Event) error {
	n.logger.Info("MemberRegistered", zap.String("member_id", event.SubjectID), zap.Any("payload", event.Payload))
	title, body := "Pendaftaran baru", "A new member registered"
	if p, ok := event.Payload.(events.MemberRegisteredPayload); ok {
		if p.Bootstrap {
			title = "Organisasi dibuat"
			body = fmt.Sprintf("%s set up the organization as %s", p.Name, p.Role)
		} else {
			body = fmt.Sprintf("%s registered as %s and awaits verification", p.Name, p.Role)
		}
	}
	n.sendEmailNotificationStub(ctx, event)
	return n.record(ctx, event, title, body)
}

func (n *NotificationService) handleMemberDecision(ctx context.Context, event events.Event) error {
	n.logger.Info("MemberChanged",
		zap.String("event_type", string(event.Type)),
		zap.String("member_id", event.SubjectID),
		zap.Any("payload", event.Payload))
	name := event.SubjectID
	var p events.MemberChangedPayload
	if payload, ok := event.Payload.(events.MemberChangedPayload); ok {
		p = payload
		name = p.Name
	}

	var title, body string
	switch event.Type {
	case events.EventMemberApproved:
		title, body = "Anggota diverifikasi", fmt.Sprintf("%s is now an active member", name)
	case events.EventMemberRejected:
		title, body = "Pendaftaran ditolak", fmt.Sprintf("The registration of %s was rejected", name)
	case events.EventMemberUpdated:
		title, body = "Data anggota diperbarui", fmt.Sprintf("%s is now %s (%s)", name, p.NewRole, p.NewStatus)
	default:
		title, body = "Anggota dihapus", fmt.Sprintf("%s was removed from the organization", name)
	}
	n.sendWebhookNotificationStub(ctx, event)
	return n.record(ctx, event, title, body)
}

func (n *NotificationService) handleReportDeleted(ctx context.Context, event events.Event) error {
	n.logger.Info("ReportDeleted", zap.String("report_id", event.SubjectID))
	body := "A document was deleted"
	if p, ok := event.Payload.(events.ReportDeletedPayload); ok {
		body = fmt.Sprintf("%s was deleted", p.Name)
	}
	return n.record(ctx, event, "Dokumen dihapus", body)
}

func (n *NotificationService) record(ctx context.Context, event events.Event, title, body string) error {
	if n.notifications == nil {
		return nil
	}
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.opTimeout)
	defer cancel()
	return n.notifications.Create(opCtx, &domain.Notification{
		Type:      string(event.Type),
		Title:     title,
		Body:      body,
		ActorID:   event.ActorID,
		SubjectID: event.SubjectID,
		CreatedAt: event.Timestamp,
	})
}

func (n *NotificationService) sendEmailNotificationStub(ctx context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("sendEmailNotificationStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("member_id", event.SubjectID),
		zap.String("event_type", string(event.Type)))
}

func (n *NotificationService) sendWebhookNotificationStub(ctx context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("member_id", event.SubjectID),
		zap.String("event_type", string(event.Type)))
}
