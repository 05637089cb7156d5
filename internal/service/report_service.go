package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/karteji/internal/auth"
	"github.com/spec-kit/karteji/internal/config"
	"github.com/spec-kit/karteji/internal/domain"
	"github.com/spec-kit/karteji/internal/events"
	"github.com/spec-kit/karteji/internal/repository"
	apperrors "github.com/spec-kit/karteji/pkg/errorutil"
)

// CreateReportInput describes an uploaded document.
type CreateReportInput struct {
	Name string
	Size string
	URL  string
}

// ReportService manages organization documents.
type ReportService struct {
	reports    repository.ReportRepository
	dir        MemberDirectory
	dispatcher events.Dispatcher
	logger     *zap.Logger
	opTimeout  time.Duration
	now        func() time.Time
}

// ReportDependencies encapsulates requirements for the report service.
type ReportDependencies struct {
	ReportRepo repository.ReportRepository
	Directory  MemberDirectory
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// NewReportService builds the service.
func NewReportService(cfg config.Config, deps ReportDependencies) *ReportService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		reports:    deps.ReportRepo,
		dir:        deps.Directory,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		opTimeout:  opTimeoutOr(cfg.Directory.OpTimeout()),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// List returns documents newest first.
func (s *ReportService) List(ctx context.Context, actor *domain.Identity) ([]domain.ReportFile, error) {
	if _, _, err := activeMemberOf(s.dir, actor); err != nil {
		return nil, err
	}
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	reports, err := s.reports.List(opCtx)
	if err != nil {
		return nil, apperrors.NewStoreFailure("list reports", err)
	}
	return reports, nil
}

// Create records document metadata uploaded by an active member.
func (s *ReportService) Create(ctx context.Context, actor *domain.Identity, in CreateReportInput) (*domain.ReportFile, error) {
	acting, _, err := activeMemberOf(s.dir, actor)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" || strings.TrimSpace(in.URL) == "" {
		return nil, apperrors.NewValidationError("name and url are required", nil)
	}

	report := &domain.ReportFile{
		Name:       name,
		Size:       strings.TrimSpace(in.Size),
		URL:        strings.TrimSpace(in.URL),
		UploadedBy: acting.ID,
		CreatedAt:  s.now(),
	}
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	if err := s.reports.Create(opCtx, report); err != nil {
		return nil, apperrors.NewStoreFailure("create report", err)
	}
	return report, nil
}

// Delete removes a document. Only the top three roles may delete.
func (s *ReportService) Delete(ctx context.Context, actor *domain.Identity, reportID string) error {
	acting, _, err := activeMemberOf(s.dir, actor)
	if err != nil {
		return err
	}
	if !auth.CanDeleteDocuments(acting.Role) {
		return apperrors.NewForbidden(string(acting.Role) + " cannot delete documents")
	}

	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	report, err := s.reports.GetByID(opCtx, reportID)
	if err != nil {
		return storeError("load report", "report", reportID, err)
	}
	if err := s.reports.Delete(opCtx, reportID); err != nil {
		return storeError("delete report", "report", reportID, err)
	}

	if s.dispatcher != nil {
		event := events.NewEvent(events.EventReportDeleted, acting.ID, reportID, events.ReportDeletedPayload{Name: report.Name})
		if err := s.dispatcher.Publish(ctx, event); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("event handlers failed", zap.String("event_type", string(event.Type)), zap.Error(err))
		}
	}
	return nil
}
