package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/spec-kit/karteji/internal/auth"
	"github.com/spec-kit/karteji/internal/config"
	"github.com/spec-kit/karteji/internal/docstore"
	"github.com/spec-kit/karteji/internal/domain"
	"github.com/spec-kit/karteji/internal/repository"
	apperrors "github.com/spec-kit/karteji/pkg/errorutil"
)

// SettingsInput is what the setup wizard submits.
type SettingsInput struct {
	Name            string
	Region          string
	Period          string
	DefaultLanguage string
}

// SettingsService reads and saves organization settings.
type SettingsService struct {
	settings  repository.SettingsRepository
	dir       MemberDirectory
	opTimeout time.Duration
	now       func() time.Time
}

// NewSettingsService builds the service.
func NewSettingsService(cfg config.Config, repo repository.SettingsRepository, dir MemberDirectory) *SettingsService {
	return &SettingsService{
		settings:  repo,
		dir:       dir,
		opTimeout: opTimeoutOr(cfg.Directory.OpTimeout()),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Get returns the settings; NOT_FOUND until setup has run. Any member may read them.
func (s *SettingsService) Get(ctx context.Context, actor *domain.Identity) (*domain.OrganizationSettings, error) {
	if _, _, err := memberOf(s.dir, actor); err != nil {
		return nil, err
	}
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	settings, err := s.settings.Get(opCtx)
	if err != nil {
		return nil, storeError("load settings", "settings", "organization", err)
	}
	return settings, nil
}

// Save stores the settings. While unset any active member may complete setup;
// afterwards only managers may change them.
func (s *SettingsService) Save(ctx context.Context, actor *domain.Identity, in SettingsInput) (*domain.OrganizationSettings, error) {
	acting, _, err := activeMemberOf(s.dir, actor)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, apperrors.NewValidationError("organization name is required", nil)
	}

	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	current, err := s.settings.Get(opCtx)
	switch {
	case err == nil:
		if !auth.IsManager(acting.Role) {
			return nil, apperrors.NewForbidden("only managers can change settings")
		}
	case errors.Is(err, docstore.ErrNotFound):
		current = nil
	default:
		return nil, apperrors.NewStoreFailure("load settings", err)
	}

	next := domain.OrganizationSettings{
		Name:             strings.TrimSpace(in.Name),
		Region:           strings.TrimSpace(in.Region),
		Period:           strings.TrimSpace(in.Period),
		DefaultLanguage:  strings.TrimSpace(in.DefaultLanguage),
		SetupCompletedAt: s.now(),
	}
	if current != nil && !current.SetupCompletedAt.IsZero() {
		next.SetupCompletedAt = current.SetupCompletedAt
	}
	if err := s.settings.Save(opCtx, next); err != nil {
		return nil, apperrors.NewStoreFailure("save settings", err)
	}
	return &next, nil
}
