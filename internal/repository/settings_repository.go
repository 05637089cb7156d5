package repository

import (
	"context"
	"errors"

	"github.com/spec-kit/karteji/internal/docstore"
	"github.com/spec-kit/karteji/internal/domain"
)

const organizationSettingsID = "organization"

// SettingsRepository stores the single organization settings document.
type SettingsRepository interface {
	// Get returns docstore.ErrNotFound until the setup wizard has saved once.
	Get(ctx context.Context) (*domain.OrganizationSettings, error)
	Save(ctx context.Context, settings domain.OrganizationSettings) error
}

type settingsRepository struct {
	store docstore.Store
}

// NewSettingsRepository returns a document-store-backed implementation.
func NewSettingsRepository(store docstore.Store) SettingsRepository {
	return &settingsRepository{store: store}
}

func (r *settingsRepository) Get(ctx context.Context) (*domain.OrganizationSettings, error) {
	rec, err := r.store.GetOne(ctx, SettingsCollection, organizationSettingsID)
	if err != nil {
		return nil, err
	}
	return &domain.OrganizationSettings{
		Name:             stringField(rec.Fields, "name"),
		Region:           stringField(rec.Fields, "region"),
		Period:           stringField(rec.Fields, "period"),
		DefaultLanguage:  stringField(rec.Fields, "defaultLanguage"),
		SetupCompletedAt: timeField(rec.Fields, "setupCompletedAt"),
	}, nil
}

// Save updates the document, creating it on first use.
func (r *settingsRepository) Save(ctx context.Context, settings domain.OrganizationSettings) error {
	fields := map[string]any{
		"name":             settings.Name,
		"region":           settings.Region,
		"period":           settings.Period,
		"defaultLanguage":  settings.DefaultLanguage,
		"setupCompletedAt": formatTime(settings.SetupCompletedAt),
	}
	err := r.store.UpdateFields(ctx, SettingsCollection, organizationSettingsID, fields)
	if !errors.Is(err, docstore.ErrNotFound) {
		return err
	}
	_, err = r.store.Insert(ctx, SettingsCollection, organizationSettingsID, fields)
	if errors.Is(err, docstore.ErrAlreadyExists) {
		return r.store.UpdateFields(ctx, SettingsCollection, organizationSettingsID, fields)
	}
	return err
}
