package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/karteji/internal/domain"
	"github.com/spec-kit/karteji/internal/events"
	"github.com/spec-kit/karteji/internal/repository"
	apperrors "github.com/spec-kit/karteji/pkg/errorutil"
)

func TestReportService(t *testing.T) {
	f := newFixture(t)
	secretary := f.seed(t, "sec", "Secretary", domain.RoleSecretary, domain.MemberStatusActive)
	treasurer := f.seed(t, "tre", "Treasurer", domain.RoleTreasurer, domain.MemberStatusActive)
	pending := f.seed(t, "p1", "Pending", domain.RoleChairman, domain.MemberStatusPending)
	reports := NewReportService(f.cfg, ReportDependencies{
		ReportRepo: repository.NewReportRepository(f.store),
		Directory:  f.dir,
		Dispatcher: f.dispatcher,
	})

	var created *domain.ReportFile
	t.Run("Should let active members upload", func(t *testing.T) {
		var err error
		created, err = reports.Create(t.Context(), treasurer, CreateReportInput{Name: "LPJ 2024.pdf", Size: "1.2 MB", URL: "https://files.karteji.test/lpj.pdf"})
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.Equal(t, "tre", created.UploadedBy)

		_, err = reports.Create(t.Context(), pending, CreateReportInput{Name: "x", URL: "y"})
		assert.ErrorIs(t, err, apperrors.ErrForbidden)
		_, err = reports.Create(t.Context(), treasurer, CreateReportInput{Name: " "})
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})
	t.Run("Should list reports for active members", func(t *testing.T) {
		list, err := reports.List(t.Context(), secretary)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "LPJ 2024.pdf", list[0].Name)
	})
	t.Run("Should restrict deletion to the document roles", func(t *testing.T) {
		err := reports.Delete(t.Context(), treasurer, created.ID)
		assert.ErrorIs(t, err, apperrors.ErrForbidden)

		require.NoError(t, reports.Delete(t.Context(), secretary, created.ID))
		assert.Contains(t, f.events.list(), events.EventReportDeleted)

		err = reports.Delete(t.Context(), secretary, created.ID)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestSettingsService(t *testing.T) {
	f := newFixture(t)
	member := f.seed(t, "m1", "Member", domain.RoleMember, domain.MemberStatusActive)
	chair := f.seed(t, "chair", "Chair", domain.RoleChairman, domain.MemberStatusActive)
	pending := f.seed(t, "p1", "Pending", domain.RoleMember, domain.MemberStatusPending)
	settings := NewSettingsService(f.cfg, f.settings, f.dir)

	t.Run("Should report unset settings as NOT_FOUND", func(t *testing.T) {
		_, err := settings.Get(t.Context(), member)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
	t.Run("Should let any active member complete setup once", func(t *testing.T) {
		_, err := settings.Save(t.Context(), pending, SettingsInput{Name: "KT"})
		assert.ErrorIs(t, err, apperrors.ErrForbidden)

		saved, err := settings.Save(t.Context(), member, SettingsInput{Name: "Karang Taruna", Region: "RW 05", Period: "2024-2027"})
		require.NoError(t, err)
		assert.False(t, saved.SetupCompletedAt.IsZero())

		got, err := settings.Get(t.Context(), pending)
		require.NoError(t, err)
		assert.Equal(t, "RW 05", got.Region)
	})
	t.Run("Should reserve later changes for managers", func(t *testing.T) {
		_, err := settings.Save(t.Context(), member, SettingsInput{Name: "Other"})
		assert.ErrorIs(t, err, apperrors.ErrForbidden)

		before, err := settings.Get(t.Context(), chair)
		require.NoError(t, err)
		saved, err := settings.Save(t.Context(), chair, SettingsInput{Name: "Karang Taruna Melati"})
		require.NoError(t, err)
		assert.Equal(t, "Karang Taruna Melati", saved.Name)
		assert.True(t, before.SetupCompletedAt.Equal(saved.SetupCompletedAt))
	})
}

func TestNotificationService(t *testing.T) {
	f := newFixture(t)
	notifications := NewNotificationService(f.cfg, f.dispatcher, repository.NewNotificationRepository(f.store), f.dir, nil)
	notifications.RegisterHandlers()
	chair := f.seed(t, "chair", "Chair", domain.RoleChairman, domain.MemberStatusActive)

	member, _, err := f.auth.Register(t.Context(), RegisterInput{Name: "Dewi", Email: "dewi@karteji.test", Password: "secret1"})
	require.NoError(t, err)
	f.waitFor(t, member.ID, func(_ domain.Member, ok bool) bool { return ok })
	_, err = f.membership.Approve(t.Context(), chair, member.ID)
	require.NoError(t, err)

	t.Run("Should turn lifecycle events into feed entries", func(t *testing.T) {
		items, err := notifications.List(t.Context(), chair, 10)
		require.NoError(t, err)
		require.Len(t, items, 2)
		types := []string{items[0].Type, items[1].Type}
		assert.ElementsMatch(t, []string{string(events.EventMemberRegistered), string(events.EventMemberApproved)}, types)
		for _, item := range items {
			assert.Contains(t, item.Body, "Dewi")
			assert.Equal(t, member.ID, item.SubjectID)
		}
	})
	t.Run("Should hide the feed from inactive callers", func(t *testing.T) {
		_, err := notifications.List(t.Context(), &domain.Identity{ID: "ghost"}, 10)
		assert.ErrorIs(t, err, apperrors.ErrForbidden)
	})
}
