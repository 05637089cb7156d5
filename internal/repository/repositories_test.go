package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/karteji/internal/docstore"
	"github.com/spec-kit/karteji/internal/domain"
)

func TestIdentityRepository(t *testing.T) {
	t.Run("Should create with a generated id and find by email", func(t *testing.T) {
		ctx := t.Context()
		repo := NewIdentityRepository(docstore.NewMemoryStore())
		ident := &domain.Identity{DisplayName: "Agus", Email: "agus@example.com", PasswordHash: "hash"}
		require.NoError(t, repo.Create(ctx, ident))
		require.NotEmpty(t, ident.ID)

		found, err := repo.GetByEmail(ctx, "agus@example.com")
		require.NoError(t, err)
		assert.Equal(t, ident.ID, found.ID)
		assert.Equal(t, "hash", found.PasswordHash)

		_, err = repo.GetByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, docstore.ErrNotFound)

		require.NoError(t, repo.Delete(ctx, ident.ID))
		_, err = repo.GetByID(ctx, ident.ID)
		assert.ErrorIs(t, err, docstore.ErrNotFound)
	})
}

func TestReportRepository(t *testing.T) {
	t.Run("Should list newest first", func(t *testing.T) {
		ctx := t.Context()
		repo := NewReportRepository(docstore.NewMemoryStore())
		base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
		for i, name := range []string{"old", "newest", "middle"} {
			offsets := []time.Duration{0, 2 * time.Hour, time.Hour}
			require.NoError(t, repo.Create(ctx, &domain.ReportFile{Name: name, Size: "1 MB", CreatedAt: base.Add(offsets[i])}))
		}
		reports, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, reports, 3)
		assert.Equal(t, []string{"newest", "middle", "old"}, []string{reports[0].Name, reports[1].Name, reports[2].Name})

		require.NoError(t, repo.Delete(ctx, reports[0].ID))
		_, err = repo.GetByID(ctx, reports[0].ID)
		assert.ErrorIs(t, err, docstore.ErrNotFound)
	})
}

func TestSettingsRepository(t *testing.T) {
	t.Run("Should create on first save and update afterwards", func(t *testing.T) {
		ctx := t.Context()
		repo := NewSettingsRepository(docstore.NewMemoryStore())
		_, err := repo.Get(ctx)
		assert.ErrorIs(t, err, docstore.ErrNotFound)

		done := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
		require.NoError(t, repo.Save(ctx, domain.OrganizationSettings{Name: "Karang Taruna", Region: "RW 05", SetupCompletedAt: done}))
		require.NoError(t, repo.Save(ctx, domain.OrganizationSettings{Name: "Karang Taruna Bakti", Region: "RW 05", SetupCompletedAt: done}))

		got, err := repo.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Karang Taruna Bakti", got.Name)
		assert.Equal(t, done, got.SetupCompletedAt)
	})
}

func TestNotificationRepository(t *testing.T) {
	t.Run("Should return the most recent notifications up to the limit", func(t *testing.T) {
		ctx := t.Context()
		repo := NewNotificationRepository(docstore.NewMemoryStore())
		base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		for i := range 3 {
			require.NoError(t, repo.Create(ctx, &domain.Notification{
				Type: "member_approved", Title: "t", CreatedAt: base.Add(time.Duration(i) * time.Minute),
			}))
		}
		out, err := repo.ListRecent(ctx, 2)
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.True(t, out[0].CreatedAt.After(out[1].CreatedAt))
	})
}
