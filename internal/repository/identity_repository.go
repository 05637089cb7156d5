package repository

import (
	"context"

	"github.com/spec-kit/karteji/internal/docstore"
	"github.com/spec-kit/karteji/internal/domain"
)

// IdentityRepository stores login identities.
type IdentityRepository interface {
	Create(ctx context.Context, identity *domain.Identity) error
	GetByID(ctx context.Context, id string) (*domain.Identity, error)
	GetByEmail(ctx context.Context, email string) (*domain.Identity, error)
	Delete(ctx context.Context, id string) error
}

type identityRepository struct {
	store docstore.Store
}

// NewIdentityRepository returns a document-store-backed implementation.
func NewIdentityRepository(store docstore.Store) IdentityRepository {
	return &identityRepository{store: store}
}

// Create stores the identity and sets its generated ID when none was given.
func (r *identityRepository) Create(ctx context.Context, identity *domain.Identity) error {
	id, err := r.store.Insert(ctx, IdentitiesCollection, identity.ID, map[string]any{
		"displayName":  identity.DisplayName,
		"email":        identity.Email,
		"passwordHash": identity.PasswordHash,
		"avatar":       identity.Avatar,
		"createdAt":    formatTime(identity.CreatedAt),
	})
	if err != nil {
		return err
	}
	identity.ID = id
	return nil
}

func (r *identityRepository) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	rec, err := r.store.GetOne(ctx, IdentitiesCollection, id)
	if err != nil {
		return nil, err
	}
	return decodeIdentity(rec), nil
}

// GetByEmail returns docstore.ErrNotFound when no identity uses email.
func (r *identityRepository) GetByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	recs, err := r.store.Find(ctx, docstore.Query{
		Collection: IdentitiesCollection,
		Where:      []docstore.Condition{docstore.Eq("email", email)},
		Limit:      1,
	})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, docstore.ErrNotFound
	}
	return decodeIdentity(recs[0]), nil
}

func (r *identityRepository) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, IdentitiesCollection, id)
}

func decodeIdentity(rec docstore.Record) *domain.Identity {
	return &domain.Identity{
		ID:           rec.ID,
		DisplayName:  stringField(rec.Fields, "displayName"),
		Email:        stringField(rec.Fields, "email"),
		PasswordHash: stringField(rec.Fields, "passwordHash"),
		Avatar:       stringField(rec.Fields, "avatar"),
		CreatedAt:    timeField(rec.Fields, "createdAt"),
	}
}
