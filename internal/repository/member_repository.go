package repository

import (
	"context"
	"errors"

	"github.com/spec-kit/karteji/internal/docstore"
	"github.com/spec-kit/karteji/internal/domain"
	apperrors "github.com/spec-kit/karteji/pkg/errorutil"
)

// Member record field names as stored.
const (
	MemberFieldName     = "name"
	MemberFieldEmail    = "email"
	MemberFieldRole     = "role"
	MemberFieldStatus   = "status"
	MemberFieldAvatar   = "avatar"
	MemberFieldJoinedAt = "joinedAt"
)

// MemberRepository encapsulates member record persistence.
// Authorization checks the directory snapshot first and confirms against GetByID before a write.
type MemberRepository interface {
	Create(ctx context.Context, member *domain.Member) error
	GetByID(ctx context.Context, id string) (*domain.Member, error)
	IsEmpty(ctx context.Context) (bool, error)
	UpdateRoleStatus(ctx context.Context, id string, role domain.Role, status domain.MemberStatus) error
	UpdateStatus(ctx context.Context, id string, status domain.MemberStatus) error
	UpdateProfile(ctx context.Context, id string, name, avatar *string) error
	Delete(ctx context.Context, id string) error
}

type memberRepository struct {
	store docstore.Store
}

// NewMemberRepository returns a document-store-backed implementation.
func NewMemberRepository(store docstore.Store) MemberRepository {
	return &memberRepository{store: store}
}

// MembersQuery is the full-collection query the directory subscribes to.
func MembersQuery() docstore.Query {
	return docstore.Query{Collection: MembersCollection}
}

func (r *memberRepository) Create(ctx context.Context, member *domain.Member) error {
	if member.ID == "" {
		return errors.New("member id is required")
	}
	_, err := r.store.Insert(ctx, MembersCollection, member.ID, EncodeMember(*member))
	return err
}

func (r *memberRepository) GetByID(ctx context.Context, id string) (*domain.Member, error) {
	rec, err := r.store.GetOne(ctx, MembersCollection, id)
	if err != nil {
		return nil, err
	}
	member, err := DecodeMember(rec)
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *memberRepository) IsEmpty(ctx context.Context) (bool, error) {
	recs, err := r.store.Find(ctx, docstore.Query{Collection: MembersCollection, Limit: 1})
	if err != nil {
		return false, err
	}
	return len(recs) == 0, nil
}

// UpdateRoleStatus writes both fields in one update.
func (r *memberRepository) UpdateRoleStatus(ctx context.Context, id string, role domain.Role, status domain.MemberStatus) error {
	return r.store.UpdateFields(ctx, MembersCollection, id, map[string]any{
		MemberFieldRole:   string(role),
		MemberFieldStatus: string(status),
	})
}

func (r *memberRepository) UpdateStatus(ctx context.Context, id string, status domain.MemberStatus) error {
	return r.store.UpdateFields(ctx, MembersCollection, id, map[string]any{
		MemberFieldStatus: string(status),
	})
}

// UpdateProfile writes the non-nil fields of name and avatar.
func (r *memberRepository) UpdateProfile(ctx context.Context, id string, name, avatar *string) error {
	fields := map[string]any{}
	if name != nil {
		fields[MemberFieldName] = *name
	}
	if avatar != nil {
		fields[MemberFieldAvatar] = *avatar
	}
	if len(fields) == 0 {
		return nil
	}
	return r.store.UpdateFields(ctx, MembersCollection, id, fields)
}

func (r *memberRepository) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, MembersCollection, id)
}

// EncodeMember renders the exact wire field names.
func EncodeMember(m domain.Member) map[string]any {
	return map[string]any{
		MemberFieldName:     m.Name,
		MemberFieldEmail:    m.Email,
		MemberFieldRole:     string(m.Role),
		MemberFieldStatus:   string(m.Status),
		MemberFieldAvatar:   m.Avatar,
		MemberFieldJoinedAt: formatTime(m.JoinedAt),
	}
}

// DecodeMember parses a raw record into a Member. A missing or unknown role or status is a
// DATA_INTEGRITY error; it is never defaulted.
func DecodeMember(rec docstore.Record) (domain.Member, error) {
	rawRole, ok := rec.Fields[MemberFieldRole].(string)
	if !ok {
		return domain.Member{}, integrityError(rec.ID, MemberFieldRole, rec.Fields[MemberFieldRole])
	}
	role := domain.Role(rawRole)
	if !role.Valid() {
		return domain.Member{}, integrityError(rec.ID, MemberFieldRole, rawRole)
	}
	rawStatus, ok := rec.Fields[MemberFieldStatus].(string)
	if !ok {
		return domain.Member{}, integrityError(rec.ID, MemberFieldStatus, rec.Fields[MemberFieldStatus])
	}
	status := domain.MemberStatus(rawStatus)
	if !status.Valid() {
		return domain.Member{}, integrityError(rec.ID, MemberFieldStatus, rawStatus)
	}
	return domain.Member{
		ID:       rec.ID,
		Name:     stringField(rec.Fields, MemberFieldName),
		Email:    stringField(rec.Fields, MemberFieldEmail),
		Role:     role,
		Status:   status,
		Avatar:   stringField(rec.Fields, MemberFieldAvatar),
		JoinedAt: timeField(rec.Fields, MemberFieldJoinedAt),
	}, nil
}

func integrityError(id, field string, got any) error {
	reason := "missing"
	if got != nil {
		reason = "invalid"
	}
	return apperrors.NewDataIntegrity("member record is malformed", map[string]any{
		"member_id": id,
		"field":     field,
		"reason":    reason,
	})
}
