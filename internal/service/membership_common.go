package service

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/karteji/internal/directory"
	"github.com/spec-kit/karteji/internal/docstore"
	"github.com/spec-kit/karteji/internal/domain"
	apperrors "github.com/spec-kit/karteji/pkg/errorutil"
)

const (
	defaultOpTimeout = 10 * time.Second
	maxNameLength    = 120
)

// MemberDirectory is the read side services authorize against.
type MemberDirectory interface {
	Current() *directory.Snapshot
	Err() error
	Watch(ctx context.Context) <-chan *directory.Snapshot
}

// memberOf resolves the caller's own record from the latest snapshot.
func memberOf(dir MemberDirectory, actor *domain.Identity) (domain.Member, *directory.Snapshot, error) {
	if actor == nil || actor.ID == "" {
		return domain.Member{}, nil, apperrors.NewUnauthenticated("authentication required")
	}
	if err := dir.Err(); err != nil {
		return domain.Member{}, nil, err
	}
	snap := dir.Current()
	member, ok := snap.Lookup(actor.ID)
	if !ok {
		if err := snap.QuarantineError(actor.ID); err != nil {
			return domain.Member{}, nil, err
		}
		return domain.Member{}, nil, apperrors.NewForbidden("no member record for this account")
	}
	return member, snap, nil
}

// activeMemberOf additionally requires the caller to be an active member.
func activeMemberOf(dir MemberDirectory, actor *domain.Identity) (domain.Member, *directory.Snapshot, error) {
	member, snap, err := memberOf(dir, actor)
	if err != nil {
		return domain.Member{}, nil, err
	}
	if !member.IsActive() {
		return domain.Member{}, nil, apperrors.NewForbidden("membership is " + string(member.Status))
	}
	return member, snap, nil
}

// lookupTarget reports a missing target as NOT_FOUND and a malformed one as DATA_INTEGRITY.
func lookupTarget(snap *directory.Snapshot, id string) (domain.Member, error) {
	target, ok := snap.Lookup(id)
	if ok {
		return target, nil
	}
	if err := snap.QuarantineError(id); err != nil {
		return domain.Member{}, err
	}
	return domain.Member{}, apperrors.NewNotFound("member", map[string]any{"member_id": id})
}

// storeError maps a document store error from a write on an existing record.
func storeError(op, resource, id string, err error) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return apperrors.NewNotFound(resource, map[string]any{"id": id})
	}
	var de *apperrors.DomainError
	if errors.As(err, &de) {
		return err
	}
	return apperrors.NewStoreFailure(op, err)
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	return apperrors.ToDomainError(err).Code
}

func opTimeoutOr(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultOpTimeout
	}
	return d
}
