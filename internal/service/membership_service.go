package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spec-kit/karteji/internal/auth"
	"github.com/spec-kit/karteji/internal/config"
	"github.com/spec-kit/karteji/internal/directory"
	"github.com/spec-kit/karteji/internal/docstore"
	"github.com/spec-kit/karteji/internal/domain"
	"github.com/spec-kit/karteji/internal/events"
	"github.com/spec-kit/karteji/internal/observability"
	"github.com/spec-kit/karteji/internal/repository"
	apperrors "github.com/spec-kit/karteji/pkg/errorutil"
)

// EditInput is a partial role/status change. Nil fields keep the stored value.
type EditInput struct {
	Role   *domain.Role
	Status *domain.MemberStatus
}

// ProfileInput is the caller's own name/avatar change. Nil fields keep the stored value.
type ProfileInput struct {
	Name   *string
	Avatar *string
}

// DashboardStats summarizes the directory for the dashboard.
type DashboardStats struct {
	Total       int
	Active      int
	Inactive    int
	Pending     int
	Quarantined int
	AsOf        time.Time
}

// MembershipCard is the member's own digital card.
type MembershipCard struct {
	Member           domain.Member
	OrganizationName string
	CardNumber       string
	Verified         bool
}

// MembershipService applies lifecycle decisions to member records.
type MembershipService struct {
	members    repository.MemberRepository
	identities repository.IdentityRepository
	settings   repository.SettingsRepository
	dir        MemberDirectory
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	opTimeout  time.Duration
}

// MembershipDependencies encapsulates requirements for the membership service.
type MembershipDependencies struct {
	MemberRepo   repository.MemberRepository
	IdentityRepo repository.IdentityRepository
	SettingsRepo repository.SettingsRepository
	Directory    MemberDirectory
	Dispatcher   events.Dispatcher
	Metrics      *observability.Metrics
	Logger       *zap.Logger
}

// NewMembershipService builds the service.
func NewMembershipService(cfg config.Config, deps MembershipDependencies) *MembershipService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MembershipService{
		members:    deps.MemberRepo,
		identities: deps.IdentityRepo,
		settings:   deps.SettingsRepo,
		dir:        deps.Directory,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		opTimeout:  opTimeoutOr(cfg.Directory.OpTimeout()),
	}
}

// Approve activates a pending member. Approving an active member is a no-op.
func (s *MembershipService) Approve(ctx context.Context, actor *domain.Identity, memberID string) (_ *domain.Member, err error) {
	defer s.observe("approve", &err)

	acting, target, err := s.authorizeTarget(ctx, actor, memberID)
	if err != nil {
		return nil, err
	}
	switch target.Status {
	case domain.MemberStatusActive:
		return &target, nil
	case domain.MemberStatusInactive:
		return nil, apperrors.NewInvalidTransition(string(target.Status), string(domain.MemberStatusActive))
	}

	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	if err := s.members.UpdateStatus(opCtx, target.ID, domain.MemberStatusActive); err != nil {
		return nil, storeError("approve member", "member", target.ID, err)
	}

	updated := target
	updated.Status = domain.MemberStatusActive
	s.awaitSnapshot(ctx, target.ID, func(m domain.Member, ok bool) bool { return !ok || m.IsActive() })
	s.publish(ctx, events.EventMemberApproved, acting, target, &updated)
	return &updated, nil
}

// Reject permanently removes a pending member record and its login identity.
func (s *MembershipService) Reject(ctx context.Context, actor *domain.Identity, memberID string) (err error) {
	defer s.observe("reject", &err)

	acting, target, err := s.authorizeTarget(ctx, actor, memberID)
	if err != nil {
		return err
	}
	if target.Status != domain.MemberStatusPending {
		return apperrors.NewInvalidTransition(string(target.Status), "rejected")
	}

	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	if err := s.members.Delete(opCtx, target.ID); err != nil {
		return storeError("reject member", "member", target.ID, err)
	}
	s.awaitSnapshot(ctx, target.ID, gone)
	s.removeIdentity(ctx, target.ID)
	s.publish(ctx, events.EventMemberRejected, acting, target, nil)
	return nil
}

// EditMember rewrites role and status in one update.
func (s *MembershipService) EditMember(ctx context.Context, actor *domain.Identity, memberID string, in EditInput) (_ *domain.Member, err error) {
	defer s.observe("edit", &err)

	if in.Role == nil && in.Status == nil {
		return nil, apperrors.NewValidationError("role or status is required", nil)
	}
	if in.Role != nil && !in.Role.Valid() {
		return nil, apperrors.NewValidationError("unknown role", map[string]any{"role": string(*in.Role)})
	}
	if in.Status != nil && !in.Status.Valid() {
		return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": string(*in.Status)})
	}

	acting, target, err := s.authorizeTarget(ctx, actor, memberID)
	if err != nil {
		return nil, err
	}
	newRole, newStatus := target.Role, target.Status
	if in.Role != nil {
		newRole = *in.Role
	}
	if in.Status != nil {
		newStatus = *in.Status
	}
	if !target.Status.CanTransition(newStatus) {
		return nil, apperrors.NewInvalidTransition(string(target.Status), string(newStatus))
	}

	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	if err := s.members.UpdateRoleStatus(opCtx, target.ID, newRole, newStatus); err != nil {
		return nil, storeError("edit member", "member", target.ID, err)
	}

	updated := target
	updated.Role = newRole
	updated.Status = newStatus
	s.awaitSnapshot(ctx, target.ID, func(m domain.Member, ok bool) bool {
		return !ok || (m.Role == newRole && m.Status == newStatus)
	})
	s.publish(ctx, events.EventMemberUpdated, acting, target, &updated)
	return &updated, nil
}

// DeleteMember removes a member record regardless of status.
func (s *MembershipService) DeleteMember(ctx context.Context, actor *domain.Identity, memberID string) (err error) {
	defer s.observe("delete", &err)

	acting, target, err := s.authorizeTarget(ctx, actor, memberID)
	if err != nil {
		return err
	}

	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	if err := s.members.Delete(opCtx, target.ID); err != nil {
		return storeError("delete member", "member", target.ID, err)
	}
	s.awaitSnapshot(ctx, target.ID, gone)
	s.removeIdentity(ctx, target.ID)
	s.publish(ctx, events.EventMemberDeleted, acting, target, nil)
	return nil
}

// ListPending returns pending members by role rank. Only managers may review them.
func (s *MembershipService) ListPending(_ context.Context, actor *domain.Identity) ([]domain.Member, error) {
	snap, err := s.requireManager(actor)
	if err != nil {
		return nil, err
	}
	return snap.Pending(), nil
}

// WatchPending streams the pending list after every directory change until ctx ends.
// The caller is re-checked against each snapshot; the stream closes once they are no longer
// an active manager.
func (s *MembershipService) WatchPending(ctx context.Context, actor *domain.Identity) (<-chan []domain.Member, error) {
	if _, err := s.requireManager(actor); err != nil {
		return nil, err
	}
	watchCtx, cancel := context.WithCancel(ctx)
	snapshots := s.dir.Watch(watchCtx)
	out := make(chan []domain.Member, 1)
	go func() {
		defer close(out)
		defer cancel()
		for snap := range snapshots {
			if !canReviewPending(snap, actor.ID) {
				s.logger.Info("pending stream closed; viewer can no longer review", zap.String("actor_id", actor.ID))
				return
			}
			select {
			case <-out:
			default:
			}
			out <- snap.Pending()
		}
	}()
	return out, nil
}

// List returns the roster filtered by search text and role. Any active member may read it.
func (s *MembershipService) List(_ context.Context, actor *domain.Identity, search string, role domain.Role) ([]domain.Member, error) {
	if role != "" && !role.Valid() {
		return nil, apperrors.NewValidationError("unknown role", map[string]any{"role": string(role)})
	}
	_, snap, err := activeMemberOf(s.dir, actor)
	if err != nil {
		return nil, err
	}
	return snap.Filter(search, role), nil
}

// Get returns one member as of the latest snapshot.
func (s *MembershipService) Get(_ context.Context, actor *domain.Identity, memberID string) (*domain.Member, error) {
	_, snap, err := activeMemberOf(s.dir, actor)
	if err != nil {
		return nil, err
	}
	target, err := lookupTarget(snap, memberID)
	if err != nil {
		return nil, err
	}
	return &target, nil
}

// Me returns the caller's own record in any status.
func (s *MembershipService) Me(_ context.Context, actor *domain.Identity) (*domain.Member, error) {
	member, _, err := memberOf(s.dir, actor)
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// UpdateProfile changes the caller's own name and avatar, in any status.
func (s *MembershipService) UpdateProfile(ctx context.Context, actor *domain.Identity, in ProfileInput) (_ *domain.Member, err error) {
	defer s.observe("update_profile", &err)

	if in.Name == nil && in.Avatar == nil {
		return nil, apperrors.NewValidationError("name or avatar is required", nil)
	}
	var name, avatar *string
	if in.Name != nil {
		trimmed := strings.TrimSpace(*in.Name)
		if trimmed == "" || utf8.RuneCountInString(trimmed) > maxNameLength {
			return nil, apperrors.NewValidationError("name must be 1 to 120 characters", map[string]any{"name": "length"})
		}
		name = &trimmed
	}
	if in.Avatar != nil {
		trimmed := strings.TrimSpace(*in.Avatar)
		avatar = &trimmed
	}

	member, _, err := memberOf(s.dir, actor)
	if err != nil {
		return nil, err
	}

	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	if err := s.members.UpdateProfile(opCtx, member.ID, name, avatar); err != nil {
		return nil, storeError("update profile", "member", member.ID, err)
	}

	updated := member
	if name != nil {
		updated.Name = *name
	}
	if avatar != nil {
		updated.Avatar = *avatar
	}
	s.awaitSnapshot(ctx, member.ID, func(m domain.Member, ok bool) bool {
		return !ok || (m.Name == updated.Name && m.Avatar == updated.Avatar)
	})
	s.logger.Info("profile updated", zap.String("member_id", member.ID))
	return &updated, nil
}

// Structure returns verified members ordered by role rank.
func (s *MembershipService) Structure(_ context.Context, actor *domain.Identity) ([]domain.Member, error) {
	_, snap, err := activeMemberOf(s.dir, actor)
	if err != nil {
		return nil, err
	}
	return snap.Structure(), nil
}

// Stats counts members per status.
func (s *MembershipService) Stats(_ context.Context, actor *domain.Identity) (*DashboardStats, error) {
	_, snap, err := activeMemberOf(s.dir, actor)
	if err != nil {
		return nil, err
	}
	counts := snap.CountByStatus()
	return &DashboardStats{
		Total:       snap.Len(),
		Active:      counts[domain.MemberStatusActive],
		Inactive:    counts[domain.MemberStatusInactive],
		Pending:     counts[domain.MemberStatusPending],
		Quarantined: len(snap.Quarantined()),
		AsOf:        snap.TakenAt(),
	}, nil
}

// Card builds the caller's membership card. Pending members get an unverified card.
func (s *MembershipService) Card(ctx context.Context, actor *domain.Identity) (*MembershipCard, error) {
	member, _, err := memberOf(s.dir, actor)
	if err != nil {
		return nil, err
	}
	card := &MembershipCard{
		Member:     member,
		CardNumber: cardNumber(member),
		Verified:   member.IsActive(),
	}
	if s.settings == nil {
		return card, nil
	}

	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	settings, err := s.settings.Get(opCtx)
	switch {
	case err == nil:
		card.OrganizationName = settings.Name
	case errors.Is(err, docstore.ErrNotFound):
	default:
		return nil, apperrors.NewStoreFailure("load settings", err)
	}
	return card, nil
}

// authorizeTarget checks actor against target in the latest snapshot, then re-reads both records
// from the store and repeats the check, so a write the snapshot has not caught up with yet
// still counts. The returned records are the stored ones.
func (s *MembershipService) authorizeTarget(ctx context.Context, actor *domain.Identity, memberID string) (domain.Member, domain.Member, error) {
	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		return domain.Member{}, domain.Member{}, apperrors.NewValidationError("member id is required", nil)
	}
	acting, snap, err := activeMemberOf(s.dir, actor)
	if err != nil {
		return domain.Member{}, domain.Member{}, err
	}
	if acting.ID == memberID {
		return domain.Member{}, domain.Member{}, apperrors.NewForbidden("members cannot change their own record")
	}
	target, err := lookupTarget(snap, memberID)
	if err != nil {
		return domain.Member{}, domain.Member{}, err
	}
	if err := checkManage(acting, target); err != nil {
		return domain.Member{}, domain.Member{}, err
	}

	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	stored, err := s.members.GetByID(opCtx, acting.ID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return domain.Member{}, domain.Member{}, apperrors.NewForbidden("no member record for this account")
		}
		return domain.Member{}, domain.Member{}, storeError("load member", "member", acting.ID, err)
	}
	acting = *stored
	if stored, err = s.members.GetByID(opCtx, memberID); err != nil {
		return domain.Member{}, domain.Member{}, storeError("load member", "member", memberID, err)
	}
	target = *stored
	if err := checkManage(acting, target); err != nil {
		return domain.Member{}, domain.Member{}, err
	}
	return acting, target, nil
}

// checkManage requires an active actor whose role may manage the target's stored role.
func checkManage(acting, target domain.Member) error {
	if !acting.IsActive() {
		return apperrors.NewForbidden("membership is " + string(acting.Status))
	}
	if !auth.CanManage(acting.Role, target.Role) {
		return apperrors.NewForbidden(fmt.Sprintf("%s cannot manage %s", acting.Role, target.Role))
	}
	return nil
}

// canReviewPending reports whether id is an active manager in snap.
func canReviewPending(snap *directory.Snapshot, id string) bool {
	m, ok := snap.Lookup(id)
	return ok && m.IsActive() && auth.IsManager(m.Role)
}

// awaitSnapshot blocks until the directory shows done for id, for at most the op timeout, so a
// caller's next read reflects its own write.
func (s *MembershipService) awaitSnapshot(ctx context.Context, id string, done func(domain.Member, bool) bool) {
	waitCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	for snap := range s.dir.Watch(waitCtx) {
		if done(snap.Lookup(id)) {
			return
		}
	}
	s.logger.Warn("directory did not reflect a write in time", zap.String("member_id", id))
}

func gone(_ domain.Member, ok bool) bool { return !ok }

func (s *MembershipService) requireManager(actor *domain.Identity) (*directory.Snapshot, error) {
	acting, snap, err := activeMemberOf(s.dir, actor)
	if err != nil {
		return nil, err
	}
	if !auth.IsManager(acting.Role) {
		return nil, apperrors.NewForbidden("only managers can review pending members")
	}
	return snap, nil
}

func (s *MembershipService) removeIdentity(ctx context.Context, id string) {
	if s.identities == nil {
		return
	}
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opTimeout)
	defer cancel()
	if err := s.identities.Delete(cleanupCtx, id); err != nil && !errors.Is(err, docstore.ErrNotFound) {
		s.logger.Warn("identity left behind after member removal", zap.String("identity_id", id), zap.Error(err))
	}
}

func (s *MembershipService) publish(ctx context.Context, t events.EventType, acting, before domain.Member, after *domain.Member) {
	payload := events.MemberChangedPayload{
		Name:      before.Name,
		OldRole:   before.Role,
		OldStatus: before.Status,
	}
	if after != nil {
		payload.NewRole = after.Role
		payload.NewStatus = after.Status
	}
	s.logger.Info("member changed",
		zap.String("event_type", string(t)),
		zap.String("actor_id", acting.ID),
		zap.String("member_id", before.ID))
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, events.NewEvent(t, acting.ID, before.ID, payload)); err != nil {
		s.logger.Warn("event handlers failed", zap.String("event_type", string(t)), zap.Error(err))
	}
}

func (s *MembershipService) observe(op string, err *error) {
	s.metrics.RecordDirectoryOp(op, outcomeOf(*err))
}

func cardNumber(m domain.Member) string {
	compact := strings.ToUpper(strings.ReplaceAll(m.ID, "-", ""))
	if len(compact) > 8 {
		compact = compact[:8]
	}
	return fmt.Sprintf("KT-%s-%s", m.JoinedAt.Format("200601"), compact)
}
