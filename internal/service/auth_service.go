package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/karteji/internal/auth"
	"github.com/spec-kit/karteji/internal/config"
	"github.com/spec-kit/karteji/internal/docstore"
	"github.com/spec-kit/karteji/internal/domain"
	"github.com/spec-kit/karteji/internal/events"
	"github.com/spec-kit/karteji/internal/repository"
	apperrors "github.com/spec-kit/karteji/pkg/errorutil"
)

// RegisterInput carries a self-registration request.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Avatar   string
	// Role is the requested role; empty means Member.
	Role domain.Role
}

// Session is an issued access token.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Identity  *domain.Identity
}

// AuthService coordinates registration, login and logout.
type AuthService struct {
	members     repository.MemberRepository
	identities  repository.IdentityRepository
	tokenMgr    *auth.TokenManager
	revocations auth.RevocationList
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	bcryptCost  int
	opTimeout   time.Duration
	now         func() time.Time
}

// AuthDependencies encapsulates requirements for the auth service.
type AuthDependencies struct {
	MemberRepo   repository.MemberRepository
	IdentityRepo repository.IdentityRepository
	TokenManager *auth.TokenManager
	Revocations  auth.RevocationList
	Dispatcher   events.Dispatcher
	Logger       *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	tokenMgr := deps.TokenManager
	if tokenMgr == nil {
		tokenMgr = auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes, cfg.App.Name)
	}
	revocations := deps.Revocations
	if revocations == nil {
		revocations = auth.NewMemoryRevocationList()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		members:     deps.MemberRepo,
		identities:  deps.IdentityRepo,
		tokenMgr:    tokenMgr,
		revocations: revocations,
		dispatcher:  deps.Dispatcher,
		logger:      logger,
		bcryptCost:  cfg.Auth.BcryptCost,
		opTimeout:   opTimeoutOr(cfg.Directory.OpTimeout()),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Register creates an identity and its member record. The first member of an empty
// directory becomes an active Super Admin; everyone after starts pending with the
// requested role. If the member record cannot be written the identity is removed again.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*domain.Member, *Session, error) {
	name := strings.TrimSpace(in.Name)
	email := normalizeEmail(in.Email)
	if name == "" || email == "" {
		return nil, nil, apperrors.NewValidationError("name and email are required", nil)
	}
	requested := in.Role
	if requested == "" {
		requested = domain.RoleMember
	}
	if !requested.Valid() {
		return nil, nil, apperrors.NewValidationError("unknown role", map[string]any{"role": string(in.Role)})
	}

	hash, err := auth.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooShort) {
			return nil, nil, apperrors.NewValidationError(err.Error(), map[string]any{"min_length": auth.MinPasswordLength})
		}
		return nil, nil, apperrors.NewInternalError(err)
	}

	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if _, err := s.identities.GetByEmail(opCtx, email); err == nil {
		return nil, nil, apperrors.NewConflict("email already registered", map[string]any{"email": email})
	} else if !errors.Is(err, docstore.ErrNotFound) {
		return nil, nil, apperrors.NewStoreFailure("lookup identity", err)
	}

	empty, err := s.members.IsEmpty(opCtx)
	if err != nil {
		return nil, nil, apperrors.NewStoreFailure("check directory", err)
	}
	role, status := requested, domain.MemberStatusPending
	if empty {
		role, status = domain.RoleSuperAdmin, domain.MemberStatusActive
	} else if requested == domain.RoleSuperAdmin {
		return nil, nil, apperrors.NewValidationError("role cannot be requested at registration", map[string]any{"role": string(requested)})
	}

	now := s.now()
	identity := &domain.Identity{
		DisplayName:  name,
		Email:        email,
		PasswordHash: hash,
		Avatar:       in.Avatar,
		CreatedAt:    now,
	}
	if err := s.identities.Create(opCtx, identity); err != nil {
		if errors.Is(err, docstore.ErrAlreadyExists) {
			return nil, nil, apperrors.NewConflict("identity already exists", nil)
		}
		return nil, nil, apperrors.NewStoreFailure("create identity", err)
	}

	member := &domain.Member{
		ID:       identity.ID,
		Name:     name,
		Email:    email,
		Role:     role,
		Status:   status,
		Avatar:   in.Avatar,
		JoinedAt: now,
	}
	if err := s.members.Create(opCtx, member); err != nil {
		s.removeIdentity(ctx, identity.ID)
		return nil, nil, apperrors.NewStoreFailure("create member", err)
	}

	s.logger.Info("member registered",
		zap.String("member_id", member.ID),
		zap.String("role", string(member.Role)),
		zap.String("status", string(member.Status)),
		zap.Bool("bootstrap", empty))
	s.publish(ctx, events.NewEvent(events.EventMemberRegistered, member.ID, member.ID, events.MemberRegisteredPayload{
		Name:      member.Name,
		Role:      member.Role,
		Status:    member.Status,
		Bootstrap: empty,
	}))

	session, err := s.issue(identity)
	if err != nil {
		return member, nil, err
	}
	return member, session, nil
}

// Login authenticates by email and password. Members of any status may sign in.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	identity, err := s.identities.GetByEmail(opCtx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, apperrors.NewUnauthenticated("invalid credentials")
		}
		return nil, apperrors.NewStoreFailure("lookup identity", err)
	}
	if err := auth.ComparePassword(identity.PasswordHash, password); err != nil {
		return nil, apperrors.NewUnauthenticated("invalid credentials")
	}
	return s.issue(identity)
}

// Logout revokes the presented token until it would have expired anyway.
func (s *AuthService) Logout(ctx context.Context, claims *auth.Claims) error {
	if claims == nil || claims.ID == "" {
		return apperrors.NewUnauthenticated("authentication required")
	}
	until := s.now()
	if claims.ExpiresAt != nil {
		until = claims.ExpiresAt.Time
	}
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	if err := s.revocations.Revoke(opCtx, claims.ID, until); err != nil {
		return apperrors.NewStoreFailure("revoke token", err)
	}
	return nil
}

func (s *AuthService) issue(identity *domain.Identity) (*Session, error) {
	token, claims, err := s.tokenMgr.GenerateToken(identity.ID)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &Session{Token: token, ExpiresAt: claims.ExpiresAt.Time, Identity: identity}, nil
}

func (s *AuthService) removeIdentity(ctx context.Context, identityID string) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opTimeout)
	defer cancel()
	if err := s.identities.Delete(cleanupCtx, identityID); err != nil && !errors.Is(err, docstore.ErrNotFound) {
		s.logger.Error("orphaned identity after failed registration",
			zap.String("identity_id", identityID),
			zap.Error(err))
	}
}

func (s *AuthService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handlers failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
