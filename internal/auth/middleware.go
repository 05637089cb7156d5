package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/karteji/internal/docstore"
	"github.com/spec-kit/karteji/internal/domain"
	"github.com/spec-kit/karteji/internal/repository"
	apperrors "github.com/spec-kit/karteji/pkg/errorutil"
)

const (
	principalKey  = "auth_principal"
	identityIDKey = "identityID"
)

// Principal represents the authenticated caller.
type Principal struct {
	Identity *domain.Identity
	Claims   *Claims
}

// AuthMiddleware validates bearer tokens and loads the caller's identity.
type AuthMiddleware struct {
	tokens      *TokenManager
	revocations RevocationList
	identities  repository.IdentityRepository
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, revocations RevocationList, identities repository.IdentityRepository) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, revocations: revocations, identities: identities}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	token, err := BearerToken(c)
	if err != nil {
		return err
	}

	claims, err := m.tokens.ParseToken(token)
	if err != nil {
		return apperrors.NewUnauthenticated("invalid token")
	}

	revoked, err := m.revocations.IsRevoked(c.UserContext(), claims.ID)
	if err != nil {
		return apperrors.NewStoreFailure("check token revocation", err)
	}
	if revoked {
		return apperrors.NewUnauthenticated("token has been revoked")
	}

	identity, err := m.identities.GetByID(c.UserContext(), claims.IdentityID())
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return apperrors.NewUnauthenticated("identity not found")
		}
		return apperrors.NewStoreFailure("load identity", err)
	}

	c.Locals(principalKey, &Principal{Identity: identity, Claims: claims})
	c.Locals(identityIDKey, identity.ID)
	return c.Next()
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(c *fiber.Ctx) (string, error) {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return "", apperrors.NewUnauthenticated("missing authorization header")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", apperrors.NewUnauthenticated("invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}

// IdentityFromContext returns the caller's identity or nil when unauthenticated.
func IdentityFromContext(c *fiber.Ctx) *domain.Identity {
	if p, ok := PrincipalFromContext(c); ok {
		return p.Identity
	}
	return nil
}
