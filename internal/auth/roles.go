package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/karteji/internal/directory"
	"github.com/spec-kit/karteji/internal/domain"
	apperrors "github.com/spec-kit/karteji/pkg/errorutil"
)

// MemberSource is the part of the member directory route guards read.
type MemberSource interface {
	Current() *directory.Snapshot
	Err() error
}

// RequireAuthenticated ensures a principal was loaded.
func RequireAuthenticated() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := PrincipalFromContext(c); !ok {
			return apperrors.NewUnauthenticated("authentication required")
		}
		return c.Next()
	}
}

// RequireMemberStatus ensures the caller has a member record in one of the allowed statuses.
// No statuses means any well-formed record passes.
func RequireMemberStatus(members MemberSource, allowed ...domain.MemberStatus) fiber.Handler {
	allowedSet := make(map[domain.MemberStatus]struct{}, len(allowed))
	for _, s := range allowed {
		allowedSet[s] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		identity := IdentityFromContext(c)
		if identity == nil {
			return apperrors.NewUnauthenticated("authentication required")
		}
		if err := members.Err(); err != nil {
			return err
		}
		snap := members.Current()
		member, ok := snap.Lookup(identity.ID)
		if !ok {
			if err := snap.QuarantineError(identity.ID); err != nil {
				return err
			}
			return apperrors.NewForbidden("no member record for this account")
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[member.Status]; !exists {
			return apperrors.NewForbidden("membership is " + string(member.Status))
		}
		return c.Next()
	}
}
