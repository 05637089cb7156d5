package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/karteji/internal/domain"
)

func TestCanManage(t *testing.T) {
	t.Run("Should deny every non-manager role for every target", func(t *testing.T) {
		for _, acting := range []domain.Role{domain.RoleSecretary, domain.RoleTreasurer, domain.RoleMember, domain.Role("x")} {
			for _, target := range domain.Roles() {
				assert.False(t, CanManage(acting, target), "%s -> %s", acting, target)
			}
		}
	})
	t.Run("Should let super admin manage everyone including super admins", func(t *testing.T) {
		for _, target := range domain.Roles() {
			assert.True(t, CanManage(domain.RoleSuperAdmin, target), "super admin -> %s", target)
		}
	})
	t.Run("Should protect super admins from chairman and vice chairman", func(t *testing.T) {
		assert.False(t, CanManage(domain.RoleChairman, domain.RoleSuperAdmin))
		assert.False(t, CanManage(domain.RoleViceChairman, domain.RoleSuperAdmin))
	})
	t.Run("Should let chairman and vice chairman manage every other role", func(t *testing.T) {
		for _, acting := range []domain.Role{domain.RoleChairman, domain.RoleViceChairman} {
			for _, target := range domain.Roles()[1:] {
				assert.True(t, CanManage(acting, target), "%s -> %s", acting, target)
			}
		}
	})
}

func TestCanDeleteDocuments(t *testing.T) {
	t.Run("Should allow exactly the four document roles", func(t *testing.T) {
		want := map[domain.Role]bool{
			domain.RoleSuperAdmin:   true,
			domain.RoleChairman:     true,
			domain.RoleViceChairman: true,
			domain.RoleSecretary:    true,
			domain.RoleTreasurer:    false,
			domain.RoleMember:       false,
		}
		for role, ok := range want {
			assert.Equal(t, ok, CanDeleteDocuments(role), string(role))
		}
	})
	t.Run("Should differ from CanManage for secretaries", func(t *testing.T) {
		assert.True(t, CanDeleteDocuments(domain.RoleSecretary))
		assert.False(t, CanManage(domain.RoleSecretary, domain.RoleMember))
	})
}
