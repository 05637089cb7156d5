package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRank(t *testing.T) {
	t.Run("Should rank roles in declared precedence", func(t *testing.T) {
		roles := Roles()
		for i := 0; i < len(roles)-1; i++ {
			assert.Less(t, Rank(roles[i]), Rank(roles[i+1]), "%s should outrank %s", roles[i], roles[i+1])
		}
		assert.Equal(t, 1, Rank(RoleSuperAdmin))
		assert.Equal(t, 6, Rank(RoleMember))
	})
	t.Run("Should rank unknown roles below every known role", func(t *testing.T) {
		for _, r := range Roles() {
			assert.Less(t, Rank(r), Rank(Role("Pembina")))
		}
		assert.Equal(t, UnknownRank, Rank(""))
	})
}

func TestCompare(t *testing.T) {
	t.Run("Should be a total order over every pair", func(t *testing.T) {
		all := append(Roles(), Role("unknown"))
		for _, a := range all {
			for _, b := range all {
				c := Compare(a, b)
				assert.Contains(t, []int{-1, 0, 1}, c)
				assert.Equal(t, -c, Compare(b, a))
				if a == b {
					assert.Zero(t, c)
				}
			}
		}
	})
	t.Run("Should place chairman above treasurer", func(t *testing.T) {
		assert.Equal(t, -1, Compare(RoleChairman, RoleTreasurer))
		assert.Equal(t, 1, Compare(RoleMember, RoleSecretary))
	})
}

func TestParseRole(t *testing.T) {
	t.Run("Should accept stored values and aliases", func(t *testing.T) {
		r, ok := ParseRole("Wakil Ketua")
		assert.True(t, ok)
		assert.Equal(t, RoleViceChairman, r)
		r, ok = ParseRole("treasurer")
		assert.True(t, ok)
		assert.Equal(t, RoleTreasurer, r)
	})
	t.Run("Should reject anything else", func(t *testing.T) {
		_, ok := ParseRole("admin")
		assert.False(t, ok)
		assert.False(t, Role("admin").Valid())
	})
}
