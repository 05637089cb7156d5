package domain

// Role enumerates the fixed organization roles.
type Role string

const (
	RoleSuperAdmin   Role = "Super Admin"
	RoleChairman     Role = "Ketua"
	RoleViceChairman Role = "Wakil Ketua"
	RoleSecretary    Role = "Sekretaris"
	RoleTreasurer    Role = "Bendahara"
	RoleMember       Role = "Anggota"
)

// UnknownRank is the rank given to any value outside the closed role set.
const UnknownRank = 99

var roleRanks = map[Role]int{
	RoleSuperAdmin:   1,
	RoleChairman:     2,
	RoleViceChairman: 3,
	RoleSecretary:    4,
	RoleTreasurer:    5,
	RoleMember:       6,
}

// Roles lists every role in precedence order.
func Roles() []Role {
	return []Role{
		RoleSuperAdmin,
		RoleChairman,
		RoleViceChairman,
		RoleSecretary,
		RoleTreasurer,
		RoleMember,
	}
}

// Valid reports whether r belongs to the closed role set.
func (r Role) Valid() bool {
	_, ok := roleRanks[r]
	return ok
}

// Rank returns the precedence of r, 1 being the highest authority.
func Rank(r Role) int {
	if rank, ok := roleRanks[r]; ok {
		return rank
	}
	return UnknownRank
}

// Compare orders roles by rank: -1 when a outranks b, 0 when equal, 1 otherwise.
func Compare(a, b Role) int {
	ra, rb := Rank(a), Rank(b)
	switch {
	case ra < rb:
		return -1
	case ra > rb:
		return 1
	default:
		return 0
	}
}

// ParseRole accepts either the stored role value or its English alias.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	if r.Valid() {
		return r, true
	}
	if alias, ok := roleAliases[s]; ok {
		return alias, true
	}
	return "", false
}

var roleAliases = map[string]Role{
	"super_admin":   RoleSuperAdmin,
	"chairman":      RoleChairman,
	"vice_chairman": RoleViceChairman,
	"secretary":     RoleSecretary,
	"treasurer":     RoleTreasurer,
	"member":        RoleMember,
}
