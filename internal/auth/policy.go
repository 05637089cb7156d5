package auth

import "github.com/spec-kit/karteji/internal/domain"

var managerRoles = map[domain.Role]struct{}{
	domain.RoleSuperAdmin:   {},
	domain.RoleChairman:     {},
	domain.RoleViceChairman: {},
}

var documentDeleterRoles = map[domain.Role]struct{}{
	domain.RoleSuperAdmin:   {},
	domain.RoleChairman:     {},
	domain.RoleViceChairman: {},
	domain.RoleSecretary:    {},
}

// IsManager reports whether role may edit or delete other members.
func IsManager(role domain.Role) bool {
	_, ok := managerRoles[role]
	return ok
}

// CanManage decides whether acting may change the role/status of, or delete, a member holding target.
// Only a Super Admin may act on a Super Admin.
func CanManage(acting, target domain.Role) bool {
	if !IsManager(acting) {
		return false
	}
	if target == domain.RoleSuperAdmin && acting != domain.RoleSuperAdmin {
		return false
	}
	return true
}

// CanDeleteDocuments is the flat allow-list for deleting reports.
func CanDeleteDocuments(role domain.Role) bool {
	_, ok := documentDeleterRoles[role]
	return ok
}
