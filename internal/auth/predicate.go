package auth

import "github.com/schoolworks/maintenance-desk/internal/domain"

// IsPrivileged reports whether the role may manage tickets on behalf of others.
// This is the only privilege check in the codebase; guards and services call it.
func IsPrivileged(role domain.Role) bool {
	return role == domain.RoleAdmin || role == domain.RoleSupervisor
}

// IsFullAdmin reports whether the role may administer roles and reference data.
func IsFullAdmin(role domain.Role) bool {
	return role == domain.RoleAdmin
}
