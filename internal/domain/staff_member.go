package domain

import "time"

// Role enumerates the roles a signed-in user may hold.
type Role string

const (
	RoleStaff      Role = "staff"
	RoleSupervisor Role = "supervisor"
	RoleAdmin      Role = "admin"
)

// Valid reports whether the role is known.
func (r Role) Valid() bool {
	switch r {
	case RoleStaff, RoleSupervisor, RoleAdmin:
		return true
	}
	return false
}

// RoleRecord is a row in either the admins or the staff table, keyed by the
// identity provider's user id.
type RoleRecord struct {
	ID          string
	Email       string
	Name        string
	Role        Role
	Permissions map[string]bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
