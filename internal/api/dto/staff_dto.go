package dto

import (
	"time"

	"github.com/schoolworks/maintenance-desk/internal/domain"
)

// MeResponse describes the signed-in user.
type MeResponse struct {
	ID         string      `json:"id"`
	Email      string      `json:"email"`
	Name       string      `json:"name"`
	Role       domain.Role `json:"role"`
	Privileged bool        `json:"privileged"`
	FullAdmin  bool        `json:"full_admin"`
}

// SetRoleRequest grants a role to a user.
type SetRoleRequest struct {
	Email       string          `json:"email"`
	Name        string          `json:"name"`
	Role        domain.Role     `json:"role"`
	Permissions map[string]bool `json:"permissions"`
}

// StaffResponse is one role record.
type StaffResponse struct {
	ID          string          `json:"id"`
	Email       string          `json:"email"`
	Name        string          `json:"name"`
	Role        domain.Role     `json:"role"`
	Permissions map[string]bool `json:"permissions,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
