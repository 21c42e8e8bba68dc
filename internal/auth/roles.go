package auth

import (
	"github.com/gofiber/fiber/v2"

	apperrors "github.com/schoolworks/maintenance-desk/pkg/util"
)

// RequireAuthenticated ensures a principal was loaded.
func RequireAuthenticated() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := PrincipalFromContext(c); !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		return c.Next()
	}
}

// RequirePrivileged guards supervisor and admin routes.
func RequirePrivileged() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if !IsPrivileged(principal.Role) {
			return apperrors.NewForbidden("supervisor or admin role required")
		}
		return c.Next()
	}
}

// RequireFullAdmin guards role and reference data administration.
func RequireFullAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if !IsFullAdmin(principal.Role) {
			return apperrors.NewForbidden("admin role required")
		}
		return c.Next()
	}
}
