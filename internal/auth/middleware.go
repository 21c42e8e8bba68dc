package auth

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/schoolworks/maintenance-desk/internal/domain"
	apperrors "github.com/schoolworks/maintenance-desk/pkg/util"
)

const principalKey = "auth_principal"

// RoleResolver maps an identity to its effective role.
type RoleResolver interface {
	ResolveRole(ctx context.Context, identity domain.Identity) domain.Role
}

// AuthMiddleware validates bearer tokens and loads principals.
type AuthMiddleware struct {
	tokens *TokenManager
	roles  RoleResolver
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, roles RoleResolver) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, roles: roles}
}

// Handle enforces authentication for protected routes. The role is resolved on
// every request so a changed role record applies immediately.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	identity, err := m.tokens.ParseToken(strings.TrimSpace(parts[1]))
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	role := m.roles.ResolveRole(c.UserContext(), identity)
	c.Locals(principalKey, &domain.Actor{Identity: identity, Role: role})
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated actor.
func PrincipalFromContext(c *fiber.Ctx) (*domain.Actor, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*domain.Actor)
	return principal, ok
}
