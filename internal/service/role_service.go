package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/schoolworks/maintenance-desk/internal/auth"
	"github.com/schoolworks/maintenance-desk/internal/domain"
	"github.com/schoolworks/maintenance-desk/internal/repository"
	apperrors "github.com/schoolworks/maintenance-desk/pkg/util"
)

// RoleService resolves and administers roles.
type RoleService struct {
	roles          repository.RoleRepository
	bootstrapEmail string
	logger         *zap.Logger
}

// RoleDependencies bundles collaborators for the role service.
type RoleDependencies struct {
	RoleRepo            repository.RoleRepository
	BootstrapAdminEmail string
	Logger              *zap.Logger
}

// NewRoleService constructs the service.
func NewRoleService(deps RoleDependencies) *RoleService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoleService{
		roles:          deps.RoleRepo,
		bootstrapEmail: strings.ToLower(strings.TrimSpace(deps.BootstrapAdminEmail)),
		logger:         logger,
	}
}

// ResolveRole returns the effective role for an identity. Admin records win
// over staff records; the configured bootstrap address is promoted to admin
// on first sight. Any read error yields staff.
func (s *RoleService) ResolveRole(ctx context.Context, identity domain.Identity) domain.Role {
	if identity.ID == "" {
		return domain.RoleStaff
	}

	record, err := s.roles.Get(ctx, repository.RoleTableAdmins, identity.ID)
	switch {
	case err == nil:
		if record.Role.Valid() {
			return record.Role
		}
		return domain.RoleAdmin
	case !errors.Is(err, pgx.ErrNoRows):
		s.logger.Warn("admin record lookup failed", zap.String("user_id", identity.ID), zap.Error(err))
		return domain.RoleStaff
	}

	record, err = s.roles.Get(ctx, repository.RoleTableStaff, identity.ID)
	switch {
	case err == nil:
		if record.Role.Valid() {
			return record.Role
		}
		return domain.RoleStaff
	case !errors.Is(err, pgx.ErrNoRows):
		s.logger.Warn("staff record lookup failed", zap.String("user_id", identity.ID), zap.Error(err))
		return domain.RoleStaff
	}

	if s.bootstrapEmail != "" && strings.EqualFold(strings.TrimSpace(identity.Email), s.bootstrapEmail) {
		if err := s.bootstrapAdmin(ctx, identity); err != nil {
			s.logger.Error("bootstrap admin creation failed", zap.String("user_id", identity.ID), zap.Error(err))
			return domain.RoleStaff
		}
		return domain.RoleAdmin
	}
	return domain.RoleStaff
}

// bootstrapAdmin writes both records with conditional inserts, so concurrent
// first logins converge on one pair of rows.
func (s *RoleService) bootstrapAdmin(ctx context.Context, identity domain.Identity) error {
	for _, table := range []repository.RoleTable{repository.RoleTableAdmins, repository.RoleTableStaff} {
		record := &domain.RoleRecord{
			ID:          identity.ID,
			Email:       strings.ToLower(identity.Email),
			Name:        identity.Name,
			Role:        domain.RoleAdmin,
			Permissions: map[string]bool{"manage_roles": true},
		}
		created, err := s.roles.CreateIfAbsent(ctx, table, record)
		if err != nil {
			return err
		}
		if created {
			s.logger.Info("bootstrap admin record created",
				zap.String("table", string(table)),
				zap.String("user_id", identity.ID))
		}
	}
	return nil
}

// ListStaff returns role records for privileged actors.
func (s *RoleService) ListStaff(ctx context.Context, actor *domain.Actor, limit, offset int) ([]domain.RoleRecord, error) {
	if actor == nil || !auth.IsPrivileged(actor.Role) {
		return nil, apperrors.NewForbidden("supervisor or admin role required")
	}
	records, err := s.roles.List(ctx, limit, offset)
	if err != nil {
		return nil, apperrors.NewTransientIO("list staff", err)
	}
	return records, nil
}

// SetRoleInput describes a role assignment.
type SetRoleInput struct {
	UserID      string
	Email       string
	Name        string
	Role        domain.Role
	Permissions map[string]bool
}

// SetRole writes the staff record and keeps the admins record in step.
func (s *RoleService) SetRole(ctx context.Context, actor *domain.Actor, input SetRoleInput) (*domain.RoleRecord, error) {
	if actor == nil || !auth.IsFullAdmin(actor.Role) {
		return nil, apperrors.NewForbidden("admin role required")
	}
	details := map[string]any{}
	if strings.TrimSpace(input.UserID) == "" {
		details["id"] = "required"
	}
	if !input.Role.Valid() {
		details["role"] = "must be staff, supervisor or admin"
	}
	if input.UserID == actor.ID && input.Role != domain.RoleAdmin {
		details["role"] = "admins cannot demote themselves"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid role assignment", details)
	}

	record := &domain.RoleRecord{
		ID:          input.UserID,
		Email:       strings.ToLower(strings.TrimSpace(input.Email)),
		Name:        strings.TrimSpace(input.Name),
		Role:        input.Role,
		Permissions: input.Permissions,
	}
	if existing, err := s.roles.Get(ctx, repository.RoleTableStaff, input.UserID); err == nil {
		if record.Email == "" {
			record.Email = existing.Email
		}
		if record.Name == "" {
			record.Name = existing.Name
		}
		if record.Permissions == nil {
			record.Permissions = existing.Permissions
		}
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewTransientIO("load staff record", err)
	}

	if err := s.roles.SetRole(ctx, record); err != nil {
		return nil, apperrors.NewTransientIO("set role", err)
	}
	s.logger.Info("role updated",
		zap.String("user_id", record.ID),
		zap.String("role", string(record.Role)),
		zap.String("by", actor.ID))
	return record, nil
}

// StaffName returns a display name for a staff id, or the id itself.
func (s *RoleService) StaffName(ctx context.Context, id string) string {
	record, err := s.roles.Get(ctx, repository.RoleTableStaff, id)
	if err != nil {
		return id
	}
	if record.Name != "" {
		return record.Name
	}
	if record.Email != "" {
		return record.Email
	}
	return id
}
