package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/schoolworks/maintenance-desk/internal/domain"
)

// RoleTable names one of the two role record tables.
type RoleTable string

const (
	RoleTableAdmins RoleTable = "admins"
	RoleTableStaff  RoleTable = "staff"
)

func (t RoleTable) valid() bool {
	return t == RoleTableAdmins || t == RoleTableStaff
}

// RoleRepository handles persistence for admins and staff role records.
type RoleRepository interface {
	Get(ctx context.Context, table RoleTable, id string) (*domain.RoleRecord, error)
	// CreateIfAbsent inserts the record unless one with the same id exists.
	// It reports whether a row was written.
	CreateIfAbsent(ctx context.Context, table RoleTable, record *domain.RoleRecord) (bool, error)
	// SetRole writes the record to both tables in one transaction.
	SetRole(ctx context.Context, record *domain.RoleRecord) error
	List(ctx context.Context, limit, offset int) ([]domain.RoleRecord, error)
}

type roleRepository struct {
	pool *pgxpool.Pool
}

// NewRoleRepository instantiates the repository.
func NewRoleRepository(pool *pgxpool.Pool) RoleRepository {
	return &roleRepository{pool: pool}
}

func (r *roleRepository) Get(ctx context.Context, table RoleTable, id string) (*domain.RoleRecord, error) {
	if !table.valid() {
		return nil, fmt.Errorf("unknown role table %q", table)
	}
	query := fmt.Sprintf(`
        SELECT id, email, name, role, permissions, created_at, updated_at
        FROM %s WHERE id=$1`, table)

	var record domain.RoleRecord
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&record.ID,
		&record.Email,
		&record.Name,
		&record.Role,
		&record.Permissions,
		&record.CreatedAt,
		&record.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *roleRepository) CreateIfAbsent(ctx context.Context, table RoleTable, record *domain.RoleRecord) (bool, error) {
	if !table.valid() {
		return false, fmt.Errorf("unknown role table %q", table)
	}
	query := fmt.Sprintf(`
        INSERT INTO %s (id, email, name, role, permissions)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (id) DO NOTHING`, table)

	cmd, err := r.pool.Exec(ctx, query,
		record.ID,
		record.Email,
		record.Name,
		record.Role,
		permissionsOrEmpty(record.Permissions),
	)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *roleRepository) SetRole(ctx context.Context, record *domain.RoleRecord) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, table := range []RoleTable{RoleTableStaff, RoleTableAdmins} {
		// Non-admins keep no admins row; the resolver reads admins first.
		if table == RoleTableAdmins && record.Role != domain.RoleAdmin {
			if _, err := tx.Exec(ctx, `DELETE FROM admins WHERE id=$1`, record.ID); err != nil {
				return err
			}
			continue
		}
		query := fmt.Sprintf(`
            INSERT INTO %s (id, email, name, role, permissions)
            VALUES ($1,$2,$3,$4,$5)
            ON CONFLICT (id) DO UPDATE SET email=EXCLUDED.email, name=EXCLUDED.name,
                role=EXCLUDED.role, permissions=EXCLUDED.permissions, updated_at=NOW()`, table)
		if _, err := tx.Exec(ctx, query,
			record.ID,
			record.Email,
			record.Name,
			record.Role,
			permissionsOrEmpty(record.Permissions),
		); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *roleRepository) List(ctx context.Context, limit, offset int) ([]domain.RoleRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf(`
        SELECT id, email, name, role, permissions, created_at, updated_at
        FROM staff ORDER BY name ASC, email ASC LIMIT %d OFFSET %d`, limit, offset)

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.RoleRecord
	for rows.Next() {
		var record domain.RoleRecord
		if err := rows.Scan(
			&record.ID,
			&record.Email,
			&record.Name,
			&record.Role,
			&record.Permissions,
			&record.CreatedAt,
			&record.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, record)
	}
	return result, rows.Err()
}

func permissionsOrEmpty(p map[string]bool) map[string]bool {
	if p == nil {
		return map[string]bool{}
	}
	return p
}
