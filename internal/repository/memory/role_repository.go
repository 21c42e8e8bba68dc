package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/schoolworks/maintenance-desk/internal/domain"
	"github.com/schoolworks/maintenance-desk/internal/repository"
)

// RoleRepository implements repository.RoleRepository in memory.
type RoleRepository struct{ s *Store }

var _ repository.RoleRepository = (*RoleRepository)(nil)

func (r *RoleRepository) table(t repository.RoleTable) (map[string]domain.RoleRecord, error) {
	switch t {
	case repository.RoleTableAdmins:
		return r.s.admins, nil
	case repository.RoleTableStaff:
		return r.s.staff, nil
	}
	return nil, fmt.Errorf("unknown role table %q", t)
}

func (r *RoleRepository) Get(ctx context.Context, t repository.RoleTable, id string) (*domain.RoleRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rows, err := r.table(t)
	if err != nil {
		return nil, err
	}
	record, ok := rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &record, nil
}

func (r *RoleRepository) CreateIfAbsent(ctx context.Context, t repository.RoleTable, record *domain.RoleRecord) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rows, err := r.table(t)
	if err != nil {
		return false, err
	}
	if _, exists := rows[record.ID]; exists {
		return false, nil
	}
	stored := *record
	stored.CreatedAt = r.s.stamp(stored.CreatedAt)
	stored.UpdatedAt = stored.CreatedAt
	rows[record.ID] = stored
	return true, nil
}

func (r *RoleRepository) SetRole(ctx context.Context, record *domain.RoleRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now().UTC()
	stored := *record
	if existing, ok := r.s.staff[record.ID]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	r.s.staff[record.ID] = stored
	if record.Role == domain.RoleAdmin {
		r.s.admins[record.ID] = stored
	} else {
		delete(r.s.admins, record.ID)
	}
	return nil
}

func (r *RoleRepository) List(ctx context.Context, limit, offset int) ([]domain.RoleRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	result := make([]domain.RoleRecord, 0, len(r.s.staff))
	for _, record := range r.s.staff {
		result = append(result, record)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name == result[j].Name {
			return result[i].Email < result[j].Email
		}
		return result[i].Name < result[j].Name
	})
	if offset > 0 {
		if offset >= len(result) {
			return nil, nil
		}
		result = result[offset:]
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
