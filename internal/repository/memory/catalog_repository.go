package memory

import (
	"context"
	"sort"

	"github.com/schoolworks/maintenance-desk/internal/domain"
	"github.com/schoolworks/maintenance-desk/internal/repository"
)

// CatalogRepository implements repository.CatalogRepository.
type CatalogRepository struct{ s *Store }

var _ repository.CatalogRepository = (*CatalogRepository)(nil)

func (r *CatalogRepository) ListCategories(ctx context.Context) ([]domain.Category, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := append([]domain.Category(nil), r.s.categories...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *CatalogRepository) CreateCategory(ctx context.Context, c *domain.Category) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c.ID = newID()
	c.CreatedAt = r.s.stamp(c.CreatedAt)
	r.s.categories = append(r.s.categories, *c)
	return nil
}

func (r *CatalogRepository) ListLocations(ctx context.Context) ([]domain.Location, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := append([]domain.Location(nil), r.s.locations...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *CatalogRepository) CreateLocation(ctx context.Context, l *domain.Location) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l.ID = newID()
	l.CreatedAt = r.s.stamp(l.CreatedAt)
	r.s.locations = append(r.s.locations, *l)
	return nil
}

// CounterRepository implements repository.TicketCounterRepository.
type CounterRepository struct{ s *Store }

var _ repository.TicketCounterRepository = (*CounterRepository)(nil)

func (r *CounterRepository) Next(ctx context.Context, dateKey string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.counters[dateKey]++
	return r.s.counters[dateKey], nil
}
