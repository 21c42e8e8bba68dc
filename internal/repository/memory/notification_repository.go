package memory

import (
	"context"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/schoolworks/maintenance-desk/internal/domain"
	"github.com/schoolworks/maintenance-desk/internal/repository"
)

// NotificationRepository implements repository.NotificationRepository.
type NotificationRepository struct{ s *Store }

var _ repository.NotificationRepository = (*NotificationRepository)(nil)

func (r *NotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n.ID = newID()
	n.CreatedAt = r.s.stamp(n.CreatedAt)
	n.Read = false
	r.s.notifications = append(r.s.notifications, *n)
	return nil
}

func (r *NotificationRepository) List(ctx context.Context, filter repository.NotificationFilter) ([]domain.Notification, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var result []domain.Notification
	for _, n := range r.s.notifications {
		if filter.TargetRole != nil && n.TargetRole != *filter.TargetRole {
			continue
		}
		if filter.UnreadOnly && n.Read {
			continue
		}
		result = append(result, n)
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *NotificationRepository) MarkRead(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.notifications {
		if r.s.notifications[i].ID == id {
			r.s.notifications[i].Read = true
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (r *NotificationRepository) ExistsSince(ctx context.Context, ticketID string, role domain.RecipientRole, since time.Time) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, n := range r.s.notifications {
		if n.TicketID != nil && *n.TicketID == ticketID && n.TargetRole == role && !n.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}
