package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/schoolworks/maintenance-desk/internal/domain"
)

// NotificationFilter narrows a notification feed.
type NotificationFilter struct {
	TargetRole *domain.RecipientRole
	UnreadOnly bool
	Limit      int
}

// NotificationRepository persists role-targeted notifications.
type NotificationRepository interface {
	Create(ctx context.Context, notification *domain.Notification) error
	List(ctx context.Context, filter NotificationFilter) ([]domain.Notification, error)
	MarkRead(ctx context.Context, id string) error
	// ExistsSince reports whether the ticket already has a notification for the
	// role created at or after since.
	ExistsSince(ctx context.Context, ticketID string, role domain.RecipientRole, since time.Time) (bool, error)
}

type notificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository constructs repository.
func NewNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &notificationRepository{pool: pool}
}

func (r *notificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	const query = `
        INSERT INTO notifications (ticket_id, target_role, message, read)
        VALUES ($1,$2,$3,FALSE)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query, n.TicketID, n.TargetRole, n.Message).Scan(&n.ID, &n.CreatedAt)
}

func (r *notificationRepository) List(ctx context.Context, filter NotificationFilter) ([]domain.Notification, error) {
	query := `SELECT id, ticket_id, target_role, message, read, created_at FROM notifications WHERE 1=1`
	args := []any{}
	if filter.TargetRole != nil {
		args = append(args, *filter.TargetRole)
		query += fmt.Sprintf(" AND target_role=$%d", len(args))
	}
	if filter.UnreadOnly {
		query += " AND read=FALSE"
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d", limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.TicketID, &n.TargetRole, &n.Message, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

func (r *notificationRepository) MarkRead(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE notifications SET read=TRUE WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *notificationRepository) ExistsSince(ctx context.Context, ticketID string, role domain.RecipientRole, since time.Time) (bool, error) {
	const query = `
        SELECT EXISTS(SELECT 1 FROM notifications WHERE ticket_id=$1 AND target_role=$2 AND created_at >= $3)`
	var exists bool
	err := r.pool.QueryRow(ctx, query, ticketID, role, since).Scan(&exists)
	return exists, err
}
