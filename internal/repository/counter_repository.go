package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TicketCounterRepository hands out per-day ticket sequence numbers.
type TicketCounterRepository interface {
	// Next atomically increments and returns the counter for dateKey.
	Next(ctx context.Context, dateKey string) (int, error)
}

type ticketCounterRepository struct {
	pool *pgxpool.Pool
}

// NewTicketCounterRepository constructs repository.
func NewTicketCounterRepository(pool *pgxpool.Pool) TicketCounterRepository {
	return &ticketCounterRepository{pool: pool}
}

func (r *ticketCounterRepository) Next(ctx context.Context, dateKey string) (int, error) {
	const query = `
        INSERT INTO ticket_counter (date, counter) VALUES ($1, 1)
        ON CONFLICT (date) DO UPDATE SET counter = ticket_counter.counter + 1
        RETURNING counter`
	var counter int
	if err := r.pool.QueryRow(ctx, query, dateKey).Scan(&counter); err != nil {
		return 0, err
	}
	return counter, nil
}
