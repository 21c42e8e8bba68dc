package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/schoolworks/maintenance-desk/internal/domain"
	"github.com/schoolworks/maintenance-desk/internal/repository"
)

// TicketRepository implements repository.TicketRepository in memory.
type TicketRepository struct{ s *Store }

var _ repository.TicketRepository = (*TicketRepository)(nil)

func (r *TicketRepository) Create(ctx context.Context, ticket *domain.Ticket, history *domain.TicketHistory) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.tickets[ticket.ID]; exists {
		return fmt.Errorf("ticket %s already exists", ticket.ID)
	}
	ticket.Revision = 1
	r.s.tickets[ticket.ID] = ticket.Clone()
	if history != nil {
		history.TicketID = ticket.ID
		r.s.appendHistory(history)
	}
	return nil
}

func (r *TicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	ticket, ok := r.s.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return ticket.Clone(), nil
}

func (r *TicketRepository) List(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var result []domain.Ticket
	for _, t := range r.s.tickets {
		if matches(t, filter) {
			result = append(result, *t.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *TicketRepository) ApplyMutation(ctx context.Context, m repository.TicketMutation) error {
	if m.Ticket == nil {
		return fmt.Errorf("mutation requires a ticket")
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.tickets[m.Ticket.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	if m.ExpectedRevision != nil && *m.ExpectedRevision != current.Revision {
		return repository.ErrRevisionMismatch
	}

	stored := current.Clone()
	src := m.Ticket.Clone()
	for _, f := range m.Fields {
		if err := f.CopyTo(stored, src); err != nil {
			return err
		}
	}
	stored.UpdatedAt = m.Ticket.UpdatedAt
	stored.Revision = current.Revision + 1
	r.s.tickets[stored.ID] = stored
	*m.Ticket = *stored.Clone()

	if m.Comment != nil {
		m.Comment.TicketID = stored.ID
		r.s.appendComment(m.Comment)
	}
	if m.History != nil {
		m.History.TicketID = stored.ID
		r.s.appendHistory(m.History)
	}
	return nil
}

func matches(t *domain.Ticket, f repository.TicketFilter) bool {
	if t.Status == domain.TicketStatusDeleted {
		return false
	}
	if f.AssigneeID != nil && (t.AssigneeID == nil || *t.AssigneeID != *f.AssigneeID) {
		return false
	}
	if f.CategoryID != nil && (t.CategoryID == nil || *t.CategoryID != *f.CategoryID) {
		return false
	}
	if f.LocationID != nil && (t.LocationID == nil || *t.LocationID != *f.LocationID) {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, t.Status) {
		return false
	}
	if len(f.Priorities) > 0 && !containsPriority(f.Priorities, t.Priority) {
		return false
	}
	if f.DueBefore != nil && (t.DueDate == nil || !t.DueDate.Before(*f.DueBefore)) {
		return false
	}
	if f.CreatedFrom != nil && t.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && t.CreatedAt.After(*f.CreatedTo) {
		return false
	}
	if f.SearchTerm != nil {
		term := strings.ToLower(strings.TrimSpace(*f.SearchTerm))
		if term != "" &&
			!strings.Contains(strings.ToLower(t.Subject), term) &&
			!strings.Contains(strings.ToLower(t.Description), term) &&
			!strings.Contains(strings.ToLower(t.TicketNumber), term) {
			return false
		}
	}
	return true
}

func containsStatus(list []domain.TicketStatus, v domain.TicketStatus) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsPriority(list []domain.TicketPriority, v domain.TicketPriority) bool {
	for _, p := range list {
		if p == v {
			return true
		}
	}
	return false
}
