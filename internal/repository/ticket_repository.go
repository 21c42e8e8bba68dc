package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/schoolworks/maintenance-desk/internal/domain"
)

// ErrRevisionMismatch is returned when a mutation carries a stale revision.
var ErrRevisionMismatch = errors.New("ticket revision mismatch")

// TicketFilter captures dashboard search parameters.
type TicketFilter struct {
	AssigneeID  *string
	CategoryID  *string
	LocationID  *string
	Statuses    []domain.TicketStatus
	Priorities  []domain.TicketPriority
	SearchTerm  *string
	DueBefore   *time.Time
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// TicketField names a mutable ticket column.
type TicketField string

const (
	FieldSubject     TicketField = "subject"
	FieldDescription TicketField = "description"
	FieldLocation    TicketField = "location_id"
	FieldCategory    TicketField = "category_id"
	FieldPriority    TicketField = "priority"
	FieldStatus      TicketField = "status"
	FieldAssignee    TicketField = "assignee_id"
	FieldCompletedAt TicketField = "completed_at"
	FieldPausedAt    TicketField = "paused_at"
	FieldDueDate     TicketField = "due_date"
	FieldPause       TicketField = "pause"
	FieldReopen      TicketField = "reopen"
)

// Value returns the column value held by t.
func (f TicketField) Value(t *domain.Ticket) (any, error) {
	switch f {
	case FieldSubject:
		return t.Subject, nil
	case FieldDescription:
		return t.Description, nil
	case FieldLocation:
		return t.LocationID, nil
	case FieldCategory:
		return t.CategoryID, nil
	case FieldPriority:
		return t.Priority, nil
	case FieldStatus:
		return t.Status, nil
	case FieldAssignee:
		return t.AssigneeID, nil
	case FieldCompletedAt:
		return t.CompletedAt, nil
	case FieldPausedAt:
		return t.PausedAt, nil
	case FieldDueDate:
		return t.DueDate, nil
	case FieldPause:
		return t.Pause, nil
	case FieldReopen:
		return t.Reopen, nil
	}
	return nil, fmt.Errorf("unknown ticket field %q", f)
}

// CopyTo copies the field from src to dst.
func (f TicketField) CopyTo(dst, src *domain.Ticket) error {
	switch f {
	case FieldSubject:
		dst.Subject = src.Subject
	case FieldDescription:
		dst.Description = src.Description
	case FieldLocation:
		dst.LocationID = src.LocationID
	case FieldCategory:
		dst.CategoryID = src.CategoryID
	case FieldPriority:
		dst.Priority = src.Priority
	case FieldStatus:
		dst.Status = src.Status
	case FieldAssignee:
		dst.AssigneeID = src.AssigneeID
	case FieldCompletedAt:
		dst.CompletedAt = src.CompletedAt
	case FieldPausedAt:
		dst.PausedAt = src.PausedAt
	case FieldDueDate:
		dst.DueDate = src.DueDate
	case FieldPause:
		dst.Pause = src.Pause
	case FieldReopen:
		dst.Reopen = src.Reopen
	default:
		return fmt.Errorf("unknown ticket field %q", f)
	}
	return nil
}

// TicketMutation is one logical change to a ticket: the columns it changes
// plus the narrating comment and audit entry, written together or not at
// all. Columns not listed in Fields keep their stored values, so concurrent
// edits to different fields both survive. After a successful write Ticket
// holds the stored row.
type TicketMutation struct {
	Ticket           *domain.Ticket
	Fields           []TicketField
	ExpectedRevision *int64
	Comment          *domain.TicketComment
	History          *domain.TicketHistory
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket, history *domain.TicketHistory) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	ApplyMutation(ctx context.Context, mutation TicketMutation) error
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, ticket_number, subject, description, location_id, category_id, priority, status,
               assignee_id, requester_name, requester_email, source, created_at, updated_at,
               completed_at, paused_at, due_date, pause, reopen, revision`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket, history *domain.TicketHistory) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const query = `
        INSERT INTO tickets (id, ticket_number, subject, description, location_id, category_id, priority, status,
            assignee_id, requester_name, requester_email, source, created_at, updated_at, due_date, pause, reopen, revision)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,1)
        RETURNING revision`
	if err := tx.QueryRow(ctx, query,
		ticket.ID,
		ticket.TicketNumber,
		ticket.Subject,
		ticket.Description,
		ticket.LocationID,
		ticket.CategoryID,
		ticket.Priority,
		ticket.Status,
		ticket.AssigneeID,
		ticket.Requester.Name,
		ticket.Requester.Email,
		ticket.Source,
		ticket.CreatedAt,
		ticket.UpdatedAt,
		ticket.DueDate,
		ticket.Pause,
		ticket.Reopen,
	).Scan(&ticket.Revision); err != nil {
		return err
	}

	if history != nil {
		history.TicketID = ticket.ID
		if err := insertHistory(ctx, tx, history); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := `SELECT ` + ticketColumns + ` FROM tickets`
	clauses := []string{"status <> 'deleted'"}
	args := []any{}

	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("assignee_id=$%d", len(args)))
	}
	if filter.CategoryID != nil {
		args = append(args, *filter.CategoryID)
		clauses = append(clauses, fmt.Sprintf("category_id=$%d", len(args)))
	}
	if filter.LocationID != nil {
		args = append(args, *filter.LocationID)
		clauses = append(clauses, fmt.Sprintf("location_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.DueBefore != nil {
		args = append(args, *filter.DueBefore)
		clauses = append(clauses, fmt.Sprintf("due_date IS NOT NULL AND due_date < $%d", len(args)))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		idx := len(args)
		clauses = append(clauses, fmt.Sprintf("(LOWER(subject) LIKE $%d OR LOWER(description) LIKE $%d OR LOWER(ticket_number) LIKE $%d)", idx, idx, idx))
	}

	query := base + " WHERE " + strings.Join(clauses, " AND ") + " ORDER BY created_at DESC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func (r *ticketRepository) ApplyMutation(ctx context.Context, m TicketMutation) error {
	if m.Ticket == nil {
		return errors.New("mutation requires a ticket")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	t := m.Ticket
	sets := make([]string, 0, len(m.Fields)+2)
	args := make([]any, 0, len(m.Fields)+3)
	seen := make(map[TicketField]bool, len(m.Fields))
	for _, f := range m.Fields {
		if seen[f] {
			continue
		}
		seen[f] = true
		v, err := f.Value(t)
		if err != nil {
			return err
		}
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s=$%d", f, len(args)))
	}
	args = append(args, t.UpdatedAt)
	sets = append(sets, fmt.Sprintf("updated_at=$%d", len(args)), "revision=revision+1")
	args = append(args, t.ID)
	query := fmt.Sprintf("UPDATE tickets SET %s WHERE id=$%d", strings.Join(sets, ", "), len(args))
	if m.ExpectedRevision != nil {
		args = append(args, *m.ExpectedRevision)
		query += fmt.Sprintf(" AND revision=$%d", len(args))
	}
	query += " RETURNING " + ticketColumns

	stored, err := scanTicket(tx.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) && m.ExpectedRevision != nil {
			var exists bool
			if existsErr := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tickets WHERE id=$1)`, t.ID).Scan(&exists); existsErr != nil {
				return existsErr
			}
			if exists {
				return ErrRevisionMismatch
			}
		}
		return err
	}

	if m.Comment != nil {
		m.Comment.TicketID = t.ID
		if err := insertComment(ctx, tx, m.Comment); err != nil {
			return err
		}
	}
	if m.History != nil {
		m.History.TicketID = t.ID
		if err := insertHistory(ctx, tx, m.History); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	*t = *stored
	return nil
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.TicketNumber,
		&ticket.Subject,
		&ticket.Description,
		&ticket.LocationID,
		&ticket.CategoryID,
		&ticket.Priority,
		&ticket.Status,
		&ticket.AssigneeID,
		&ticket.Requester.Name,
		&ticket.Requester.Email,
		&ticket.Source,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.CompletedAt,
		&ticket.PausedAt,
		&ticket.DueDate,
		&ticket.Pause,
		&ticket.Reopen,
		&ticket.Revision,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}
