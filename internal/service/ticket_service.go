package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/schoolworks/maintenance-desk/internal/auth"
	"github.com/schoolworks/maintenance-desk/internal/domain"
	"github.com/schoolworks/maintenance-desk/internal/duedate"
	"github.com/schoolworks/maintenance-desk/internal/events"
	"github.com/schoolworks/maintenance-desk/internal/ingest"
	"github.com/schoolworks/maintenance-desk/internal/repository"
	"github.com/schoolworks/maintenance-desk/internal/ticketnumber"
	apperrors "github.com/schoolworks/maintenance-desk/pkg/util"
)

const (
	maxSubjectLength = 200
	maxCommentLength = 10000
)

// TicketService coordinates ticket creation, reads and field edits. Status
// and assignee changes belong to MutationService.
type TicketService struct {
	tickets     repository.TicketRepository
	comments    repository.TicketCommentRepository
	history     repository.TicketHistoryRepository
	attachments repository.AttachmentRepository
	catalog     *CatalogService
	numbers     *ticketnumber.Generator
	due         *duedate.Calculator
	parser      *ingest.Parser
	emailDomain string
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	clock       Clock
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo        repository.TicketRepository
	CommentRepo       repository.TicketCommentRepository
	HistoryRepo       repository.TicketHistoryRepository
	AttachmentRepo    repository.AttachmentRepository
	Catalog           *CatalogService
	Numbers           *ticketnumber.Generator
	DueDates          *duedate.Calculator
	Parser            *ingest.Parser
	InstitutionDomain string
	Dispatcher        events.Dispatcher
	Logger            *zap.Logger
	Clock             Clock
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	parser := deps.Parser
	if parser == nil {
		parser = ingest.NewParser(0)
	}
	return &TicketService{
		tickets:     deps.TicketRepo,
		comments:    deps.CommentRepo,
		history:     deps.HistoryRepo,
		attachments: deps.AttachmentRepo,
		catalog:     deps.Catalog,
		numbers:     deps.Numbers,
		due:         deps.DueDates,
		parser:      parser,
		emailDomain: strings.ToLower(strings.TrimPrefix(strings.TrimSpace(deps.InstitutionDomain), "@")),
		dispatcher:  deps.Dispatcher,
		logger:      logger,
		clock:       deps.Clock,
	}
}

// TicketCreateInput describes a new ticket from the dashboard or public form.
type TicketCreateInput struct {
	Subject        string
	Description    string
	LocationID     *string
	CategoryID     *string
	Priority       domain.TicketPriority
	RequesterName  string
	RequesterEmail string
	DueDate        *time.Time
}

// EmailTicketInput is a ticket draft produced from an inbound email.
type EmailTicketInput struct {
	Subject     string
	Description string
	FromName    string
	FromAddress string
	Priority    domain.TicketPriority
	LocationID  *string
	CategoryID  *string
	Attachments []ingest.AttachmentMeta
}

// TicketListFilter narrows the dashboard list.
type TicketListFilter struct {
	AssigneeID  *string
	CategoryID  *string
	LocationID  *string
	Statuses    []domain.TicketStatus
	Priorities  []domain.TicketPriority
	SearchTerm  *string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// TicketUpdateInput holds optional field edits. A pointer to "" clears a
// location or category.
type TicketUpdateInput struct {
	Subject     *string
	Description *string
	Priority    *domain.TicketPriority
	LocationID  *string
	CategoryID  *string
	DueDate     *time.Time
}

// AttachmentInput describes a file already placed in blob storage.
type AttachmentInput struct {
	StorageKey string
	FileName   string
	MimeType   string
	SizeBytes  int64
}

// TicketDetail is the unified read model for one ticket.
type TicketDetail struct {
	Ticket       *domain.Ticket
	CategoryName string
	LocationName string
	Comments     []domain.TicketComment
	History      []domain.TicketHistory
	Attachments  []domain.Attachment
}

// CreateFromDashboard is the signed-in quick-add. The actor is the requester
// unless the form names someone else.
func (s *TicketService) CreateFromDashboard(ctx context.Context, actor *domain.Actor, input TicketCreateInput) (*domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	if strings.TrimSpace(input.RequesterName) == "" {
		input.RequesterName = actor.DisplayName()
	}
	if strings.TrimSpace(input.RequesterEmail) == "" {
		input.RequesterEmail = actor.Email
	}
	if err := s.validateCreate(input, false); err != nil {
		return nil, err
	}
	ticket := s.draft(input, domain.SourceDashboard)
	if err := s.create(ctx, ticket, actor); err != nil {
		return nil, err
	}
	return ticket, nil
}

// CreatePublic handles the unauthenticated form. Requesters must use an
// institutional address when a domain is configured.
func (s *TicketService) CreatePublic(ctx context.Context, input TicketCreateInput) (*domain.Ticket, error) {
	if err := s.validateCreate(input, true); err != nil {
		return nil, err
	}
	ticket := s.draft(input, domain.SourcePublicForm)
	if err := s.create(ctx, ticket, nil); err != nil {
		return nil, err
	}
	return ticket, nil
}

// CreateFromRawEmail parses an RFC 5322 message and files it as a ticket.
func (s *TicketService) CreateFromRawEmail(ctx context.Context, raw []byte) (*domain.Ticket, error) {
	msg, err := s.parser.Parse(raw)
	if err != nil {
		return nil, apperrors.NewValidationError("unreadable email message", map[string]any{"body": err.Error()})
	}
	return s.CreateFromEmail(ctx, EmailTicketInput{
		Subject:     msg.Subject,
		Description: msg.Body,
		FromName:    msg.FromName,
		FromAddress: msg.FromAddress,
		Attachments: msg.Attachments,
	})
}

// CreateFromEmail stores an email-derived ticket under a TK- id together with
// its attachment metadata.
func (s *TicketService) CreateFromEmail(ctx context.Context, input EmailTicketInput) (*domain.Ticket, error) {
	subject := strings.TrimSpace(input.Subject)
	if subject == "" {
		subject = "(no subject)"
	}
	description := s.parser.Clean(input.Description)
	details := map[string]any{}
	if _, err := mail.ParseAddress(strings.TrimSpace(input.FromAddress)); err != nil {
		details["from"] = "a valid sender address is required"
	}
	if input.Priority != "" && !input.Priority.Valid() {
		details["priority"] = "must be high, medium or low"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid email ticket", details)
	}

	name := strings.TrimSpace(input.FromName)
	if name == "" {
		name = strings.ToLower(strings.TrimSpace(input.FromAddress))
	}
	ticket := s.draft(TicketCreateInput{
		Subject:        truncate(subject, maxSubjectLength),
		Description:    description,
		LocationID:     input.LocationID,
		CategoryID:     input.CategoryID,
		Priority:       input.Priority,
		RequesterName:  name,
		RequesterEmail: input.FromAddress,
	}, domain.SourceEmail)
	ticket.ID = ticketnumber.EmailTicketID(s.clock.now())

	if err := s.create(ctx, ticket, nil); err != nil {
		return nil, err
	}
	for _, meta := range input.Attachments {
		record := &domain.Attachment{
			TicketID:   ticket.ID,
			StorageKey: fmt.Sprintf("email/%s/%s", ticket.ID, meta.FileName),
			FileName:   meta.FileName,
			MimeType:   meta.MimeType,
			SizeBytes:  meta.SizeBytes,
			Source:     domain.AttachmentSourceEmail,
		}
		if err := s.attachments.Create(ctx, record); err != nil {
			s.logger.Warn("email attachment record failed",
				zap.String("ticket_id", ticket.ID),
				zap.String("file", meta.FileName),
				zap.Error(err))
		}
	}
	return ticket, nil
}

// List returns dashboard tickets.
func (s *TicketService) List(ctx context.Context, actor *domain.Actor, filter TicketListFilter) ([]domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	out, err := s.tickets.List(ctx, repository.TicketFilter{
		AssigneeID:  filter.AssigneeID,
		CategoryID:  filter.CategoryID,
		LocationID:  filter.LocationID,
		Statuses:    filter.Statuses,
		Priorities:  filter.Priorities,
		SearchTerm:  filter.SearchTerm,
		CreatedFrom: filter.CreatedFrom,
		CreatedTo:   filter.CreatedTo,
		Limit:       filter.Limit,
		Offset:      filter.Offset,
	})
	if err != nil {
		return nil, apperrors.NewTransientIO("list tickets", err)
	}
	return out, nil
}

// Detail loads a ticket with its thread, history and attachments.
func (s *TicketService) Detail(ctx context.Context, actor *domain.Actor, ticketID string) (*TicketDetail, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, loadError("ticket", "load ticket", err)
	}
	detail := &TicketDetail{Ticket: ticket}
	if detail.Comments, err = s.comments.ListByTicket(ctx, ticketID); err != nil {
		return nil, apperrors.NewTransientIO("load comments", err)
	}
	if detail.History, err = s.history.ListByTicket(ctx, ticketID); err != nil {
		return nil, apperrors.NewTransientIO("load history", err)
	}
	if detail.Attachments, err = s.attachments.ListByTicket(ctx, ticketID); err != nil {
		return nil, apperrors.NewTransientIO("load attachments", err)
	}
	if s.catalog != nil {
		detail.CategoryName, detail.LocationName = s.catalog.Names(ctx, ticket.CategoryID, ticket.LocationID)
	}
	return detail, nil
}

// UpdateFields edits descriptive fields. Completed tickets are read-only for
// non-privileged actors.
func (s *TicketService) UpdateFields(ctx context.Context, actor *domain.Actor, ticketID string, input TicketUpdateInput, expectedRevision *int64) (*domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	current, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, loadError("ticket", "load ticket", err)
	}
	if current.Status == domain.TicketStatusCompleted && !auth.IsPrivileged(actor.Role) {
		return nil, apperrors.NewForbidden("completed tickets can only be edited by a supervisor or admin")
	}

	updated := current.Clone()
	var fields []string
	var columns []repository.TicketField
	details := map[string]any{}
	if input.Subject != nil {
		subject := strings.TrimSpace(*input.Subject)
		switch {
		case subject == "":
			details["subject"] = "required"
		case len(subject) > maxSubjectLength:
			details["subject"] = fmt.Sprintf("must be at most %d characters", maxSubjectLength)
		case subject != current.Subject:
			updated.Subject = subject
			fields = append(fields, "subject")
			columns = append(columns, repository.FieldSubject)
		}
	}
	if input.Description != nil {
		if desc := strings.TrimSpace(*input.Description); desc != current.Description {
			updated.Description = desc
			fields = append(fields, "description")
			columns = append(columns, repository.FieldDescription)
		}
	}
	if input.Priority != nil {
		if !input.Priority.Valid() {
			details["priority"] = "must be high, medium or low"
		} else if *input.Priority != current.Priority {
			updated.Priority = *input.Priority
			fields = append(fields, "priority")
			columns = append(columns, repository.FieldPriority)
		}
	}
	if input.LocationID != nil {
		next := emptyToNil(*input.LocationID)
		if !sameString(next, current.LocationID) {
			updated.LocationID = next
			fields = append(fields, "location")
			columns = append(columns, repository.FieldLocation)
		}
	}
	if input.CategoryID != nil {
		next := emptyToNil(*input.CategoryID)
		if !sameString(next, current.CategoryID) {
			updated.CategoryID = next
			fields = append(fields, "category")
			columns = append(columns, repository.FieldCategory)
		}
	}
	if input.DueDate != nil {
		due := input.DueDate.UTC()
		if current.DueDate == nil || !current.DueDate.Equal(due) {
			updated.DueDate = &due
			fields = append(fields, "due_date")
			columns = append(columns, repository.FieldDueDate)
		}
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid ticket update", details)
	}
	if len(fields) == 0 {
		return current, nil
	}
	if s.catalog != nil {
		var categoryID, locationID *string
		if containsField(fields, "category") {
			categoryID = updated.CategoryID
		}
		if containsField(fields, "location") {
			locationID = updated.LocationID
		}
		if err := s.catalog.Validate(ctx, categoryID, locationID); err != nil {
			return nil, err
		}
	}

	now := s.clock.now()
	updated.UpdatedAt = now
	err = s.tickets.ApplyMutation(ctx, repository.TicketMutation{
		Ticket:           updated,
		Fields:           columns,
		ExpectedRevision: expectedRevision,
		Comment: &domain.TicketComment{
			AuthorID:   actorID(actor),
			AuthorName: actor.DisplayName(),
			Body:       "Ticket details updated: " + strings.Join(fields, ", "),
			System:     true,
			CreatedAt:  now,
		},
		History: &domain.TicketHistory{
			ActorID:    actorID(actor),
			ChangeType: domain.ChangeTypeFields,
			OldValue:   fieldValues(current, fields),
			NewValue:   fieldValues(updated, fields),
			CreatedAt:  now,
		},
	})
	switch {
	case errors.Is(err, repository.ErrRevisionMismatch):
		return nil, apperrors.NewConflict("ticket was modified by someone else", nil)
	case errors.Is(err, pgx.ErrNoRows):
		return nil, apperrors.NewNotFound("ticket", nil)
	case err != nil:
		return nil, apperrors.NewTransientIO("update ticket", err)
	}

	publishEvent(ctx, s.dispatcher, s.logger, events.Event{
		Type:     events.EventTicketUpdated,
		TicketID: updated.ID,
		Actor:    eventActor(actor),
		Revision: updated.Revision,
		Payload:  events.TicketUpdatedPayload{Fields: fields},
	})
	return updated, nil
}

// AddComment appends a user comment to the thread.
func (s *TicketService) AddComment(ctx context.Context, actor *domain.Actor, ticketID, body string) (*domain.TicketComment, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.NewValidationError("comment body is required", map[string]any{"body": "required"})
	}
	if len(body) > maxCommentLength {
		return nil, apperrors.NewValidationError("comment is too long", map[string]any{"body": fmt.Sprintf("must be at most %d characters", maxCommentLength)})
	}
	if _, err := s.tickets.GetByID(ctx, ticketID); err != nil {
		return nil, loadError("ticket", "load ticket", err)
	}

	comment := &domain.TicketComment{
		TicketID:   ticketID,
		AuthorID:   actorID(actor),
		AuthorName: actor.DisplayName(),
		Body:       body,
		CreatedAt:  s.clock.now(),
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, apperrors.NewTransientIO("add comment", err)
	}
	publishEvent(ctx, s.dispatcher, s.logger, events.Event{
		Type:     events.EventTicketCommentAdded,
		TicketID: ticketID,
		Actor:    eventActor(actor),
		Payload: events.TicketCommentAddedPayload{
			CommentID:   comment.ID,
			AuthorName:  comment.AuthorName,
			BodyPreview: stringPreview(body, 120),
		},
	})
	return comment, nil
}

// AddAttachment records metadata for an uploaded file.
func (s *TicketService) AddAttachment(ctx context.Context, actor *domain.Actor, ticketID string, input AttachmentInput) (*domain.Attachment, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	details := map[string]any{}
	if strings.TrimSpace(input.StorageKey) == "" {
		details["storage_key"] = "required"
	}
	if strings.TrimSpace(input.FileName) == "" {
		details["file_name"] = "required"
	}
	if input.SizeBytes < 0 {
		details["size_bytes"] = "must not be negative"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid attachment", details)
	}
	if _, err := s.tickets.GetByID(ctx, ticketID); err != nil {
		return nil, loadError("ticket", "load ticket", err)
	}
	record := &domain.Attachment{
		TicketID:   ticketID,
		StorageKey: strings.TrimSpace(input.StorageKey),
		FileName:   strings.TrimSpace(input.FileName),
		MimeType:   strings.TrimSpace(input.MimeType),
		SizeBytes:  input.SizeBytes,
		Source:     domain.AttachmentSourceUpload,
	}
	if err := s.attachments.Create(ctx, record); err != nil {
		return nil, apperrors.NewTransientIO("add attachment", err)
	}
	return record, nil
}

func (s *TicketService) validateCreate(input TicketCreateInput, public bool) error {
	details := map[string]any{}
	subject := strings.TrimSpace(input.Subject)
	switch {
	case subject == "":
		details["subject"] = "required"
	case len(subject) > maxSubjectLength:
		details["subject"] = fmt.Sprintf("must be at most %d characters", maxSubjectLength)
	}
	if public && strings.TrimSpace(input.Description) == "" {
		details["description"] = "required"
	}
	if input.Priority != "" && !input.Priority.Valid() {
		details["priority"] = "must be high, medium or low"
	}
	if public && strings.TrimSpace(input.RequesterName) == "" {
		details["requester_name"] = "required"
	}
	email := strings.ToLower(strings.TrimSpace(input.RequesterEmail))
	switch {
	case email == "" && public:
		details["requester_email"] = "required"
	case email != "":
		if _, err := mail.ParseAddress(email); err != nil {
			details["requester_email"] = "must be a valid email address"
		} else if public && s.emailDomain != "" && !strings.HasSuffix(email, "@"+s.emailDomain) {
			details["requester_email"] = "must be a " + s.emailDomain + " address"
		}
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid ticket", details)
	}
	return nil
}

func (s *TicketService) draft(input TicketCreateInput, source domain.TicketSource) *domain.Ticket {
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	return &domain.Ticket{
		Subject:     strings.TrimSpace(input.Subject),
		Description: strings.TrimSpace(input.Description),
		LocationID:  emptyToNil(derefString(input.LocationID)),
		CategoryID:  emptyToNil(derefString(input.CategoryID)),
		Priority:    priority,
		Status:      domain.TicketStatusNew,
		Requester: domain.Requester{
			Name:  strings.TrimSpace(input.RequesterName),
			Email: strings.ToLower(strings.TrimSpace(input.RequesterEmail)),
		},
		Source:  source,
		DueDate: input.DueDate,
	}
}

// create numbers, dates and stores a drafted ticket with its created entry.
func (s *TicketService) create(ctx context.Context, ticket *domain.Ticket, actor *domain.Actor) error {
	if s.catalog != nil {
		if err := s.catalog.Validate(ctx, ticket.CategoryID, ticket.LocationID); err != nil {
			return err
		}
	}
	number, err := s.numbers.Next(ctx)
	if err != nil {
		s.logger.Error("ticket number allocation failed", zap.Error(err))
		return apperrors.NewTransientIO("allocate ticket number", err)
	}

	now := s.clock.now()
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	ticket.TicketNumber = number
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	if ticket.DueDate == nil && s.due != nil {
		due := s.due.For(ticket.Priority, now).UTC()
		ticket.DueDate = &due
	}

	history := &domain.TicketHistory{
		ActorID:    actorID(actor),
		ChangeType: domain.ChangeTypeCreated,
		NewValue: map[string]any{
			"status":        ticket.Status,
			"source":        ticket.Source,
			"ticket_number": ticket.TicketNumber,
		},
		CreatedAt: now,
	}
	if err := s.tickets.Create(ctx, ticket, history); err != nil {
		s.logger.Error("ticket create failed", zap.String("source", string(ticket.Source)), zap.Error(err))
		return apperrors.NewTransientIO("create ticket", err)
	}

	s.logger.Info("ticket created",
		zap.String("ticket_id", ticket.ID),
		zap.String("ticket_number", ticket.TicketNumber),
		zap.String("source", string(ticket.Source)))
	publishEvent(ctx, s.dispatcher, s.logger, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    eventActor(actor),
		Revision: ticket.Revision,
		Payload: events.TicketCreatedPayload{
			TicketNumber: ticket.TicketNumber,
			Subject:      ticket.Subject,
			Priority:     ticket.Priority,
			Source:       ticket.Source,
		},
	})
	return nil
}

func fieldValues(t *domain.Ticket, fields []string) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		switch f {
		case "subject":
			out[f] = t.Subject
		case "description":
			out[f] = stringPreview(t.Description, 200)
		case "priority":
			out[f] = t.Priority
		case "location":
			out[f] = derefString(t.LocationID)
		case "category":
			out[f] = derefString(t.CategoryID)
		case "due_date":
			if t.DueDate != nil {
				out[f] = t.DueDate.Format(time.RFC3339)
			} else {
				out[f] = ""
			}
		}
	}
	return out
}

func containsField(fields []string, name string) bool {
	for _, f := range fields {
		if f == name {
			return true
		}
	}
	return false
}

func emptyToNil(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func truncate(v string, max int) string {
	if len(v) <= max {
		return v
	}
	return stringPreview(v, max-1)
}
