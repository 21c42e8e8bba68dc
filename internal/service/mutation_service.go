package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/schoolworks/maintenance-desk/internal/auth"
	"github.com/schoolworks/maintenance-desk/internal/domain"
	"github.com/schoolworks/maintenance-desk/internal/events"
	"github.com/schoolworks/maintenance-desk/internal/lifecycle"
	"github.com/schoolworks/maintenance-desk/internal/observability"
	"github.com/schoolworks/maintenance-desk/internal/repository"
	apperrors "github.com/schoolworks/maintenance-desk/pkg/util"
)

// MutationService is the only writer of ticket status, assignee and the
// pause and reopen blocks.
type MutationService struct {
	tickets    repository.TicketRepository
	roles      repository.RoleRepository
	notifier   *NotificationService
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	clock      Clock
}

// MutationDependencies bundles collaborators for the mutation service.
type MutationDependencies struct {
	TicketRepo repository.TicketRepository
	RoleRepo   repository.RoleRepository
	Notifier   *NotificationService
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Clock      Clock
}

// NewMutationService constructs the service.
func NewMutationService(deps MutationDependencies) *MutationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MutationService{
		tickets:    deps.TicketRepo,
		roles:      deps.RoleRepo,
		notifier:   deps.Notifier,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		clock:      deps.Clock,
	}
}

// TransitionPayload carries event specific input.
type TransitionPayload struct {
	Reason            string
	ReasonCode        string
	Category          string
	EstimatedDuration string
	NotifySupervisor  bool
	TargetStatus      domain.TicketStatus
	Comment           string
}

// MutationResult reports what a mutation did. Changed is false when the
// request was accepted but nothing needed writing.
type MutationResult struct {
	Ticket   *domain.Ticket
	Changed  bool
	Notified []domain.RecipientRole
}

// change is a pending write built by one of the event appliers.
type change struct {
	ticket     *domain.Ticket
	fields     []repository.TicketField
	comment    string
	changeType domain.TicketChangeType
	oldValue   map[string]any
	newValue   map[string]any
	recipients []domain.RecipientRole
	notice     string
}

// ApplyTransition runs a lifecycle event against a ticket. Authorization is
// checked before anything is written; a stale expectedRevision yields a
// conflict with no writes.
func (s *MutationService) ApplyTransition(ctx context.Context, ticketID string, event lifecycle.Event, payload TransitionPayload, actor *domain.Actor, expectedRevision *int64) (*MutationResult, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	if lifecycle.IsAssignmentEvent(event) {
		return nil, apperrors.NewValidationError("assignment changes go through the assignee endpoint", map[string]any{"event": string(event)})
	}

	current, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, loadError("ticket", "load ticket", err)
	}
	if lifecycle.RequiresPrivilege(event, current.Status) && !auth.IsPrivileged(actor.Role) {
		s.metrics.RecordTransition(string(event), "forbidden")
		return nil, apperrors.NewForbidden(fmt.Sprintf("%s requires a supervisor or admin", event))
	}

	var ch *change
	switch event {
	case lifecycle.EventPaused:
		ch, err = s.pause(current, payload)
	case lifecycle.EventResumed:
		ch, err = s.resume(current)
	case lifecycle.EventCompleted:
		ch, err = s.complete(current)
	case lifecycle.EventReopenRequested:
		ch, err = s.requestReopen(current, payload, actor)
	case lifecycle.EventReopened:
		ch, err = s.reopen(current)
	case lifecycle.EventReopenRejected:
		ch, err = s.rejectReopen(current)
	case lifecycle.EventOverride:
		ch, err = s.override(current, payload)
	default:
		return nil, apperrors.NewValidationError("unknown event", map[string]any{"event": string(event)})
	}
	if err != nil {
		s.metrics.RecordTransition(string(event), "rejected")
		return nil, transitionError(err)
	}
	if ch == nil {
		s.metrics.RecordTransition(string(event), "noop")
		return &MutationResult{Ticket: current}, nil
	}

	if strings.TrimSpace(payload.Comment) != "" {
		ch.comment += "\n\n" + strings.TrimSpace(payload.Comment)
	}
	if err := s.commit(ctx, ch, actor, expectedRevision); err != nil {
		s.metrics.RecordTransition(string(event), "failed")
		return nil, err
	}
	s.metrics.RecordTransition(string(event), "applied")

	result := &MutationResult{Ticket: ch.ticket, Changed: true}
	if len(ch.recipients) > 0 && s.notifier != nil {
		result.Notified = s.notifier.FanOut(ctx, ch.ticket.ID, ch.recipients, ch.notice)
	}
	s.publishStatusChange(ctx, current, ch.ticket, actor, payload.Comment)
	if event == lifecycle.EventReopenRequested {
		publishEvent(ctx, s.dispatcher, s.logger, events.Event{
			Type:     events.EventReopenRequested,
			TicketID: ch.ticket.ID,
			Actor:    eventActor(actor),
			Revision: ch.ticket.Revision,
		})
	}
	return result, nil
}

// Assign changes the assignee and derives the assigned or unassigned event.
// Nothing is written when the assignee is unchanged.
func (s *MutationService) Assign(ctx context.Context, ticketID string, assigneeID *string, actor *domain.Actor, expectedRevision *int64) (*MutationResult, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	if !auth.IsPrivileged(actor.Role) {
		return nil, apperrors.NewForbidden("supervisor or admin role required")
	}
	if assigneeID != nil && strings.TrimSpace(*assigneeID) == "" {
		assigneeID = nil
	}

	current, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, loadError("ticket", "load ticket", err)
	}
	if sameString(current.AssigneeID, assigneeID) {
		return &MutationResult{Ticket: current}, nil
	}

	event := lifecycle.EventUnassigned
	narration := "Ticket unassigned"
	if assigneeID != nil {
		event = lifecycle.EventAssigned
		record, err := s.roles.Get(ctx, repository.RoleTableStaff, *assigneeID)
		if err != nil {
			return nil, loadError("staff member", "load staff member", err)
		}
		name := record.Name
		if name == "" {
			name = record.Email
		}
		narration = "Assigned to " + name
	}

	next, err := lifecycle.Next(current.Status, event)
	if err != nil {
		s.metrics.RecordTransition(string(event), "rejected")
		return nil, transitionError(err)
	}
	if next != current.Status {
		narration += fmt.Sprintf("; status changed from %s to %s", current.Status, next)
	}

	updated := current.Clone()
	updated.AssigneeID = assigneeID
	updated.Status = next
	ch := &change{
		ticket:     updated,
		fields:     []repository.TicketField{repository.FieldAssignee, repository.FieldStatus},
		comment:    narration,
		changeType: domain.ChangeTypeAssignee,
		oldValue:   map[string]any{"assignee_id": derefString(current.AssigneeID), "status": current.Status},
		newValue:   map[string]any{"assignee_id": derefString(assigneeID), "status": next},
	}
	if err := s.commit(ctx, ch, actor, expectedRevision); err != nil {
		s.metrics.RecordTransition(string(event), "failed")
		return nil, err
	}
	s.metrics.RecordTransition(string(event), "applied")

	publishEvent(ctx, s.dispatcher, s.logger, events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: updated.ID,
		Actor:    eventActor(actor),
		Revision: updated.Revision,
		Payload:  events.TicketAssignedPayload{OldAssigneeID: current.AssigneeID, AssigneeID: assigneeID},
	})
	s.publishStatusChange(ctx, current, updated, actor, "")
	return &MutationResult{Ticket: updated, Changed: true}, nil
}

func (s *MutationService) pause(t *domain.Ticket, p TransitionPayload) (*change, error) {
	reason := strings.TrimSpace(p.Reason)
	if reason == "" {
		return nil, apperrors.NewValidationError("pause reason is required", map[string]any{"reason": "required"})
	}
	next, err := lifecycle.Next(t.Status, lifecycle.EventPaused)
	if err != nil {
		return nil, err
	}
	now := s.clock.now()
	updated := t.Clone()
	updated.Status = next
	updated.PausedAt = &now
	updated.Pause = &domain.PauseInfo{
		Reason:            reason,
		ReasonCode:        strings.TrimSpace(p.ReasonCode),
		Category:          strings.TrimSpace(p.Category),
		EstimatedDuration: strings.TrimSpace(p.EstimatedDuration),
		NotifySupervisor:  p.NotifySupervisor,
	}
	return &change{
		ticket:     updated,
		fields:     []repository.TicketField{repository.FieldStatus, repository.FieldPausedAt, repository.FieldPause},
		comment:    "Ticket paused: " + reason,
		changeType: domain.ChangeTypeStatus,
		oldValue:   map[string]any{"status": t.Status},
		newValue:   map[string]any{"status": next, "pause_reason": reason},
		recipients: ComputeRecipients(PauseEvent{
			NotifySupervisor: p.NotifySupervisor,
			Category:         p.Category,
			ReasonCode:       p.ReasonCode,
		}),
		notice: fmt.Sprintf("Ticket %s paused: %s", t.TicketNumber, reason),
	}, nil
}

func (s *MutationService) resume(t *domain.Ticket) (*change, error) {
	next, err := lifecycle.Next(t.Status, lifecycle.EventResumed)
	if err != nil {
		return nil, err
	}
	updated := t.Clone()
	updated.Status = next
	updated.PausedAt = nil
	updated.Pause = nil
	return &change{
		ticket:     updated,
		fields:     []repository.TicketField{repository.FieldStatus, repository.FieldPausedAt, repository.FieldPause},
		comment:    "Ticket resumed",
		changeType: domain.ChangeTypeStatus,
		oldValue:   map[string]any{"status": t.Status},
		newValue:   map[string]any{"status": next},
	}, nil
}

func (s *MutationService) complete(t *domain.Ticket) (*change, error) {
	next, err := lifecycle.Next(t.Status, lifecycle.EventCompleted)
	if err != nil {
		return nil, err
	}
	now := s.clock.now()
	updated := t.Clone()
	updated.Status = next
	updated.CompletedAt = &now
	updated.Reopen.Requested = false
	return &change{
		ticket:     updated,
		fields:     []repository.TicketField{repository.FieldStatus, repository.FieldCompletedAt, repository.FieldReopen},
		comment:    "Ticket marked as completed",
		changeType: domain.ChangeTypeStatus,
		oldValue:   map[string]any{"status": t.Status},
		newValue:   map[string]any{"status": next},
	}, nil
}

// requestReopen raises the reopen flag on any status the transition table
// accepts it for; the status itself is unchanged. A repeat while a request is
// pending changes nothing.
func (s *MutationService) requestReopen(t *domain.Ticket, p TransitionPayload, actor *domain.Actor) (*change, error) {
	if _, err := lifecycle.Next(t.Status, lifecycle.EventReopenRequested); err != nil {
		return nil, err
	}
	if !lifecycle.CanRequestReopen(t) {
		return nil, nil
	}
	now := s.clock.now()
	updated := t.Clone()
	updated.Reopen.Requested = true
	updated.Reopen.RequestedAt = &now
	updated.Reopen.RequestedBy = actorID(actor)

	comment := "Reopen requested by " + actor.DisplayName()
	if reason := strings.TrimSpace(p.Reason); reason != "" {
		comment += ": " + reason
	}
	return &change{
		ticket:     updated,
		fields:     []repository.TicketField{repository.FieldReopen},
		comment:    comment,
		changeType: domain.ChangeTypeReopen,
		oldValue:   map[string]any{"reopen_requested": false},
		newValue:   map[string]any{"reopen_requested": true, "reason": strings.TrimSpace(p.Reason)},
		recipients: []domain.RecipientRole{domain.RecipientSupervisor},
		notice:     fmt.Sprintf("Reopen requested for ticket %s by %s", t.TicketNumber, actor.DisplayName()),
	}, nil
}

func (s *MutationService) reopen(t *domain.Ticket) (*change, error) {
	next, err := lifecycle.Next(t.Status, lifecycle.EventReopened)
	if err != nil {
		return nil, err
	}
	now := s.clock.now()
	updated := t.Clone()
	updated.Status = next
	updated.CompletedAt = nil
	updated.Reopen.Requested = false
	updated.Reopen.ReopenedAt = &now
	return &change{
		ticket:     updated,
		fields:     []repository.TicketField{repository.FieldStatus, repository.FieldCompletedAt, repository.FieldReopen},
		comment:    "Ticket reopened",
		changeType: domain.ChangeTypeStatus,
		oldValue:   map[string]any{"status": t.Status, "reopen_requested": t.Reopen.Requested},
		newValue:   map[string]any{"status": next, "reopen_requested": false},
	}, nil
}

func (s *MutationService) rejectReopen(t *domain.Ticket) (*change, error) {
	if _, err := lifecycle.Next(t.Status, lifecycle.EventReopenRejected); err != nil {
		return nil, err
	}
	if !t.Reopen.Requested {
		return nil, apperrors.NewConflict("no reopen request is pending", nil)
	}
	now := s.clock.now()
	updated := t.Clone()
	updated.Reopen.Requested = false
	updated.Reopen.RejectedAt = &now
	return &change{
		ticket:     updated,
		fields:     []repository.TicketField{repository.FieldReopen},
		comment:    "Reopen request rejected",
		changeType: domain.ChangeTypeReopen,
		oldValue:   map[string]any{"reopen_requested": true},
		newValue:   map[string]any{"reopen_requested": false, "rejected": true},
	}, nil
}

// override applies a status picked directly from the dropdown while keeping
// the completedAt and pausedAt invariants.
func (s *MutationService) override(t *domain.Ticket, p TransitionPayload) (*change, error) {
	target, err := lifecycle.Override(t.Status, p.TargetStatus)
	if err != nil {
		return nil, err
	}
	if target == t.Status {
		return nil, nil
	}
	now := s.clock.now()
	updated := t.Clone()
	updated.Status = target

	if target == domain.TicketStatusCompleted {
		updated.CompletedAt = &now
	} else {
		updated.CompletedAt = nil
		updated.Reopen.Requested = false
	}
	if target == domain.TicketStatusPaused {
		reason := strings.TrimSpace(p.Reason)
		if reason == "" {
			reason = "Status set manually"
		}
		updated.PausedAt = &now
		updated.Pause = &domain.PauseInfo{Reason: reason}
	} else {
		updated.PausedAt = nil
		updated.Pause = nil
	}
	return &change{
		ticket: updated,
		fields: []repository.TicketField{
			repository.FieldStatus,
			repository.FieldCompletedAt,
			repository.FieldPausedAt,
			repository.FieldPause,
			repository.FieldReopen,
		},
		comment:    fmt.Sprintf("Status changed from %s to %s", t.Status, target),
		changeType: domain.ChangeTypeStatus,
		oldValue:   map[string]any{"status": t.Status},
		newValue:   map[string]any{"status": target},
	}, nil
}

func (s *MutationService) commit(ctx context.Context, ch *change, actor *domain.Actor, expectedRevision *int64) error {
	now := s.clock.now()
	ch.ticket.UpdatedAt = now
	err := s.tickets.ApplyMutation(ctx, repository.TicketMutation{
		Ticket:           ch.ticket,
		Fields:           ch.fields,
		ExpectedRevision: expectedRevision,
		Comment: &domain.TicketComment{
			AuthorID:   actorID(actor),
			AuthorName: actor.DisplayName(),
			Body:       ch.comment,
			System:     true,
			CreatedAt:  now,
		},
		History: &domain.TicketHistory{
			ActorID:    actorID(actor),
			ChangeType: ch.changeType,
			OldValue:   ch.oldValue,
			NewValue:   ch.newValue,
			CreatedAt:  now,
		},
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrRevisionMismatch):
		return apperrors.NewConflict("ticket was modified by someone else", map[string]any{"expected_revision": *expectedRevision})
	case errors.Is(err, pgx.ErrNoRows):
		return apperrors.NewNotFound("ticket", nil)
	default:
		s.logger.Error("ticket mutation failed", zap.String("ticket_id", ch.ticket.ID), zap.Error(err))
		return apperrors.NewTransientIO("update ticket", err)
	}
}

func (s *MutationService) publishStatusChange(ctx context.Context, before, after *domain.Ticket, actor *domain.Actor, comment string) {
	if before.Status == after.Status {
		return
	}
	publishEvent(ctx, s.dispatcher, s.logger, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: after.ID,
		Actor:    eventActor(actor),
		Revision: after.Revision,
		Payload: events.TicketStatusChangedPayload{
			OldStatus:      before.Status,
			NewStatus:      after.Status,
			TicketNumber:   after.TicketNumber,
			Subject:        after.Subject,
			RequesterName:  after.Requester.Name,
			RequesterEmail: after.Requester.Email,
			Comment:        strings.TrimSpace(comment),
		},
	})
}

// transitionError maps state machine rejections to conflicts and passes
// domain errors through.
func transitionError(err error) error {
	var te *lifecycle.TransitionError
	if errors.As(err, &te) {
		return apperrors.NewConflict(err.Error(), map[string]any{"status": te.From, "event": te.Event})
	}
	return err
}
