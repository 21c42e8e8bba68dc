package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/schoolworks/maintenance-desk/internal/auth"
	"github.com/schoolworks/maintenance-desk/internal/domain"
	"github.com/schoolworks/maintenance-desk/internal/events"
	"github.com/schoolworks/maintenance-desk/internal/mailer"
	"github.com/schoolworks/maintenance-desk/internal/observability"
	"github.com/schoolworks/maintenance-desk/internal/repository"
	apperrors "github.com/schoolworks/maintenance-desk/pkg/util"
)

// Email job kinds.
const (
	EmailKindAlert   = "ticket_alert"
	EmailKindStatus  = "status_update"
	EmailKindOverdue = "overdue_digest"
)

// PauseEvent carries the pause attributes that drive routing.
type PauseEvent struct {
	NotifySupervisor bool
	Category         string
	ReasonCode       string
}

// ComputeRecipients maps a pause to the set of roles to notify, in a fixed
// order. An empty event yields no recipients.
func ComputeRecipients(p PauseEvent) []domain.RecipientRole {
	var out []domain.RecipientRole
	if p.NotifySupervisor {
		out = append(out, domain.RecipientSupervisor)
	}
	if strings.EqualFold(strings.TrimSpace(p.Category), domain.PauseCategoryProcurement) {
		out = append(out, domain.RecipientEstateManager)
	}
	if strings.EqualFold(strings.TrimSpace(p.ReasonCode), domain.PauseReasonBudgetApproval) {
		out = append(out, domain.RecipientFinance)
	}
	return out
}

// NotificationService writes role notifications and sends ticket emails.
type NotificationService struct {
	notifications   repository.NotificationRepository
	tickets         repository.TicketRepository
	catalog         *CatalogService
	dispatcher      events.Dispatcher
	queue           mailer.Queue
	renderer        *mailer.Renderer
	alertRecipients []string
	metrics         *observability.Metrics
	logger          *zap.Logger
	clock           Clock
}

// NotificationDependencies bundles collaborators.
type NotificationDependencies struct {
	NotificationRepo repository.NotificationRepository
	TicketRepo       repository.TicketRepository
	Catalog          *CatalogService
	Dispatcher       events.Dispatcher
	Queue            mailer.Queue
	Renderer         *mailer.Renderer
	AlertRecipients  []string
	Metrics          *observability.Metrics
	Logger           *zap.Logger
	Clock            Clock
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		notifications:   deps.NotificationRepo,
		tickets:         deps.TicketRepo,
		catalog:         deps.Catalog,
		dispatcher:      deps.Dispatcher,
		queue:           deps.Queue,
		renderer:        deps.Renderer,
		alertRecipients: deps.AlertRecipients,
		metrics:         deps.Metrics,
		logger:          logger,
		clock:           deps.Clock,
	}
}

// RegisterHandlers subscribes the email triggers to ticket events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.handleTicketStatusChanged)
}

// FanOut writes one notification per role. Failures are logged and skipped;
// the roles actually written are returned.
func (n *NotificationService) FanOut(ctx context.Context, ticketID string, roles []domain.RecipientRole, message string) []domain.RecipientRole {
	var written []domain.RecipientRole
	for _, role := range roles {
		tid := ticketID
		record := &domain.Notification{TicketID: &tid, TargetRole: role, Message: message}
		if err := n.notifications.Create(ctx, record); err != nil {
			n.metrics.RecordNotification(string(role), false)
			n.logger.Warn("notification write failed",
				zap.String("ticket_id", ticketID),
				zap.String("role", string(role)),
				zap.Error(err))
			continue
		}
		n.metrics.RecordNotification(string(role), true)
		written = append(written, role)
	}
	return written
}

// ListFilter narrows a notification feed.
type ListFilter struct {
	Role       *domain.RecipientRole
	UnreadOnly bool
	Limit      int
}

// List returns notifications for privileged actors.
func (n *NotificationService) List(ctx context.Context, actor *domain.Actor, filter ListFilter) ([]domain.Notification, error) {
	if actor == nil || !auth.IsPrivileged(actor.Role) {
		return nil, apperrors.NewForbidden("supervisor or admin role required")
	}
	out, err := n.notifications.List(ctx, repository.NotificationFilter{
		TargetRole: filter.Role,
		UnreadOnly: filter.UnreadOnly,
		Limit:      filter.Limit,
	})
	if err != nil {
		return nil, apperrors.NewTransientIO("list notifications", err)
	}
	return out, nil
}

// MarkRead flags a notification as read.
func (n *NotificationService) MarkRead(ctx context.Context, actor *domain.Actor, id string) error {
	if actor == nil || !auth.IsPrivileged(actor.Role) {
		return apperrors.NewForbidden("supervisor or admin role required")
	}
	if err := n.notifications.MarkRead(ctx, id); err != nil {
		return loadError("notification", "mark notification read", err)
	}
	return nil
}

// SweepOverdue notifies supervisors once per day about each open ticket past
// its due date and emails a digest of the newly flagged tickets.
func (n *NotificationService) SweepOverdue(ctx context.Context) (int, error) {
	now := n.clock.now()
	open, err := n.tickets.List(ctx, repository.TicketFilter{
		Statuses:  []domain.TicketStatus{domain.TicketStatusNew, domain.TicketStatusInProgress, domain.TicketStatusPaused},
		DueBefore: &now,
		Limit:     500,
	})
	if err != nil {
		return 0, apperrors.NewTransientIO("list overdue tickets", err)
	}

	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	var flagged []domain.Ticket
	for _, t := range open {
		if !t.IsOverdue(now) {
			continue
		}
		exists, err := n.notifications.ExistsSince(ctx, t.ID, domain.RecipientSupervisor, startOfDay)
		if err != nil {
			n.logger.Warn("overdue check failed", zap.String("ticket_id", t.ID), zap.Error(err))
			continue
		}
		if exists {
			continue
		}
		msg := fmt.Sprintf("Ticket %s (%s) is overdue", t.TicketNumber, t.Subject)
		if len(n.FanOut(ctx, t.ID, []domain.RecipientRole{domain.RecipientSupervisor}, msg)) > 0 {
			flagged = append(flagged, t)
		}
	}

	if len(flagged) > 0 && len(n.alertRecipients) > 0 && n.renderer != nil {
		subject, html, err := n.renderer.OverdueDigest(flagged)
		if err != nil {
			n.logger.Warn("overdue digest render failed", zap.Error(err))
		} else {
			n.enqueue(ctx, EmailKindOverdue, "", n.alertRecipients, subject, html)
		}
	}
	n.logger.Info("overdue sweep finished", zap.Int("open_overdue", len(open)), zap.Int("flagged", len(flagged)))
	return len(flagged), nil
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok || payload.Source != domain.SourcePublicForm {
		return nil
	}
	if len(n.alertRecipients) == 0 || n.renderer == nil {
		n.logger.Debug("no alert recipients configured", zap.String("ticket_id", event.TicketID))
		return nil
	}
	ticket, err := n.tickets.GetByID(ctx, event.TicketID)
	if err != nil {
		return fmt.Errorf("load ticket for alert: %w", err)
	}
	var category, location string
	if n.catalog != nil {
		category, location = n.catalog.Names(ctx, ticket.CategoryID, ticket.LocationID)
	}
	subject, html, err := n.renderer.Alert(ticket, location, category)
	if err != nil {
		return err
	}
	n.enqueue(ctx, EmailKindAlert, ticket.ID, n.alertRecipients, subject, html)
	return nil
}

// handleTicketStatusChanged emails the requester when work starts or finishes.
func (n *NotificationService) handleTicketStatusChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketStatusChangedPayload)
	if !ok || payload.OldStatus == payload.NewStatus {
		return nil
	}
	if payload.NewStatus != domain.TicketStatusInProgress && payload.NewStatus != domain.TicketStatusCompleted {
		return nil
	}
	if strings.TrimSpace(payload.RequesterEmail) == "" || n.renderer == nil {
		return nil
	}
	subject, html, err := n.renderer.StatusUpdate(payload.TicketNumber, payload.Subject, payload.RequesterName, payload.NewStatus, payload.Comment)
	if err != nil {
		return err
	}
	n.enqueue(ctx, EmailKindStatus, event.TicketID, []string{payload.RequesterEmail}, subject, html)
	return nil
}

func (n *NotificationService) enqueue(ctx context.Context, kind, ticketID string, to []string, subject, html string) {
	if n.queue == nil {
		return
	}
	err := n.queue.Enqueue(ctx, mailer.Job{
		Kind:     kind,
		TicketID: ticketID,
		Message:  mailer.Message{To: to, Subject: subject, HTML: html},
		QueuedAt: n.clock.now(),
	})
	n.metrics.RecordEmail(kind, err == nil)
	if err != nil {
		n.logger.Warn("email enqueue failed",
			zap.String("kind", kind),
			zap.String("ticket_id", ticketID),
			zap.Error(err))
	}
}
