package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/schoolworks/maintenance-desk/internal/domain"
	"github.com/schoolworks/maintenance-desk/internal/duedate"
	"github.com/schoolworks/maintenance-desk/internal/events"
	"github.com/schoolworks/maintenance-desk/internal/mailer"
	"github.com/schoolworks/maintenance-desk/internal/repository"
	"github.com/schoolworks/maintenance-desk/internal/repository/memory"
	"github.com/schoolworks/maintenance-desk/internal/ticketnumber"
)

var (
	staffActor = &domain.Actor{
		Identity: domain.Identity{ID: "u-staff", Email: "sam@school.org", Name: "Sam Staff"},
		Role:     domain.RoleStaff,
	}
	supervisorActor = &domain.Actor{
		Identity: domain.Identity{ID: "u-super", Email: "sue@school.org", Name: "Sue Supervisor"},
		Role:     domain.RoleSupervisor,
	}
	adminActor = &domain.Actor{
		Identity: domain.Identity{ID: "u-admin", Email: "ada@school.org", Name: "Ada Admin"},
		Role:     domain.RoleAdmin,
	}
)

const technicianID = "u-tech"

type recordingQueue struct {
	mu   sync.Mutex
	jobs []mailer.Job
}

func (q *recordingQueue) Enqueue(_ context.Context, job mailer.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) kinds() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []string
	for _, j := range q.jobs {
		out = append(out, j.Kind)
	}
	return out
}

type fixture struct {
	store         *memory.Store
	now           time.Time
	queue         *recordingQueue
	dispatcher    events.Dispatcher
	roles         *RoleService
	catalog       *CatalogService
	tickets       *TicketService
	mutations     *MutationService
	notifications *NotificationService
	analytics     *AnalyticsService
}

func (f *fixture) Now() time.Time { return f.now }

func (f *fixture) clock() time.Time { return f.now }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: memory.NewStore(),
		// a Monday
		now:        time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC),
		queue:      &recordingQueue{},
		dispatcher: events.NewInMemoryDispatcher(nil),
	}
	f.store.SetClock(f.clock)

	f.roles = NewRoleService(RoleDependencies{
		RoleRepo:            f.store.Roles(),
		BootstrapAdminEmail: "head@school.org",
	})
	f.catalog = NewCatalogService(f.store.Catalog())
	f.notifications = NewNotificationService(NotificationDependencies{
		NotificationRepo: f.store.Notifications(),
		TicketRepo:       f.store.Tickets(),
		Catalog:          f.catalog,
		Dispatcher:       f.dispatcher,
		Queue:            f.queue,
		Renderer:         mailer.NewRenderer("https://desk.school.org", time.UTC),
		AlertRecipients:  []string{"estates@school.org"},
		Clock:            f.clock,
	})
	f.notifications.RegisterHandlers()
	f.tickets = NewTicketService(TicketDependencies{
		TicketRepo:        f.store.Tickets(),
		CommentRepo:       f.store.Comments(),
		HistoryRepo:       f.store.History(),
		AttachmentRepo:    f.store.Attachments(),
		Catalog:           f.catalog,
		Numbers:           ticketnumber.NewGenerator(f.store.Counters(), f),
		DueDates:          duedate.New("", time.UTC),
		InstitutionDomain: "school.org",
		Dispatcher:        f.dispatcher,
		Clock:             f.clock,
	})
	f.mutations = NewMutationService(MutationDependencies{
		TicketRepo: f.store.Tickets(),
		RoleRepo:   f.store.Roles(),
		Notifier:   f.notifications,
		Dispatcher: f.dispatcher,
		Clock:      f.clock,
	})
	f.analytics = NewAnalyticsService(f.store.Tickets(), f.roles, f.catalog, f.clock)

	require.NoError(t, f.store.Roles().SetRole(context.Background(), &domain.RoleRecord{
		ID:    technicianID,
		Email: "terry@school.org",
		Name:  "Terry Tech",
		Role:  domain.RoleStaff,
	}))
	return f
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func (f *fixture) newTicket(t *testing.T) *domain.Ticket {
	t.Helper()
	ticket, err := f.tickets.CreateFromDashboard(context.Background(), staffActor, TicketCreateInput{
		Subject:     "Broken radiator in B12",
		Description: "Cold all morning",
	})
	require.NoError(t, err)
	return ticket
}

func (f *fixture) inProgressTicket(t *testing.T) *domain.Ticket {
	t.Helper()
	ticket := f.newTicket(t)
	tech := technicianID
	res, err := f.mutations.Assign(context.Background(), ticket.ID, &tech, adminActor, nil)
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatusInProgress, res.Ticket.Status)
	return res.Ticket
}

func (f *fixture) completedTicket(t *testing.T) *domain.Ticket {
	t.Helper()
	ticket := f.inProgressTicket(t)
	res, err := f.mutations.ApplyTransition(context.Background(), ticket.ID, "completed", TransitionPayload{}, staffActor, nil)
	require.NoError(t, err)
	return res.Ticket
}

func (f *fixture) load(t *testing.T, id string) *domain.Ticket {
	t.Helper()
	ticket, err := f.store.Tickets().GetByID(context.Background(), id)
	require.NoError(t, err)
	return ticket
}

func (f *fixture) comments(t *testing.T, id string) []domain.TicketComment {
	t.Helper()
	out, err := f.store.Comments().ListByTicket(context.Background(), id)
	require.NoError(t, err)
	return out
}

func (f *fixture) allNotifications(t *testing.T) []domain.Notification {
	t.Helper()
	out, err := f.store.Notifications().List(context.Background(), repository.NotificationFilter{Limit: 1000})
	require.NoError(t, err)
	return out
}
