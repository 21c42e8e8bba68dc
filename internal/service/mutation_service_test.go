package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolworks/maintenance-desk/internal/domain"
	"github.com/schoolworks/maintenance-desk/internal/lifecycle"
	"github.com/schoolworks/maintenance-desk/internal/repository"
	apperrors "github.com/schoolworks/maintenance-desk/pkg/util"
)

func TestAssignStartsWorkAndNarrates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.newTicket(t)
	require.Equal(t, domain.TicketStatusNew, ticket.Status)
	require.Nil(t, ticket.AssigneeID)

	tech := technicianID
	res, err := f.mutations.Assign(ctx, ticket.ID, &tech, adminActor, nil)
	require.NoError(t, err)
	assert.True(t, res.Changed)

	stored := f.load(t, ticket.ID)
	assert.Equal(t, domain.TicketStatusInProgress, stored.Status)
	require.NotNil(t, stored.AssigneeID)
	assert.Equal(t, technicianID, *stored.AssigneeID)
	assert.Equal(t, int64(2), stored.Revision)

	comments := f.comments(t, ticket.ID)
	require.Len(t, comments, 1)
	assert.True(t, comments[0].System)
	assert.Contains(t, comments[0].Body, "Assigned to Terry Tech")
	assert.Contains(t, comments[0].Body, "from new to in-progress")

	history, err := f.store.History().ListByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, domain.ChangeTypeCreated, history[0].ChangeType)
	assert.Equal(t, domain.ChangeTypeAssignee, history[1].ChangeType)
}

func TestAssignSameAssigneeWritesNothing(t *testing.T) {
	f := newFixture(t)
	ticket := f.inProgressTicket(t)

	tech := technicianID
	res, err := f.mutations.Assign(context.Background(), ticket.ID, &tech, adminActor, nil)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Len(t, f.comments(t, ticket.ID), 1)
	assert.Equal(t, ticket.Revision, f.load(t, ticket.ID).Revision)
}

func TestUnassignReturnsTicketToNew(t *testing.T) {
	f := newFixture(t)
	ticket := f.inProgressTicket(t)

	res, err := f.mutations.Assign(context.Background(), ticket.ID, nil, supervisorActor, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusNew, res.Ticket.Status)
	assert.Nil(t, f.load(t, ticket.ID).AssigneeID)
}

func TestAssignOnPausedTicketKeepsStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.inProgressTicket(t)
	_, err := f.mutations.ApplyTransition(ctx, ticket.ID, lifecycle.EventPaused, TransitionPayload{Reason: "awaiting_parts"}, staffActor, nil)
	require.NoError(t, err)

	res, err := f.mutations.Assign(ctx, ticket.ID, nil, adminActor, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusPaused, res.Ticket.Status)
	assert.Nil(t, res.Ticket.AssigneeID)
}

func TestAssignGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.newTicket(t)
	tech := technicianID

	_, err := f.mutations.Assign(ctx, ticket.ID, &tech, staffActor, nil)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden))

	ghost := "u-ghost"
	_, err = f.mutations.Assign(ctx, ticket.ID, &ghost, adminActor, nil)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))

	_, err = f.mutations.Assign(ctx, "missing", &tech, adminActor, nil)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))

	assert.Equal(t, domain.TicketStatusNew, f.load(t, ticket.ID).Status)
	assert.Empty(t, f.comments(t, ticket.ID))
}

func TestPauseAndResume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.inProgressTicket(t)

	res, err := f.mutations.ApplyTransition(ctx, ticket.ID, lifecycle.EventPaused, TransitionPayload{
		Reason:           "awaiting_parts",
		Category:         "procurement",
		NotifySupervisor: true,
	}, staffActor, nil)
	require.NoError(t, err)
	assert.Equal(t, []domain.RecipientRole{domain.RecipientSupervisor, domain.RecipientEstateManager}, res.Notified)

	stored := f.load(t, ticket.ID)
	assert.Equal(t, domain.TicketStatusPaused, stored.Status)
	require.NotNil(t, stored.Pause)
	assert.Equal(t, "awaiting_parts", stored.Pause.Reason)
	assert.NotNil(t, stored.PausedAt)

	var roles []domain.RecipientRole
	for _, n := range f.allNotifications(t) {
		require.NotNil(t, n.TicketID)
		assert.Equal(t, ticket.ID, *n.TicketID)
		roles = append(roles, n.TargetRole)
	}
	assert.ElementsMatch(t, []domain.RecipientRole{domain.RecipientSupervisor, domain.RecipientEstateManager}, roles)

	res, err = f.mutations.ApplyTransition(ctx, ticket.ID, lifecycle.EventResumed, TransitionPayload{}, staffActor, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Notified)

	stored = f.load(t, ticket.ID)
	assert.Equal(t, domain.TicketStatusInProgress, stored.Status)
	assert.Nil(t, stored.PausedAt)
	assert.Nil(t, stored.Pause)
}

func TestPauseRequiresReason(t *testing.T) {
	f := newFixture(t)
	ticket := f.inProgressTicket(t)

	_, err := f.mutations.ApplyTransition(context.Background(), ticket.ID, lifecycle.EventPaused, TransitionPayload{Reason: "  "}, staffActor, nil)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
	assert.Equal(t, domain.TicketStatusInProgress, f.load(t, ticket.ID).Status)
}

func TestUntabulatedTransitionIsConflict(t *testing.T) {
	f := newFixture(t)
	ticket := f.newTicket(t)

	_, err := f.mutations.ApplyTransition(context.Background(), ticket.ID, lifecycle.EventCompleted, TransitionPayload{}, staffActor, nil)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConflict))
	assert.Equal(t, domain.TicketStatusNew, f.load(t, ticket.ID).Status)
	assert.Empty(t, f.comments(t, ticket.ID))
}

func TestAssignmentEventsAreRejectedOnTransitionEndpoint(t *testing.T) {
	f := newFixture(t)
	ticket := f.newTicket(t)

	_, err := f.mutations.ApplyTransition(context.Background(), ticket.ID, lifecycle.EventAssigned, TransitionPayload{}, adminActor, nil)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
}

func TestReopenGate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.completedTicket(t)
	require.NotNil(t, ticket.CompletedAt)

	res, err := f.mutations.ApplyTransition(ctx, ticket.ID, lifecycle.EventReopenRequested, TransitionPayload{Reason: "Still dripping"}, staffActor, nil)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, []domain.RecipientRole{domain.RecipientSupervisor}, res.Notified)

	stored := f.load(t, ticket.ID)
	assert.Equal(t, domain.TicketStatusCompleted, stored.Status)
	assert.True(t, stored.Reopen.Requested)
	require.NotNil(t, stored.Reopen.RequestedBy)
	assert.Equal(t, staffActor.ID, *stored.Reopen.RequestedBy)

	_, err = f.mutations.ApplyTransition(ctx, ticket.ID, lifecycle.EventReopened, TransitionPayload{}, supervisorActor, nil)
	require.NoError(t, err)

	stored = f.load(t, ticket.ID)
	assert.Equal(t, domain.TicketStatusInProgress, stored.Status)
	assert.Nil(t, stored.CompletedAt)
	assert.False(t, stored.Reopen.Requested)
	assert.NotNil(t, stored.Reopen.ReopenedAt)
}

func TestRepeatedReopenRequestIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.completedTicket(t)

	_, err := f.mutations.ApplyTransition(ctx, ticket.ID, lifecycle.EventReopenRequested, TransitionPayload{}, staffActor, nil)
	require.NoError(t, err)
	commentsAfterFirst := len(f.comments(t, ticket.ID))
	revision := f.load(t, ticket.ID).Revision

	res, err := f.mutations.ApplyTransition(ctx, ticket.ID, lifecycle.EventReopenRequested, TransitionPayload{}, staffActor, nil)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Empty(t, res.Notified)

	stored := f.load(t, ticket.ID)
	assert.True(t, stored.Reopen.Requested)
	assert.Equal(t, revision, stored.Revision)
	assert.Len(t, f.comments(t, ticket.ID), commentsAfterFirst)
	assert.Len(t, f.allNotifications(t), 1)
}

func TestNonPrivilegedReopenIsForbidden(t *testing.T) {
	f := newFixture(t)
	ticket := f.completedTicket(t)
	before := f.load(t, ticket.ID)
	comments := len(f.comments(t, ticket.ID))

	_, err := f.mutations.ApplyTransition(context.Background(), ticket.ID, lifecycle.EventReopened, TransitionPayload{}, staffActor, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden))

	after := f.load(t, ticket.ID)
	assert.Equal(t, domain.TicketStatusCompleted, after.Status)
	assert.NotNil(t, after.CompletedAt)
	assert.Equal(t, before.Revision, after.Revision)
	assert.Len(t, f.comments(t, ticket.ID), comments)
}

func TestRejectReopen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.completedTicket(t)

	_, err := f.mutations.ApplyTransition(ctx, ticket.ID, lifecycle.EventReopenRejected, TransitionPayload{}, adminActor, nil)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConflict), "nothing pending yet")

	_, err = f.mutations.ApplyTransition(ctx, ticket.ID, lifecycle.EventReopenRequested, TransitionPayload{}, staffActor, nil)
	require.NoError(t, err)
	_, err = f.mutations.ApplyTransition(ctx, ticket.ID, lifecycle.EventReopenRejected, TransitionPayload{}, adminActor, nil)
	require.NoError(t, err)

	stored := f.load(t, ticket.ID)
	assert.Equal(t, domain.TicketStatusCompleted, stored.Status)
	assert.NotNil(t, stored.CompletedAt)
	assert.False(t, stored.Reopen.Requested)
	assert.NotNil(t, stored.Reopen.RejectedAt)
	assert.True(t, lifecycle.CanRequestReopen(stored))
}

func TestCompletedAtFollowsStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.completedTicket(t)

	_, err := f.mutations.ApplyTransition(ctx, ticket.ID, lifecycle.EventOverride, TransitionPayload{TargetStatus: domain.TicketStatusNew}, staffActor, nil)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden), "override on completed needs privilege")

	_, err = f.mutations.ApplyTransition(ctx, ticket.ID, lifecycle.EventOverride, TransitionPayload{TargetStatus: domain.TicketStatusNew}, adminActor, nil)
	require.NoError(t, err)
	stored := f.load(t, ticket.ID)
	assert.Equal(t, domain.TicketStatusNew, stored.Status)
	assert.Nil(t, stored.CompletedAt)

	_, err = f.mutations.ApplyTransition(ctx, ticket.ID, lifecycle.EventOverride, TransitionPayload{TargetStatus: domain.TicketStatusPaused}, staffActor, nil)
	require.NoError(t, err)
	stored = f.load(t, ticket.ID)
	assert.NotNil(t, stored.PausedAt)
	require.NotNil(t, stored.Pause)
	assert.Nil(t, stored.CompletedAt)

	_, err = f.mutations.ApplyTransition(ctx, ticket.ID, lifecycle.EventOverride, TransitionPayload{TargetStatus: domain.TicketStatusCompleted}, staffActor, nil)
	require.NoError(t, err)
	stored = f.load(t, ticket.ID)
	assert.NotNil(t, stored.CompletedAt)
	assert.Nil(t, stored.PausedAt)
	assert.Nil(t, stored.Pause)

	_, err = f.mutations.ApplyTransition(ctx, ticket.ID, lifecycle.EventOverride, TransitionPayload{TargetStatus: domain.TicketStatusDeleted}, adminActor, nil)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConflict))
}

func TestStaleRevisionIsConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.inProgressTicket(t)
	stale := ticket.Revision - 1

	_, err := f.mutations.ApplyTransition(ctx, ticket.ID, lifecycle.EventPaused, TransitionPayload{Reason: "parts", NotifySupervisor: true}, staffActor, &stale)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConflict))

	stored := f.load(t, ticket.ID)
	assert.Equal(t, domain.TicketStatusInProgress, stored.Status)
	assert.Empty(t, f.allNotifications(t))

	current := stored.Revision
	res, err := f.mutations.ApplyTransition(ctx, ticket.ID, lifecycle.EventPaused, TransitionPayload{Reason: "parts"}, staffActor, &current)
	require.NoError(t, err)
	assert.Equal(t, current+1, res.Ticket.Revision)
}

func TestMissingTicketIsNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.mutations.ApplyTransition(context.Background(), "nope", lifecycle.EventResumed, TransitionPayload{}, staffActor, nil)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestReopenRequestOnOpenTicketSetsFlag(t *testing.T) {
	cases := []struct {
		name  string
		setup func(f *fixture, t *testing.T) *domain.Ticket
	}{
		{"new", func(f *fixture, t *testing.T) *domain.Ticket { return f.newTicket(t) }},
		{"in-progress", func(f *fixture, t *testing.T) *domain.Ticket { return f.inProgressTicket(t) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			ticket := tc.setup(f, t)
			require.True(t, lifecycle.CanRequestReopen(ticket))

			res, err := f.mutations.ApplyTransition(ctx, ticket.ID, lifecycle.EventReopenRequested, TransitionPayload{Reason: "Fixed badly last time"}, staffActor, nil)
			require.NoError(t, err)
			assert.True(t, res.Changed)
			assert.Equal(t, []domain.RecipientRole{domain.RecipientSupervisor}, res.Notified)

			stored := f.load(t, ticket.ID)
			assert.Equal(t, ticket.Status, stored.Status)
			assert.True(t, stored.Reopen.Requested)
			require.NotNil(t, stored.Reopen.RequestedAt)
			require.NotNil(t, stored.Reopen.RequestedBy)
			assert.Equal(t, staffActor.ID, *stored.Reopen.RequestedBy)
			assert.False(t, lifecycle.CanRequestReopen(stored))
			assert.Len(t, f.allNotifications(t), 1)

			res, err = f.mutations.ApplyTransition(ctx, ticket.ID, lifecycle.EventReopenRequested, TransitionPayload{}, staffActor, nil)
			require.NoError(t, err)
			assert.False(t, res.Changed)
			assert.Len(t, f.allNotifications(t), 1)
		})
	}
}

func TestReopenRequestOnPausedTicketIsConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.inProgressTicket(t)
	_, err := f.mutations.ApplyTransition(ctx, ticket.ID, lifecycle.EventPaused, TransitionPayload{Reason: "Waiting for parts"}, staffActor, nil)
	require.NoError(t, err)

	_, err = f.mutations.ApplyTransition(ctx, ticket.ID, lifecycle.EventReopenRequested, TransitionPayload{}, staffActor, nil)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConflict))
	assert.False(t, f.load(t, ticket.ID).Reopen.Requested)
}

// interleavingRepo runs another writer between a read and the caller's write.
type interleavingRepo struct {
	repository.TicketRepository
	between func()
}

func (r *interleavingRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, err := r.TicketRepository.GetByID(ctx, id)
	if r.between != nil {
		fn := r.between
		r.between = nil
		fn()
	}
	return ticket, err
}

func TestTransitionKeepsConcurrentFieldEdit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.inProgressTicket(t)

	repo := &interleavingRepo{TicketRepository: f.store.Tickets()}
	repo.between = func() {
		desc := "Concurrent description edit"
		_, err := f.tickets.UpdateFields(ctx, staffActor, ticket.ID, TicketUpdateInput{Description: &desc}, nil)
		require.NoError(t, err)
	}
	mutations := NewMutationService(MutationDependencies{
		TicketRepo: repo,
		RoleRepo:   f.store.Roles(),
		Clock:      f.clock,
	})

	res, err := mutations.ApplyTransition(ctx, ticket.ID, lifecycle.EventPaused, TransitionPayload{Reason: "Waiting for parts"}, staffActor, nil)
	require.NoError(t, err)

	stored := f.load(t, ticket.ID)
	assert.Equal(t, domain.TicketStatusPaused, stored.Status)
	assert.Equal(t, "Concurrent description edit", stored.Description)
	assert.Equal(t, ticket.Revision+2, stored.Revision)
	assert.Equal(t, "Concurrent description edit", res.Ticket.Description)
	assert.Equal(t, stored.Revision, res.Ticket.Revision)
}

func TestFieldEditKeepsConcurrentTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.inProgressTicket(t)

	repo := &interleavingRepo{TicketRepository: f.store.Tickets()}
	repo.between = func() {
		_, err := f.mutations.ApplyTransition(ctx, ticket.ID, lifecycle.EventCompleted, TransitionPayload{}, staffActor, nil)
		require.NoError(t, err)
	}
	tickets := NewTicketService(TicketDependencies{
		TicketRepo:     repo,
		CommentRepo:    f.store.Comments(),
		HistoryRepo:    f.store.History(),
		AttachmentRepo: f.store.Attachments(),
		Clock:          f.clock,
	})

	priority := domain.TicketPriorityHigh
	updated, err := tickets.UpdateFields(ctx, staffActor, ticket.ID, TicketUpdateInput{Priority: &priority}, nil)
	require.NoError(t, err)

	stored := f.load(t, ticket.ID)
	assert.Equal(t, domain.TicketPriorityHigh, stored.Priority)
	assert.Equal(t, domain.TicketStatusCompleted, stored.Status)
	assert.NotNil(t, stored.CompletedAt)
	assert.Equal(t, domain.TicketStatusCompleted, updated.Status)
}

func TestStaleRevisionStillConflictsWithFieldMerge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.inProgressTicket(t)
	stale := ticket.Revision

	desc := "Edited first"
	_, err := f.tickets.UpdateFields(ctx, staffActor, ticket.ID, TicketUpdateInput{Description: &desc}, nil)
	require.NoError(t, err)

	_, err = f.mutations.ApplyTransition(ctx, ticket.ID, lifecycle.EventPaused, TransitionPayload{Reason: "Waiting for parts"}, staffActor, &stale)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConflict))
	assert.Equal(t, domain.TicketStatusInProgress, f.load(t, ticket.ID).Status)
}
