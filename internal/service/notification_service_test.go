package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolworks/maintenance-desk/internal/domain"
	"github.com/schoolworks/maintenance-desk/internal/lifecycle"
	apperrors "github.com/schoolworks/maintenance-desk/pkg/util"
)

func TestComputeRecipients(t *testing.T) {
	cases := []struct {
		name  string
		event PauseEvent
		want  []domain.RecipientRole
	}{
		{
			name:  "all flags",
			event: PauseEvent{NotifySupervisor: true, Category: "procurement", ReasonCode: "budget_approval"},
			want:  []domain.RecipientRole{domain.RecipientSupervisor, domain.RecipientEstateManager, domain.RecipientFinance},
		},
		{name: "empty", event: PauseEvent{}, want: nil},
		{name: "procurement only", event: PauseEvent{Category: "Procurement"}, want: []domain.RecipientRole{domain.RecipientEstateManager}},
		{name: "budget only", event: PauseEvent{ReasonCode: "budget_approval"}, want: []domain.RecipientRole{domain.RecipientFinance}},
		{name: "unrelated category", event: PauseEvent{Category: "weather"}, want: nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ComputeRecipients(tc.event))
		})
	}
}

func TestStatusEmailsOnlyForStartAndFinish(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ticket := f.inProgressTicket(t)
	assert.Equal(t, []string{EmailKindStatus}, f.queue.kinds())

	_, err := f.mutations.ApplyTransition(ctx, ticket.ID, lifecycle.EventPaused, TransitionPayload{Reason: "parts"}, staffActor, nil)
	require.NoError(t, err)
	assert.Len(t, f.queue.kinds(), 1, "pausing sends nothing")

	_, err = f.mutations.ApplyTransition(ctx, ticket.ID, lifecycle.EventResumed, TransitionPayload{}, staffActor, nil)
	require.NoError(t, err)
	_, err = f.mutations.ApplyTransition(ctx, ticket.ID, lifecycle.EventCompleted, TransitionPayload{Comment: "Valve **replaced**"}, staffActor, nil)
	require.NoError(t, err)

	kinds := f.queue.kinds()
	require.Len(t, kinds, 3)
	last := f.queue.jobs[2]
	assert.Equal(t, []string{"sam@school.org"}, last.Message.To)
	assert.Contains(t, last.Message.Subject, "completed")
	assert.Contains(t, last.Message.HTML, "<strong>replaced</strong>")
}

func TestPublicTicketSendsAlert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_ = f.newTicket(t)
	assert.Empty(t, f.queue.kinds(), "dashboard tickets do not alert")

	ticket, err := f.tickets.CreatePublic(ctx, TicketCreateInput{
		Subject:        "Leak in the sports hall",
		Description:    "Water under the door",
		RequesterName:  "Pat Parent",
		RequesterEmail: "pat@school.org",
		Priority:       domain.TicketPriorityHigh,
	})
	require.NoError(t, err)
	require.Equal(t, []string{EmailKindAlert}, f.queue.kinds())
	job := f.queue.jobs[0]
	assert.Equal(t, ticket.ID, job.TicketID)
	assert.Equal(t, []string{"estates@school.org"}, job.Message.To)
	assert.Contains(t, job.Message.Subject, ticket.TicketNumber)
}

func TestSweepOverdueNotifiesOncePerDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ticket, err := f.tickets.CreateFromDashboard(ctx, staffActor, TicketCreateInput{
		Subject:  "Fire door sticking",
		Priority: domain.TicketPriorityHigh,
	})
	require.NoError(t, err)
	require.NotNil(t, ticket.DueDate)
	f.newTicket(t)

	flagged, err := f.notifications.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, flagged)

	f.advance(2 * 24 * time.Hour)
	flagged, err = f.notifications.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, flagged)

	f.advance(time.Hour)
	flagged, err = f.notifications.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, flagged)

	notes := f.allNotifications(t)
	require.Len(t, notes, 1)
	assert.Equal(t, domain.RecipientSupervisor, notes[0].TargetRole)
	assert.Equal(t, []string{EmailKindOverdue}, f.queue.kinds())
}

func TestNotificationFeedIsPrivileged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.inProgressTicket(t)
	_, err := f.mutations.ApplyTransition(ctx, ticket.ID, lifecycle.EventPaused, TransitionPayload{
		Reason:     "quote needed",
		ReasonCode: "budget_approval",
	}, staffActor, nil)
	require.NoError(t, err)

	_, err = f.notifications.List(ctx, staffActor, ListFilter{})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden))

	finance := domain.RecipientFinance
	feed, err := f.notifications.List(ctx, supervisorActor, ListFilter{Role: &finance, UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, feed, 1)

	require.NoError(t, f.notifications.MarkRead(ctx, supervisorActor, feed[0].ID))
	feed, err = f.notifications.List(ctx, supervisorActor, ListFilter{Role: &finance, UnreadOnly: true})
	require.NoError(t, err)
	assert.Empty(t, feed)

	err = f.notifications.MarkRead(ctx, supervisorActor, "missing")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}
