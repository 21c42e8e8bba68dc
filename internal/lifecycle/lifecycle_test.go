package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolworks/maintenance-desk/internal/domain"
)

func TestNextFollowsTransitionTable(t *testing.T) {
	cases := []struct {
		from  domain.TicketStatus
		event Event
		want  domain.TicketStatus
	}{
		{domain.TicketStatusNew, EventAssigned, domain.TicketStatusInProgress},
		{domain.TicketStatusInProgress, EventUnassigned, domain.TicketStatusNew},
		{domain.TicketStatusInProgress, EventPaused, domain.TicketStatusPaused},
		{domain.TicketStatusPaused, EventResumed, domain.TicketStatusInProgress},
		{domain.TicketStatusInProgress, EventCompleted, domain.TicketStatusCompleted},
		{domain.TicketStatusCompleted, EventReopened, domain.TicketStatusInProgress},
		{domain.TicketStatusCompleted, EventReopenRequested, domain.TicketStatusCompleted},
		{domain.TicketStatusInProgress, EventReopenRequested, domain.TicketStatusInProgress},
		{domain.TicketStatusNew, EventReopenRequested, domain.TicketStatusNew},
		{domain.TicketStatusCompleted, EventReopenRejected, domain.TicketStatusCompleted},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"/"+string(tc.event), func(t *testing.T) {
			got, err := Next(tc.from, tc.event)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestProtectedStatusesIgnoreAssignment(t *testing.T) {
	protected := []domain.TicketStatus{
		domain.TicketStatusCompleted,
		domain.TicketStatusPaused,
		domain.TicketStatusDeleted,
	}
	for _, status := range protected {
		for _, event := range []Event{EventAssigned, EventUnassigned} {
			got, err := Next(status, event)
			require.NoError(t, err)
			assert.Equal(t, status, got, "%s should stay put on %s", status, event)
		}
	}
}

func TestNextRejectsUntabulatedPairs(t *testing.T) {
	cases := []struct {
		from  domain.TicketStatus
		event Event
	}{
		{domain.TicketStatusNew, EventPaused},
		{domain.TicketStatusNew, EventCompleted},
		{domain.TicketStatusPaused, EventCompleted},
		{domain.TicketStatusPaused, EventReopenRequested},
		{domain.TicketStatusInProgress, EventReopened},
		{domain.TicketStatusCompleted, EventPaused},
		{domain.TicketStatusCompleted, EventResumed},
	}
	for _, tc := range cases {
		got, err := Next(tc.from, tc.event)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, tc.from, got)
	}
}

func TestRequiresPrivilege(t *testing.T) {
	assert.True(t, RequiresPrivilege(EventReopened, domain.TicketStatusCompleted))
	assert.True(t, RequiresPrivilege(EventReopenRejected, domain.TicketStatusCompleted))
	assert.True(t, RequiresPrivilege(EventOverride, domain.TicketStatusCompleted))
	assert.False(t, RequiresPrivilege(EventOverride, domain.TicketStatusInProgress))
	assert.False(t, RequiresPrivilege(EventReopenRequested, domain.TicketStatusCompleted))
	assert.False(t, RequiresPrivilege(EventPaused, domain.TicketStatusInProgress))
}

func TestCanRequestReopen(t *testing.T) {
	completed := &domain.Ticket{Status: domain.TicketStatusCompleted}
	assert.True(t, CanRequestReopen(completed))

	completed.Reopen.Requested = true
	assert.False(t, CanRequestReopen(completed))

	assert.False(t, CanRequestReopen(&domain.Ticket{Status: domain.TicketStatusPaused}))
	assert.False(t, CanRequestReopen(nil))
}

func TestOverrideRejectsReservedStatuses(t *testing.T) {
	_, err := Override(domain.TicketStatusNew, domain.TicketStatusDeleted)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, err := Override(domain.TicketStatusCompleted, domain.TicketStatusNew)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusNew, got)
}

func TestParseEvent(t *testing.T) {
	ev, ok := ParseEvent("reopen-requested")
	assert.True(t, ok)
	assert.Equal(t, EventReopenRequested, ev)

	_, ok = ParseEvent("archive")
	assert.False(t, ok)
}
