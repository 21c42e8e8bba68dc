package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolworks/maintenance-desk/internal/domain"
)

var allTicketFields = []TicketField{
	FieldSubject, FieldDescription, FieldLocation, FieldCategory, FieldPriority, FieldStatus,
	FieldAssignee, FieldCompletedAt, FieldPausedAt, FieldDueDate, FieldPause, FieldReopen,
}

func TestTicketFieldCopyOnlyTouchesOneColumn(t *testing.T) {
	now := time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)
	loc, cat, who := "loc-1", "cat-1", "u-tech"
	src := &domain.Ticket{
		Subject:     "Leaking tap",
		Description: "Kitchen",
		LocationID:  &loc,
		CategoryID:  &cat,
		Priority:    domain.TicketPriorityHigh,
		Status:      domain.TicketStatusPaused,
		AssigneeID:  &who,
		CompletedAt: &now,
		PausedAt:    &now,
		DueDate:     &now,
		Pause:       &domain.PauseInfo{Reason: "parts"},
		Reopen:      domain.ReopenInfo{Requested: true},
	}

	for _, f := range allTicketFields {
		t.Run(string(f), func(t *testing.T) {
			dst := &domain.Ticket{}
			require.NoError(t, f.CopyTo(dst, src))

			want, err := f.Value(src)
			require.NoError(t, err)
			got, err := f.Value(dst)
			require.NoError(t, err)
			assert.Equal(t, want, got)

			for _, other := range allTicketFields {
				if other == f {
					continue
				}
				blank, _ := other.Value(&domain.Ticket{})
				v, _ := other.Value(dst)
				assert.Equal(t, blank, v, "%s leaked into %s", f, other)
			}
		})
	}
}

func TestUnknownTicketField(t *testing.T) {
	_, err := TicketField("colour").Value(&domain.Ticket{})
	assert.Error(t, err)
	assert.Error(t, TicketField("colour").CopyTo(&domain.Ticket{}, &domain.Ticket{}))
}
