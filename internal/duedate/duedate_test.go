package duedate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/schoolworks/maintenance-desk/internal/domain"
)

func TestBusinessDaysByPriority(t *testing.T) {
	assert.Equal(t, 1, BusinessDays(domain.TicketPriorityHigh))
	assert.Equal(t, 3, BusinessDays(domain.TicketPriorityMedium))
	assert.Equal(t, 5, BusinessDays(domain.TicketPriorityLow))
	assert.Equal(t, 3, BusinessDays(""))
}

func TestForSkipsWeekends(t *testing.T) {
	c := New("", time.UTC)
	friday := time.Date(2024, 3, 8, 10, 0, 0, 0, time.UTC)

	due := c.For(domain.TicketPriorityHigh, friday)
	assert.Equal(t, time.Monday, due.Weekday())
	assert.Equal(t, 11, due.Day())

	due = c.For(domain.TicketPriorityLow, friday)
	assert.Equal(t, time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC), due)
}

func TestForSkipsUKHolidays(t *testing.T) {
	c := New("gb", time.UTC)
	// Christmas Eve 2024 is a Tuesday; 25th and 26th are bank holidays.
	start := time.Date(2024, 12, 24, 9, 0, 0, 0, time.UTC)
	due := c.For(domain.TicketPriorityHigh, start)
	assert.Equal(t, time.Date(2024, 12, 27, 9, 0, 0, 0, time.UTC), due)
}
