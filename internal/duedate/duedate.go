// Package duedate derives default due dates from ticket priority on a
// business-day calendar.
package duedate

import (
	"strings"
	"time"

	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/gb"

	"github.com/schoolworks/maintenance-desk/internal/domain"
)

// Calculator adds priority based business days to a creation time.
type Calculator struct {
	cal *cal.BusinessCalendar
	loc *time.Location
}

// New builds a calculator. holidays selects a public holiday set; "gb" loads
// UK holidays and anything else leaves weekends as the only days off.
func New(holidays string, loc *time.Location) *Calculator {
	c := cal.NewBusinessCalendar()
	if strings.EqualFold(strings.TrimSpace(holidays), "gb") {
		c.AddHoliday(gb.Holidays...)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Calculator{cal: c, loc: loc}
}

// BusinessDays returns the allowance for a priority.
func BusinessDays(p domain.TicketPriority) int {
	switch p {
	case domain.TicketPriorityHigh:
		return 1
	case domain.TicketPriorityLow:
		return 5
	default:
		return 3
	}
}

// For returns created moved forward by the priority's business days.
func (c *Calculator) For(priority domain.TicketPriority, created time.Time) time.Time {
	return c.AddBusinessDays(created, BusinessDays(priority))
}

// AddBusinessDays skips weekends and configured holidays.
func (c *Calculator) AddBusinessDays(start time.Time, days int) time.Time {
	t := start.In(c.loc)
	for added := 0; added < days; {
		t = t.AddDate(0, 0, 1)
		if c.cal.IsWorkday(t) {
			added++
		}
	}
	return t
}
