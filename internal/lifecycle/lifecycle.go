// Package lifecycle holds the ticket status state machine. Everything here is
// pure: callers load the ticket, ask for the next status and persist it.
package lifecycle

import (
	"errors"
	"fmt"

	"github.com/schoolworks/maintenance-desk/internal/domain"
)

// Event is a named cause that drives a status change.
type Event string

const (
	EventAssigned        Event = "assigned"
	EventUnassigned      Event = "unassigned"
	EventPaused          Event = "paused"
	EventResumed         Event = "resumed"
	EventCompleted       Event = "completed"
	EventReopenRequested Event = "reopen-requested"
	EventReopened        Event = "reopened"
	EventReopenRejected  Event = "reopen-rejected"

	// EventOverride sets an explicit target status (status dropdown).
	EventOverride Event = "override"
)

// ErrInvalidTransition is returned for (status, event) pairs outside the table.
var ErrInvalidTransition = errors.New("invalid status transition")

// TransitionError carries the rejected pair.
type TransitionError struct {
	From  domain.TicketStatus
	Event Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %q cannot handle %q", ErrInvalidTransition, e.From, e.Event)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

var transitions = map[domain.TicketStatus]map[Event]domain.TicketStatus{
	domain.TicketStatusNew: {
		EventAssigned:        domain.TicketStatusInProgress,
		EventUnassigned:      domain.TicketStatusNew,
		EventReopenRequested: domain.TicketStatusNew,
	},
	domain.TicketStatusInProgress: {
		EventAssigned:        domain.TicketStatusInProgress,
		EventUnassigned:      domain.TicketStatusNew,
		EventPaused:          domain.TicketStatusPaused,
		EventCompleted:       domain.TicketStatusCompleted,
		EventReopenRequested: domain.TicketStatusInProgress,
	},
	domain.TicketStatusPaused: {
		EventResumed: domain.TicketStatusInProgress,
	},
	domain.TicketStatusCompleted: {
		EventReopenRequested: domain.TicketStatusCompleted,
		EventReopened:        domain.TicketStatusInProgress,
		EventReopenRejected:  domain.TicketStatusCompleted,
	},
}

// IsProtected reports whether assignment changes must leave the status alone.
func IsProtected(status domain.TicketStatus) bool {
	switch status {
	case domain.TicketStatusCompleted, domain.TicketStatusPaused, domain.TicketStatusDeleted:
		return true
	}
	return false
}

// IsAssignmentEvent reports whether the event comes from an assignee change.
func IsAssignmentEvent(event Event) bool {
	return event == EventAssigned || event == EventUnassigned
}

// Next returns the status that follows current when event happens.
// EventOverride is not handled here; use Override.
func Next(current domain.TicketStatus, event Event) (domain.TicketStatus, error) {
	if IsAssignmentEvent(event) && IsProtected(current) {
		return current, nil
	}
	if next, ok := transitions[current][event]; ok {
		return next, nil
	}
	return current, &TransitionError{From: current, Event: event}
}

// Override validates an explicit status change requested through the status
// dropdown. Any writable status may be targeted.
func Override(current, target domain.TicketStatus) (domain.TicketStatus, error) {
	if !target.Valid() {
		return current, &TransitionError{From: current, Event: EventOverride}
	}
	return target, nil
}

// RequiresPrivilege reports whether only a privileged actor may apply event to
// a ticket currently in status current.
func RequiresPrivilege(event Event, current domain.TicketStatus) bool {
	switch event {
	case EventReopened, EventReopenRejected:
		return true
	case EventOverride:
		return current == domain.TicketStatusCompleted
	}
	return false
}

// CanRequestReopen is the single definition of a reopenable ticket: the
// transition table accepts a reopen request and none is pending.
func CanRequestReopen(t *domain.Ticket) bool {
	if t == nil || t.Reopen.Requested {
		return false
	}
	_, err := Next(t.Status, EventReopenRequested)
	return err == nil
}

// ParseEvent validates a client supplied event name.
func ParseEvent(raw string) (Event, bool) {
	switch ev := Event(raw); ev {
	case EventAssigned, EventUnassigned, EventPaused, EventResumed, EventCompleted,
		EventReopenRequested, EventReopened, EventReopenRejected, EventOverride:
		return ev, true
	}
	return "", false
}
