package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusNew        TicketStatus = "new"
	TicketStatusInProgress TicketStatus = "in-progress"
	TicketStatusPaused     TicketStatus = "paused"
	TicketStatusCompleted  TicketStatus = "completed"

	// Reserved values: stored by older clients, never produced by the lifecycle.
	TicketStatusOverdue TicketStatus = "overdue"
	TicketStatusDeleted TicketStatus = "deleted"
)

// Valid reports whether the status is one the service writes.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusNew, TicketStatusInProgress, TicketStatusPaused, TicketStatusCompleted:
		return true
	}
	return false
}

// TicketPriority enumerates urgency.
type TicketPriority string

const (
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityLow    TicketPriority = "low"
)

// Valid reports whether the priority is known.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityHigh, TicketPriorityMedium, TicketPriorityLow:
		return true
	}
	return false
}

// TicketSource records which entry point created the ticket.
type TicketSource string

const (
	SourceDashboard  TicketSource = "dashboard"
	SourcePublicForm TicketSource = "public_form"
	SourceEmail      TicketSource = "email"
)

// PauseCategory values drive notification routing.
const (
	PauseCategoryProcurement  = "procurement"
	PauseReasonBudgetApproval = "budget_approval"
)

// Requester identifies who reported the problem.
type Requester struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// PauseInfo is populated while a ticket is paused.
type PauseInfo struct {
	Reason            string `json:"reason"`
	ReasonCode        string `json:"reasonCode,omitempty"`
	Category          string `json:"category,omitempty"`
	EstimatedDuration string `json:"estimatedDuration,omitempty"`
	NotifySupervisor  bool   `json:"notifySupervisor"`
}

// ReopenInfo tracks the two-tier reopen workflow.
type ReopenInfo struct {
	Requested   bool       `json:"requested"`
	RequestedAt *time.Time `json:"requestedAt,omitempty"`
	RequestedBy *string    `json:"requestedBy,omitempty"`
	RejectedAt  *time.Time `json:"rejectedAt,omitempty"`
	ReopenedAt  *time.Time `json:"reopenedAt,omitempty"`
}

// Ticket is the aggregate for maintenance requests.
type Ticket struct {
	ID           string
	TicketNumber string
	Subject      string
	Description  string
	LocationID   *string
	CategoryID   *string
	Priority     TicketPriority
	Status       TicketStatus
	AssigneeID   *string
	Requester    Requester
	Source       TicketSource
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
	PausedAt     *time.Time
	DueDate      *time.Time
	Pause        *PauseInfo
	Reopen       ReopenInfo
	Revision     int64
}

// Clone returns a deep copy so callers can diff before and after a mutation.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	out := *t
	out.LocationID = cloneString(t.LocationID)
	out.CategoryID = cloneString(t.CategoryID)
	out.AssigneeID = cloneString(t.AssigneeID)
	out.CompletedAt = cloneTime(t.CompletedAt)
	out.PausedAt = cloneTime(t.PausedAt)
	out.DueDate = cloneTime(t.DueDate)
	if t.Pause != nil {
		p := *t.Pause
		out.Pause = &p
	}
	out.Reopen.RequestedAt = cloneTime(t.Reopen.RequestedAt)
	out.Reopen.RequestedBy = cloneString(t.Reopen.RequestedBy)
	out.Reopen.RejectedAt = cloneTime(t.Reopen.RejectedAt)
	out.Reopen.ReopenedAt = cloneTime(t.Reopen.ReopenedAt)
	return &out
}

// IsOverdue reports whether an open ticket has passed its due date.
func (t *Ticket) IsOverdue(now time.Time) bool {
	return t.Status != TicketStatusCompleted && t.DueDate != nil && now.After(*t.DueDate)
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	t := *v
	return &t
}
