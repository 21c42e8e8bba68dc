package domain

import "time"

// RecipientRole names a notification audience.
type RecipientRole string

const (
	RecipientSupervisor    RecipientRole = "supervisor"
	RecipientEstateManager RecipientRole = "estate_manager"
	RecipientFinance       RecipientRole = "finance"
)

// Notification is a fire-and-forget message for a role audience.
type Notification struct {
	ID         string
	TicketID   *string
	TargetRole RecipientRole
	Message    string
	Read       bool
	CreatedAt  time.Time
}
