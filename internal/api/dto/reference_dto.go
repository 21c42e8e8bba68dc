package dto

import (
	"time"

	"github.com/schoolworks/maintenance-desk/internal/domain"
)

// ReferenceRequest creates a category or location.
type ReferenceRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ReferenceResponse is a category or location.
type ReferenceResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// NotificationResponse is one feed entry.
type NotificationResponse struct {
	ID         string               `json:"id"`
	TicketID   *string              `json:"ticket_id"`
	TargetRole domain.RecipientRole `json:"target_role"`
	Message    string               `json:"message"`
	Read       bool                 `json:"read"`
	CreatedAt  time.Time            `json:"created_at"`
}
