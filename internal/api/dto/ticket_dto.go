package dto

import (
	"time"

	"github.com/schoolworks/maintenance-desk/internal/domain"
)

// CreateTicketRequest is the dashboard quick-add payload.
type CreateTicketRequest struct {
	Subject        string                `json:"subject"`
	Description    string                `json:"description"`
	LocationID     *string               `json:"location_id"`
	CategoryID     *string               `json:"category_id"`
	Priority       domain.TicketPriority `json:"priority"`
	RequesterName  string                `json:"requester_name"`
	RequesterEmail string                `json:"requester_email"`
	DueDate        *time.Time            `json:"due_date"`
}

// UpdateTicketRequest edits descriptive fields. Absent keys are left alone;
// an empty location or category clears it.
type UpdateTicketRequest struct {
	Subject          *string                `json:"subject"`
	Description      *string                `json:"description"`
	Priority         *domain.TicketPriority `json:"priority"`
	LocationID       *string                `json:"location_id"`
	CategoryID       *string                `json:"category_id"`
	DueDate          *time.Time             `json:"due_date"`
	ExpectedRevision *int64                 `json:"expected_revision"`
}

// TransitionRequest applies one lifecycle event.
type TransitionRequest struct {
	Event            string            `json:"event"`
	Payload          TransitionPayload `json:"payload"`
	ExpectedRevision *int64            `json:"expected_revision"`
}

// TransitionPayload carries event specific fields.
type TransitionPayload struct {
	Reason            string              `json:"reason"`
	ReasonCode        string              `json:"reason_code"`
	Category          string              `json:"category"`
	EstimatedDuration string              `json:"estimated_duration"`
	NotifySupervisor  bool                `json:"notify_supervisor"`
	TargetStatus      domain.TicketStatus `json:"target_status"`
	Comment           string              `json:"comment"`
}

// AssignRequest sets or clears the assignee.
type AssignRequest struct {
	AssigneeID       *string `json:"assignee_id"`
	ExpectedRevision *int64  `json:"expected_revision"`
}

// CreateCommentRequest payload.
type CreateCommentRequest struct {
	Body string `json:"body"`
}

// AttachmentRequest describes an uploaded file already held in storage.
type AttachmentRequest struct {
	StorageKey string `json:"storage_key"`
	FileName   string `json:"file_name"`
	MimeType   string `json:"mime_type"`
	SizeBytes  int64  `json:"size_bytes"`
}

// TicketSummary is the list row.
type TicketSummary struct {
	ID           string                `json:"id"`
	TicketNumber string                `json:"ticket_number"`
	Subject      string                `json:"subject"`
	Status       domain.TicketStatus   `json:"status"`
	Priority     domain.TicketPriority `json:"priority"`
	LocationID   *string               `json:"location_id"`
	CategoryID   *string               `json:"category_id"`
	AssigneeID   *string               `json:"assignee_id"`
	Requester    domain.Requester      `json:"requester"`
	Source       domain.TicketSource   `json:"source"`
	DueDate      *time.Time            `json:"due_date"`
	Overdue      bool                  `json:"overdue"`
	Revision     int64                 `json:"revision"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// PauseResponse is populated while a ticket is paused.
type PauseResponse struct {
	Reason            string `json:"reason"`
	ReasonCode        string `json:"reason_code,omitempty"`
	Category          string `json:"category,omitempty"`
	EstimatedDuration string `json:"estimated_duration,omitempty"`
	NotifySupervisor  bool   `json:"notify_supervisor"`
}

// ReopenResponse mirrors the reopen workflow fields.
type ReopenResponse struct {
	Requested   bool       `json:"requested"`
	RequestedAt *time.Time `json:"requested_at,omitempty"`
	RequestedBy *string    `json:"requested_by,omitempty"`
	RejectedAt  *time.Time `json:"rejected_at,omitempty"`
	ReopenedAt  *time.Time `json:"reopened_at,omitempty"`
}

// TicketResponse is the full ticket.
type TicketResponse struct {
	TicketSummary
	Description  string         `json:"description"`
	CategoryName string         `json:"category_name,omitempty"`
	LocationName string         `json:"location_name,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at"`
	PausedAt     *time.Time     `json:"paused_at"`
	Pause        *PauseResponse `json:"pause"`
	Reopen       ReopenResponse `json:"reopen"`
	CanReopen    bool           `json:"can_request_reopen"`
}

// TicketDetailResponse is the unified detail read model.
type TicketDetailResponse struct {
	TicketResponse
	Comments    []CommentResponse    `json:"comments"`
	History     []HistoryResponse    `json:"history"`
	Attachments []AttachmentResponse `json:"attachments"`
}

// CommentResponse is one thread entry.
type CommentResponse struct {
	ID         string    `json:"id"`
	AuthorID   *string   `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Body       string    `json:"body"`
	System     bool      `json:"system"`
	CreatedAt  time.Time `json:"created_at"`
}

// HistoryResponse is one audit entry.
type HistoryResponse struct {
	ID         string                  `json:"id"`
	ActorID    *string                 `json:"actor_id"`
	ChangeType domain.TicketChangeType `json:"change_type"`
	OldValue   map[string]any          `json:"old_value,omitempty"`
	NewValue   map[string]any          `json:"new_value,omitempty"`
	CreatedAt  time.Time               `json:"created_at"`
}

// AttachmentResponse metadata.
type AttachmentResponse struct {
	ID         string                  `json:"id"`
	StorageKey string                  `json:"storage_key"`
	FileName   string                  `json:"file_name"`
	MimeType   string                  `json:"mime_type"`
	SizeBytes  int64                   `json:"size_bytes"`
	Source     domain.AttachmentSource `json:"source"`
	CreatedAt  time.Time               `json:"created_at"`
}

// MutationResponse reports a lifecycle or assignment outcome.
type MutationResponse struct {
	Ticket   TicketResponse         `json:"ticket"`
	Changed  bool                   `json:"changed"`
	Notified []domain.RecipientRole `json:"notified"`
}
