package domain

import "time"

// TicketComment is an append-only entry in a ticket thread. System comments
// narrate lifecycle changes.
type TicketComment struct {
	ID         string
	TicketID   string
	AuthorID   *string
	AuthorName string
	Body       string
	System     bool
	CreatedAt  time.Time
}

// AttachmentSource distinguishes uploads from email ingestion.
type AttachmentSource string

const (
	AttachmentSourceUpload AttachmentSource = "upload"
	AttachmentSourceEmail  AttachmentSource = "email"
)

// Attachment stores metadata for a file held in blob storage.
type Attachment struct {
	ID         string
	TicketID   string
	StorageKey string
	FileName   string
	MimeType   string
	SizeBytes  int64
	Source     AttachmentSource
	CreatedAt  time.Time
}
