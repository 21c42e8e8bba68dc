package dto

// PublicTicketRequest is the unauthenticated report form. Field names follow
// the form posted by the school website.
type PublicTicketRequest struct {
	Subject        string `json:"subject"`
	Description    string `json:"description"`
	Location       string `json:"location"`
	Category       string `json:"category"`
	Priority       string `json:"priority"`
	RequesterName  string `json:"requesterName"`
	RequesterEmail string `json:"requesterEmail"`
}

// EmailTicketRequest is the JSON form posted by the mail relay.
type EmailTicketRequest struct {
	Subject     string `json:"subject"`
	Description string `json:"description"`
	Body        string `json:"body"`
	FromName    string `json:"fromName"`
	FromEmail   string `json:"fromEmail"`
	Priority    string `json:"priority"`
	Location    string `json:"location"`
	Category    string `json:"category"`
	Attachments []struct {
		FileName  string `json:"fileName"`
		MimeType  string `json:"mimeType"`
		SizeBytes int64  `json:"sizeBytes"`
	} `json:"attachments"`
}

// PublicResponse is the envelope both public endpoints answer with.
type PublicResponse struct {
	Success  bool   `json:"success"`
	TicketID string `json:"ticketId,omitempty"`
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`
}
