package mailer

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/schoolworks/maintenance-desk/internal/domain"
)

func TestAlertEscapesAndRendersMarkdown(t *testing.T) {
	r := NewRenderer("https://desk.example.org/", time.UTC)
	ticket := &domain.Ticket{
		ID:           "abc",
		TicketNumber: "SMC-20240305-001",
		Subject:      "Leak <b>now</b>",
		Description:  "**Water** on the floor <script>alert(1)</script>",
		Priority:     domain.TicketPriorityHigh,
		Requester:    domain.Requester{Name: "Pat", Email: "pat@school.org"},
		CreatedAt:    time.Date(2024, 3, 5, 9, 30, 0, 0, time.UTC),
	}

	subject, html, err := r.Alert(ticket, "Science Block", "")
	require.NoError(t, err)
	assert.Equal(t, "[SMC-20240305-001] New maintenance request: Leak <b>now</b>", subject)
	assert.Contains(t, html, "Leak &lt;b&gt;now&lt;/b&gt;")
	assert.Contains(t, html, "<strong>Water</strong>")
	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "Science Block")
	assert.Contains(t, html, "Not specified")
	assert.Contains(t, html, "https://desk.example.org/tickets/abc")
}

func TestStatusUpdateVariants(t *testing.T) {
	r := NewRenderer("", nil)

	subject, html, err := r.StatusUpdate("SMC-1", "Broken window", "Sam", domain.TicketStatusCompleted, "")
	require.NoError(t, err)
	assert.Contains(t, subject, "completed")
	assert.Contains(t, html, "has been completed")

	subject, html, err = r.StatusUpdate("SMC-1", "Broken window", "", domain.TicketStatusInProgress, "Glazier booked")
	require.NoError(t, err)
	assert.Contains(t, subject, "in progress")
	assert.Contains(t, html, "Work has started")
	assert.Contains(t, html, "Glazier booked")
	assert.Contains(t, html, "Dear colleague")
}

func TestOverdueDigestListsTickets(t *testing.T) {
	r := NewRenderer("", time.UTC)
	due := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	_, html, err := r.OverdueDigest([]domain.Ticket{
		{TicketNumber: "SMC-A", Subject: "Heater", Priority: domain.TicketPriorityLow, DueDate: &due},
		{TicketNumber: "SMC-B", Subject: "Door", Priority: domain.TicketPriorityHigh},
	})
	require.NoError(t, err)
	assert.Contains(t, html, "2 overdue maintenance requests")
	assert.Contains(t, html, "01 Mar 2024")
	assert.Contains(t, html, "SMC-B")
}

func TestComposeProducesHTMLMessage(t *testing.T) {
	raw, err := compose("desk@school.org", Message{To: []string{"a@school.org", "b@school.org"}, Subject: "Hi", HTML: "<p>x</p>"})
	require.NoError(t, err)
	text := string(raw)
	assert.Contains(t, text, "Subject: Hi")
	assert.Contains(t, text, "text/html")
	assert.Contains(t, text, "<desk@school.org>")
	assert.True(t, strings.Contains(text, "a@school.org") && strings.Contains(text, "b@school.org"))
}

type recordingSender struct {
	mu   sync.Mutex
	sent []Message
}

func (s *recordingSender) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

func TestDirectQueueDelivers(t *testing.T) {
	sender := &recordingSender{}
	q := NewDirectQueue(sender, zap.NewNop(), time.Second)
	require.NoError(t, q.Enqueue(context.Background(), Job{Kind: "alert", Message: Message{To: []string{"x@school.org"}, Subject: "s"}}))
	q.Wait()
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "s", sender.sent[0].Subject)
}

func TestSMTPSenderRejectsEmptyRecipients(t *testing.T) {
	s := &SMTPSender{}
	assert.Error(t, s.Send(context.Background(), Message{Subject: "s"}))
}
