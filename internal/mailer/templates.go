package mailer

import (
	"fmt"
	"strings"
	"time"

	"github.com/flosch/pongo2/v6"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/schoolworks/maintenance-desk/internal/domain"
)

const alertTemplate = `<html><body style="font-family: Arial, sans-serif;">
<h2>New maintenance request {{ ticket.TicketNumber }}</h2>
<table cellpadding="4">
<tr><td><strong>Subject</strong></td><td>{{ ticket.Subject }}</td></tr>
<tr><td><strong>Priority</strong></td><td>{{ ticket.Priority }}</td></tr>
<tr><td><strong>Location</strong></td><td>{{ location|default:"Not specified" }}</td></tr>
<tr><td><strong>Category</strong></td><td>{{ category|default:"Not specified" }}</td></tr>
<tr><td><strong>Reported by</strong></td><td>{{ ticket.Requester.Name }} &lt;{{ ticket.Requester.Email }}&gt;</td></tr>
<tr><td><strong>Submitted</strong></td><td>{{ submitted }}</td></tr>
</table>
<div style="margin-top: 12px;">{{ description|safe }}</div>
<p><a href="{{ link }}">Open in the maintenance dashboard</a></p>
</body></html>`

const statusTemplate = `<html><body style="font-family: Arial, sans-serif;">
<p>Dear {{ name|default:"colleague" }},</p>
{% if status == "completed" %}
<p>Your maintenance request <strong>{{ number }}</strong> ({{ subject }}) has been completed.</p>
<p>If the problem persists, reply to this email or ask for the ticket to be reopened.</p>
{% else %}
<p>Work has started on your maintenance request <strong>{{ number }}</strong> ({{ subject }}).</p>
{% endif %}
{% if comment %}<div style="margin-top: 12px;">{{ comment|safe }}</div>{% endif %}
<p>School Maintenance</p>
</body></html>`

const overdueTemplate = `<html><body style="font-family: Arial, sans-serif;">
<h2>{{ rows|length }} overdue maintenance request{{ rows|length|pluralize }}</h2>
<ul>
{% for row in rows %}<li><strong>{{ row.number }}</strong> {{ row.subject }} ({{ row.priority }}, due {{ row.due }})</li>
{% endfor %}</ul>
</body></html>`

// Renderer turns tickets into email bodies.
type Renderer struct {
	alert   *pongo2.Template
	status  *pongo2.Template
	overdue *pongo2.Template
	md      goldmark.Markdown
	policy  *bluemonday.Policy
	baseURL string
	loc     *time.Location
}

// NewRenderer compiles the built-in templates.
func NewRenderer(baseURL string, loc *time.Location) *Renderer {
	if loc == nil {
		loc = time.UTC
	}
	return &Renderer{
		alert:   pongo2.Must(pongo2.FromString(alertTemplate)),
		status:  pongo2.Must(pongo2.FromString(statusTemplate)),
		overdue: pongo2.Must(pongo2.FromString(overdueTemplate)),
		md:      goldmark.New(goldmark.WithExtensions(extension.GFM)),
		policy:  bluemonday.UGCPolicy(),
		baseURL: strings.TrimRight(baseURL, "/"),
		loc:     loc,
	}
}

// Markdown renders user text to sanitized HTML.
func (r *Renderer) Markdown(text string) string {
	var buf strings.Builder
	if err := r.md.Convert([]byte(text), &buf); err != nil {
		return r.policy.Sanitize(text)
	}
	return r.policy.Sanitize(buf.String())
}

// Alert renders the new ticket alert sent to the maintenance team.
func (r *Renderer) Alert(t *domain.Ticket, location, category string) (string, string, error) {
	subject := fmt.Sprintf("[%s] New maintenance request: %s", t.TicketNumber, t.Subject)
	html, err := r.alert.Execute(pongo2.Context{
		"ticket":      t,
		"location":    location,
		"category":    category,
		"description": r.Markdown(t.Description),
		"submitted":   t.CreatedAt.In(r.loc).Format("02 Jan 2006 15:04"),
		"link":        r.baseURL + "/tickets/" + t.ID,
	})
	if err != nil {
		return "", "", fmt.Errorf("render alert: %w", err)
	}
	return subject, html, nil
}

// StatusUpdate renders the requester email for a status change.
func (r *Renderer) StatusUpdate(number, subject, requesterName string, status domain.TicketStatus, comment string) (string, string, error) {
	title := fmt.Sprintf("[%s] Your maintenance request is in progress", number)
	if status == domain.TicketStatusCompleted {
		title = fmt.Sprintf("[%s] Your maintenance request has been completed", number)
	}
	ctx := pongo2.Context{
		"name":    requesterName,
		"number":  number,
		"subject": subject,
		"status":  string(status),
	}
	if strings.TrimSpace(comment) != "" {
		ctx["comment"] = r.Markdown(comment)
	}
	html, err := r.status.Execute(ctx)
	if err != nil {
		return "", "", fmt.Errorf("render status update: %w", err)
	}
	return title, html, nil
}

// OverdueDigest renders the daily overdue summary.
func (r *Renderer) OverdueDigest(tickets []domain.Ticket) (string, string, error) {
	subject := fmt.Sprintf("%d overdue maintenance requests", len(tickets))
	rows := make([]map[string]string, 0, len(tickets))
	for _, t := range tickets {
		due := ""
		if t.DueDate != nil {
			due = t.DueDate.In(r.loc).Format("02 Jan 2006")
		}
		rows = append(rows, map[string]string{
			"number":   t.TicketNumber,
			"subject":  t.Subject,
			"priority": string(t.Priority),
			"due":      due,
		})
	}
	html, err := r.overdue.Execute(pongo2.Context{"rows": rows})
	if err != nil {
		return "", "", fmt.Errorf("render overdue digest: %w", err)
	}
	return subject, html, nil
}
