// Package memory provides in-process repositories used by tests and by the
// development server when no database is configured.
package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/schoolworks/maintenance-desk/internal/domain"
)

// Store holds every table behind one lock so multi-table writes are atomic.
type Store struct {
	mu            sync.RWMutex
	tickets       map[string]*domain.Ticket
	comments      map[string][]domain.TicketComment
	history       map[string][]domain.TicketHistory
	attachments   map[string][]domain.Attachment
	notifications []domain.Notification
	admins        map[string]domain.RoleRecord
	staff         map[string]domain.RoleRecord
	categories    []domain.Category
	locations     []domain.Location
	counters      map[string]int
	now           func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		tickets:     make(map[string]*domain.Ticket),
		comments:    make(map[string][]domain.TicketComment),
		history:     make(map[string][]domain.TicketHistory),
		attachments: make(map[string][]domain.Attachment),
		admins:      make(map[string]domain.RoleRecord),
		staff:       make(map[string]domain.RoleRecord),
		counters:    make(map[string]int),
		now:         time.Now,
	}
}

// SetClock overrides the clock used for generated timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) stamp(t time.Time) time.Time {
	if t.IsZero() {
		return s.now().UTC()
	}
	return t
}

func newID() string {
	return uuid.NewString()
}

// Tickets returns the ticket repository view.
func (s *Store) Tickets() *TicketRepository { return &TicketRepository{s} }

// Comments returns the comment repository view.
func (s *Store) Comments() *CommentRepository { return &CommentRepository{s} }

// History returns the history repository view.
func (s *Store) History() *HistoryRepository { return &HistoryRepository{s} }

// Attachments returns the attachment repository view.
func (s *Store) Attachments() *AttachmentRepository { return &AttachmentRepository{s} }

// Notifications returns the notification repository view.
func (s *Store) Notifications() *NotificationRepository { return &NotificationRepository{s} }

// Roles returns the role record repository view.
func (s *Store) Roles() *RoleRepository { return &RoleRepository{s} }

// Catalog returns the reference data repository view.
func (s *Store) Catalog() *CatalogRepository { return &CatalogRepository{s} }

// Counters returns the ticket counter view.
func (s *Store) Counters() *CounterRepository { return &CounterRepository{s} }
