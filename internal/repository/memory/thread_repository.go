package memory

import (
	"context"

	"github.com/schoolworks/maintenance-desk/internal/domain"
	"github.com/schoolworks/maintenance-desk/internal/repository"
)

// CommentRepository implements repository.TicketCommentRepository.
type CommentRepository struct{ s *Store }

var _ repository.TicketCommentRepository = (*CommentRepository)(nil)

func (r *CommentRepository) Create(ctx context.Context, comment *domain.TicketComment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.appendComment(comment)
	return nil
}

func (r *CommentRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketComment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return append([]domain.TicketComment(nil), r.s.comments[ticketID]...), nil
}

// HistoryRepository implements repository.TicketHistoryRepository.
type HistoryRepository struct{ s *Store }

var _ repository.TicketHistoryRepository = (*HistoryRepository)(nil)

func (r *HistoryRepository) Create(ctx context.Context, history *domain.TicketHistory) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.appendHistory(history)
	return nil
}

func (r *HistoryRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return append([]domain.TicketHistory(nil), r.s.history[ticketID]...), nil
}

// AttachmentRepository implements repository.AttachmentRepository.
type AttachmentRepository struct{ s *Store }

var _ repository.AttachmentRepository = (*AttachmentRepository)(nil)

func (r *AttachmentRepository) Create(ctx context.Context, attachment *domain.Attachment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	attachment.ID = newID()
	attachment.CreatedAt = r.s.stamp(attachment.CreatedAt)
	r.s.attachments[attachment.TicketID] = append(r.s.attachments[attachment.TicketID], *attachment)
	return nil
}

func (r *AttachmentRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Attachment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return append([]domain.Attachment(nil), r.s.attachments[ticketID]...), nil
}

// caller holds s.mu
func (s *Store) appendComment(c *domain.TicketComment) {
	c.ID = newID()
	c.CreatedAt = s.stamp(c.CreatedAt)
	s.comments[c.TicketID] = append(s.comments[c.TicketID], *c)
}

// caller holds s.mu
func (s *Store) appendHistory(h *domain.TicketHistory) {
	h.ID = newID()
	h.CreatedAt = s.stamp(h.CreatedAt)
	s.history[h.TicketID] = append(s.history[h.TicketID], *h)
}
