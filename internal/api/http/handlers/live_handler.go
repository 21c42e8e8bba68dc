package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/schoolworks/maintenance-desk/internal/events"
	"github.com/schoolworks/maintenance-desk/internal/service"
	apperrors "github.com/schoolworks/maintenance-desk/pkg/util"
)

const defaultHeartbeat = 25 * time.Second

// LiveHandler streams ticket updates as server-sent events.
type LiveHandler struct {
	tickets     *service.TicketService
	broadcaster events.Broadcaster
	shutdown    context.Context
	heartbeat   time.Duration
	logger      *zap.Logger
}

// NewLiveHandler constructs handler. Streams end when shutdown is cancelled.
func NewLiveHandler(shutdown context.Context, tickets *service.TicketService, broadcaster events.Broadcaster, logger *zap.Logger) *LiveHandler {
	return &LiveHandler{
		tickets:     tickets,
		broadcaster: broadcaster,
		shutdown:    shutdown,
		heartbeat:   defaultHeartbeat,
		logger:      logger,
	}
}

// Stream GET /api/tickets/:id/live. The first event is a snapshot of the
// ticket; every dispatched ticket event follows as an "update".
func (h *LiveHandler) Stream(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	ticketID := c.Params("id")
	detail, err := h.tickets.Detail(c.UserContext(), actor, ticketID)
	if err != nil {
		return err
	}
	snapshot, err := json.Marshal(ticketResponse(detail.Ticket, time.Now()))
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	sub, err := h.broadcaster.Subscribe(h.shutdown, ticketID)
	if err != nil {
		return apperrors.NewTransientIO("subscribe to ticket", err)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	shutdown, heartbeat, logger := h.shutdown, h.heartbeat, h.logger
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer func() {
			_ = sub.Close()
			logger.Debug("live stream closed", zap.String("ticket_id", ticketID))
		}()
		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()

		if err := writeSSE(w, "snapshot", snapshot); err != nil {
			return
		}
		for {
			select {
			case <-shutdown.Done():
				return
			case msg, ok := <-sub.Messages():
				if !ok {
					return
				}
				if err := writeSSE(w, "update", msg); err != nil {
					return
				}
			case <-ticker.C:
				if _, err := w.WriteString(": ping\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})
	return nil
}

func writeSSE(w *bufio.Writer, event string, data []byte) error {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return w.Flush()
}
