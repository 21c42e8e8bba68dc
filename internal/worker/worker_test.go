package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolworks/maintenance-desk/internal/config"
	"github.com/schoolworks/maintenance-desk/internal/mailer"
)

type stubSender struct {
	sent []mailer.Message
	err  error
}

func (s *stubSender) Send(_ context.Context, msg mailer.Message) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func TestHandleSendsJob(t *testing.T) {
	sender := &stubSender{}
	w := NewEmailWorker(config.QueueConfig{EmailQueue: "q"}, sender, nil, nil)

	body, err := json.Marshal(mailer.Job{
		Kind:     "status_update",
		TicketID: "t-1",
		Message:  mailer.Message{To: []string{"jo@school.org"}, Subject: "Hi", HTML: "<p>x</p>"},
		QueuedAt: time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, w.Handle(context.Background(), body))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Hi", sender.sent[0].Subject)
}

func TestHandleRejectsMalformedJobs(t *testing.T) {
	w := NewEmailWorker(config.QueueConfig{}, &stubSender{}, nil, nil)

	err := w.Handle(context.Background(), []byte("{not json"))
	assert.ErrorIs(t, err, ErrMalformedJob)

	body, _ := json.Marshal(mailer.Job{Kind: "status_update"})
	err = w.Handle(context.Background(), body)
	assert.ErrorIs(t, err, ErrMalformedJob)
}

func TestHandleSurfacesSendFailure(t *testing.T) {
	w := NewEmailWorker(config.QueueConfig{}, &stubSender{err: errors.New("smtp down")}, nil, nil)
	body, _ := json.Marshal(mailer.Job{Kind: "ticket_alert", Message: mailer.Message{To: []string{"a@b.c"}}})

	err := w.Handle(context.Background(), body)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMalformedJob)
}

type countingSweeper struct{ calls atomic.Int32 }

func (c *countingSweeper) SweepOverdue(context.Context) (int, error) {
	c.calls.Add(1)
	return 2, nil
}

func TestOverdueScheduler(t *testing.T) {
	_, err := NewOverdueScheduler("not a cron", time.UTC, &countingSweeper{}, nil)
	require.Error(t, err)

	sweeper := &countingSweeper{}
	s, err := NewOverdueScheduler("0 7 * * 1-5", time.UTC, sweeper, nil)
	require.NoError(t, err)

	s.RunOnce(context.Background())
	assert.Equal(t, int32(1), sweeper.calls.Load())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
