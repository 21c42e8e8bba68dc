package events

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Subscription delivers live updates for one ticket until closed.
type Subscription interface {
	Messages() <-chan []byte
	Close() error
}

// Broadcaster fans ticket updates out to live subscribers, possibly across
// several service instances.
type Broadcaster interface {
	Publish(ctx context.Context, ticketID string, message []byte) error
	Subscribe(ctx context.Context, ticketID string) (Subscription, error)
}

// RegisterLiveFeed forwards every dispatched event to the broadcaster.
func RegisterLiveFeed(dispatcher Dispatcher, broadcaster Broadcaster) {
	dispatcher.Subscribe(AllEvents, func(ctx context.Context, event Event) error {
		raw, err := json.Marshal(event)
		if err != nil {
			return err
		}
		return broadcaster.Publish(ctx, event.TicketID, raw)
	})
}

type redisBroadcaster struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisBroadcaster uses Redis pub/sub with one channel per ticket.
func NewRedisBroadcaster(client *redis.Client, prefix string, logger *zap.Logger) Broadcaster {
	return &redisBroadcaster{client: client, prefix: prefix, logger: logger}
}

func (b *redisBroadcaster) channel(ticketID string) string {
	return b.prefix + ":ticket:" + ticketID
}

func (b *redisBroadcaster) Publish(ctx context.Context, ticketID string, message []byte) error {
	return b.client.Publish(ctx, b.channel(ticketID), message).Err()
}

func (b *redisBroadcaster) Subscribe(ctx context.Context, ticketID string) (Subscription, error) {
	ps := b.client.Subscribe(ctx, b.channel(ticketID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	out := make(chan []byte, 16)
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			select {
			case out <- []byte(msg.Payload):
			default:
				b.logger.Warn("live subscriber lagging; dropping update", zap.String("ticket_id", ticketID))
			}
		}
	}()
	return &redisSubscription{ps: ps, out: out}, nil
}

type redisSubscription struct {
	ps  *redis.PubSub
	out chan []byte
}

func (s *redisSubscription) Messages() <-chan []byte { return s.out }

func (s *redisSubscription) Close() error { return s.ps.Close() }

type memoryBroadcaster struct {
	mu   sync.Mutex
	subs map[string]map[*memorySubscription]struct{}
}

// NewMemoryBroadcaster serves a single process.
func NewMemoryBroadcaster() Broadcaster {
	return &memoryBroadcaster{subs: make(map[string]map[*memorySubscription]struct{})}
}

func (b *memoryBroadcaster) Publish(_ context.Context, ticketID string, message []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs[ticketID] {
		select {
		case sub.out <- message:
		default:
		}
	}
	return nil
}

func (b *memoryBroadcaster) Subscribe(_ context.Context, ticketID string) (Subscription, error) {
	sub := &memorySubscription{out: make(chan []byte, 16), ticketID: ticketID, parent: b}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[ticketID] == nil {
		b.subs[ticketID] = make(map[*memorySubscription]struct{})
	}
	b.subs[ticketID][sub] = struct{}{}
	return sub, nil
}

type memorySubscription struct {
	out      chan []byte
	ticketID string
	parent   *memoryBroadcaster
	once     sync.Once
}

func (s *memorySubscription) Messages() <-chan []byte { return s.out }

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.parent.mu.Lock()
		delete(s.parent.subs[s.ticketID], s)
		if len(s.parent.subs[s.ticketID]) == 0 {
			delete(s.parent.subs, s.ticketID)
		}
		s.parent.mu.Unlock()
		close(s.out)
	})
	return nil
}
