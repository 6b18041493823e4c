package bus

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Action is one tagged event on the bus.
type Action struct {
	ID      string
	Type    ActionType
	Payload any
	At      time.Time
}

// Bus is a typed publish/subscribe primitive. Producers publish tagged
// actions; consumers subscribe to the tags they care about and receive them
// on a buffered channel. Delivery is non-blocking: a subscriber that lets its
// buffer fill loses actions (logged), it never stalls a publisher.
type Bus struct {
	log *zerolog.Logger

	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

func New(logger *zerolog.Logger) *Bus {
	return &Bus{log: logger, subs: make(map[*Subscription]struct{})}
}

// Subscription receives actions whose type is in its set.
type Subscription struct {
	bus   *Bus
	types map[ActionType]struct{}
	ch    chan Action
	once  sync.Once
}

// Subscribe registers interest in the given action types. With no types the
// subscription receives everything. Cancel must be called when done.
func (b *Bus) Subscribe(buffer int, types ...ActionType) *Subscription {
	if buffer <= 0 {
		buffer = 16
	}
	s := &Subscription{
		bus: b,
		ch:  make(chan Action, buffer),
	}
	if len(types) > 0 {
		s.types = make(map[ActionType]struct{}, len(types))
		for _, t := range types {
			s.types[t] = struct{}{}
		}
	}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// Actions is the receive side of the subscription. The channel is never
// closed; use Cancel plus a context in the consumer's select.
func (s *Subscription) Actions() <-chan Action { return s.ch }

// Cancel removes the subscription. Idempotent.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
	})
}

func (s *Subscription) wants(t ActionType) bool {
	if s.types == nil {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// Publish tags a payload and fans it out to all matching subscriptions.
func (b *Bus) Publish(t ActionType, payload any) Action {
	a := Action{
		ID:      uuid.NewString(),
		Type:    t,
		Payload: payload,
		At:      time.Now(),
	}

	b.mu.RLock()
	// Copy so slow subscribers are handled outside the lock.
	targets := make([]*Subscription, 0, len(b.subs))
	for s := range b.subs {
		if s.wants(t) {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range targets {
		select {
		case s.ch <- a:
		default:
			b.log.Warn().Str("action", string(t)).Msg("bus: subscriber buffer full, action dropped")
		}
	}
	return a
}

// WaitFor blocks until the first action matching one of the given types is
// published, or the context ends. The subscription exists only for the wait,
// so actions published before the call are not seen.
func (b *Bus) WaitFor(ctx context.Context, types ...ActionType) (Action, error) {
	s := b.Subscribe(1, types...)
	defer s.Cancel()
	select {
	case a := <-s.ch:
		return a, nil
	case <-ctx.Done():
		return Action{}, ctx.Err()
	}
}
