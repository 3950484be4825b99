package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/yungbote/verbatim-backend/internal/platform/logger"
)

const defaultSubscriberBuffer = 32

// Notifier pushes session progress to interested subscribers.
type Notifier interface {
	Subscribe(key SubscriptionKey, cb func(ProgressPayload)) *Subscription
	Unsubscribe(sub *Subscription)
	Publish(ctx context.Context, p ProgressPayload)
}

// Relay carries messages between instances. bus.Bus satisfies it.
type Relay interface {
	Publish(ctx context.Context, msg SSEMessage) error
	StartForwarder(ctx context.Context, onMsg func(m SSEMessage)) error
	Close() error
}

// Subscription delivers to its callback on a dedicated goroutine, in publish
// order. When the buffer is full the oldest pending update is dropped.
type Subscription struct {
	ID  uuid.UUID
	Key SubscriptionKey

	cb     func(ProgressPayload)
	max    int
	mu     sync.Mutex
	queue  []ProgressPayload
	wake   chan struct{}
	done   chan struct{}
	once   sync.Once
	drops  int
	closed bool
}

func newSubscription(key SubscriptionKey, cb func(ProgressPayload), max int) *Subscription {
	s := &Subscription{
		ID:   uuid.New(),
		Key:  key,
		cb:   cb,
		max:  max,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Subscription) enqueue(p ProgressPayload) (dropped bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	if len(s.queue) >= s.max {
		s.queue = s.queue[1:]
		s.drops++
		dropped = true
	}
	s.queue = append(s.queue, p)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return dropped
}

func (s *Subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		for {
			s.mu.Lock()
			if s.closed || len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			next := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			s.cb(next)
		}
	}
}

func (s *Subscription) stop() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.queue = nil
		s.mu.Unlock()
		close(s.done)
	})
}

// Dropped reports how many updates were discarded for this subscriber.
func (s *Subscription) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drops
}

type Hub struct {
	mu            sync.RWMutex
	log           *logger.Logger
	subscriptions map[SubscriptionKey]map[*Subscription]bool
	relay         Relay
	buffer        int
}

type HubOption func(*Hub)

// WithRelay routes Publish through a cross-instance relay; local delivery then
// happens when the relay forwards the message back.
func WithRelay(r Relay) HubOption { return func(h *Hub) { h.relay = r } }

func WithSubscriberBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

func NewHub(log *logger.Logger, opts ...HubOption) *Hub {
	h := &Hub{
		log:           log.With("component", "ProgressHub"),
		subscriptions: make(map[SubscriptionKey]map[*Subscription]bool),
		buffer:        defaultSubscriberBuffer,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Start attaches the relay forwarder, if any. It returns once the relay
// subscription is live.
func (h *Hub) Start(ctx context.Context) error {
	if h.relay == nil {
		return nil
	}
	return h.relay.StartForwarder(ctx, h.Broadcast)
}

func (h *Hub) Close() error {
	h.mu.Lock()
	for key, subs := range h.subscriptions {
		for s := range subs {
			s.stop()
		}
		delete(h.subscriptions, key)
	}
	h.mu.Unlock()
	if h.relay != nil {
		return h.relay.Close()
	}
	return nil
}

func (h *Hub) Subscribe(key SubscriptionKey, cb func(ProgressPayload)) *Subscription {
	if cb == nil || !key.valid() {
		return nil
	}
	sub := newSubscription(key, cb, h.buffer)
	h.mu.Lock()
	subs, ok := h.subscriptions[key]
	if !ok {
		subs = make(map[*Subscription]bool)
		h.subscriptions[key] = subs
	}
	subs[sub] = true
	h.mu.Unlock()
	h.log.Debug("Progress subscriber added", "subscription_id", sub.ID, "channel", key.String())
	return sub
}

func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	if subs, ok := h.subscriptions[sub.Key]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.subscriptions, sub.Key)
		}
	}
	h.mu.Unlock()
	sub.stop()
}

// Publish fans p out to its session channel and its project channel.
func (h *Hub) Publish(ctx context.Context, p ProgressPayload) {
	for _, key := range []SubscriptionKey{SessionKey(p.SessionID), ProjectKey(p.ProjectID)} {
		msg := SSEMessage{Channel: key.String(), Event: SSEEventSessionProgress, Data: p}
		if h.relay != nil {
			err := h.relay.Publish(ctx, msg)
			if err == nil {
				continue
			}
			h.log.Warn("Relay publish failed; delivering locally", "channel", msg.Channel, "error", err)
		}
		h.Broadcast(msg)
	}
}

// Broadcast delivers msg to local subscribers of msg.Channel.
func (h *Hub) Broadcast(msg SSEMessage) {
	key := SubscriptionKey(msg.Channel)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subscriptions[key] {
		if s.enqueue(msg.Data) {
			h.log.Warn("Subscriber slow; dropped oldest progress update", "subscription_id", s.ID, "channel", msg.Channel)
		}
	}
}

// Subscribers is the number of live subscriptions on key.
func (h *Hub) Subscribers(key SubscriptionKey) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions[key])
}
