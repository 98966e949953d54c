package hub

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/pranjal030703/taskflow-pro/internal/models"
)

var (
	eventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskflow_events_published_total",
			Help: "Task events fanned out to subscribers, by type",
		},
		[]string{"type"},
	)

	subscribersDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "taskflow_subscribers_dropped_total",
			Help: "Subscriptions dropped for not keeping up with the feed",
		},
	)
)

// Publisher is the mutation side's view of the hub.
type Publisher interface {
	Publish(event *models.Event)
}

// Hub fans task events out to connected clients. Delivery is scoped by the
// event's owner: a subscription registered for owner A never sees owner B's
// events. Delivery is best-effort and at-most-once; a subscriber that cannot
// keep up is dropped and must re-sync on reconnect.
type Hub struct {
	logger     *logrus.Logger
	sendBuffer int

	mu          sync.RWMutex
	subscribers map[string]map[*Subscription]struct{} // owner -> subscriptions
}

// Subscription is one connected client's event feed.
type Subscription struct {
	hub   *Hub
	owner string

	mu     sync.Mutex
	closed bool
	events chan *models.Event
}

func New(logger *logrus.Logger, sendBuffer int) *Hub {
	return &Hub{
		logger:      logger,
		sendBuffer:  sendBuffer,
		subscribers: make(map[string]map[*Subscription]struct{}),
	}
}

// Subscribe registers a feed for owner. The caller must drain Events until
// it is closed, and call Close when done.
func (h *Hub) Subscribe(owner string) *Subscription {
	sub := &Subscription{
		hub:    h,
		owner:  owner,
		events: make(chan *models.Event, h.sendBuffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subscribers[owner] == nil {
		h.subscribers[owner] = make(map[*Subscription]struct{})
	}
	h.subscribers[owner][sub] = struct{}{}
	return sub
}

// Publish delivers event to every subscription of event.Owner. It never
// blocks: a subscription whose buffer is full is dropped on the spot, which
// forces that client through the reconnect-and-resync path instead of
// stalling everyone else behind a slow connection.
func (h *Hub) Publish(event *models.Event) {
	h.mu.RLock()
	subs := make([]*Subscription, 0, len(h.subscribers[event.Owner]))
	for sub := range h.subscribers[event.Owner] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	eventsPublished.WithLabelValues(string(event.Type)).Inc()

	for _, sub := range subs {
		if !sub.trySend(event) {
			subscribersDropped.Inc()
			h.logger.WithFields(logrus.Fields{
				"component": "hub",
				"owner":     event.Owner,
			}).Warn("dropping slow subscriber")
			sub.Close()
		}
	}
}

// Events is the feed of task events, delivered in commit order for the
// subscription's owner. The channel is closed when the subscription ends.
func (s *Subscription) Events() <-chan *models.Event {
	return s.events
}

// Close unregisters the subscription and closes its event channel. Safe to
// call more than once and concurrently with Publish.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.events)
	s.mu.Unlock()

	s.hub.mu.Lock()
	if subs := s.hub.subscribers[s.owner]; subs != nil {
		delete(subs, s)
		if len(subs) == 0 {
			delete(s.hub.subscribers, s.owner)
		}
	}
	s.hub.mu.Unlock()
}

// trySend queues event without blocking; false means the buffer was full.
// The subscription mutex keeps the send ordered against Close so a publish
// can never hit a closed channel.
func (s *Subscription) trySend(event *models.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.events <- event:
		return true
	default:
		return false
	}
}

// SubscriberCount reports how many feeds are registered for owner.
func (h *Hub) SubscriberCount(owner string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[owner])
}
