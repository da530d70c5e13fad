package events

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event is a check-outcome broadcast to live subscribers.
type Event struct {
	Type           string    `json:"type"`
	CheckID        int64     `json:"check_id"`
	SiteID         int64     `json:"site_id"`
	SiteName       string    `json:"site_name"`
	CheckName      string    `json:"check_name"`
	Status         string    `json:"status"`
	ResponseTimeMS *int      `json:"response_time_ms,omitempty"`
	CheckedAt      time.Time `json:"checked_at"`
	ErrorMessage   string    `json:"error_message,omitempty"`
}

// OrgChannel returns the channel key for an organization's live stream.
func OrgChannel(orgID int64) string {
	return fmt.Sprintf("org:%d", orgID)
}

// Subscription is a live handle on a channel key. Events arrive on C
// until Unsubscribe closes it.
type Subscription struct {
	ID string
	C  chan Event
}

// Bus is a thread-safe, in-process publish/subscribe bus keyed by
// channel name. Each subscriber has a bounded queue; publishing never
// blocks the caller.
type Bus struct {
	queueSize int
	logger    *zap.Logger

	mu   sync.RWMutex
	subs map[string]map[string]*Subscription // channel key → sub ID → subscription
}

// NewBus creates a ready-to-use bus. queueSize bounds each subscriber's
// pending events; events beyond it are dropped for that subscriber.
func NewBus(queueSize int, logger *zap.Logger) *Bus {
	if queueSize <= 0 {
		queueSize = 100
	}
	return &Bus{
		queueSize: queueSize,
		logger:    logger,
		subs:      make(map[string]map[string]*Subscription),
	}
}

// Publish sends an event to every subscriber of the channel key.
// Slow subscribers with full queues miss the event rather than stall
// the publisher.
func (b *Bus) Publish(channel string, e Event) {
	if e.CheckedAt.IsZero() {
		e.CheckedAt = time.Now().UTC()
	}

	// Sends happen under the read lock: Unsubscribe closes sub.C under
	// the write lock, so a send here can never hit a closed channel.
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, s := range b.subs[channel] {
		select {
		case s.C <- e:
		default:
			b.logger.Warn("events: subscriber queue full, dropping event",
				zap.String("channel", channel),
				zap.String("subscriber", s.ID))
		}
	}
}

// Subscribe registers a new subscriber on the channel key.
func (b *Bus) Subscribe(channel string) *Subscription {
	sub := &Subscription{
		ID: uuid.NewString(),
		C:  make(chan Event, b.queueSize),
	}

	b.mu.Lock()
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[string]*Subscription)
	}
	b.subs[channel][sub.ID] = sub
	b.mu.Unlock()

	return sub
}

// Unsubscribe removes the subscription and closes its channel. Safe to
// call more than once.
func (b *Bus) Unsubscribe(channel string, sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	m, ok := b.subs[channel]
	if !ok {
		return
	}
	if _, ok := m[sub.ID]; !ok {
		return
	}
	delete(m, sub.ID)
	if len(m) == 0 {
		delete(b.subs, channel)
	}
	close(sub.C)
}

// SubscriberCount returns the number of live subscribers on a channel.
func (b *Bus) SubscriberCount(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}
