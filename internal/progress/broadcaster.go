// Package progress fans job progress events out to subscribers.
package progress

import (
	"sync"

	"github.com/google/uuid"

	"github.com/timmy/csvgen/internal/domain"
	"github.com/timmy/csvgen/internal/logger"
	"github.com/timmy/csvgen/internal/metrics"
)

// DefaultBufferSize is the per-subscriber event buffer.
const DefaultBufferSize = 64

// Publisher is the side of the broadcaster the job coordinator depends on.
type Publisher interface {
	Publish(event domain.ProgressEvent)
}

// Subscription receives events published after it was created.
// C is closed when the subscription ends, either by Unsubscribe, by the
// broadcaster dropping a subscriber that fell behind, or by Close.
type Subscription struct {
	ID string
	C  <-chan domain.ProgressEvent

	ch chan domain.ProgressEvent
}

// Broadcaster delivers each event to every current subscriber at most once.
// Delivery never blocks the publisher: a subscriber whose buffer is full is
// treated as unreachable and removed.
type Broadcaster struct {
	bufferSize int
	log        *logger.Logger

	mu     sync.Mutex
	subs   map[string]*Subscription
	closed bool
}

// NewBroadcaster creates a broadcaster. bufferSize <= 0 uses DefaultBufferSize.
func NewBroadcaster(bufferSize int, log *logger.Logger) *Broadcaster {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &Broadcaster{
		bufferSize: bufferSize,
		log:        log.WithField(logger.FieldComponent, "progress"),
		subs:       make(map[string]*Subscription),
	}
}

// Subscribe registers a new observer. After Close the returned channel is already closed.
func (b *Broadcaster) Subscribe() *Subscription {
	ch := make(chan domain.ProgressEvent, b.bufferSize)
	sub := &Subscription{ID: uuid.New().String(), C: ch, ch: ch}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return sub
	}
	b.subs[sub.ID] = sub
	metrics.ProgressSubscribers.Set(float64(len(b.subs)))
	b.log.WithField(logger.FieldSubscriberID, sub.ID).Debug("Progress subscriber connected")
	return sub
}

// Unsubscribe removes the subscriber and closes its channel. Unknown ids are ignored.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(id)
}

func (b *Broadcaster) removeLocked(id string) bool {
	sub, ok := b.subs[id]
	if !ok {
		return false
	}
	delete(b.subs, id)
	close(sub.ch)
	metrics.ProgressSubscribers.Set(float64(len(b.subs)))
	return true
}

// Publish delivers event to all current subscribers.
// Events from one publisher reach each subscriber in publish order.
func (b *Broadcaster) Publish(event domain.ProgressEvent) {
	if event.Type == "" {
		event.Type = domain.EventTypeProgress
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	for id, sub := range b.subs {
		select {
		case sub.ch <- event:
		default:
			b.removeLocked(id)
			b.log.WithFields(logger.Fields{
				logger.FieldSubscriberID: id,
				logger.FieldJobID:        event.JobID,
			}).Warn("Dropped unreachable progress subscriber")
		}
	}
}

// Subscribers returns the number of current subscribers.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close ends every subscription. Later publishes are ignored.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id := range b.subs {
		b.removeLocked(id)
	}
}
