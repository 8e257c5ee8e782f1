package sos

import (
	"sync"
	"time"

	"github.com/cskr/pubsub"
	"github.com/sirupsen/logrus"
	"github.com/zulandar/lifeline/internal/models"
)

// feedBuffer is the per-subscriber and hand-off channel capacity.
const feedBuffer = 64

// StatusChange is published whenever an event's status is written.
type StatusChange struct {
	EventID string             `json:"eventId"`
	UserID  string             `json:"userId"`
	Status  models.EventStatus `json:"status"`
	At      time.Time          `json:"at"`
}

// Feed is an in-process status bus keyed by user. Publishing never blocks:
// changes are handed to a forwarding goroutine and dropped for subscribers
// whose buffers are full.
type Feed struct {
	ps   *pubsub.PubSub
	in   chan StatusChange
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewFeed starts a Feed.
func NewFeed() *Feed {
	f := &Feed{
		ps:   pubsub.New(feedBuffer),
		in:   make(chan StatusChange, feedBuffer),
		done: make(chan struct{}),
	}
	go f.forward()
	return f
}

func topic(userID string) string { return "user:" + userID }

func (f *Feed) forward() {
	defer close(f.done)
	for c := range f.in {
		f.ps.TryPub(c, topic(c.UserID))
	}
}

// Publish queues c for subscribers of its user. A nil Feed is a no-op.
func (f *Feed) Publish(c StatusChange) {
	if f == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	select {
	case f.in <- c:
	default:
		logrus.WithFields(logrus.Fields{"event_id": c.EventID, "user_id": c.UserID}).
			Warn("sos: status feed full, dropping change")
	}
}

// Subscription receives the status changes of one user.
type Subscription struct {
	feed  *Feed
	ch    chan interface{}
	topic string
	once  sync.Once
}

// Subscribe registers for userID's changes. Call Cancel when done. On a
// closed feed the subscription's channel is already closed.
func (f *Feed) Subscribe(userID string) *Subscription {
	t := topic(userID)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		ch := make(chan interface{})
		close(ch)
		return &Subscription{feed: f, ch: ch, topic: t}
	}
	return &Subscription{feed: f, ch: f.ps.Sub(t), topic: t}
}

// C delivers StatusChange values. It is closed after Cancel or when the
// feed shuts down.
func (s *Subscription) C() <-chan interface{} { return s.ch }

// Cancel unsubscribes and drains any buffered changes.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		// Holding mu keeps Close from shutting the hub down before the
		// unsubscribe is delivered. The hub only ever TryPubs, so Unsub
		// cannot block on this subscriber.
		s.feed.mu.Lock()
		if !s.feed.closed {
			s.feed.ps.Unsub(s.ch, s.topic)
		}
		s.feed.mu.Unlock()
		for range s.ch {
		}
	})
}

// Close stops the feed and closes every subscription channel.
func (f *Feed) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	close(f.in)
	f.mu.Unlock()

	<-f.done
	f.ps.Shutdown()
}
