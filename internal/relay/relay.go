// Package relay mirrors SOS lifecycle events to operator sinks such as chat
// channels and event streams. Delivery is best-effort: a failing sink is
// logged and never affects the event it describes.
package relay

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Kinds of notice.
const (
	KindTriggered = "sos.triggered"
	KindResolved  = "sos.resolved"
	KindSwept     = "sos.swept"
)

const (
	// defaultTimeout bounds one sink publish.
	defaultTimeout = 10 * time.Second
	// queueSize bounds notices waiting for background delivery.
	queueSize = 256
)

// Sink is one destination for notices.
type Sink interface {
	// Name identifies the sink in logs.
	Name() string
	// Publish delivers one notice.
	Publish(ctx context.Context, n Notice) error
	// Close releases connections.
	Close() error
}

// Notice is one lifecycle event formatted for operators.
type Notice struct {
	Kind     string    `json:"kind"`
	EventID  string    `json:"eventId"`
	UserID   string    `json:"userId"`
	Status   string    `json:"status"`
	Title    string    `json:"title"`
	Body     string    `json:"body"`
	Severity string    `json:"severity"` // "info", "warning", "error", "success"
	Color    string    `json:"color"`    // sidebar colour hint, e.g. "#36a64f"
	Fields   []Field   `json:"fields,omitempty"`
	At       time.Time `json:"at"`
}

// Field is a key-value pair displayed with a notice.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Short bool   `json:"short,omitempty"` // render side-by-side with another field
}

// Relay fans notices out to every sink.
type Relay struct {
	sinks   []Sink
	timeout time.Duration

	mu      sync.Mutex
	queue   chan queued
	done    chan struct{}
	started bool
	closed  bool
}

type queued struct {
	ctx context.Context
	n   Notice
}

// New creates a Relay over sinks. Nil sinks are ignored.
func New(sinks ...Sink) *Relay {
	r := &Relay{
		timeout: defaultTimeout,
		queue:   make(chan queued, queueSize),
		done:    make(chan struct{}),
	}
	for _, s := range sinks {
		if s != nil {
			r.sinks = append(r.sinks, s)
		}
	}
	return r
}

// Sinks returns the names of the configured sinks.
func (r *Relay) Sinks() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.sinks))
	for _, s := range r.sinks {
		names = append(names, s.Name())
	}
	return names
}

// Broadcast publishes n to every sink concurrently and waits for them.
// Errors are logged. A nil Relay is a no-op.
func (r *Relay) Broadcast(ctx context.Context, n Notice) {
	if r == nil || len(r.sinks) == 0 {
		return
	}
	if n.At.IsZero() {
		n.At = time.Now().UTC()
	}

	var wg sync.WaitGroup
	for _, s := range r.sinks {
		wg.Add(1)
		go func(s Sink) {
			defer wg.Done()
			r.publish(ctx, s, n)
		}(s)
	}
	wg.Wait()
}

// Go queues n for background broadcast, detached from the caller's
// cancellation. Queued notices are broadcast one at a time in the order
// they were queued. Close drains the queue. After Close, or when the
// queue is full, n is dropped with a warning.
func (r *Relay) Go(ctx context.Context, n Notice) {
	if r == nil || len(r.sinks) == 0 {
		return
	}
	if n.At.IsZero() {
		n.At = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	log := logrus.WithFields(logrus.Fields{"event_id": n.EventID, "kind": n.Kind})
	if r.closed {
		log.Warn("relay: closed, notice dropped")
		return
	}
	if !r.started {
		r.started = true
		go r.drain()
	}
	select {
	case r.queue <- queued{ctx: context.WithoutCancel(ctx), n: n}:
	default:
		log.Warn("relay: queue full, notice dropped")
	}
}

func (r *Relay) drain() {
	defer close(r.done)
	for q := range r.queue {
		r.Broadcast(q.ctx, q.n)
	}
}

func (r *Relay) publish(ctx context.Context, s Sink, n Notice) {
	log := logrus.WithFields(logrus.Fields{"sink": s.Name(), "event_id": n.EventID, "kind": n.Kind})
	defer func() {
		if rec := recover(); rec != nil {
			log.Errorf("relay: sink panicked: %v", rec)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := s.Publish(ctx, n); err != nil {
		log.WithError(err).Warn("relay: publish failed")
		return
	}
	log.Debug("relay: published")
}

// Close drains queued broadcasts and closes every sink. Later calls are
// no-ops.
func (r *Relay) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	started := r.started
	r.mu.Unlock()
	if started {
		<-r.done
	}

	var first error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
