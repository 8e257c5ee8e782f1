// Package kafka implements the relay Sink that publishes notices as JSON
// records to a Kafka topic, keyed by event ID.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/zulandar/lifeline/internal/relay"
)

// messageWriter abstracts the kafka-go Writer methods we use, enabling
// test mocks.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Sink publishes notices to one topic.
type Sink struct {
	writer messageWriter
	topic  string
}

// SinkOpts holds parameters for creating a Kafka Sink.
type SinkOpts struct {
	Brokers []string
	Topic   string
	// For testing: inject a mock writer instead of a real producer.
	Writer messageWriter
}

// New creates a Kafka Sink. The producer connects lazily on first write.
func New(opts SinkOpts) (*Sink, error) {
	if opts.Topic == "" {
		return nil, fmt.Errorf("kafka: topic is required")
	}
	if opts.Writer == nil && len(opts.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker is required")
	}

	s := &Sink{writer: opts.Writer, topic: opts.Topic}
	if s.writer == nil {
		s.writer = &kafkago.Writer{
			Addr:         kafkago.TCP(opts.Brokers...),
			Topic:        opts.Topic,
			Balancer:     &kafkago.Hash{},
			RequiredAcks: kafkago.RequireAll,
			BatchTimeout: 50 * time.Millisecond,
		}
	}
	return s, nil
}

// Name implements relay.Sink.
func (s *Sink) Name() string { return "kafka" }

// Publish writes n as one record. Records of the same event share a key so
// they land on one partition in order.
func (s *Sink) Publish(ctx context.Context, n relay.Notice) error {
	value, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("kafka: marshal notice: %w", err)
	}
	msg := kafkago.Message{
		Key:   []byte(n.EventID),
		Value: value,
		Time:  n.At,
		Headers: []kafkago.Header{
			{Key: "kind", Value: []byte(n.Kind)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write to %s: %w", s.topic, err)
	}
	return nil
}

// Close flushes and closes the producer.
func (s *Sink) Close() error {
	if err := s.writer.Close(); err != nil {
		return fmt.Errorf("kafka: close writer: %w", err)
	}
	return nil
}
