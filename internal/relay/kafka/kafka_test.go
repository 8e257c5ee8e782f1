package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zulandar/lifeline/internal/relay"
)

type mockWriter struct {
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (m *mockWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if m.err != nil {
		return m.err
	}
	m.msgs = append(m.msgs, msgs...)
	return nil
}

func (m *mockWriter) Close() error {
	m.closed = true
	return nil
}

func TestNew_Validation(t *testing.T) {
	_, err := New(SinkOpts{Brokers: []string{"localhost:9092"}})
	assert.ErrorContains(t, err, "topic is required")

	_, err = New(SinkOpts{Topic: "t"})
	assert.ErrorContains(t, err, "broker")
}

func TestNew_RealWriter(t *testing.T) {
	s, err := New(SinkOpts{Brokers: []string{"localhost:9092"}, Topic: "lifeline.sos"})
	require.NoError(t, err)
	w, ok := s.writer.(*kafkago.Writer)
	require.True(t, ok)
	assert.Equal(t, "lifeline.sos", w.Topic)
	assert.Equal(t, "kafka", s.Name())
}

func TestPublish(t *testing.T) {
	w := &mockWriter{}
	s, err := New(SinkOpts{Topic: "lifeline.sos", Writer: w})
	require.NoError(t, err)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	n := relay.Notice{Kind: relay.KindResolved, EventID: "ev-9", UserID: "u1", Status: "resolved", At: at}
	require.NoError(t, s.Publish(context.Background(), n))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "ev-9", string(msg.Key))
	assert.Equal(t, at, msg.Time)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "kind", msg.Headers[0].Key)
	assert.Equal(t, relay.KindResolved, string(msg.Headers[0].Value))

	var got relay.Notice
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, "ev-9", got.EventID)
	assert.Equal(t, "resolved", got.Status)
}

func TestPublish_WriteError(t *testing.T) {
	s, err := New(SinkOpts{Topic: "t", Writer: &mockWriter{err: errors.New("leader not available")}})
	require.NoError(t, err)

	err = s.Publish(context.Background(), relay.Notice{EventID: "ev"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka: write to t")
}

func TestClose(t *testing.T) {
	w := &mockWriter{}
	s, err := New(SinkOpts{Topic: "t", Writer: w})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.True(t, w.closed)
}
