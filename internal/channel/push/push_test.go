package push

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zulandar/lifeline/internal/channel"
)

// mockFCM records multicast calls and returns a canned batch response.
type mockFCM struct {
	mu    sync.Mutex
	calls []*messaging.MulticastMessage
	resp  *messaging.BatchResponse
	err   error
}

func (m *mockFCM) SendEachForMulticast(_ context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, msg)
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.resp, nil
}

// mockTokens serves a fixed token list per account and records expiries.
type mockTokens struct {
	mu      sync.Mutex
	tokens  map[string][]string
	err     error
	expired []string
}

func (m *mockTokens) PushTokens(_ context.Context, accountID string) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.tokens[accountID], nil
}

func (m *mockTokens) ExpireToken(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expired = append(m.expired, token)
	return nil
}

func okResponse(id string) *messaging.SendResponse {
	return &messaging.SendResponse{Success: true, MessageID: id}
}

func failResponse(err error) *messaging.SendResponse {
	return &messaging.SendResponse{Success: false, Error: err}
}

var testMessage = channel.Message{
	Title: "SOS from Ada",
	Short: "Ada needs help",
	Data:  map[string]string{"eventId": "ev-1"},
}

// --- construction ---

func TestNew_MissingCredentials(t *testing.T) {
	c := New(context.Background(), Opts{Tokens: &mockTokens{}})
	assert.False(t, c.Usable())
	assert.Contains(t, c.Reason(), "not set")
	assert.Equal(t, "push", c.Name())
}

func TestNew_CredentialsFileMissing(t *testing.T) {
	c := New(context.Background(), Opts{
		CredentialsFile: filepath.Join(t.TempDir(), "nope.json"),
		Tokens:          &mockTokens{},
	})
	assert.False(t, c.Usable())
	assert.Contains(t, c.Reason(), "credentials file")
}

func TestNew_CredentialsIsDirectory(t *testing.T) {
	c := New(context.Background(), Opts{CredentialsFile: t.TempDir(), Tokens: &mockTokens{}})
	assert.False(t, c.Usable())
	assert.Contains(t, c.Reason(), "directory")
}

func TestNew_MalformedCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sa.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))

	c := New(context.Background(), Opts{CredentialsFile: path, Tokens: &mockTokens{}})
	assert.False(t, c.Usable())
}

func TestNew_NoTokenSource(t *testing.T) {
	c := New(context.Background(), Opts{Messaging: &mockFCM{}})
	assert.False(t, c.Usable())
}

func TestNew_InjectedMessaging(t *testing.T) {
	c := New(context.Background(), Opts{Messaging: &mockFCM{}, Tokens: &mockTokens{}})
	assert.True(t, c.Usable())
	assert.Empty(t, c.Reason())
}

// --- Send ---

func TestSend_NotConfigured(t *testing.T) {
	c := New(context.Background(), Opts{Tokens: &mockTokens{}})
	_, err := c.Send(context.Background(), channel.Recipient{AccountID: "u1"}, testMessage)
	assert.ErrorIs(t, err, channel.ErrNotConfigured)
}

func TestSend_Success(t *testing.T) {
	fcm := &mockFCM{resp: &messaging.BatchResponse{
		SuccessCount: 1,
		Responses:    []*messaging.SendResponse{okResponse("projects/p/messages/1")},
	}}
	tokens := &mockTokens{tokens: map[string][]string{"u1": {"tok-a"}}}
	c := New(context.Background(), Opts{Messaging: fcm, Tokens: tokens})

	id, err := c.Send(context.Background(), channel.Recipient{ContactID: 3, AccountID: "u1"}, testMessage)
	require.NoError(t, err)
	assert.Equal(t, "projects/p/messages/1", id)

	require.Len(t, fcm.calls, 1)
	msg := fcm.calls[0]
	assert.Equal(t, []string{"tok-a"}, msg.Tokens)
	assert.Equal(t, "SOS from Ada", msg.Notification.Title)
	assert.Equal(t, "Ada needs help", msg.Notification.Body)
	assert.Equal(t, "ev-1", msg.Data["eventId"])
	assert.Equal(t, "sos", msg.Data["type"])
	assert.Equal(t, "high", msg.Android.Priority)
	assert.Empty(t, tokens.expired)
}

func TestSend_PartialDeviceFailureStillSent(t *testing.T) {
	fcm := &mockFCM{resp: &messaging.BatchResponse{
		SuccessCount: 1,
		FailureCount: 1,
		Responses: []*messaging.SendResponse{
			failResponse(channel.ErrInvalidToken),
			okResponse("m-2"),
		},
	}}
	tokens := &mockTokens{tokens: map[string][]string{"u1": {"stale", "fresh"}}}
	c := New(context.Background(), Opts{Messaging: fcm, Tokens: tokens})

	id, err := c.Send(context.Background(), channel.Recipient{AccountID: "u1"}, testMessage)
	require.NoError(t, err)
	assert.Equal(t, "m-2", id)
	assert.Equal(t, []string{"stale"}, tokens.expired)
}

func TestSend_AllTokensInvalid(t *testing.T) {
	fcm := &mockFCM{resp: &messaging.BatchResponse{
		FailureCount: 2,
		Responses: []*messaging.SendResponse{
			failResponse(channel.ErrInvalidToken),
			failResponse(channel.ErrInvalidToken),
		},
	}}
	tokens := &mockTokens{tokens: map[string][]string{"u1": {"a", "b"}}}
	c := New(context.Background(), Opts{Messaging: fcm, Tokens: tokens})

	_, err := c.Send(context.Background(), channel.Recipient{AccountID: "u1"}, testMessage)
	assert.ErrorIs(t, err, channel.ErrInvalidToken)
	assert.ElementsMatch(t, []string{"a", "b"}, tokens.expired)
}

func TestSend_DeliveryFailureKeepsTokens(t *testing.T) {
	fcm := &mockFCM{resp: &messaging.BatchResponse{
		FailureCount: 1,
		Responses:    []*messaging.SendResponse{failResponse(errors.New("quota exceeded"))},
	}}
	tokens := &mockTokens{tokens: map[string][]string{"u1": {"a"}}}
	c := New(context.Background(), Opts{Messaging: fcm, Tokens: tokens})

	_, err := c.Send(context.Background(), channel.Recipient{AccountID: "u1"}, testMessage)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Empty(t, tokens.expired)
}

func TestSend_NoDevices(t *testing.T) {
	fcm := &mockFCM{}
	c := New(context.Background(), Opts{Messaging: fcm, Tokens: &mockTokens{}})

	_, err := c.Send(context.Background(), channel.Recipient{AccountID: "u1"}, testMessage)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no registered devices")
	assert.Empty(t, fcm.calls)
}

func TestSend_NoAccount(t *testing.T) {
	fcm := &mockFCM{}
	c := New(context.Background(), Opts{Messaging: fcm, Tokens: &mockTokens{}})

	_, err := c.Send(context.Background(), channel.Recipient{Phone: "+15551234567"}, testMessage)
	require.Error(t, err)
	assert.Empty(t, fcm.calls)
}

func TestSend_TokenLookupError(t *testing.T) {
	c := New(context.Background(), Opts{Messaging: &mockFCM{}, Tokens: &mockTokens{err: errors.New("db down")}})

	_, err := c.Send(context.Background(), channel.Recipient{AccountID: "u1"}, testMessage)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestSend_ProviderError(t *testing.T) {
	fcm := &mockFCM{err: errors.New("unavailable")}
	tokens := &mockTokens{tokens: map[string][]string{"u1": {"a"}}}
	c := New(context.Background(), Opts{Messaging: fcm, Tokens: tokens})

	_, err := c.Send(context.Background(), channel.Recipient{AccountID: "u1"}, testMessage)
	var se *channel.SendError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "push", se.Channel)
}

// --- helpers ---

func TestIsInvalidToken(t *testing.T) {
	assert.False(t, isInvalidToken(nil))
	assert.False(t, isInvalidToken(errors.New("boom")))
	assert.True(t, isInvalidToken(channel.ErrInvalidToken))
}

func TestBuildMessage_DoesNotMutateInput(t *testing.T) {
	in := channel.Message{Data: map[string]string{"k": "v"}}
	out := buildMessage([]string{"t"}, in)
	assert.Equal(t, "sos", out.Data["type"])
	_, ok := in.Data["type"]
	assert.False(t, ok)
}
