// Package push implements the in-app push channel over Firebase Cloud
// Messaging. Contacts that hold an account are reached on every device
// registered to that account.
package push

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/sirupsen/logrus"
	"github.com/zulandar/lifeline/internal/channel"
	"google.golang.org/api/option"
)

// Name is the channel name reported in outcomes.
const Name = "push"

// multicaster abstracts the FCM client method we use, enabling test mocks.
type multicaster interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// TokenSource supplies and retires the device tokens of an account.
type TokenSource interface {
	PushTokens(ctx context.Context, accountID string) ([]string, error)
	ExpireToken(ctx context.Context, token string) error
}

// Opts holds parameters for creating a push Client.
type Opts struct {
	CredentialsFile string // service account JSON
	ProjectID       string // optional; taken from the credentials when empty
	Tokens          TokenSource
	// For testing: inject a mock FCM client instead of initialising Firebase.
	Messaging multicaster
}

// Client sends alerts as push notifications. Like the SMS client it fails
// closed: an unusable Client returns channel.ErrNotConfigured from Send.
type Client struct {
	fcm    multicaster
	tokens TokenSource
	usable bool
	reason string
}

// New validates the configuration and initialises the FCM client.
func New(ctx context.Context, opts Opts) *Client {
	c := &Client{tokens: opts.Tokens}

	if opts.Tokens == nil {
		c.disable("no device token source")
		return c
	}

	if opts.Messaging != nil {
		c.fcm = opts.Messaging
		c.usable = true
		return c
	}

	path := strings.TrimSpace(opts.CredentialsFile)
	if path == "" {
		c.disable("credentials file is not set")
		return c
	}
	if info, err := os.Stat(path); err != nil {
		c.disable(fmt.Sprintf("credentials file: %v", err))
		return c
	} else if info.IsDir() {
		c.disable("credentials file is a directory")
		return c
	}

	var cfg *firebase.Config
	if opts.ProjectID != "" {
		cfg = &firebase.Config{ProjectID: opts.ProjectID}
	}
	app, err := firebase.NewApp(ctx, cfg, option.WithCredentialsFile(path))
	if err != nil {
		c.disable(fmt.Sprintf("initialise firebase app: %v", err))
		return c
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		c.disable(fmt.Sprintf("initialise messaging client: %v", err))
		return c
	}

	c.fcm = client
	c.usable = true
	logrus.WithField("channel", Name).Info("push: Firebase Cloud Messaging initialised")
	return c
}

func (c *Client) disable(reason string) {
	c.reason = reason
	logrus.WithField("channel", Name).Warnf("push: channel disabled: %s", reason)
}

// Name implements channel.Client.
func (c *Client) Name() string { return Name }

// Usable implements channel.Client.
func (c *Client) Usable() bool { return c.usable }

// Reason explains why the client is unusable, or "" when it is usable.
func (c *Client) Reason() string { return c.reason }

// Send implements channel.Client. The push counts as sent when at least one
// device accepted it; the first provider message ID is returned. Tokens the
// provider reports as unregistered are expired.
func (c *Client) Send(ctx context.Context, r channel.Recipient, m channel.Message) (string, error) {
	if !c.usable {
		return "", channel.ErrNotConfigured
	}
	if r.AccountID == "" {
		return "", &channel.SendError{Channel: Name, Detail: "contact has no linked account"}
	}

	tokens, err := c.tokens.PushTokens(ctx, r.AccountID)
	if err != nil {
		return "", &channel.SendError{Channel: Name, Detail: "load device tokens", Err: err}
	}
	if len(tokens) == 0 {
		return "", &channel.SendError{Channel: Name, Detail: "no registered devices"}
	}

	resp, err := c.fcm.SendEachForMulticast(ctx, buildMessage(tokens, m))
	if err != nil {
		return "", &channel.SendError{Channel: Name, Err: err}
	}

	var (
		firstID  string
		invalid  int
		firstErr error
	)
	for i, res := range resp.Responses {
		if res == nil {
			continue
		}
		if res.Success {
			if firstID == "" {
				firstID = res.MessageID
			}
			continue
		}
		if firstErr == nil {
			firstErr = res.Error
		}
		if i < len(tokens) && isInvalidToken(res.Error) {
			invalid++
			c.expire(ctx, tokens[i])
		}
	}

	if firstID != "" {
		return firstID, nil
	}
	if invalid > 0 && invalid == len(tokens) {
		return "", &channel.SendError{Channel: Name, Detail: "all device tokens are invalid", Err: channel.ErrInvalidToken}
	}
	if firstErr == nil {
		firstErr = errors.New("no device accepted the notification")
	}
	return "", &channel.SendError{Channel: Name, Err: firstErr}
}

func (c *Client) expire(ctx context.Context, token string) {
	if err := c.tokens.ExpireToken(ctx, token); err != nil {
		logrus.WithError(err).WithField("channel", Name).Warn("push: expire invalid token")
	}
}

// isInvalidToken reports whether the provider rejected the token itself
// rather than the delivery.
func isInvalidToken(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, channel.ErrInvalidToken) {
		return true
	}
	return messaging.IsUnregistered(err) || messaging.IsInvalidArgument(err)
}

// buildMessage translates a channel.Message into an FCM multicast message.
func buildMessage(tokens []string, m channel.Message) *messaging.MulticastMessage {
	data := make(map[string]string, len(m.Data)+1)
	for k, v := range m.Data {
		data[k] = v
	}
	data["type"] = "sos"

	return &messaging.MulticastMessage{
		Tokens: tokens,
		Data:   data,
		Notification: &messaging.Notification{
			Title: m.Title,
			Body:  m.Short,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{"apns-priority": "10"},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Sound: "default"},
			},
		},
	}
}
