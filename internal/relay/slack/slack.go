// Package slack implements the relay Sink for a Slack channel.
package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/zulandar/lifeline/internal/relay"
)

// maxRetries is the max number of retries for rate-limited API calls.
const maxRetries = 3

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Sink posts notices to one Slack channel as attachments.
type Sink struct {
	client    slackClient
	channelID string
	backoff   time.Duration // fallback wait when Slack sends no Retry-After
}

// SinkOpts holds parameters for creating a Slack Sink.
type SinkOpts struct {
	BotToken  string // xoxb-... Slack bot token
	ChannelID string
	// For testing: inject a mock client instead of the real Slack API.
	Client slackClient
}

// New creates a Slack Sink.
func New(opts SinkOpts) (*Sink, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("slack: channel id is required")
	}

	s := &Sink{client: opts.Client, channelID: opts.ChannelID, backoff: time.Second}
	if s.client == nil {
		s.client = slackapi.New(opts.BotToken)
	}
	return s, nil
}

// Name implements relay.Sink.
func (s *Sink) Name() string { return "slack" }

// Publish posts n to the configured channel.
func (s *Sink) Publish(ctx context.Context, n relay.Notice) error {
	options := buildMessageOptions(n)
	err := s.retryOnRateLimit(ctx, func() error {
		_, _, postErr := s.client.PostMessageContext(ctx, s.channelID, options...)
		return postErr
	})
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}

// Close implements relay.Sink; the HTTP client holds no connection state.
func (s *Sink) Close() error { return nil }

// buildMessageOptions translates a Notice into Slack MsgOptions. The title
// doubles as the notification fallback text.
func buildMessageOptions(n relay.Notice) []slackapi.MsgOption {
	return []slackapi.MsgOption{
		slackapi.MsgOptionText(n.Title, false),
		slackapi.MsgOptionAttachments(noticeToAttachment(n)),
	}
}

// noticeToAttachment converts a Notice to a Slack Attachment.
func noticeToAttachment(n relay.Notice) slackapi.Attachment {
	att := slackapi.Attachment{
		Title:    n.Title,
		Text:     n.Body,
		Color:    n.Color,
		Fallback: n.Title,
	}
	for _, f := range n.Fields {
		att.Fields = append(att.Fields, slackapi.AttachmentField{
			Title: f.Name,
			Value: f.Value,
			Short: f.Short,
		})
	}
	if !n.At.IsZero() {
		att.Ts = json.Number(strconv.FormatInt(n.At.Unix(), 10))
	}
	return att
}

// retryOnRateLimit calls fn and retries with backoff on Slack rate limit errors.
// It respects context cancellation and the RetryAfter duration from Slack.
func (s *Sink) retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var rle *slackapi.RateLimitedError
		if !errors.As(err, &rle) {
			return err // not a rate limit error, don't retry
		}

		if attempt == maxRetries {
			return err
		}

		wait := rle.RetryAfter
		if wait <= 0 {
			wait = time.Duration(math.Pow(2, float64(attempt))) * s.backoff
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil // unreachable
}
