// Package channel defines the outbound messaging clients the dispatcher
// fans out to.
package channel

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotConfigured is returned by every Send on a client whose provider
// credentials failed validation at construction.
var ErrNotConfigured = errors.New("channel not configured")

// ErrInvalidToken is returned when the provider rejects every push token of
// a recipient as unregistered.
var ErrInvalidToken = errors.New("invalid push token")

// Recipient is one contact as seen by a channel.
type Recipient struct {
	ContactID uint
	Name      string
	Phone     string // normalized, used by SMS
	AccountID string // linked account, used by push
}

// Message is the alert in the forms channels need.
type Message struct {
	Title string
	Body  string            // full text (SMS)
	Short string            // bounded text (push)
	Data  map[string]string // structured payload (push)
}

// Client is a stateless adapter over one messaging provider. Send must be
// safe for concurrent use and must not panic on misconfiguration.
type Client interface {
	// Name identifies the channel in outcomes and logs.
	Name() string
	// Usable reports whether credentials passed validation at construction.
	Usable() bool
	// Send delivers m to r and returns the provider's message ID.
	Send(ctx context.Context, r Recipient, m Message) (string, error)
}

// SendError is a provider-reported failure for one recipient.
type SendError struct {
	Channel string
	Code    int    // provider error code, 0 if none
	Detail  string // provider message
	Err     error
}

func (e *SendError) Error() string {
	switch {
	case e.Code != 0:
		return fmt.Sprintf("%s: send failed (%d): %s", e.Channel, e.Code, e.Detail)
	case e.Detail != "" && e.Err != nil:
		return fmt.Sprintf("%s: send failed: %s: %v", e.Channel, e.Detail, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("%s: send failed: %s", e.Channel, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("%s: send failed: %v", e.Channel, e.Err)
	}
	return e.Channel + ": send failed"
}

func (e *SendError) Unwrap() error { return e.Err }

// Status is a usability report line for one channel.
type Status struct {
	Name   string `json:"name"`
	Usable bool   `json:"usable"`
}

// Report returns the usability of each client, skipping nil entries.
func Report(clients ...Client) []Status {
	var out []Status
	for _, c := range clients {
		if c == nil {
			continue
		}
		out = append(out, Status{Name: c.Name(), Usable: c.Usable()})
	}
	return out
}
