// Package sms implements the SMS channel over the Twilio Messages API.
package sms

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	twapi "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/zulandar/lifeline/internal/channel"
	"golang.org/x/time/rate"
)

// Name is the channel name reported in outcomes.
const Name = "sms"

var (
	accountSIDRx = regexp.MustCompile(`^AC[0-9a-fA-F]{32}$`)
	serviceSIDRx = regexp.MustCompile(`^MG[0-9a-fA-F]{32}$`)
	e164Rx       = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)
)

// messageCreator abstracts the Twilio API method we use, enabling test mocks.
type messageCreator interface {
	CreateMessage(params *twapi.CreateMessageParams) (*twapi.ApiV2010Message, error)
}

// Opts holds parameters for creating an SMS Client.
type Opts struct {
	AccountSID          string
	AuthToken           string
	FromNumber          string  // E.164 sender; ignored when MessagingServiceSID is set
	MessagingServiceSID string  // MG... sender pool
	RatePerSecond       float64 // provider throughput cap; <= 0 means unlimited
	// For testing: inject a mock API instead of the real Twilio client.
	API messageCreator
}

// Client sends alerts as SMS. A Client whose credentials fail validation
// is still returned; it reports Usable() == false and every Send fails
// with channel.ErrNotConfigured.
type Client struct {
	api        messageCreator
	from       string
	serviceSID string
	limiter    *rate.Limiter
	usable     bool
	reason     string
}

// New validates credentials and builds a Client.
func New(opts Opts) *Client {
	c := &Client{
		from:       strings.TrimSpace(opts.FromNumber),
		serviceSID: strings.TrimSpace(opts.MessagingServiceSID),
		limiter:    newLimiter(opts.RatePerSecond),
	}

	if reason := validate(opts); reason != "" {
		c.reason = reason
		logrus.WithField("channel", Name).Warnf("sms: channel disabled: %s", reason)
		return c
	}

	c.api = opts.API
	if c.api == nil {
		rc := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: strings.TrimSpace(opts.AccountSID),
			Password: strings.TrimSpace(opts.AuthToken),
		})
		c.api = rc.Api
	}
	c.usable = true
	return c
}

// validate performs structural checks on the credentials and returns the
// first problem found, or "" if they look usable.
func validate(opts Opts) string {
	sid := strings.TrimSpace(opts.AccountSID)
	token := strings.TrimSpace(opts.AuthToken)
	from := strings.TrimSpace(opts.FromNumber)
	service := strings.TrimSpace(opts.MessagingServiceSID)

	switch {
	case sid == "":
		return "account SID is not set"
	case !accountSIDRx.MatchString(sid):
		return "account SID must be AC followed by 32 hex characters"
	case token == "":
		return "auth token is not set"
	case len(token) != 32:
		return "auth token must be 32 characters"
	case service != "":
		if !serviceSIDRx.MatchString(service) {
			return "messaging service SID must be MG followed by 32 hex characters"
		}
	case from == "":
		return "from number or messaging service SID is required"
	case !e164Rx.MatchString(from):
		return "from number must be in E.164 format"
	}
	return ""
}

func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Name implements channel.Client.
func (c *Client) Name() string { return Name }

// Usable implements channel.Client.
func (c *Client) Usable() bool { return c.usable }

// Reason explains why the client is unusable, or "" when it is usable.
func (c *Client) Reason() string { return c.reason }

// Send implements channel.Client.
func (c *Client) Send(ctx context.Context, r channel.Recipient, m channel.Message) (string, error) {
	if !c.usable {
		return "", channel.ErrNotConfigured
	}
	if r.Phone == "" {
		return "", &channel.SendError{Channel: Name, Detail: "no phone number"}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", &channel.SendError{Channel: Name, Err: err}
	}

	params := &twapi.CreateMessageParams{}
	params.SetTo(r.Phone)
	params.SetBody(m.Body)
	if c.serviceSID != "" {
		params.SetMessagingServiceSid(c.serviceSID)
	} else {
		params.SetFrom(c.from)
	}

	resp, err := c.api.CreateMessage(params)
	if err != nil {
		var rest *twclient.TwilioRestError
		if errors.As(err, &rest) {
			return "", &channel.SendError{Channel: Name, Code: rest.Code, Detail: rest.Message, Err: err}
		}
		return "", &channel.SendError{Channel: Name, Err: err}
	}
	if resp == nil || resp.Sid == nil || *resp.Sid == "" {
		return "", &channel.SendError{Channel: Name, Detail: "provider returned no message id"}
	}
	if resp.Status != nil && (*resp.Status == "failed" || *resp.Status == "undelivered") {
		detail := *resp.Status
		if resp.ErrorMessage != nil && *resp.ErrorMessage != "" {
			detail = *resp.ErrorMessage
		}
		return "", &channel.SendError{Channel: Name, Detail: detail}
	}
	return *resp.Sid, nil
}
