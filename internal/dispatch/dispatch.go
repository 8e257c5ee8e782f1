// Package dispatch fans one SOS alert out to every resolved contact over
// the configured channels and aggregates the per-recipient outcomes.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zulandar/lifeline/internal/alert"
	"github.com/zulandar/lifeline/internal/channel"
	"github.com/zulandar/lifeline/internal/metrics"
	"github.com/zulandar/lifeline/internal/models"
	"github.com/zulandar/lifeline/internal/phone"
	"golang.org/x/sync/errgroup"
)

// ErrNoRecipients is returned when Dispatch is called with no contacts.
var ErrNoRecipients = errors.New("dispatch: no recipients")

const (
	reasonNoPhone      = "no phone number"
	reasonPushDisabled = "push channel not configured"
	defaultConcurrency = 16
)

// Request is one alert to fan out.
type Request struct {
	EventID    string
	SenderName string
	Callback   string
	Contacts   []models.EmergencyContact
	Latitude   float64
	Longitude  float64
	At         time.Time
}

// BatchResult is the aggregate of one fan-out. The counters cover SMS
// outcomes only; push outcomes are recorded in Outcomes but not tallied.
type BatchResult struct {
	TotalContacts int
	Successful    int
	Failed        int
	Skipped       int
	Outcomes      []models.DispatchOutcome
}

// Success reports whether at least one contact was reached by SMS.
func (b *BatchResult) Success() bool {
	return b.Successful > 0
}

// Opts holds parameters for creating a Dispatcher.
type Opts struct {
	SMS  channel.Client
	Push channel.Client // optional
	// MaxConcurrency bounds in-flight sends; <= 0 uses the default.
	MaxConcurrency int
}

// Dispatcher sends alerts through channel clients. It holds no per-batch
// state and may be shared.
type Dispatcher struct {
	sms   channel.Client
	push  channel.Client
	limit int
}

// New creates a Dispatcher.
func New(opts Opts) *Dispatcher {
	limit := opts.MaxConcurrency
	if limit <= 0 {
		limit = defaultConcurrency
	}
	return &Dispatcher{sms: opts.SMS, push: opts.Push, limit: limit}
}

// task is one (contact, channel) send bound to its output slot.
type task struct {
	slot    int
	client  channel.Client
	ch      models.Channel
	contact models.EmergencyContact
	rcpt    channel.Recipient
}

// Dispatch sends the alert to every contact and waits for all sends to
// finish. A failing or panicking send becomes a failed outcome and never
// stops the others. Outcomes follow input order, SMS before push for each
// contact.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*BatchResult, error) {
	if len(req.Contacts) == 0 {
		return nil, ErrNoRecipients
	}
	if d.sms == nil {
		return nil, fmt.Errorf("dispatch: no sms client")
	}
	start := time.Now()
	defer metrics.ObserveDispatch(start)

	msg := buildMessage(req)
	pushOn := d.push != nil

	var (
		outcomes []models.DispatchOutcome
		tasks    []task
	)
	for _, c := range req.Contacts {
		if !c.HasPhone() {
			outcomes = append(outcomes, models.SkippedOutcome(c.ID, c.Name, models.ChannelSMS, reasonNoPhone))
			continue
		}
		rcpt := channel.Recipient{
			ContactID: c.ID,
			Name:      c.Name,
			Phone:     phone.Normalize(c.PhoneNumber()),
			AccountID: c.AccountID(),
		}
		tasks = append(tasks, task{slot: len(outcomes), client: d.sms, ch: models.ChannelSMS, contact: c, rcpt: rcpt})
		outcomes = append(outcomes, models.DispatchOutcome{})

		if rcpt.AccountID == "" || !pushOn {
			continue
		}
		if !d.push.Usable() {
			outcomes = append(outcomes, models.SkippedOutcome(c.ID, c.Name, models.ChannelPush, reasonPushDisabled))
			continue
		}
		tasks = append(tasks, task{slot: len(outcomes), client: d.push, ch: models.ChannelPush, contact: c, rcpt: rcpt})
		outcomes = append(outcomes, models.DispatchOutcome{})
	}

	var g errgroup.Group
	g.SetLimit(d.limit)
	for _, t := range tasks {
		g.Go(func() error {
			outcomes[t.slot] = send(ctx, t, msg)
			return nil
		})
	}
	_ = g.Wait()

	res := tally(outcomes)
	for _, o := range outcomes {
		metrics.ObserveOutcome(string(o.Channel), string(o.Status))
	}
	logrus.WithFields(logrus.Fields{
		"event_id":   req.EventID,
		"total":      res.TotalContacts,
		"successful": res.Successful,
		"failed":     res.Failed,
		"skipped":    res.Skipped,
		"duration":   time.Since(start).Round(time.Millisecond),
	}).Info("dispatch: batch complete")
	return res, nil
}

// send runs one channel send and converts any error or panic into an
// outcome value.
func send(ctx context.Context, t task, msg channel.Message) (out models.DispatchOutcome) {
	log := logrus.WithFields(logrus.Fields{"channel": t.ch, "contact_id": t.contact.ID})
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("dispatch: send panicked: %v", r)
			out = models.FailedOutcome(t.contact.ID, t.contact.Name, t.ch, fmt.Sprintf("panic: %v", r))
		}
	}()

	id, err := t.client.Send(ctx, t.rcpt, msg)
	if err != nil {
		log.WithError(err).Warn("dispatch: send failed")
		return models.FailedOutcome(t.contact.ID, t.contact.Name, t.ch, err.Error())
	}
	return models.SentOutcome(t.contact.ID, t.contact.Name, t.ch, id)
}

// tally counts SMS outcomes; there is exactly one per contact.
func tally(outcomes []models.DispatchOutcome) *BatchResult {
	res := &BatchResult{Outcomes: outcomes}
	for _, o := range outcomes {
		if o.Channel != models.ChannelSMS {
			continue
		}
		res.TotalContacts++
		switch o.Status {
		case models.OutcomeSent:
			res.Successful++
		case models.OutcomeFailed:
			res.Failed++
		case models.OutcomeSkipped:
			res.Skipped++
		}
	}
	return res
}

// buildMessage renders the alert once for every recipient.
func buildMessage(req Request) channel.Message {
	d := alert.Details{
		Name:      req.SenderName,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		At:        req.At,
		Callback:  req.Callback,
	}
	data := map[string]string{
		"latitude":  fmt.Sprintf("%.6f", req.Latitude),
		"longitude": fmt.Sprintf("%.6f", req.Longitude),
		"mapsLink":  alert.MapsLink(req.Latitude, req.Longitude),
	}
	if req.EventID != "" {
		data["eventId"] = req.EventID
	}
	return channel.Message{
		Title: alert.Title(d),
		Body:  alert.Format(d),
		Short: alert.Short(d),
		Data:  data,
	}
}
