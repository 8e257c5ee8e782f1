// Package sos owns the lifecycle of an SOS event: validation, contact
// resolution, dispatch, status aggregation, resolution, and history.
package sos

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/zulandar/lifeline/internal/alert"
	"github.com/zulandar/lifeline/internal/contacts"
	"github.com/zulandar/lifeline/internal/dispatch"
	"github.com/zulandar/lifeline/internal/metrics"
	"github.com/zulandar/lifeline/internal/models"
	"github.com/zulandar/lifeline/internal/phone"
	"github.com/zulandar/lifeline/internal/relay"
)

const (
	// HistoryLimit caps the events History returns.
	HistoryLimit = 50
	// StaleDetail is recorded on events the sweep gives up on.
	StaleDetail = "dispatch interrupted before completion"
)

// ContactResolver supplies a user's active contacts.
type ContactResolver interface {
	ResolveContacts(ctx context.Context, userID string) ([]models.EmergencyContact, error)
}

// Dispatcher fans an alert out to contacts.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) (*dispatch.BatchResult, error)
}

// Opts holds the Manager's collaborators.
type Opts struct {
	Store      Store
	Contacts   ContactResolver
	Dispatcher Dispatcher
	Feed       *Feed        // optional
	Relay      *relay.Relay // optional
	// For testing: override the clock and ID generator.
	Now   func() time.Time
	NewID func() string
}

// Manager is the single writer of SOS events.
type Manager struct {
	store    Store
	contacts ContactResolver
	disp     Dispatcher
	feed     *Feed
	relay    *relay.Relay
	now      func() time.Time
	newID    func() string
}

// NewManager creates a Manager.
func NewManager(opts Opts) *Manager {
	m := &Manager{
		store:    opts.Store,
		contacts: opts.Contacts,
		disp:     opts.Dispatcher,
		feed:     opts.Feed,
		relay:    opts.Relay,
		now:      opts.Now,
		newID:    opts.NewID,
	}
	if m.now == nil {
		m.now = func() time.Time { return time.Now().UTC() }
	}
	if m.newID == nil {
		m.newID = uuid.NewString
	}
	return m
}

// TriggerRequest is one SOS from an already identified user.
type TriggerRequest struct {
	UserID    string
	Latitude  float64
	Longitude float64
	// UserPhone is an optional callback number; the profile phone is used
	// when empty.
	UserPhone string
}

// TriggerResult is the settled event and its batch.
type TriggerResult struct {
	Event    *models.SOSEvent
	Batch    *dispatch.BatchResult
	MapsLink string
}

// Validate checks the request without touching any collaborator.
func (r TriggerRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return &ValidationError{Field: "userId", Message: "is required"}
	}
	if math.IsNaN(r.Latitude) || math.IsInf(r.Latitude, 0) || r.Latitude < -90 || r.Latitude > 90 {
		return &ValidationError{Field: "latitude", Message: "must be between -90 and 90"}
	}
	if math.IsNaN(r.Longitude) || math.IsInf(r.Longitude, 0) || r.Longitude < -180 || r.Longitude > 180 {
		return &ValidationError{Field: "longitude", Message: "must be between -180 and 180"}
	}
	return nil
}

// Trigger records an SOS, alerts the user's contacts, and persists the
// outcome. Failures before the event is created abort with nothing
// written. Once created, the event always settles in sent,
// partially_sent, or failed unless the final write itself fails.
func (m *Manager) Trigger(ctx context.Context, req TriggerRequest) (*TriggerResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	log := logrus.WithField("user_id", req.UserID)

	user, err := m.store.LoadUser(ctx, req.UserID)
	if errors.Is(err, ErrNotFound) {
		return nil, &NotFoundError{Resource: "user", ID: req.UserID}
	}
	if err != nil {
		return nil, &LookupError{UserID: req.UserID, Err: err}
	}

	list, err := m.contacts.ResolveContacts(ctx, req.UserID)
	if err != nil {
		var le *LookupError
		if errors.As(err, &le) {
			return nil, le
		}
		return nil, &LookupError{UserID: req.UserID, Err: err}
	}
	if contacts.Reachable(list) == 0 {
		log.Info("sos: trigger rejected, no reachable contacts")
		return nil, ErrNoContacts
	}

	createdAt := m.now()
	ev := &models.SOSEvent{
		ID:        m.newID(),
		UserID:    req.UserID,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Status:    models.StatusActive,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	if err := m.store.CreateEvent(ctx, ev); err != nil {
		return nil, &StorageError{Op: "create event", Err: err}
	}
	log = log.WithField("event_id", ev.ID)
	log.Info("sos: event created")
	m.publish(ev)

	// The alert must go out even if the caller disconnects.
	bg := context.WithoutCancel(ctx)

	callback := strings.TrimSpace(req.UserPhone)
	if callback == "" {
		callback = strings.TrimSpace(user.Phone)
	}
	if callback != "" {
		callback = phone.Normalize(callback)
	}

	batch, dispErr := m.runDispatch(bg, dispatch.Request{
		EventID:    ev.ID,
		SenderName: user.Name,
		Callback:   callback,
		Contacts:   list,
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
		At:         createdAt,
	})

	dispatchedAt := m.now()
	ev.DispatchedAt = &dispatchedAt
	ev.UpdatedAt = dispatchedAt
	if dispErr != nil {
		log.WithError(dispErr).Error("sos: dispatch failed")
		ev.Status = models.StatusFailed
		ev.FailureDetail = dispErr.Error()
		ev.TotalContacts = len(list)
	} else {
		ev.Status = AggregateStatus(batch)
		ev.DispatchResults = batch.Outcomes
		ev.TotalContacts = batch.TotalContacts
		ev.Successful = batch.Successful
		ev.Failed = batch.Failed
		ev.Skipped = batch.Skipped
	}

	if err := m.store.CompleteDispatch(bg, ev); err != nil {
		log.WithError(err).Error("sos: persist dispatch result")
		return nil, &StorageError{Op: "complete dispatch", Err: err}
	}
	metrics.ObserveTrigger(string(ev.Status))
	log.WithField("status", ev.Status).Info("sos: event settled")
	m.publish(ev)
	m.relay.Go(bg, relay.Triggered(ev, user.Name))

	return &TriggerResult{
		Event:    ev,
		Batch:    batch,
		MapsLink: alert.MapsLink(ev.Latitude, ev.Longitude),
	}, nil
}

// runDispatch calls the dispatcher and turns a panic into an error.
func (m *Manager) runDispatch(ctx context.Context, req dispatch.Request) (res *dispatch.BatchResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("dispatch panicked: %v", r)
		}
	}()
	res, err = m.disp.Dispatch(ctx, req)
	if err == nil && res == nil {
		err = errors.New("dispatch returned no result")
	}
	return res, err
}

// Resolve marks the caller's event resolved. Resolving twice succeeds.
func (m *Manager) Resolve(ctx context.Context, eventID, userID string) (*models.SOSEvent, error) {
	ev, err := m.ownedEvent(ctx, eventID, userID)
	if err != nil {
		return nil, err
	}
	if ev.Status == models.StatusResolved {
		return ev, nil
	}
	if err := Transition(ev.Status, models.StatusResolved); err != nil {
		return nil, err
	}

	if err := m.store.ResolveEvent(ctx, ev.ID, m.now()); err != nil {
		return nil, &StorageError{Op: "resolve event", Err: err}
	}
	ev, err = m.store.GetEvent(ctx, ev.ID)
	if err != nil {
		return nil, &StorageError{Op: "reload event", Err: err}
	}

	logrus.WithFields(logrus.Fields{"event_id": ev.ID, "user_id": userID}).Info("sos: event resolved")
	m.publish(ev)
	m.relay.Go(ctx, relay.Resolved(ev))
	return ev, nil
}

func (m *Manager) ownedEvent(ctx context.Context, eventID, userID string) (*models.SOSEvent, error) {
	ev, err := m.store.GetEvent(ctx, eventID)
	if errors.Is(err, ErrNotFound) {
		return nil, &NotFoundError{Resource: "event", ID: eventID}
	}
	if err != nil {
		return nil, &StorageError{Op: "get event", Err: err}
	}
	if ev.UserID != userID {
		return nil, &NotFoundError{Resource: "event", ID: eventID}
	}
	return ev, nil
}

// History returns the user's most recent events, newest first.
func (m *Manager) History(ctx context.Context, userID string) ([]models.SOSEvent, error) {
	events, err := m.store.ListEvents(ctx, userID, HistoryLimit)
	if err != nil {
		return nil, &StorageError{Op: "list events", Err: err}
	}
	if events == nil {
		events = []models.SOSEvent{}
	}
	return events, nil
}

// SweepStale fails every event left active for longer than staleAfter,
// the state a process crash between creation and the final write leaves
// behind. It returns the number of events swept.
func (m *Manager) SweepStale(ctx context.Context, staleAfter time.Duration) (int, error) {
	cutoff := m.now().Add(-staleAfter)
	swept, err := m.store.FailStale(ctx, cutoff, StaleDetail)
	if err != nil {
		return 0, &StorageError{Op: "sweep stale events", Err: err}
	}
	for i := range swept {
		ev := &swept[i]
		logrus.WithFields(logrus.Fields{"event_id": ev.ID, "user_id": ev.UserID}).Warn("sos: stale event marked failed")
		metrics.SweptEvents.Inc()
		m.publish(ev)
		m.relay.Go(ctx, relay.Swept(ev))
	}
	return len(swept), nil
}

func (m *Manager) publish(ev *models.SOSEvent) {
	m.feed.Publish(StatusChange{
		EventID: ev.ID,
		UserID:  ev.UserID,
		Status:  ev.Status,
		At:      ev.UpdatedAt,
	})
}
