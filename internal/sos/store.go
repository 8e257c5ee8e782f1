package sos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/lifeline/internal/models"
	"gorm.io/gorm"
)

// Store persists SOS events and reads user profiles.
type Store interface {
	LoadUser(ctx context.Context, userID string) (*models.User, error)
	CreateEvent(ctx context.Context, ev *models.SOSEvent) error
	// CompleteDispatch writes the post-dispatch state of an active event.
	// An event the stale sweep failed mid-dispatch is overwritten too. It
	// fails with ErrIllegalTransition for any other non-active event.
	CompleteDispatch(ctx context.Context, ev *models.SOSEvent) error
	GetEvent(ctx context.Context, id string) (*models.SOSEvent, error)
	// ResolveEvent marks an unresolved event resolved at the given time.
	ResolveEvent(ctx context.Context, id string, at time.Time) error
	ListEvents(ctx context.Context, userID string, limit int) ([]models.SOSEvent, error)
	// FailStale marks every event still active since before cutoff as
	// failed and returns them.
	FailStale(ctx context.Context, cutoff time.Time, detail string) ([]models.SOSEvent, error)
}

// GormStore implements Store over GORM.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore returns a Store backed by db.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// LoadUser returns the profile of userID, or ErrNotFound.
func (s *GormStore) LoadUser(ctx context.Context, userID string) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).Where("id = ?", userID).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sos: load user %q: %w", userID, err)
	}
	return &u, nil
}

// CreateEvent inserts a new event.
func (s *GormStore) CreateEvent(ctx context.Context, ev *models.SOSEvent) error {
	if err := s.db.WithContext(ctx).Create(ev).Error; err != nil {
		return fmt.Errorf("sos: create event: %w", err)
	}
	return nil
}

// CompleteDispatch conditionally updates an active (or stale-swept) event
// with its final status, tally, and outcomes in one statement.
func (s *GormStore) CompleteDispatch(ctx context.Context, ev *models.SOSEvent) error {
	if err := Transition(models.StatusActive, ev.Status); err != nil {
		return err
	}
	res := s.db.WithContext(ctx).
		Model(&models.SOSEvent{}).
		Where("id = ? AND (status = ? OR (status = ? AND failure_detail = ?))",
			ev.ID, models.StatusActive, models.StatusFailed, StaleDetail).
		Select("Status", "DispatchResults", "TotalContacts", "Successful", "Failed", "Skipped", "FailureDetail", "DispatchedAt", "UpdatedAt").
		Updates(ev)
	if res.Error != nil {
		return fmt.Errorf("sos: complete dispatch for %s: %w", ev.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: event %s is no longer active", ErrIllegalTransition, ev.ID)
	}
	return nil
}

// GetEvent returns one event, or ErrNotFound.
func (s *GormStore) GetEvent(ctx context.Context, id string) (*models.SOSEvent, error) {
	var ev models.SOSEvent
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&ev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sos: get event %s: %w", id, err)
	}
	return &ev, nil
}

// ResolveEvent sets status resolved unless it already is. Resolving an
// already resolved event is not an error.
func (s *GormStore) ResolveEvent(ctx context.Context, id string, at time.Time) error {
	err := s.db.WithContext(ctx).
		Model(&models.SOSEvent{}).
		Where("id = ? AND status <> ?", id, models.StatusResolved).
		Updates(map[string]interface{}{
			"status":      models.StatusResolved,
			"resolved_at": at,
			"updated_at":  at,
		}).Error
	if err != nil {
		return fmt.Errorf("sos: resolve event %s: %w", id, err)
	}
	return nil
}

// ListEvents returns the user's events, newest first.
func (s *GormStore) ListEvents(ctx context.Context, userID string, limit int) ([]models.SOSEvent, error) {
	var events []models.SOSEvent
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("sos: list events for %q: %w", userID, err)
	}
	return events, nil
}

// FailStale marks stale active events failed inside a transaction so a
// concurrent final write either lands first or is rejected.
func (s *GormStore) FailStale(ctx context.Context, cutoff time.Time, detail string) ([]models.SOSEvent, error) {
	var stale []models.SOSEvent
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("status = ? AND created_at < ?", models.StatusActive, cutoff).
			Order("created_at ASC").
			Find(&stale).Error; err != nil {
			return err
		}
		if len(stale) == 0 {
			return nil
		}

		ids := make([]string, len(stale))
		for i := range stale {
			ids[i] = stale[i].ID
		}
		now := time.Now().UTC()
		if err := tx.Model(&models.SOSEvent{}).
			Where("id IN ? AND status = ?", ids, models.StatusActive).
			Updates(map[string]interface{}{
				"status":         models.StatusFailed,
				"failure_detail": detail,
				"updated_at":     now,
			}).Error; err != nil {
			return err
		}
		for i := range stale {
			stale[i].Status = models.StatusFailed
			stale[i].FailureDetail = detail
			stale[i].UpdatedAt = now
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sos: fail stale events: %w", err)
	}
	return stale, nil
}
