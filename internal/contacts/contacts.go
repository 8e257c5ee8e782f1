// Package contacts resolves the emergency contacts and push devices of a
// user from the directory store.
package contacts

import (
	"context"
	"fmt"
	"time"

	"github.com/zulandar/lifeline/internal/models"
	"gorm.io/gorm"
)

// LookupError reports that the directory store could not be read.
type LookupError struct {
	UserID string
	Err    error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("contacts: lookup for user %q: %v", e.UserID, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// Resolver reads contacts and device tokens through GORM.
type Resolver struct {
	db *gorm.DB
}

// NewResolver returns a Resolver backed by db.
func NewResolver(db *gorm.DB) *Resolver {
	return &Resolver{db: db}
}

// ResolveContacts returns the user's active contacts ordered by ID.
// Contacts without a phone number are included so dispatch can report them
// as skipped. A user with no contacts yields an empty slice and nil error.
func (r *Resolver) ResolveContacts(ctx context.Context, userID string) ([]models.EmergencyContact, error) {
	var contacts []models.EmergencyContact
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("id ASC").
		Find(&contacts).Error
	if err != nil {
		return nil, &LookupError{UserID: userID, Err: err}
	}
	if contacts == nil {
		contacts = []models.EmergencyContact{}
	}
	return contacts, nil
}

// PushTokens returns the non-expired device tokens registered to accountID.
func (r *Resolver) PushTokens(ctx context.Context, accountID string) ([]string, error) {
	var tokens []string
	err := r.db.WithContext(ctx).
		Model(&models.DeviceToken{}).
		Where("user_id = ? AND expired = ?", accountID, false).
		Order("id ASC").
		Pluck("token", &tokens).Error
	if err != nil {
		return nil, &LookupError{UserID: accountID, Err: err}
	}
	return tokens, nil
}

// ExpireToken marks a token the push provider rejected so it is not used
// again. Unknown tokens are ignored.
func (r *Resolver) ExpireToken(ctx context.Context, token string) error {
	err := r.db.WithContext(ctx).
		Model(&models.DeviceToken{}).
		Where("token = ?", token).
		Updates(map[string]interface{}{"expired": true, "updated_at": time.Now()}).Error
	if err != nil {
		return fmt.Errorf("contacts: expire token: %w", err)
	}
	return nil
}

// Reachable counts the contacts that can be reached by SMS.
func Reachable(contacts []models.EmergencyContact) int {
	n := 0
	for _, c := range contacts {
		if c.HasPhone() {
			n++
		}
	}
	return n
}
