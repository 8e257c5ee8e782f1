package sos

import (
	"errors"
	"fmt"

	"github.com/zulandar/lifeline/internal/contacts"
)

// ErrNoContacts is returned by Trigger when the user has no active contact
// with a phone number. No event is written.
var ErrNoContacts = errors.New("sos: no emergency contacts with a phone number; add one before sending an SOS")

// ErrIllegalTransition is returned for a status change the lifecycle does
// not allow.
var ErrIllegalTransition = errors.New("sos: illegal status transition")

// ErrNotFound is returned by a Store when a row does not exist.
var ErrNotFound = errors.New("sos: not found")

// LookupError reports that the contact directory could not be read.
type LookupError = contacts.LookupError

// ValidationError rejects a malformed request before any side effect.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("sos: invalid %s: %s", e.Field, e.Message)
}

// NotFoundError reports a missing or foreign resource. Events owned by
// another user are reported as not found.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("sos: %s %q not found", e.Resource, e.ID)
}

// StorageError reports a failed event-store operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("sos: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
