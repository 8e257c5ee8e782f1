package models

import (
	"strings"
	"time"
)

// EmergencyContact is a person a user wants alerted when they trigger an SOS.
// Lifeline only reads these rows.
type EmergencyContact struct {
	ID              uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID          string  `gorm:"size:64;not null;index" json:"userId"`
	Name            string  `gorm:"size:128;not null" json:"name"`
	Phone           *string `gorm:"size:32" json:"phone,omitempty"`
	LinkedAccountID *string `gorm:"size:64;index" json:"linkedAccountId,omitempty"`
	IsActive        bool    `gorm:"not null;index" json:"isActive"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PhoneNumber returns the trimmed phone number, or "" when none is on file.
func (c EmergencyContact) PhoneNumber() string {
	if c.Phone == nil {
		return ""
	}
	return strings.TrimSpace(*c.Phone)
}

// HasPhone reports whether the contact can be reached by SMS.
func (c EmergencyContact) HasPhone() bool {
	return c.PhoneNumber() != ""
}

// AccountID returns the linked account, or "" when the contact holds none.
func (c EmergencyContact) AccountID() string {
	if c.LinkedAccountID == nil {
		return ""
	}
	return strings.TrimSpace(*c.LinkedAccountID)
}
