// Package models defines the GORM-backed records Lifeline persists.
package models

import (
	"time"

	"gorm.io/datatypes"
)

// EventStatus is the lifecycle state of an SOS event.
type EventStatus string

const (
	StatusActive        EventStatus = "active"
	StatusSent          EventStatus = "sent"
	StatusPartiallySent EventStatus = "partially_sent"
	StatusFailed        EventStatus = "failed"
	StatusResolved      EventStatus = "resolved"
)

// Valid reports whether s is one of the known statuses.
func (s EventStatus) Valid() bool {
	switch s {
	case StatusActive, StatusSent, StatusPartiallySent, StatusFailed, StatusResolved:
		return true
	}
	return false
}

// SOSEvent is one durable record of a single emergency trigger.
type SOSEvent struct {
	ID              string                              `gorm:"primaryKey;size:36" json:"id"`
	UserID          string                              `gorm:"size:64;not null;index:idx_sos_user_created,priority:1" json:"userId"`
	Latitude        float64                             `gorm:"not null" json:"latitude"`
	Longitude       float64                             `gorm:"not null" json:"longitude"`
	Status          EventStatus                         `gorm:"size:16;not null;default:active;index" json:"status"`
	DispatchResults datatypes.JSONSlice[DispatchOutcome] `json:"dispatchResults,omitempty"`
	TotalContacts   int                                 `json:"totalContacts"`
	Successful      int                                 `json:"successful"`
	Failed          int                                 `json:"failed"`
	Skipped         int                                 `json:"skipped"`
	FailureDetail   string                              `gorm:"type:text" json:"failureDetail,omitempty"`
	CreatedAt       time.Time                           `gorm:"<-:create;index:idx_sos_user_created,priority:2" json:"createdAt"`
	UpdatedAt       time.Time                           `json:"updatedAt"`
	DispatchedAt    *time.Time                          `json:"dispatchedAt,omitempty"`
	ResolvedAt      *time.Time                          `json:"resolvedAt,omitempty"`
}

// TableName pins the table name so MySQL and SQLite agree.
func (SOSEvent) TableName() string {
	return "sos_events"
}
