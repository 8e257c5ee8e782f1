package models

import "time"

// Lease is a named, time-bounded lock held by one process. It keeps
// periodic jobs from running on every replica at once.
type Lease struct {
	Name      string    `gorm:"primaryKey;size:64"`
	Holder    string    `gorm:"size:128;not null"`
	ExpiresAt time.Time `gorm:"not null;index"`
	UpdatedAt time.Time
}

// TableName pins the table name so MySQL and SQLite agree.
func (Lease) TableName() string {
	return "leases"
}
