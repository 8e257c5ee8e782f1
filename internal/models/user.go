package models

import "time"

// User is the profile of an account holder.
type User struct {
	ID        string `gorm:"primaryKey;size:64"`
	Name      string `gorm:"size:128;not null"`
	Phone     string `gorm:"size:32"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DeviceToken is a push registration token for one of a user's devices.
type DeviceToken struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	UserID    string `gorm:"size:64;not null;index"`
	Token     string `gorm:"size:255;not null;uniqueIndex"`
	Platform  string `gorm:"size:16"`
	Expired   bool   `gorm:"default:false;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
