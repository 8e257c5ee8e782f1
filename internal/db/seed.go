package db

import (
	"fmt"
	"os"
	"strings"

	"github.com/zulandar/lifeline/internal/models"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Fixture is a directory snapshot loaded by `lifeline db seed`.
type Fixture struct {
	Users []UserFixture `yaml:"users"`
}

// UserFixture is one user with their contacts and devices.
type UserFixture struct {
	ID       string           `yaml:"id"`
	Name     string           `yaml:"name"`
	Phone    string           `yaml:"phone"`
	Contacts []ContactFixture `yaml:"contacts"`
	Devices  []DeviceFixture  `yaml:"devices"`
}

// ContactFixture is one emergency contact. Active defaults to true.
type ContactFixture struct {
	ID              uint   `yaml:"id"`
	Name            string `yaml:"name"`
	Phone           string `yaml:"phone"`
	LinkedAccountID string `yaml:"linked_account"`
	Active          *bool  `yaml:"active"`
}

// DeviceFixture is one push registration.
type DeviceFixture struct {
	Token    string `yaml:"token"`
	Platform string `yaml:"platform"`
}

// SeedSummary counts the rows a seed touched.
type SeedSummary struct {
	Users    int
	Contacts int
	Devices  int
}

// LoadFixture reads and validates a fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("db: read fixture %s: %w", path, err)
	}
	return ParseFixture(data)
}

// ParseFixture unmarshals and validates fixture YAML.
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("db: parse fixture: %w", err)
	}

	var errs []string
	for i, u := range f.Users {
		if u.ID == "" {
			errs = append(errs, fmt.Sprintf("users[%d].id is required", i))
		}
		if u.Name == "" {
			errs = append(errs, fmt.Sprintf("users[%d].name is required", i))
		}
		for j, c := range u.Contacts {
			if c.ID == 0 {
				errs = append(errs, fmt.Sprintf("users[%d].contacts[%d].id is required", i, j))
			}
			if c.Name == "" {
				errs = append(errs, fmt.Sprintf("users[%d].contacts[%d].name is required", i, j))
			}
		}
		for j, d := range u.Devices {
			if d.Token == "" {
				errs = append(errs, fmt.Sprintf("users[%d].devices[%d].token is required", i, j))
			}
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("db: fixture validation failed: %s", strings.Join(errs, "; "))
	}
	return &f, nil
}

// Seed upserts every user, contact, and device in the fixture inside one
// transaction. Re-seeding the same fixture is idempotent.
func Seed(db *gorm.DB, f *Fixture) (SeedSummary, error) {
	var sum SeedSummary
	err := db.Transaction(func(tx *gorm.DB) error {
		for _, u := range f.Users {
			user := models.User{ID: u.ID, Name: u.Name, Phone: u.Phone}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{"name", "phone", "updated_at"}),
			}).Create(&user).Error; err != nil {
				return fmt.Errorf("db: seed user %q: %w", u.ID, err)
			}
			sum.Users++

			for _, c := range u.Contacts {
				contact := models.EmergencyContact{
					ID:              c.ID,
					UserID:          u.ID,
					Name:            c.Name,
					Phone:           optional(c.Phone),
					LinkedAccountID: optional(c.LinkedAccountID),
					IsActive:        c.Active == nil || *c.Active,
				}
				if err := tx.Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "id"}},
					DoUpdates: clause.AssignmentColumns([]string{"user_id", "name", "phone", "linked_account_id", "is_active", "updated_at"}),
				}).Create(&contact).Error; err != nil {
					return fmt.Errorf("db: seed contact %d: %w", c.ID, err)
				}
				sum.Contacts++
			}

			for _, d := range u.Devices {
				device := models.DeviceToken{UserID: u.ID, Token: d.Token, Platform: d.Platform}
				if err := UpsertDevice(tx, &device); err != nil {
					return err
				}
				sum.Devices++
			}
		}
		return nil
	})
	return sum, err
}

// UpsertDevice registers a push token, reassigning it to the given user and
// clearing any earlier expiry if the token is already known.
func UpsertDevice(db *gorm.DB, d *models.DeviceToken) error {
	d.Expired = false
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "platform", "expired", "updated_at"}),
	}).Create(d).Error; err != nil {
		return fmt.Errorf("db: upsert device for %q: %w", d.UserID, err)
	}
	return nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
