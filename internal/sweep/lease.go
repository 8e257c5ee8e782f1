package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/zulandar/lifeline/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultLeaseTTL bounds how long a crashed holder blocks other replicas.
const DefaultLeaseTTL = 2 * time.Minute

// Locker guards a sweep so only one replica runs it at a time.
type Locker interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Lease is a Locker backed by a row in the leases table.
type Lease struct {
	db     *gorm.DB
	name   string
	holder string
	ttl    time.Duration
	now    func() time.Time
}

// NewLease returns a Lease on name for holder. A ttl <= 0 uses
// DefaultLeaseTTL.
func NewLease(db *gorm.DB, name, holder string, ttl time.Duration) *Lease {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	return &Lease{db: db, name: name, holder: holder, ttl: ttl, now: func() time.Time { return time.Now().UTC() }}
}

// Acquire takes the lease if it is free, expired, or already ours, and
// extends it by the ttl. It returns false when another holder owns an
// unexpired lease.
func (l *Lease) Acquire(ctx context.Context) (bool, error) {
	var acquired bool
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := l.now()
		expires := now.Add(l.ttl)

		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.Lease{
			Name:      l.name,
			Holder:    l.holder,
			ExpiresAt: expires,
			UpdatedAt: now,
		})
		if res.Error != nil {
			return fmt.Errorf("insert lease: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			acquired = true
			return nil
		}

		// Row exists: take it over only if it is ours or stale.
		res = tx.Model(&models.Lease{}).
			Where("name = ? AND (holder = ? OR expires_at < ?)", l.name, l.holder, now).
			Updates(map[string]interface{}{
				"holder":     l.holder,
				"expires_at": expires,
				"updated_at": now,
			})
		if res.Error != nil {
			return fmt.Errorf("claim lease: %w", res.Error)
		}
		acquired = res.RowsAffected == 1
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("sweep: acquire lease %s: %w", l.name, err)
	}
	return acquired, nil
}

// Release drops the lease if we still hold it.
func (l *Lease) Release(ctx context.Context) error {
	err := l.db.WithContext(ctx).
		Where("name = ? AND holder = ?", l.name, l.holder).
		Delete(&models.Lease{}).Error
	if err != nil {
		return fmt.Errorf("sweep: release lease %s: %w", l.name, err)
	}
	return nil
}
