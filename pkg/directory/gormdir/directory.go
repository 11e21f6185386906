// Package gormdir implements the customer directory over the salon backend's database.
package gormdir

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Directory struct {
	db  *gorm.DB
	now func() time.Time
}

// Open connects to the salon database read by the directory.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open directory database: %w", err)
	}

	return db, nil
}

// Migrate creates the directory tables. The engine never writes them in production;
// this exists for local development and tests.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Customer{}, &CustomerTag{}, &Visit{}, &MessageLog{})
}

func New(db *gorm.DB) *Directory {
	return &Directory{db: db, now: time.Now}
}

// WithClock replaces the clock used for relative lookback periods.
func (d *Directory) WithClock(now func() time.Time) *Directory {
	d.now = now

	return d
}

func (d *Directory) activeCustomers(ctx context.Context, shopID string) *gorm.DB {
	return d.db.WithContext(ctx).
		Model(&Customer{}).
		Where("customers.shop_id = ? AND customers.active = ?", shopID, true)
}

func (d *Directory) FindCustomersByGradeOrTag(ctx context.Context, shopID string, grades, tags []string) ([]string, error) {
	if len(grades) == 0 && len(tags) == 0 {
		return []string{}, nil
	}

	query := d.activeCustomers(ctx, shopID)

	switch {
	case len(grades) > 0 && len(tags) > 0:
		query = query.Where(
			d.db.Where("customers.grade IN ?", grades).
				Or("customers.id IN (?)", d.taggedCustomers(ctx, tags)),
		)
	case len(grades) > 0:
		query = query.Where("customers.grade IN ?", grades)
	default:
		query = query.Where("customers.id IN (?)", d.taggedCustomers(ctx, tags))
	}

	var ids []string

	err := query.Distinct().Pluck("customers.id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find customers by grade or tag: %w", err)
	}

	return ids, nil
}

func (d *Directory) taggedCustomers(ctx context.Context, tags []string) *gorm.DB {
	return d.db.WithContext(ctx).
		Model(&CustomerTag{}).
		Select("customer_id").
		Where("tag IN ?", tags)
}

func (d *Directory) FindDormantCustomers(ctx context.Context, shopID string, months int) ([]string, error) {
	cutoff := d.now().UTC().AddDate(0, -months, 0)

	recent := d.db.WithContext(ctx).
		Model(&Visit{}).
		Select("1").
		Where("visits.customer_id = customers.id AND visits.shop_id = ? AND visits.visited_at >= ?", shopID, cutoff)

	var ids []string

	err := d.activeCustomers(ctx, shopID).
		Where("NOT EXISTS (?)", recent).
		Pluck("customers.id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find dormant customers: %w", err)
	}

	return ids, nil
}

func (d *Directory) FindRecentMessageRecipients(ctx context.Context, shopID string, days int) ([]string, error) {
	since := d.now().UTC().AddDate(0, 0, -days)

	var ids []string

	err := d.db.WithContext(ctx).
		Model(&MessageLog{}).
		Where("shop_id = ? AND category = ? AND sent_at >= ?", shopID, categoryMarketing, since).
		Distinct().
		Pluck("customer_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find recent message recipients: %w", err)
	}

	return ids, nil
}

func (d *Directory) FindActiveCustomers(ctx context.Context, shopID string) ([]string, error) {
	var ids []string

	err := d.activeCustomers(ctx, shopID).Pluck("customers.id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find active customers: %w", err)
	}

	return ids, nil
}

func (d *Directory) FindCustomersLastVisitedBetween(ctx context.Context, shopID string, from, to time.Time) ([]string, error) {
	var ids []string

	err := d.db.WithContext(ctx).
		Model(&Visit{}).
		Joins("JOIN customers ON customers.id = visits.customer_id").
		Where("visits.shop_id = ? AND customers.active = ?", shopID, true).
		Group("visits.customer_id").
		Having("MAX(visits.visited_at) >= ? AND MAX(visits.visited_at) < ?", from.UTC(), to.UTC()).
		Pluck("visits.customer_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find customers by last visit: %w", err)
	}

	return ids, nil
}
