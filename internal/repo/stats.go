// Package repo implements the persistence layer of the warehouse, backed by
// GORM. This file provides small aggregate queries describing the persisted
// model, used by the run summary and the integrity endpoint.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-clickstream-warehouse/internal/domain"
)

// TableCounts returns the row count of every star schema table, keyed by
// table name.
func TableCounts(ctx context.Context, db *gorm.DB) (map[string]int64, error) {
	tables := []string{
		domain.CleanEvent{}.TableName(),
		domain.DimUser{}.TableName(),
		domain.DimProduct{}.TableName(),
		domain.DimCategory{}.TableName(),
		domain.DimSession{}.TableName(),
		domain.DimDate{}.TableName(),
		domain.FactSale{}.TableName(),
	}

	out := make(map[string]int64, len(tables))
	for _, t := range tables {
		var n int64
		if err := db.WithContext(ctx).Table(t).Count(&n).Error; err != nil {
			return nil, err
		}
		out[t] = n
	}
	return out, nil
}

// DateRange returns the first and last day of the date dimension. Both are
// nil when the dimension is empty.
func DateRange(ctx context.Context, db *gorm.DB) (first, last *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.DimDate{})

	var count int64
	if err = q.Count(&count).Error; err != nil {
		return nil, nil, err
	}
	if count == 0 {
		return nil, nil, nil
	}

	// Order instead of MIN()/MAX(), which come back as TEXT in SQLite.
	var lo, hi domain.DimDate
	if err = db.WithContext(ctx).Order("full_date asc").First(&lo).Error; err != nil {
		return nil, nil, err
	}
	if err = db.WithContext(ctx).Order("full_date desc").First(&hi).Error; err != nil {
		return nil, nil, err
	}
	return &lo.FullDate, &hi.FullDate, nil
}
