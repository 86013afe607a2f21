// Package repo implements the persistence layer of the warehouse, backed by
// GORM. This file stores and loads a complete star schema.
//
// A build is never merged into an existing one: ReplaceWarehouse clears every
// table and inserts the new rows inside a single transaction, so readers
// either see the previous model or the new one.
package repo

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/tbourn/go-clickstream-warehouse/internal/domain"
)

// DefaultBatchSize is used when ReplaceWarehouse is given a non-positive
// batch size.
const DefaultBatchSize = 500

// ReplaceWarehouse deletes the current star schema and inserts wh in its
// place, in one transaction. Facts are deleted first and inserted last so
// that no intermediate state has dangling references.
func ReplaceWarehouse(ctx context.Context, db *gorm.DB, wh domain.Warehouse, batchSize int) error {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range []any{
			&domain.FactSale{},
			&domain.CleanEvent{},
			&domain.DimUser{},
			&domain.DimProduct{},
			&domain.DimCategory{},
			&domain.DimSession{},
			&domain.DimDate{},
		} {
			if err := tx.Where("1 = 1").Delete(m).Error; err != nil {
				return fmt.Errorf("clear %T: %w", m, err)
			}
		}

		steps := []struct {
			name string
			n    int
			rows any
		}{
			{"stg_events", len(wh.Events), &wh.Events},
			{"dim_users", len(wh.Users), &wh.Users},
			{"dim_products", len(wh.Products), &wh.Products},
			{"dim_categories", len(wh.Categories), &wh.Categories},
			{"dim_sessions", len(wh.Sessions), &wh.Sessions},
			{"dim_dates", len(wh.Dates), &wh.Dates},
			{"fact_sales", len(wh.Facts), &wh.Facts},
		}
		for _, s := range steps {
			if s.n == 0 {
				continue
			}
			if err := tx.CreateInBatches(s.rows, batchSize).Error; err != nil {
				return fmt.Errorf("insert %s: %w", s.name, err)
			}
		}
		return nil
	})
}

// LoadWarehouse reads the persisted star schema back, each table ordered by
// its key.
func LoadWarehouse(ctx context.Context, db *gorm.DB) (domain.Warehouse, error) {
	var wh domain.Warehouse
	q := db.WithContext(ctx)

	loads := []struct {
		order string
		dest  any
	}{
		{"seq", &wh.Events},
		{"user_key", &wh.Users},
		{"product_key", &wh.Products},
		{"category_id", &wh.Categories},
		{"session_id", &wh.Sessions},
		{"date_id", &wh.Dates},
		{"sales_id", &wh.Facts},
	}
	for _, l := range loads {
		if err := q.Order(l.order).Find(l.dest).Error; err != nil {
			return domain.Warehouse{}, err
		}
	}
	return wh, nil
}
