// Package repo implements the persistence layer of the warehouse, backed by
// GORM. This file adapts the package's free functions to the repository
// interfaces declared by the service layer.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-clickstream-warehouse/internal/domain"
	"github.com/tbourn/go-clickstream-warehouse/internal/etl"
)

// Store proxies the repository functions. It carries no state; the *gorm.DB
// is passed on every call so a transaction can be substituted.
type Store struct{}

// CreateRun proxies CreateRun.
func (Store) CreateRun(ctx context.Context, db *gorm.DB, source string) (*domain.ETLRun, error) {
	return CreateRun(ctx, db, source)
}

// FinishRun proxies FinishRun.
func (Store) FinishRun(ctx context.Context, db *gorm.DB, run *domain.ETLRun, runErr error) error {
	return FinishRun(ctx, db, run, runErr)
}

// LatestRun proxies LatestRun.
func (Store) LatestRun(ctx context.Context, db *gorm.DB) (*domain.ETLRun, error) {
	return LatestRun(ctx, db)
}

// CountRuns proxies CountRuns.
func (Store) CountRuns(ctx context.Context, db *gorm.DB) (int64, error) {
	return CountRuns(ctx, db)
}

// ListRuns proxies ListRuns.
func (Store) ListRuns(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.ETLRun, error) {
	return ListRuns(ctx, db, offset, limit)
}

// ReplaceWarehouse proxies ReplaceWarehouse.
func (Store) ReplaceWarehouse(ctx context.Context, db *gorm.DB, wh domain.Warehouse, batchSize int) error {
	return ReplaceWarehouse(ctx, db, wh, batchSize)
}

// LoadWarehouse proxies LoadWarehouse.
func (Store) LoadWarehouse(ctx context.Context, db *gorm.DB) (domain.Warehouse, error) {
	return LoadWarehouse(ctx, db)
}

// AuditIntegrity proxies AuditIntegrity.
func (Store) AuditIntegrity(ctx context.Context, db *gorm.DB) (etl.IntegrityReport, error) {
	return AuditIntegrity(ctx, db)
}

// TableCounts proxies TableCounts.
func (Store) TableCounts(ctx context.Context, db *gorm.DB) (map[string]int64, error) {
	return TableCounts(ctx, db)
}
