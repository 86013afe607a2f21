// Package repo implements the persistence layer of the warehouse, backed by
// GORM. This file provides the ETL run ledger: one row per pipeline
// execution, used to tell which build is being served.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-clickstream-warehouse/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateRun opens a run in the running state for the given source.
func CreateRun(ctx context.Context, db *gorm.DB, source string) (*domain.ETLRun, error) {
	run := &domain.ETLRun{
		ID:        uuid.NewString(),
		Source:    strings.TrimSpace(source),
		Status:    domain.RunRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

// FinishRun stamps run as finished and saves its counters. A non-nil runErr
// marks the run failed and records the message; otherwise it succeeded.
func FinishRun(ctx context.Context, db *gorm.DB, run *domain.ETLRun, runErr error) error {
	now := time.Now().UTC()
	run.FinishedAt = &now
	run.Status = domain.RunSucceeded
	run.Error = ""
	if runErr != nil {
		run.Status = domain.RunFailed
		run.Error = runErr.Error()
	}

	res := db.WithContext(ctx).
		Model(&domain.ETLRun{}).
		Where("id = ?", run.ID).
		Updates(map[string]any{
			"status":          run.Status,
			"product_key":     run.ProductKey,
			"error":           run.Error,
			"raw_events":      run.RawEvents,
			"clean_events":    run.CleanEvents,
			"facts":           run.Facts,
			"unresolved":      run.Unresolved,
			"integrity_clean": run.IntegrityClean,
			"finished_at":     run.FinishedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetRun fetches a run by id, or ErrNotFound.
func GetRun(ctx context.Context, db *gorm.DB, id string) (*domain.ETLRun, error) {
	var run domain.ETLRun
	err := db.WithContext(ctx).Where("id = ?", id).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// LatestRun returns the most recent succeeded run, i.e. the build whose
// tables are currently persisted, or ErrNotFound.
func LatestRun(ctx context.Context, db *gorm.DB) (*domain.ETLRun, error) {
	var run domain.ETLRun
	err := db.WithContext(ctx).
		Where("status = ?", domain.RunSucceeded).
		Order("finished_at desc").
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// CountRuns returns the number of runs in the ledger.
func CountRuns(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.ETLRun{}).Count(&total).Error
	return total, err
}

// ListRuns returns a page of runs, most recent first. Use CountRuns to obtain
// the total for pagination metadata.
func ListRuns(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.ETLRun, error) {
	var out []domain.ETLRun
	err := db.WithContext(ctx).
		Order("started_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
