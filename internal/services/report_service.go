// Package services – ReportService
//
// This file implements ReportService, which serves the Metrics Engine over
// the persisted star schema. The warehouse is loaded once per successful ETL
// run and the resulting analytics.Model is cached until a newer run is
// recorded in the ledger.
//
// Undefined metrics surface as *analytics.UndefinedError so handlers can map
// them to a dedicated response code.
package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-clickstream-warehouse/internal/analytics"
	"github.com/tbourn/go-clickstream-warehouse/internal/domain"
	"github.com/tbourn/go-clickstream-warehouse/internal/etl"
)

// ReportRepo defines the repository contract required by ReportService.
type ReportRepo interface {
	// LatestRun returns the most recent succeeded run.
	LatestRun(ctx context.Context, db *gorm.DB) (*domain.ETLRun, error)

	// LoadWarehouse reads the persisted star schema.
	LoadWarehouse(ctx context.Context, db *gorm.DB) (domain.Warehouse, error)
}

// ReportService answers metric queries against the latest persisted build.
type ReportService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the repository used by this service.
	Repo ReportRepo

	mu    sync.RWMutex
	run   *domain.ETLRun
	model *analytics.Model
}

// NewReportService constructs a ReportService with an empty cache.
func NewReportService(db *gorm.DB, r ReportRepo) *ReportService {
	return &ReportService{DB: db, Repo: r}
}

// Model returns the model of the latest succeeded run together with that
// run. The cached model is reused while the ledger reports the same run.
// It returns ErrNoWarehouse when no run has succeeded.
func (s *ReportService) Model(ctx context.Context) (*analytics.Model, *domain.ETLRun, error) {
	tr := otel.Tracer("services/ReportService")
	ctx, span := tr.Start(ctx, "Model")
	defer span.End()

	latest, err := s.Repo.LatestRun(ctx, s.DB)
	if err != nil {
		if isNotFound(err) {
			return nil, nil, ErrNoWarehouse
		}
		return nil, nil, err
	}
	span.SetAttributes(attribute.String("etl.run_id", latest.ID))

	s.mu.RLock()
	if s.run != nil && s.run.ID == latest.ID {
		m, run := s.model, s.run
		s.mu.RUnlock()
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return m, run, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run != nil && s.run.ID == latest.ID {
		return s.model, s.run, nil
	}

	m, err := s.load(ctx, latest)
	if err != nil {
		return nil, nil, err
	}
	s.run, s.model = latest, m
	span.SetAttributes(attribute.Bool("cache.hit", false))
	return m, latest, nil
}

func (s *ReportService) load(ctx context.Context, run *domain.ETLRun) (*analytics.Model, error) {
	strategy, err := etl.ParseProductKeyStrategy(run.ProductKey)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", run.ID, err)
	}
	wh, err := s.Repo.LoadWarehouse(ctx, s.DB)
	if err != nil {
		return nil, fmt.Errorf("load warehouse: %w", err)
	}
	dims, err := etl.IndexDimensions(strategy, wh.Users, wh.Products, wh.Categories, wh.Sessions, wh.Dates)
	if err != nil {
		return nil, fmt.Errorf("index dimensions: %w", err)
	}

	log.Info().
		Str("component", "reports").
		Str("run_id", run.ID).
		Int("events", len(wh.Events)).
		Int("facts", len(wh.Facts)).
		Msg("analytics model loaded")
	return analytics.NewModel(wh.Events, wh.Facts, dims), nil
}

// Report evaluates every metric of the latest build.
func (s *ReportService) Report(ctx context.Context) (*analytics.Report, *domain.ETLRun, error) {
	m, run, err := s.Model(ctx)
	if err != nil {
		return nil, nil, err
	}

	_, span := otel.Tracer("services/ReportService").Start(ctx, "Report",
		trace.WithAttributes(attribute.String("etl.run_id", run.ID)))
	defer span.End()

	rep, err := analytics.BuildReport(m)
	if err != nil {
		return nil, nil, err
	}
	return rep, run, nil
}

// PurchaseSpans returns a page of per-user first/last purchase dates ordered
// by user id. It applies defaults for invalid page/pageSize and returns the
// total count.
func (s *ReportService) PurchaseSpans(ctx context.Context, page, pageSize int) ([]analytics.PurchaseSpan, int64, error) {
	m, _, err := s.Model(ctx)
	if err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	all := m.PurchaseSpans()
	total := int64(len(all))
	offset := (page - 1) * pageSize
	if offset >= len(all) {
		return []analytics.PurchaseSpan{}, total, nil
	}
	end := min(offset+pageSize, len(all))
	return all[offset:end], total, nil
}

// Invalidate drops the cached model so the next call reloads it.
func (s *ReportService) Invalidate() {
	s.mu.Lock()
	s.run, s.model = nil, nil
	s.mu.Unlock()
}
