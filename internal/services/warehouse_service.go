// Package services – WarehouseService
//
// This file implements WarehouseService, which runs the ETL pipeline over a
// raw event source and persists the resulting star schema as a full refresh.
// Every run is recorded in the run ledger, whether it succeeds or fails, and
// only one run may execute at a time.
//
// Observability: Run is OpenTelemetry-instrumented and logs one summary line
// per run.
package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-clickstream-warehouse/internal/domain"
	"github.com/tbourn/go-clickstream-warehouse/internal/etl"
	"github.com/tbourn/go-clickstream-warehouse/internal/source"
)

// WarehouseRepo defines the repository contract required by
// WarehouseService.
type WarehouseRepo interface {
	// CreateRun opens a ledger entry in the running state.
	CreateRun(ctx context.Context, db *gorm.DB, source string) (*domain.ETLRun, error)

	// FinishRun closes a ledger entry; a non-nil runErr marks it failed.
	FinishRun(ctx context.Context, db *gorm.DB, run *domain.ETLRun, runErr error) error

	// ReplaceWarehouse swaps the persisted star schema for wh atomically.
	ReplaceWarehouse(ctx context.Context, db *gorm.DB, wh domain.Warehouse, batchSize int) error

	// AuditIntegrity checks the persisted facts against the persisted dimensions.
	AuditIntegrity(ctx context.Context, db *gorm.DB) (etl.IntegrityReport, error)

	// TableCounts reports the row count of every star schema table.
	TableCounts(ctx context.Context, db *gorm.DB) (map[string]int64, error)

	// LatestRun returns the most recent succeeded run.
	LatestRun(ctx context.Context, db *gorm.DB) (*domain.ETLRun, error)

	// CountRuns returns the total number of runs for pagination.
	CountRuns(ctx context.Context, db *gorm.DB) (int64, error)

	// ListRuns returns a page of runs, most recent first.
	ListRuns(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.ETLRun, error)
}

// RunSummary describes one completed (or refused) ETL run.
type RunSummary struct {
	Run       *domain.ETLRun           `json:"run"`
	Sanitize  etl.SanitizeStats        `json:"sanitize"`
	Assembly  etl.Assembly             `json:"assembly"`
	Integrity etl.IntegrityReport      `json:"integrity"`
	Audit     *etl.IntegrityReport     `json:"audit,omitempty"`
	Tables    map[string]int64         `json:"tables,omitempty"`
	Durations map[string]time.Duration `json:"durations"`
}

// WarehouseService runs the pipeline and persists its output.
type WarehouseService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the repository used by this service.
	Repo WarehouseRepo
	// Pipeline carries the product key strategy.
	Pipeline etl.Pipeline
	// BatchSize is the insert batch size; non-positive uses the repo default.
	BatchSize int
	// FailOnIntegrity refuses to persist a build whose integrity report has
	// violations.
	FailOnIntegrity bool

	mu sync.Mutex
}

// NewWarehouseService constructs a WarehouseService that refuses builds with
// integrity violations.
func NewWarehouseService(db *gorm.DB, r WarehouseRepo, strategy etl.ProductKeyStrategy) *WarehouseService {
	return &WarehouseService{
		DB:              db,
		Repo:            r,
		Pipeline:        etl.Pipeline{Strategy: strategy},
		FailOnIntegrity: true,
	}
}

// RunFile runs the pipeline over a CSV file.
func (s *WarehouseService) RunFile(ctx context.Context, path string) (*RunSummary, error) {
	src, err := source.OpenCSV(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return s.Run(ctx, src, path)
}

// Run drains src, builds the star schema and replaces the persisted one.
// sourceName is recorded in the run ledger. Reading errors and database
// errors fail the run; a dirty integrity report fails it with ErrIntegrity
// when FailOnIntegrity is set, in which case the summary is still returned.
func (s *WarehouseService) Run(ctx context.Context, src source.RawEventSource, sourceName string) (*RunSummary, error) {
	tr := otel.Tracer("services/WarehouseService")
	ctx, span := tr.Start(ctx, "Run", trace.WithAttributes(attribute.String("etl.source", sourceName)))
	defer span.End()

	if !s.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer s.mu.Unlock()

	run, err := s.Repo.CreateRun(ctx, s.DB, sourceName)
	if err != nil {
		return nil, err
	}
	lg := log.With().Str("component", "warehouse").Str("run_id", run.ID).Str("source", sourceName).Logger()
	lg.Info().Msg("etl run started")

	sum, runErr := s.run(ctx, run, src)
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
	}

	// Record the outcome even when the caller's context is already done.
	if err := s.Repo.FinishRun(context.WithoutCancel(ctx), s.DB, run, runErr); err != nil {
		lg.Error().Err(err).Msg("could not record run outcome")
		if runErr == nil {
			runErr = err
		}
	}

	ev := lg.Info()
	if runErr != nil {
		ev = lg.Error().Err(runErr)
	}
	ev.Str("status", run.Status).
		Int64("raw", run.RawEvents).
		Int64("clean", run.CleanEvents).
		Int64("facts", run.Facts).
		Int64("unresolved", run.Unresolved).
		Bool("integrity_clean", run.IntegrityClean).
		Msg("etl run finished")

	return sum, runErr
}

func (s *WarehouseService) run(ctx context.Context, run *domain.ETLRun, src source.RawEventSource) (*RunSummary, error) {
	res, err := s.Pipeline.Run(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	run.ProductKey = res.Dims.Strategy().Name()
	run.RawEvents = int64(res.Sanitize.Raw)
	run.CleanEvents = int64(res.Sanitize.Clean)
	run.Facts = int64(len(res.Assembly.Facts))
	run.Unresolved = int64(len(res.Assembly.Unresolved))
	run.IntegrityClean = res.Integrity.Clean()

	sum := &RunSummary{
		Run:       run,
		Sanitize:  res.Sanitize,
		Assembly:  res.Assembly,
		Integrity: res.Integrity,
		Durations: res.Durations,
	}

	if s.FailOnIntegrity && !res.Integrity.Clean() {
		return sum, fmt.Errorf("%w: %d violations", ErrIntegrity, res.Integrity.Violations())
	}

	if err := s.Repo.ReplaceWarehouse(ctx, s.DB, res.Warehouse, s.BatchSize); err != nil {
		return sum, fmt.Errorf("persist warehouse: %w", err)
	}

	audit, err := s.Repo.AuditIntegrity(ctx, s.DB)
	if err != nil {
		return sum, fmt.Errorf("audit integrity: %w", err)
	}
	sum.Audit = &audit

	if sum.Tables, err = s.Repo.TableCounts(ctx, s.DB); err != nil {
		return sum, err
	}
	return sum, nil
}

// Integrity audits the persisted model. It returns ErrNoWarehouse when no
// run has succeeded.
func (s *WarehouseService) Integrity(ctx context.Context) (etl.IntegrityReport, error) {
	tr := otel.Tracer("services/WarehouseService")
	ctx, span := tr.Start(ctx, "Integrity")
	defer span.End()

	if _, err := s.Repo.LatestRun(ctx, s.DB); err != nil {
		if isNotFound(err) {
			return etl.IntegrityReport{}, ErrNoWarehouse
		}
		return etl.IntegrityReport{}, err
	}
	return s.Repo.AuditIntegrity(ctx, s.DB)
}

// ListRuns returns a page of the run ledger, most recent first.
// It applies defaults for invalid page/pageSize and returns total count.
func (s *WarehouseService) ListRuns(ctx context.Context, page, pageSize int) ([]domain.ETLRun, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := s.Repo.CountRuns(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.ETLRun{}, 0, nil
	}

	items, err := s.Repo.ListRuns(ctx, s.DB, offset, pageSize)
	return items, total, err
}
