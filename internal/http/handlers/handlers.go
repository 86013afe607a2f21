// Package handlers provides the HTTP handlers of the warehouse query API.
//
// Handlers are transport-thin: they parse query parameters, call the
// services, and translate results and errors into JSON responses. Metric
// responses carry the ID of the ETL run they were computed from and a weak
// ETag derived from it, so clients can revalidate cheaply until the next run.
package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-clickstream-warehouse/internal/analytics"
	"github.com/tbourn/go-clickstream-warehouse/internal/domain"
	"github.com/tbourn/go-clickstream-warehouse/internal/etl"
	"github.com/tbourn/go-clickstream-warehouse/internal/services"
	"github.com/tbourn/go-clickstream-warehouse/internal/utils"
)

//
// Service contracts (context-aware)
//

// WarehouseService runs the ETL and exposes the run ledger.
type WarehouseService interface {
	// RunFile runs the pipeline over a CSV file and persists the result.
	RunFile(ctx context.Context, path string) (*services.RunSummary, error)
	// Integrity audits the persisted star schema.
	Integrity(ctx context.Context) (etl.IntegrityReport, error)
	// ListRuns returns a page of runs and the total count.
	ListRuns(ctx context.Context, page, pageSize int) ([]domain.ETLRun, int64, error)
}

// ReportService serves metrics of the latest persisted build.
type ReportService interface {
	// Model returns the analytics model and the run it was loaded from.
	Model(ctx context.Context) (*analytics.Model, *domain.ETLRun, error)
	// Report evaluates every metric.
	Report(ctx context.Context) (*analytics.Report, *domain.ETLRun, error)
	// PurchaseSpans returns a page of per-user purchase spans and the total.
	PurchaseSpans(ctx context.Context, page, pageSize int) ([]analytics.PurchaseSpan, int64, error)
}

//
// Handler wiring
//

// Handlers groups the report and warehouse endpoints.
type Handlers struct {
	whSvc      WarehouseService
	repSvc     ReportService
	eventsPath string
}

// New constructs Handlers. eventsPath is the raw event file POST
// /warehouse/runs loads.
func New(whSvc WarehouseService, repSvc ReportService, eventsPath string) *Handlers {
	return &Handlers{whSvc: whSvc, repSvc: repSvc, eventsPath: eventsPath}
}

//
// Helpers
//

const (
	defaultPage     = 1
	defaultPageSize = 20
	maxPageSize     = 100
	maxTopN         = 100
)

// clampPagination parses page and page_size, bounding them to sane values.
func clampPagination(c *gin.Context) (page, pageSize int) {
	page = max(utils.AtoiDefault(c.Query("page"), defaultPage), 1)
	pageSize = utils.Clamp(utils.AtoiDefault(c.Query("page_size"), defaultPageSize), 1, maxPageSize)
	return page, pageSize
}

// topN parses the n query parameter, bounded to [1, 100].
func topN(c *gin.Context, def int) int {
	return utils.Clamp(utils.AtoiDefault(c.Query("n"), def), 1, maxTopN)
}

func paginate(page, pageSize int, total int64) Pagination {
	pages := utils.TotalPages(total, pageSize)
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: pages,
		HasNext:    page < pages,
	}
}

// runETag is the weak validator of every response computed from run.
func runETag(run *domain.ETLRun) string {
	return fmt.Sprintf(`W/"run:%s"`, run.ID)
}

// model loads the analytics model and handles conditional requests. It
// returns false when the response has already been written, either an error
// or a 304 because the client holds the current run's representation.
func (h *Handlers) model(c *gin.Context) (*analytics.Model, *domain.ETLRun, bool) {
	m, run, err := h.repSvc.Model(c.Request.Context())
	if err != nil {
		failService(c, err)
		return nil, nil, false
	}
	etag := runETag(run)
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return nil, nil, false
	}
	return m, run, true
}

// respond writes data computed from run.
func respond(c *gin.Context, run *domain.ETLRun, data any) {
	ok(c, http.StatusOK, MetricResponse{RunID: run.ID, Data: data})
}
