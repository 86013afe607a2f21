// Warehouse HTTP handlers.
//
// This file exposes the ETL control surface:
//   - GET  /warehouse/integrity   (SQL audit of the persisted model)
//   - GET  /warehouse/runs        (run ledger, paginated)
//   - POST /warehouse/runs        (run the ETL over the configured event file)
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-clickstream-warehouse/internal/domain"
	"github.com/tbourn/go-clickstream-warehouse/internal/etl"
	"github.com/tbourn/go-clickstream-warehouse/internal/http/middleware"
	"github.com/tbourn/go-clickstream-warehouse/internal/services"
)

// IntegrityResponse is the body of GET /warehouse/integrity.
type IntegrityResponse struct {
	Clean      bool                `json:"clean"`
	Violations int64               `json:"violations"`
	Report     etl.IntegrityReport `json:"report"`
}

// ListRunsResponse wraps a page of runs and pagination information.
type ListRunsResponse struct {
	Runs       []domain.ETLRun `json:"runs"`
	Pagination Pagination      `json:"pagination"`
}

// Integrity audits the persisted facts against the persisted dimensions.
func (h *Handlers) Integrity(c *gin.Context) {
	rep, err := h.whSvc.Integrity(c.Request.Context())
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, IntegrityResponse{
		Clean:      rep.Clean(),
		Violations: rep.Violations(),
		Report:     rep,
	})
}

// ListRuns returns a page of the run ledger, most recent first.
func (h *Handlers) ListRuns(c *gin.Context) {
	page, pageSize := clampPagination(c)
	runs, total, err := h.whSvc.ListRuns(c.Request.Context(), page, pageSize)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, ListRunsResponse{Runs: runs, Pagination: paginate(page, pageSize, total)})
}

// StartRun runs the ETL synchronously over the configured event file and
// returns the run summary with 201. A run refused by the integrity gate
// answers 422 etl_failed with the summary; a concurrent run answers 409.
func (h *Handlers) StartRun(c *gin.Context) {
	sum, err := h.whSvc.RunFile(c.Request.Context(), h.eventsPath)
	switch {
	case err == nil:
		middleware.LoggerFrom(c).Info().Str("run_id", sum.Run.ID).Msg("etl run completed")
		ok(c, http.StatusCreated, sum)
	case errors.Is(err, services.ErrRunInProgress):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, services.ErrIntegrity) && sum != nil:
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
			"request_id": c.Writer.Header().Get("X-Request-ID"),
			"code":       ErrCodeETLFailed,
			"message":    err.Error(),
			"summary":    sum,
		})
	default:
		fail(c, http.StatusInternalServerError, ErrCodeETLFailed, err.Error())
	}
}
