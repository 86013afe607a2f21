// Package handlers defines the error codes returned by the query API.
//
// Every error response carries an HTTP status and one of these codes in the
// envelope built by fail(). Clients branch on the code; the message is for
// humans.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "metric_undefined",
//	  "message": "conversion_rate: metric undefined: division by zero"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-clickstream-warehouse/internal/analytics"
	"github.com/tbourn/go-clickstream-warehouse/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeMetricUndefined = "metric_undefined"
	ErrCodeNoWarehouse     = "no_warehouse"
	ErrCodeETLFailed       = "etl_failed"
)

// failService maps a service error onto the envelope. Undefined metrics are
// a client-visible 422, a missing warehouse is a 404, anything else is a 500.
func failService(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNoWarehouse):
		fail(c, http.StatusNotFound, ErrCodeNoWarehouse, "no warehouse has been built yet; run the ETL first")
	case analytics.IsUndefined(err):
		fail(c, http.StatusUnprocessableEntity, ErrCodeMetricUndefined, err.Error())
	case errors.Is(err, services.ErrRunInProgress):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
