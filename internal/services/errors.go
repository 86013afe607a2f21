// Package services defines the application logic of the warehouse: running
// the ETL pipeline into the database and serving metrics over the persisted
// model. This file centralizes common service-level error values so that
// they can be consistently returned by service methods and checked by
// callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import (
	"errors"

	"gorm.io/gorm"
)

var (
	// ErrNoWarehouse indicates that no ETL run has succeeded yet, so there is
	// no model to query.
	ErrNoWarehouse = errors.New("no warehouse has been built")

	// ErrIntegrity is returned when a build's integrity report is not clean
	// and the service is configured to refuse such builds.
	ErrIntegrity = errors.New("integrity check failed")

	// ErrRunInProgress is returned when an ETL run is requested while another
	// one is still executing.
	ErrRunInProgress = errors.New("an ETL run is already in progress")
)

// isNotFound reports whether err signals a missing record.
func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
