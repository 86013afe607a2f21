package domain

import "time"

// Run statuses recorded in the ETL run ledger.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// ETLRun records one execution of the pipeline. Because every run rebuilds
// the model from scratch, the most recent succeeded run identifies the
// warehouse contents currently being served.
type ETLRun struct {
	ID             string     `json:"id"              gorm:"type:char(36);primaryKey"`
	Source         string     `json:"source"          gorm:"type:varchar(512);not null"`
	ProductKey     string     `json:"product_key"     gorm:"type:varchar(32)"`
	Status         string     `json:"status"          gorm:"type:varchar(16);not null;index;check:status IN ('running','succeeded','failed')"`
	RawEvents      int64      `json:"raw_events"`
	CleanEvents    int64      `json:"clean_events"`
	Facts          int64      `json:"facts"`
	Unresolved     int64      `json:"unresolved"`
	IntegrityClean bool       `json:"integrity_clean"`
	Error          string     `json:"error,omitempty" gorm:"type:text"`
	StartedAt      time.Time  `json:"started_at"      gorm:"not null;index"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// TableName implements the GORM tabler interface.
func (ETLRun) TableName() string { return "etl_runs" }
