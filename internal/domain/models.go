// Package domain defines the staging, dimension, and fact models of the
// clickstream star schema. These types are mapped with GORM and are shared by
// the ETL pipeline, the persistence layer, and the metrics engine.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType is the behavioural kind of a clickstream event.
type EventType string

const (
	EventView     EventType = "view"
	EventCart     EventType = "cart"
	EventPurchase EventType = "purchase"
	EventReturn   EventType = "return"
)

// Valid reports whether t is one of the four event kinds the warehouse models.
func (t EventType) Valid() bool {
	switch t {
	case EventView, EventCart, EventPurchase, EventReturn:
		return true
	}
	return false
}

// IsSale reports whether events of this kind produce a fact row.
func (t EventType) IsSale() bool {
	return t == EventPurchase || t == EventReturn
}

// RawEvent is a single unvalidated record as delivered by a RawEventSource.
// Every field is kept as text; an empty string stands for a null value.
type RawEvent struct {
	EventTime    string
	EventType    string
	ProductID    string
	CategoryID   string
	CategoryCode string
	Brand        string
	Price        string
	UserID       string
	UserSession  string
}

// CleanEvent is a RawEvent that passed sanitization, with its fields typed.
// Seq is the position of the record in the raw input and preserves input
// order for deterministic downstream tie-breaks.
//
// EventTime and Price are nil or invalid when the raw value was null; such
// events still count toward event-level metrics.
//
// Clean events are persisted as the staging table the conversion and funnel
// metrics read from, since the fact table holds sales only.
type CleanEvent struct {
	Seq          int64               `json:"seq"           gorm:"primaryKey;autoIncrement:false"`
	EventTime    *time.Time          `json:"event_time"    gorm:"index"`
	EventType    EventType           `json:"event_type"    gorm:"type:varchar(16);not null;index"`
	ProductID    string              `json:"product_id"    gorm:"type:varchar(64);not null"`
	CategoryID   string              `json:"category_id"   gorm:"type:varchar(64)"`
	CategoryCode string              `json:"category_code" gorm:"type:varchar(255)"`
	Brand        string              `json:"brand"         gorm:"type:varchar(255)"`
	Price        decimal.NullDecimal `json:"price"         gorm:"type:decimal(18,6)"`
	UserID       string              `json:"user_id"       gorm:"type:varchar(64);not null;index"`
	SessionID    string              `json:"session_id"    gorm:"type:varchar(64)"`
}

// TableName returns the database table name for CleanEvent.
func (CleanEvent) TableName() string { return "stg_events" }

// DimUser is the user dimension. UserKey is assigned on first sight.
type DimUser struct {
	UserKey int64  `json:"user_key" gorm:"primaryKey;autoIncrement:false"`
	UserID  string `json:"user_id"  gorm:"type:varchar(64);not null;uniqueIndex:ux_dim_users_user_id"`
}

// TableName returns the database table name for DimUser.
func (DimUser) TableName() string { return "dim_users" }

// DimProduct is the product dimension. Its natural key is the triple
// (product_id, brand, price): the same product observed at another price is a
// distinct row. Price is null only for a product keyed by id alone that was
// never observed with a price.
type DimProduct struct {
	ProductKey int64               `json:"product_key" gorm:"primaryKey;autoIncrement:false"`
	ProductID  string              `json:"product_id"  gorm:"type:varchar(64);not null;uniqueIndex:ux_dim_products_natural,priority:1"`
	Brand      string              `json:"brand"       gorm:"type:varchar(255);not null;uniqueIndex:ux_dim_products_natural,priority:2"`
	Price      decimal.NullDecimal `json:"price"       gorm:"type:decimal(18,6);uniqueIndex:ux_dim_products_natural,priority:3"`
}

// TableName returns the database table name for DimProduct.
func (DimProduct) TableName() string { return "dim_products" }

// DimCategory is the category dimension keyed naturally by category_code.
type DimCategory struct {
	CategoryID   int64  `json:"category_id"   gorm:"primaryKey;autoIncrement:false"`
	CategoryCode string `json:"category_code" gorm:"type:varchar(255);not null;uniqueIndex:ux_dim_categories_code"`
}

// TableName returns the database table name for DimCategory.
func (DimCategory) TableName() string { return "dim_categories" }

// DimSession is the session dimension. The session token is its own key.
type DimSession struct {
	SessionID string `json:"session_id" gorm:"type:varchar(64);primaryKey"`
}

// TableName returns the database table name for DimSession.
func (DimSession) TableName() string { return "dim_sessions" }

// DimDate is the calendar dimension, one row per distinct UTC day.
//
// Fields:
//   - FullDate: midnight UTC of the day (unique).
//   - Week: ISO-8601 week number (1..53).
//   - WeekdayName: English weekday, e.g. "Saturday".
//   - IsWeekend: true iff the day is a Saturday or a Sunday.
type DimDate struct {
	DateID      int64     `json:"date_id"      gorm:"primaryKey;autoIncrement:false"`
	FullDate    time.Time `json:"full_date"    gorm:"not null;uniqueIndex:ux_dim_dates_full_date"`
	Year        int       `json:"year"         gorm:"not null;index:idx_dim_dates_year_month,priority:1"`
	Month       int       `json:"month"        gorm:"not null;index:idx_dim_dates_year_month,priority:2"`
	Day         int       `json:"day"          gorm:"not null"`
	Week        int       `json:"week"         gorm:"not null"`
	WeekdayName string    `json:"weekday_name" gorm:"type:varchar(16);not null"`
	IsWeekend   bool      `json:"is_weekend"   gorm:"not null"`
}

// TableName returns the database table name for DimDate.
func (DimDate) TableName() string { return "dim_dates" }

// FactSale is one purchase or return, resolved against every dimension.
//
// UserID references dim_users by natural key; the remaining references use
// the dimensions' surrogate keys (SessionID is both).
type FactSale struct {
	SalesID    int64           `json:"sales_id"    gorm:"primaryKey;autoIncrement:false"`
	UserID     string          `json:"user_id"     gorm:"type:varchar(64);not null;index"`
	ProductKey int64           `json:"product_key" gorm:"not null;index"`
	CategoryID int64           `json:"category_id" gorm:"not null;index"`
	SessionID  string          `json:"session_id"  gorm:"type:varchar(64);not null"`
	DateID     int64           `json:"date_id"     gorm:"not null;index"`
	Price      decimal.Decimal `json:"price"       gorm:"type:decimal(18,6);not null"`
	EventType  EventType       `json:"event_type"  gorm:"type:varchar(16);not null;check:event_type IN ('purchase','return')"`
}

// TableName returns the database table name for FactSale.
func (FactSale) TableName() string { return "fact_sales" }

// Warehouse is one complete, immutable build of the star schema together with
// the staging events it was derived from.
type Warehouse struct {
	Events     []CleanEvent
	Users      []DimUser
	Products   []DimProduct
	Categories []DimCategory
	Sessions   []DimSession
	Dates      []DimDate
	Facts      []FactSale
}
