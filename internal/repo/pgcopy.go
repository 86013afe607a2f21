// Package repo implements the persistence layer of the warehouse, backed by
// GORM. This file exports a built star schema into PostgreSQL with the COPY
// protocol, for warehouses too large for row-by-row inserts.
package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/tbourn/go-clickstream-warehouse/internal/domain"
)

// pgSchema creates the star schema tables when missing. Column names and
// types match the GORM models so both loaders produce the same tables.
var pgSchema = []string{
	`CREATE TABLE IF NOT EXISTS stg_events (
		seq bigint PRIMARY KEY,
		event_time timestamptz,
		event_type varchar(16) NOT NULL,
		product_id varchar(64) NOT NULL,
		category_id varchar(64),
		category_code varchar(255),
		brand varchar(255),
		price decimal(18,6),
		user_id varchar(64) NOT NULL,
		session_id varchar(64)
	)`,
	`CREATE TABLE IF NOT EXISTS dim_users (
		user_key bigint PRIMARY KEY,
		user_id varchar(64) NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS dim_products (
		product_key bigint PRIMARY KEY,
		product_id varchar(64) NOT NULL,
		brand varchar(255) NOT NULL,
		price decimal(18,6),
		UNIQUE (product_id, brand, price)
	)`,
	`CREATE TABLE IF NOT EXISTS dim_categories (
		category_id bigint PRIMARY KEY,
		category_code varchar(255) NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS dim_sessions (
		session_id varchar(64) PRIMARY KEY
	)`,
	`CREATE TABLE IF NOT EXISTS dim_dates (
		date_id bigint PRIMARY KEY,
		full_date timestamptz NOT NULL UNIQUE,
		year integer NOT NULL,
		month integer NOT NULL,
		day integer NOT NULL,
		week integer NOT NULL,
		weekday_name varchar(16) NOT NULL,
		is_weekend boolean NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS fact_sales (
		sales_id bigint PRIMARY KEY,
		user_id varchar(64) NOT NULL,
		product_key bigint NOT NULL,
		category_id bigint NOT NULL,
		session_id varchar(64) NOT NULL,
		date_id bigint NOT NULL,
		price decimal(18,6) NOT NULL,
		event_type varchar(16) NOT NULL CHECK (event_type IN ('purchase','return'))
	)`,
}

// copyTable is one COPY of the export.
type copyTable struct {
	name    string
	columns []string
	rows    [][]any
}

// CopyToPostgres replaces the star schema in the target database with wh,
// in one transaction: tables are created when missing, truncated, then
// filled with COPY. It returns the number of rows copied per table.
func CopyToPostgres(ctx context.Context, conn *pgx.Conn, wh domain.Warehouse) (map[string]int64, error) {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, ddl := range pgSchema {
		if _, err := tx.Exec(ctx, ddl); err != nil {
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	if _, err := tx.Exec(ctx,
		`TRUNCATE fact_sales, stg_events, dim_users, dim_products, dim_categories, dim_sessions, dim_dates`,
	); err != nil {
		return nil, fmt.Errorf("truncate: %w", err)
	}

	copied := make(map[string]int64, 7)
	for _, t := range copyTables(wh) {
		if len(t.rows) == 0 {
			copied[t.name] = 0
			continue
		}
		n, err := tx.CopyFrom(ctx, pgx.Identifier{t.name}, t.columns, pgx.CopyFromRows(t.rows))
		if err != nil {
			return nil, fmt.Errorf("copy %s: %w", t.name, err)
		}
		copied[t.name] = n
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return copied, nil
}

// copyTables flattens wh into COPY rows, dimensions before facts. Decimal
// prices are sent as text and cast by the server.
func copyTables(wh domain.Warehouse) []copyTable {
	events := make([][]any, len(wh.Events))
	for i, e := range wh.Events {
		events[i] = []any{e.Seq, nullTime(e.EventTime), string(e.EventType), e.ProductID, nullText(e.CategoryID),
			nullText(e.CategoryCode), nullText(e.Brand), nullPrice(e.Price), e.UserID, nullText(e.SessionID)}
	}
	users := make([][]any, len(wh.Users))
	for i, u := range wh.Users {
		users[i] = []any{u.UserKey, u.UserID}
	}
	products := make([][]any, len(wh.Products))
	for i, p := range wh.Products {
		products[i] = []any{p.ProductKey, p.ProductID, p.Brand, nullPrice(p.Price)}
	}
	categories := make([][]any, len(wh.Categories))
	for i, c := range wh.Categories {
		categories[i] = []any{c.CategoryID, c.CategoryCode}
	}
	sessions := make([][]any, len(wh.Sessions))
	for i, s := range wh.Sessions {
		sessions[i] = []any{s.SessionID}
	}
	dates := make([][]any, len(wh.Dates))
	for i, d := range wh.Dates {
		dates[i] = []any{d.DateID, d.FullDate, int32(d.Year), int32(d.Month), int32(d.Day), int32(d.Week), d.WeekdayName, d.IsWeekend}
	}
	facts := make([][]any, len(wh.Facts))
	for i, f := range wh.Facts {
		facts[i] = []any{f.SalesID, f.UserID, f.ProductKey, f.CategoryID, f.SessionID, f.DateID, f.Price.String(), string(f.EventType)}
	}

	return []copyTable{
		{"stg_events", []string{"seq", "event_time", "event_type", "product_id", "category_id", "category_code", "brand", "price", "user_id", "session_id"}, events},
		{"dim_users", []string{"user_key", "user_id"}, users},
		{"dim_products", []string{"product_key", "product_id", "brand", "price"}, products},
		{"dim_categories", []string{"category_id", "category_code"}, categories},
		{"dim_sessions", []string{"session_id"}, sessions},
		{"dim_dates", []string{"date_id", "full_date", "year", "month", "day", "week", "weekday_name", "is_weekend"}, dates},
		{"fact_sales", []string{"sales_id", "user_id", "product_key", "category_id", "session_id", "date_id", "price", "event_type"}, facts},
	}
}

// nullText maps the empty string to SQL NULL.
func nullText(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullPrice(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}
