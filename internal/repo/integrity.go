// Package repo implements the persistence layer of the warehouse, backed by
// GORM. This file audits the persisted fact table against its dimensions
// with set-based SQL, independently of the in-memory check run by the ETL.
package repo

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/tbourn/go-clickstream-warehouse/internal/etl"
)

// fkSpec describes one foreign key of fact_sales.
type fkSpec struct {
	column   string
	dimTable string
	dimKey   string
	text     bool
}

var factForeignKeys = []fkSpec{
	{etl.ColUserID, "dim_users", "user_id", true},
	{etl.ColProductKey, "dim_products", "product_key", false},
	{etl.ColCategoryID, "dim_categories", "category_id", false},
	{etl.ColSessionID, "dim_sessions", "session_id", true},
	{etl.ColDateID, "dim_dates", "date_id", false},
}

// AuditIntegrity counts, per foreign key column of fact_sales, the null
// references and the references without a dimension row, using LEFT JOINs.
// Empty strings and zero keys count as null.
func AuditIntegrity(ctx context.Context, db *gorm.DB) (etl.IntegrityReport, error) {
	q := db.WithContext(ctx)

	var rep etl.IntegrityReport
	if err := q.Table("fact_sales").Count(&rep.Facts).Error; err != nil {
		return etl.IntegrityReport{}, err
	}

	for _, fk := range factForeignKeys {
		empty := "0"
		if fk.text {
			empty = "''"
		}
		nullCond := fmt.Sprintf("f.%[1]s IS NULL OR f.%[1]s = %[2]s", fk.column, empty)

		col := etl.ColumnIntegrity{Column: fk.column}
		if err := q.Table("fact_sales AS f").Where(nullCond).Count(&col.Nulls).Error; err != nil {
			return etl.IntegrityReport{}, fmt.Errorf("%s nulls: %w", fk.column, err)
		}
		err := q.Table("fact_sales AS f").
			Joins(fmt.Sprintf("LEFT JOIN %s AS d ON d.%s = f.%s", fk.dimTable, fk.dimKey, fk.column)).
			Where(fmt.Sprintf("NOT (%s)", nullCond)).
			Where(fmt.Sprintf("d.%s IS NULL", fk.dimKey)).
			Count(&col.Orphans).Error
		if err != nil {
			return etl.IntegrityReport{}, fmt.Errorf("%s orphans: %w", fk.column, err)
		}
		rep.Columns = append(rep.Columns, col)
	}
	return rep, nil
}
