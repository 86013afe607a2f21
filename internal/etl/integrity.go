package etl

import "github.com/tbourn/go-clickstream-warehouse/internal/domain"

// Foreign key columns of fact_sales, in report order.
const (
	ColUserID     = "user_id"
	ColProductKey = "product_key"
	ColCategoryID = "category_id"
	ColSessionID  = "session_id"
	ColDateID     = "date_id"
)

// FactColumns lists the foreign key columns audited by CheckIntegrity.
var FactColumns = []string{ColUserID, ColProductKey, ColCategoryID, ColSessionID, ColDateID}

// ColumnIntegrity holds the violation counts of one foreign key column.
type ColumnIntegrity struct {
	Column  string `json:"column"`
	Nulls   int64  `json:"nulls"`
	Orphans int64  `json:"orphans"`
}

// IntegrityReport is the outcome of an integrity audit. A non-zero count is a
// warning; callers decide whether to stop.
type IntegrityReport struct {
	Facts   int64             `json:"facts"`
	Columns []ColumnIntegrity `json:"columns"`
}

// Violations returns the total of null and orphan references.
func (r IntegrityReport) Violations() int64 {
	var n int64
	for _, c := range r.Columns {
		n += c.Nulls + c.Orphans
	}
	return n
}

// Clean reports whether no violation was found.
func (r IntegrityReport) Clean() bool { return r.Violations() == 0 }

// Column returns the counts for a column name.
func (r IntegrityReport) Column(name string) (ColumnIntegrity, bool) {
	for _, c := range r.Columns {
		if c.Column == name {
			return c, true
		}
	}
	return ColumnIntegrity{}, false
}

// CheckIntegrity counts, per foreign key column of facts, the null references
// (zero surrogate key or empty natural key) and the non-null references with
// no matching dimension row. It never modifies its inputs.
func CheckIntegrity(facts []domain.FactSale, dims *Dimensions) IntegrityReport {
	cols := make(map[string]*ColumnIntegrity, len(FactColumns))
	rep := IntegrityReport{Facts: int64(len(facts)), Columns: make([]ColumnIntegrity, len(FactColumns))}
	for i, name := range FactColumns {
		rep.Columns[i].Column = name
		cols[name] = &rep.Columns[i]
	}

	check := func(col string, null, found bool) {
		switch {
		case null:
			cols[col].Nulls++
		case !found:
			cols[col].Orphans++
		}
	}

	for _, f := range facts {
		_, ok := dims.UserKey(f.UserID)
		check(ColUserID, f.UserID == "", ok)

		_, ok = dims.Product(f.ProductKey)
		check(ColProductKey, f.ProductKey == 0, ok)

		_, ok = dims.Category(f.CategoryID)
		check(ColCategoryID, f.CategoryID == 0, ok)

		check(ColSessionID, f.SessionID == "", dims.HasSession(f.SessionID))

		_, ok = dims.Date(f.DateID)
		check(ColDateID, f.DateID == 0, ok)
	}
	return rep
}
