// Package analytics is the metrics engine: a fixed set of business metrics
// computed over one built star schema. Every metric is a read-only method of
// Model and can be evaluated on its own; BuildReport evaluates all of them.
//
// Sales metrics read the fact table joined to its dimensions. Conversion and
// funnel metrics read the clean event stream, because the fact table only
// holds purchases and returns.
package analytics

import (
	"fmt"
	"sort"
	"time"

	"github.com/tbourn/go-clickstream-warehouse/internal/domain"
	"github.com/tbourn/go-clickstream-warehouse/internal/etl"
)

// Month identifies a calendar month.
type Month struct {
	Year  int `json:"year"  yaml:"year"`
	Month int `json:"month" yaml:"month"`
}

// String formats the month as YYYY-MM.
func (m Month) String() string { return fmt.Sprintf("%04d-%02d", m.Year, m.Month) }

// Before reports whether m precedes o.
func (m Month) Before(o Month) bool {
	if m.Year != o.Year {
		return m.Year < o.Year
	}
	return m.Month < o.Month
}

// Next returns the following month.
func (m Month) Next() Month {
	if m.Month == 12 {
		return Month{Year: m.Year + 1, Month: 1}
	}
	return Month{Year: m.Year, Month: m.Month + 1}
}

// sale is a fact row joined to its date and product rows. Facts whose date or
// product do not resolve are kept with the zero row; the metrics that need
// the missing attribute skip them.
type sale struct {
	domain.FactSale
	date       domain.DimDate
	hasDate    bool
	product    domain.DimProduct
	hasProduct bool
}

// Model is the read-only input of every metric. Its zero value is an empty
// warehouse. Methods may be called concurrently.
type Model struct {
	events    []domain.CleanEvent
	dims      *etl.Dimensions
	purchases []sale
	returns   []sale
	latest    time.Time
}

// NewModel joins facts to dims once so that individual metrics stay simple
// scans. A nil dims is treated as empty dimensions.
func NewModel(events []domain.CleanEvent, facts []domain.FactSale, dims *etl.Dimensions) *Model {
	if dims == nil {
		dims = etl.BuildDimensions(nil, nil)
	}
	m := &Model{events: events, dims: dims}

	for _, f := range facts {
		s := sale{FactSale: f}
		s.date, s.hasDate = dims.Date(f.DateID)
		s.product, s.hasProduct = dims.Product(f.ProductKey)
		switch f.EventType {
		case domain.EventPurchase:
			m.purchases = append(m.purchases, s)
		case domain.EventReturn:
			m.returns = append(m.returns, s)
		}
	}
	for _, d := range dims.Dates {
		if d.FullDate.After(m.latest) {
			m.latest = d.FullDate
		}
	}
	return m
}

// FromResult builds the model of a pipeline result.
func FromResult(res *etl.Result) *Model {
	return NewModel(res.Warehouse.Events, res.Warehouse.Facts, res.Dims)
}

// Dims returns the dimensions the model was built over.
func (m *Model) Dims() *etl.Dimensions { return m.dims }

// LatestDate returns the most recent day in the date dimension, or the zero
// time for an empty model.
func (m *Model) LatestDate() time.Time { return m.latest }

func (s sale) month() Month { return Month{Year: s.date.Year, Month: s.date.Month} }

// sortedMonths returns the keys of a month-keyed map in chronological order.
func sortedMonths[V any](by map[Month]V) []Month {
	out := make([]Month, 0, len(by))
	for k := range by {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
