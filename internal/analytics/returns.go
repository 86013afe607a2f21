package analytics

import (
	"sort"
	"time"

	"github.com/tbourn/go-clickstream-warehouse/internal/domain"
)

// DefaultTopReturned is the length of the returned-category ranking in
// reports.
const DefaultTopReturned = 3

// CategoryCount is the number of return rows of one category.
type CategoryCount struct {
	CategoryID   int64  `json:"category_id"   yaml:"category_id"`
	CategoryCode string `json:"category_code" yaml:"category_code"`
	Returns      int    `json:"returns"       yaml:"returns"`
}

// MonthReturnRate compares returns with all sales of one month.
type MonthReturnRate struct {
	Month     `yaml:",inline"`
	Purchases int     `json:"purchases" yaml:"purchases"`
	Returns   int     `json:"returns"   yaml:"returns"`
	Rate      Percent `json:"rate"      yaml:"rate"`
}

// TopReturnedCategories ranks categories by number of return facts,
// descending, and returns at most n of them. Ties go to the lowest category
// id.
func (m *Model) TopReturnedCategories(n int) []CategoryCount {
	by := make(map[int64]int)
	for _, s := range m.returns {
		by[s.CategoryID]++
	}

	out := make([]CategoryCount, 0, len(by))
	for id, c := range by {
		row := CategoryCount{CategoryID: id, Returns: c}
		if cat, ok := m.dims.Category(id); ok {
			row.CategoryCode = cat.CategoryCode
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Returns != out[j].Returns {
			return out[i].Returns > out[j].Returns
		}
		return out[i].CategoryID < out[j].CategoryID
	})
	return limit(out, n)
}

// ReturnRate is returns per purchase, as a percentage rounded to two
// decimals, over the clean event stream. It is undefined when there are no
// purchases.
func (m *Model) ReturnRate() (float64, error) {
	return m.returnRate().Err(MetricReturnRate)
}

func (m *Model) returnRate() Percent {
	counts := m.eventCounts()
	return percentOf(counts[domain.EventReturn], counts[domain.EventPurchase])
}

// MonthlyReturnRates reports, per month with at least one sale, returns as a
// percentage of returns plus purchases, in chronological order.
func (m *Model) MonthlyReturnRates() []MonthReturnRate {
	by := make(map[Month]*MonthReturnRate)
	row := func(s sale) *MonthReturnRate {
		k := s.month()
		r, ok := by[k]
		if !ok {
			r = &MonthReturnRate{Month: k}
			by[k] = r
		}
		return r
	}
	for _, s := range m.purchases {
		if s.hasDate {
			row(s).Purchases++
		}
	}
	for _, s := range m.returns {
		if s.hasDate {
			row(s).Returns++
		}
	}

	out := make([]MonthReturnRate, 0, len(by))
	for _, k := range sortedMonths(by) {
		r := *by[k]
		r.Rate = percentOf(r.Returns, r.Returns+r.Purchases)
		out = append(out, r)
	}
	return out
}

// PurchasedThenReturned lists, in order, the users who returned a product
// after buying it: for some product row, their earliest purchase day is
// strictly before their earliest return day. Same-day pairs do not count.
func (m *Model) PurchasedThenReturned() []string {
	type pair struct {
		user    string
		product int64
	}
	firstOf := func(sales []sale) map[pair]time.Time {
		out := make(map[pair]time.Time)
		for _, s := range sales {
			if !s.hasDate {
				continue
			}
			k := pair{s.UserID, s.ProductKey}
			if cur, ok := out[k]; !ok || s.date.FullDate.Before(cur) {
				out[k] = s.date.FullDate
			}
		}
		return out
	}
	bought := firstOf(m.purchases)
	returned := firstOf(m.returns)

	users := make(map[string]struct{})
	for k, ret := range returned {
		if buy, ok := bought[k]; ok && buy.Before(ret) {
			users[k.user] = struct{}{}
		}
	}
	out := make([]string, 0, len(users))
	for u := range users {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}
