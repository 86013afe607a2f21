package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// MinPurchasesExclusive is the purchase count a product must exceed to be
// ranked by average price.
const MinPurchasesExclusive = 5

// DefaultTopBrands is the length of the brand ranking in reports.
const DefaultTopBrands = 5

// CategoryRevenue is the purchase revenue of one category.
type CategoryRevenue struct {
	CategoryID   int64           `json:"category_id"   yaml:"category_id"`
	CategoryCode string          `json:"category_code" yaml:"category_code"`
	Revenue      decimal.Decimal `json:"revenue"       yaml:"revenue"`
}

// BrandCount is the number of purchase rows of one brand.
type BrandCount struct {
	Brand     string `json:"brand"     yaml:"brand"`
	Purchases int    `json:"purchases" yaml:"purchases"`
}

// ProductAvgPrice is the average purchase price of one product row.
type ProductAvgPrice struct {
	ProductKey int64           `json:"product_key" yaml:"product_key"`
	ProductID  string          `json:"product_id"  yaml:"product_id"`
	Brand      string          `json:"brand"       yaml:"brand"`
	Purchases  int             `json:"purchases"   yaml:"purchases"`
	AvgPrice   decimal.Decimal `json:"avg_price"   yaml:"avg_price"`
}

// MonthRevenue is the purchase revenue of one calendar month.
type MonthRevenue struct {
	Month `yaml:",inline"`
	Revenue decimal.Decimal `json:"revenue" yaml:"revenue"`
}

// MonthDailyAverage spreads a month's revenue over the days of that month
// present in the date dimension.
type MonthDailyAverage struct {
	Month `yaml:",inline"`
	Revenue      decimal.Decimal `json:"revenue"       yaml:"revenue"`
	Days         int             `json:"days"          yaml:"days"`
	DailyAverage decimal.Decimal `json:"daily_average" yaml:"daily_average"`
}

// WeekdayRevenue is the purchase revenue of one weekday.
type WeekdayRevenue struct {
	Weekday   string          `json:"weekday"   yaml:"weekday"`
	Purchases int             `json:"purchases" yaml:"purchases"`
	Revenue   decimal.Decimal `json:"revenue"   yaml:"revenue"`
}

// WeekendSplit divides purchase revenue between weekdays and weekends.
type WeekendSplit struct {
	Weekday decimal.Decimal `json:"weekday" yaml:"weekday"`
	Weekend decimal.Decimal `json:"weekend" yaml:"weekend"`
}

// WeekRevenue is the purchase revenue of one ISO-8601 week.
type WeekRevenue struct {
	ISOYear int             `json:"iso_year" yaml:"iso_year"`
	Week    int             `json:"week"     yaml:"week"`
	Revenue decimal.Decimal `json:"revenue"  yaml:"revenue"`
}

// TotalRevenue sums the price of every purchase fact. It is zero when there
// are no purchases.
func (m *Model) TotalRevenue() decimal.Decimal {
	total := decimal.Zero
	for _, s := range m.purchases {
		total = total.Add(s.Price)
	}
	return total
}

// PurchasingUsers counts the distinct users with at least one purchase.
func (m *Model) PurchasingUsers() int {
	users := make(map[string]struct{})
	for _, s := range m.purchases {
		users[s.UserID] = struct{}{}
	}
	return len(users)
}

// AverageOrderValue is total purchase revenue divided by the number of
// distinct purchasing users. It is undefined when nobody purchased.
func (m *Model) AverageOrderValue() (decimal.Decimal, error) {
	n := m.PurchasingUsers()
	if n == 0 {
		return decimal.Zero, undefined(MetricAOV, ErrDivisionByZero)
	}
	return m.TotalRevenue().Div(decimal.NewFromInt(int64(n))), nil
}

// TopCategoryByRevenue returns the category with the highest purchase
// revenue. Ties go to the lowest category id.
func (m *Model) TopCategoryByRevenue() (CategoryRevenue, error) {
	by := make(map[int64]decimal.Decimal)
	for _, s := range m.purchases {
		by[s.CategoryID] = by[s.CategoryID].Add(s.Price)
	}
	if len(by) == 0 {
		return CategoryRevenue{}, undefined(MetricTopCategory, ErrNoData)
	}

	var best CategoryRevenue
	first := true
	for id, rev := range by {
		if first || rev.GreaterThan(best.Revenue) || (rev.Equal(best.Revenue) && id < best.CategoryID) {
			best = CategoryRevenue{CategoryID: id, Revenue: rev}
			first = false
		}
	}
	if c, ok := m.dims.Category(best.CategoryID); ok {
		best.CategoryCode = c.CategoryCode
	}
	return best, nil
}

// TopBrandsByPurchases ranks brands by number of purchase rows, descending,
// and returns at most n of them. Ties are ordered by brand name. Products
// without a brand are not ranked.
func (m *Model) TopBrandsByPurchases(n int) []BrandCount {
	by := make(map[string]int)
	for _, s := range m.purchases {
		if !s.hasProduct || s.product.Brand == "" {
			continue
		}
		by[s.product.Brand]++
	}

	out := make([]BrandCount, 0, len(by))
	for b, c := range by {
		out = append(out, BrandCount{Brand: b, Purchases: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Purchases != out[j].Purchases {
			return out[i].Purchases > out[j].Purchases
		}
		return out[i].Brand < out[j].Brand
	})
	return limit(out, n)
}

// ProductsByAvgPrice lists the products purchased more than
// MinPurchasesExclusive times, by average purchase price descending, at most
// n of them. Ties are ordered by product key.
func (m *Model) ProductsByAvgPrice(n int) []ProductAvgPrice {
	type acc struct {
		count int
		sum   decimal.Decimal
		row   ProductAvgPrice
	}
	by := make(map[int64]*acc)
	for _, s := range m.purchases {
		a, ok := by[s.ProductKey]
		if !ok {
			a = &acc{row: ProductAvgPrice{ProductKey: s.ProductKey, ProductID: s.product.ProductID, Brand: s.product.Brand}}
			by[s.ProductKey] = a
		}
		a.count++
		a.sum = a.sum.Add(s.Price)
	}

	var out []ProductAvgPrice
	for _, a := range by {
		if a.count <= MinPurchasesExclusive {
			continue
		}
		row := a.row
		row.Purchases = a.count
		row.AvgPrice = a.sum.Div(decimal.NewFromInt(int64(a.count)))
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AvgPrice.Equal(out[j].AvgPrice) {
			return out[i].AvgPrice.GreaterThan(out[j].AvgPrice)
		}
		return out[i].ProductKey < out[j].ProductKey
	})
	return limit(out, n)
}

// HighestAvgPriceProduct returns the first entry of ProductsByAvgPrice. It is
// undefined when no product clears the purchase threshold.
func (m *Model) HighestAvgPriceProduct() (ProductAvgPrice, error) {
	top := m.ProductsByAvgPrice(1)
	if len(top) == 0 {
		return ProductAvgPrice{}, undefined(MetricHighestAvgPrice, ErrNoData)
	}
	return top[0], nil
}

// MonthlyRevenue sums purchase revenue per calendar month, in chronological
// order. Months without purchases are omitted.
func (m *Model) MonthlyRevenue() []MonthRevenue {
	by := m.revenueByMonth()
	out := make([]MonthRevenue, 0, len(by))
	for _, k := range sortedMonths(by) {
		out = append(out, MonthRevenue{Month: k, Revenue: by[k]})
	}
	return out
}

// DailyAverageRevenueByMonth divides each month's purchase revenue by the
// number of distinct dates of that month present in the date dimension,
// whether or not a purchase happened on them.
func (m *Model) DailyAverageRevenueByMonth() []MonthDailyAverage {
	days := make(map[Month]int)
	for _, d := range m.dims.Dates {
		days[Month{Year: d.Year, Month: d.Month}]++
	}

	by := m.revenueByMonth()
	out := make([]MonthDailyAverage, 0, len(by))
	for _, k := range sortedMonths(by) {
		row := MonthDailyAverage{Month: k, Revenue: by[k], Days: days[k]}
		if row.Days > 0 {
			row.DailyAverage = row.Revenue.Div(decimal.NewFromInt(int64(row.Days)))
		}
		out = append(out, row)
	}
	return out
}

func (m *Model) revenueByMonth() map[Month]decimal.Decimal {
	by := make(map[Month]decimal.Decimal)
	for _, s := range m.purchases {
		if !s.hasDate {
			continue
		}
		by[s.month()] = by[s.month()].Add(s.Price)
	}
	return by
}

// weekdayOrder lists weekdays Monday first.
var weekdayOrder = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday, time.Sunday,
}

// WeekdayRevenue returns purchase revenue for each of the seven weekdays,
// Monday first. Weekdays without purchases report zero.
func (m *Model) WeekdayRevenue() []WeekdayRevenue {
	by := make(map[string]*WeekdayRevenue, 7)
	out := make([]WeekdayRevenue, len(weekdayOrder))
	for i, wd := range weekdayOrder {
		out[i] = WeekdayRevenue{Weekday: wd.String(), Revenue: decimal.Zero}
		by[wd.String()] = &out[i]
	}
	for _, s := range m.purchases {
		if !s.hasDate {
			continue
		}
		if row, ok := by[s.date.WeekdayName]; ok {
			row.Purchases++
			row.Revenue = row.Revenue.Add(s.Price)
		}
	}
	return out
}

// WeekendSplit sums purchase revenue on weekend and on working days.
func (m *Model) WeekendSplit() WeekendSplit {
	split := WeekendSplit{Weekday: decimal.Zero, Weekend: decimal.Zero}
	for _, s := range m.purchases {
		if !s.hasDate {
			continue
		}
		if s.date.IsWeekend {
			split.Weekend = split.Weekend.Add(s.Price)
		} else {
			split.Weekday = split.Weekday.Add(s.Price)
		}
	}
	return split
}

// WeeklyRevenue sums purchase revenue per ISO-8601 week in chronological
// order. The ISO year can differ from the calendar year in early January and
// late December.
func (m *Model) WeeklyRevenue() []WeekRevenue {
	type wk struct{ year, week int }
	by := make(map[wk]decimal.Decimal)
	for _, s := range m.purchases {
		if !s.hasDate {
			continue
		}
		y, w := s.date.FullDate.ISOWeek()
		k := wk{y, w}
		by[k] = by[k].Add(s.Price)
	}

	out := make([]WeekRevenue, 0, len(by))
	for k, rev := range by {
		out = append(out, WeekRevenue{ISOYear: k.year, Week: k.week, Revenue: rev})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ISOYear != out[j].ISOYear {
			return out[i].ISOYear < out[j].ISOYear
		}
		return out[i].Week < out[j].Week
	})
	return out
}

// limit truncates s to n entries; n <= 0 keeps everything.
func limit[T any](s []T, n int) []T {
	if n > 0 && len(s) > n {
		return s[:n]
	}
	return s
}
