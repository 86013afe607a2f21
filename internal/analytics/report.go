package analytics

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"
)

// Metric names, used in errors and in Report.Undefined.
const (
	MetricAOV                 = "average_order_value"
	MetricTopCategory         = "top_category_by_revenue"
	MetricHighestAvgPrice     = "highest_avg_price_product"
	MetricAvgDaysBetween      = "avg_days_between_purchases"
	MetricIntervalPercentiles = "purchase_interval_percentiles"
	MetricConversion          = "conversion_rate"
	MetricReturnRate          = "return_rate"
)

// Report bundles every metric of one model. Metrics without a value are nil
// and listed in Undefined with the reason.
type Report struct {
	TotalRevenue            decimal.Decimal      `json:"total_revenue"                 yaml:"total_revenue"`
	PurchasingUsers         int                  `json:"purchasing_users"              yaml:"purchasing_users"`
	AverageOrderValue       *decimal.Decimal     `json:"average_order_value"           yaml:"average_order_value"`
	TopCategory             *CategoryRevenue     `json:"top_category"                  yaml:"top_category"`
	TopBrands               []BrandCount         `json:"top_brands"                    yaml:"top_brands"`
	HighestAvgPriceProduct  *ProductAvgPrice     `json:"highest_avg_price_product"     yaml:"highest_avg_price_product"`
	MonthlyRevenue          []MonthRevenue       `json:"monthly_revenue"               yaml:"monthly_revenue"`
	DailyAverageRevenue     []MonthDailyAverage  `json:"daily_average_revenue"         yaml:"daily_average_revenue"`
	WeekdayRevenue          []WeekdayRevenue     `json:"weekday_revenue"               yaml:"weekday_revenue"`
	WeekendSplit            WeekendSplit         `json:"weekend_split"                 yaml:"weekend_split"`
	WeeklyRevenue           []WeekRevenue        `json:"weekly_revenue"                yaml:"weekly_revenue"`
	RepeatPurchaseRate      float64              `json:"repeat_purchase_rate"          yaml:"repeat_purchase_rate"`
	AvgDaysBetweenPurchases *float64             `json:"avg_days_between_purchases"    yaml:"avg_days_between_purchases"`
	PurchaseIntervals       *IntervalPercentiles `json:"purchase_interval_percentiles" yaml:"purchase_interval_percentiles"`
	TopReturnedCategories   []CategoryCount      `json:"top_returned_categories"       yaml:"top_returned_categories"`
	ConversionRate          Percent              `json:"conversion_rate"               yaml:"conversion_rate"`
	ReturnRate              Percent              `json:"return_rate"                   yaml:"return_rate"`
	MonthlyReturnRates      []MonthReturnRate    `json:"monthly_return_rates"          yaml:"monthly_return_rates"`
	PurchasedThenReturned   []string             `json:"purchased_then_returned"       yaml:"purchased_then_returned"`
	Funnel                  FunnelReport         `json:"funnel"                        yaml:"funnel"`
	Segments                map[string]int       `json:"segments"                      yaml:"segments"`
	Cohorts                 []Cohort             `json:"cohorts"                       yaml:"cohorts"`
	Undefined               map[string]string    `json:"undefined,omitempty"           yaml:"undefined,omitempty"`
}

// UndefinedMetrics returns the names of the undefined metrics in lexical
// order.
func (r *Report) UndefinedMetrics() []string {
	out := make([]string, 0, len(r.Undefined))
	for k := range r.Undefined {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// BuildReport evaluates every metric of m. Undefined metrics do not fail the
// report; any other error is returned.
func BuildReport(m *Model) (*Report, error) {
	r := &Report{
		TotalRevenue:          m.TotalRevenue(),
		PurchasingUsers:       m.PurchasingUsers(),
		TopBrands:             m.TopBrandsByPurchases(DefaultTopBrands),
		MonthlyRevenue:        m.MonthlyRevenue(),
		DailyAverageRevenue:   m.DailyAverageRevenueByMonth(),
		WeekdayRevenue:        m.WeekdayRevenue(),
		WeekendSplit:          m.WeekendSplit(),
		WeeklyRevenue:         m.WeeklyRevenue(),
		RepeatPurchaseRate:    round2(m.RepeatPurchaseRate()),
		TopReturnedCategories: m.TopReturnedCategories(DefaultTopReturned),
		ConversionRate:        m.conversion(),
		ReturnRate:            m.returnRate(),
		MonthlyReturnRates:    m.MonthlyReturnRates(),
		PurchasedThenReturned: m.PurchasedThenReturned(),
		Funnel:                m.Funnel(),
		Segments:              SegmentCounts(m.CustomerSegments()),
		Cohorts:               m.MonthlyCohorts(),
		Undefined:             make(map[string]string),
	}

	// record keeps err in Undefined when it only means "no value".
	record := func(err error) error {
		var ue *UndefinedError
		if errors.As(err, &ue) {
			r.Undefined[ue.Metric] = ue.Reason.Error()
			return nil
		}
		return err
	}

	if v, err := m.AverageOrderValue(); err == nil {
		r.AverageOrderValue = &v
	} else if err = record(err); err != nil {
		return nil, err
	}
	if v, err := m.TopCategoryByRevenue(); err == nil {
		r.TopCategory = &v
	} else if err = record(err); err != nil {
		return nil, err
	}
	if v, err := m.HighestAvgPriceProduct(); err == nil {
		r.HighestAvgPriceProduct = &v
	} else if err = record(err); err != nil {
		return nil, err
	}
	if v, err := m.AverageDaysBetweenPurchases(); err == nil {
		v = round2(v)
		r.AvgDaysBetweenPurchases = &v
	} else if err = record(err); err != nil {
		return nil, err
	}
	if v, err := m.PurchaseIntervalPercentiles(); err == nil {
		r.PurchaseIntervals = &v
	} else if err = record(err); err != nil {
		return nil, err
	}
	if _, err := r.ConversionRate.Err(MetricConversion); err != nil {
		_ = record(err)
	}
	if _, err := r.ReturnRate.Err(MetricReturnRate); err != nil {
		_ = record(err)
	}
	return r, nil
}
