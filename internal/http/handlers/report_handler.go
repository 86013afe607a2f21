// Report HTTP handlers.
//
// This file exposes the Metrics Engine over REST. Every endpoint reads the
// model of the latest succeeded ETL run:
//   - GET /reports                               (full bundle)
//   - GET /reports/revenue                       (totals, AOV, top category)
//   - GET /reports/revenue/monthly               (monthly and daily average)
//   - GET /reports/revenue/weekday               (weekday, weekend, ISO week)
//   - GET /reports/brands/top?n=
//   - GET /reports/categories/top-returned?n=
//   - GET /reports/products/top-avg-price?n=
//   - GET /reports/users/spans?page=&page_size=
//   - GET /reports/users/purchased-then-returned
//   - GET /reports/conversion
//   - GET /reports/returns/monthly
//   - GET /reports/funnel
//   - GET /reports/segments
//   - GET /reports/cohorts
//
// Single-metric endpoints answer 422 metric_undefined when the metric has no
// value; composite endpoints embed null for the undefined parts.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/tbourn/go-clickstream-warehouse/internal/analytics"
)

//
// DTOs
//

// RevenueSummary is the body of GET /reports/revenue.
type RevenueSummary struct {
	TotalRevenue      decimal.Decimal            `json:"total_revenue"`
	PurchasingUsers   int                        `json:"purchasing_users"`
	AverageOrderValue *decimal.Decimal           `json:"average_order_value"`
	TopCategory       *analytics.CategoryRevenue `json:"top_category"`
	WeekendSplit      analytics.WeekendSplit     `json:"weekend_split"`
}

// MonthlyRevenue is the body of GET /reports/revenue/monthly.
type MonthlyRevenue struct {
	Monthly      []analytics.MonthRevenue      `json:"monthly"`
	DailyAverage []analytics.MonthDailyAverage `json:"daily_average"`
}

// WeekdayRevenue is the body of GET /reports/revenue/weekday.
type WeekdayRevenue struct {
	Weekdays     []analytics.WeekdayRevenue `json:"weekdays"`
	WeekendSplit analytics.WeekendSplit     `json:"weekend_split"`
	Weekly       []analytics.WeekRevenue    `json:"weekly"`
}

// ConversionRate is the body of GET /reports/conversion.
type ConversionRate struct {
	ConversionRate float64 `json:"conversion_rate"`
}

// MonthlyReturns is the body of GET /reports/returns/monthly.
type MonthlyReturns struct {
	ReturnRate *float64                    `json:"return_rate"`
	Monthly    []analytics.MonthReturnRate `json:"monthly"`
}

// Segments is the body of GET /reports/segments.
type Segments struct {
	Counts    map[string]int              `json:"counts"`
	Customers []analytics.CustomerSegment `json:"customers"`
}

// SpansResponse is the body of GET /reports/users/spans.
type SpansResponse struct {
	RunID      string                   `json:"run_id"`
	Spans      []analytics.PurchaseSpan `json:"spans"`
	Pagination Pagination               `json:"pagination"`
}

//
// Handlers
//

// Report returns every metric in one bundle. Undefined metrics are null and
// listed under "undefined".
func (h *Handlers) Report(c *gin.Context) {
	if _, _, live := h.model(c); !live {
		return
	}
	rep, run, err := h.repSvc.Report(c.Request.Context())
	if err != nil {
		failService(c, err)
		return
	}
	respond(c, run, rep)
}

// Revenue returns total revenue, purchasing users, average order value, the
// top category by revenue and the weekday/weekend split.
func (h *Handlers) Revenue(c *gin.Context) {
	m, run, live := h.model(c)
	if !live {
		return
	}
	out := RevenueSummary{
		TotalRevenue:    m.TotalRevenue(),
		PurchasingUsers: m.PurchasingUsers(),
		WeekendSplit:    m.WeekendSplit(),
	}
	if aov, err := m.AverageOrderValue(); err == nil {
		out.AverageOrderValue = &aov
	} else if !analytics.IsUndefined(err) {
		failService(c, err)
		return
	}
	if top, err := m.TopCategoryByRevenue(); err == nil {
		out.TopCategory = &top
	}
	respond(c, run, out)
}

// MonthlyRevenue returns revenue per month and the daily average per month.
func (h *Handlers) MonthlyRevenue(c *gin.Context) {
	m, run, live := h.model(c)
	if !live {
		return
	}
	respond(c, run, MonthlyRevenue{
		Monthly:      m.MonthlyRevenue(),
		DailyAverage: m.DailyAverageRevenueByMonth(),
	})
}

// WeekdayRevenue returns revenue by weekday, weekend split and ISO week.
func (h *Handlers) WeekdayRevenue(c *gin.Context) {
	m, run, live := h.model(c)
	if !live {
		return
	}
	respond(c, run, WeekdayRevenue{
		Weekdays:     m.WeekdayRevenue(),
		WeekendSplit: m.WeekendSplit(),
		Weekly:       m.WeeklyRevenue(),
	})
}

// TopBrands returns the n brands with the most purchases (default 5).
func (h *Handlers) TopBrands(c *gin.Context) {
	m, run, live := h.model(c)
	if !live {
		return
	}
	respond(c, run, m.TopBrandsByPurchases(topN(c, analytics.DefaultTopBrands)))
}

// TopReturnedCategories returns the n categories with the most returns
// (default 3).
func (h *Handlers) TopReturnedCategories(c *gin.Context) {
	m, run, live := h.model(c)
	if !live {
		return
	}
	respond(c, run, m.TopReturnedCategories(topN(c, analytics.DefaultTopReturned)))
}

// TopAvgPriceProducts ranks products purchased more than five times by
// average price and returns n of them (default 1). An empty ranking is 422.
func (h *Handlers) TopAvgPriceProducts(c *gin.Context) {
	m, run, live := h.model(c)
	if !live {
		return
	}
	if _, err := m.HighestAvgPriceProduct(); err != nil {
		failService(c, err)
		return
	}
	respond(c, run, m.ProductsByAvgPrice(topN(c, 1)))
}

// PurchaseSpans returns a page of first/last purchase days per user.
func (h *Handlers) PurchaseSpans(c *gin.Context) {
	page, pageSize := clampPagination(c)
	_, run, live := h.model(c)
	if !live {
		return
	}
	spans, total, err := h.repSvc.PurchaseSpans(c.Request.Context(), page, pageSize)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, SpansResponse{
		RunID:      run.ID,
		Spans:      spans,
		Pagination: paginate(page, pageSize, total),
	})
}

// PurchasedThenReturned returns the users who returned a product they had
// purchased on an earlier day.
func (h *Handlers) PurchasedThenReturned(c *gin.Context) {
	m, run, live := h.model(c)
	if !live {
		return
	}
	respond(c, run, m.PurchasedThenReturned())
}

// Conversion returns purchases over views as a percentage.
func (h *Handlers) Conversion(c *gin.Context) {
	m, run, live := h.model(c)
	if !live {
		return
	}
	rate, err := m.ConversionRate()
	if err != nil {
		failService(c, err)
		return
	}
	respond(c, run, ConversionRate{ConversionRate: rate})
}

// MonthlyReturns returns the overall return rate and the rate per month.
func (h *Handlers) MonthlyReturns(c *gin.Context) {
	m, run, live := h.model(c)
	if !live {
		return
	}
	out := MonthlyReturns{Monthly: m.MonthlyReturnRates()}
	if rate, err := m.ReturnRate(); err == nil {
		out.ReturnRate = &rate
	}
	respond(c, run, out)
}

// Funnel returns the view, cart and purchase user funnel.
func (h *Handlers) Funnel(c *gin.Context) {
	m, run, live := h.model(c)
	if !live {
		return
	}
	respond(c, run, m.Funnel())
}

// Segments returns the RFM segment of every purchasing user with per
// segment counts.
func (h *Handlers) Segments(c *gin.Context) {
	m, run, live := h.model(c)
	if !live {
		return
	}
	rows := m.CustomerSegments()
	respond(c, run, Segments{Counts: analytics.SegmentCounts(rows), Customers: rows})
}

// Cohorts returns the monthly first-purchase cohorts.
func (h *Handlers) Cohorts(c *gin.Context) {
	m, run, live := h.model(c)
	if !live {
		return
	}
	respond(c, run, m.MonthlyCohorts())
}
