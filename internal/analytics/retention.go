package analytics

import (
	"sort"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/shopspring/decimal"
)

// maxIntervalDays bounds the interval histogram; longer gaps are clamped.
const maxIntervalDays = 36500

// Customer segments produced by CustomerSegments.
const (
	SegmentChampions = "Champions"
	SegmentLoyal     = "Loyal"
	SegmentAtRisk    = "At Risk"
	SegmentLost      = "Lost"
)

// Segments lists the customer segments from best to worst.
var Segments = []string{SegmentChampions, SegmentLoyal, SegmentAtRisk, SegmentLost}

// PurchaseSpan is the first and last purchase day of one user.
type PurchaseSpan struct {
	UserID        string    `json:"user_id"        yaml:"user_id"`
	FirstPurchase time.Time `json:"first_purchase" yaml:"first_purchase"`
	LastPurchase  time.Time `json:"last_purchase"  yaml:"last_purchase"`
	Purchases     int       `json:"purchases"      yaml:"purchases"`
}

// IntervalPercentiles summarizes the pooled gaps, in days, between
// consecutive purchases of the same user.
type IntervalPercentiles struct {
	Count int64   `json:"count" yaml:"count"`
	Mean  float64 `json:"mean"  yaml:"mean"`
	P50   int64   `json:"p50"   yaml:"p50"`
	P90   int64   `json:"p90"   yaml:"p90"`
	P99   int64   `json:"p99"   yaml:"p99"`
	Max   int64   `json:"max"   yaml:"max"`
}

// CustomerSegment is the RFM scoring of one purchasing user.
type CustomerSegment struct {
	UserID         string          `json:"user_id"         yaml:"user_id"`
	RecencyDays    int             `json:"recency_days"    yaml:"recency_days"`
	Frequency      int             `json:"frequency"       yaml:"frequency"`
	Monetary       decimal.Decimal `json:"monetary"        yaml:"monetary"`
	RecencyScore   int             `json:"recency_score"   yaml:"recency_score"`
	FrequencyScore int             `json:"frequency_score" yaml:"frequency_score"`
	MonetaryScore  int             `json:"monetary_score"  yaml:"monetary_score"`
	Score          int             `json:"score"           yaml:"score"`
	Segment        string          `json:"segment"         yaml:"segment"`
}

// Cohort groups users by the month of their first purchase.
type Cohort struct {
	Month             `yaml:",inline"`
	NewCustomers      int             `json:"new_customers"       yaml:"new_customers"`
	FirstMonthRevenue decimal.Decimal `json:"first_month_revenue" yaml:"first_month_revenue"`
	RetainedNextMonth int             `json:"retained_next_month" yaml:"retained_next_month"`
	RetentionRate     float64         `json:"retention_rate"      yaml:"retention_rate"`
	RunningCustomers  int             `json:"running_customers"   yaml:"running_customers"`
}

// purchaseDays returns, per user, the purchase days of every purchase fact in
// chronological order. Repeated purchases on one day are all kept.
func (m *Model) purchaseDays() map[string][]time.Time {
	by := make(map[string][]time.Time)
	for _, s := range m.purchases {
		if !s.hasDate {
			continue
		}
		by[s.UserID] = append(by[s.UserID], s.date.FullDate)
	}
	for _, days := range by {
		sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	}
	return by
}

// RepeatPurchaseRate is the share of purchasing users with more than one
// purchase, between 0 and 1. It is 0 when nobody purchased.
func (m *Model) RepeatPurchaseRate() float64 {
	counts := make(map[string]int)
	for _, s := range m.purchases {
		counts[s.UserID]++
	}
	if len(counts) == 0 {
		return 0
	}
	repeat := 0
	for _, c := range counts {
		if c > 1 {
			repeat++
		}
	}
	return float64(repeat) / float64(len(counts))
}

// purchaseIntervals pools the day differences between consecutive purchases
// of every user. Users with fewer than two purchases contribute nothing.
func (m *Model) purchaseIntervals() []int64 {
	var out []int64
	for _, days := range m.purchaseDays() {
		for i := 1; i < len(days); i++ {
			out = append(out, int64(days[i].Sub(days[i-1]).Hours()/24))
		}
	}
	return out
}

// AverageDaysBetweenPurchases averages the pooled intervals of all users, so
// a user with many purchases weighs more than one with two. It is undefined
// when no user purchased twice.
func (m *Model) AverageDaysBetweenPurchases() (float64, error) {
	diffs := m.purchaseIntervals()
	if len(diffs) == 0 {
		return 0, undefined(MetricAvgDaysBetween, ErrDivisionByZero)
	}
	var sum int64
	for _, d := range diffs {
		sum += d
	}
	return float64(sum) / float64(len(diffs)), nil
}

// PurchaseIntervalPercentiles describes the distribution of the pooled
// purchase intervals. It is undefined when no user purchased twice.
func (m *Model) PurchaseIntervalPercentiles() (IntervalPercentiles, error) {
	diffs := m.purchaseIntervals()
	if len(diffs) == 0 {
		return IntervalPercentiles{}, undefined(MetricIntervalPercentiles, ErrNoData)
	}

	h := hdrhistogram.New(1, maxIntervalDays, 3)
	for _, d := range diffs {
		if d > maxIntervalDays {
			d = maxIntervalDays
		}
		if err := h.RecordValue(d); err != nil {
			return IntervalPercentiles{}, err
		}
	}
	return IntervalPercentiles{
		Count: h.TotalCount(),
		Mean:  round2(h.Mean()),
		P50:   h.ValueAtQuantile(50),
		P90:   h.ValueAtQuantile(90),
		P99:   h.ValueAtQuantile(99),
		Max:   h.Max(),
	}, nil
}

// PurchaseSpans returns the first and last purchase day of every purchasing
// user, ordered by user id.
func (m *Model) PurchaseSpans() []PurchaseSpan {
	by := m.purchaseDays()
	out := make([]PurchaseSpan, 0, len(by))
	for user, days := range by {
		out = append(out, PurchaseSpan{
			UserID:        user,
			FirstPurchase: days[0],
			LastPurchase:  days[len(days)-1],
			Purchases:     len(days),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// CustomerSegments scores every purchasing user on recency (days from the last
// purchase to the latest day in the date dimension), frequency (purchase
// count) and monetary value (purchase revenue quintile), each from 1 to 5,
// and segments users by the sum. Rows are ordered by score, then monetary
// value, both descending, then user id.
func (m *Model) CustomerSegments() []CustomerSegment {
	type acc struct {
		last     time.Time
		count    int
		monetary decimal.Decimal
	}
	by := make(map[string]*acc)
	for _, s := range m.purchases {
		a, ok := by[s.UserID]
		if !ok {
			a = &acc{}
			by[s.UserID] = a
		}
		a.count++
		a.monetary = a.monetary.Add(s.Price)
		if s.hasDate && s.date.FullDate.After(a.last) {
			a.last = s.date.FullDate
		}
	}

	out := make([]CustomerSegment, 0, len(by))
	for user, a := range by {
		recency := 0
		if !a.last.IsZero() {
			recency = int(m.latest.Sub(a.last).Hours() / 24)
		}
		out = append(out, CustomerSegment{
			UserID:         user,
			RecencyDays:    recency,
			Frequency:      a.count,
			Monetary:       a.monetary,
			RecencyScore:   recencyScore(recency),
			FrequencyScore: frequencyScore(a.count),
		})
	}

	// Monetary quintiles: ascending order split into five near-equal buckets,
	// the larger buckets first.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Monetary.Equal(out[j].Monetary) {
			return out[i].Monetary.LessThan(out[j].Monetary)
		}
		return out[i].UserID < out[j].UserID
	})
	for i, b := range ntile(len(out), 5) {
		out[i].MonetaryScore = b
	}

	for i := range out {
		c := &out[i]
		c.Score = c.RecencyScore + c.FrequencyScore + c.MonetaryScore
		c.Segment = segmentOf(c.Score)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if !out[i].Monetary.Equal(out[j].Monetary) {
			return out[i].Monetary.GreaterThan(out[j].Monetary)
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// SegmentCounts returns the number of users per segment, with every segment
// present.
func SegmentCounts(rows []CustomerSegment) map[string]int {
	out := make(map[string]int, len(Segments))
	for _, s := range Segments {
		out[s] = 0
	}
	for _, r := range rows {
		out[r.Segment]++
	}
	return out
}

func recencyScore(days int) int {
	switch {
	case days <= 30:
		return 5
	case days <= 90:
		return 4
	case days <= 180:
		return 3
	case days <= 365:
		return 2
	}
	return 1
}

func frequencyScore(n int) int {
	switch {
	case n >= 20:
		return 5
	case n >= 11:
		return 4
	case n >= 6:
		return 3
	case n >= 3:
		return 2
	}
	return 1
}

func segmentOf(score int) string {
	switch {
	case score >= 12:
		return SegmentChampions
	case score >= 9:
		return SegmentLoyal
	case score >= 6:
		return SegmentAtRisk
	}
	return SegmentLost
}

// ntile assigns n ordered rows to k buckets numbered from 1. Bucket sizes
// differ by at most one and the first n%k buckets get the extra row.
func ntile(n, k int) []int {
	out := make([]int, n)
	size, extra := n/k, n%k
	i := 0
	for b := 1; b <= k && i < n; b++ {
		cnt := size
		if b <= extra {
			cnt++
		}
		for j := 0; j < cnt; j++ {
			out[i] = b
			i++
		}
	}
	return out
}

// MonthlyCohorts groups purchasing users by the month of their first
// purchase and reports, per cohort, its size, the cohort's revenue in that
// first month, and how many of its users purchased again in the following
// month. Cohorts are in chronological order.
func (m *Model) MonthlyCohorts() []Cohort {
	first := make(map[string]Month)
	for user, days := range m.purchaseDays() {
		d := days[0]
		first[user] = Month{Year: d.Year(), Month: int(d.Month())}
	}

	cohorts := make(map[Month]*Cohort)
	for _, mo := range first {
		c, ok := cohorts[mo]
		if !ok {
			c = &Cohort{Month: mo, FirstMonthRevenue: decimal.Zero}
			cohorts[mo] = c
		}
		c.NewCustomers++
	}

	retained := make(map[string]bool)
	for _, s := range m.purchases {
		mo, ok := first[s.UserID]
		if !ok || !s.hasDate {
			continue
		}
		switch s.month() {
		case mo:
			cohorts[mo].FirstMonthRevenue = cohorts[mo].FirstMonthRevenue.Add(s.Price)
		case mo.Next():
			if !retained[s.UserID] {
				retained[s.UserID] = true
				cohorts[mo].RetainedNextMonth++
			}
		}
	}

	out := make([]Cohort, 0, len(cohorts))
	running := 0
	for _, mo := range sortedMonths(cohorts) {
		c := *cohorts[mo]
		running += c.NewCustomers
		c.RunningCustomers = running
		c.RetentionRate = percentOf(c.RetainedNextMonth, c.NewCustomers).Value
		out = append(out, c)
	}
	return out
}
