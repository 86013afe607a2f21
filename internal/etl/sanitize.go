// Package etl turns a batch of raw clickstream records into the star schema:
// it sanitizes the records, derives the dimension tables with their surrogate
// keys, assembles the fact table by inner-join resolution, and audits the
// result for referential integrity.
//
// Every stage is a pure function over immutable inputs. Pipeline chains them
// and adds logging, tracing and Prometheus instrumentation.
package etl

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tbourn/go-clickstream-warehouse/internal/domain"
)

// DropReason classifies why the sanitizer excluded a raw record.
type DropReason string

const (
	DropEventType      DropReason = "event_type"
	DropMissingUser    DropReason = "missing_user"
	DropMissingProduct DropReason = "missing_product"
	DropMalformedTime  DropReason = "malformed_time"
	DropMalformedPrice DropReason = "malformed_price"
)

// SanitizeStats summarizes one sanitizer pass.
type SanitizeStats struct {
	Raw     int                `json:"raw"`
	Clean   int                `json:"clean"`
	Dropped map[DropReason]int `json:"dropped"`
}

// DroppedTotal returns the number of excluded records.
func (s SanitizeStats) DroppedTotal() int {
	n := 0
	for _, c := range s.Dropped {
		n += c
	}
	return n
}

// eventTimeLayouts are tried in order. The first matches the source export
// ("2019-10-01 00:00:00 UTC").
var eventTimeLayouts = []string{
	"2006-01-02 15:04:05 MST",
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// Sanitize keeps a raw record iff its event type is one of view, cart,
// purchase or return and both user_id and product_id are present. A null
// event_time or price is carried as nil or invalid; only a non-null value that
// cannot be parsed drops the record as malformed. Identical records are kept;
// deduplication happens when the dimensions are built.
//
// The output preserves input order and carries each record's input position
// in Seq.
func Sanitize(raw []domain.RawEvent) ([]domain.CleanEvent, SanitizeStats) {
	stats := SanitizeStats{Raw: len(raw), Dropped: make(map[DropReason]int)}
	out := make([]domain.CleanEvent, 0, len(raw))

	for i, r := range raw {
		ce, reason, ok := sanitizeOne(r)
		if !ok {
			stats.Dropped[reason]++
			continue
		}
		ce.Seq = int64(i)
		out = append(out, ce)
	}
	stats.Clean = len(out)
	return out, stats
}

func sanitizeOne(r domain.RawEvent) (domain.CleanEvent, DropReason, bool) {
	et := domain.EventType(r.EventType)
	if !et.Valid() {
		return domain.CleanEvent{}, DropEventType, false
	}
	if !present(r.UserID) {
		return domain.CleanEvent{}, DropMissingUser, false
	}
	if !present(r.ProductID) {
		return domain.CleanEvent{}, DropMissingProduct, false
	}
	var ts *time.Time
	if present(r.EventTime) {
		t, ok := parseEventTime(r.EventTime)
		if !ok {
			return domain.CleanEvent{}, DropMalformedTime, false
		}
		ts = &t
	}
	var price decimal.NullDecimal
	if present(r.Price) {
		p, err := decimal.NewFromString(strings.TrimSpace(r.Price))
		if err != nil {
			return domain.CleanEvent{}, DropMalformedPrice, false
		}
		price = decimal.NewNullDecimal(p)
	}

	return domain.CleanEvent{
		EventTime:    ts,
		EventType:    et,
		ProductID:    r.ProductID,
		CategoryID:   nullable(r.CategoryID),
		CategoryCode: nullable(r.CategoryCode),
		Brand:        nullable(r.Brand),
		Price:        price,
		UserID:       r.UserID,
		SessionID:    nullable(r.UserSession),
	}, "", true
}

// present reports whether a raw text value carries data. Besides the empty
// string, the usual textual spellings of SQL NULL count as absent.
func present(v string) bool {
	switch v {
	case "", "NULL", "null", `\N`:
		return false
	}
	return strings.TrimSpace(v) != ""
}

func nullable(v string) string {
	if !present(v) {
		return ""
	}
	return v
}

func parseEventTime(v string) (time.Time, bool) {
	if !present(v) {
		return time.Time{}, false
	}
	for _, layout := range eventTimeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
