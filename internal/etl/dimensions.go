package etl

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tbourn/go-clickstream-warehouse/internal/domain"
)

// dayLayout keys the date arena by calendar day.
const dayLayout = "2006-01-02"

// Dimensions holds the five dimension tables of one build together with the
// key arenas used to resolve natural keys. A Dimensions value is read-only
// once built and may be shared between goroutines.
type Dimensions struct {
	Users      []domain.DimUser
	Products   []domain.DimProduct
	Categories []domain.DimCategory
	Sessions   []domain.DimSession
	Dates      []domain.DimDate

	strategy ProductKeyStrategy

	users      *Arena[string]
	products   *Arena[ProductNaturalKey]
	categories *Arena[string]
	sessions   map[string]struct{}
	dates      *Arena[string]

	productRow  map[int64]int
	categoryRow map[int64]int
	dateRow     map[int64]int
}

func newDimensions(strategy ProductKeyStrategy) *Dimensions {
	if strategy == nil {
		strategy = ByIDBrandPrice{}
	}
	return &Dimensions{
		strategy:    strategy,
		users:       NewArena[string](),
		products:    NewArena[ProductNaturalKey](),
		categories:  NewArena[string](),
		sessions:    make(map[string]struct{}),
		dates:       NewArena[string](),
		productRow:  make(map[int64]int),
		categoryRow: make(map[int64]int),
		dateRow:     make(map[int64]int),
	}
}

// BuildDimensions derives the distinct dimension rows observed in events and
// assigns their surrogate keys in first-seen order. Null natural keys (no
// category code, no session, no event time, or a product key component the
// strategy needs) produce no row. Empty input yields empty dimensions.
func BuildDimensions(events []domain.CleanEvent, strategy ProductKeyStrategy) *Dimensions {
	d := newDimensions(strategy)

	for _, ev := range events {
		if key, isNew := d.users.Assign(ev.UserID); isNew {
			d.Users = append(d.Users, domain.DimUser{UserKey: key, UserID: ev.UserID})
		}

		if nk, ok := d.strategy.NaturalKey(ev.ProductID, ev.Brand, ev.Price); ok {
			key, isNew := d.products.Assign(nk)
			switch {
			case isNew:
				d.productRow[key] = len(d.Products)
				d.Products = append(d.Products, domain.DimProduct{
					ProductKey: key,
					ProductID:  ev.ProductID,
					Brand:      ev.Brand,
					Price:      ev.Price,
				})
			case ev.Price.Valid && !d.Products[d.productRow[key]].Price.Valid:
				d.Products[d.productRow[key]].Price = ev.Price
			}
		}

		if ev.CategoryCode != "" {
			if key, isNew := d.categories.Assign(ev.CategoryCode); isNew {
				d.categoryRow[key] = len(d.Categories)
				d.Categories = append(d.Categories, domain.DimCategory{CategoryID: key, CategoryCode: ev.CategoryCode})
			}
		}

		if ev.SessionID != "" {
			if _, seen := d.sessions[ev.SessionID]; !seen {
				d.sessions[ev.SessionID] = struct{}{}
				d.Sessions = append(d.Sessions, domain.DimSession{SessionID: ev.SessionID})
			}
		}

		if ev.EventTime != nil {
			day := DateOf(*ev.EventTime)
			if key, isNew := d.dates.Assign(day.FullDate.Format(dayLayout)); isNew {
				day.DateID = key
				d.dateRow[key] = len(d.Dates)
				d.Dates = append(d.Dates, day)
			}
		}
	}
	return d
}

// IndexDimensions rebuilds the lookup structures over persisted dimension
// tables, keeping their stored surrogate keys. It fails when two rows share a
// natural key under strategy, which happens when a warehouse built with one
// strategy is read back with another.
func IndexDimensions(
	strategy ProductKeyStrategy,
	users []domain.DimUser,
	products []domain.DimProduct,
	categories []domain.DimCategory,
	sessions []domain.DimSession,
	dates []domain.DimDate,
) (*Dimensions, error) {
	d := newDimensions(strategy)
	d.Users, d.Products, d.Categories, d.Sessions, d.Dates = users, products, categories, sessions, dates

	for _, u := range users {
		if err := d.users.Put(u.UserID, u.UserKey); err != nil {
			return nil, fmt.Errorf("dim_users: %w", err)
		}
	}
	for i, p := range products {
		nk, ok := d.strategy.NaturalKey(p.ProductID, p.Brand, p.Price)
		if !ok {
			return nil, fmt.Errorf("dim_products: row %d has an incomplete %s key", p.ProductKey, d.strategy.Name())
		}
		if err := d.products.Put(nk, p.ProductKey); err != nil {
			return nil, fmt.Errorf("dim_products: %w", err)
		}
		d.productRow[p.ProductKey] = i
	}
	for i, c := range categories {
		if err := d.categories.Put(c.CategoryCode, c.CategoryID); err != nil {
			return nil, fmt.Errorf("dim_categories: %w", err)
		}
		d.categoryRow[c.CategoryID] = i
	}
	for _, s := range sessions {
		d.sessions[s.SessionID] = struct{}{}
	}
	for i, dt := range dates {
		if err := d.dates.Put(dt.FullDate.UTC().Format(dayLayout), dt.DateID); err != nil {
			return nil, fmt.Errorf("dim_dates: %w", err)
		}
		d.dateRow[dt.DateID] = i
	}
	return d, nil
}

// Strategy returns the product key strategy the dimensions were built with.
func (d *Dimensions) Strategy() ProductKeyStrategy { return d.strategy }

// UserKey returns the surrogate key of a user.
func (d *Dimensions) UserKey(userID string) (int64, bool) { return d.users.Lookup(userID) }

// ProductKey resolves a product observation to its surrogate key.
func (d *Dimensions) ProductKey(productID, brand string, price decimal.NullDecimal) (int64, bool) {
	nk, ok := d.strategy.NaturalKey(productID, brand, price)
	if !ok {
		return 0, false
	}
	return d.products.Lookup(nk)
}

// CategoryID resolves a category code to its surrogate key.
func (d *Dimensions) CategoryID(code string) (int64, bool) {
	if code == "" {
		return 0, false
	}
	return d.categories.Lookup(code)
}

// HasSession reports whether the session exists in the session dimension.
func (d *Dimensions) HasSession(sessionID string) bool {
	_, ok := d.sessions[sessionID]
	return ok
}

// DateID resolves the calendar day of t to its surrogate key. A nil t never
// resolves.
func (d *Dimensions) DateID(t *time.Time) (int64, bool) {
	if t == nil {
		return 0, false
	}
	return d.dates.Lookup(t.UTC().Format(dayLayout))
}

// Product returns the product row with the given surrogate key.
func (d *Dimensions) Product(key int64) (domain.DimProduct, bool) {
	i, ok := d.productRow[key]
	if !ok {
		return domain.DimProduct{}, false
	}
	return d.Products[i], true
}

// Category returns the category row with the given surrogate key.
func (d *Dimensions) Category(id int64) (domain.DimCategory, bool) {
	i, ok := d.categoryRow[id]
	if !ok {
		return domain.DimCategory{}, false
	}
	return d.Categories[i], true
}

// Date returns the date row with the given surrogate key.
func (d *Dimensions) Date(id int64) (domain.DimDate, bool) {
	i, ok := d.dateRow[id]
	if !ok {
		return domain.DimDate{}, false
	}
	return d.Dates[i], true
}

// DateOf derives the date dimension attributes of t's UTC calendar day. The
// returned row has no DateID. Week is the ISO-8601 week number, so the first
// days of January may belong to week 52 or 53 of the previous year.
func DateOf(t time.Time) domain.DimDate {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	_, week := day.ISOWeek()
	wd := day.Weekday()
	return domain.DimDate{
		FullDate:    day,
		Year:        day.Year(),
		Month:       int(day.Month()),
		Day:         day.Day(),
		Week:        week,
		WeekdayName: wd.String(),
		IsWeekend:   wd == time.Saturday || wd == time.Sunday,
	}
}
