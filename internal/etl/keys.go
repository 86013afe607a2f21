package etl

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Arena maps the natural keys of one dimension to surrogate keys. Keys are
// handed out from 1 upwards in first-seen order, so 0 never identifies a row.
// An Arena belongs to a single build and is not safe for concurrent writes.
type Arena[K comparable] struct {
	ids   map[K]int64
	order []K
	next  int64
}

// NewArena returns an empty arena.
func NewArena[K comparable]() *Arena[K] {
	return &Arena[K]{ids: make(map[K]int64), next: 1}
}

// Assign returns the surrogate key of k, allocating one when k is new.
// The boolean reports whether k was seen for the first time.
func (a *Arena[K]) Assign(k K) (int64, bool) {
	if id, ok := a.ids[k]; ok {
		return id, false
	}
	id := a.next
	a.next++
	a.ids[k] = id
	a.order = append(a.order, k)
	return id, true
}

// Put registers k under an existing surrogate key, as when re-indexing a
// persisted dimension. It fails if k or id is already taken.
func (a *Arena[K]) Put(k K, id int64) error {
	if id <= 0 {
		return fmt.Errorf("surrogate key must be positive, got %d", id)
	}
	if prev, ok := a.ids[k]; ok {
		return fmt.Errorf("natural key %v already bound to %d", k, prev)
	}
	a.ids[k] = id
	a.order = append(a.order, k)
	if id >= a.next {
		a.next = id + 1
	}
	return nil
}

// Lookup returns the surrogate key of k.
func (a *Arena[K]) Lookup(k K) (int64, bool) {
	id, ok := a.ids[k]
	return id, ok
}

// Len returns the number of distinct natural keys.
func (a *Arena[K]) Len() int { return len(a.order) }

// ProductNaturalKey is the identity a ProductKeyStrategy selects for a
// product observation. Unused components are left empty.
type ProductNaturalKey struct {
	ProductID string
	Brand     string
	Price     string
}

// ProductKeyStrategy decides which attributes make two product observations
// the same dimension row. The boolean is false when a required component is
// null, in which case no dimension row can match (inner-join semantics).
type ProductKeyStrategy interface {
	Name() string
	NaturalKey(productID, brand string, price decimal.NullDecimal) (ProductNaturalKey, bool)
}

// ByIDBrandPrice keys products by (product_id, brand, price): a product seen
// at two prices yields two dimension rows. This is the historical model.
type ByIDBrandPrice struct{}

// Name implements ProductKeyStrategy.
func (ByIDBrandPrice) Name() string { return "id_brand_price" }

// NaturalKey implements ProductKeyStrategy.
func (ByIDBrandPrice) NaturalKey(productID, brand string, price decimal.NullDecimal) (ProductNaturalKey, bool) {
	if productID == "" || brand == "" || !price.Valid {
		return ProductNaturalKey{}, false
	}
	return ProductNaturalKey{ProductID: productID, Brand: brand, Price: price.Decimal.String()}, true
}

// ByID keys products by product_id alone. The dimension row keeps the brand
// of the first observation and the first non-null price.
type ByID struct{}

// Name implements ProductKeyStrategy.
func (ByID) Name() string { return "id" }

// NaturalKey implements ProductKeyStrategy.
func (ByID) NaturalKey(productID, _ string, _ decimal.NullDecimal) (ProductNaturalKey, bool) {
	if productID == "" {
		return ProductNaturalKey{}, false
	}
	return ProductNaturalKey{ProductID: productID}, true
}

// ParseProductKeyStrategy resolves a strategy by name. An empty name selects
// ByIDBrandPrice.
func ParseProductKeyStrategy(name string) (ProductKeyStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "id_brand_price":
		return ByIDBrandPrice{}, nil
	case "id":
		return ByID{}, nil
	}
	return nil, fmt.Errorf("unknown product key strategy %q", name)
}
