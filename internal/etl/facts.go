package etl

import (
	"sort"

	"github.com/tbourn/go-clickstream-warehouse/internal/domain"
)

// UnresolvedReason names the dimension reference a sale event could not be
// joined on.
type UnresolvedReason string

const (
	UnresolvedUser         UnresolvedReason = "missing_user"
	UnresolvedNullPrice    UnresolvedReason = "null_price"
	UnresolvedNullProduct  UnresolvedReason = "null_product_key"
	UnresolvedProduct      UnresolvedReason = "missing_product"
	UnresolvedNullCategory UnresolvedReason = "null_category"
	UnresolvedCategory     UnresolvedReason = "missing_category"
	UnresolvedNullSession  UnresolvedReason = "null_session"
	UnresolvedSession      UnresolvedReason = "missing_session"
	UnresolvedDate         UnresolvedReason = "missing_date"
)

// Resolution is the outcome of joining one sale event against the
// dimensions: either a fact row (without its sales id) or the first reference
// that failed.
type Resolution struct {
	Fact   domain.FactSale
	Reason UnresolvedReason
}

// Resolved reports whether every dimension reference was found.
func (r Resolution) Resolved() bool { return r.Reason == "" }

// Unresolved identifies a dropped sale event by its input position.
type Unresolved struct {
	Seq       int64            `json:"seq"`
	EventType domain.EventType `json:"event_type"`
	Reason    UnresolvedReason `json:"reason"`
}

// Assembly is the result of fact assembly. Every purchase or return event
// appears exactly once, either as a fact or as an Unresolved entry.
type Assembly struct {
	Facts      []domain.FactSale `json:"-"`
	Unresolved []Unresolved      `json:"unresolved,omitempty"`
	Considered int               `json:"considered"`
}

// UnresolvedByReason counts the dropped events per reason.
func (a Assembly) UnresolvedByReason() map[UnresolvedReason]int {
	out := make(map[UnresolvedReason]int)
	for _, u := range a.Unresolved {
		out[u.Reason]++
	}
	return out
}

// Reasons returns the distinct unresolved reasons in lexical order.
func (a Assembly) Reasons() []UnresolvedReason {
	counts := a.UnresolvedByReason()
	out := make([]UnresolvedReason, 0, len(counts))
	for r := range counts {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Resolve joins a single clean event against dims. References are checked in
// the order user, price, product, category, session, date and the first miss
// wins. A null price is reported ahead of the product key it may belong to.
func Resolve(ev domain.CleanEvent, dims *Dimensions) Resolution {
	if _, ok := dims.UserKey(ev.UserID); !ok {
		return Resolution{Reason: UnresolvedUser}
	}

	if !ev.Price.Valid {
		return Resolution{Reason: UnresolvedNullPrice}
	}

	if _, ok := dims.Strategy().NaturalKey(ev.ProductID, ev.Brand, ev.Price); !ok {
		return Resolution{Reason: UnresolvedNullProduct}
	}
	productKey, ok := dims.ProductKey(ev.ProductID, ev.Brand, ev.Price)
	if !ok {
		return Resolution{Reason: UnresolvedProduct}
	}

	if ev.CategoryCode == "" {
		return Resolution{Reason: UnresolvedNullCategory}
	}
	categoryID, ok := dims.CategoryID(ev.CategoryCode)
	if !ok {
		return Resolution{Reason: UnresolvedCategory}
	}

	if ev.SessionID == "" {
		return Resolution{Reason: UnresolvedNullSession}
	}
	if !dims.HasSession(ev.SessionID) {
		return Resolution{Reason: UnresolvedSession}
	}

	dateID, ok := dims.DateID(ev.EventTime)
	if !ok {
		return Resolution{Reason: UnresolvedDate}
	}

	return Resolution{Fact: domain.FactSale{
		UserID:     ev.UserID,
		ProductKey: productKey,
		CategoryID: categoryID,
		SessionID:  ev.SessionID,
		DateID:     dateID,
		Price:      ev.Price.Decimal,
		EventType:  ev.EventType,
	}}
}

// AssembleFacts builds one fact row per purchase or return event whose
// dimension references all resolve. Events that fail to resolve are not
// errors; they are listed in Assembly.Unresolved with the failing reference.
// Sales ids are assigned from 1 in input order.
func AssembleFacts(events []domain.CleanEvent, dims *Dimensions) Assembly {
	var a Assembly
	var next int64 = 1

	for _, ev := range events {
		if !ev.EventType.IsSale() {
			continue
		}
		a.Considered++

		res := Resolve(ev, dims)
		if !res.Resolved() {
			a.Unresolved = append(a.Unresolved, Unresolved{Seq: ev.Seq, EventType: ev.EventType, Reason: res.Reason})
			continue
		}
		res.Fact.SalesID = next
		next++
		a.Facts = append(a.Facts, res.Fact)
	}
	return a
}
