package analytics

import (
	"github.com/RoaringBitmap/roaring/roaring64"

	"github.com/tbourn/go-clickstream-warehouse/internal/domain"
)

// FunnelReport collapses each user's events to whether they ever viewed,
// carted or purchased, and measures the drop-off between those stages. A
// stage rate counts the users present in both stages over the users of the
// earlier one, so a user who carts without viewing does not lift
// view_to_cart.
type FunnelReport struct {
	Viewers        uint64  `json:"viewers"          yaml:"viewers"`
	Carters        uint64  `json:"carters"          yaml:"carters"`
	Purchasers     uint64  `json:"purchasers"       yaml:"purchasers"`
	ViewToCart     Percent `json:"view_to_cart"     yaml:"view_to_cart"`
	CartToPurchase Percent `json:"cart_to_purchase" yaml:"cart_to_purchase"`
	ViewToPurchase Percent `json:"view_to_purchase" yaml:"view_to_purchase"`
}

// eventCounts counts clean events per type.
func (m *Model) eventCounts() map[domain.EventType]int {
	out := make(map[domain.EventType]int, 4)
	for _, ev := range m.events {
		out[ev.EventType]++
	}
	return out
}

// ConversionRate is purchases per view, as a percentage rounded to two
// decimals, over the clean event stream. It is undefined when there are no
// views.
func (m *Model) ConversionRate() (float64, error) {
	return m.conversion().Err(MetricConversion)
}

func (m *Model) conversion() Percent {
	counts := m.eventCounts()
	return percentOf(counts[domain.EventPurchase], counts[domain.EventView])
}

// Funnel computes the view, cart and purchase funnel over the clean event
// stream. Users are tracked in 64-bit bitmaps by their surrogate key.
func (m *Model) Funnel() FunnelReport {
	viewed, carted, purchased := roaring64.New(), roaring64.New(), roaring64.New()
	for _, ev := range m.events {
		key, ok := m.dims.UserKey(ev.UserID)
		if !ok {
			continue
		}
		switch ev.EventType {
		case domain.EventView:
			viewed.Add(uint64(key))
		case domain.EventCart:
			carted.Add(uint64(key))
		case domain.EventPurchase:
			purchased.Add(uint64(key))
		}
	}

	rate := func(from, to *roaring64.Bitmap) Percent {
		return percentOf(int(from.AndCardinality(to)), int(from.GetCardinality()))
	}
	return FunnelReport{
		Viewers:        viewed.GetCardinality(),
		Carters:        carted.GetCardinality(),
		Purchasers:     purchased.GetCardinality(),
		ViewToCart:     rate(viewed, carted),
		CartToPurchase: rate(carted, purchased),
		ViewToPurchase: rate(viewed, purchased),
	}
}
