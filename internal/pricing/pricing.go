// Package pricing recomputes add-on display prices from live product data
// and drives sold-out handling.
package pricing

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"bundle-proxy/internal/cart"
	"bundle-proxy/internal/model"
	"bundle-proxy/internal/selection"
)

// VariantQuote is the per-option annotation for an add-on's variant picker,
// refreshed in lock-step with the parent item's state.
type VariantQuote struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Price     int64  `json:"price"`
	Available bool   `json:"available"`
}

// Quote is the reconciled display state for one add-on item.
type Quote struct {
	AddOnID string `json:"add_on_id"`

	// RawPrice is the live market price before any bundle discount.
	RawPrice int64 `json:"raw_price"`

	// Price is the discounted price per the bundle's rule for this add-on.
	Price int64 `json:"price"`

	SoldOut  bool           `json:"sold_out"`
	Variants []VariantQuote `json:"variants,omitempty"`

	// Stale marks a quote whose price fetch failed; the UI keeps whatever it
	// was showing.
	Stale bool `json:"stale,omitempty"`
}

// DiscountedPrice applies a bundle discount rule to a raw price in minor units.
func DiscountedPrice(raw int64, typ model.DiscountType, value int64) int64 {
	switch typ {
	case model.DiscountPercentage:
		return raw - raw*value/100
	case model.DiscountAmount:
		discounted := raw - value
		if discounted < 0 {
			return 0
		}
		return discounted
	case model.DiscountFixedPrice:
		return value
	case model.DiscountFreeGift:
		return 0
	default:
		return raw
	}
}

// Reconciler fetches authoritative pricing and recomputes discounted prices.
type Reconciler struct {
	svc    cart.Service
	logger *slog.Logger
}

// NewReconciler creates a price reconciler backed by the cart service.
func NewReconciler(svc cart.Service, logger *slog.Logger) *Reconciler {
	return &Reconciler{svc: svc, logger: logger}
}

// Refresh runs one reconciliation pass for the bundle: fetch every distinct
// referenced product concurrently, then derive a Quote per add-on.
//
// Individual fetch failures are isolated: the failing product's add-ons are
// marked stale and siblings are unaffected. A sold-out add-on that is
// currently selected is deselected as a side effect; this is the single
// cross-component write pricing is allowed to make. When the active variant
// of a selected add-on became unavailable, an available alternative is
// auto-selected if one exists.
func (r *Reconciler) Refresh(ctx context.Context, bundle *model.Bundle, tracker *selection.Tracker) []Quote {
	products := r.fetchProducts(ctx, bundle)

	quotes := make([]Quote, 0, len(bundle.AddOns))
	for i := range bundle.AddOns {
		addOn := &bundle.AddOns[i]
		quotes = append(quotes, r.quoteAddOn(addOn, products[addOn.ProductHandle], tracker))
	}
	return quotes
}

// fetchProducts loads every distinct product handle in parallel.
// Failed handles are absent from the result map.
func (r *Reconciler) fetchProducts(ctx context.Context, bundle *model.Bundle) map[string]*cart.Product {
	handles := make(map[string]struct{})
	for i := range bundle.AddOns {
		if h := bundle.AddOns[i].ProductHandle; h != "" {
			handles[h] = struct{}{}
		}
	}

	var mu sync.Mutex
	products := make(map[string]*cart.Product, len(handles))

	g, ctx := errgroup.WithContext(ctx)
	for handle := range handles {
		g.Go(func() error {
			product, err := r.svc.GetProduct(ctx, handle)
			if err != nil {
				// Isolated failure: log and leave this product's UI unchanged.
				r.logger.Warn("price fetch failed",
					slog.String("handle", handle),
					slog.String("error", err.Error()),
				)
				return nil
			}
			mu.Lock()
			products[handle] = product
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	return products
}

// quoteAddOn derives one add-on's quote from its product data and applies
// the sold-out side effects to the tracker.
func (r *Reconciler) quoteAddOn(addOn *model.AddOn, product *cart.Product, tracker *selection.Tracker) Quote {
	quote := Quote{AddOnID: addOn.ID}

	if product == nil {
		quote.Stale = true
		return quote
	}

	quote.SoldOut = product.SoldOut()
	if quote.SoldOut && tracker != nil && tracker.Selected(addOn.ID) {
		tracker.Deselect(addOn.ID)
		r.logger.Info("deselected sold-out add-on", slog.String("add_on_id", addOn.ID))
	}

	// Variant-level annotations refresh together with the item itself.
	quote.Variants = make([]VariantQuote, 0, len(product.Variants))
	for _, v := range product.Variants {
		quote.Variants = append(quote.Variants, VariantQuote{
			ID:        v.ID,
			Title:     v.Title,
			Price:     DiscountedPrice(v.Price, addOn.DiscountType, addOn.DiscountValue),
			Available: v.Available,
		})
	}

	active := r.activeVariant(addOn, product, tracker)
	if active != nil {
		quote.RawPrice = active.Price
		quote.Price = DiscountedPrice(active.Price, addOn.DiscountType, addOn.DiscountValue)
	}
	return quote
}

// activeVariant determines which variant an add-on's price should reflect,
// swapping a selected-but-unavailable variant for an available alternative.
func (r *Reconciler) activeVariant(addOn *model.AddOn, product *cart.Product, tracker *selection.Tracker) *cart.Variant {
	var activeID int64
	if tracker != nil {
		for _, sel := range tracker.Selections() {
			if sel.AddOnID == addOn.ID {
				activeID = sel.VariantID
				break
			}
		}
	}
	if activeID == 0 {
		activeID = addOn.VariantID
	}

	active := product.VariantByID(activeID)
	if active != nil && active.Available {
		return active
	}

	// Active selection unavailable: auto-select an available alternative.
	if alt := product.FirstAvailable(); alt != nil {
		if tracker != nil && tracker.Selected(addOn.ID) {
			tracker.SetVariant(addOn.ID, alt.ID)
		}
		return alt
	}

	// Everything unavailable; fall back to whatever we matched for display.
	if active != nil {
		return active
	}
	if len(product.Variants) > 0 {
		return &product.Variants[0]
	}
	return nil
}
