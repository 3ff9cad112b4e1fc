// Package model defines data structures for bundle configuration and the
// storefront cart boundary.
package model

// DiscountType selects how an add-on's displayed price is derived from the
// product's live price.
type DiscountType string

const (
	// DiscountNone passes the raw price through unchanged.
	DiscountNone DiscountType = "none"

	// DiscountPercentage subtracts a percentage of the raw price.
	// DiscountValue is the percentage (e.g. 20 for 20% off).
	DiscountPercentage DiscountType = "percentage"

	// DiscountAmount subtracts a fixed amount in minor units, floored at zero.
	DiscountAmount DiscountType = "amount"

	// DiscountFixedPrice overrides the price with DiscountValue (minor units),
	// regardless of the raw price.
	DiscountFixedPrice DiscountType = "fixed_price"

	// DiscountFreeGift forces the price to zero. Free-gift add-ons are
	// auto-selected when the widget session starts.
	DiscountFreeGift DiscountType = "free_gift"
)

// Valid reports whether t is a known discount type.
func (t DiscountType) Valid() bool {
	switch t {
	case DiscountNone, DiscountPercentage, DiscountAmount, DiscountFixedPrice, DiscountFreeGift:
		return true
	}
	return false
}

// AddOn is one secondary product offered alongside a bundle's main product.
type AddOn struct {
	// ID identifies the add-on within its bundle. Unique per bundle.
	ID string `json:"id"`

	// ProductHandle is the storefront handle used for price/availability lookup.
	ProductHandle string `json:"product_handle"`

	// VariantID is the statically configured variant, when the merchant pinned
	// one. Zero means the variant is resolved per session from live data.
	VariantID int64 `json:"variant_id,omitempty"`

	// ExclusiveGroup names a single-select group. Add-ons sharing a non-empty
	// group are mutually exclusive (radio semantics).
	ExclusiveGroup string `json:"exclusive_group,omitempty"`

	DiscountType  DiscountType `json:"discount_type"`
	DiscountValue int64        `json:"discount_value,omitempty"`
}

// FreeGift reports whether the add-on is a free gift.
func (a *AddOn) FreeGift() bool {
	return a.DiscountType == DiscountFreeGift
}

// Bundle is a merchant-configured set of add-ons attached to a main product.
// The proxy receives bundles fully resolved from the admin-side data layer;
// nothing here is persisted by this service.
type Bundle struct {
	ID            string  `json:"id"`
	MainProductID int64   `json:"main_product_id"`
	AddOns        []AddOn `json:"add_ons"`

	// CascadeDelete controls whether add-on lines must be removed when their
	// main line disappears from the cart. Echoed onto every add-on line at
	// add time so the sweeper's decision survives later config changes.
	CascadeDelete bool `json:"cascade_delete"`
}

// AddOnByID returns the add-on with the given id, or nil.
func (b *Bundle) AddOnByID(id string) *AddOn {
	for i := range b.AddOns {
		if b.AddOns[i].ID == id {
			return &b.AddOns[i]
		}
	}
	return nil
}

// HasFreeGift reports whether any add-on in the bundle is a free gift.
func (b *Bundle) HasFreeGift() bool {
	for i := range b.AddOns {
		if b.AddOns[i].FreeGift() {
			return true
		}
	}
	return false
}
