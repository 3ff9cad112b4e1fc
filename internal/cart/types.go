// Package cart defines the boundary with the storefront cart service.
// The cart is externally owned: this service reads it, appends tagged lines,
// and zeroes quantities, but the host theme's own scripts can mutate it at
// any time. All reasoning against it is read-then-write with no transactional
// guarantee; a stale read self-corrects on the next pass.
package cart

import (
	"encoding/json"
	"fmt"
	"strings"

	"bundle-proxy/internal/model"
)

// Line is one line item in the live cart snapshot. Read-only to this service.
type Line struct {
	// ID is the variant identifier of the line.
	ID int64 `json:"id"`

	// Key uniquely identifies the line within the cart. Updates are keyed by
	// it, never by positional index, since positions shift across updates.
	Key string `json:"key"`

	Quantity int    `json:"quantity"`
	Title    string `json:"title,omitempty"`

	// FinalPrice is the per-unit price in minor units after cart-level discounts.
	FinalPrice int64 `json:"final_price,omitempty"`

	// Properties is the flat string-keyed bag echoed back by the cart service.
	Properties map[string]string `json:"properties,omitempty"`
}

// Cart is the externally-owned cart's current state.
type Cart struct {
	Token     string `json:"token"`
	ItemCount int    `json:"item_count"`
	Items     []Line `json:"items"`
}

// AddItem is one entry in an ordered multi-item add request.
type AddItem struct {
	ID         int64             `json:"id"`
	Quantity   int               `json:"quantity"`
	Properties map[string]string `json:"properties,omitempty"`

	// Parent links this line to another line's variant id, engaging the cart
	// service's nested-line feature where available. Layered on top of the
	// sweeper, not a replacement: the feature is not guaranteed in all cart
	// contexts.
	Parent string `json:"parent,omitempty"`
}

// Variant is one purchasable option of a product, priced in minor units for
// the viewer's current market.
type Variant struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Price     int64  `json:"price"`
	Available bool   `json:"available"`
}

// Product is the per-product price/availability lookup result.
type Product struct {
	ID       int64     `json:"id"`
	Title    string    `json:"title"`
	Handle   string    `json:"handle"`
	Variants []Variant `json:"variants"`
}

// FirstAvailable returns the first available variant, or nil.
func (p *Product) FirstAvailable() *Variant {
	for i := range p.Variants {
		if p.Variants[i].Available {
			return &p.Variants[i]
		}
	}
	return nil
}

// VariantByID returns the variant with the given id, or nil.
func (p *Product) VariantByID(id int64) *Variant {
	for i := range p.Variants {
		if p.Variants[i].ID == id {
			return &p.Variants[i]
		}
	}
	return nil
}

// SoldOut reports whether the product cannot be purchased at all: no variant
// is available, or the single purchasable variant is itself unavailable.
func (p *Product) SoldOut() bool {
	if len(p.Variants) == 0 {
		return true
	}
	if len(p.Variants) == 1 {
		return !p.Variants[0].Available
	}
	return p.FirstAvailable() == nil
}

// UnmarshalJSON tolerates storefronts that serve variant prices as quoted
// strings instead of integers. Currency conversion apps rewrite the .js
// endpoints this way.
func (v *Variant) UnmarshalJSON(data []byte) error {
	type alias Variant
	aux := struct {
		*alias
		Price json.RawMessage `json:"price"`
	}{alias: (*alias)(v)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	v.Price = parsePrice(aux.Price)
	return nil
}

// parsePrice decodes a price field in minor units. Integer is the native
// form; quoted strings come in minor units ("8900") or, from apps that
// re-render money, major units with a decimal point ("89.00").
func parsePrice(raw json.RawMessage) int64 {
	if len(raw) == 0 {
		return 0
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.Contains(s, ".") {
			return model.ParseCents(s)
		}
		return model.ParseMinorUnits(s)
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0
	}
	return n
}

// UnmarshalJSON tolerates the cart service's loose property typing: the bag
// arrives as string-to-any and non-string values are stringified. Line
// prices get the same flexible decoding as variant prices.
func (l *Line) UnmarshalJSON(data []byte) error {
	type alias Line
	aux := struct {
		*alias
		FinalPrice json.RawMessage `json:"final_price"`
		Properties map[string]any  `json:"properties"`
	}{alias: (*alias)(l)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	l.FinalPrice = parsePrice(aux.FinalPrice)
	if aux.Properties != nil {
		l.Properties = make(map[string]string, len(aux.Properties))
		for k, v := range aux.Properties {
			switch val := v.(type) {
			case string:
				l.Properties[k] = val
			case nil:
				l.Properties[k] = ""
			default:
				l.Properties[k] = fmt.Sprint(val)
			}
		}
	}
	return nil
}
