package selection

import (
	"sort"
	"strconv"
	"strings"

	"bundle-proxy/internal/cart"
)

// VariantSource carries every variant hint the widget could extract from the
// host theme's markup for one add-on item. The markup contract varies wildly
// across themes, so resolution is a prioritized cascade rather than a single
// lookup.
type VariantSource struct {
	// ChosenVariantID is the explicitly selected option, when the item
	// renders a variant picker and the user has picked one.
	ChosenVariantID int64 `json:"chosen_variant_id,omitempty"`

	// StaticVariantID is the per-item identifier stamped on the item itself.
	StaticVariantID int64 `json:"static_variant_id,omitempty"`

	// Product is the live product data; its first available variant is the
	// third fallback.
	Product *cart.Product `json:"-"`

	// AuxVariantID comes from an auxiliary element carrying a variant
	// reference (hidden inputs, sibling forms).
	AuxVariantID int64 `json:"aux_variant_id,omitempty"`

	// Attributes is a generic bag of the item's data attributes, scanned as
	// a last resort for anything that looks like a variant reference.
	Attributes map[string]string `json:"attributes,omitempty"`
}

// variantResolvers is the fixed-order strategy list. The first resolver to
// succeed wins; order is part of the contract and must not be reshuffled.
var variantResolvers = []func(VariantSource) (int64, bool){
	resolveChosen,
	resolveStatic,
	resolveFirstAvailable,
	resolveAuxiliary,
	resolveAttributeScan,
}

// ResolveVariant resolves the purchasable variant for an add-on item.
// Returns false when no strategy succeeds: an add-on with no resolvable
// variant cannot be purchased and must not enter the selection set.
func ResolveVariant(src VariantSource) (int64, bool) {
	for _, resolve := range variantResolvers {
		if id, ok := resolve(src); ok {
			return id, true
		}
	}
	return 0, false
}

func resolveChosen(src VariantSource) (int64, bool) {
	return src.ChosenVariantID, src.ChosenVariantID > 0
}

func resolveStatic(src VariantSource) (int64, bool) {
	return src.StaticVariantID, src.StaticVariantID > 0
}

func resolveFirstAvailable(src VariantSource) (int64, bool) {
	if src.Product == nil {
		return 0, false
	}
	if v := src.Product.FirstAvailable(); v != nil {
		return v.ID, true
	}
	return 0, false
}

func resolveAuxiliary(src VariantSource) (int64, bool) {
	return src.AuxVariantID, src.AuxVariantID > 0
}

// resolveAttributeScan picks the first attribute whose key mentions "variant"
// and whose value parses as a positive integer. Keys are scanned in sorted
// order for determinism.
func resolveAttributeScan(src VariantSource) (int64, bool) {
	for _, key := range sortedKeys(src.Attributes) {
		if !strings.Contains(strings.ToLower(key), "variant") {
			continue
		}
		if id, err := strconv.ParseInt(strings.TrimSpace(src.Attributes[key]), 10, 64); err == nil && id > 0 {
			return id, true
		}
	}
	return 0, false
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
