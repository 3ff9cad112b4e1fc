// Package selection tracks which add-ons a visitor has chosen within one
// widget session, and resolves the purchasable variant for each.
package selection

import (
	"log/slog"
	"sync"

	"bundle-proxy/internal/model"
)

// Selection is one currently-chosen add-on with its resolved variant and
// quantity. One Selection exists per selected add-on; removed on deselect.
type Selection struct {
	AddOnID   string `json:"add_on_id"`
	VariantID int64  `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

// Tracker holds the in-memory selection state for one widget session.
// It is an owned instance passed explicitly to everything that needs it;
// nothing here is package-global, so sessions can never bleed into each other.
type Tracker struct {
	mu     sync.Mutex
	bundle *model.Bundle
	logger *slog.Logger

	order []string              // insertion order of add-on ids
	byID  map[string]*Selection // keyed by add-on id
}

// NewTracker creates a tracker for one session of the given bundle.
// Free-gift add-ons are auto-selected immediately: their presence alone is
// enough to arm cart interception, with no user action required.
func NewTracker(bundle *model.Bundle, gifts map[string]VariantSource, logger *slog.Logger) *Tracker {
	t := &Tracker{
		bundle: bundle,
		logger: logger,
		byID:   make(map[string]*Selection),
	}

	for i := range bundle.AddOns {
		addOn := &bundle.AddOns[i]
		if !addOn.FreeGift() {
			continue
		}
		src := gifts[addOn.ID]
		if src.StaticVariantID == 0 {
			src.StaticVariantID = addOn.VariantID
		}
		if !t.Select(addOn.ID, src, 1) {
			logger.Warn("free gift has no resolvable variant, skipping auto-select",
				slog.String("bundle_id", bundle.ID),
				slog.String("add_on_id", addOn.ID),
			)
		}
	}
	return t
}

// Bundle returns the bundle this tracker belongs to.
func (t *Tracker) Bundle() *model.Bundle {
	return t.bundle
}

// Select records an add-on as chosen. Radio semantics are enforced eagerly:
// selecting a member of an exclusive group clears every other selection in
// that group at toggle time, not lazily.
//
// Returns false when no variant could be resolved; the add-on is then left
// out of the selection set and a diagnostic is logged. Not an error: the
// visitor simply cannot purchase what cannot be resolved.
func (t *Tracker) Select(addOnID string, src VariantSource, quantity int) bool {
	addOn := t.bundle.AddOnByID(addOnID)
	if addOn == nil {
		t.logger.Warn("select for unknown add-on", slog.String("add_on_id", addOnID))
		return false
	}

	if src.StaticVariantID == 0 {
		src.StaticVariantID = addOn.VariantID
	}
	variantID, ok := ResolveVariant(src)
	if !ok {
		t.logger.Warn("no resolvable variant for add-on",
			slog.String("bundle_id", t.bundle.ID),
			slog.String("add_on_id", addOnID),
		)
		return false
	}

	if quantity < 1 {
		quantity = 1
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if addOn.ExclusiveGroup != "" {
		t.clearExclusiveGroupLocked(addOn.ExclusiveGroup, addOnID)
	}

	if existing, ok := t.byID[addOnID]; ok {
		existing.VariantID = variantID
		existing.Quantity = quantity
		return true
	}

	t.byID[addOnID] = &Selection{AddOnID: addOnID, VariantID: variantID, Quantity: quantity}
	t.order = append(t.order, addOnID)
	return true
}

// Deselect removes an add-on from the selection set. Unknown ids are a no-op.
func (t *Tracker) Deselect(addOnID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(addOnID)
}

// SetVariant updates the variant of an existing selection. It never creates
// or removes a selection: variant pickers only refine what is already chosen.
func (t *Tracker) SetVariant(addOnID string, variantID int64) {
	if variantID <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if sel, ok := t.byID[addOnID]; ok {
		sel.VariantID = variantID
	}
}

// SetQuantity updates the quantity of an existing selection, clamped to a
// minimum of 1. Membership is unaffected.
func (t *Tracker) SetQuantity(addOnID string, quantity int) {
	if quantity < 1 {
		quantity = 1
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if sel, ok := t.byID[addOnID]; ok {
		sel.Quantity = quantity
	}
}

// Selections returns the current selection set in insertion order.
func (t *Tracker) Selections() []Selection {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Selection, 0, len(t.order))
	for _, id := range t.order {
		if sel, ok := t.byID[id]; ok {
			out = append(out, *sel)
		}
	}
	return out
}

// Selected reports whether the add-on is currently selected.
func (t *Tracker) Selected(addOnID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.byID[addOnID]
	return ok
}

// Armed reports whether cart interception should engage for this session:
// at least one active selection, or a free-gift add-on configured on the
// bundle. Free gifts arm interception even when the visitor deselected
// everything else.
func (t *Tracker) Armed() bool {
	t.mu.Lock()
	n := len(t.byID)
	t.mu.Unlock()
	return n > 0 || t.bundle.HasFreeGift()
}

// clearExclusiveGroupLocked removes every selection in the named group except
// keep. Caller holds t.mu.
func (t *Tracker) clearExclusiveGroupLocked(group, keep string) {
	for i := range t.bundle.AddOns {
		addOn := &t.bundle.AddOns[i]
		if addOn.ExclusiveGroup == group && addOn.ID != keep {
			t.removeLocked(addOn.ID)
		}
	}
}

// removeLocked deletes a selection and its order entry. Caller holds t.mu.
func (t *Tracker) removeLocked(addOnID string) {
	if _, ok := t.byID[addOnID]; !ok {
		return
	}
	delete(t.byID, addOnID)
	for i, id := range t.order {
		if id == addOnID {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}
