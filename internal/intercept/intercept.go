// Package intercept rewrites host cart-add requests into a single combined
// add carrying the main item plus every selected add-on, tagged so the
// sweeper can reconstruct bundle groups from the cart alone.
package intercept

import (
	"context"
	"log/slog"
	"strconv"

	"bundle-proxy/internal/cart"
	"bundle-proxy/internal/model"
	"bundle-proxy/internal/notify"
	"bundle-proxy/internal/selection"
)

// Result describes one handled interception.
type Result struct {
	Cart    *cart.Cart
	GroupID string

	// AddOns and Gifts count the extra lines added alongside the main item,
	// split for the consolidated notification.
	AddOns int
	Gifts  int
}

// Interceptor performs combined cart adds on behalf of widget sessions.
type Interceptor struct {
	svc    cart.Service
	hub    *notify.Hub
	logger *slog.Logger
}

// New creates an interceptor.
func New(svc cart.Service, hub *notify.Hub, logger *slog.Logger) *Interceptor {
	return &Interceptor{svc: svc, hub: hub, logger: logger}
}

// BuildItems assembles the ordered combined add: the main item first with a
// main-role tag, then one entry per selection with an addon-role tag, all
// sharing one freshly generated group id. When the bundle cascades, add-on
// entries also carry a parent link to the main variant so the cart service's
// nested-line feature can remove them natively where it is available.
func BuildItems(bundle *model.Bundle, main MainItem, selections []selection.Selection) ([]cart.AddItem, string) {
	groupID := model.NewGroupID()

	mainProps := model.MainProperties(groupID, bundle.ID)
	for k, v := range main.Properties {
		if _, reserved := mainProps[k]; !reserved {
			mainProps[k] = v
		}
	}

	items := make([]cart.AddItem, 0, 1+len(selections))
	items = append(items, cart.AddItem{
		ID:         main.VariantID,
		Quantity:   main.Quantity,
		Properties: mainProps,
	})

	for _, sel := range selections {
		item := cart.AddItem{
			ID:         sel.VariantID,
			Quantity:   sel.Quantity,
			Properties: model.AddonProperties(groupID, bundle.ID, bundle.MainProductID, bundle.CascadeDelete),
		}
		if bundle.CascadeDelete {
			item.Parent = strconv.FormatInt(main.VariantID, 10)
		}
		items = append(items, item)
	}
	return items, groupID
}

// Intercept attempts to replace a host cart-add with the combined add.
//
// Returns handled=false when the request must pass through unmodified: no
// armed selection state, an unparseable body, or the session's own add
// already in flight (the re-entrancy guard, so the corrective call can never
// recurse into itself).
//
// A combined add that fails upstream also returns handled=false, after
// surfacing an error notification; the caller then forwards the original
// request so native add-to-cart keeps working.
func (i *Interceptor) Intercept(ctx context.Context, sess *selection.Session, contentType string, body []byte) (*Result, bool) {
	if sess == nil {
		return nil, false
	}
	if sess.Adding() {
		i.logger.Debug("combined add in flight, passing through", "session_id", sess.ID)
		return nil, false
	}
	if !sess.Tracker.Armed() {
		return nil, false
	}

	main, ok := ParseAddPayload(contentType, body)
	if !ok {
		i.logger.Warn("unrecognized cart-add body, passing through", "session_id", sess.ID)
		return nil, false
	}

	selections := sess.Tracker.Selections()
	if len(selections) == 0 {
		return nil, false
	}

	if !sess.BeginAdd() {
		return nil, false
	}
	defer sess.EndAdd()

	items, groupID := BuildItems(sess.Tracker.Bundle(), main, selections)

	snapshot, err := i.svc.AddItems(ctx, items)
	if err != nil {
		i.logger.Error("combined cart add failed",
			"session_id", sess.ID,
			"group_id", groupID,
			"items", len(items),
			"error", err,
		)
		i.hub.Publish(notify.ErrorNotice("Could not add bundle items to cart"))
		return nil, false
	}

	res := &Result{Cart: snapshot, GroupID: groupID}
	bundle := sess.Tracker.Bundle()
	for _, sel := range selections {
		if addOn := bundle.AddOnByID(sel.AddOnID); addOn != nil && addOn.FreeGift() {
			res.Gifts++
		} else {
			res.AddOns++
		}
	}

	i.logger.Info("combined cart add",
		"session_id", sess.ID,
		"group_id", groupID,
		"add_ons", res.AddOns,
		"gifts", res.Gifts,
	)
	i.hub.Publish(notify.AddedNotice(res.AddOns, res.Gifts))
	i.hub.Publish(notify.CartRefresh())
	return res, true
}
