package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"bundle-proxy/internal/cart"
	"bundle-proxy/internal/model"
	"bundle-proxy/internal/pricing"
	"bundle-proxy/internal/selection"
	"bundle-proxy/internal/widget"
)

// offerResponse is the widget's view of one bundle: live quotes plus the
// session's current selection state.
type offerResponse struct {
	BundleID   string                `json:"bundle_id"`
	Quotes     []pricing.Quote       `json:"quotes"`
	Selections []selection.Selection `json:"selections"`
	Armed      bool                  `json:"armed"`
}

// handleOffer initializes or refreshes a widget session for a bundle and
// returns reconciled pricing.
// GET /bundle/offer?bundle_id=... or ?product_id=...
func (h *Handler) handleOffer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	client := widget.FromContext(ctx)
	if client == nil {
		h.writeError(w, model.NewValidationError(widget.Header, "widget header required"))
		return
	}

	bundle, err := h.requestedBundle(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	sess := h.store.GetOrCreate(client.SessionID, bundle, nil)

	h.logger.InfoContext(ctx, "refreshing bundle offer",
		slog.String("session_id", sess.ID),
		slog.String("bundle_id", bundle.ID),
	)

	quotes := h.pricer.Refresh(cart.WithSessionCookies(ctx, r.Header.Get("Cookie")), bundle, sess.Tracker)

	h.writeJSON(w, http.StatusOK, offerResponse{
		BundleID:   bundle.ID,
		Quotes:     quotes,
		Selections: sess.Tracker.Selections(),
		Armed:      sess.Tracker.Armed(),
	})
}

// selectionRequest is one widget selection event.
type selectionRequest struct {
	// Action is one of "select", "deselect", "set_variant", "set_quantity".
	Action  string `json:"action"`
	AddOnID string `json:"add_on_id"`

	// Source carries the variant hints for select actions.
	Source selection.VariantSource `json:"source"`

	VariantID int64 `json:"variant_id,omitempty"`
	Quantity  int   `json:"quantity,omitempty"`
}

type selectionResponse struct {
	Selections []selection.Selection `json:"selections"`
	Armed      bool                  `json:"armed"`

	// Selected reports whether a select action actually took: false means no
	// variant resolved and the add-on was left out.
	Selected bool `json:"selected,omitempty"`
}

// handleUpdateSelection applies one selection event to the session.
// POST /bundle/selections
func (h *Handler) handleUpdateSelection(w http.ResponseWriter, r *http.Request) {
	client := widget.FromContext(r.Context())
	if client == nil {
		h.writeError(w, model.NewValidationError(widget.Header, "widget header required"))
		return
	}

	sess := h.store.Get(client.SessionID)
	if sess == nil {
		h.writeError(w, model.NewNotFoundError("session"))
		return
	}

	var req selectionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.AddOnID == "" {
		h.writeError(w, model.NewValidationError("add_on_id", "add_on_id is required"))
		return
	}

	resp := selectionResponse{}
	switch req.Action {
	case "select":
		ctx := cart.WithSessionCookies(r.Context(), r.Header.Get("Cookie"))
		src := h.populateProduct(ctx, sess.Tracker, req.AddOnID, req.Source)
		resp.Selected = sess.Tracker.Select(req.AddOnID, src, req.Quantity)
	case "deselect":
		sess.Tracker.Deselect(req.AddOnID)
	case "set_variant":
		sess.Tracker.SetVariant(req.AddOnID, req.VariantID)
	case "set_quantity":
		sess.Tracker.SetQuantity(req.AddOnID, req.Quantity)
	default:
		h.writeError(w, model.NewValidationError("action", fmt.Sprintf("unknown action %q", req.Action)))
		return
	}

	resp.Selections = sess.Tracker.Selections()
	resp.Armed = sess.Tracker.Armed()
	h.writeJSON(w, http.StatusOK, resp)
}

// handleGetSelections returns the session's current selection state.
// GET /bundle/selections
func (h *Handler) handleGetSelections(w http.ResponseWriter, r *http.Request) {
	client := widget.FromContext(r.Context())
	if client == nil {
		h.writeError(w, model.NewValidationError(widget.Header, "widget header required"))
		return
	}

	sess := h.store.Get(client.SessionID)
	if sess == nil {
		h.writeError(w, model.NewNotFoundError("session"))
		return
	}

	h.writeJSON(w, http.StatusOK, selectionResponse{
		Selections: sess.Tracker.Selections(),
		Armed:      sess.Tracker.Armed(),
	})
}

// handleSweep triggers one orphan reconciliation pass. The widget calls this
// when the host theme broadcasts a cart-change event.
// POST /bundle/sweep
func (h *Handler) handleSweep(w http.ResponseWriter, r *http.Request) {
	ctx := cart.WithSessionCookies(r.Context(), r.Header.Get("Cookie"))
	h.sweeper.Trigger(ctx)
	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// handleEvents streams widget notifications over server-sent events.
// GET /bundle/events
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, model.NewInternalError(errors.New("streaming unsupported")))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events, cancel := h.hub.Subscribe()
	defer cancel()

	for {
		select {
		case ev, open := <-events:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Error("failed to encode event", slog.String("error", err.Error()))
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// populateProduct fetches live product data so the resolver's
// first-available fallback can run. The widget only sends ids it scraped
// from markup; an add-on with no explicit id anywhere still has to be
// selectable when its product has an available variant. Explicit ids win
// the cascade outright, so the upstream call is skipped when one exists.
func (h *Handler) populateProduct(ctx context.Context, tracker *selection.Tracker, addOnID string, src selection.VariantSource) selection.VariantSource {
	if src.ChosenVariantID > 0 || src.StaticVariantID > 0 {
		return src
	}
	addOn := tracker.Bundle().AddOnByID(addOnID)
	if addOn == nil || addOn.VariantID > 0 || addOn.ProductHandle == "" {
		return src
	}

	product, err := h.svc.GetProduct(ctx, addOn.ProductHandle)
	if err != nil {
		h.logger.Warn("product fetch for selection failed",
			slog.String("add_on_id", addOnID),
			slog.String("product_handle", addOn.ProductHandle),
			slog.String("error", err.Error()),
		)
		return src
	}
	src.Product = product
	return src
}

// requestedBundle resolves the bundle named by the request's bundle_id or
// product_id query parameter.
func (h *Handler) requestedBundle(r *http.Request) (*model.Bundle, error) {
	if id := r.URL.Query().Get("bundle_id"); id != "" {
		if b := h.merchant.BundleByID(id); b != nil {
			return b, nil
		}
		return nil, model.NewNotFoundError("bundle " + id)
	}

	if pid := r.URL.Query().Get("product_id"); pid != "" {
		productID, err := strconv.ParseInt(pid, 10, 64)
		if err != nil || productID <= 0 {
			return nil, model.NewValidationError("product_id", "must be a positive integer")
		}
		if b := h.merchant.BundleByMainProduct(productID); b != nil {
			return b, nil
		}
		return nil, model.NewNotFoundError("bundle for product " + pid)
	}

	return nil, model.NewValidationError("bundle_id", "bundle_id or product_id is required")
}
