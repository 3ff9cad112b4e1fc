package handler

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"

	"bundle-proxy/internal/cart"
	"bundle-proxy/internal/selection"
	"bundle-proxy/internal/widget"
)

// handleCartAdd intercepts storefront cart-add requests.
// POST /cart/add.js
//
// The request is rewritten into a combined multi-item add when the widget
// session is armed. Everything else, including requests from sessions whose
// own combined add is in flight, passes through to the storefront untouched.
func (h *Handler) handleCartAdd(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRequestBodySize))
	if err != nil {
		h.logger.Warn("unreadable cart-add body", slog.String("error", err.Error()))
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}
	r.Body.Close()

	sess := h.sessionFor(r)
	ctx := cart.WithSessionCookies(r.Context(), r.Header.Get("Cookie"))

	if res, handled := h.interceptor.Intercept(ctx, sess, r.Header.Get("Content-Type"), body); handled {
		h.writeJSON(w, http.StatusOK, res.Cart)
		return
	}

	h.forward(w, r, body)
}

// handleCartMutation passes cart updates through and schedules a sweep once
// the storefront has settled, since a removal may have orphaned add-ons.
// POST /cart/update.js, /cart/change.js, /cart/clear.js
func (h *Handler) handleCartMutation(w http.ResponseWriter, r *http.Request) {
	// The sweep outlives the request; detach it from the request lifecycle
	// but keep the visitor's cart cookies.
	sweepCtx := cart.WithSessionCookies(context.WithoutCancel(r.Context()), r.Header.Get("Cookie"))

	h.proxy.ServeHTTP(w, r)
	h.sweeper.ObserveCartMutation(sweepCtx)
}

// sessionFor returns the widget session behind a request, or nil for native
// traffic and for sessions that never initialized.
func (h *Handler) sessionFor(r *http.Request) *selection.Session {
	client := widget.FromContext(r.Context())
	if client == nil {
		return nil
	}
	return h.store.Get(client.SessionID)
}

// forward replays the original request to the storefront with its body
// restored.
func (h *Handler) forward(w http.ResponseWriter, r *http.Request, body []byte) {
	r.Body = io.NopCloser(bytes.NewReader(body))
	r.ContentLength = int64(len(body))
	h.proxy.ServeHTTP(w, r)
}
