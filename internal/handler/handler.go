// Package handler provides HTTP handlers for the bundle proxy API and the
// storefront cart pass-through.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"bundle-proxy/internal/cart"
	"bundle-proxy/internal/config"
	"bundle-proxy/internal/intercept"
	"bundle-proxy/internal/model"
	"bundle-proxy/internal/notify"
	"bundle-proxy/internal/pricing"
	"bundle-proxy/internal/selection"
	"bundle-proxy/internal/sweeper"
	"bundle-proxy/internal/transport"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	svc         cart.Service
	merchant    *config.MerchantConfig
	store       *selection.Store
	interceptor *intercept.Interceptor
	pricer      *pricing.Reconciler
	sweeper     *sweeper.Sweeper
	hub         *notify.Hub
	proxy       *httputil.ReverseProxy
	logger      *slog.Logger
}

// New creates a Handler wired to the merchant's storefront.
func New(
	svc cart.Service,
	merchant *config.MerchantConfig,
	store *selection.Store,
	interceptor *intercept.Interceptor,
	pricer *pricing.Reconciler,
	sw *sweeper.Sweeper,
	hub *notify.Hub,
	logger *slog.Logger,
) (*Handler, error) {
	target, err := url.Parse(merchant.StoreURL)
	if err != nil {
		return nil, err
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.Transport = transport.NewChromeTransport(60 * time.Second)
	director := proxy.Director
	proxy.Director = func(r *http.Request) {
		director(r)
		r.Host = target.Host
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("storefront pass-through failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadGateway)
	}

	return &Handler{
		svc:         svc,
		merchant:    merchant,
		store:       store,
		interceptor: interceptor,
		pricer:      pricer,
		sweeper:     sw,
		hub:         hub,
		proxy:       proxy,
		logger:      logger,
	}, nil
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
// Uses Go 1.22+ method routing patterns.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Storefront cart endpoints, intercepted or passed through
	mux.HandleFunc("POST /cart/add.js", h.handleCartAdd)
	mux.HandleFunc("POST /cart/update.js", h.handleCartMutation)
	mux.HandleFunc("POST /cart/change.js", h.handleCartMutation)
	mux.HandleFunc("POST /cart/clear.js", h.handleCartMutation)

	// Widget REST API
	mux.HandleFunc("GET /bundle/offer", h.handleOffer)
	mux.HandleFunc("GET /bundle/selections", h.handleGetSelections)
	mux.HandleFunc("POST /bundle/selections", h.handleUpdateSelection)
	mux.HandleFunc("POST /bundle/sweep", h.handleSweep)
	mux.HandleFunc("GET /bundle/events", h.handleEvents)

	// MCP transport - JSON-RPC endpoint using official MCP SDK
	mux.Handle("/mcp", h.NewMCPHandler())

	// Health check
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)

	// Everything else is the storefront's own traffic
	mux.Handle("/", h.proxy)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// === Response Helpers ===

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError sends an error response, extracting status/code from APIError if present.
// Uses errors.As() to unwrap error chains (e.g., fmt.Errorf wrapping).
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError

	if errors.As(err, &apiErr) {
		// Found APIError in error chain - use it
	} else {
		// Wrap unexpected errors
		apiErr = &model.APIError{
			Code:       "INTERNAL_ERROR",
			Message:    "an internal error occurred",
			StatusCode: http.StatusInternalServerError,
		}
		h.logger.Error("internal error", slog.String("error", err.Error()))
	}

	h.writeJSON(w, apiErr.StatusCode, errorResponse{
		Error: errorBody{
			Code:    apiErr.Code,
			Message: apiErr.Message,
		},
	})
}

// errorResponse is the JSON structure for error responses.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MaxRequestBodySize limits request bodies to 1MB to prevent DoS.
const MaxRequestBodySize = 1 << 20 // 1MB

// decodeJSON reads JSON from request body into v.
// Limits body size to MaxRequestBodySize to prevent memory exhaustion.
// Returns an APIError if decoding fails.
func decodeJSON(r *http.Request, v interface{}) error {
	// Limit request body size to prevent DoS
	r.Body = http.MaxBytesReader(nil, r.Body, MaxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// Don't expose internal error details to client
		return model.NewValidationError("body", "invalid JSON")
	}
	return nil
}
