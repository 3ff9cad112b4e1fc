package cart

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bundle-proxy/internal/model"
	"bundle-proxy/internal/transport"
)

// userAgent identifies this client to upstream servers.
// Required: storefront CDNs rate-limit requests without a User-Agent.
const userAgent = "BundleProxy/1.0"

// Config holds storefront client configuration.
type Config struct {
	// StoreURL is the storefront origin, e.g. https://shop.example.com.
	StoreURL string

	// Timeout bounds each upstream call. Defaults to 30s.
	Timeout time.Duration
}

// Client implements Service against the storefront AJAX cart endpoints:
// GET /cart.js, POST /cart/add.js, POST /cart/update.js, and the per-product
// GET /products/{handle}.js pricing lookup.
//
// The endpoints are session-scoped via cookies. The proxy forwards the
// browser's cookie header on every call (see WithSessionCookies), so the cart
// it reads and mutates is the visitor's own, in their market context.
type Client struct {
	httpClient *http.Client
	storeURL   string
}

// New creates a storefront client with the given configuration.
func New(cfg Config) (*Client, error) {
	if cfg.StoreURL == "" {
		return nil, fmt.Errorf("store URL is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	// Chrome TLS fingerprint transport: storefront endpoints sit behind
	// JA3-based bot detection. See internal/transport for rationale.
	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport.NewChromeTransport(timeout),
		},
		storeURL: strings.TrimSuffix(cfg.StoreURL, "/"),
	}, nil
}

// cookieKey carries forwarded browser cookies through a context.
type cookieKey struct{}

// WithSessionCookies returns a context that makes subsequent client calls
// send the given Cookie header value upstream. The cart session lives in the
// visitor's cookies; without them every call would address an empty cart.
func WithSessionCookies(ctx context.Context, cookieHeader string) context.Context {
	if cookieHeader == "" {
		return ctx
	}
	return context.WithValue(ctx, cookieKey{}, cookieHeader)
}

func sessionCookies(ctx context.Context) string {
	v, _ := ctx.Value(cookieKey{}).(string)
	return v
}

// GetCart fetches the authoritative live cart.
func (c *Client) GetCart(ctx context.Context) (*Cart, error) {
	var cart Cart
	if err := c.do(ctx, http.MethodGet, "/cart.js", nil, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// AddItems appends the ordered items as new lines in a single request.
func (c *Client) AddItems(ctx context.Context, items []AddItem) (*Cart, error) {
	if len(items) == 0 {
		return nil, model.NewValidationError("items", "at least one item required")
	}

	body := map[string]any{"items": items}

	// add.js responds with the added lines only; re-read for the full cart.
	var added struct {
		Items []Line `json:"items"`
	}
	if err := c.do(ctx, http.MethodPost, "/cart/add.js", body, &added); err != nil {
		return nil, err
	}
	return c.GetCart(ctx)
}

// UpdateQuantities sets per-line quantities keyed by line key. Zero removes.
func (c *Client) UpdateQuantities(ctx context.Context, updates map[string]int) (*Cart, error) {
	if len(updates) == 0 {
		return c.GetCart(ctx)
	}

	body := map[string]any{"updates": updates}

	var cart Cart
	if err := c.do(ctx, http.MethodPost, "/cart/update.js", body, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// GetProduct fetches live pricing and availability for a product handle.
// Prices in the .js payload are already in minor units and reflect the
// viewer's market via the forwarded session cookies.
func (c *Client) GetProduct(ctx context.Context, handle string) (*Product, error) {
	if handle == "" {
		return nil, model.NewValidationError("handle", "product handle required")
	}

	var product Product
	if err := c.do(ctx, http.MethodGet, "/products/"+handle+".js", nil, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

// do executes a storefront request and decodes the JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.storeURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookies := sessionCookies(ctx); cookies != "" {
		req.Header.Set("Cookie", cookies)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.NewUpstreamError("cart service", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return c.parseErrorResponse(resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

// cartError is the storefront's error payload shape.
type cartError struct {
	Status      int    `json:"status"`
	Message     string `json:"message"`
	Description string `json:"description"`
}

// parseErrorResponse converts a storefront error to APIError.
func (c *Client) parseErrorResponse(statusCode int, body []byte) error {
	var cerr cartError
	json.Unmarshal(body, &cerr) // Best effort parse

	switch statusCode {
	case 404:
		return model.NewNotFoundError("resource")
	case 401, 403:
		return model.NewUnauthorizedError("cart service rejected the request")
	case 422:
		msg := cerr.Description
		if msg == "" {
			msg = cerr.Message
		}
		if msg == "" {
			msg = "invalid cart request"
		}
		return model.NewValidationError("cart", msg)
	case 429:
		return model.NewRateLimitError("cart service")
	default:
		return model.NewUpstreamError("cart service",
			fmt.Errorf("status %d: %s %s", statusCode, cerr.Message, cerr.Description))
	}
}

// Verify Client implements Service interface at compile time.
var _ Service = (*Client)(nil)
