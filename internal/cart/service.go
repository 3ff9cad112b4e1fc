package cart

import (
	"context"

	"bundle-proxy/internal/model"
)

// Service abstracts the storefront cart endpoints behind an interface so the
// interceptor, sweeper, and pricing passes can be tested against a mock.
//
// All methods return the platform's own view of state; callers must treat it
// as a snapshot that may already be stale.
type Service interface {
	// GetCart returns the authoritative live cart.
	GetCart(ctx context.Context) (*Cart, error)

	// AddItems appends the ordered items as new lines in a single request.
	// Returns the resulting lines as reported by the cart service.
	AddItems(ctx context.Context, items []AddItem) (*Cart, error)

	// UpdateQuantities sets per-line quantities keyed by line key.
	// A quantity of zero removes the line; zeroing an already-absent line is
	// a no-op from the cart service's perspective.
	UpdateQuantities(ctx context.Context, updates map[string]int) (*Cart, error)

	// GetProduct returns live, market-localized pricing and availability for
	// a product handle.
	GetProduct(ctx context.Context, handle string) (*Product, error)
}

// Mock implements Service for testing.
// Each method can be configured via function fields.
type Mock struct {
	GetCartFunc          func(ctx context.Context) (*Cart, error)
	AddItemsFunc         func(ctx context.Context, items []AddItem) (*Cart, error)
	UpdateQuantitiesFunc func(ctx context.Context, updates map[string]int) (*Cart, error)
	GetProductFunc       func(ctx context.Context, handle string) (*Product, error)
}

// GetCart calls the configured GetCartFunc or returns an empty cart.
func (m *Mock) GetCart(ctx context.Context) (*Cart, error) {
	if m.GetCartFunc != nil {
		return m.GetCartFunc(ctx)
	}
	return &Cart{}, nil
}

// AddItems calls the configured AddItemsFunc or echoes the items back.
func (m *Mock) AddItems(ctx context.Context, items []AddItem) (*Cart, error) {
	if m.AddItemsFunc != nil {
		return m.AddItemsFunc(ctx, items)
	}
	c := &Cart{}
	for _, item := range items {
		c.Items = append(c.Items, Line{ID: item.ID, Quantity: item.Quantity, Properties: item.Properties})
	}
	c.ItemCount = len(c.Items)
	return c, nil
}

// UpdateQuantities calls the configured UpdateQuantitiesFunc or returns an empty cart.
func (m *Mock) UpdateQuantities(ctx context.Context, updates map[string]int) (*Cart, error) {
	if m.UpdateQuantitiesFunc != nil {
		return m.UpdateQuantitiesFunc(ctx, updates)
	}
	return &Cart{}, nil
}

// GetProduct calls the configured GetProductFunc or reports the product missing.
func (m *Mock) GetProduct(ctx context.Context, handle string) (*Product, error) {
	if m.GetProductFunc != nil {
		return m.GetProductFunc(ctx, handle)
	}
	return nil, model.NewNotFoundError("product " + handle)
}

// Verify Mock implements Service interface at compile time.
var _ Service = (*Mock)(nil)
