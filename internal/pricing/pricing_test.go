package pricing

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"bundle-proxy/internal/cart"
	"bundle-proxy/internal/model"
	"bundle-proxy/internal/selection"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDiscountedPrice(t *testing.T) {
	tests := []struct {
		name  string
		raw   int64
		typ   model.DiscountType
		value int64
		want  int64
	}{
		{"none passes through", 10000, model.DiscountNone, 0, 10000},
		{"percentage 20", 10000, model.DiscountPercentage, 20, 8000},
		{"amount 300", 10000, model.DiscountAmount, 300, 9700},
		{"amount floors at zero", 200, model.DiscountAmount, 300, 0},
		{"fixed price ignores raw", 10000, model.DiscountFixedPrice, 5000, 5000},
		{"free gift is zero", 10000, model.DiscountFreeGift, 0, 0},
		{"unknown type passes through", 10000, model.DiscountType("bogo"), 50, 10000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DiscountedPrice(tt.raw, tt.typ, tt.value); got != tt.want {
				t.Errorf("DiscountedPrice(%d, %s, %d) = %d, want %d",
					tt.raw, tt.typ, tt.value, got, tt.want)
			}
		})
	}
}

func twoAddOnBundle() *model.Bundle {
	return &model.Bundle{
		ID:            "bundle-1",
		MainProductID: 111,
		AddOns: []model.AddOn{
			{ID: "a1", ProductHandle: "mug", VariantID: 201, DiscountType: model.DiscountPercentage, DiscountValue: 20},
			{ID: "a2", ProductHandle: "coaster", VariantID: 301, DiscountType: model.DiscountNone},
		},
	}
}

func TestRefresh_DiscountedQuotes(t *testing.T) {
	svc := &cart.Mock{
		GetProductFunc: func(ctx context.Context, handle string) (*cart.Product, error) {
			switch handle {
			case "mug":
				return &cart.Product{Handle: handle, Variants: []cart.Variant{
					{ID: 201, Price: 10000, Available: true},
				}}, nil
			case "coaster":
				return &cart.Product{Handle: handle, Variants: []cart.Variant{
					{ID: 301, Price: 2500, Available: true},
				}}, nil
			}
			return nil, model.NewNotFoundError("product")
		},
	}

	r := NewReconciler(svc, testLogger())
	quotes := r.Refresh(context.Background(), twoAddOnBundle(), nil)

	if len(quotes) != 2 {
		t.Fatalf("quotes = %d, want 2", len(quotes))
	}
	if quotes[0].RawPrice != 10000 || quotes[0].Price != 8000 {
		t.Errorf("a1 = raw %d price %d, want 10000/8000", quotes[0].RawPrice, quotes[0].Price)
	}
	if quotes[1].Price != 2500 {
		t.Errorf("a2 price = %d, want raw passthrough 2500", quotes[1].Price)
	}
}

func TestRefresh_SoldOutEvictsSelection(t *testing.T) {
	bundle := twoAddOnBundle()
	tracker := selection.NewTracker(bundle, nil, testLogger())
	tracker.Select("a1", selection.VariantSource{}, 1)
	tracker.Select("a2", selection.VariantSource{}, 1)

	svc := &cart.Mock{
		GetProductFunc: func(ctx context.Context, handle string) (*cart.Product, error) {
			if handle == "mug" {
				// Single purchasable variant, unavailable: fully sold out.
				return &cart.Product{Handle: handle, Variants: []cart.Variant{
					{ID: 201, Price: 10000, Available: false},
				}}, nil
			}
			return &cart.Product{Handle: handle, Variants: []cart.Variant{
				{ID: 301, Price: 2500, Available: true},
			}}, nil
		},
	}

	r := NewReconciler(svc, testLogger())
	quotes := r.Refresh(context.Background(), bundle, tracker)

	if !quotes[0].SoldOut {
		t.Error("a1 should be sold out")
	}
	if tracker.Selected("a1") {
		t.Error("sold-out add-on still selected after reconciliation pass")
	}
	if !tracker.Selected("a2") {
		t.Error("available add-on was wrongly deselected")
	}
}

func TestRefresh_FetchFailureIsolated(t *testing.T) {
	var mu sync.Mutex
	calls := map[string]int{}

	svc := &cart.Mock{
		GetProductFunc: func(ctx context.Context, handle string) (*cart.Product, error) {
			mu.Lock()
			calls[handle]++
			mu.Unlock()
			if handle == "mug" {
				return nil, model.NewUpstreamError("cart service", context.DeadlineExceeded)
			}
			return &cart.Product{Handle: handle, Variants: []cart.Variant{
				{ID: 301, Price: 2500, Available: true},
			}}, nil
		},
	}

	r := NewReconciler(svc, testLogger())
	quotes := r.Refresh(context.Background(), twoAddOnBundle(), nil)

	if !quotes[0].Stale {
		t.Error("failed fetch should leave a stale quote")
	}
	if quotes[1].Stale || quotes[1].Price != 2500 {
		t.Errorf("sibling fetch was not isolated: %+v", quotes[1])
	}
	if calls["coaster"] != 1 {
		t.Errorf("coaster fetched %d times, want 1", calls["coaster"])
	}
}

func TestRefresh_AutoSwapsUnavailableVariant(t *testing.T) {
	bundle := &model.Bundle{
		ID:            "bundle-1",
		MainProductID: 111,
		AddOns: []model.AddOn{
			{ID: "a1", ProductHandle: "mug", VariantID: 201, DiscountType: model.DiscountNone},
		},
	}
	tracker := selection.NewTracker(bundle, nil, testLogger())
	tracker.Select("a1", selection.VariantSource{}, 1)

	svc := &cart.Mock{
		GetProductFunc: func(ctx context.Context, handle string) (*cart.Product, error) {
			return &cart.Product{Handle: handle, Variants: []cart.Variant{
				{ID: 201, Price: 10000, Available: false},
				{ID: 202, Price: 11000, Available: true},
			}}, nil
		},
	}

	r := NewReconciler(svc, testLogger())
	quotes := r.Refresh(context.Background(), bundle, tracker)

	if quotes[0].SoldOut {
		t.Error("product with an available alternative is not sold out")
	}
	if quotes[0].Price != 11000 {
		t.Errorf("price = %d, want the available variant's 11000", quotes[0].Price)
	}

	sels := tracker.Selections()
	if len(sels) != 1 || sels[0].VariantID != 202 {
		t.Errorf("selection = %+v, want auto-swapped to variant 202", sels)
	}
}

func TestRefresh_VariantAnnotationsInLockStep(t *testing.T) {
	svc := &cart.Mock{
		GetProductFunc: func(ctx context.Context, handle string) (*cart.Product, error) {
			return &cart.Product{Handle: handle, Variants: []cart.Variant{
				{ID: 201, Title: "Blue", Price: 10000, Available: true},
				{ID: 202, Title: "Red", Price: 12000, Available: false},
			}}, nil
		},
	}
	bundle := &model.Bundle{
		ID: "b", MainProductID: 1,
		AddOns: []model.AddOn{{ID: "a1", ProductHandle: "mug", VariantID: 201, DiscountType: model.DiscountPercentage, DiscountValue: 50}},
	}

	r := NewReconciler(svc, testLogger())
	quotes := r.Refresh(context.Background(), bundle, nil)

	if len(quotes[0].Variants) != 2 {
		t.Fatalf("variant annotations = %d, want 2", len(quotes[0].Variants))
	}
	if quotes[0].Variants[0].Price != 5000 || quotes[0].Variants[1].Price != 6000 {
		t.Errorf("per-option discounts not applied: %+v", quotes[0].Variants)
	}
	if quotes[0].Variants[1].Available {
		t.Error("availability annotation lost")
	}
}
