package cart

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"bundle-proxy/internal/model"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := New(Config{StoreURL: server.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// The test server speaks plain HTTP; the fingerprint transport is TLS-only.
	c.httpClient = server.Client()
	return c
}

func TestGetCart_ParsesProperties(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cart.js" {
			t.Errorf("path = %s, want /cart.js", r.URL.Path)
		}
		w.Write([]byte(`{
			"token": "tok", "item_count": 2,
			"items": [
				{"id": 222, "key": "222:abc", "quantity": 1,
				 "properties": {"_bundle_group_id": "bg_1", "_bundle_role": "addon", "_bundle_cascade": true}},
				{"id": 111, "key": "111:def", "quantity": 1, "properties": null}
			]
		}`))
	})

	cart, err := c.GetCart(context.Background())
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if len(cart.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(cart.Items))
	}

	line := cart.Items[0]
	if model.GroupIDOf(line.Properties) != "bg_1" {
		t.Errorf("group id = %q, want bg_1", model.GroupIDOf(line.Properties))
	}
	// Non-string property values are stringified, not dropped
	if !model.CascadeOf(line.Properties) {
		t.Error("boolean cascade property should read as true")
	}
	if cart.Items[1].Properties != nil && len(cart.Items[1].Properties) != 0 {
		t.Error("null properties should decode as empty")
	}
}

func TestAddItems_SendsItemsArrayAndRereadsCart(t *testing.T) {
	var addBody struct {
		Items []AddItem `json:"items"`
	}
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/cart/add.js":
			if err := json.NewDecoder(r.Body).Decode(&addBody); err != nil {
				t.Fatalf("decoding add body: %v", err)
			}
			w.Write([]byte(`{"items": []}`))
		case "/cart.js":
			w.Write([]byte(`{"token": "tok", "item_count": 2, "items": []}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	items := []AddItem{
		{ID: 111, Quantity: 1, Properties: map[string]string{model.PropRole: "main"}},
		{ID: 222, Quantity: 2, Properties: map[string]string{model.PropRole: "addon"}, Parent: "111"},
	}
	cart, err := c.AddItems(context.Background(), items)
	if err != nil {
		t.Fatalf("AddItems: %v", err)
	}

	if len(addBody.Items) != 2 {
		t.Fatalf("upstream saw %d items, want 2", len(addBody.Items))
	}
	if addBody.Items[0].ID != 111 || addBody.Items[1].Parent != "111" {
		t.Errorf("item order/parent not preserved: %+v", addBody.Items)
	}
	if cart.ItemCount != 2 {
		t.Errorf("ItemCount = %d, want 2 (from cart re-read)", cart.ItemCount)
	}
}

func TestAddItems_Empty(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for empty add")
	})

	_, err := c.AddItems(context.Background(), nil)
	if !errors.Is(err, model.ErrInvalidRequest) {
		t.Errorf("err = %v, want ErrInvalidRequest", err)
	}
}

func TestUpdateQuantities_KeyedByLineKey(t *testing.T) {
	var updateBody struct {
		Updates map[string]int `json:"updates"`
	}
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cart/update.js" {
			t.Errorf("path = %s, want /cart/update.js", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&updateBody)
		w.Write([]byte(`{"token": "tok", "item_count": 0, "items": []}`))
	})

	_, err := c.UpdateQuantities(context.Background(), map[string]int{"222:abc": 0})
	if err != nil {
		t.Fatalf("UpdateQuantities: %v", err)
	}
	if updateBody.Updates["222:abc"] != 0 {
		t.Errorf("updates = %v, want 222:abc → 0", updateBody.Updates)
	}
}

func TestGetProduct_MinorUnits(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/products/travel-mug.js" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{
			"id": 9, "title": "Travel Mug", "handle": "travel-mug",
			"variants": [
				{"id": 91, "title": "Blue", "price": 10000, "available": false},
				{"id": 92, "title": "Red", "price": 10500, "available": true}
			]
		}`))
	})

	p, err := c.GetProduct(context.Background(), "travel-mug")
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if p.SoldOut() {
		t.Error("product with an available variant is not sold out")
	}
	if fa := p.FirstAvailable(); fa == nil || fa.ID != 92 {
		t.Errorf("FirstAvailable = %+v, want variant 92", fa)
	}
	if p.Variants[0].Price != 10000 {
		t.Errorf("price = %d, want 10000 minor units", p.Variants[0].Price)
	}
}

func TestVariantPriceFormats(t *testing.T) {
	// Currency conversion apps rewrite the .js price fields as strings, in
	// minor units or in major units with a decimal point.
	tests := []struct {
		name string
		json string
		want int64
	}{
		{"native integer", `{"id": 1, "price": 10500, "available": true}`, 10500},
		{"string minor units", `{"id": 1, "price": "10500", "available": true}`, 10500},
		{"string major units", `{"id": 1, "price": "105.00", "available": true}`, 10500},
		{"missing price", `{"id": 1, "available": true}`, 0},
		{"garbage string", `{"id": 1, "price": "call us", "available": true}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v Variant
			if err := json.Unmarshal([]byte(tt.json), &v); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if v.Price != tt.want {
				t.Errorf("Price = %d, want %d", v.Price, tt.want)
			}
		})
	}
}

func TestLineFinalPriceString(t *testing.T) {
	var l Line
	data := `{"id": 1, "key": "k1", "quantity": 2, "final_price": "24.95"}`
	if err := json.Unmarshal([]byte(data), &l); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if l.FinalPrice != 2495 {
		t.Errorf("FinalPrice = %d, want 2495", l.FinalPrice)
	}
}

func TestDo_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		sentinel error
	}{
		{"not found", 404, `{}`, model.ErrNotFound},
		{"unprocessable", 422, `{"status": 422, "description": "sold out"}`, model.ErrInvalidRequest},
		{"rate limited", 429, `{}`, model.ErrRateLimited},
		{"server error", 500, `oops`, model.ErrUpstreamError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := c.GetCart(context.Background())
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("err = %v, want %v", err, tt.sentinel)
			}
		})
	}
}

func TestWithSessionCookies_Forwarded(t *testing.T) {
	var gotCookie string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
		w.Write([]byte(`{"token": "tok", "items": []}`))
	})

	ctx := WithSessionCookies(context.Background(), "cart=abc; currency=EUR")
	if _, err := c.GetCart(ctx); err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if gotCookie != "cart=abc; currency=EUR" {
		t.Errorf("Cookie = %q, want forwarded session cookies", gotCookie)
	}
}

func TestSoldOut(t *testing.T) {
	tests := []struct {
		name    string
		product Product
		want    bool
	}{
		{"no variants", Product{}, true},
		{"single unavailable", Product{Variants: []Variant{{ID: 1, Available: false}}}, true},
		{"single available", Product{Variants: []Variant{{ID: 1, Available: true}}}, false},
		{"all unavailable", Product{Variants: []Variant{{ID: 1}, {ID: 2}}}, true},
		{"one of many available", Product{Variants: []Variant{{ID: 1}, {ID: 2, Available: true}}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.product.SoldOut(); got != tt.want {
				t.Errorf("SoldOut = %v, want %v", got, tt.want)
			}
		})
	}
}
