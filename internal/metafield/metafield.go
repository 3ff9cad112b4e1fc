// Package metafield publishes the merchant's bundle configuration to a shop
// metafield over the Admin API. The widget script reads this metafield at
// page load instead of calling the proxy for static config.
package metafield

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	goshopify "github.com/bold-commerce/go-shopify/v3"
	"github.com/shopspring/decimal"

	"bundle-proxy/internal/model"
)

const (
	// Namespace and Key locate the config metafield on the shop resource.
	Namespace = "bundle_widget"
	Key       = "config"
)

var dec100 = decimal.NewFromInt(100)

// API is the slice of the Admin metafield service the syncer needs.
// Satisfied by goshopify.Client.Metafield.
type API interface {
	List(options interface{}) ([]goshopify.Metafield, error)
	Create(metafield goshopify.Metafield) (*goshopify.Metafield, error)
	Update(metafield goshopify.Metafield) (*goshopify.Metafield, error)
}

// Syncer writes the bundle config metafield, creating or updating as needed.
type Syncer struct {
	api    API
	logger *slog.Logger
}

// New creates a syncer over an Admin API client.
func New(api API, logger *slog.Logger) *Syncer {
	return &Syncer{api: api, logger: logger}
}

// NewAdminClient builds the Admin API client for a shop.
// Token is a private-app admin token; no OAuth flow is involved.
func NewAdminClient(shop, token string) *goshopify.Client {
	return goshopify.NewClient(goshopify.App{}, shop, token)
}

// payload is the metafield value. Prices are formatted as decimal currency
// strings alongside the raw minor-unit values because the widget renders
// them directly without its own money formatting.
type payload struct {
	UpdatedAt string          `json:"updated_at"`
	Bundles   []payloadBundle `json:"bundles"`
}

type payloadBundle struct {
	ID            string         `json:"id"`
	MainProductID int64          `json:"main_product_id"`
	CascadeDelete bool           `json:"cascade_delete"`
	AddOns        []payloadAddOn `json:"add_ons"`
}

type payloadAddOn struct {
	ID             string `json:"id"`
	ProductHandle  string `json:"product_handle"`
	VariantID      int64  `json:"variant_id,omitempty"`
	ExclusiveGroup string `json:"exclusive_group,omitempty"`
	DiscountType   string `json:"discount_type"`
	DiscountValue  int64  `json:"discount_value,omitempty"`

	// DiscountDisplay is the human-readable form of the discount: "20" for a
	// percentage, "3.00" for amount and fixed-price discounts.
	DiscountDisplay string `json:"discount_display,omitempty"`
}

// Sync writes the current bundle configuration to the shop metafield.
// Idempotent: an existing metafield is updated in place.
func (s *Syncer) Sync(ctx context.Context, bundles []model.Bundle) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	value, err := json.Marshal(buildPayload(bundles, time.Now()))
	if err != nil {
		return fmt.Errorf("encoding bundle config: %w", err)
	}

	field := goshopify.Metafield{
		Namespace: Namespace,
		Key:       Key,
		Type:      "json",
		Value:     string(value),
	}

	existing, err := s.findExisting()
	if err != nil {
		return fmt.Errorf("listing shop metafields: %w", err)
	}

	if existing != nil {
		field.ID = existing.ID
		if _, err := s.api.Update(field); err != nil {
			return fmt.Errorf("updating bundle config metafield: %w", err)
		}
		s.logger.Info("bundle config metafield updated",
			slog.Int64("metafield_id", existing.ID),
			slog.Int("bundles", len(bundles)))
		return nil
	}

	created, err := s.api.Create(field)
	if err != nil {
		return fmt.Errorf("creating bundle config metafield: %w", err)
	}
	s.logger.Info("bundle config metafield created",
		slog.Int64("metafield_id", created.ID),
		slog.Int("bundles", len(bundles)))
	return nil
}

// findExisting returns the config metafield if the shop already has one.
// The Admin API has no namespace+key filter on the shop resource, so the
// full list is scanned.
func (s *Syncer) findExisting() (*goshopify.Metafield, error) {
	fields, err := s.api.List(nil)
	if err != nil {
		return nil, err
	}
	for i := range fields {
		if fields[i].Namespace == Namespace && fields[i].Key == Key {
			return &fields[i], nil
		}
	}
	return nil, nil
}

func buildPayload(bundles []model.Bundle, now time.Time) payload {
	p := payload{
		UpdatedAt: now.UTC().Format(time.RFC3339),
		Bundles:   make([]payloadBundle, 0, len(bundles)),
	}
	for i := range bundles {
		b := &bundles[i]
		pb := payloadBundle{
			ID:            b.ID,
			MainProductID: b.MainProductID,
			CascadeDelete: b.CascadeDelete,
			AddOns:        make([]payloadAddOn, 0, len(b.AddOns)),
		}
		for j := range b.AddOns {
			a := &b.AddOns[j]
			pb.AddOns = append(pb.AddOns, payloadAddOn{
				ID:              a.ID,
				ProductHandle:   a.ProductHandle,
				VariantID:       a.VariantID,
				ExclusiveGroup:  a.ExclusiveGroup,
				DiscountType:    string(a.DiscountType),
				DiscountValue:   a.DiscountValue,
				DiscountDisplay: discountDisplay(a.DiscountType, a.DiscountValue),
			})
		}
		p.Bundles = append(p.Bundles, pb)
	}
	return p
}

// discountDisplay renders the discount value for the widget. Monetary values
// are configured in minor units and shown in currency units.
func discountDisplay(typ model.DiscountType, value int64) string {
	switch typ {
	case model.DiscountPercentage:
		return decimal.NewFromInt(value).String()
	case model.DiscountAmount, model.DiscountFixedPrice:
		return decimal.NewFromInt(value).Div(dec100).StringFixed(2)
	default:
		return ""
	}
}
