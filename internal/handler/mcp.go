// MCP transport handler for the bundle proxy using the official MCP Go SDK.
// Exposes the widget operations as MCP tools so agent-driven storefront
// sessions can drive bundles the same way the script does.
package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"bundle-proxy/internal/model"
	"bundle-proxy/internal/pricing"
	"bundle-proxy/internal/selection"
)

// === MCP Meta Types ===
// Per transport mapping: meta carries what HTTP puts in the Bundle-Widget
// header - the session id identifying one page view.

// MCPMeta represents request metadata in MCP requests.
type MCPMeta struct {
	SessionID string `json:"session-id" jsonschema:"widget session identifier,required"`
}

// === MCP Tool Input/Output Types ===

// OfferInput is the input schema for the get_bundle_offer tool.
type OfferInput struct {
	Meta     MCPMeta `json:"meta" jsonschema:"request metadata,required"`
	BundleID string  `json:"bundle_id" jsonschema:"bundle ID,required"`
}

// OfferOutput mirrors the REST offer response.
type OfferOutput struct {
	BundleID   string                `json:"bundle_id"`
	Quotes     []pricing.Quote       `json:"quotes"`
	Selections []selection.Selection `json:"selections"`
	Armed      bool                  `json:"armed"`
}

// SelectionInput is the input schema for the update_selection tool.
type SelectionInput struct {
	Meta    MCPMeta `json:"meta" jsonschema:"request metadata,required"`
	Action  string  `json:"action" jsonschema:"one of select deselect set_variant set_quantity,required"`
	AddOnID string  `json:"add_on_id" jsonschema:"add-on ID,required"`

	Source    selection.VariantSource `json:"source,omitempty" jsonschema:"variant hints for select actions"`
	VariantID int64                   `json:"variant_id,omitempty" jsonschema:"variant for set_variant"`
	Quantity  int                     `json:"quantity,omitempty" jsonschema:"quantity for select and set_quantity"`
}

// SelectionOutput reports the selection state after the event.
type SelectionOutput struct {
	Selections []selection.Selection `json:"selections"`
	Armed      bool                  `json:"armed"`
	Selected   bool                  `json:"selected,omitempty"`
}

// AddToCartInput is the input schema for the add_to_cart tool.
type AddToCartInput struct {
	Meta      MCPMeta `json:"meta" jsonschema:"request metadata,required"`
	VariantID int64   `json:"variant_id" jsonschema:"main item variant ID,required"`
	Quantity  int     `json:"quantity,omitempty" jsonschema:"main item quantity, defaults to 1"`
}

// AddToCartOutput describes the combined add that was performed.
type AddToCartOutput struct {
	GroupID   string `json:"group_id"`
	AddOns    int    `json:"add_ons"`
	Gifts     int    `json:"gifts"`
	ItemCount int    `json:"item_count"`
}

// SweepInput is the input schema for the sweep_cart tool.
type SweepInput struct {
	Meta MCPMeta `json:"meta" jsonschema:"request metadata,required"`
}

// SweepOutput acknowledges the sweep pass.
type SweepOutput struct {
	Status string `json:"status"`
}

// NewMCPServer creates an MCP server with the widget tools registered.
// The server exposes the same operations as the REST API but via MCP protocol.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "bundle-proxy",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Bundle proxy - add-on bundle operations for one storefront session. " +
				"Use these tools to inspect offers, toggle add-ons, and add bundles to the cart.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_bundle_offer",
		Description: "Get live pricing and selection state for a bundle. Initializes the session on first call.",
	}, h.mcpGetOffer)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "update_selection",
		Description: "Apply one selection event: select, deselect, set_variant, or set_quantity.",
	}, h.mcpUpdateSelection)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_to_cart",
		Description: "Add the main item plus every selected add-on to the cart as one tagged group.",
	}, h.mcpAddToCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sweep_cart",
		Description: "Run one orphan reconciliation pass against the live cart.",
	}, h.mcpSweep)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
// Mount this at /mcp on your mux.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (h *Handler) mcpGetOffer(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input OfferInput,
) (*mcp.CallToolResult, *OfferOutput, error) {
	if input.Meta.SessionID == "" {
		return nil, nil, fmt.Errorf("meta.session-id is required")
	}
	if input.BundleID == "" {
		return nil, nil, fmt.Errorf("bundle_id is required")
	}

	bundle := h.merchant.BundleByID(input.BundleID)
	if bundle == nil {
		return nil, nil, h.mcpError(model.NewNotFoundError("bundle " + input.BundleID))
	}

	sess := h.store.GetOrCreate(input.Meta.SessionID, bundle, nil)
	quotes := h.pricer.Refresh(ctx, bundle, sess.Tracker)

	return nil, &OfferOutput{
		BundleID:   bundle.ID,
		Quotes:     quotes,
		Selections: sess.Tracker.Selections(),
		Armed:      sess.Tracker.Armed(),
	}, nil
}

func (h *Handler) mcpUpdateSelection(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SelectionInput,
) (*mcp.CallToolResult, *SelectionOutput, error) {
	sess, err := h.mcpSession(&input.Meta)
	if err != nil {
		return nil, nil, err
	}
	if input.AddOnID == "" {
		return nil, nil, fmt.Errorf("add_on_id is required")
	}

	out := &SelectionOutput{}
	switch input.Action {
	case "select":
		src := h.populateProduct(ctx, sess.Tracker, input.AddOnID, input.Source)
		out.Selected = sess.Tracker.Select(input.AddOnID, src, input.Quantity)
	case "deselect":
		sess.Tracker.Deselect(input.AddOnID)
	case "set_variant":
		sess.Tracker.SetVariant(input.AddOnID, input.VariantID)
	case "set_quantity":
		sess.Tracker.SetQuantity(input.AddOnID, input.Quantity)
	default:
		return nil, nil, fmt.Errorf("unknown action %q", input.Action)
	}

	out.Selections = sess.Tracker.Selections()
	out.Armed = sess.Tracker.Armed()
	return nil, out, nil
}

func (h *Handler) mcpAddToCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input AddToCartInput,
) (*mcp.CallToolResult, *AddToCartOutput, error) {
	sess, err := h.mcpSession(&input.Meta)
	if err != nil {
		return nil, nil, err
	}
	if input.VariantID <= 0 {
		return nil, nil, fmt.Errorf("variant_id is required")
	}
	if !sess.Tracker.Armed() {
		return nil, nil, fmt.Errorf("no active selections; add the item through the storefront directly")
	}

	body := fmt.Sprintf(`{"id":%d,"quantity":%d}`, input.VariantID, input.Quantity)
	res, handled := h.interceptor.Intercept(ctx, sess, "application/json", []byte(body))
	if !handled {
		return nil, nil, fmt.Errorf("combined add failed; see events for details")
	}

	return nil, &AddToCartOutput{
		GroupID:   res.GroupID,
		AddOns:    res.AddOns,
		Gifts:     res.Gifts,
		ItemCount: res.Cart.ItemCount,
	}, nil
}

func (h *Handler) mcpSweep(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SweepInput,
) (*mcp.CallToolResult, *SweepOutput, error) {
	if input.Meta.SessionID == "" {
		return nil, nil, fmt.Errorf("meta.session-id is required")
	}

	h.sweeper.Trigger(ctx)
	return nil, &SweepOutput{Status: "accepted"}, nil
}

// mcpSession resolves the session behind an MCP request.
func (h *Handler) mcpSession(meta *MCPMeta) (*selection.Session, error) {
	if meta == nil || meta.SessionID == "" {
		return nil, fmt.Errorf("meta.session-id is required")
	}
	sess := h.store.Get(meta.SessionID)
	if sess == nil {
		return nil, fmt.Errorf("unknown session; call get_bundle_offer first")
	}
	return sess, nil
}

// mcpError converts service errors to MCP-friendly errors.
func (h *Handler) mcpError(err error) error {
	if apiErr, ok := err.(*model.APIError); ok {
		return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
	}
	// Don't leak internal error details
	h.logger.Error("mcp internal error", "error", err.Error())
	return fmt.Errorf("internal error")
}
