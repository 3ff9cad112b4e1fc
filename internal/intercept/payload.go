package intercept

import (
	"bytes"
	"encoding/json"
	"mime"
	"mime/multipart"
	"net/url"
	"strconv"
	"strings"
)

// MainItem is the main product parsed out of a host cart-add request.
type MainItem struct {
	VariantID  int64
	Quantity   int
	Properties map[string]string
}

// jsonAdd covers the two JSON shapes the storefront emits: a bare
// id/quantity pair, or an items array whose first entry is the main item.
// Ids and quantities are decoded as any because themes send them as numbers
// or strings interchangeably.
type jsonAdd struct {
	ID       any `json:"id"`
	Quantity any `json:"quantity"`
	Items    []struct {
		ID         any            `json:"id"`
		Quantity   any            `json:"quantity"`
		Properties map[string]any `json:"properties"`
	} `json:"items"`
}

// ParseAddPayload extracts the main item from a cart-add request body in any
// of the encodings host themes use: JSON with a single id, JSON with an items
// array, a URL-encoded form, or multipart form data.
//
// A body that parses under none of them returns ok=false. The caller must
// then forward the original request unmodified rather than fabricating one.
func ParseAddPayload(contentType string, body []byte) (MainItem, bool) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.ToLower(contentType))
	}

	switch {
	case strings.Contains(mediaType, "json"):
		return parseJSON(body)
	case mediaType == "multipart/form-data":
		return parseMultipart(body, params["boundary"])
	default:
		// Themes occasionally omit the header on form posts, so the
		// URL-encoded path doubles as the fallback.
		return parseForm(body)
	}
}

func parseJSON(body []byte) (MainItem, bool) {
	var payload jsonAdd
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return MainItem{}, false
	}

	if len(payload.Items) > 0 {
		first := payload.Items[0]
		item := MainItem{
			VariantID: parseID(stringify(first.ID)),
			Quantity:  parseQuantity(stringify(first.Quantity)),
		}
		if len(first.Properties) > 0 {
			item.Properties = make(map[string]string, len(first.Properties))
			for k, v := range first.Properties {
				item.Properties[k] = stringify(v)
			}
		}
		return item, item.VariantID > 0
	}

	item := MainItem{
		VariantID: parseID(stringify(payload.ID)),
		Quantity:  parseQuantity(stringify(payload.Quantity)),
	}
	return item, item.VariantID > 0
}

func parseForm(body []byte) (MainItem, bool) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return MainItem{}, false
	}
	item := MainItem{
		VariantID: parseID(values.Get("id")),
		Quantity:  parseQuantity(values.Get("quantity")),
	}
	return item, item.VariantID > 0
}

func parseMultipart(body []byte, boundary string) (MainItem, bool) {
	if boundary == "" {
		return MainItem{}, false
	}

	reader := multipart.NewReader(bytes.NewReader(body), boundary)
	form, err := reader.ReadForm(1 << 20)
	if err != nil {
		return MainItem{}, false
	}
	defer form.RemoveAll()

	first := func(key string) string {
		if v := form.Value[key]; len(v) > 0 {
			return v[0]
		}
		return ""
	}
	item := MainItem{
		VariantID: parseID(first("id")),
		Quantity:  parseQuantity(first("quantity")),
	}
	return item, item.VariantID > 0
}

func parseID(s string) int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0
	}
	return id
}

// parseQuantity defaults to 1: a cart-add without an explicit quantity means
// one unit on every storefront encoding.
func parseQuantity(s string) int {
	q, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || q < 1 {
		return 1
	}
	return q
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return ""
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
