package detect

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"github.com/miqyas/sizecore-go/internal/infrastructure/page"
	"golang.org/x/net/html"
)

// urlProductPattern matches path segments like /p12345 or /p-12345.
var urlProductPattern = regexp.MustCompile(`/p-?(\d{4,})`)

// ResolveProductID tries every product id source in order of reliability:
// data attributes, hidden inputs, JSON-LD, then URL patterns. Returns ""
// when nothing matches.
func ResolveProductID(doc *page.Document, u *url.URL) string {
	if doc != nil {
		if id := productIDFromAttrs(doc); id != "" {
			return id
		}
		if id := productIDFromInputs(doc); id != "" {
			return id
		}
		if id := productIDFromJSONLD(doc); id != "" {
			return id
		}
	}
	return productIDFromURL(u)
}

func productIDFromAttrs(doc *page.Document) string {
	if n := doc.FirstWithAttr("data-product-id"); n != nil {
		return strings.TrimSpace(page.Attr(n, "data-product-id"))
	}
	return ""
}

func productIDFromInputs(doc *page.Document) string {
	var id string
	doc.Each(func(n *html.Node) bool {
		if n.Data != "input" {
			return true
		}
		name := page.Attr(n, "name")
		if name != "product_id" && name != "productId" {
			return true
		}
		if v := strings.TrimSpace(page.Attr(n, "value")); v != "" {
			id = v
			return false
		}
		return true
	})
	return id
}

func productIDFromJSONLD(doc *page.Document) string {
	for _, raw := range doc.ScriptContentsOfType(jsonLDType) {
		var data any
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			continue
		}
		items, ok := data.([]any)
		if !ok {
			items = []any{data}
		}
		for _, item := range items {
			obj, ok := item.(map[string]any)
			if !ok || !typeIsProduct(obj["@type"]) {
				continue
			}
			// productID is rarely the storefront's internal id, but sku is
			// a usable fallback for correlation.
			if id := stringField(obj, "productID"); id != "" {
				return id
			}
			if id := stringField(obj, "sku"); id != "" {
				return id
			}
		}
	}
	return ""
}

func productIDFromURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	if m := urlProductPattern.FindStringSubmatch(strings.ToLower(u.Path)); m != nil {
		return m[1]
	}
	q := u.Query()
	if v := q.Get("product_id"); v != "" {
		return v
	}
	return q.Get("productId")
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strings.TrimSpace(strings.TrimSuffix(jsonNumberString(v), ".0"))
	}
	return ""
}

func jsonNumberString(v float64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
