// Package detect classifies host pages as product detail pages and resolves
// product identifiers from them. Heuristics are layered and ordered; each
// one is independently sufficient, and an error inside any check degrades
// to "did not match" rather than surfacing to the caller.
package detect

import (
	"encoding/json"
	"strings"

	"github.com/miqyas/sizecore-go/internal/infrastructure/page"
	"golang.org/x/net/html"
)

const jsonLDType = "application/ld+json"

// purchaseKeywords are the multilingual action labels that mark a clickable
// element as a purchase affordance.
var purchaseKeywords = []string{
	"add to cart",
	"buy now",
	"اشتري الآن",
	"أضف إلى السلة",
	"purchase",
	"checkout",
	"إضافة للسلة",
}

// storefrontCartLabels are the exact labels the storefront theme renders
// inside its add-to-cart component.
var storefrontCartLabels = []string{"add to cart", "إضافة للسلة"}

// productDataAttrs are attributes whose presence alone marks a product page.
var productDataAttrs = []string{"data-product-id", "data-sku", "data-product-slug"}

// IsProductPage reports whether the document looks like a product detail
// page. Checks run in order, first match wins; none of them are combined.
func IsProductPage(doc *page.Document) bool {
	if doc == nil {
		return false
	}
	if HasStructuredProduct(doc) {
		return true
	}
	if hasStorefrontCartButton(doc) {
		return true
	}
	if hasPurchaseKeyword(doc) {
		return true
	}
	return hasProductDataAttr(doc)
}

// HasStructuredProduct scans JSON-LD blocks for a Product-typed entry.
// Supported shapes: a single object or an array of objects, with @type as a
// case-insensitive string or array of type strings. Malformed JSON is
// skipped.
func HasStructuredProduct(doc *page.Document) bool {
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
			if !ok {
				continue
			}
			if typeIsProduct(obj["@type"]) {
				return true
			}
		}
	}
	return false
}

func typeIsProduct(t any) bool {
	switch v := t.(type) {
	case string:
		return strings.EqualFold(v, "product")
	case []any:
		for _, entry := range v {
			if s, ok := entry.(string); ok && strings.EqualFold(s, "product") {
				return true
			}
		}
	}
	return false
}

// hasStorefrontCartButton matches the specific storefront add-to-cart
// structure: a container div with the theme's button class holding a label
// span with one of the known cart labels.
func hasStorefrontCartButton(doc *page.Document) bool {
	found := false
	doc.Each(func(n *html.Node) bool {
		if n.Data != "div" || !page.HasClass(n, "s-add-product-button-main") {
			return true
		}
		for c := n.FirstChild; c != nil && !found; c = c.NextSibling {
			found = spanHasCartLabel(c)
		}
		return !found
	})
	return found
}

func spanHasCartLabel(n *html.Node) bool {
	if n.Type == html.ElementNode && n.Data == "span" && page.HasClass(n, "s-button-text") {
		txt := strings.ToLower(strings.TrimSpace(page.Text(n)))
		for _, label := range storefrontCartLabels {
			if txt == label {
				return true
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if spanHasCartLabel(c) {
			return true
		}
	}
	return false
}

// hasPurchaseKeyword scans clickable elements for any known purchase label.
func hasPurchaseKeyword(doc *page.Document) bool {
	found := false
	doc.Each(func(n *html.Node) bool {
		if !page.IsClickable(n) {
			return true
		}
		txt := strings.ToLower(strings.TrimSpace(page.Text(n)))
		for _, kw := range purchaseKeywords {
			if strings.Contains(txt, kw) {
				found = true
				return false
			}
		}
		return true
	})
	return found
}

func hasProductDataAttr(doc *page.Document) bool {
	return doc.FirstWithAttr(productDataAttrs...) != nil
}
