// Package page provides read-only access to the host page: a parsed HTML
// snapshot with cheap query helpers, the page location and viewport class,
// and the storage scopes the widget persists into.
package page

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// Document wraps a parsed HTML snapshot. Queries are side-effect free and
// cheap enough to run on every mutation tick.
type Document struct {
	root *html.Node
}

// ParseDocument parses an HTML document from a reader.
func ParseDocument(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	return &Document{root: root}, nil
}

// ParseDocumentString parses an HTML document from a string.
func ParseDocumentString(s string) (*Document, error) {
	return ParseDocument(strings.NewReader(s))
}

// Each walks every element node in document order. The callback returns
// false to stop the walk early.
func (d *Document) Each(fn func(n *html.Node) bool) {
	if d == nil || d.root == nil {
		return
	}
	walk(d.root, fn)
}

func walk(n *html.Node, fn func(n *html.Node) bool) bool {
	if n.Type == html.ElementNode {
		if !fn(n) {
			return false
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}

// ScriptContentsOfType returns the text content of every <script> element
// whose type attribute matches (case-insensitive).
func (d *Document) ScriptContentsOfType(scriptType string) []string {
	var out []string
	d.Each(func(n *html.Node) bool {
		if n.Data == "script" && strings.EqualFold(Attr(n, "type"), scriptType) {
			out = append(out, Text(n))
		}
		return true
	})
	return out
}

// FirstWithAttr returns the first element carrying any of the given
// attributes, or nil.
func (d *Document) FirstWithAttr(attrs ...string) *html.Node {
	var found *html.Node
	d.Each(func(n *html.Node) bool {
		for _, attr := range attrs {
			if _, ok := lookupAttr(n, attr); ok {
				found = n
				return false
			}
		}
		return true
	})
	return found
}

// Attr returns the value of an attribute on an element, or "".
func Attr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

// HasClass reports whether an element's class list contains the given class.
func HasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(Attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// Text returns the concatenated text content of a node's subtree.
func Text(n *html.Node) string {
	var sb strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return sb.String()
}

// IsClickable reports whether an element is a button or carries a button
// role; the detection keyword scan only considers these.
func IsClickable(n *html.Node) bool {
	if n.Data == "button" {
		return true
	}
	return strings.EqualFold(Attr(n, "role"), "button")
}
