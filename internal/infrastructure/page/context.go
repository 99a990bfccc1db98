package page

import (
	"net/url"

	"github.com/miqyas/sizecore-go/internal/domain/widget"
)

// Context is a read-only view of the host page at one point in time:
// location, viewport class, the parsed document, and the short-lived
// storage scope shared across snapshots of the same page load.
type Context struct {
	URL      *url.URL
	Viewport widget.ViewportClass
	Doc      *Document
	Session  Storage
}

// NewContext builds a page context from a raw URL, viewport string and
// parsed document. An unparsable URL yields a context with a nil URL;
// detection treats that as "no URL signals".
func NewContext(rawURL, viewport string, doc *Document, session Storage) *Context {
	u, err := url.Parse(rawURL)
	if err != nil {
		u = nil
	}
	if session == nil {
		session = NewMemoryStorage()
	}
	return &Context{
		URL:      u,
		Viewport: widget.ParseViewportClass(viewport),
		Doc:      doc,
		Session:  session,
	}
}
