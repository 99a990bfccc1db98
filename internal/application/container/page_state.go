package container

import (
	"sync"

	"github.com/miqyas/sizecore-go/internal/infrastructure/page"
)

// PageState holds the most recent page snapshot the host reported. Handlers
// replace it on navigation and mutation; transports read the current URL
// when announcing themselves to the flow.
type PageState struct {
	mu      sync.Mutex
	current *page.Context
}

func NewPageState() *PageState {
	return &PageState{}
}

func (ps *PageState) Set(ctx *page.Context) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.current = ctx
}

func (ps *PageState) Current() *page.Context {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.current
}

// URL returns the current page URL, or "" before the first snapshot.
func (ps *PageState) URL() string {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.current == nil || ps.current.URL == nil {
		return ""
	}
	return ps.current.URL.String()
}
