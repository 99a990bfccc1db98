package services

import (
	"sync"
	"testing"
	"time"

	"github.com/miqyas/sizecore-go/internal/infrastructure/observability/logging"
	"github.com/miqyas/sizecore-go/internal/infrastructure/page"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const productPageHTML = `<html><head>
<script type="application/ld+json">{"@type":"Product","productID":"4711"}</script>
</head><body><div class="s-add-product-button-main"><span class="s-button-text">Add to Cart</span></div></body></html>`

const plainPageHTML = `<html><body><h1>About us</h1></body></html>`

func serviceLogger(t *testing.T) *logging.ChanneledLogger {
	t.Helper()
	logger, err := logging.NewChanneledLogger(logging.DefaultLoggerConfig())
	require.NoError(t, err)
	return logger
}

func pageContext(t *testing.T, rawURL, html string) *page.Context {
	t.Helper()
	doc, err := page.ParseDocumentString(html)
	require.NoError(t, err)
	return page.NewContext(rawURL, "desktop", doc, nil)
}

type countingMount struct {
	mu       sync.Mutex
	calls    int
	failNext int
	products []string
}

func (m *countingMount) fn(ctx *page.Context, productID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.products = append(m.products, productID)
	if m.failNext > 0 {
		m.failNext--
		return false
	}
	return true
}

func (m *countingMount) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func TestInjectionMountsOnProductPage(t *testing.T) {
	mount := &countingMount{}
	ic := NewInjectionController(InjectionConfig{}, mount.fn, serviceLogger(t))
	defer ic.Close()

	ic.Observe(page.SignalPageShow, pageContext(t, "https://shop.example/p-4711", productPageHTML))

	assert.True(t, ic.Mounted())
	assert.Equal(t, 1, mount.callCount())
	assert.Equal(t, "4711", ic.ProductID())
}

func TestInjectionSkipsNonProductPage(t *testing.T) {
	mount := &countingMount{}
	ic := NewInjectionController(InjectionConfig{}, mount.fn, serviceLogger(t))
	defer ic.Close()

	ic.Observe(page.SignalPageShow, pageContext(t, "https://shop.example/about", plainPageHTML))

	assert.False(t, ic.Mounted())
	assert.Equal(t, 0, mount.callCount())
}

func TestInjectionRetriesWithBackoff(t *testing.T) {
	mount := &countingMount{failNext: 2}
	ic := NewInjectionController(InjectionConfig{
		BackoffBase: 5 * time.Millisecond,
	}, mount.fn, serviceLogger(t))
	defer ic.Close()

	ic.Observe(page.SignalPageShow, pageContext(t, "https://shop.example/p-4711", productPageHTML))

	require.Eventually(t, ic.Mounted, time.Second, 2*time.Millisecond)
	assert.Equal(t, 3, mount.callCount())
}

func TestInjectionRetriesWhileContentLoads(t *testing.T) {
	mount := &countingMount{}
	ic := NewInjectionController(InjectionConfig{
		MaxAttempts: 3,
		BackoffBase: 2 * time.Millisecond,
	}, mount.fn, serviceLogger(t))
	defer ic.Close()

	// Theme has not rendered the cart section yet: each failed detection
	// consumes an attempt and rearms the backoff timer.
	ic.Observe(page.SignalPageShow, pageContext(t, "https://shop.example/p-4711", plainPageHTML))
	time.Sleep(60 * time.Millisecond)

	// All attempts burned on detection; a late product page on the same URL
	// no longer mounts.
	ic.Observe(page.SignalVisibility, pageContext(t, "https://shop.example/p-4711", productPageHTML))
	assert.False(t, ic.Mounted())
	assert.Equal(t, 0, mount.callCount())
}

func TestInjectionStopsAfterMaxAttempts(t *testing.T) {
	mount := &countingMount{failNext: 100}
	ic := NewInjectionController(InjectionConfig{
		MaxAttempts: 3,
		BackoffBase: 2 * time.Millisecond,
	}, mount.fn, serviceLogger(t))
	defer ic.Close()

	ic.Observe(page.SignalPageShow, pageContext(t, "https://shop.example/p-4711", productPageHTML))

	assert.Eventually(t, func() bool {
		return mount.callCount() == 3 && !ic.Mounted()
	}, time.Second, 2*time.Millisecond)

	// Further signals on the same URL stay exhausted.
	ic.Observe(page.SignalVisibility, pageContext(t, "https://shop.example/p-4711", productPageHTML))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 3, mount.callCount())
}

func TestInjectionMutationSignalsDebounce(t *testing.T) {
	mount := &countingMount{}
	ic := NewInjectionController(InjectionConfig{
		Debounce: 30 * time.Millisecond,
	}, mount.fn, serviceLogger(t))
	defer ic.Close()

	ctx := pageContext(t, "https://shop.example/p-4711", productPageHTML)
	for i := 0; i < 5; i++ {
		ic.Observe(page.SignalMutation, ctx)
	}
	assert.Equal(t, 0, mount.callCount(), "no pass before the debounce elapses")

	require.Eventually(t, ic.Mounted, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, mount.callCount(), "burst coalesces into one pass")
}

func TestInjectionNavigationResetsState(t *testing.T) {
	mount := &countingMount{}
	ic := NewInjectionController(InjectionConfig{}, mount.fn, serviceLogger(t))
	defer ic.Close()

	ic.Observe(page.SignalPageShow, pageContext(t, "https://shop.example/p-1111", productPageHTML))
	require.True(t, ic.Mounted())

	// Same URL: already mounted, no second mount.
	ic.Observe(page.SignalVisibility, pageContext(t, "https://shop.example/p-1111", productPageHTML))
	assert.Equal(t, 1, mount.callCount())

	// New URL: state resets and the widget mounts again.
	ic.Observe(page.SignalNavigation, pageContext(t, "https://shop.example/p-2222", productPageHTML))
	assert.True(t, ic.Mounted())
	assert.Equal(t, 2, mount.callCount())

	// Navigating to a non-product page unmounts logically.
	ic.Observe(page.SignalNavigation, pageContext(t, "https://shop.example/cart", plainPageHTML))
	assert.False(t, ic.Mounted())
}

func TestInjectionCloseCancelsPendingWork(t *testing.T) {
	mount := &countingMount{}
	ic := NewInjectionController(InjectionConfig{
		Debounce: 10 * time.Millisecond,
	}, mount.fn, serviceLogger(t))

	ic.Observe(page.SignalMutation, pageContext(t, "https://shop.example/p-4711", productPageHTML))
	ic.Close()

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, mount.callCount())

	ic.Observe(page.SignalPageShow, pageContext(t, "https://shop.example/p-4711", productPageHTML))
	assert.Equal(t, 0, mount.callCount(), "signals after close are ignored")
}
