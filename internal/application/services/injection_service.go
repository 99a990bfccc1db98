package services

import (
	"sync"
	"time"

	"github.com/miqyas/sizecore-go/internal/domain/detect"
	"github.com/miqyas/sizecore-go/internal/infrastructure/observability/logging"
	"github.com/miqyas/sizecore-go/internal/infrastructure/page"
)

// MountFunc places the widget entry point into the page. It returns false
// when the anchor it mounts against is not present yet; the controller
// retries with backoff.
type MountFunc func(ctx *page.Context, productID string) bool

// InjectionConfig bounds the mount retry loop.
type InjectionConfig struct {
	Debounce    time.Duration
	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  int
}

// InjectionController decides when the widget mounts into the host page.
// It reacts to page signals, re-runs product detection, and retries
// mounting a bounded number of times per page.
type InjectionController struct {
	cfg    InjectionConfig
	mount  MountFunc
	logger *logging.ChanneledLogger

	mu         sync.Mutex
	pageCtx    *page.Context
	currentURL string
	productID  string
	attempts   int
	mounted    bool
	exhausted  bool
	debounce   *time.Timer
	retry      *time.Timer
	closed     bool
}

func NewInjectionController(cfg InjectionConfig, mount MountFunc, logger *logging.ChanneledLogger) *InjectionController {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 180 * time.Millisecond
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 4
	}
	return &InjectionController{cfg: cfg, mount: mount, logger: logger}
}

// Observe feeds one page signal with the page state it was observed on.
// Mutations are debounced so bursts coalesce into a single detection pass;
// the other signals trigger immediately.
func (ic *InjectionController) Observe(signal page.Signal, ctx *page.Context) {
	ic.mu.Lock()
	if ic.closed {
		ic.mu.Unlock()
		return
	}
	ic.pageCtx = ctx
	ic.resetOnNavigationLocked(ctx)

	if signal == page.SignalMutation {
		if ic.debounce != nil {
			ic.debounce.Stop()
		}
		ic.debounce = time.AfterFunc(ic.cfg.Debounce, ic.pass)
		ic.mu.Unlock()
		return
	}
	ic.mu.Unlock()
	ic.pass()
}

// resetOnNavigationLocked clears per-page state when the URL changed.
func (ic *InjectionController) resetOnNavigationLocked(ctx *page.Context) {
	u := ""
	if ctx != nil && ctx.URL != nil {
		u = ctx.URL.String()
	}
	if u == ic.currentURL {
		return
	}
	ic.currentURL = u
	ic.attempts = 0
	ic.mounted = false
	ic.exhausted = false
	ic.productID = ""
	if ic.retry != nil {
		ic.retry.Stop()
		ic.retry = nil
	}
	ic.logger.Inject().Debug("Page changed, injection state reset", "url", u)
}

// pass runs one detection and mount attempt. A page that does not detect as
// a product page yet still consumes an attempt and retries with backoff;
// storefront themes render the cart section asynchronously.
func (ic *InjectionController) pass() {
	ic.mu.Lock()
	ctx := ic.pageCtx
	if ic.closed || ctx == nil || ic.mounted || ic.exhausted {
		ic.mu.Unlock()
		return
	}

	if ic.attempts >= ic.cfg.MaxAttempts {
		ic.exhausted = true
		ic.mu.Unlock()
		ic.logger.Inject().Debug("Mount attempts exhausted", "url", ic.currentURL)
		return
	}
	ic.attempts++
	attempt := ic.attempts

	if ctx.Doc == nil || !detect.IsProductPage(ctx.Doc) {
		ic.mu.Unlock()
		ic.logger.Inject().Debug("Not a product page yet, retrying",
			"attempt", attempt, "url", ic.currentURL)
		ic.scheduleRetry(attempt)
		return
	}

	ic.productID = detect.ResolveProductID(ctx.Doc, ctx.URL)
	productID := ic.productID
	ic.mu.Unlock()

	if ic.mount(ctx, productID) {
		ic.mu.Lock()
		ic.mounted = true
		ic.mu.Unlock()
		ic.logger.Inject().Info("Widget mounted",
			"attempt", attempt, "productId", productID, "url", ic.currentURL)
		return
	}

	ic.logger.Inject().Debug("Mount attempt failed, retrying", "attempt", attempt)
	ic.scheduleRetry(attempt)
}

// scheduleRetry arms the backoff timer for the next pass.
func (ic *InjectionController) scheduleRetry(attempt int) {
	backoffSteps := attempt
	if backoffSteps > ic.cfg.BackoffCap {
		backoffSteps = ic.cfg.BackoffCap
	}
	delay := ic.cfg.BackoffBase * time.Duration(backoffSteps)

	ic.mu.Lock()
	if !ic.closed {
		if ic.retry != nil {
			ic.retry.Stop()
		}
		ic.retry = time.AfterFunc(delay, ic.pass)
	}
	ic.mu.Unlock()
}

// Mounted reports whether the widget is currently mounted on this page.
func (ic *InjectionController) Mounted() bool {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	return ic.mounted
}

// ProductID returns the product id resolved on the last detection pass.
func (ic *InjectionController) ProductID() string {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	return ic.productID
}

// Close cancels pending timers; no further passes run.
func (ic *InjectionController) Close() {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	ic.closed = true
	if ic.debounce != nil {
		ic.debounce.Stop()
	}
	if ic.retry != nil {
		ic.retry.Stop()
	}
}
