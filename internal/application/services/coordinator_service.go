// Package services provides application-level services that orchestrate the
// widget lifecycle: session coordination, injection scheduling, and the
// storefront return path.
package services

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/miqyas/sizecore-go/internal/domain/events"
	"github.com/miqyas/sizecore-go/internal/domain/widget"
	"github.com/miqyas/sizecore-go/internal/infrastructure/messaging"
	"github.com/miqyas/sizecore-go/internal/infrastructure/observability/logging"
	"github.com/miqyas/sizecore-go/internal/infrastructure/observability/performance"
	"github.com/miqyas/sizecore-go/internal/infrastructure/page"
	"github.com/miqyas/sizecore-go/internal/infrastructure/security"
	"github.com/miqyas/sizecore-go/internal/infrastructure/tracking"
	"github.com/miqyas/sizecore-go/internal/infrastructure/transport"
	view "github.com/miqyas/sizecore-go/internal/presentation/widget"
)

// Error codes surfaced to the error view.
const (
	ErrCodeConnectTimeout = "connect_timeout"
	ErrCodeConnectFailed  = "connect_failed"
	ErrCodeDisconnected   = "disconnected"
	ErrCodeBadResult      = "unrecognized_result"
)

// ResultStore is the durable cache contract the coordinator persists
// results through.
type ResultStore interface {
	Load(storeID string) (*widget.PersistedCache, error)
	Save(entry *widget.PersistedCache) error
	Clear(storeID string) error
}

// flowURLer is implemented by transports that expose an embeddable flow URL.
type flowURLer interface {
	FlowURL() string
}

// CoordinatorConfig carries the static parameters of session coordination.
type CoordinatorConfig struct {
	StoreID        string
	FlowBase       string
	PageURL        string
	ConnectTimeout time.Duration
	DedupWindow    time.Duration
}

// SessionCoordinator owns the session state machine. All transitions funnel
// through it; transports report raw events and the presenter renders
// whatever state comes out.
type SessionCoordinator struct {
	cfg       CoordinatorConfig
	store     *widget.SessionStore
	cache     ResultStore
	presenter view.Presenter
	factory   transport.Factory
	beacon    *tracking.Beacon
	scope     page.Storage
	logger    *logging.ChanneledLogger
	perf      *performance.Tracker

	mu            sync.Mutex
	transport     transport.Transport
	connectTimer  *time.Timer
	lastViewport  widget.ViewportClass
	lastProductID string
}

func NewSessionCoordinator(
	cfg CoordinatorConfig,
	store *widget.SessionStore,
	cache ResultStore,
	presenter view.Presenter,
	factory transport.Factory,
	beacon *tracking.Beacon,
	scope page.Storage,
	logger *logging.ChanneledLogger,
	perf *performance.Tracker,
) *SessionCoordinator {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = 3 * time.Second
	}
	return &SessionCoordinator{
		cfg:       cfg,
		store:     store,
		cache:     cache,
		presenter: presenter,
		factory:   factory,
		beacon:    beacon,
		scope:     scope,
		logger:    logger,
		perf:      perf,
	}
}

// Open handles an explicit user open: it lifts the manually-closed
// suppression, rehydrates a stored result when one exists, and otherwise
// shows the greeting.
func (c *SessionCoordinator) Open() {
	c.store.ClearClosed()

	if c.beacon != nil {
		c.beacon.TrackClick(tracking.ClickPayload{
			Action:     tracking.ActionWidgetOpen,
			StoreID:    c.cfg.StoreID,
			ProductURL: c.cfg.PageURL,
		})
	}

	if sess := c.store.Current(); sess != nil && sess.Active() {
		return
	}

	if entry := c.loadCached(); entry != nil {
		c.store.RememberResult(entry.LastResult)
		c.presenter.ShowResult(entry.LastResult, true)
		c.logger.Session().Info("Rehydrated stored result", "storeId", c.cfg.StoreID)
		return
	}

	// No durable cache, but a result from this page load may still be held
	// in memory.
	if result := c.store.LastResult(); result != nil {
		c.presenter.ShowResult(result, true)
		c.logger.Session().Info("Rehydrated in-memory result", "storeId", c.cfg.StoreID)
		return
	}

	c.presenter.ShowGreeting()
}

func (c *SessionCoordinator) loadCached() *widget.PersistedCache {
	if c.cache == nil {
		return nil
	}
	entry, err := c.cache.Load(c.cfg.StoreID)
	if err != nil {
		c.logger.Session().Warn("Cached result load failed", "error", err.Error())
		return nil
	}
	if entry == nil || entry.LastResult == nil {
		return nil
	}
	return entry
}

// Start begins a new session for the given viewport and product. A second
// Start while a session is in flight is a no-op.
func (c *SessionCoordinator) Start(ctx context.Context, viewport widget.ViewportClass, productID string) *widget.Session {
	marker := c.perf.StartOperation("session:start", c.cfg.StoreID)
	defer marker.Complete()

	c.mu.Lock()
	if sess := c.store.Current(); sess != nil && sess.Active() {
		c.mu.Unlock()
		c.logger.Session().Debug("Start ignored, session already active", "sessionId", sess.ID)
		return sess
	}

	sess := widget.NewSession(security.GenerateSessionID(), productID, c.cfg.StoreID, viewport)
	c.store.SetCurrent(sess)
	c.lastViewport = viewport
	c.lastProductID = productID
	c.scope.Set(page.SessionStorageKey, sess.ID)

	t := c.factory(sess.Transport)
	c.transport = t
	c.armConnectTimerLocked(sess.ID)
	c.mu.Unlock()

	c.logger.Session().Info("Session started",
		"sessionId", sess.ID, "transport", string(sess.Transport), "productId", productID)
	c.presenter.ShowConnecting(sess.ID)

	go c.pump(t, sess.ID)
	if err := t.Start(ctx, sess); err != nil {
		c.handleEvent(events.Event{
			Kind:      events.KindConnectError,
			SessionID: sess.ID,
			Code:      ErrCodeConnectFailed,
			Message:   err.Error(),
		})
	}
	return sess
}

// armConnectTimerLocked schedules the connect deadline; a session still in
// CONNECTING when it fires transitions to ERROR exactly once.
func (c *SessionCoordinator) armConnectTimerLocked(sessionID string) {
	if c.connectTimer != nil {
		c.connectTimer.Stop()
	}
	c.connectTimer = time.AfterFunc(c.cfg.ConnectTimeout, func() {
		c.handleEvent(events.Event{
			Kind:      events.KindConnectError,
			SessionID: sessionID,
			Code:      ErrCodeConnectTimeout,
			Message:   "connection timed out",
		})
	})
}

// pump relays transport events until the transport closes its channel.
func (c *SessionCoordinator) pump(t transport.Transport, sessionID string) {
	for ev := range t.Events() {
		if ev.SessionID == "" {
			ev.SessionID = sessionID
		}
		c.handleEvent(ev)
	}
}

// handleEvent applies one event to the state machine. Events for sessions
// that are no longer current, or that arrive after a terminal state, are
// dropped.
func (c *SessionCoordinator) handleEvent(ev events.Event) {
	c.mu.Lock()
	sess := c.store.Current()
	if sess == nil || sess.ID != ev.SessionID || sess.Terminal() {
		c.mu.Unlock()
		c.logger.Session().Debug("Dropped stale event",
			"kind", string(ev.Kind), "sessionId", ev.SessionID)
		return
	}

	switch ev.Kind {
	case events.KindTransportReady, events.KindPlatformConnected:
		c.stopConnectTimerLocked()
		sess.State = widget.StateInProgress
		if kt, ok := ev.Payload["key_type"].(string); ok && kt != "" {
			sess.KeyType = kt
		}
		frameURL := ""
		if f, ok := c.transport.(flowURLer); ok {
			frameURL = f.FlowURL()
		}
		c.mu.Unlock()
		if !c.store.ManuallyClosed() {
			c.presenter.ShowInProgress(sess.ID, frameURL)
		}

	case events.KindSessionCreated:
		c.stopConnectTimerLocked()
		sess.State = widget.StateAwaitingPeer
		joinURL := c.joinURL(sess, ev.Payload)
		c.mu.Unlock()
		if !c.store.ManuallyClosed() {
			c.presenter.ShowAwaitingPeer(sess.ID, joinURL)
		}

	case events.KindPeerJoined:
		c.stopConnectTimerLocked()
		sess.State = widget.StateInProgress
		c.mu.Unlock()
		if !c.store.ManuallyClosed() {
			c.presenter.ShowInProgress(sess.ID, "")
		}

	case events.KindRecommendation, events.KindPlatformResults, events.KindSessionEnded:
		c.handleResultLocked(sess, ev)

	case events.KindFlowError, events.KindPlatformError, events.KindSessionError, events.KindConnectError:
		c.failLocked(sess, ev.Code, ev.Message)

	case events.KindDisconnect:
		c.failLocked(sess, ErrCodeDisconnected, ev.Message)

	case events.KindCloseRequest:
		c.mu.Unlock()
		c.Close()

	default:
		c.mu.Unlock()
	}
}

// handleResultLocked normalizes, dedups, persists and renders a result.
// Entered with c.mu held; releases it.
func (c *SessionCoordinator) handleResultLocked(sess *widget.Session, ev events.Event) {
	marker := c.perf.StartOperation("session:result", c.cfg.StoreID)
	defer marker.Complete()

	result, err := widget.NormalizeResult(ev.Payload)
	if err != nil {
		marker.SetSuccess(false)
		c.logger.Session().Warn("Result payload rejected",
			"sessionId", sess.ID, "kind", string(ev.Kind), "error", err.Error())
		c.failLocked(sess, ErrCodeBadResult, "result payload not recognized")
		return
	}

	// The backend announces key_type on connect; result payloads may omit it.
	if result.KeyType == "" {
		result.KeyType = sess.KeyType
	}

	c.stopConnectTimerLocked()
	sess.State = widget.StateResult
	sess.LastRequestID = result.RequestID
	sess.KeyType = result.KeyType
	t := c.transport
	c.transport = nil
	c.mu.Unlock()

	if t != nil {
		t.Stop()
	}

	c.store.RememberResult(result)
	if c.cache != nil {
		if err := c.cache.Save(&widget.PersistedCache{
			StoreID:    c.cfg.StoreID,
			KeyType:    result.KeyType,
			LastResult: result,
		}); err != nil {
			c.logger.Session().Warn("Result persist failed", "error", err.Error())
		}
	}

	if c.beacon != nil {
		c.beacon.TrackClick(tracking.ClickPayload{
			Action:    tracking.ActionRecommendationReceived,
			SessionID: sess.ID,
			ProductID: sess.ProductID,
			StoreID:   c.cfg.StoreID,
		})
	}

	if !c.store.ShouldRender(result.RequestID, time.Now(), c.cfg.DedupWindow) {
		c.logger.Session().Debug("Duplicate result suppressed",
			"sessionId", sess.ID, "requestId", result.RequestID)
		return
	}
	if c.store.ManuallyClosed() {
		c.logger.Session().Debug("Result arrived after manual close", "sessionId", sess.ID)
		return
	}
	c.presenter.ShowResult(result, false)
	c.logger.Session().Info("Result rendered",
		"sessionId", sess.ID, "requestId", result.RequestID)
}

// failLocked moves an active session to ERROR. Entered with c.mu held;
// releases it. Later failures for the same session are dropped by the
// terminal-state check in handleEvent.
func (c *SessionCoordinator) failLocked(sess *widget.Session, code, message string) {
	c.stopConnectTimerLocked()
	sess.State = widget.StateError
	t := c.transport
	c.transport = nil
	c.mu.Unlock()

	if t != nil {
		t.Stop()
	}
	c.logger.Session().Warn("Session failed",
		"sessionId", sess.ID, "code", code, "message", message)
	if !c.store.ManuallyClosed() {
		c.presenter.ShowError(code, message)
	}
}

func (c *SessionCoordinator) stopConnectTimerLocked() {
	if c.connectTimer != nil {
		c.connectTimer.Stop()
		c.connectTimer = nil
	}
}

// joinURL derives the URL the second device opens. The backend may supply
// one; otherwise it is built from the flow base and session id.
func (c *SessionCoordinator) joinURL(sess *widget.Session, payload map[string]any) string {
	if payload != nil {
		for _, key := range []string{"joinUrl", "join_url", "url"} {
			if s, ok := payload[key].(string); ok && s != "" {
				return s
			}
		}
	}
	u, err := url.Parse(c.cfg.FlowBase)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("session_id", sess.ID)
	if sess.ProductID != "" {
		q.Set("product_id", sess.ProductID)
	}
	if c.cfg.StoreID != "" {
		q.Set("store_id", c.cfg.StoreID)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Retry restarts after an error with the same viewport and product.
func (c *SessionCoordinator) Retry(ctx context.Context) *widget.Session {
	c.mu.Lock()
	sess := c.store.Current()
	if sess == nil || sess.State != widget.StateError {
		c.mu.Unlock()
		return sess
	}
	viewport := c.lastViewport
	productID := c.lastProductID
	c.store.ClearCurrent()
	c.mu.Unlock()
	return c.Start(ctx, viewport, productID)
}

// Retake discards the stored result and returns to the greeting so the
// user can run the flow again.
func (c *SessionCoordinator) Retake() {
	c.mu.Lock()
	t := c.transport
	c.transport = nil
	c.stopConnectTimerLocked()
	c.mu.Unlock()
	if t != nil {
		t.Stop()
	}

	if c.cache != nil {
		if err := c.cache.Clear(c.cfg.StoreID); err != nil {
			c.logger.Session().Warn("Cache clear failed", "error", err.Error())
		}
	}
	c.store.Reset()
	c.scope.Delete(page.SessionStorageKey)
	c.presenter.ShowGreeting()
	c.logger.Session().Info("Retake, stored result cleared", "storeId", c.cfg.StoreID)
}

// Close is a user-initiated close: the session ends, the transport is torn
// down, and late events stay suppressed until the next explicit Open.
func (c *SessionCoordinator) Close() {
	c.mu.Lock()
	sess := c.store.Current()
	if sess != nil {
		sess.State = widget.StateClosed
	}
	t := c.transport
	c.transport = nil
	c.stopConnectTimerLocked()
	c.mu.Unlock()

	if t != nil {
		t.Stop()
	}
	c.store.MarkClosed()
	c.scope.Delete(page.SessionStorageKey)
	c.presenter.Hide()

	if c.beacon != nil {
		c.beacon.TrackClick(tracking.ClickPayload{
			Action:  tracking.ActionWidgetClosed,
			StoreID: c.cfg.StoreID,
		})
	}
	c.logger.Session().Info("Widget closed by user")
}

// frameDeliverer is implemented by transports that accept raw inbound frame
// messages.
type frameDeliverer interface {
	Deliver(raw []byte, origin string)
}

// outboxDrainer is implemented by transports that queue outbound frame
// messages for the host to post into the flow.
type outboxDrainer interface {
	DrainOutbox() []messaging.Envelope
}

// DeliverFrameMessage routes a raw frame message to the live transport.
// Returns false when no frame-capable transport is active.
func (c *SessionCoordinator) DeliverFrameMessage(raw []byte, origin string) bool {
	c.mu.Lock()
	t := c.transport
	c.mu.Unlock()
	d, ok := t.(frameDeliverer)
	if !ok {
		return false
	}
	d.Deliver(raw, origin)
	return true
}

// DrainOutbox collects outbound frame messages queued by the live
// transport.
func (c *SessionCoordinator) DrainOutbox() []messaging.Envelope {
	c.mu.Lock()
	t := c.transport
	c.mu.Unlock()
	d, ok := t.(outboxDrainer)
	if !ok {
		return nil
	}
	return d.DrainOutbox()
}

// Shutdown tears down any live transport without marking a user close.
func (c *SessionCoordinator) Shutdown() {
	c.mu.Lock()
	t := c.transport
	c.transport = nil
	c.stopConnectTimerLocked()
	c.mu.Unlock()
	if t != nil {
		t.Stop()
	}
}
