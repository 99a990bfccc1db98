package transport

import (
	"context"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/miqyas/sizecore-go/internal/domain/events"
	"github.com/miqyas/sizecore-go/internal/domain/widget"
	"github.com/miqyas/sizecore-go/internal/infrastructure/messaging"
	"github.com/miqyas/sizecore-go/internal/infrastructure/observability/logging"
	"github.com/miqyas/sizecore-go/internal/infrastructure/security"
)

// Outbound message types sent back into the frame.
const (
	typeParentReady      = "PARENT_READY"
	typeCameraPermission = "camera_permission_result"
)

// IframeConfig carries the static inputs an embedded-frame session needs.
// When TokenSecret is set, the flow URL carries a signed embed token binding
// the session to the store.
type IframeConfig struct {
	FlowBase    string
	StoreID     string
	PageURL     string
	Camera      CameraRequester
	TokenSecret string
	TokenTTL    time.Duration
}

// IframeTransport bridges the widget to the measurement flow running in an
// embedded frame. Inbound messages arrive through Deliver after origin
// checks; outbound replies queue in an outbox the host drains and posts
// into the frame.
type IframeTransport struct {
	cfg    IframeConfig
	guard  *messaging.OriginGuard
	logger *logging.ChanneledLogger

	mu            sync.Mutex
	session       *widget.Session
	flowURL       string
	cameraGranted bool
	outbox        []messaging.Envelope
	eventsCh      chan events.Event
	stopped       bool
}

func NewIframeTransport(cfg IframeConfig, guard *messaging.OriginGuard, logger *logging.ChanneledLogger) *IframeTransport {
	if cfg.Camera == nil {
		cfg.Camera = AutoGrantCamera(true)
	}
	return &IframeTransport{
		cfg:      cfg,
		guard:    guard,
		logger:   logger,
		eventsCh: make(chan events.Event, 16),
	}
}

// Start resolves camera permission and computes the flow URL. The frame
// signals readiness itself; no event is emitted until widget_ready arrives.
func (t *IframeTransport) Start(ctx context.Context, session *widget.Session) error {
	granted, err := t.cfg.Camera.RequestCamera(ctx)
	if err != nil {
		granted = false
		t.logger.Transport().Warn("Camera permission request failed", "error", err.Error())
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.session = session
	t.cameraGranted = granted
	t.flowURL = t.buildFlowURL(session, granted)

	t.logger.Transport().Info("Frame transport started",
		"sessionId", session.ID, "camera", granted)
	return nil
}

// FlowURL returns the URL the host should load into the frame. Empty before
// Start.
func (t *IframeTransport) FlowURL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flowURL
}

func (t *IframeTransport) buildFlowURL(session *widget.Session, camera bool) string {
	u, err := url.Parse(t.cfg.FlowBase)
	if err != nil {
		t.logger.Transport().Error("Invalid flow base URL", "url", t.cfg.FlowBase)
		return ""
	}
	q := u.Query()
	q.Set("session_id", session.ID)
	if session.ProductID != "" {
		q.Set("product_id", session.ProductID)
	}
	if t.cfg.StoreID != "" {
		q.Set("store_id", t.cfg.StoreID)
	}
	q.Set("embed", "1")
	q.Set("camera", strconv.FormatBool(camera))
	if t.cfg.TokenSecret != "" {
		token, err := security.MintEmbedToken([]byte(t.cfg.TokenSecret), t.cfg.StoreID, session.ID, t.cfg.TokenTTL)
		if err != nil {
			t.logger.Transport().Warn("Embed token mint failed", "error", err.Error())
		} else {
			q.Set("token", token)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Deliver feeds one raw frame message through validation, the origin guard,
// and the transport's own protocol handling. Invalid or untrusted messages
// are dropped.
func (t *IframeTransport) Deliver(raw []byte, origin string) {
	env, err := messaging.ParseEnvelope(raw, origin)
	if err != nil {
		t.logger.Messaging().Debug("Dropped malformed frame message", "error", err.Error())
		return
	}

	ev, ok := t.guard.Classify(env)
	if !ok {
		return
	}

	t.mu.Lock()
	if t.stopped || t.session == nil {
		t.mu.Unlock()
		return
	}
	ev.SessionID = t.session.ID

	switch ev.Kind {
	case events.KindWidgetReady:
		t.queueLocked(messaging.Envelope{
			Type: typeParentReady,
			Payload: map[string]any{
				"pageUrl":   t.cfg.PageURL,
				"productId": t.session.ProductID,
			},
		})
		out := events.Event{Kind: events.KindTransportReady, SessionID: t.session.ID}
		t.mu.Unlock()
		t.emit(out)
		t.emit(*ev)
		return
	case events.KindCameraRequest:
		t.queueLocked(messaging.Envelope{
			Type:    typeCameraPermission,
			Payload: map[string]any{"granted": t.cameraGranted},
		})
		t.mu.Unlock()
		t.emit(*ev)
		return
	}

	t.mu.Unlock()
	t.emit(*ev)
}

func (t *IframeTransport) queueLocked(env messaging.Envelope) {
	t.outbox = append(t.outbox, env)
}

// DrainOutbox returns and clears all queued outbound messages.
func (t *IframeTransport) DrainOutbox() []messaging.Envelope {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.outbox
	t.outbox = nil
	return out
}

// emit sends while holding the mutex. Stop closes eventsCh under the same
// lock, so the stopped re-check and the send must form one critical section
// or a racing Deliver could send on the closed channel.
func (t *IframeTransport) emit(ev events.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	select {
	case t.eventsCh <- ev:
	default:
		t.logger.Transport().Warn("Dropped event, channel full", "kind", string(ev.Kind))
	}
}

func (t *IframeTransport) Events() <-chan events.Event {
	return t.eventsCh
}

// Stop is idempotent.
func (t *IframeTransport) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	close(t.eventsCh)
	t.outbox = nil
	t.logger.Transport().Info("Frame transport stopped")
}
