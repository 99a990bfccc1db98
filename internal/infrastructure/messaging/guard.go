package messaging

import (
	"strings"

	"github.com/miqyas/sizecore-go/internal/domain/events"
	"github.com/miqyas/sizecore-go/internal/infrastructure/observability/logging"
)

// Flow message types, checked against origin and source marker.
const (
	TypeWidgetReady      = "widget_ready"
	TypeRecommendation   = "size_recommendation"
	TypeFlowError        = "flow_error"
	TypeCloseWidget      = "close_widget"
	TypeCameraPermission = "camera_permission_request"
)

// Platform-reserved types. The embedding platform relays these through
// intermediate windows and does not preserve the originating origin, so the
// origin check is waived for exactly these three types.
const (
	TypePlatformConnected = "SALLA_CONNECTED"
	TypePlatformResults   = "SALLA_RESULTS"
	TypePlatformError     = "SALLA_ERROR"
)

// trustedSources are the `source` markers the flow stamps on its messages.
var trustedSources = map[string]bool{
	"miqyas":         true,
	"size-core-flow": true,
}

// OriginGuard classifies guarded envelopes into domain events. Messages
// that fail the origin or source check, and messages of unknown type, are
// dropped with a diagnostics log entry and no event.
type OriginGuard struct {
	flowOrigin string
	logger     *logging.ChanneledLogger
}

func NewOriginGuard(flowOrigin string, logger *logging.ChanneledLogger) *OriginGuard {
	return &OriginGuard{flowOrigin: flowOrigin, logger: logger}
}

// Classify maps an envelope to a domain event, or returns (nil, false) when
// the message must be ignored.
func (g *OriginGuard) Classify(env *Envelope) (*events.Event, bool) {
	if env == nil || env.Type == "" {
		return nil, false
	}

	switch env.Type {
	case TypePlatformConnected:
		return g.event(env, events.KindPlatformConnected), true
	case TypePlatformResults:
		return g.event(env, events.KindPlatformResults), true
	case TypePlatformError:
		return g.errorEvent(env, events.KindPlatformError), true
	}

	if !g.trusted(env) {
		g.debug("Dropped message from untrusted sender",
			"type", env.Type, "origin", env.Origin, "source", env.Source)
		return nil, false
	}

	switch env.Type {
	case TypeWidgetReady:
		return g.event(env, events.KindWidgetReady), true
	case TypeRecommendation:
		return g.event(env, events.KindRecommendation), true
	case TypeFlowError:
		return g.errorEvent(env, events.KindFlowError), true
	case TypeCloseWidget:
		return g.event(env, events.KindCloseRequest), true
	case TypeCameraPermission:
		return g.event(env, events.KindCameraRequest), true
	}

	g.debug("Ignored unknown message type", "type", env.Type, "origin", env.Origin)
	return nil, false
}

// trusted requires both the configured flow origin and a recognized source
// marker. Origins compare case-insensitively on scheme and host.
func (g *OriginGuard) trusted(env *Envelope) bool {
	if !strings.EqualFold(env.Origin, g.flowOrigin) {
		return false
	}
	return trustedSources[env.Source]
}

func (g *OriginGuard) event(env *Envelope, kind events.Kind) *events.Event {
	return &events.Event{
		Kind:    kind,
		Origin:  env.Origin,
		Payload: env.Payload,
	}
}

func (g *OriginGuard) errorEvent(env *Envelope, kind events.Kind) *events.Event {
	ev := g.event(env, kind)
	if env.Payload != nil {
		if code, ok := env.Payload["code"].(string); ok {
			ev.Code = code
		}
		if msg, ok := env.Payload["message"].(string); ok {
			ev.Message = msg
		}
		if msg, ok := env.Payload["error"].(string); ok && ev.Message == "" {
			ev.Message = msg
		}
	}
	return ev
}

func (g *OriginGuard) debug(msg string, args ...any) {
	if g.logger != nil {
		g.logger.Messaging().Debug(msg, args...)
	}
}
