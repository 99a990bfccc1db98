// Package events provides the closed set of widget event kinds that the
// session coordinator consumes, regardless of which transport produced them.
package events

// Kind identifies one of the recognized widget event kinds. Anything that
// does not classify into this set is dropped at the messaging boundary.
type Kind string

const (
	// Iframe-flow events (origin-checked at the message guard)
	KindWidgetReady    Kind = "widget_ready"
	KindRecommendation Kind = "size_recommendation"
	KindFlowError      Kind = "flow_error"
	KindCloseRequest   Kind = "close_widget"
	KindCameraRequest  Kind = "camera_permission_request"

	// Platform-reserved events (accepted from any origin, see messaging guard)
	KindPlatformConnected Kind = "platform_connected"
	KindPlatformResults   Kind = "platform_results"
	KindPlatformError     Kind = "platform_error"

	// Socket session events
	KindSessionCreated Kind = "session_created"
	KindPeerJoined     Kind = "peer_joined"
	KindSessionEnded   Kind = "session_ended"
	KindSessionError   Kind = "session_error"

	// Transport lifecycle
	KindTransportReady Kind = "transport_ready"
	KindConnectError   Kind = "connect_error"
	KindDisconnect     Kind = "disconnect"
)

// Event is a normalized inbound occurrence delivered to the coordinator.
// Payload carries the raw message body for kinds that need further
// normalization (results, errors); simple lifecycle kinds leave it nil.
type Event struct {
	Kind      Kind
	SessionID string
	Origin    string
	Payload   map[string]any
	Code      string
	Message   string
}

// IsResult reports whether this event carries a recommendation payload.
func (e Event) IsResult() bool {
	return e.Kind == KindRecommendation || e.Kind == KindPlatformResults || e.Kind == KindSessionEnded
}

// IsError reports whether this event represents a flow or transport failure.
func (e Event) IsError() bool {
	switch e.Kind {
	case KindFlowError, KindPlatformError, KindSessionError, KindConnectError:
		return true
	}
	return false
}
