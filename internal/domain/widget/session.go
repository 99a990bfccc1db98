// Package widget provides domain entities for the size recommendation
// session: lifecycle states, transport selection, and the canonical
// recommendation result shape that every transport normalizes into.
package widget

import "time"

// State represents the lifecycle state of a recommendation session.
type State string

const (
	StateIdle         State = "IDLE"
	StateConnecting   State = "CONNECTING"
	StateAwaitingPeer State = "AWAITING_PEER"
	StateInProgress   State = "IN_PROGRESS"
	StateResult       State = "RESULT"
	StateError        State = "ERROR"
	StateClosed       State = "CLOSED"
)

// TransportKind identifies the delivery mechanism chosen for a session.
// The choice is made once at session start and never changes mid-session.
type TransportKind string

const (
	TransportIframe TransportKind = "IFRAME"
	TransportSocket TransportKind = "SOCKET"
)

// ViewportClass is the device class of the host page at session start.
type ViewportClass string

const (
	ViewportDesktop ViewportClass = "desktop"
	ViewportTablet  ViewportClass = "tablet"
	ViewportMobile  ViewportClass = "mobile"
)

// ParseViewportClass maps a client-supplied viewport string to a known
// class, defaulting to desktop for anything unrecognized.
func ParseViewportClass(s string) ViewportClass {
	switch s {
	case string(ViewportMobile):
		return ViewportMobile
	case string(ViewportTablet):
		return ViewportTablet
	default:
		return ViewportDesktop
	}
}

// TransportFor returns the transport used for a given viewport class:
// desktop drives the dual-device socket flow, mobile and tablet embed the
// guided flow directly.
func TransportFor(v ViewportClass) TransportKind {
	if v == ViewportDesktop {
		return TransportSocket
	}
	return TransportIframe
}

// Session is one attempt to obtain a size recommendation for a product
// context. IDs are generated client-side and never reused across sessions.
type Session struct {
	ID            string        `json:"sessionId"`
	ProductID     string        `json:"productId,omitempty"`
	StoreID       string        `json:"storeId,omitempty"`
	Transport     TransportKind `json:"transport"`
	State         State         `json:"state"`
	LastRequestID string        `json:"lastRequestId,omitempty"`
	KeyType       string        `json:"keyType,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// NewSession creates a session in CONNECTING state with its transport
// chosen from the viewport class.
func NewSession(id, productID, storeID string, viewport ViewportClass) *Session {
	return &Session{
		ID:        id,
		ProductID: productID,
		StoreID:   storeID,
		Transport: TransportFor(viewport),
		State:     StateConnecting,
		CreatedAt: time.Now().UTC(),
	}
}

// Active reports whether the session is still in flight, i.e. a second
// start must be a no-op.
func (s *Session) Active() bool {
	switch s.State {
	case StateConnecting, StateAwaitingPeer, StateInProgress:
		return true
	}
	return false
}

// Terminal reports whether the session has reached an end state.
func (s *Session) Terminal() bool {
	switch s.State {
	case StateResult, StateError, StateClosed:
		return true
	}
	return false
}
