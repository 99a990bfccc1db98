// Package widget renders the widget shell: exactly one view is visible at
// any time, derived from the session state the coordinator reports.
package widget

import (
	domain "github.com/miqyas/sizecore-go/internal/domain/widget"
)

// ViewKind names the mutually exclusive widget views.
type ViewKind string

const (
	ViewHidden       ViewKind = "hidden"
	ViewGreeting     ViewKind = "greeting"
	ViewConnecting   ViewKind = "connecting"
	ViewAwaitingPeer ViewKind = "awaiting_peer"
	ViewInProgress   ViewKind = "in_progress"
	ViewResult       ViewKind = "result"
	ViewError        ViewKind = "error"
)

// ViewModel is everything a view needs to render. Fields are populated per
// kind; unrelated fields stay zero.
type ViewModel struct {
	Kind      ViewKind `json:"kind"`
	SessionID string   `json:"sessionId,omitempty"`

	// Awaiting-peer: the URL the second device joins through, rendered as a
	// QR payload by the host.
	JoinURL string `json:"joinUrl,omitempty"`

	// In-progress on touch devices: the embedded flow URL.
	FrameURL string `json:"frameUrl,omitempty"`

	// Result view.
	Result *domain.RecommendationResult `json:"result,omitempty"`
	Stored bool                         `json:"stored,omitempty"`

	// Error view.
	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// Presenter is the rendering contract the coordinator drives. Implementations
// must tolerate repeated calls with identical content without flicker; the
// shell presenter skips re-rendering when nothing changed.
type Presenter interface {
	ShowGreeting()
	ShowConnecting(sessionID string)
	ShowAwaitingPeer(sessionID, joinURL string)
	ShowInProgress(sessionID, frameURL string)
	ShowResult(result *domain.RecommendationResult, stored bool)
	ShowError(code, message string)
	Hide()
	Visible() bool
	Current() ViewModel
}
