// Package transport connects a widget session to the measurement flow. Two
// implementations exist: an embedded-frame bridge for touch devices and a
// websocket client for desktop dual-device sessions. The coordinator only
// sees the Transport contract.
package transport

import (
	"context"

	"github.com/miqyas/sizecore-go/internal/domain/events"
	"github.com/miqyas/sizecore-go/internal/domain/widget"
)

// Transport carries one session's lifecycle. Start is non-blocking; all
// subsequent state arrives on Events. Stop is idempotent and closes the
// event channel.
type Transport interface {
	Start(ctx context.Context, session *widget.Session) error
	Stop()
	Events() <-chan events.Event
}

// Factory builds the transport for a session's transport kind. The
// coordinator takes a Factory so tests can substitute fakes.
type Factory func(kind widget.TransportKind) Transport

// CameraRequester is the host capability for asking the user for camera
// access before the flow loads.
type CameraRequester interface {
	RequestCamera(ctx context.Context) (bool, error)
}

// AutoGrantCamera is a CameraRequester that always answers with a fixed
// grant decision, used when the host pre-negotiates permission.
type AutoGrantCamera bool

func (a AutoGrantCamera) RequestCamera(context.Context) (bool, error) {
	return bool(a), nil
}
