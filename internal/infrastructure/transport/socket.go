package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/miqyas/sizecore-go/internal/domain/events"
	"github.com/miqyas/sizecore-go/internal/domain/widget"
	"github.com/miqyas/sizecore-go/internal/infrastructure/observability/logging"
	"github.com/miqyas/sizecore-go/internal/infrastructure/security"
)

// Named events on the session socket.
const (
	msgClientAnnounce = "client_announce"
	msgCreateSession  = "create_session"
	msgSessionCreated = "session_created"
	msgMobileJoined   = "mobile_joined"
	msgSessionEnded   = "session_ended"
	msgSessionError   = "session_error"
)

// socketMessage is the wire frame for both directions: a named event plus
// its data object.
type socketMessage struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// SocketConfig carries the connection parameters for a dual-device session.
type SocketConfig struct {
	URL            string
	StoreID        string
	ConnectTimeout time.Duration
	ExpiryMinutes  int
}

// SocketTransport runs the desktop side of a dual-device session over a
// websocket: it announces itself, asks the backend to create a session, and
// relays the session lifecycle to the coordinator as events.
type SocketTransport struct {
	cfg    SocketConfig
	logger *logging.ChanneledLogger

	mu       sync.Mutex
	conn     *websocket.Conn
	eventsCh chan events.Event
	stopped  bool
	done     chan struct{}
}

func NewSocketTransport(cfg SocketConfig, logger *logging.ChanneledLogger) *SocketTransport {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	return &SocketTransport{
		cfg:      cfg,
		logger:   logger,
		eventsCh: make(chan events.Event, 16),
		done:     make(chan struct{}),
	}
}

// Start dials the session backend and launches the read loop. A dial
// failure is returned synchronously; everything after the handshake arrives
// as events.
func (t *SocketTransport) Start(ctx context.Context, session *widget.Session) error {
	dialCtx, cancel := context.WithTimeout(ctx, t.cfg.ConnectTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: t.cfg.ConnectTimeout}
	conn, _, err := dialer.DialContext(dialCtx, t.cfg.URL, nil)
	if err != nil {
		t.logger.Transport().Error("Socket dial failed",
			"url", t.cfg.URL, "error", err.Error())
		return err
	}

	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		conn.Close()
		return nil
	}
	t.conn = conn
	t.mu.Unlock()

	go t.readLoop(session.ID)

	clientID := security.GenerateClientID()
	announce := socketMessage{
		Type: msgClientAnnounce,
		Data: map[string]any{
			"clientId":  clientID,
			"storeId":   t.cfg.StoreID,
			"productId": session.ProductID,
			"timestamp": time.Now().UnixMilli(),
		},
	}
	create := socketMessage{
		Type: msgCreateSession,
		Data: map[string]any{
			"storeId":       t.cfg.StoreID,
			"mode":          "dual_device",
			"expiryMinutes": t.cfg.ExpiryMinutes,
			"productId":     session.ProductID,
		},
	}
	if err := t.send(announce); err != nil {
		t.Stop()
		return err
	}
	if err := t.send(create); err != nil {
		t.Stop()
		return err
	}

	t.logger.Transport().Info("Socket transport connected",
		"sessionId", session.ID, "clientId", clientID)
	return nil
}

func (t *SocketTransport) send(msg socketMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return websocket.ErrCloseSent
	}
	return t.conn.WriteJSON(msg)
}

func (t *SocketTransport) readLoop(sessionID string) {
	defer close(t.done)
	for {
		t.mu.Lock()
		conn := t.conn
		stopped := t.stopped
		t.mu.Unlock()
		if stopped || conn == nil {
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			stopped := t.stopped
			t.mu.Unlock()
			if !stopped {
				t.emit(events.Event{
					Kind:      events.KindDisconnect,
					SessionID: sessionID,
					Message:   err.Error(),
				})
			}
			return
		}

		var msg socketMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.logger.Transport().Debug("Dropped unparsable socket frame", "error", err.Error())
			continue
		}
		t.dispatch(sessionID, msg)
	}
}

func (t *SocketTransport) dispatch(sessionID string, msg socketMessage) {
	switch msg.Type {
	case msgSessionCreated:
		t.emit(events.Event{Kind: events.KindSessionCreated, SessionID: sessionID, Payload: msg.Data})
	case msgMobileJoined:
		t.emit(events.Event{Kind: events.KindPeerJoined, SessionID: sessionID, Payload: msg.Data})
	case msgSessionEnded:
		t.emit(events.Event{Kind: events.KindSessionEnded, SessionID: sessionID, Payload: msg.Data})
	case msgSessionError:
		ev := events.Event{Kind: events.KindSessionError, SessionID: sessionID, Payload: msg.Data}
		if msg.Data != nil {
			if code, ok := msg.Data["code"].(string); ok {
				ev.Code = code
			}
			if m, ok := msg.Data["message"].(string); ok {
				ev.Message = m
			}
		}
		t.emit(ev)
	default:
		t.logger.Transport().Debug("Ignored unknown socket event", "type", msg.Type)
	}
}

func (t *SocketTransport) emit(ev events.Event) {
	t.mu.Lock()
	stopped := t.stopped
	t.mu.Unlock()
	if stopped {
		return
	}
	select {
	case t.eventsCh <- ev:
	default:
		t.logger.Transport().Warn("Dropped socket event, channel full", "kind", string(ev.Kind))
	}
}

func (t *SocketTransport) Events() <-chan events.Event {
	return t.eventsCh
}

// Stop closes the connection and waits for the read loop, then closes the
// event channel. Safe to call more than once and before Start.
func (t *SocketTransport) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	conn := t.conn
	t.conn = nil
	started := conn != nil
	t.mu.Unlock()

	if started {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
		<-t.done
	}
	close(t.eventsCh)
	t.logger.Transport().Info("Socket transport stopped")
}
