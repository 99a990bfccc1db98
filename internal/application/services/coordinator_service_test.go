package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/miqyas/sizecore-go/internal/domain/events"
	"github.com/miqyas/sizecore-go/internal/domain/widget"
	"github.com/miqyas/sizecore-go/internal/infrastructure/observability/logging"
	"github.com/miqyas/sizecore-go/internal/infrastructure/observability/performance"
	"github.com/miqyas/sizecore-go/internal/infrastructure/page"
	"github.com/miqyas/sizecore-go/internal/infrastructure/transport"
	view "github.com/miqyas/sizecore-go/internal/presentation/widget"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu       sync.Mutex
	events   chan events.Event
	started  int
	stopped  int
	stopOnce sync.Once
	startErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan events.Event, 16)}
}

func (f *fakeTransport) Start(ctx context.Context, s *widget.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
	return f.startErr
}

func (f *fakeTransport) Stop() {
	f.mu.Lock()
	f.stopped++
	f.mu.Unlock()
	f.stopOnce.Do(func() { close(f.events) })
}

func (f *fakeTransport) Events() <-chan events.Event { return f.events }

func (f *fakeTransport) emit(ev events.Event) { f.events <- ev }

func (f *fakeTransport) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

func (f *fakeTransport) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

type fakePresenter struct {
	mu      sync.Mutex
	current view.ViewModel
	visible bool
	history []view.ViewModel
}

func (p *fakePresenter) show(vm view.ViewModel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = vm
	p.visible = true
	p.history = append(p.history, vm)
}

func (p *fakePresenter) ShowGreeting() { p.show(view.ViewModel{Kind: view.ViewGreeting}) }
func (p *fakePresenter) ShowConnecting(sessionID string) {
	p.show(view.ViewModel{Kind: view.ViewConnecting, SessionID: sessionID})
}
func (p *fakePresenter) ShowAwaitingPeer(sessionID, joinURL string) {
	p.show(view.ViewModel{Kind: view.ViewAwaitingPeer, SessionID: sessionID, JoinURL: joinURL})
}
func (p *fakePresenter) ShowInProgress(sessionID, frameURL string) {
	p.show(view.ViewModel{Kind: view.ViewInProgress, SessionID: sessionID, FrameURL: frameURL})
}
func (p *fakePresenter) ShowResult(result *widget.RecommendationResult, stored bool) {
	p.show(view.ViewModel{Kind: view.ViewResult, Result: result, Stored: stored})
}
func (p *fakePresenter) ShowError(code, message string) {
	p.show(view.ViewModel{Kind: view.ViewError, ErrorCode: code, ErrorMessage: message})
}
func (p *fakePresenter) Hide() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visible = false
	p.current = view.ViewModel{Kind: view.ViewHidden}
}
func (p *fakePresenter) Visible() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible
}
func (p *fakePresenter) Current() view.ViewModel {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}
func (p *fakePresenter) kindCount(kind view.ViewKind) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, vm := range p.history {
		if vm.Kind == kind {
			n++
		}
	}
	return n
}

type memResultStore struct {
	mu      sync.Mutex
	entries map[string]*widget.PersistedCache
	clears  int
}

func newMemResultStore() *memResultStore {
	return &memResultStore{entries: make(map[string]*widget.PersistedCache)}
}

func (m *memResultStore) Load(storeID string) (*widget.PersistedCache, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := m.entries[storeID]
	if entry == nil || entry.LastResult == nil {
		return nil, nil
	}
	return entry, nil
}

func (m *memResultStore) Save(entry *widget.PersistedCache) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.StoreID] = entry
	return nil
}

func (m *memResultStore) Clear(storeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry := m.entries[storeID]; entry != nil {
		entry.LastResult = nil
	}
	m.clears++
	return nil
}

type coordinatorFixture struct {
	coordinator *SessionCoordinator
	store       *widget.SessionStore
	cache       *memResultStore
	presenter   *fakePresenter
	transports  []*fakeTransport
	mu          sync.Mutex
}

func (f *coordinatorFixture) lastTransport() *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.transports) == 0 {
		return nil
	}
	return f.transports[len(f.transports)-1]
}

func (f *coordinatorFixture) transportCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.transports)
}

func newCoordinatorFixture(t *testing.T, cfg CoordinatorConfig) *coordinatorFixture {
	t.Helper()
	logger, err := logging.NewChanneledLogger(logging.DefaultLoggerConfig())
	require.NoError(t, err)

	if cfg.StoreID == "" {
		cfg.StoreID = "store-1"
	}
	if cfg.FlowBase == "" {
		cfg.FlowBase = "https://staging.miqyas.ai/guided-photos?source=salla"
	}

	f := &coordinatorFixture{
		store:     widget.NewSessionStore(),
		cache:     newMemResultStore(),
		presenter: &fakePresenter{},
	}
	factory := func(kind widget.TransportKind) transport.Transport {
		ft := newFakeTransport()
		f.mu.Lock()
		f.transports = append(f.transports, ft)
		f.mu.Unlock()
		return ft
	}
	f.coordinator = NewSessionCoordinator(
		cfg, f.store, f.cache, f.presenter, factory, nil,
		page.NewMemoryStorage(), logger, performance.NewTracker(),
	)
	t.Cleanup(f.coordinator.Shutdown)
	return f
}

func waitForView(t *testing.T, p *fakePresenter, kind view.ViewKind) view.ViewModel {
	t.Helper()
	require.Eventually(t, func() bool {
		return p.Current().Kind == kind
	}, 2*time.Second, 5*time.Millisecond, "waiting for view %s", kind)
	return p.Current()
}

func resultPayload(requestID, size string) map[string]any {
	return map[string]any{
		"request_id": requestID,
		"results":    map[string]any{"recommendedSize": size},
	}
}

func TestStartIsIdempotentWhileActive(t *testing.T) {
	f := newCoordinatorFixture(t, CoordinatorConfig{})

	first := f.coordinator.Start(context.Background(), widget.ViewportMobile, "prod-1")
	second := f.coordinator.Start(context.Background(), widget.ViewportMobile, "prod-1")

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, f.transportCount())
	assert.Equal(t, widget.TransportIframe, first.Transport)
	assert.Equal(t, view.ViewConnecting, f.presenter.Current().Kind)
}

func TestDesktopGetsSocketTransport(t *testing.T) {
	f := newCoordinatorFixture(t, CoordinatorConfig{})
	sess := f.coordinator.Start(context.Background(), widget.ViewportDesktop, "")
	assert.Equal(t, widget.TransportSocket, sess.Transport)
}

func TestTransportReadyMovesToInProgress(t *testing.T) {
	f := newCoordinatorFixture(t, CoordinatorConfig{})
	sess := f.coordinator.Start(context.Background(), widget.ViewportMobile, "prod-1")

	f.lastTransport().emit(events.Event{Kind: events.KindTransportReady, SessionID: sess.ID})

	vm := waitForView(t, f.presenter, view.ViewInProgress)
	assert.Equal(t, sess.ID, vm.SessionID)
	assert.Equal(t, widget.StateInProgress, f.store.Current().State)
}

func TestSessionCreatedMovesToAwaitingPeer(t *testing.T) {
	f := newCoordinatorFixture(t, CoordinatorConfig{})
	sess := f.coordinator.Start(context.Background(), widget.ViewportDesktop, "prod-2")

	f.lastTransport().emit(events.Event{Kind: events.KindSessionCreated, SessionID: sess.ID})

	vm := waitForView(t, f.presenter, view.ViewAwaitingPeer)
	assert.Contains(t, vm.JoinURL, "session_id="+sess.ID)
	assert.Contains(t, vm.JoinURL, "product_id=prod-2")
	assert.Equal(t, widget.StateAwaitingPeer, f.store.Current().State)

	f.lastTransport().emit(events.Event{Kind: events.KindPeerJoined, SessionID: sess.ID})
	waitForView(t, f.presenter, view.ViewInProgress)
}

func TestResultNormalizedPersistedAndRendered(t *testing.T) {
	f := newCoordinatorFixture(t, CoordinatorConfig{})
	sess := f.coordinator.Start(context.Background(), widget.ViewportDesktop, "")

	f.lastTransport().emit(events.Event{
		Kind:      events.KindSessionEnded,
		SessionID: sess.ID,
		Payload:   resultPayload("req-1", "M"),
	})

	vm := waitForView(t, f.presenter, view.ViewResult)
	require.NotNil(t, vm.Result)
	assert.Equal(t, "M", *vm.Result.RecommendedSize)
	assert.False(t, vm.Stored)
	assert.Equal(t, widget.StateResult, f.store.Current().State)
	assert.True(t, f.store.HasResults())

	entry, err := f.cache.Load("store-1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "M", *entry.LastResult.RecommendedSize)

	assert.Eventually(t, func() bool {
		return f.lastTransport().stopCount() > 0
	}, time.Second, 5*time.Millisecond, "transport torn down after result")
}

func TestConnectKeyTypeCarriedThroughToResult(t *testing.T) {
	f := newCoordinatorFixture(t, CoordinatorConfig{})
	sess := f.coordinator.Start(context.Background(), widget.ViewportMobile, "")
	ft := f.lastTransport()

	ft.emit(events.Event{
		Kind:      events.KindPlatformConnected,
		SessionID: sess.ID,
		Payload:   map[string]any{"key_type": "production"},
	})
	waitForView(t, f.presenter, view.ViewInProgress)
	assert.Equal(t, "production", f.store.Current().KeyType)

	// Result payload without key_type falls back to the connect value.
	ft.emit(events.Event{
		Kind:      events.KindRecommendation,
		SessionID: sess.ID,
		Payload:   resultPayload("req-3", "M"),
	})
	vm := waitForView(t, f.presenter, view.ViewResult)
	assert.Equal(t, "production", vm.Result.KeyType)
	assert.Equal(t, "production", f.store.Current().KeyType)

	entry, err := f.cache.Load("store-1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "production", entry.KeyType)
}

func TestDuplicateResultRendersOnce(t *testing.T) {
	f := newCoordinatorFixture(t, CoordinatorConfig{DedupWindow: time.Minute})
	sess := f.coordinator.Start(context.Background(), widget.ViewportMobile, "")
	ft := f.lastTransport()

	ft.emit(events.Event{Kind: events.KindRecommendation, SessionID: sess.ID, Payload: resultPayload("req-7", "S")})
	waitForView(t, f.presenter, view.ViewResult)

	// The platform relay repeats the same result moments later.
	f.coordinator.handleEvent(events.Event{Kind: events.KindPlatformResults, SessionID: sess.ID, Payload: resultPayload("req-7", "S")})

	assert.Equal(t, 1, f.presenter.kindCount(view.ViewResult))
}

func TestUnrecognizedResultShapeFails(t *testing.T) {
	f := newCoordinatorFixture(t, CoordinatorConfig{})
	sess := f.coordinator.Start(context.Background(), widget.ViewportMobile, "")

	f.lastTransport().emit(events.Event{
		Kind:      events.KindRecommendation,
		SessionID: sess.ID,
		Payload:   map[string]any{"odd": true},
	})

	vm := waitForView(t, f.presenter, view.ViewError)
	assert.Equal(t, ErrCodeBadResult, vm.ErrorCode)
}

func TestErrorThenRetryStartsFreshSession(t *testing.T) {
	f := newCoordinatorFixture(t, CoordinatorConfig{})
	sess := f.coordinator.Start(context.Background(), widget.ViewportDesktop, "prod-1")

	f.lastTransport().emit(events.Event{
		Kind: events.KindSessionError, SessionID: sess.ID,
		Code: "session_expired", Message: "expired",
	})
	vm := waitForView(t, f.presenter, view.ViewError)
	assert.Equal(t, "session_expired", vm.ErrorCode)

	retried := f.coordinator.Retry(context.Background())
	require.NotNil(t, retried)
	assert.NotEqual(t, sess.ID, retried.ID, "retry creates a new session id")
	assert.Equal(t, 2, f.transportCount())
	assert.Equal(t, view.ViewConnecting, f.presenter.Current().Kind)
}

func TestConnectTimeoutFailsExactlyOnce(t *testing.T) {
	f := newCoordinatorFixture(t, CoordinatorConfig{ConnectTimeout: 30 * time.Millisecond})
	sess := f.coordinator.Start(context.Background(), widget.ViewportDesktop, "")

	vm := waitForView(t, f.presenter, view.ViewError)
	assert.Equal(t, ErrCodeConnectTimeout, vm.ErrorCode)

	// A late success event must not resurrect the session.
	f.coordinator.handleEvent(events.Event{Kind: events.KindSessionCreated, SessionID: sess.ID})
	assert.Equal(t, view.ViewError, f.presenter.Current().Kind)
	assert.Equal(t, 1, f.presenter.kindCount(view.ViewError))
}

func TestOutOfOrderErrorBeforeCreated(t *testing.T) {
	f := newCoordinatorFixture(t, CoordinatorConfig{})
	sess := f.coordinator.Start(context.Background(), widget.ViewportDesktop, "")
	ft := f.lastTransport()

	ft.emit(events.Event{Kind: events.KindSessionError, SessionID: sess.ID, Code: "boom"})
	waitForView(t, f.presenter, view.ViewError)

	f.coordinator.handleEvent(events.Event{Kind: events.KindSessionCreated, SessionID: sess.ID})
	assert.Equal(t, view.ViewError, f.presenter.Current().Kind)
	assert.Equal(t, 0, f.presenter.kindCount(view.ViewAwaitingPeer))
}

func TestCloseSuppressesLateResult(t *testing.T) {
	f := newCoordinatorFixture(t, CoordinatorConfig{})
	sess := f.coordinator.Start(context.Background(), widget.ViewportMobile, "")

	f.coordinator.Close()
	assert.False(t, f.presenter.Visible())
	assert.True(t, f.store.ManuallyClosed())

	f.coordinator.handleEvent(events.Event{
		Kind: events.KindRecommendation, SessionID: sess.ID,
		Payload: resultPayload("req-9", "L"),
	})
	assert.False(t, f.presenter.Visible(), "late result must not re-open a closed widget")
}

func TestOpenRehydratesStoredResult(t *testing.T) {
	f := newCoordinatorFixture(t, CoordinatorConfig{})
	size := "XL"
	require.NoError(t, f.cache.Save(&widget.PersistedCache{
		StoreID:    "store-1",
		KeyType:    "upper_body",
		LastResult: &widget.RecommendationResult{RecommendedSize: &size},
	}))

	f.coordinator.Open()

	vm := f.presenter.Current()
	require.Equal(t, view.ViewResult, vm.Kind)
	assert.True(t, vm.Stored, "rehydrated result is marked stored")
	assert.Equal(t, "XL", *vm.Result.RecommendedSize)
	assert.True(t, f.store.HasResults())
	assert.Equal(t, 0, f.transportCount(), "rehydration never connects")
}

func TestOpenRehydratesInMemoryResultWithoutCache(t *testing.T) {
	logger, err := logging.NewChanneledLogger(logging.DefaultLoggerConfig())
	require.NoError(t, err)

	presenter := &fakePresenter{}
	store := widget.NewSessionStore()
	ft := newFakeTransport()
	coordinator := NewSessionCoordinator(
		CoordinatorConfig{StoreID: "store-1", FlowBase: "https://staging.miqyas.ai/guided-photos"},
		store, nil, presenter,
		func(widget.TransportKind) transport.Transport { return ft },
		nil, page.NewMemoryStorage(), logger, performance.NewTracker(),
	)
	t.Cleanup(coordinator.Shutdown)

	sess := coordinator.Start(context.Background(), widget.ViewportMobile, "")
	ft.emit(events.Event{
		Kind:      events.KindRecommendation,
		SessionID: sess.ID,
		Payload:   resultPayload("req-5", "S"),
	})
	waitForView(t, presenter, view.ViewResult)

	coordinator.Close()
	require.False(t, presenter.Visible())

	// With no durable cache the reopen still renders the held result.
	coordinator.Open()
	vm := presenter.Current()
	require.Equal(t, view.ViewResult, vm.Kind)
	assert.True(t, vm.Stored)
	assert.Equal(t, "S", *vm.Result.RecommendedSize)
}

func TestOpenWithoutResultShowsGreeting(t *testing.T) {
	f := newCoordinatorFixture(t, CoordinatorConfig{})
	f.coordinator.Open()
	assert.Equal(t, view.ViewGreeting, f.presenter.Current().Kind)
}

func TestRetakeClearsCacheAndReturnsToGreeting(t *testing.T) {
	f := newCoordinatorFixture(t, CoordinatorConfig{})
	sess := f.coordinator.Start(context.Background(), widget.ViewportMobile, "")
	f.lastTransport().emit(events.Event{
		Kind: events.KindRecommendation, SessionID: sess.ID,
		Payload: resultPayload("req-1", "M"),
	})
	waitForView(t, f.presenter, view.ViewResult)

	f.coordinator.Retake()

	assert.Equal(t, view.ViewGreeting, f.presenter.Current().Kind)
	assert.False(t, f.store.HasResults())
	entry, err := f.cache.Load("store-1")
	require.NoError(t, err)
	assert.Nil(t, entry, "durable cache cleared on retake")

	// Open after retake must not rehydrate.
	f.coordinator.Open()
	assert.Equal(t, view.ViewGreeting, f.presenter.Current().Kind)
}

func TestTransportStartFailureFails(t *testing.T) {
	logger, err := logging.NewChanneledLogger(logging.DefaultLoggerConfig())
	require.NoError(t, err)

	presenter := &fakePresenter{}
	store := widget.NewSessionStore()
	ft := newFakeTransport()
	ft.startErr = assert.AnError
	coordinator := NewSessionCoordinator(
		CoordinatorConfig{StoreID: "store-1", FlowBase: "https://staging.miqyas.ai/guided-photos"},
		store, newMemResultStore(), presenter,
		func(widget.TransportKind) transport.Transport { return ft },
		nil, page.NewMemoryStorage(), logger, performance.NewTracker(),
	)
	t.Cleanup(coordinator.Shutdown)

	coordinator.Start(context.Background(), widget.ViewportDesktop, "")

	vm := waitForView(t, presenter, view.ViewError)
	assert.Equal(t, ErrCodeConnectFailed, vm.ErrorCode)
}
