package widget

import (
	"reflect"
	"sync"

	domain "github.com/miqyas/sizecore-go/internal/domain/widget"
	"github.com/miqyas/sizecore-go/internal/infrastructure/observability/logging"
	"github.com/miqyas/sizecore-go/internal/infrastructure/tracking"
)

// ShellPresenter holds the current view model and renders it to an HTML
// fragment on demand. It tracks visibility, suppresses no-op re-renders,
// and reports display beacons.
type ShellPresenter struct {
	mu      sync.Mutex
	current ViewModel
	visible bool

	storeID string
	beacon  *tracking.Beacon
	logger  *logging.ChanneledLogger
}

func NewShellPresenter(storeID string, beacon *tracking.Beacon, logger *logging.ChanneledLogger) *ShellPresenter {
	return &ShellPresenter{
		storeID: storeID,
		beacon:  beacon,
		logger:  logger,
		current: ViewModel{Kind: ViewHidden},
	}
}

func (p *ShellPresenter) ShowGreeting() {
	p.render(ViewModel{Kind: ViewGreeting}, "")
}

func (p *ShellPresenter) ShowConnecting(sessionID string) {
	p.render(ViewModel{Kind: ViewConnecting, SessionID: sessionID}, tracking.ActionConnectingDisplayed)
}

func (p *ShellPresenter) ShowAwaitingPeer(sessionID, joinURL string) {
	p.render(ViewModel{Kind: ViewAwaitingPeer, SessionID: sessionID, JoinURL: joinURL}, "")
}

func (p *ShellPresenter) ShowInProgress(sessionID, frameURL string) {
	p.render(ViewModel{Kind: ViewInProgress, SessionID: sessionID, FrameURL: frameURL}, tracking.ActionFlowLoaded)
}

func (p *ShellPresenter) ShowResult(result *domain.RecommendationResult, stored bool) {
	action := tracking.ActionResultDisplayed
	if result == nil || (result.RecommendedSize == nil && result.Measurements == nil) {
		action = tracking.ActionEmptyStateShown
	}
	p.render(ViewModel{Kind: ViewResult, Result: result, Stored: stored}, action)
}

func (p *ShellPresenter) ShowError(code, message string) {
	p.render(ViewModel{Kind: ViewError, ErrorCode: code, ErrorMessage: message}, tracking.ActionErrorDisplayed)
}

func (p *ShellPresenter) Hide() {
	p.mu.Lock()
	wasVisible := p.visible
	p.visible = false
	p.current = ViewModel{Kind: ViewHidden}
	p.mu.Unlock()
	if wasVisible {
		p.logger.Widget().Debug("Widget hidden")
	}
}

func (p *ShellPresenter) Visible() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible
}

func (p *ShellPresenter) Current() ViewModel {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// HTML renders the current view as a fragment. Hidden yields "".
func (p *ShellPresenter) HTML() string {
	return RenderView(p.Current())
}

// render swaps in a new view unless the widget is already showing exactly
// the same content. Beacons fire only on actual swaps.
func (p *ShellPresenter) render(vm ViewModel, action string) {
	p.mu.Lock()
	if p.visible && reflect.DeepEqual(p.current, vm) {
		p.mu.Unlock()
		return
	}
	p.current = vm
	p.visible = true
	p.mu.Unlock()

	p.logger.Widget().Debug("Widget view changed",
		"view", string(vm.Kind), "sessionId", vm.SessionID)
	if action != "" && p.beacon != nil {
		p.beacon.TrackClick(tracking.ClickPayload{
			Action:    action,
			SessionID: vm.SessionID,
			StoreID:   p.storeID,
		})
	}
}
