// Package container provides dependency injection for all singleton services
package container

import (
	"github.com/miqyas/sizecore-go/internal/application/services"
	"github.com/miqyas/sizecore-go/internal/domain/widget"
	"github.com/miqyas/sizecore-go/internal/infrastructure/messaging"
	"github.com/miqyas/sizecore-go/internal/infrastructure/observability/logging"
	"github.com/miqyas/sizecore-go/internal/infrastructure/observability/performance"
	"github.com/miqyas/sizecore-go/internal/infrastructure/page"
	"github.com/miqyas/sizecore-go/internal/infrastructure/persistence"
	"github.com/miqyas/sizecore-go/internal/infrastructure/tracking"
	"github.com/miqyas/sizecore-go/internal/infrastructure/transport"
	view "github.com/miqyas/sizecore-go/internal/presentation/widget"
	"github.com/miqyas/sizecore-go/pkg/config"
)

// Container holds all singleton services and infrastructure dependencies
type Container struct {
	Logger       *logging.ChanneledLogger
	PageState    *PageState
	SessionStore *widget.SessionStore
	SessionScope page.Storage
	Guard        *messaging.OriginGuard
	Beacon       *tracking.Beacon
	ResultCache  *persistence.ResultCache
	Presenter    *view.ShellPresenter
	PerfTracker  *performance.Tracker

	Coordinator *services.SessionCoordinator
	Injector    *services.InjectionController
	Returns     *services.ReturnService
}

// NewContainer creates and wires all singleton services. The result cache
// may be nil when no database is configured; the coordinator degrades to
// memory-only persistence.
func NewContainer(logger *logging.ChanneledLogger, cache *persistence.ResultCache) *Container {
	pageState := NewPageState()
	sessionStore := widget.NewSessionStore()
	sessionScope := page.NewMemoryStorage()
	guard := messaging.NewOriginGuard(config.FlowOrigin(), logger)
	beacon := tracking.NewBeacon(config.TrackClickEndpoint, config.TrackReturnEndpoint, logger)
	presenter := view.NewShellPresenter(config.StoreID, beacon, logger)
	perfTracker := performance.NewTracker()

	coordinator := services.NewSessionCoordinator(
		services.CoordinatorConfig{
			StoreID:        config.StoreID,
			FlowBase:       config.ExternalFlowBase,
			ConnectTimeout: config.SocketConnectTimeout,
			DedupWindow:    config.DedupWindow,
		},
		sessionStore,
		cacheOrNil(cache),
		presenter,
		defaultTransportFactory(pageState, guard, logger),
		beacon,
		sessionScope,
		logger,
		perfTracker,
	)

	injector := services.NewInjectionController(
		services.InjectionConfig{
			Debounce:    config.MutationDebounce,
			MaxAttempts: config.MaxInjectAttempts,
			BackoffBase: config.InjectBackoffBase,
			BackoffCap:  config.InjectBackoffCap,
		},
		func(ctx *page.Context, productID string) bool {
			// Mounting in the harness means the widget shell is renderable;
			// the anchor requirement is a parsed document.
			return ctx != nil && ctx.Doc != nil
		},
		logger,
	)

	return &Container{
		Logger:       logger,
		PageState:    pageState,
		SessionStore: sessionStore,
		SessionScope: sessionScope,
		Guard:        guard,
		Beacon:       beacon,
		ResultCache:  cache,
		Presenter:    presenter,
		PerfTracker:  perfTracker,
		Coordinator:  coordinator,
		Injector:     injector,
		Returns:      services.NewReturnService(config.StoreID, beacon, logger),
	}
}

// cacheOrNil avoids a typed-nil interface when no cache is configured.
func cacheOrNil(cache *persistence.ResultCache) services.ResultStore {
	if cache == nil {
		return nil
	}
	return cache
}

// defaultTransportFactory builds the production transports from config.
func defaultTransportFactory(pageState *PageState, guard *messaging.OriginGuard, logger *logging.ChanneledLogger) transport.Factory {
	return func(kind widget.TransportKind) transport.Transport {
		if kind == widget.TransportSocket {
			return transport.NewSocketTransport(transport.SocketConfig{
				URL:            config.SocketURL,
				StoreID:        config.StoreID,
				ConnectTimeout: config.SocketConnectTimeout,
				ExpiryMinutes:  config.SessionExpiryMinutes,
			}, logger)
		}
		return transport.NewIframeTransport(transport.IframeConfig{
			FlowBase:    config.ExternalFlowBase,
			StoreID:     config.StoreID,
			PageURL:     pageState.URL(),
			Camera:      transport.AutoGrantCamera(config.CameraAutoGrant),
			TokenSecret: config.EmbedTokenSecret,
			TokenTTL:    config.EmbedTokenTTL,
		}, guard, logger)
	}
}
