package transport

import (
	"context"
	"net/url"
	"sync"
	"testing"

	"github.com/miqyas/sizecore-go/internal/domain/events"
	"github.com/miqyas/sizecore-go/internal/domain/widget"
	"github.com/miqyas/sizecore-go/internal/infrastructure/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFlowBase = "https://staging.miqyas.ai/guided-photos?source=salla"
const testFlowOrigin = "https://staging.miqyas.ai"

func newTestIframe(t *testing.T, cfg IframeConfig) *IframeTransport {
	t.Helper()
	logger := testLogger(t)
	if cfg.FlowBase == "" {
		cfg.FlowBase = testFlowBase
	}
	guard := messaging.NewOriginGuard(testFlowOrigin, logger)
	return NewIframeTransport(cfg, guard, logger)
}

func TestIframeTransportFlowURL(t *testing.T) {
	tr := newTestIframe(t, IframeConfig{
		StoreID: "store-7",
		Camera:  AutoGrantCamera(true),
	})
	sess := widget.NewSession("sess-1", "prod-9", "store-7", widget.ViewportMobile)
	require.NoError(t, tr.Start(context.Background(), sess))

	u, err := url.Parse(tr.FlowURL())
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "salla", q.Get("source"), "base query params survive")
	assert.Equal(t, "sess-1", q.Get("session_id"))
	assert.Equal(t, "prod-9", q.Get("product_id"))
	assert.Equal(t, "store-7", q.Get("store_id"))
	assert.Equal(t, "1", q.Get("embed"))
	assert.Equal(t, "true", q.Get("camera"))
	assert.Empty(t, q.Get("token"), "no token without a secret")

	tr.Stop()
}

func TestIframeTransportFlowURLWithEmbedToken(t *testing.T) {
	tr := newTestIframe(t, IframeConfig{
		StoreID:     "store-7",
		TokenSecret: "test-secret",
	})
	sess := widget.NewSession("sess-2", "", "store-7", widget.ViewportMobile)
	require.NoError(t, tr.Start(context.Background(), sess))

	u, err := url.Parse(tr.FlowURL())
	require.NoError(t, err)
	assert.NotEmpty(t, u.Query().Get("token"))

	tr.Stop()
}

func TestIframeTransportWidgetReadyHandshake(t *testing.T) {
	tr := newTestIframe(t, IframeConfig{
		StoreID: "store-7",
		PageURL: "https://shop.example/p-12345",
	})
	sess := widget.NewSession("sess-3", "12345", "store-7", widget.ViewportMobile)
	require.NoError(t, tr.Start(context.Background(), sess))

	tr.Deliver([]byte(`{"type":"widget_ready","source":"miqyas"}`), testFlowOrigin)

	ev := expectEvent(t, tr.Events(), events.KindTransportReady)
	assert.Equal(t, "sess-3", ev.SessionID)

	out := tr.DrainOutbox()
	require.Len(t, out, 1)
	assert.Equal(t, "PARENT_READY", out[0].Type)
	assert.Equal(t, "https://shop.example/p-12345", out[0].Payload["pageUrl"])
	assert.Equal(t, "12345", out[0].Payload["productId"])

	assert.Empty(t, tr.DrainOutbox(), "drain clears the outbox")
	tr.Stop()
}

func TestIframeTransportCameraPermissionReply(t *testing.T) {
	tr := newTestIframe(t, IframeConfig{Camera: AutoGrantCamera(false)})
	sess := widget.NewSession("sess-4", "", "", widget.ViewportMobile)
	require.NoError(t, tr.Start(context.Background(), sess))

	tr.Deliver([]byte(`{"type":"camera_permission_request","source":"size-core-flow"}`), testFlowOrigin)

	expectEvent(t, tr.Events(), events.KindCameraRequest)
	out := tr.DrainOutbox()
	require.Len(t, out, 1)
	assert.Equal(t, "camera_permission_result", out[0].Type)
	assert.Equal(t, false, out[0].Payload["granted"])

	tr.Stop()
}

func TestIframeTransportRejectsUntrustedMessages(t *testing.T) {
	tr := newTestIframe(t, IframeConfig{})
	sess := widget.NewSession("sess-5", "", "", widget.ViewportMobile)
	require.NoError(t, tr.Start(context.Background(), sess))

	tr.Deliver([]byte(`{"type":"size_recommendation","source":"miqyas"}`), "https://evil.example")
	tr.Deliver([]byte(`{"type":"size_recommendation","source":"spoofed"}`), testFlowOrigin)
	tr.Deliver([]byte(`not json`), testFlowOrigin)

	select {
	case ev := <-tr.Events():
		t.Fatalf("unexpected event %s", ev.Kind)
	default:
	}
	tr.Stop()
}

func TestIframeTransportForwardsRecommendation(t *testing.T) {
	tr := newTestIframe(t, IframeConfig{})
	sess := widget.NewSession("sess-6", "", "", widget.ViewportMobile)
	require.NoError(t, tr.Start(context.Background(), sess))

	tr.Deliver([]byte(`{"type":"size_recommendation","source":"miqyas","payload":{"results":{"recommendedSize":"M"}}}`), testFlowOrigin)

	ev := expectEvent(t, tr.Events(), events.KindRecommendation)
	assert.Equal(t, "sess-6", ev.SessionID)
	assert.NotNil(t, ev.Payload["results"])
	tr.Stop()
}

func TestIframeTransportPlatformResultsAnyOrigin(t *testing.T) {
	tr := newTestIframe(t, IframeConfig{})
	sess := widget.NewSession("sess-7", "", "", widget.ViewportMobile)
	require.NoError(t, tr.Start(context.Background(), sess))

	tr.Deliver([]byte(`{"type":"SALLA_RESULTS","payload":{"results":{"recommendedSize":"L"}}}`), "https://store-admin.example")

	ev := expectEvent(t, tr.Events(), events.KindPlatformResults)
	assert.Equal(t, "sess-7", ev.SessionID)
	tr.Stop()
}

func TestIframeTransportDeliverRacesStop(t *testing.T) {
	for i := 0; i < 100; i++ {
		tr := newTestIframe(t, IframeConfig{})
		sess := widget.NewSession("sess-race", "", "", widget.ViewportMobile)
		require.NoError(t, tr.Start(context.Background(), sess))

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				tr.Deliver([]byte(`{"type":"size_recommendation","source":"miqyas","payload":{}}`), testFlowOrigin)
			}
		}()
		tr.Stop()
		wg.Wait()
	}
}

func TestIframeTransportDeliverAfterStop(t *testing.T) {
	tr := newTestIframe(t, IframeConfig{})
	sess := widget.NewSession("sess-8", "", "", widget.ViewportMobile)
	require.NoError(t, tr.Start(context.Background(), sess))
	tr.Stop()

	assert.NotPanics(t, func() {
		tr.Deliver([]byte(`{"type":"widget_ready","source":"miqyas"}`), testFlowOrigin)
	})
}
