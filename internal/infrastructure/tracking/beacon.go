// Package tracking sends fire-and-forget analytics beacons. Failures are
// logged and swallowed; tracking must never affect widget behavior.
package tracking

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/miqyas/sizecore-go/internal/infrastructure/observability/logging"
)

// Beacon actions reported over the widget's lifetime.
const (
	ActionWidgetOpen             = "widget_open"
	ActionFlowLoaded             = "flow_loaded"
	ActionRecommendationReceived = "recommendation_received"
	ActionEmptyStateShown        = "empty_state_shown"
	ActionConnectingDisplayed    = "connecting_ui_displayed"
	ActionResultDisplayed        = "result_displayed"
	ActionErrorDisplayed         = "error_displayed"
	ActionWidgetClosed           = "widget_closed"
)

// ClickPayload is the wire shape of a click beacon.
type ClickPayload struct {
	Action     string `json:"action"`
	SessionID  string `json:"session_id,omitempty"`
	ProductID  string `json:"product_id,omitempty"`
	ProductURL string `json:"product_url,omitempty"`
	StoreID    string `json:"store_id,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

// ReturnPayload reports a visitor landing back on the store with a
// recommendation in the URL.
type ReturnPayload struct {
	SessionID       string `json:"session_id,omitempty"`
	RecommendedSize string `json:"rec_size"`
	PageURL         string `json:"page_url,omitempty"`
	StoreID         string `json:"store_id,omitempty"`
	Timestamp       int64  `json:"timestamp"`
}

// Beacon posts tracking events to the analytics endpoints.
type Beacon struct {
	clickEndpoint  string
	returnEndpoint string
	client         *http.Client
	logger         *logging.ChanneledLogger
}

func NewBeacon(clickEndpoint, returnEndpoint string, logger *logging.ChanneledLogger) *Beacon {
	return &Beacon{
		clickEndpoint:  clickEndpoint,
		returnEndpoint: returnEndpoint,
		client:         &http.Client{Timeout: 3 * time.Second},
		logger:         logger,
	}
}

// TrackClick sends a click beacon in the background.
func (b *Beacon) TrackClick(payload ClickPayload) {
	if payload.Timestamp == 0 {
		payload.Timestamp = time.Now().UnixMilli()
	}
	go b.post(b.clickEndpoint, payload.Action, payload)
}

// TrackReturn sends a return beacon in the background.
func (b *Beacon) TrackReturn(payload ReturnPayload) {
	if payload.Timestamp == 0 {
		payload.Timestamp = time.Now().UnixMilli()
	}
	go b.post(b.returnEndpoint, "return", payload)
}

func (b *Beacon) post(endpoint, action string, payload any) {
	if endpoint == "" {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		b.logger.Track().Debug("Beacon encode failed", "action", action, "error", err.Error())
		return
	}
	resp, err := b.client.Post(endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		b.logger.Track().Debug("Beacon delivery failed", "action", action, "error", err.Error())
		return
	}
	resp.Body.Close()
	b.logger.Track().Debug("Beacon sent", "action", action, "status", resp.StatusCode)
}
