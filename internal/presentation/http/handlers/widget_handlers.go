// Package handlers exposes the widget engine over HTTP: the host posts page
// snapshots and frame messages in, and reads the current widget view out.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/miqyas/sizecore-go/internal/application/container"
	"github.com/miqyas/sizecore-go/internal/domain/detect"
	"github.com/miqyas/sizecore-go/internal/domain/widget"
	"github.com/miqyas/sizecore-go/internal/infrastructure/page"
)

type WidgetHandlers struct {
	container *container.Container
}

func NewWidgetHandlers(c *container.Container) *WidgetHandlers {
	return &WidgetHandlers{container: c}
}

// Health reports liveness.
func (h *WidgetHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type pageSnapshotRequest struct {
	URL      string `json:"url" binding:"required"`
	Viewport string `json:"viewport"`
	HTML     string `json:"html"`
	Signal   string `json:"signal"`
}

// PageSnapshot ingests a fresh page snapshot. It reparses the document,
// runs the return-path check, and feeds the injection controller with the
// reported signal (defaulting to navigation).
func (h *WidgetHandlers) PageSnapshot(c *gin.Context) {
	var req pageSnapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var doc *page.Document
	if req.HTML != "" {
		parsed, err := page.ParseDocumentString(req.HTML)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unparsable html"})
			return
		}
		doc = parsed
	}

	prevURL := h.container.PageState.URL()
	pageCtx := page.NewContext(req.URL, req.Viewport, doc, h.container.SessionScope)
	h.container.PageState.Set(pageCtx)

	signal := page.SignalNavigation
	switch page.Signal(req.Signal) {
	case page.SignalMutation, page.SignalPageShow, page.SignalVisibility:
		signal = page.Signal(req.Signal)
	}
	if signal != page.SignalMutation && prevURL != h.container.PageState.URL() {
		h.container.Returns.Reset()
	}

	returned := h.container.Returns.HandleLanding(pageCtx.URL)
	h.container.Injector.Observe(signal, pageCtx)

	productPage := doc != nil && detect.IsProductPage(doc)
	productID := ""
	if productPage {
		productID = detect.ResolveProductID(doc, pageCtx.URL)
	}

	c.JSON(http.StatusOK, gin.H{
		"productPage":    productPage,
		"productId":      productID,
		"mounted":        h.container.Injector.Mounted(),
		"returnDetected": returned,
	})
}

// Open handles the user opening the widget.
func (h *WidgetHandlers) Open(c *gin.Context) {
	h.container.Coordinator.Open()
	h.respondView(c)
}

type startRequest struct {
	Viewport  string `json:"viewport"`
	ProductID string `json:"productId"`
}

// Start begins a session. Viewport and product fall back to the current
// page snapshot when the request leaves them empty.
func (h *WidgetHandlers) Start(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	viewport := widget.ParseViewportClass(req.Viewport)
	productID := req.ProductID
	if pageCtx := h.container.PageState.Current(); pageCtx != nil {
		if req.Viewport == "" {
			viewport = pageCtx.Viewport
		}
		if productID == "" {
			productID = h.container.Injector.ProductID()
		}
	}

	sess := h.container.Coordinator.Start(c.Request.Context(), viewport, productID)
	c.JSON(http.StatusOK, gin.H{"session": sess, "view": h.container.Presenter.Current()})
}

// Retry restarts after an error.
func (h *WidgetHandlers) Retry(c *gin.Context) {
	h.container.Coordinator.Retry(c.Request.Context())
	h.respondView(c)
}

// Retake clears the stored result and returns to the greeting.
func (h *WidgetHandlers) Retake(c *gin.Context) {
	h.container.Coordinator.Retake()
	h.respondView(c)
}

// Close handles a user-initiated close.
func (h *WidgetHandlers) Close(c *gin.Context) {
	h.container.Coordinator.Close()
	h.respondView(c)
}

type frameMessageRequest struct {
	Origin  string `json:"origin"`
	Message string `json:"message" binding:"required"`
}

// FrameMessage forwards one raw message from the embedded flow to the live
// transport. The message body is the raw JSON the frame posted; origin is
// reported by the host, not the message.
func (h *WidgetHandlers) FrameMessage(c *gin.Context) {
	var req frameMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	delivered := h.container.Coordinator.DeliverFrameMessage(
		[]byte(req.Message), strings.TrimSpace(req.Origin))
	c.JSON(http.StatusOK, gin.H{"delivered": delivered})
}

// Outbox returns outbound frame messages queued since the last poll.
func (h *WidgetHandlers) Outbox(c *gin.Context) {
	messages := h.container.Coordinator.DrainOutbox()
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// View returns the current view model plus its rendered HTML fragment.
func (h *WidgetHandlers) View(c *gin.Context) {
	h.respondView(c)
}

func (h *WidgetHandlers) respondView(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"view":    h.container.Presenter.Current(),
		"visible": h.container.Presenter.Visible(),
		"html":    h.container.Presenter.HTML(),
	})
}
