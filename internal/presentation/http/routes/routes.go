// Package routes wires the HTTP surface of the widget engine.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/miqyas/sizecore-go/internal/application/container"
	"github.com/miqyas/sizecore-go/internal/presentation/http/handlers"
	"github.com/miqyas/sizecore-go/internal/presentation/http/middleware"
)

// SetupRoutes builds the gin router with all widget endpoints.
func SetupRoutes(c *container.Container) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware())

	h := handlers.NewWidgetHandlers(c)

	api := router.Group("/api/v1")
	{
		api.GET("/health", h.Health)
		api.POST("/page", h.PageSnapshot)

		w := api.Group("/widget")
		{
			w.POST("/open", h.Open)
			w.POST("/start", h.Start)
			w.POST("/retry", h.Retry)
			w.POST("/retake", h.Retake)
			w.POST("/close", h.Close)
			w.POST("/messages", h.FrameMessage)
			w.GET("/outbox", h.Outbox)
			w.GET("/view", h.View)
		}
	}

	return router
}
