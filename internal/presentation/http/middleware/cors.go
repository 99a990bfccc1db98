package middleware

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/miqyas/sizecore-go/pkg/config"
)

// CORSMiddleware allows the storefront origin plus local development hosts
// to call the widget engine.
func CORSMiddleware() gin.HandlerFunc {
	allowed := []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
	}
	if origin := config.FlowOrigin(); origin != "" {
		allowed = append(allowed, origin)
	}

	return cors.New(cors.Config{
		AllowOrigins: allowed,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept", "X-Requested-With",
		},
		AllowCredentials: true,
		ExposeHeaders:    []string{"Content-Type"},
	})
}
