package api

import (
	"github.com/RishiKendai/twinscan/internal/config"

	"github.com/gin-gonic/gin"
)

// SetupRoutes builds the router. The limiter is passed in so the caller can
// run its cleanup loop.
func SetupRoutes(cfg *config.Config, handler *Handler, rateLimiter *RateLimiter) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(MetricsMiddleware())
	router.Use(ErrorHandlerMiddleware())

	// Health endpoint (no auth)
	router.GET("/health", handler.Health)

	api := router.Group("/api/v1")
	api.Use(JWTAuthMiddleware(cfg.JWTSecret, cfg.JWTIssuer))
	api.Use(RateLimitMiddleware(rateLimiter))
	{
		api.POST("/compute", handler.Compute)

		corpora := api.Group("/corpora/:corpusId")
		corpora.GET("/status", handler.Status)
		corpora.GET("/matrix.csv", handler.MatrixCSV)
		corpora.GET("/suspects", handler.Suspects)
		corpora.GET("/ranking", handler.Ranking)
		corpora.GET("/report", handler.Report)
	}

	return router
}
