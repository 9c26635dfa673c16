package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// RouterConfig holds dependencies for the API router
type RouterConfig struct {
	Handler *Handler
	APIKey  string // empty disables API auth
	Logger  *slog.Logger
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(cfg.Logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/v1/electric")
	if cfg.APIKey != "" {
		v1.Use(authMiddleware(cfg.APIKey))
	}
	{
		v1.GET("/daily/:date", cfg.Handler.GetDaily)
		v1.GET("/daily/range/:from/:to", cfg.Handler.GetDailyRange)
		v1.GET("/monthly/:yearMonth", cfg.Handler.GetMonthly)
		v1.POST("/collect/yesterday", cfg.Handler.CollectYesterday)
		v1.POST("/collect/backfill", cfg.Handler.CollectBackfill)
	}

	return router
}

// authMiddleware verifies API key authentication
func authMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("X-API-Key") != apiKey {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Unauthorized",
				"code":  "UNAUTHORIZED",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// requestLogger logs each request at debug level
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		c.Next()
		logger.Debug("Request handled",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status())
	}
}
