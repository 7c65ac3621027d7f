// Command catalog-stub is a stand-in catalog backend for local development.
// It echoes the tenant and request id the gateway forwarded.
package main

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	port := os.Getenv("PORT")
	if port == "" {
		port = "3001"
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.NoRoute(func(c *gin.Context) {
		tenantID := c.GetHeader("X-Tenant-ID")
		log.Info("received request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("tenant_id", tenantID),
			zap.String("request_id", c.GetHeader("X-Request-ID")))

		c.JSON(http.StatusOK, gin.H{
			"message":    "Hello from catalog stub on port " + port,
			"path":       c.Request.URL.Path,
			"tenant_id":  tenantID,
			"request_id": c.GetHeader("X-Request-ID"),
		})
	})

	log.Info("catalog stub starting", zap.String("port", port))
	if err := r.Run(":" + port); err != nil {
		log.Fatal("catalog stub failed", zap.Error(err))
	}
}
