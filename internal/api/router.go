package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/marketsync-ledger/internal/api/handler"
	"github.com/marketsync-ledger/internal/api/middleware"
)

// setupRouter configures routes and middleware for the admin API
func setupRouter(
	logger *slog.Logger,
	r *gin.Engine,
	taskHandler *handler.TaskHandler,
	sessionHandler *handler.SessionHandler,
	ledgerHandler *handler.LedgerHandler,
) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))

	v1 := r.Group("/api/v1")
	{
		tasks := v1.Group("/tasks")
		{
			tasks.POST("", taskHandler.Create)
			tasks.GET("", taskHandler.List)
			tasks.GET("/:id", taskHandler.GetByID)
			tasks.PUT("/:id", taskHandler.Update)
			tasks.PATCH("/:id/enabled", taskHandler.Toggle)
			tasks.DELETE("/:id", taskHandler.Delete)
			tasks.POST("/:id/run", taskHandler.RunNow)
		}

		sessions := v1.Group("/sessions")
		{
			sessions.GET("/:id/progress", sessionHandler.GetProgress)
			sessions.GET("/:id/log", sessionHandler.GetLog)
		}

		v1.GET("/ledger", ledgerHandler.List)
	}

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
}
