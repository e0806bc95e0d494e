package router

import (
	"context"
	"net/http"
	"time"

	"github.com/cuongbtq/market-bridge/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", healthHandler(deps))

	searchHandler := handler.NewSearchHandler(deps)
	jobHandler := handler.NewJobHandler(deps)
	queueHandler := handler.NewQueueHandler(deps)
	streamHandler := handler.NewStreamHandler(deps)

	r.GET("/ws", streamHandler.Connect)

	// Routes the scraping worker and existing front end already call
	legacy := r.Group("/api")
	{
		legacy.POST("/search", searchHandler.Search)
		legacy.POST("/status", searchHandler.Status)
		legacy.POST("/data", searchHandler.Data)
		legacy.POST("/cleanup", queueHandler.Cleanup)
	}

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		v1.POST("/search", searchHandler.Search)
		v1.POST("/status", searchHandler.Status)
		v1.POST("/data", searchHandler.Data)

		jobs := v1.Group("/jobs")
		{
			// POST /api/v1/jobs/complete - Worker completion callback
			jobs.POST("/complete", jobHandler.Complete)

			// GET /api/v1/jobs - List journal entries with filtering and pagination
			jobs.GET("", jobHandler.ListJobs)

			// GET /api/v1/jobs/:job_id - Get a journal entry
			jobs.GET("/:job_id", jobHandler.GetJob)
		}

		v1.GET("/queues/:client_key", queueHandler.QueueState)
	}

	return r
}

func healthHandler(deps *handler.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		if deps.HealthCheck != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
			defer cancel()

			if err := deps.HealthCheck(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unhealthy",
					"service": "market-bridge-api",
					"error":   err.Error(),
				})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "market-bridge-api",
		})
	}
}
