package router

import (
	"net/http"

	"github.com/cuongbtq/queue-worker/internal/api/handler"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	// payload numbers reach the broker as written, large integers included
	binding.EnableDecoderUseNumber = true

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "queue-api-service",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	queueHandler := handler.NewQueueHandler(deps)

	v1 := r.Group("/api/v1")
	{
		queues := v1.Group("/queues")
		{
			// GET /api/v1/queues - List configured queues
			queues.GET("", queueHandler.ListQueues)

			// POST /api/v1/queues/:queue/jobs - Enqueue a job
			queues.POST("/:queue/jobs", queueHandler.EnqueueJob)

			// GET /api/v1/queues/:queue/stats - Job counts by state
			queues.GET("/:queue/stats", queueHandler.GetQueueStats)

			// POST /api/v1/queues/:queue/kick - Move buried jobs back to ready
			queues.POST("/:queue/kick", queueHandler.KickJobs)
		}
	}

	return r
}
