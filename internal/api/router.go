package api

import (
	"time"

	"github.com/The-Promised-Neverland/syncmonitor/pkg/logger"
	"github.com/gin-gonic/gin"
)

type Router struct {
	handler *Handler
	stream  *StreamHandler
}

func NewRouter(handler *Handler, stream *StreamHandler) *Router {
	return &Router{
		handler: handler,
		stream:  stream,
	}
}

func (rtr *Router) SetupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(), CorsMiddleware())

	router.GET("/health", rtr.handler.HealthCheck)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/instances", rtr.handler.ListInstances)
		v1.GET("/events", rtr.handler.ListEvents) // ?limit=N, newest first
		v1.GET("/stats", rtr.handler.GetStats)
		v1.POST("/stats", rtr.handler.UpdateStats)
		v1.POST("/browser/storage", rtr.handler.UpdateBrowserStorage)
		if rtr.stream != nil {
			v1.GET("/stream", rtr.stream.Stream)
		}
	}
	return router
}

func CorsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}

func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Log.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
