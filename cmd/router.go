package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"go-realtime-relay/internal/application/relay"
	"go-realtime-relay/internal/infrastructure/config"
	"go-realtime-relay/internal/infrastructure/hub"
	"go-realtime-relay/internal/infrastructure/logger"
	"go-realtime-relay/internal/interfaces/rest/v1/handler"
	"go-realtime-relay/internal/interfaces/sse"
	"go-realtime-relay/internal/interfaces/websocket"
)

func InitRouter(
	cfg *config.Config,
	hubInstance *hub.Hub,
	broadcast *relay.BroadcastRelay,
	gateway *relay.Gateway,
	log logger.Logger,
) http.Handler {
	if cfg.Logger.Level > logger.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(requestLogger(log))
	router.Use(gin.Recovery())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	rootGroup := router.Group("")

	rootGroup.GET("/debug", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"debug": "working"})
	})

	rootGroup.GET("/hub/status", func(c *gin.Context) {
		isRunning := hubInstance.IsRunning()
		status := "healthy"
		if !isRunning {
			status = "unavailable"
		}
		c.JSON(http.StatusOK, gin.H{
			"status":      status,
			"hub_running": isRunning,
			"connections": hubInstance.ConnectionCount(),
			"streams":     gateway.Sessions().Stats(),
		})
	})

	messageHandler := handler.NewMessageHandler(broadcast, hubInstance, log)
	apiGroup := rootGroup.Group("/api")
	{
		apiGroup.POST("/messages", messageHandler.SendMessage)
	}

	sse.InitSSERouter(log, hubInstance, gateway, cfg.SSE.KeepAliveInterval, rootGroup)
	websocket.InitWebSocketRouter(log, hubInstance, gateway, cfg.WebSocket, rootGroup)

	return router
}

// requestLogger logs one line per request once it has been served.
func requestLogger(log logger.Logger) gin.HandlerFunc {
	log = log.WithField("component", "http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(logger.Fields{
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"status":    c.Writer.Status(),
			"latency":   time.Since(start).String(),
			"client_ip": c.ClientIP(),
		})
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			entry.Error("request failed")
		case c.Writer.Status() >= http.StatusBadRequest:
			entry.Warn("request rejected")
		default:
			entry.Debug("request served")
		}
	}
}
