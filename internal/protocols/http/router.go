// Package http hosts the gin shell around the realtime server: the
// websocket entry point plus the health and status endpoints.
package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"classhub/internal/collab"
	wsProtocol "classhub/internal/protocols/websocket"
	"classhub/pkg/logger"
)

// Server manages the HTTP listener and route table.
type Server struct {
	router *gin.Engine
	ws     *wsProtocol.Handler
	docs   *collab.Registry
}

// NewServer builds the route table around the websocket handler.
func NewServer(ws *wsProtocol.Handler, docs *collab.Registry) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(requestLogger())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	s := &Server{
		router: router,
		ws:     ws,
		docs:   docs,
	}

	s.setupRoutes()
	return s
}

// setupRoutes registers all HTTP routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)

	// Realtime entry point; auth happens inside the websocket handler so
	// clients can also pass the token as a query parameter.
	s.router.GET("/ws", s.ws.HandleWebSocket)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/realtime/status", s.ws.GetGlobalStatus)
		v1.GET("/rooms/:namespace/:lesson/status", s.ws.GetRoomStatus)
		v1.GET("/documents/status", s.documentStatus)
	}
}

// Router returns the gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	return s.router.Run(addr)
}

// requestLogger logs one line per completed request.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := int(time.Since(start).Milliseconds())
		logger.HTTP(c.Request.Method, c.Request.URL.Path, c.Writer.Status(), latency)
	}
}

// corsMiddleware handles CORS
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// healthCheck returns server health status
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(200, gin.H{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// documentStatus reports the live document instance registry.
func (s *Server) documentStatus(c *gin.Context) {
	c.JSON(200, gin.H{
		"live_instances": s.docs.Count(),
		"pending_saves":  s.docs.PendingCount(),
		"server_time":    time.Now().UTC(),
	})
}
