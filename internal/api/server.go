package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/karthik14478/clawwatch/internal/api/handlers"

	"github.com/gin-gonic/gin"
	"github.com/pterm/pterm"
)

// Server represents the HTTP server
type Server struct {
	router *gin.Engine
	server *http.Server
	logger *pterm.Logger
	port   int
}

// Config holds server configuration
type Config struct {
	Host       string
	Port       int
	Production bool
}

// NewServer creates a new HTTP server
func NewServer(
	cfg *Config,
	alertHandler *handlers.AlertHandler,
	ruleHandler *handlers.RuleHandler,
	channelHandler *handlers.ChannelHandler,
	realtimeHandler *handlers.RealtimeHandler,
	statusHandler *handlers.StatusHandler,
	logger *pterm.Logger,
) *Server {
	// Set Gin mode
	if cfg.Production {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	// Middleware
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
		})
	})

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "ClawWatch API Server",
			"api":     "/api/v1",
			"health":  "/health",
		})
	})

	// API routes
	api := router.Group("/api/v1")
	{
		// Pipeline status and stored events
		api.GET("/status", statusHandler.GetStatus)
		api.GET("/events/recent", statusHandler.GetRecentEvents)

		// Real-time metrics
		api.GET("/realtime/metrics", realtimeHandler.GetCurrentMetrics)
		api.GET("/realtime/stream", realtimeHandler.StreamMetrics)

		// Alerts
		api.GET("/alerts", alertHandler.ListAlerts)
		api.GET("/alerts/:id", alertHandler.GetAlert)
		api.POST("/alerts/:id/acknowledge", alertHandler.AcknowledgeAlert)
		api.POST("/alerts/:id/resolve", alertHandler.ResolveAlert)

		// Alert rules
		api.GET("/rules", ruleHandler.ListRules)
		api.GET("/rules/:id", ruleHandler.GetRule)
		api.POST("/rules", ruleHandler.CreateRule)
		api.PUT("/rules/:id", ruleHandler.UpdateRule)
		api.DELETE("/rules/:id", ruleHandler.DeleteRule)

		// Notification channels
		api.GET("/channels", channelHandler.ListChannels)
		api.GET("/channels/:id", channelHandler.GetChannel)
		api.POST("/channels", channelHandler.CreateChannel)
		api.PUT("/channels/:id", channelHandler.UpdateChannel)
		api.DELETE("/channels/:id", channelHandler.DeleteChannel)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	return &Server{
		router: router,
		server: &http.Server{
			Addr:           addr,
			Handler:        router,
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   300 * time.Second, // Long timeout for SSE streams
			MaxHeaderBytes: 1 << 20,
		},
		logger: logger,
		port:   cfg.Port,
	}
}

// Run starts the HTTP server
func (s *Server) Run() error {
	s.logger.Info("Starting web server", s.logger.Args("address", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.WithCaller().Error("Web server failed", s.logger.Args("error", err))
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down web server...")
	return s.server.Shutdown(ctx)
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
