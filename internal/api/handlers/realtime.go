package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/karthik14478/clawwatch/internal/realtime"

	"github.com/gin-gonic/gin"
	"github.com/pterm/pterm"
)

// RealtimeHandler handles real-time streaming endpoints
type RealtimeHandler struct {
	collector *realtime.MetricsCollector
	logger    *pterm.Logger
}

// NewRealtimeHandler creates a new realtime handler
func NewRealtimeHandler(collector *realtime.MetricsCollector, logger *pterm.Logger) *RealtimeHandler {
	return &RealtimeHandler{
		collector: collector,
		logger:    logger,
	}
}

// GetCurrentMetrics returns a single snapshot of current metrics
func (h *RealtimeHandler) GetCurrentMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.collector.GetMetrics())
}

// StreamMetrics streams activity snapshots via Server-Sent Events
func (h *RealtimeHandler) StreamMetrics(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	h.logger.Debug("Client connected to real-time metrics stream",
		h.logger.Args("client_ip", c.ClientIP()))

	for {
		select {
		case <-c.Request.Context().Done():
			h.logger.Debug("Client disconnected from real-time stream",
				h.logger.Args("client_ip", c.ClientIP()))
			return

		case <-ticker.C:
			data, err := json.Marshal(h.collector.GetMetrics())
			if err != nil {
				h.logger.Error("Failed to marshal metrics", h.logger.Args("error", err))
				continue
			}

			if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
				h.logger.Debug("Failed to write SSE data", h.logger.Args("error", err))
				return
			}
			c.Writer.Flush()
		}
	}
}
