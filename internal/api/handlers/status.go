package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/karthik14478/clawwatch/internal/database"
	"github.com/karthik14478/clawwatch/internal/database/repositories"

	"github.com/gin-gonic/gin"
	"github.com/pterm/pterm"
)

// StatusReporter is any pipeline component that can describe itself.
type StatusReporter interface {
	GetStatus() map[string]interface{}
}

// StatusHandler handles pipeline status and event inspection requests
type StatusHandler struct {
	ingest     StatusReporter
	evaluator  StatusReporter
	dispatcher StatusReporter
	cleanup    *database.CleanupService
	eventRepo  repositories.AgentEventRepository
	logger     *pterm.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(
	ingest StatusReporter,
	evaluator StatusReporter,
	dispatcher StatusReporter,
	cleanup *database.CleanupService,
	eventRepo repositories.AgentEventRepository,
	logger *pterm.Logger,
) *StatusHandler {
	return &StatusHandler{
		ingest:     ingest,
		evaluator:  evaluator,
		dispatcher: dispatcher,
		cleanup:    cleanup,
		eventRepo:  eventRepo,
		logger:     logger,
	}
}

// GetStatus returns one combined view of every pipeline stage
func (h *StatusHandler) GetStatus(c *gin.Context) {
	total, err := h.eventRepo.Count()
	if err != nil {
		h.logger.WithCaller().Error("Failed to count events", h.logger.Args("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get status"})
		return
	}
	lastHour, err := h.eventRepo.CountSince(time.Now().Add(-1 * time.Hour))
	if err != nil {
		h.logger.WithCaller().Error("Failed to count recent events", h.logger.Args("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get status"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ingestion":  h.ingest.GetStatus(),
		"evaluator":  h.evaluator.GetStatus(),
		"dispatcher": h.dispatcher.GetStatus(),
		"cleanup":    h.cleanup.GetStats(),
		"events": gin.H{
			"total":     total,
			"last_hour": lastHour,
		},
	})
}

// GetRecentEvents returns the newest stored events
func (h *StatusHandler) GetRecentEvents(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 1000 {
			limit = v
		}
	}

	events, err := h.eventRepo.FindRecent(limit)
	if err != nil {
		h.logger.WithCaller().Error("Failed to list events", h.logger.Args("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list events"})
		return
	}

	c.JSON(http.StatusOK, events)
}
