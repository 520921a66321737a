package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/karthik14478/clawwatch/internal/database/repositories"

	"github.com/gin-gonic/gin"
	"github.com/pterm/pterm"
	"gorm.io/gorm"
)

// AlertHandler handles alert requests
type AlertHandler struct {
	alertRepo repositories.AlertRepository
	logger    *pterm.Logger
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(alertRepo repositories.AlertRepository, logger *pterm.Logger) *AlertHandler {
	return &AlertHandler{
		alertRepo: alertRepo,
		logger:    logger,
	}
}

// ListAlerts returns recent alerts, optionally including resolved ones
func (h *AlertHandler) ListAlerts(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 500 {
			limit = v
		}
	}
	includeResolved := c.Query("include_resolved") == "true"

	alerts, err := h.alertRepo.FindRecent(limit, includeResolved)
	if err != nil {
		h.logger.WithCaller().Error("Failed to list alerts", h.logger.Args("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list alerts"})
		return
	}

	c.JSON(http.StatusOK, alerts)
}

// GetAlert returns a single alert with its delivery bookkeeping
func (h *AlertHandler) GetAlert(c *gin.Context) {
	alert, err := h.alertRepo.FindByID(c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
			return
		}
		h.logger.WithCaller().Error("Failed to get alert", h.logger.Args("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get alert"})
		return
	}

	c.JSON(http.StatusOK, alert)
}

// AcknowledgeAlert marks an alert as seen by an operator
func (h *AlertHandler) AcknowledgeAlert(c *gin.Context) {
	id := c.Param("id")
	if err := h.alertRepo.Acknowledge(id, time.Now()); err != nil {
		h.logger.WithCaller().Error("Failed to acknowledge alert",
			h.logger.Args("alert_id", id, "error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to acknowledge alert"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "acknowledged"})
}

// ResolveAlert closes an alert. Resolution is terminal: delivery
// attempts stop immediately.
func (h *AlertHandler) ResolveAlert(c *gin.Context) {
	id := c.Param("id")
	if err := h.alertRepo.Resolve(id, time.Now()); err != nil {
		h.logger.WithCaller().Error("Failed to resolve alert",
			h.logger.Args("alert_id", id, "error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve alert"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "resolved"})
}
