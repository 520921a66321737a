package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/karthik14478/clawwatch/internal/database/models"
	"github.com/karthik14478/clawwatch/internal/database/repositories"

	"github.com/gin-gonic/gin"
	"github.com/pterm/pterm"
	"gorm.io/gorm"
)

// ChannelHandler handles notification channel CRUD
type ChannelHandler struct {
	channelRepo repositories.ChannelRepository
	logger      *pterm.Logger
}

// NewChannelHandler creates a new channel handler
func NewChannelHandler(channelRepo repositories.ChannelRepository, logger *pterm.Logger) *ChannelHandler {
	return &ChannelHandler{
		channelRepo: channelRepo,
		logger:      logger,
	}
}

// ListChannels returns all configured channels
func (h *ChannelHandler) ListChannels(c *gin.Context) {
	channels, err := h.channelRepo.FindAll()
	if err != nil {
		h.logger.WithCaller().Error("Failed to list channels", h.logger.Args("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list channels"})
		return
	}

	c.JSON(http.StatusOK, channels)
}

// GetChannel returns one channel by ID
func (h *ChannelHandler) GetChannel(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid channel ID"})
		return
	}

	channel, err := h.channelRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Channel not found"})
			return
		}
		h.logger.WithCaller().Error("Failed to get channel", h.logger.Args("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get channel"})
		return
	}

	c.JSON(http.StatusOK, channel)
}

// CreateChannel validates and stores a new channel
func (h *ChannelHandler) CreateChannel(c *gin.Context) {
	var channel models.NotificationChannel
	if err := c.ShouldBindJSON(&channel); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid channel payload"})
		return
	}
	if msg := validateChannel(&channel); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	channel.ID = 0
	if err := h.channelRepo.Create(&channel); err != nil {
		h.logger.WithCaller().Error("Failed to create channel", h.logger.Args("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create channel"})
		return
	}

	h.logger.Info("Notification channel created",
		h.logger.Args("channel_id", channel.ID, "name", channel.Name))
	c.JSON(http.StatusCreated, channel)
}

// UpdateChannel replaces a channel's configuration
func (h *ChannelHandler) UpdateChannel(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid channel ID"})
		return
	}

	existing, err := h.channelRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Channel not found"})
			return
		}
		h.logger.WithCaller().Error("Failed to get channel", h.logger.Args("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get channel"})
		return
	}

	var channel models.NotificationChannel
	if err := c.ShouldBindJSON(&channel); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid channel payload"})
		return
	}
	if msg := validateChannel(&channel); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	channel.ID = existing.ID
	channel.CreatedAt = existing.CreatedAt
	if err := h.channelRepo.Update(&channel); err != nil {
		h.logger.WithCaller().Error("Failed to update channel", h.logger.Args("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update channel"})
		return
	}

	c.JSON(http.StatusOK, channel)
}

// DeleteChannel removes a channel
func (h *ChannelHandler) DeleteChannel(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid channel ID"})
		return
	}

	if err := h.channelRepo.Delete(id); err != nil {
		h.logger.WithCaller().Error("Failed to delete channel", h.logger.Args("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete channel"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func validateChannel(channel *models.NotificationChannel) string {
	if channel.Name == "" {
		return "Channel name is required"
	}
	if channel.Type == "" {
		channel.Type = models.ChannelTypeWebhook
	}
	if channel.Type != models.ChannelTypeWebhook {
		return "Unsupported channel type"
	}
	if !strings.HasPrefix(channel.Endpoint, "http://") && !strings.HasPrefix(channel.Endpoint, "https://") {
		return "Endpoint must be an http(s) URL"
	}
	for _, s := range channel.AcceptedSeverities(nil) {
		if !models.ValidSeverity(s) {
			return "Severities may only contain info, warning or critical"
		}
	}
	return ""
}
