package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/karthik14478/clawwatch/internal/database/models"
	"github.com/karthik14478/clawwatch/internal/database/repositories"

	"github.com/gin-gonic/gin"
	"github.com/pterm/pterm"
	"gorm.io/gorm"
)

var knownRuleTypes = map[string]bool{
	models.RuleBudgetExceeded:    true,
	models.RuleAgentOffline:      true,
	models.RuleErrorSpike:        true,
	models.RuleSessionLoop:       true,
	models.RuleChannelDisconnect: true,
	models.RuleCustomThreshold:   true,
}

// RuleHandler handles alert rule CRUD
type RuleHandler struct {
	ruleRepo repositories.AlertRuleRepository
	logger   *pterm.Logger
}

// NewRuleHandler creates a new rule handler
func NewRuleHandler(ruleRepo repositories.AlertRuleRepository, logger *pterm.Logger) *RuleHandler {
	return &RuleHandler{
		ruleRepo: ruleRepo,
		logger:   logger,
	}
}

// ListRules returns all configured rules
func (h *RuleHandler) ListRules(c *gin.Context) {
	rules, err := h.ruleRepo.FindAll()
	if err != nil {
		h.logger.WithCaller().Error("Failed to list rules", h.logger.Args("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list rules"})
		return
	}

	c.JSON(http.StatusOK, rules)
}

// GetRule returns one rule by ID
func (h *RuleHandler) GetRule(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid rule ID"})
		return
	}

	rule, err := h.ruleRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Rule not found"})
			return
		}
		h.logger.WithCaller().Error("Failed to get rule", h.logger.Args("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get rule"})
		return
	}

	c.JSON(http.StatusOK, rule)
}

// CreateRule validates and stores a new rule
func (h *RuleHandler) CreateRule(c *gin.Context) {
	var rule models.AlertRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid rule payload"})
		return
	}
	if msg := validateRule(&rule); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	rule.ID = 0
	rule.LastTriggeredAt = nil
	if err := h.ruleRepo.Create(&rule); err != nil {
		h.logger.WithCaller().Error("Failed to create rule", h.logger.Args("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create rule"})
		return
	}

	h.logger.Info("Alert rule created",
		h.logger.Args("rule_id", rule.ID, "name", rule.Name, "type", rule.Type))
	c.JSON(http.StatusCreated, rule)
}

// UpdateRule replaces a rule's configuration
func (h *RuleHandler) UpdateRule(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid rule ID"})
		return
	}

	existing, err := h.ruleRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Rule not found"})
			return
		}
		h.logger.WithCaller().Error("Failed to get rule", h.logger.Args("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get rule"})
		return
	}

	var rule models.AlertRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid rule payload"})
		return
	}
	if msg := validateRule(&rule); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	rule.ID = existing.ID
	rule.LastTriggeredAt = existing.LastTriggeredAt
	rule.CreatedAt = existing.CreatedAt
	if err := h.ruleRepo.Update(&rule); err != nil {
		h.logger.WithCaller().Error("Failed to update rule", h.logger.Args("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update rule"})
		return
	}

	c.JSON(http.StatusOK, rule)
}

// DeleteRule removes a rule
func (h *RuleHandler) DeleteRule(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid rule ID"})
		return
	}

	if err := h.ruleRepo.Delete(id); err != nil {
		h.logger.WithCaller().Error("Failed to delete rule", h.logger.Args("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete rule"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func validateRule(rule *models.AlertRule) string {
	if rule.Name == "" {
		return "Rule name is required"
	}
	if !knownRuleTypes[rule.Type] {
		return "Unknown rule type"
	}
	if rule.Severity == "" {
		rule.Severity = models.SeverityWarning
	} else if !models.ValidSeverity(rule.Severity) {
		return "Severity must be info, warning or critical"
	}
	if rule.CooldownMinutes < 0 {
		return "Cooldown must not be negative"
	}
	return ""
}

func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}
