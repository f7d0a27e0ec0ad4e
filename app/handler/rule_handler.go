package handler

import (
	"net/http"
	"strconv"

	"advisorhub/internal/service"
	"advisorhub/pkg/logger"

	"github.com/gin-gonic/gin"
)

// RuleHandler handles memory rule CRUD
type RuleHandler struct {
	ruleService *service.RuleService
}

// NewRuleHandler creates rule handler
func NewRuleHandler(ruleService *service.RuleService) *RuleHandler {
	return &RuleHandler{ruleService: ruleService}
}

type createRuleRequest struct {
	UserID   int64  `json:"user_id" binding:"required"`
	RuleText string `json:"rule_text" binding:"required"`
	Priority int    `json:"priority"`
	IsActive *bool  `json:"is_active"`
}

type updateRuleRequest struct {
	RuleText *string `json:"rule_text"`
	Priority *int    `json:"priority"`
	IsActive *bool   `json:"is_active"`
}

// Create stores a new rule
// @Summary Create rule
// @Tags rules
// @Accept json
// @Produce json
// @Router /rules [post]
func (h *RuleHandler) Create(c *gin.Context) {
	var req createRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	rule, err := h.ruleService.Create(c.Request.Context(), req.UserID, req.RuleText, req.Priority, isActive)
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to create rule: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, rule)
}

// List returns a user's rules
// @Summary List rules
// @Tags rules
// @Produce json
// @Param user_id query int true "User ID"
// @Router /rules [get]
func (h *RuleHandler) List(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}

	rules, err := h.ruleService.List(c.Request.Context(), userID)
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to list rules for user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"rules": rules, "count": len(rules)})
}

// Update edits a rule
// @Summary Update rule
// @Tags rules
// @Accept json
// @Produce json
// @Param rule_id path int true "Rule ID"
// @Router /rules/{rule_id} [patch]
func (h *RuleHandler) Update(c *gin.Context) {
	ruleID, err := strconv.ParseInt(c.Param("rule_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule_id"})
		return
	}
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}

	var req updateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rule, err := h.ruleService.Update(c.Request.Context(), userID, ruleID, req.RuleText, req.Priority, req.IsActive)
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to update rule %d: %v", ruleID, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, rule)
}

// Delete removes a rule
// @Summary Delete rule
// @Tags rules
// @Param rule_id path int true "Rule ID"
// @Router /rules/{rule_id} [delete]
func (h *RuleHandler) Delete(c *gin.Context) {
	ruleID, err := strconv.ParseInt(c.Param("rule_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule_id"})
		return
	}
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}

	if err := h.ruleService.Delete(c.Request.Context(), userID, ruleID); err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to delete rule %d: %v", ruleID, err)
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "rule deleted"})
}

// CreateDefaults seeds the starter rules for a user
// @Summary Seed default rules
// @Tags rules
// @Param user_id query int true "User ID"
// @Router /rules/defaults [post]
func (h *RuleHandler) CreateDefaults(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}

	created, err := h.ruleService.CreateDefaults(c.Request.Context(), userID)
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to seed rules for user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"created": created})
}
