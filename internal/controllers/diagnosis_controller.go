package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/traindiag/traindiag/internal/logger"
	"github.com/traindiag/traindiag/internal/memory"
	"github.com/traindiag/traindiag/internal/services"
	"github.com/traindiag/traindiag/internal/store"
)

type DiagnosisController struct {
	rules        *store.RuleStore
	mem          memory.Store
	orchestrator *services.Orchestrator
}

func NewDiagnosisController(rules *store.RuleStore, mem memory.Store, orchestrator *services.Orchestrator) *DiagnosisController {
	return &DiagnosisController{
		rules:        rules,
		mem:          mem,
		orchestrator: orchestrator,
	}
}

// GetFilterRules returns the learned filter rules in insertion order.
func (dc *DiagnosisController) GetFilterRules(c *gin.Context) {
	rules := dc.rules.FilterRules()
	c.JSON(http.StatusOK, gin.H{
		"count": len(rules),
		"rules": rules,
	})
}

// GetDiagnosisRules returns the learned diagnosis rules in insertion order.
func (dc *DiagnosisController) GetDiagnosisRules(c *gin.Context) {
	rules := dc.rules.DiagnosisRules()
	c.JSON(http.StatusOK, gin.H{
		"count": len(rules),
		"rules": rules,
	})
}

// GetFailures returns the most recently indexed failure memories.
func (dc *DiagnosisController) GetFailures(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = parsed
	}

	memories, err := dc.mem.Recent(c.Request.Context(), limit)
	if err != nil {
		logger.WithError(err, "diagnosis_controller").Error("Failed to list failure memories")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list failures"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":    len(memories),
		"failures": memories,
	})
}

type diagnoseRequest struct {
	Line string `json:"line" binding:"required"`
}

// Diagnose runs one failure signature through both tiers and returns the
// record plus the recommended recovery action.
func (dc *DiagnosisController) Diagnose(c *gin.Context) {
	var req diagnoseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if strings.TrimSpace(req.Line) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Line must not be empty"})
		return
	}

	diagnosis := dc.orchestrator.DiagnoseLine(c.Request.Context(), req.Line)
	logger.Info("On-demand diagnosis delivered", map[string]interface{}{
		"error_type": diagnosis.Record.ErrorType,
		"provenance": diagnosis.Record.Provenance,
	})
	c.JSON(http.StatusOK, diagnosis)
}
