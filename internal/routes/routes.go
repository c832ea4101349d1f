package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/traindiag/traindiag/internal/controllers"
	"github.com/traindiag/traindiag/internal/memory"
	"github.com/traindiag/traindiag/internal/services"
	"github.com/traindiag/traindiag/internal/store"
)

// SetupRoutes wires the inspection and diagnosis API.
func SetupRoutes(r *gin.Engine, rules *store.RuleStore, mem memory.Store, orchestrator *services.Orchestrator) {
	diagnosisController := controllers.NewDiagnosisController(rules, mem, orchestrator)

	api := r.Group("/api/v1")
	{
		ruleGroup := api.Group("/rules")
		{
			ruleGroup.GET("/filter", diagnosisController.GetFilterRules)
			ruleGroup.GET("/diagnosis", diagnosisController.GetDiagnosisRules)
		}

		api.GET("/failures", diagnosisController.GetFailures)
		api.POST("/diagnose", diagnosisController.Diagnose)
	}
}
