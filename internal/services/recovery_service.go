package services

import (
	"fmt"
	"strings"

	"github.com/traindiag/traindiag/internal/models"
)

// RecoveryAdvisor classifies a diagnosis into a recovery action. It is a
// pure function of is_recoverable and mitigation; executing the action
// against real infrastructure is out of scope.
type RecoveryAdvisor struct{}

func NewRecoveryAdvisor() RecoveryAdvisor {
	return RecoveryAdvisor{}
}

func (RecoveryAdvisor) Advise(record models.FailureRecord) models.RecoveryAction {
	if !record.IsRecoverable {
		description := "manual intervention required; notify the operations team"
		if strings.TrimSpace(record.Mitigation) != "" {
			description = fmt.Sprintf("manual intervention required: %s", record.Mitigation)
		}
		return models.RecoveryAction{
			Kind:        models.ActionManualIntervention,
			Description: description,
		}
	}

	description := strings.TrimSpace(record.Mitigation)
	if description == "" {
		description = defaultRecovery(record.ErrorType)
	}
	return models.RecoveryAction{
		Kind:        models.ActionAutoRecoverable,
		Description: description,
	}
}

// defaultRecovery fills in the recommendation when a recoverable diagnosis
// arrived without mitigation text, which only happens with hand-edited
// rule files.
func defaultRecovery(errorType string) string {
	switch {
	case strings.Contains(errorType, "LossSpike"):
		return "roll back to an earlier healthy checkpoint and skip bad data batches"
	case strings.Contains(errorType, "NCCL"), strings.Contains(errorType, "NVLink"):
		return "cordon off the faulty node identified in the diagnosis"
	default:
		return "restart the job from the latest checkpoint"
	}
}
