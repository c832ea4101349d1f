package services

import (
	"strings"
	"testing"

	"github.com/traindiag/traindiag/internal/models"
)

func TestAdviseRecoverableUsesMitigation(t *testing.T) {
	advisor := NewRecoveryAdvisor()
	action := advisor.Advise(models.FailureRecord{
		RootCause:     "loss spiked after a bad batch",
		ErrorType:     "LossSpike",
		IsRecoverable: true,
		Mitigation:    "roll back to checkpoint 184000 and skip the batch",
	})
	if action.Kind != models.ActionAutoRecoverable {
		t.Errorf("Expected auto_recoverable, got %s", action.Kind)
	}
	if action.Description != "roll back to checkpoint 184000 and skip the batch" {
		t.Errorf("Expected the record's mitigation, got %q", action.Description)
	}
}

func TestAdviseNotRecoverable(t *testing.T) {
	advisor := NewRecoveryAdvisor()

	action := advisor.Advise(models.FailureRecord{
		RootCause:     "disk controller failure",
		ErrorType:     "HardwareFault",
		IsRecoverable: false,
		Mitigation:    "replace the controller on node 7",
	})
	if action.Kind != models.ActionManualIntervention {
		t.Errorf("Expected manual_intervention, got %s", action.Kind)
	}
	if !strings.Contains(action.Description, "replace the controller on node 7") {
		t.Errorf("Expected the mitigation in the description, got %q", action.Description)
	}

	action = advisor.Advise(models.FailureRecord{
		RootCause:     "unknown failure",
		ErrorType:     "unknown",
		IsRecoverable: false,
	})
	if !strings.Contains(action.Description, "operations team") {
		t.Errorf("Expected the notify default, got %q", action.Description)
	}
}

func TestDefaultRecovery(t *testing.T) {
	tests := []struct {
		errorType string
		contains  string
	}{
		{"LossSpike", "checkpoint"},
		{"NCCLTimeout", "cordon"},
		{"NVLinkError", "cordon"},
		{"CUDAOOM", "restart the job"},
	}
	for _, test := range tests {
		got := defaultRecovery(test.errorType)
		if !strings.Contains(got, test.contains) {
			t.Errorf("For %s expected %q in recommendation, got %q", test.errorType, test.contains, got)
		}
	}
}
