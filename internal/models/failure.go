package models

import (
	"fmt"
	"strings"
)

type FailureSource string

const (
	SourceApplication    FailureSource = "application_failure"
	SourceInfrastructure FailureSource = "infrastructure_failure"
	SourceUnknown        FailureSource = "unknown"
)

type Provenance string

const (
	ProvenanceRuleBased    Provenance = "rule_based"
	ProvenanceLLMGenerated Provenance = "llm_generated"
)

// FailureRecord is the structured outcome of diagnosing one failure
// signature. RuleID is set only for rule-based records.
type FailureRecord struct {
	RootCause     string        `json:"rootCause"`
	ErrorType     string        `json:"errorType"`
	Source        FailureSource `json:"source"`
	IsRecoverable bool          `json:"isRecoverable"`
	Mitigation    string        `json:"mitigation"`
	Provenance    Provenance    `json:"provenance"`
	RuleID        string        `json:"ruleId,omitempty"`
}

func (fr *FailureRecord) Validate() error {
	if fr.RootCause == "" {
		return fmt.Errorf("failure record root cause is required")
	}
	if fr.ErrorType == "" {
		return fmt.Errorf("failure record error type is required")
	}
	switch fr.Source {
	case SourceApplication, SourceInfrastructure, SourceUnknown:
	default:
		return fmt.Errorf("invalid failure source %q", fr.Source)
	}
	switch fr.Provenance {
	case ProvenanceRuleBased, ProvenanceLLMGenerated:
	default:
		return fmt.Errorf("invalid provenance %q", fr.Provenance)
	}
	// Recoverable failures must carry the action to take.
	if fr.IsRecoverable && strings.TrimSpace(fr.Mitigation) == "" {
		return fmt.Errorf("recoverable failure record is missing a mitigation")
	}
	return nil
}

// NormalizeSource maps free-form model output onto the source enum.
func NormalizeSource(raw string) FailureSource {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "application_failure", "application", "user_mistake", "user":
		return SourceApplication
	case "infrastructure_failure", "infrastructure", "hardware":
		return SourceInfrastructure
	default:
		return SourceUnknown
	}
}

type ActionKind string

const (
	ActionAutoRecoverable    ActionKind = "auto_recoverable"
	ActionManualIntervention ActionKind = "manual_intervention"
)

// RecoveryAction is what the recovery advisor hands back. Description is a
// recommendation only; nothing here touches real infrastructure.
type RecoveryAction struct {
	Kind        ActionKind `json:"kind"`
	Description string     `json:"description"`
}
