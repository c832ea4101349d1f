package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FilterRule suppresses routine log lines that match its pattern. Rules are
// append-only: once stored they are never edited or deleted, only their hit
// count moves.
type FilterRule struct {
	ID          string    `json:"id"`
	Pattern     string    `json:"pattern"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	HitCount    int       `json:"hitCount"`
}

// DiagnosisRule maps a failure signature regex to a templated diagnosis.
type DiagnosisRule struct {
	ID            string        `json:"id"`
	Pattern       string        `json:"pattern"`
	RootCause     string        `json:"rootCause"`
	ErrorType     string        `json:"errorType"`
	Source        FailureSource `json:"source"`
	IsRecoverable bool          `json:"isRecoverable"`
	Mitigation    string        `json:"mitigation"`
	CreatedAt     time.Time     `json:"createdAt"`
	MatchCount    int           `json:"matchCount"`
}

// NewFilterRule builds a rule with a fresh id. The pattern is validated by
// the caller before the rule ever reaches the store.
func NewFilterRule(pattern, description string) FilterRule {
	return FilterRule{
		ID:          uuid.NewString(),
		Pattern:     strings.TrimSpace(pattern),
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
}

// NewDiagnosisRule templates a rule from a completed diagnosis.
func NewDiagnosisRule(pattern string, record FailureRecord) DiagnosisRule {
	return DiagnosisRule{
		ID:            uuid.NewString(),
		Pattern:       strings.TrimSpace(pattern),
		RootCause:     record.RootCause,
		ErrorType:     record.ErrorType,
		Source:        record.Source,
		IsRecoverable: record.IsRecoverable,
		Mitigation:    record.Mitigation,
		CreatedAt:     time.Now().UTC(),
	}
}

func (fr *FilterRule) Validate() error {
	if fr.Pattern == "" {
		return fmt.Errorf("filter rule pattern is required")
	}
	if _, err := regexp.Compile(fr.Pattern); err != nil {
		return fmt.Errorf("invalid filter rule pattern: %w", err)
	}
	return nil
}

func (dr *DiagnosisRule) Validate() error {
	if dr.Pattern == "" {
		return fmt.Errorf("diagnosis rule pattern is required")
	}
	if _, err := regexp.Compile(dr.Pattern); err != nil {
		return fmt.Errorf("invalid diagnosis rule pattern: %w", err)
	}
	if dr.ErrorType == "" {
		return fmt.Errorf("diagnosis rule error type is required")
	}
	return nil
}

// Record expands the rule template into a FailureRecord for a matched line.
func (dr *DiagnosisRule) Record() FailureRecord {
	return FailureRecord{
		RootCause:     dr.RootCause,
		ErrorType:     dr.ErrorType,
		Source:        dr.Source,
		IsRecoverable: dr.IsRecoverable,
		Mitigation:    dr.Mitigation,
		Provenance:    ProvenanceRuleBased,
		RuleID:        dr.ID,
	}
}
