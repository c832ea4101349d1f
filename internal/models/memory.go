package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
)

// FailureMemory is one retrievable past failure: the escalated log excerpt,
// the diagnosis it produced and the excerpt's embedding.
type FailureMemory struct {
	ID            uint            `json:"id" gorm:"primaryKey"`
	Excerpt       string          `json:"excerpt" gorm:"type:text"`
	RootCause     string          `json:"rootCause" gorm:"type:text"`
	ErrorType     string          `json:"errorType"`
	Source        FailureSource   `json:"source"`
	IsRecoverable bool            `json:"isRecoverable"`
	Mitigation    string          `json:"mitigation" gorm:"type:text"`
	Embedding     pgvector.Vector `json:"-" gorm:"type:vector(768)"`
	CreatedAt     time.Time       `json:"createdAt"`
}

func (FailureMemory) TableName() string {
	return "failure_memories"
}

// ContextText renders the memory the way it is spliced into a reasoning
// prompt as grounding.
func (fm *FailureMemory) ContextText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "- error_type: %s (source: %s, recoverable: %t)\n", fm.ErrorType, fm.Source, fm.IsRecoverable)
	fmt.Fprintf(&b, "  root_cause: %s\n", fm.RootCause)
	if fm.Mitigation != "" {
		fmt.Fprintf(&b, "  mitigation: %s\n", fm.Mitigation)
	}
	excerpt := fm.Excerpt
	if len(excerpt) > 300 {
		excerpt = excerpt[:300] + "..."
	}
	fmt.Fprintf(&b, "  log: %s", strings.TrimSpace(excerpt))
	return b.String()
}
