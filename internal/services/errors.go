package services

import (
	"errors"
	"fmt"
)

// MalformedOutputError means a language-model response failed schema
// validation. Bounded retries happen upstream; the raw text is kept for the
// logs.
type MalformedOutputError struct {
	Raw string
	Err error
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("malformed structured output: %v", e.Err)
}

func (e *MalformedOutputError) Unwrap() error { return e.Err }

// TransientError wraps a network or timeout failure on a model or retrieval
// call. Retryable with backoff up to a bounded budget.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure during %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// RuleValidationError means a synthesized regex failed to compile or failed
// self-validation. The rule is discarded, never stored; the pipeline keeps
// going.
type RuleValidationError struct {
	Pattern string
	Err     error
}

func (e *RuleValidationError) Error() string {
	return fmt.Sprintf("invalid synthesized rule %q: %v", e.Pattern, e.Err)
}

func (e *RuleValidationError) Unwrap() error { return e.Err }

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsMalformedOutput reports whether err is a schema-validation failure.
func IsMalformedOutput(err error) bool {
	var me *MalformedOutputError
	return errors.As(err, &me)
}
