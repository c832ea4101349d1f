package services

import (
	"regexp"
	"strings"
	"sync"

	"github.com/traindiag/traindiag/internal/logger"
	"github.com/traindiag/traindiag/internal/models"
	"github.com/traindiag/traindiag/internal/store"
)

// Classification is the log filter's verdict for one line.
type Classification int

const (
	Suppressed Classification = iota
	Escalated
)

type compiledFilter struct {
	id string
	re *regexp.Regexp
}

// LogFilter suppresses routine lines. Rules are evaluated in insertion
// order and the first match wins, so established rules keep priority over
// newer overlapping ones. Escalated non-failure lines accumulate in a
// bounded buffer consumed by the pattern agent.
type LogFilter struct {
	rules *store.RuleStore

	mu       sync.Mutex
	compiled []compiledFilter
	buffer   []string
	capacity int
}

// NewLogFilter compiles the store's filter rules. Rules whose pattern no
// longer compiles (hand-edited files) are skipped with a warning rather
// than taking the pipeline down.
func NewLogFilter(rules *store.RuleStore, bufferCapacity int) *LogFilter {
	lf := &LogFilter{rules: rules, capacity: bufferCapacity}
	for _, rule := range rules.FilterRules() {
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			logger.WithRule(rule.ID, rule.Pattern).Warnf("Skipping uncompilable filter rule: %v", err)
			continue
		}
		lf.compiled = append(lf.compiled, compiledFilter{id: rule.ID, re: re})
	}
	return lf
}

// Classify runs the line through every filter rule in insertion order. A
// match suppresses the line and bumps the rule's hit count.
func (lf *LogFilter) Classify(line string) Classification {
	if strings.TrimSpace(line) == "" {
		return Suppressed
	}

	lf.mu.Lock()
	defer lf.mu.Unlock()
	for _, cf := range lf.compiled {
		if cf.re.MatchString(line) {
			lf.rules.RecordFilterHit(cf.id)
			return Suppressed
		}
	}
	return Escalated
}

// Adopt registers a newly learned rule that the store accepted, so it takes
// effect without a reload. It is appended after existing rules, preserving
// first-match priority.
func (lf *LogFilter) Adopt(rule models.FilterRule) error {
	re, err := regexp.Compile(rule.Pattern)
	if err != nil {
		return err
	}
	lf.mu.Lock()
	lf.compiled = append(lf.compiled, compiledFilter{id: rule.ID, re: re})
	lf.mu.Unlock()
	return nil
}

// Observe buffers an escalated-but-not-failure line for the pattern agent.
// The buffer is bounded; once full, further lines are dropped until the
// next drain.
func (lf *LogFilter) Observe(line string) {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	if len(lf.buffer) < lf.capacity {
		lf.buffer = append(lf.buffer, line)
	}
}

// BufferFull reports whether the unfiltered-line buffer reached capacity.
func (lf *LogFilter) BufferFull() bool {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	return len(lf.buffer) >= lf.capacity
}

// Drain returns the buffered lines and clears the buffer. It is called for
// every pattern-agent invocation, successful or not, so the same noise is
// never re-learned within a run.
func (lf *LogFilter) Drain() []string {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	lines := lf.buffer
	lf.buffer = nil
	return lines
}
