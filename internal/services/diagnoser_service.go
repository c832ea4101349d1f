package services

import (
	"regexp"
	"sync"

	"github.com/traindiag/traindiag/internal/logger"
	"github.com/traindiag/traindiag/internal/models"
	"github.com/traindiag/traindiag/internal/store"
)

// RuleDiagnoser is the fast tier: a deterministic first-match lookup over
// the learned diagnosis rules. It never calls the language model or the
// retrieval store.
type RuleDiagnoser struct {
	rules *store.RuleStore

	mu       sync.Mutex
	compiled map[string]*regexp.Regexp
}

func NewRuleDiagnoser(rules *store.RuleStore) *RuleDiagnoser {
	return &RuleDiagnoser{
		rules:    rules,
		compiled: make(map[string]*regexp.Regexp),
	}
}

// Diagnose matches the escalated line against the diagnosis rules in
// insertion order. The first match returns that rule's templated record
// and bumps its match count; no match is a miss.
func (rd *RuleDiagnoser) Diagnose(line string) (models.FailureRecord, bool) {
	for _, rule := range rd.rules.DiagnosisRules() {
		re, err := rd.compile(rule.ID, rule.Pattern)
		if err != nil {
			logger.WithRule(rule.ID, rule.Pattern).Warnf("Skipping uncompilable diagnosis rule: %v", err)
			continue
		}
		if re.MatchString(line) {
			rd.rules.RecordDiagnosisMatch(rule.ID)
			return rule.Record(), true
		}
	}
	return models.FailureRecord{}, false
}

func (rd *RuleDiagnoser) compile(id, pattern string) (*regexp.Regexp, error) {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	if re, ok := rd.compiled[id]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	rd.compiled[id] = re
	return re, nil
}
