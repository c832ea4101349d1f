package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/traindiag/traindiag/internal/logger"
	"github.com/traindiag/traindiag/internal/models"
)

const (
	filterRulesFile    = "filter_rules.json"
	diagnosisRulesFile = "diagnosis_rules.json"
)

// PersistenceError means a rule collection could not be written. It is fatal
// for the learning step that triggered it, but the stream keeps going.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// RuleStore holds the two learned rule collections and persists each as a
// whole JSON file. Appends dedup on the normalized pattern; files are
// replaced atomically on save. A single mutex gives the single-writer
// discipline the learning transitions rely on.
type RuleStore struct {
	dir string

	mu        sync.RWMutex
	filters   []models.FilterRule
	diagnoses []models.DiagnosisRule
}

func NewRuleStore(dir string) *RuleStore {
	return &RuleStore{dir: dir}
}

// Load reads both collections. A missing directory or file means a first
// run: the store starts empty and Load does not fail.
func (rs *RuleStore) Load() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	rs.filters = nil
	rs.diagnoses = nil

	if err := readJSONFile(filepath.Join(rs.dir, filterRulesFile), &rs.filters); err != nil {
		return fmt.Errorf("failed to load filter rules: %w", err)
	}
	if err := readJSONFile(filepath.Join(rs.dir, diagnosisRulesFile), &rs.diagnoses); err != nil {
		return fmt.Errorf("failed to load diagnosis rules: %w", err)
	}

	logger.Info("Rule store loaded", map[string]interface{}{
		"filter_rules":    len(rs.filters),
		"diagnosis_rules": len(rs.diagnoses),
	})
	return nil
}

// AppendFilterRule inserts the rule unless an equivalent pattern is already
// stored. Returns true when the rule was added.
func (rs *RuleStore) AppendFilterRule(rule models.FilterRule) (bool, error) {
	if err := rule.Validate(); err != nil {
		return false, err
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	pattern := normalizePattern(rule.Pattern)
	for _, existing := range rs.filters {
		if normalizePattern(existing.Pattern) == pattern {
			return false, nil
		}
	}
	rs.filters = append(rs.filters, rule)
	return true, nil
}

// AppendDiagnosisRule inserts the rule unless an equivalent pattern is
// already stored. Returns true when the rule was added.
func (rs *RuleStore) AppendDiagnosisRule(rule models.DiagnosisRule) (bool, error) {
	if err := rule.Validate(); err != nil {
		return false, err
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	pattern := normalizePattern(rule.Pattern)
	for _, existing := range rs.diagnoses {
		if normalizePattern(existing.Pattern) == pattern {
			return false, nil
		}
	}
	rs.diagnoses = append(rs.diagnoses, rule)
	return true, nil
}

// FilterRules returns the collection in insertion order.
func (rs *RuleStore) FilterRules() []models.FilterRule {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	out := make([]models.FilterRule, len(rs.filters))
	copy(out, rs.filters)
	return out
}

// DiagnosisRules returns the collection in insertion order.
func (rs *RuleStore) DiagnosisRules() []models.DiagnosisRule {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	out := make([]models.DiagnosisRule, len(rs.diagnoses))
	copy(out, rs.diagnoses)
	return out
}

// RecordFilterHit increments a filter rule's hit count in memory; the count
// reaches disk on the next Save.
func (rs *RuleStore) RecordFilterHit(ruleID string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for i := range rs.filters {
		if rs.filters[i].ID == ruleID {
			rs.filters[i].HitCount++
			return
		}
	}
}

// RecordDiagnosisMatch increments a diagnosis rule's match count in memory.
func (rs *RuleStore) RecordDiagnosisMatch(ruleID string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for i := range rs.diagnoses {
		if rs.diagnoses[i].ID == ruleID {
			rs.diagnoses[i].MatchCount++
			return
		}
	}
}

// Save flushes both collections. It encodes a deep copy so concurrent count
// updates cannot race the encoder. Each file is written to a temp file in
// the same directory and renamed over the old one, so readers never observe
// a partial write.
func (rs *RuleStore) Save() error {
	filters := rs.FilterRules()
	diagnoses := rs.DiagnosisRules()

	if err := os.MkdirAll(rs.dir, 0o755); err != nil {
		return &PersistenceError{Path: rs.dir, Err: err}
	}
	if err := writeJSONAtomic(filepath.Join(rs.dir, filterRulesFile), filters); err != nil {
		return err
	}
	return writeJSONAtomic(filepath.Join(rs.dir, diagnosisRulesFile), diagnoses)
}

// Reset truncates both collections in memory and on disk.
func (rs *RuleStore) Reset() error {
	rs.mu.Lock()
	rs.filters = nil
	rs.diagnoses = nil
	rs.mu.Unlock()
	return rs.Save()
}

func normalizePattern(pattern string) string {
	return strings.TrimSpace(pattern)
}

func readJSONFile(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func writeJSONAtomic(path string, value interface{}) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return &PersistenceError{Path: path, Err: err}
	}
	// A nil slice marshals to "null"; an empty store is still a collection.
	if string(data) == "null" {
		data = []byte("[]")
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return &PersistenceError{Path: path, Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &PersistenceError{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &PersistenceError{Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return &PersistenceError{Path: path, Err: err}
	}
	return nil
}
