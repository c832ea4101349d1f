package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/traindiag/traindiag/internal/models"
)

func TestAppendFilterRuleDedup(t *testing.T) {
	rs := NewRuleStore(t.TempDir())

	rule := models.NewFilterRule(`METRIC step=\d+`, "training metrics")
	added, err := rs.AppendFilterRule(rule)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !added {
		t.Error("Expected first append to add the rule")
	}

	// Same pattern with surrounding whitespace and a different id.
	duplicate := models.NewFilterRule(`  METRIC step=\d+  `, "duplicate")
	added, err = rs.AppendFilterRule(duplicate)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if added {
		t.Error("Expected duplicate pattern to be rejected")
	}
	if len(rs.FilterRules()) != 1 {
		t.Errorf("Expected 1 rule, got %d", len(rs.FilterRules()))
	}
}

func TestAppendRejectsInvalidPattern(t *testing.T) {
	rs := NewRuleStore(t.TempDir())

	if _, err := rs.AppendFilterRule(models.NewFilterRule(`[unclosed`, "")); err == nil {
		t.Error("Expected invalid filter pattern to be rejected")
	}
	diagnosis := models.NewDiagnosisRule(`(bad`, models.FailureRecord{
		RootCause: "x", ErrorType: "Y", Source: models.SourceUnknown, Provenance: models.ProvenanceLLMGenerated,
	})
	if _, err := rs.AppendDiagnosisRule(diagnosis); err == nil {
		t.Error("Expected invalid diagnosis pattern to be rejected")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	rs := NewRuleStore(dir)

	first := models.NewFilterRule(`METRIC`, "metrics")
	second := models.NewFilterRule(`DEBUG dataloader`, "dataloader noise")
	rs.AppendFilterRule(first)
	rs.AppendFilterRule(second)

	record := models.FailureRecord{
		RootCause:     "NCCL watchdog timed out on rank 41",
		ErrorType:     "NCCLTimeout",
		Source:        models.SourceInfrastructure,
		IsRecoverable: true,
		Mitigation:    "cordon the faulty node",
		Provenance:    models.ProvenanceLLMGenerated,
	}
	diagnosis := models.NewDiagnosisRule(`NCCL watchdog timeout`, record)
	rs.AppendDiagnosisRule(diagnosis)

	rs.RecordFilterHit(first.ID)
	rs.RecordFilterHit(first.ID)
	rs.RecordDiagnosisMatch(diagnosis.ID)

	if err := rs.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	reloaded := NewRuleStore(dir)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	filters := reloaded.FilterRules()
	if len(filters) != 2 {
		t.Fatalf("Expected 2 filter rules, got %d", len(filters))
	}
	if filters[0].ID != first.ID || filters[1].ID != second.ID {
		t.Error("Expected insertion order to survive the round trip")
	}
	if filters[0].HitCount != 2 {
		t.Errorf("Expected hit count 2, got %d", filters[0].HitCount)
	}

	diagnoses := reloaded.DiagnosisRules()
	if len(diagnoses) != 1 {
		t.Fatalf("Expected 1 diagnosis rule, got %d", len(diagnoses))
	}
	got := diagnoses[0]
	if got.RootCause != record.RootCause || got.ErrorType != record.ErrorType ||
		got.Source != record.Source || !got.IsRecoverable || got.Mitigation != record.Mitigation {
		t.Errorf("Diagnosis rule fields did not survive the round trip: %+v", got)
	}
	if got.MatchCount != 1 {
		t.Errorf("Expected match count 1, got %d", got.MatchCount)
	}
}

func TestLoadMissingStoreStartsEmpty(t *testing.T) {
	rs := NewRuleStore(filepath.Join(t.TempDir(), "does-not-exist"))
	if err := rs.Load(); err != nil {
		t.Fatalf("Expected missing store to load empty, got %v", err)
	}
	if len(rs.FilterRules()) != 0 || len(rs.DiagnosisRules()) != 0 {
		t.Error("Expected empty collections on first run")
	}
}

func TestSaveEmptyStoreWritesArrays(t *testing.T) {
	dir := t.TempDir()
	rs := NewRuleStore(dir)
	if err := rs.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	for _, name := range []string{filterRulesFile, diagnosisRulesFile} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("Expected %s to exist: %v", name, err)
		}
		if string(data) != "[]" {
			t.Errorf("Expected %s to contain an empty array, got %q", name, string(data))
		}
	}
}

func TestSaveConcurrentWithHitCounts(t *testing.T) {
	dir := t.TempDir()
	rs := NewRuleStore(dir)
	rule := models.NewFilterRule(`METRIC`, "")
	rs.AppendFilterRule(rule)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			rs.RecordFilterHit(rule.ID)
		}
	}()
	for i := 0; i < 50; i++ {
		if err := rs.Save(); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}
	<-done

	if err := rs.Save(); err != nil {
		t.Fatalf("Final save failed: %v", err)
	}
	reloaded := NewRuleStore(dir)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if hits := reloaded.FilterRules()[0].HitCount; hits != 200 {
		t.Errorf("Expected 200 hits after the final save, got %d", hits)
	}
}

func TestReset(t *testing.T) {
	dir := t.TempDir()
	rs := NewRuleStore(dir)
	rs.AppendFilterRule(models.NewFilterRule(`METRIC`, ""))
	if err := rs.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := rs.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if len(rs.FilterRules()) != 0 {
		t.Error("Expected in-memory collection to be cleared")
	}

	reloaded := NewRuleStore(dir)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(reloaded.FilterRules()) != 0 {
		t.Error("Expected on-disk collection to be cleared")
	}
}
