package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/traindiag/traindiag/internal/models"
)

// scriptedCompleter replays canned responses in order, repeating the last
// one once the script runs out. When err is set, calls after the first
// errAfter successes fail with it.
type scriptedCompleter struct {
	responses []string
	err       error
	errAfter  int
	calls     int
}

func (c *scriptedCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	c.calls++
	if c.err != nil && c.calls > c.errAfter {
		return "", c.err
	}
	if len(c.responses) == 0 {
		return "", nil
	}
	i := c.calls - 1
	if i >= len(c.responses) {
		i = len(c.responses) - 1
	}
	return c.responses[i], nil
}

// memoryStub is an in-memory retrieval store for tests.
type memoryStub struct {
	memories  []models.FailureMemory
	inserted  []models.FailureRecord
	searchErr error
}

func (m *memoryStub) Insert(ctx context.Context, record models.FailureRecord, excerpt string) error {
	m.inserted = append(m.inserted, record)
	return nil
}

func (m *memoryStub) Search(ctx context.Context, query string, k int) ([]models.FailureMemory, error) {
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	if k > len(m.memories) {
		k = len(m.memories)
	}
	return m.memories[:k], nil
}

func (m *memoryStub) Recent(ctx context.Context, n int) ([]models.FailureMemory, error) {
	return m.memories, nil
}

func (m *memoryStub) Reset(ctx context.Context) error {
	m.memories = nil
	m.inserted = nil
	return nil
}

func (m *memoryStub) Close() error { return nil }

const ncclDiagnosisYAML = `root_cause: NCCL collective timed out on rank 41
error_type: NCCLTimeout
source: infrastructure_failure
is_recoverable: true
mitigation: cordon the faulty node and restart from the latest checkpoint
new_rule_regex: 'NCCL watchdog timeout'`

func TestReasonProducesRecordAndCandidateRule(t *testing.T) {
	llm := &scriptedCompleter{responses: []string{ncclDiagnosisYAML}}
	reasoner := NewFailureReasoner(llm, &memoryStub{}, 4, 2, 1)

	record, rule, err := reasoner.Reason(context.Background(), "ERROR nccl: NCCL watchdog timeout on rank 41")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if record.Provenance != models.ProvenanceLLMGenerated {
		t.Errorf("Expected llm_generated provenance, got %s", record.Provenance)
	}
	if record.Source != models.SourceInfrastructure {
		t.Errorf("Expected infrastructure source, got %s", record.Source)
	}
	if !record.IsRecoverable || record.Mitigation == "" {
		t.Errorf("Expected recoverable record with mitigation, got %+v", record)
	}
	if rule == nil {
		t.Fatal("Expected a candidate diagnosis rule")
	}
	if rule.Pattern != "NCCL watchdog timeout" {
		t.Errorf("Unexpected rule pattern: %q", rule.Pattern)
	}
	if rule.ErrorType != record.ErrorType || rule.RootCause != record.RootCause {
		t.Error("Expected the rule to be templated from the record")
	}
}

func TestReasonWithEmptyStore(t *testing.T) {
	llm := &scriptedCompleter{responses: []string{ncclDiagnosisYAML}}
	reasoner := NewFailureReasoner(llm, &memoryStub{}, 4, 2, 1)

	if _, _, err := reasoner.Reason(context.Background(), "ERROR nccl: NCCL watchdog timeout"); err != nil {
		t.Errorf("Expected an empty store to be fine, got %v", err)
	}
}

func TestReasonRetrievalFailureDegrades(t *testing.T) {
	llm := &scriptedCompleter{responses: []string{ncclDiagnosisYAML}}
	mem := &memoryStub{searchErr: fmt.Errorf("store offline")}
	reasoner := NewFailureReasoner(llm, mem, 4, 2, 1)

	if _, _, err := reasoner.Reason(context.Background(), "ERROR nccl: NCCL watchdog timeout"); err != nil {
		t.Errorf("Expected reasoning without context, got %v", err)
	}
}

func TestReasonNullRegexYieldsNoRule(t *testing.T) {
	raw := `root_cause: unclear transient failure
error_type: unknown
source: unknown
is_recoverable: false
mitigation: ''
new_rule_regex: 'null'`
	llm := &scriptedCompleter{responses: []string{raw}}
	reasoner := NewFailureReasoner(llm, &memoryStub{}, 4, 2, 1)

	_, rule, err := reasoner.Reason(context.Background(), "ERROR trainer: something odd")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if rule != nil {
		t.Errorf("Expected no candidate rule, got %+v", rule)
	}
}

func TestReasonUncompilableRegexDiscarded(t *testing.T) {
	raw := `root_cause: NCCL collective timed out
error_type: NCCLTimeout
source: infrastructure_failure
is_recoverable: false
mitigation: ''
new_rule_regex: '[unclosed'`
	llm := &scriptedCompleter{responses: []string{raw}}
	reasoner := NewFailureReasoner(llm, &memoryStub{}, 4, 2, 1)

	record, rule, err := reasoner.Reason(context.Background(), "ERROR nccl: NCCL watchdog timeout")
	if err != nil {
		t.Fatalf("Expected the diagnosis to survive a bad regex, got %v", err)
	}
	if rule != nil {
		t.Error("Expected the uncompilable candidate to be discarded")
	}
	if record.ErrorType != "NCCLTimeout" {
		t.Errorf("Unexpected record: %+v", record)
	}
}

func TestReasonParseRetriesThenMalformed(t *testing.T) {
	llm := &scriptedCompleter{responses: []string{"not structured output at all"}}
	reasoner := NewFailureReasoner(llm, &memoryStub{}, 4, 2, 1)

	_, _, err := reasoner.Reason(context.Background(), "ERROR trainer: broken")
	if err == nil {
		t.Fatal("Expected an error after the parse budget")
	}
	if !IsMalformedOutput(err) {
		t.Errorf("Expected MalformedOutputError, got %v", err)
	}
	if llm.calls != 3 {
		t.Errorf("Expected initial attempt plus 2 retries, got %d calls", llm.calls)
	}
}

func TestReasonParseRetryRecovers(t *testing.T) {
	llm := &scriptedCompleter{responses: []string{"garbage first", ncclDiagnosisYAML}}
	reasoner := NewFailureReasoner(llm, &memoryStub{}, 4, 2, 1)

	_, _, err := reasoner.Reason(context.Background(), "ERROR nccl: NCCL watchdog timeout")
	if err != nil {
		t.Errorf("Expected the retry to recover, got %v", err)
	}
	if llm.calls != 2 {
		t.Errorf("Expected 2 calls, got %d", llm.calls)
	}
}

func TestReasonTransientSurfacesImmediately(t *testing.T) {
	llm := &scriptedCompleter{err: &TransientError{Op: "generate", Err: errors.New("connection refused")}}
	reasoner := NewFailureReasoner(llm, &memoryStub{}, 4, 2, 3)

	_, _, err := reasoner.Reason(context.Background(), "ERROR trainer: broken")
	if !IsTransient(err) {
		t.Errorf("Expected a transient error, got %v", err)
	}
	if llm.calls != 1 {
		t.Errorf("Expected transient failures to skip remaining votes, got %d calls", llm.calls)
	}
}

func TestReasonTransientLaterVoteKeepsCollectedResponses(t *testing.T) {
	llm := &scriptedCompleter{
		responses: []string{ncclDiagnosisYAML},
		err:       &TransientError{Op: "generate", Err: errors.New("connection reset")},
		errAfter:  2,
	}
	reasoner := NewFailureReasoner(llm, &memoryStub{}, 4, 2, 3)

	record, _, err := reasoner.Reason(context.Background(), "ERROR nccl: NCCL watchdog timeout")
	if err != nil {
		t.Fatalf("Expected the collected votes to decide, got %v", err)
	}
	if record.ErrorType != "NCCLTimeout" {
		t.Errorf("Unexpected record: %+v", record)
	}
	if llm.calls != 3 {
		t.Errorf("Expected the third vote to be the one lost, got %d calls", llm.calls)
	}
}

func TestVoteDiagnosisMajority(t *testing.T) {
	a := &diagnosisPayload{RootCause: "oom on device 5", ErrorType: "CUDAOOM", IsRecoverable: true, Mitigation: "x"}
	b := &diagnosisPayload{RootCause: "out of memory on device 5", ErrorType: "CUDAOOM", IsRecoverable: true, Mitigation: "y"}
	c := &diagnosisPayload{RootCause: "network flake", ErrorType: "NCCLTimeout", IsRecoverable: false}

	chosen := voteDiagnosis([]*diagnosisPayload{a, c, b})
	if chosen.ErrorType != "CUDAOOM" {
		t.Errorf("Expected the majority error type, got %s", chosen.ErrorType)
	}
}

func TestVoteDiagnosisTieBreaksOnCentroid(t *testing.T) {
	// Two groups of one; the centroid root cause shares more tokens with the
	// rest of the responses.
	a := &diagnosisPayload{RootCause: "completely unrelated phrasing", ErrorType: "A", IsRecoverable: false}
	b := &diagnosisPayload{RootCause: "nccl collective timed out on rank 41", ErrorType: "B", IsRecoverable: false}
	c := &diagnosisPayload{RootCause: "nccl collective timed out on a rank", ErrorType: "B", IsRecoverable: true}

	chosen := voteDiagnosis([]*diagnosisPayload{a, b, c})
	if chosen != b {
		t.Errorf("Expected the centroid response, got %+v", chosen)
	}
}

func TestVoteDiagnosisFullSplitFallsBackToFirst(t *testing.T) {
	a := &diagnosisPayload{RootCause: "alpha", ErrorType: "A", IsRecoverable: false}
	b := &diagnosisPayload{RootCause: "beta", ErrorType: "B", IsRecoverable: false}
	if chosen := voteDiagnosis([]*diagnosisPayload{a, b}); chosen != a {
		t.Errorf("Expected the first response on a full split, got %+v", chosen)
	}
}

func TestFallbackRecord(t *testing.T) {
	record := FallbackRecord("reasoning exhausted")
	if err := record.Validate(); err != nil {
		t.Fatalf("Expected a valid fallback record, got %v", err)
	}
	if record.ErrorType != "unknown" || record.IsRecoverable {
		t.Errorf("Unexpected fallback record: %+v", record)
	}
	if record.Mitigation != "manual investigation required" {
		t.Errorf("Unexpected mitigation: %q", record.Mitigation)
	}
}
