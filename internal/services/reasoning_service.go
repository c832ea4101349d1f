package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/traindiag/traindiag/internal/logger"
	"github.com/traindiag/traindiag/internal/memory"
	"github.com/traindiag/traindiag/internal/models"
)

// Completer is the single language-model call type the agents depend on.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// FailureReasoner is the slow tier: invoked only on a rule miss, it grounds
// a structured reasoning request with similar past failures and proposes a
// candidate diagnosis rule. It has no persistence side effects; the
// orchestrator owns the learning transition.
type FailureReasoner struct {
	llm          Completer
	store        memory.Store
	retrievalK   int
	parseRetries int
	votes        int
}

func NewFailureReasoner(llm Completer, store memory.Store, retrievalK, parseRetries, votes int) *FailureReasoner {
	if votes < 1 {
		votes = 1
	}
	return &FailureReasoner{
		llm:          llm,
		store:        store,
		retrievalK:   retrievalK,
		parseRetries: parseRetries,
		votes:        votes,
	}
}

// Reason diagnoses an escalated failure line. The returned rule is nil when
// the model proposed no usable regex. Transport failures surface as
// TransientError for the caller's retry budget; schema failures that survive
// the bounded parse retries surface as MalformedOutputError.
func (fr *FailureReasoner) Reason(ctx context.Context, failureLog string) (models.FailureRecord, *models.DiagnosisRule, error) {
	prompt := diagnosisPrompt(failureLog, fr.retrieveContext(ctx, failureLog))

	payloads := make([]*diagnosisPayload, 0, fr.votes)
	var lastErr error
	for i := 0; i < fr.votes; i++ {
		payload, err := fr.completeAndParse(ctx, prompt)
		if err != nil {
			if IsTransient(err) {
				// A transient failure on a later vote does not throw away
				// the responses already collected.
				if len(payloads) == 0 {
					return models.FailureRecord{}, nil, err
				}
				logger.WithError(err, "failure_reasoner").Warn("Vote lost to a transient failure, deciding on collected responses")
				break
			}
			lastErr = err
			continue
		}
		payloads = append(payloads, payload)
	}
	if len(payloads) == 0 {
		return models.FailureRecord{}, nil, lastErr
	}

	chosen := voteDiagnosis(payloads)

	record := models.FailureRecord{
		RootCause:     strings.TrimSpace(chosen.RootCause),
		ErrorType:     strings.TrimSpace(chosen.ErrorType),
		Source:        models.NormalizeSource(chosen.Source),
		IsRecoverable: chosen.IsRecoverable,
		Mitigation:    strings.TrimSpace(chosen.Mitigation),
		Provenance:    models.ProvenanceLLMGenerated,
	}
	if err := record.Validate(); err != nil {
		return models.FailureRecord{}, nil, &MalformedOutputError{Err: err}
	}

	return record, fr.candidateRule(chosen, record), nil
}

// retrieveContext looks up the k most similar past failures. Retrieval
// trouble degrades to reasoning without grounding rather than failing the
// diagnosis; an empty store is simply zero context.
func (fr *FailureReasoner) retrieveContext(ctx context.Context, failureLog string) string {
	memories, err := fr.store.Search(ctx, failureLog, fr.retrievalK)
	if err != nil {
		logger.WithError(err, "failure_reasoner").Warn("Retrieval failed, reasoning without context")
		return ""
	}
	parts := make([]string, 0, len(memories))
	for i := range memories {
		parts = append(parts, memories[i].ContextText())
	}
	return strings.Join(parts, "\n")
}

// completeAndParse retries schema failures with the same prompt up to the
// bounded budget. Transport failures are never retried here; that budget
// belongs to the orchestrator.
func (fr *FailureReasoner) completeAndParse(ctx context.Context, prompt string) (*diagnosisPayload, error) {
	var lastErr error
	for attempt := 0; attempt <= fr.parseRetries; attempt++ {
		raw, err := fr.llm.Complete(ctx, prompt)
		if err != nil {
			return nil, err
		}
		payload, perr := parseDiagnosisOutput(raw)
		if perr == nil {
			return payload, nil
		}
		lastErr = perr
		logger.WithError(perr, "failure_reasoner").Warnf("Structured output rejected (attempt %d/%d)", attempt+1, fr.parseRetries+1)
	}
	return nil, lastErr
}

// candidateRule turns the proposed regex into a diagnosis rule templated
// from the record. A missing or uncompilable regex discards the candidate
// without failing the diagnosis.
func (fr *FailureReasoner) candidateRule(payload *diagnosisPayload, record models.FailureRecord) *models.DiagnosisRule {
	pattern := strings.TrimSpace(payload.NewRuleRegex)
	if pattern == "" || strings.EqualFold(pattern, "null") {
		return nil
	}
	if _, err := regexp.Compile(pattern); err != nil {
		verr := &RuleValidationError{Pattern: pattern, Err: err}
		logger.WithError(verr, "failure_reasoner").Warn("Discarding proposed diagnosis rule")
		return nil
	}
	rule := models.NewDiagnosisRule(pattern, record)
	return &rule
}

// FallbackRecord is the diagnosis of last resort: once every reasoning
// attempt is exhausted the stream still terminates with a concrete record.
func FallbackRecord(reason string) models.FailureRecord {
	rootCause := "diagnosis unavailable"
	if reason != "" {
		rootCause = fmt.Sprintf("diagnosis unavailable: %s", reason)
	}
	return models.FailureRecord{
		RootCause:     rootCause,
		ErrorType:     "unknown",
		Source:        models.SourceUnknown,
		IsRecoverable: false,
		Mitigation:    "manual investigation required",
		Provenance:    models.ProvenanceLLMGenerated,
	}
}

// voteDiagnosis reconciles self-consistency responses: majority on the
// (error_type, is_recoverable) pair; ties go to the response whose
// root_cause sits closest to the cluster centroid, and a full split falls
// back to the first response.
func voteDiagnosis(payloads []*diagnosisPayload) *diagnosisPayload {
	if len(payloads) == 1 {
		return payloads[0]
	}

	counts := make(map[string]int)
	for _, p := range payloads {
		counts[voteKey(p)]++
	}
	best := 0
	for _, c := range counts {
		if c > best {
			best = c
		}
	}

	// Candidates from every group tied at the top.
	var candidates []*diagnosisPayload
	for _, p := range payloads {
		if counts[voteKey(p)] == best {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 1 {
		return candidates[0]
	}

	chosen := candidates[0]
	bestScore := 0.0
	for _, candidate := range candidates {
		score := 0.0
		for _, other := range payloads {
			if other == candidate {
				continue
			}
			score += lexicalSimilarity(candidate.RootCause, other.RootCause)
		}
		if score > bestScore {
			bestScore = score
			chosen = candidate
		}
	}
	return chosen
}

func voteKey(p *diagnosisPayload) string {
	return fmt.Sprintf("%s|%t", strings.ToLower(strings.TrimSpace(p.ErrorType)), p.IsRecoverable)
}

// lexicalSimilarity is token-set Jaccard similarity, enough to find the
// centroid response without extra model calls.
func lexicalSimilarity(a, b string) float64 {
	tokensA := tokenSet(a)
	tokensB := tokenSet(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}
	intersection := 0
	for token := range tokensA {
		if tokensB[token] {
			intersection++
		}
	}
	union := len(tokensA) + len(tokensB) - intersection
	return float64(intersection) / float64(union)
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		set[strings.Trim(token, ".,:;!?()[]{}\"'")] = true
	}
	delete(set, "")
	return set
}
