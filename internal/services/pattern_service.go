package services

import (
	"context"
	"regexp"
	"strings"

	"github.com/traindiag/traindiag/internal/logger"
	"github.com/traindiag/traindiag/internal/models"
)

// PatternAgent learns new filter rules from escalated lines that turned out
// to be routine noise. A synthesized regex must compile and match at least
// one of the buffered lines, otherwise it is discarded before it can ever
// reach the store.
type PatternAgent struct {
	llm          Completer
	parseRetries int
	votes        int
}

func NewPatternAgent(llm Completer, parseRetries, votes int) *PatternAgent {
	if votes < 1 {
		votes = 1
	}
	return &PatternAgent{llm: llm, parseRetries: parseRetries, votes: votes}
}

// Synthesize proposes a filter rule for the buffered lines, or nil when the
// buffer is empty, the model sees no stable pattern, or the proposal fails
// self-validation.
func (pa *PatternAgent) Synthesize(ctx context.Context, lines []string) (*models.FilterRule, error) {
	if len(lines) == 0 {
		return nil, nil
	}

	prompt := patternPrompt(lines)

	// Self-consistency: take the most frequently proposed regex.
	proposals := make([]*patternPayload, 0, pa.votes)
	var lastErr error
	for i := 0; i < pa.votes; i++ {
		payload, err := pa.completeAndParse(ctx, prompt)
		if err != nil {
			if IsTransient(err) {
				return nil, err
			}
			lastErr = err
			continue
		}
		if payload.IsPattern && strings.TrimSpace(payload.Regex) != "" {
			proposals = append(proposals, payload)
		}
	}
	if len(proposals) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		logger.WithComponent("pattern_agent").Debug("No consistent pattern found")
		return nil, nil
	}

	chosen := mostCommonProposal(proposals)
	pattern := strings.TrimSpace(chosen.Regex)

	re, err := regexp.Compile(pattern)
	if err != nil {
		verr := &RuleValidationError{Pattern: pattern, Err: err}
		logger.WithError(verr, "pattern_agent").Warn("Discarding uncompilable filter rule")
		return nil, nil
	}
	if !matchesAny(re, lines) {
		logger.WithComponent("pattern_agent").WithField("pattern", pattern).
			Warn("Discarding filter rule that matches none of the buffered lines")
		return nil, nil
	}

	rule := models.NewFilterRule(pattern, strings.TrimSpace(chosen.Description))
	logger.WithRule(rule.ID, rule.Pattern).Info("Synthesized new filter rule")
	return &rule, nil
}

func (pa *PatternAgent) completeAndParse(ctx context.Context, prompt string) (*patternPayload, error) {
	var lastErr error
	for attempt := 0; attempt <= pa.parseRetries; attempt++ {
		raw, err := pa.llm.Complete(ctx, prompt)
		if err != nil {
			return nil, err
		}
		payload, perr := parsePatternOutput(raw)
		if perr == nil {
			return payload, nil
		}
		lastErr = perr
	}
	return nil, lastErr
}

func mostCommonProposal(proposals []*patternPayload) *patternPayload {
	counts := make(map[string]int)
	for _, p := range proposals {
		counts[strings.TrimSpace(p.Regex)]++
	}
	chosen := proposals[0]
	best := 0
	for _, p := range proposals {
		if c := counts[strings.TrimSpace(p.Regex)]; c > best {
			best = c
			chosen = p
		}
	}
	return chosen
}

func matchesAny(re *regexp.Regexp, lines []string) bool {
	for _, line := range lines {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}
