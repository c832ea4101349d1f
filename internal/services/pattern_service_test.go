package services

import (
	"context"
	"testing"
)

var evalNoise = []string{
	"2026-03-14T02:11:19Z INFO eval: scheduled next evaluation step=184500",
	"2026-03-14T02:12:35Z INFO eval: scheduled next evaluation step=184500",
}

func TestSynthesizeEmptyBuffer(t *testing.T) {
	llm := &scriptedCompleter{responses: []string{"should never be called"}}
	agent := NewPatternAgent(llm, 2, 1)

	rule, err := agent.Synthesize(context.Background(), nil)
	if err != nil || rule != nil {
		t.Errorf("Expected nothing for an empty buffer, got rule=%v err=%v", rule, err)
	}
	if llm.calls != 0 {
		t.Errorf("Expected no model calls, got %d", llm.calls)
	}
}

func TestSynthesizeValidProposal(t *testing.T) {
	llm := &scriptedCompleter{responses: []string{
		"is_pattern: true\nregex: 'INFO eval: scheduled next evaluation'\ndescription: evaluation scheduling notices",
	}}
	agent := NewPatternAgent(llm, 2, 1)

	rule, err := agent.Synthesize(context.Background(), evalNoise)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if rule == nil {
		t.Fatal("Expected a synthesized rule")
	}
	if rule.Pattern != "INFO eval: scheduled next evaluation" {
		t.Errorf("Unexpected pattern: %q", rule.Pattern)
	}
	if rule.ID == "" {
		t.Error("Expected a fresh rule id")
	}
}

func TestSynthesizeNoPattern(t *testing.T) {
	llm := &scriptedCompleter{responses: []string{"is_pattern: false\nregex: ''\ndescription: ''"}}
	agent := NewPatternAgent(llm, 2, 1)

	rule, err := agent.Synthesize(context.Background(), evalNoise)
	if err != nil || rule != nil {
		t.Errorf("Expected no rule when the model sees no pattern, got rule=%v err=%v", rule, err)
	}
}

func TestSynthesizeDiscardsNonMatchingProposal(t *testing.T) {
	llm := &scriptedCompleter{responses: []string{
		"is_pattern: true\nregex: 'DEBUG checkpoint upload'\ndescription: wrong noise entirely",
	}}
	agent := NewPatternAgent(llm, 2, 1)

	rule, err := agent.Synthesize(context.Background(), evalNoise)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if rule != nil {
		t.Errorf("Expected the non-matching proposal to be discarded, got %+v", rule)
	}
}

func TestSynthesizeDiscardsUncompilableProposal(t *testing.T) {
	llm := &scriptedCompleter{responses: []string{
		"is_pattern: true\nregex: '[unclosed'\ndescription: broken",
	}}
	agent := NewPatternAgent(llm, 2, 1)

	rule, err := agent.Synthesize(context.Background(), evalNoise)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if rule != nil {
		t.Errorf("Expected the uncompilable proposal to be discarded, got %+v", rule)
	}
}

func TestSynthesizeVotesForMostCommonRegex(t *testing.T) {
	llm := &scriptedCompleter{responses: []string{
		"is_pattern: true\nregex: 'INFO eval: scheduled next evaluation'\ndescription: a",
		"is_pattern: true\nregex: 'INFO eval'\ndescription: b",
		"is_pattern: true\nregex: 'INFO eval: scheduled next evaluation'\ndescription: c",
	}}
	agent := NewPatternAgent(llm, 2, 3)

	rule, err := agent.Synthesize(context.Background(), evalNoise)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if rule == nil {
		t.Fatal("Expected a synthesized rule")
	}
	if rule.Pattern != "INFO eval: scheduled next evaluation" {
		t.Errorf("Expected the majority regex, got %q", rule.Pattern)
	}
	if llm.calls != 3 {
		t.Errorf("Expected 3 votes, got %d calls", llm.calls)
	}
}

func TestSynthesizeMalformedEveryVote(t *testing.T) {
	llm := &scriptedCompleter{responses: []string{"no structure here"}}
	agent := NewPatternAgent(llm, 1, 1)

	_, err := agent.Synthesize(context.Background(), evalNoise)
	if err == nil {
		t.Fatal("Expected an error when every vote is malformed")
	}
	if !IsMalformedOutput(err) {
		t.Errorf("Expected MalformedOutputError, got %v", err)
	}
}
