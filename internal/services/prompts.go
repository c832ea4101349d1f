package services

import (
	"fmt"
	"strings"
)

const diagnosisFormatInstructions = `Respond in YAML with exactly these fields:

root_cause: "concise summary of the root cause"  # required
error_type: "NCCLTimeout"  # short categorical label, e.g. NVLinkError, LossSpike, OOMError
source: infrastructure_failure  # one of: application_failure, infrastructure_failure, unknown
is_recoverable: true  # can the system likely recover automatically
mitigation: "action for the user or operations team"
new_rule_regex: 'ERROR: NCCL timeout on rank \d+'  # Go regex matching this error signature, or null

Important:
- Use proper YAML syntax, booleans lowercase
- Quote regex values with single quotes
- Do not include markdown code blocks`

const patternFormatInstructions = `Respond in YAML with exactly these fields:

is_pattern: true  # true only if the lines share a stable, repetitive, non-error shape
regex: '\[METRIC\] step=\d+'  # Go regex matching the shared shape, or null
description: "what this pattern represents, e.g. training metric log"

Important:
- Use proper YAML syntax, booleans lowercase
- Quote regex values with single quotes
- Do not include markdown code blocks`

// diagnosisPrompt grounds the reasoning request with retrieved context.
func diagnosisPrompt(failureLog, retrievedContext string) string {
	if strings.TrimSpace(retrievedContext) == "" {
		retrievedContext = "(no similar past failures on record)"
	}
	return fmt.Sprintf(`You are a failure diagnosis agent for a large-model training platform.
Analyze the error log below and determine the root cause of the job failure.
Use the context from similar past failures to improve your diagnosis.

Context from similar past failures:
%s

Current error log to diagnose:
`+"```"+`
%s
`+"```"+`

Your task:
1. Identify the root cause of the failure.
2. Classify the error type (e.g. NVLinkError, LossSpike, OOMError).
3. Decide whether this is an application_failure (such as a data issue) or an infrastructure_failure (such as a hardware problem).
4. Provide a clear, actionable mitigation for the user or operations team.
5. Indicate whether the failure is likely automatically recoverable (e.g. rolling back for a loss spike).
6. Generate a new, concise Go regex that detects this specific error signature for rule-based matching in the future.

%s`, retrievedContext, strings.TrimSpace(failureLog), diagnosisFormatInstructions)
}

// patternPrompt asks for a filter regex over lines that slipped past every
// existing filter rule but are not failures.
func patternPrompt(lines []string) string {
	trimmed := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed = append(trimmed, strings.TrimSpace(line))
	}
	return fmt.Sprintf(`You are an expert log analysis agent. The log lines below were not matched
by any existing filter rule. Decide whether they follow a common, repetitive
pattern that is NOT an error, such as:
- Training metric logs (e.g. "[METRIC] ... step=10, loss=2.3, ...")
- Initialization messages (e.g. "[INFO] ... System initialization ...")
- Debug or framework messages (e.g. "[DEBUG] ... Memory allocation check ...")

Log lines to analyze:
%s

If a stable shared pattern exists, produce a regex that matches it.

%s`, strings.Join(trimmed, "\n"), patternFormatInstructions)
}
