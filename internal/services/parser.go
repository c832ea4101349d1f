package services

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// The language model answers in YAML. These payloads are the only shapes
// accepted at the boundary; anything that fails to decode or validate is a
// MalformedOutputError and never reaches the data model.

type diagnosisPayload struct {
	RootCause     string `yaml:"root_cause"`
	ErrorType     string `yaml:"error_type"`
	Source        string `yaml:"source"`
	IsRecoverable bool   `yaml:"is_recoverable"`
	Mitigation    string `yaml:"mitigation"`
	NewRuleRegex  string `yaml:"new_rule_regex"`
}

type patternPayload struct {
	IsPattern   bool   `yaml:"is_pattern"`
	Regex       string `yaml:"regex"`
	Description string `yaml:"description"`
}

func parseDiagnosisOutput(text string) (*diagnosisPayload, error) {
	var payload diagnosisPayload
	if err := decodeYAML(text, &payload); err != nil {
		return nil, err
	}
	if strings.TrimSpace(payload.RootCause) == "" {
		return nil, &MalformedOutputError{Raw: text, Err: fmt.Errorf("missing root_cause")}
	}
	if strings.TrimSpace(payload.ErrorType) == "" {
		return nil, &MalformedOutputError{Raw: text, Err: fmt.Errorf("missing error_type")}
	}
	if payload.IsRecoverable && strings.TrimSpace(payload.Mitigation) == "" {
		return nil, &MalformedOutputError{Raw: text, Err: fmt.Errorf("recoverable diagnosis without mitigation")}
	}
	return &payload, nil
}

func parsePatternOutput(text string) (*patternPayload, error) {
	var payload patternPayload
	if err := decodeYAML(text, &payload); err != nil {
		return nil, err
	}
	if payload.IsPattern && strings.TrimSpace(payload.Regex) == "" {
		return nil, &MalformedOutputError{Raw: text, Err: fmt.Errorf("is_pattern set without a regex")}
	}
	return &payload, nil
}

func decodeYAML(text string, out interface{}) error {
	clean := stripMarkdownFences(text)
	if strings.TrimSpace(clean) == "" {
		return &MalformedOutputError{Raw: text, Err: fmt.Errorf("empty response")}
	}

	if err := yaml.Unmarshal([]byte(clean), out); err != nil {
		// Models often double-quote regex values and break YAML escaping.
		// Requote and try once more before giving up.
		fixed := fixYAMLQuoting(clean)
		if ferr := yaml.Unmarshal([]byte(fixed), out); ferr != nil {
			return &MalformedOutputError{Raw: text, Err: err}
		}
	}
	return nil
}

// stripMarkdownFences removes a surrounding ``` or ```yaml block if present.
func stripMarkdownFences(text string) string {
	clean := strings.TrimSpace(text)
	if !strings.HasPrefix(clean, "```") {
		return clean
	}
	lines := strings.Split(clean, "\n")
	if len(lines) > 0 && strings.HasPrefix(lines[0], "```") {
		lines = lines[1:]
	}
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// fixYAMLQuoting converts double-quoted regex/pattern values to single
// quotes, which survive backslashes that are illegal in YAML double quotes.
func fixYAMLQuoting(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if !strings.Contains(line, "regex") || !strings.Contains(line, "\"") {
			continue
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		value = strings.TrimSpace(value)
		if strings.HasPrefix(value, "\"") && strings.HasSuffix(value, "\"") && len(value) >= 2 {
			inner := strings.ReplaceAll(value[1:len(value)-1], "'", "''")
			lines[i] = fmt.Sprintf("%s: '%s'", key, inner)
		}
	}
	return strings.Join(lines, "\n")
}
