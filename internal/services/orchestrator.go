package services

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/traindiag/traindiag/internal/config"
	"github.com/traindiag/traindiag/internal/logger"
	"github.com/traindiag/traindiag/internal/memory"
	"github.com/traindiag/traindiag/internal/models"
	"github.com/traindiag/traindiag/internal/store"
)

// Diagnosis is one resolved failure: the escalated line, its record and the
// recommended recovery action.
type Diagnosis struct {
	Line   string                `json:"line"`
	Record models.FailureRecord  `json:"record"`
	Action models.RecoveryAction `json:"action"`
}

// Orchestrator drives the streaming pipeline: chunked ingestion, filtering,
// two-tier diagnosis and the learning transitions that persist what the
// agents produce. Learning takes a single-writer lock so multiple monitored
// streams can share the rule store and the retrieval store.
type Orchestrator struct {
	cfg       *config.Config
	rules     *store.RuleStore
	mem       memory.Store
	filter    *LogFilter
	diagnoser *RuleDiagnoser
	reasoner  *FailureReasoner
	patterns  *PatternAgent
	advisor   RecoveryAdvisor

	learnMu sync.Mutex
}

func NewOrchestrator(
	cfg *config.Config,
	rules *store.RuleStore,
	mem memory.Store,
	filter *LogFilter,
	diagnoser *RuleDiagnoser,
	reasoner *FailureReasoner,
	patterns *PatternAgent,
) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		rules:     rules,
		mem:       mem,
		filter:    filter,
		diagnoser: diagnoser,
		reasoner:  reasoner,
		patterns:  patterns,
		advisor:   NewRecoveryAdvisor(),
	}
}

// Run streams the configured log file through the pipeline in fixed-size
// chunks and returns every diagnosis delivered along the way. Stores are
// flushed before returning.
func (o *Orchestrator) Run(ctx context.Context) ([]Diagnosis, error) {
	file, err := os.Open(o.cfg.LogFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open log source %s: %w", o.cfg.LogFilePath, err)
	}
	defer file.Close()
	defer o.flush()

	var (
		results []Diagnosis
		chunk   []string
		index   int
	)

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		chunk = append(chunk, scanner.Text())
		if len(chunk) < o.cfg.ChunkSize {
			continue
		}
		index++
		diagnoses, err := o.processChunk(ctx, index, chunk)
		results = append(results, diagnoses...)
		if err != nil {
			return results, err
		}
		chunk = nil
	}
	if err := scanner.Err(); err != nil {
		return results, fmt.Errorf("failed to read log source: %w", err)
	}

	if len(chunk) > 0 {
		index++
		diagnoses, err := o.processChunk(ctx, index, chunk)
		results = append(results, diagnoses...)
		if err != nil {
			return results, err
		}
	}

	// Give the pattern agent one last look at whatever noise is buffered.
	o.synthesizeFilterRule(ctx)

	logger.Info("Stream exhausted", map[string]interface{}{
		"chunks":    index,
		"diagnoses": len(results),
	})
	return results, nil
}

func (o *Orchestrator) processChunk(ctx context.Context, index int, lines []string) ([]Diagnosis, error) {
	chunkLog := logger.WithChunk(index)
	suppressed := 0

	var diagnoses []Diagnosis
	for _, line := range lines {
		if err := ctx.Err(); err != nil {
			return diagnoses, err
		}

		if o.filter.Classify(line) == Suppressed {
			suppressed++
			continue
		}

		if isFailureLine(line) {
			diagnoses = append(diagnoses, o.resolveFailure(ctx, line))
			continue
		}

		// Routine noise that slipped past every filter rule.
		o.filter.Observe(line)
		if o.filter.BufferFull() {
			o.synthesizeFilterRule(ctx)
		}
	}

	chunkLog.WithFields(map[string]interface{}{
		"lines":      len(lines),
		"suppressed": suppressed,
		"failures":   len(diagnoses),
	}).Info("Chunk processed")

	if o.cfg.PatternInterval > 0 && index%o.cfg.PatternInterval == 0 {
		o.synthesizeFilterRule(ctx)
	}
	return diagnoses, nil
}

// DiagnoseLine resolves a single escalated failure signature through both
// tiers. It is the path behind the HTTP diagnose endpoint.
func (o *Orchestrator) DiagnoseLine(ctx context.Context, line string) Diagnosis {
	return o.resolveFailure(ctx, line)
}

// resolveFailure never returns without a concrete record: the cheap tier
// first, then reasoning with a bounded retry budget, then the unknown
// fallback.
func (o *Orchestrator) resolveFailure(ctx context.Context, line string) Diagnosis {
	if record, ok := o.diagnoser.Diagnose(line); ok {
		logger.WithComponent("orchestrator").WithField("rule_id", record.RuleID).
			Info("Failure resolved by diagnosis rule")
		return Diagnosis{Line: line, Record: record, Action: o.advisor.Advise(record)}
	}

	record, rule, err := o.reasonWithRetry(ctx, line)
	if err != nil {
		logger.WithError(err, "orchestrator").Error("Reasoning exhausted, delivering fallback diagnosis")
		// Fallback records carry no diagnostic signal; they are delivered
		// but never learned or indexed as grounding for future reasoning.
		record = FallbackRecord(errorSummary(err))
		return Diagnosis{Line: line, Record: record, Action: o.advisor.Advise(record)}
	}

	o.learn(ctx, record, rule, line)
	return Diagnosis{Line: line, Record: record, Action: o.advisor.Advise(record)}
}

// reasonWithRetry retries transient reasoning failures with doubling
// backoff. Malformed-output failures already consumed their own retry
// budget inside the agent.
func (o *Orchestrator) reasonWithRetry(ctx context.Context, line string) (models.FailureRecord, *models.DiagnosisRule, error) {
	backoff := time.Second
	var lastErr error
	for attempt := 0; attempt <= o.cfg.MaxReasonRetries; attempt++ {
		record, rule, err := o.reasoner.Reason(ctx, line)
		if err == nil {
			return record, rule, nil
		}
		lastErr = err
		if !IsTransient(err) {
			break
		}
		logger.WithError(err, "orchestrator").Warnf("Transient reasoning failure (attempt %d/%d)", attempt+1, o.cfg.MaxReasonRetries+1)
		select {
		case <-ctx.Done():
			return models.FailureRecord{}, nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return models.FailureRecord{}, nil, lastErr
}

// learn is the Learning transition: persist the candidate rule, index the
// record. A persistence failure kills this transition, not the stream; the
// diagnosis already delivered stays delivered.
func (o *Orchestrator) learn(ctx context.Context, record models.FailureRecord, rule *models.DiagnosisRule, line string) {
	o.learnMu.Lock()
	defer o.learnMu.Unlock()

	if rule != nil {
		added, err := o.rules.AppendDiagnosisRule(*rule)
		if err != nil {
			logger.WithError(err, "orchestrator").Warn("Rejected candidate diagnosis rule")
		} else if added {
			logger.WithRule(rule.ID, rule.Pattern).Infof("Learned diagnosis rule for %s", rule.ErrorType)
			if err := o.rules.Save(); err != nil {
				logger.WithError(err, "orchestrator").Error("Failed to persist diagnosis rules")
			}
		}
	}

	if err := o.mem.Insert(ctx, record, line); err != nil {
		logger.WithError(err, "orchestrator").Error("Failed to index failure record")
	}
}

// synthesizeFilterRule drains the unfiltered buffer and runs the pattern
// agent over it. The drain happens regardless of outcome.
func (o *Orchestrator) synthesizeFilterRule(ctx context.Context) {
	lines := o.filter.Drain()
	if len(lines) == 0 {
		return
	}

	rule, err := o.patterns.Synthesize(ctx, lines)
	if err != nil {
		logger.WithError(err, "orchestrator").Warn("Filter rule synthesis failed")
		return
	}
	if rule == nil {
		return
	}

	o.learnMu.Lock()
	defer o.learnMu.Unlock()

	added, err := o.rules.AppendFilterRule(*rule)
	if err != nil {
		logger.WithError(err, "orchestrator").Warn("Rejected synthesized filter rule")
		return
	}
	if !added {
		return
	}
	if err := o.filter.Adopt(*rule); err != nil {
		logger.WithError(err, "orchestrator").Warn("Failed to adopt synthesized filter rule")
		return
	}
	if err := o.rules.Save(); err != nil {
		logger.WithError(err, "orchestrator").Error("Failed to persist filter rules")
	}
}

// flush persists both stores before the stream goes idle.
func (o *Orchestrator) flush() {
	if err := o.rules.Save(); err != nil {
		logger.WithError(err, "orchestrator").Error("Failed to flush rule store")
	}
	if err := o.mem.Close(); err != nil {
		logger.WithError(err, "orchestrator").Error("Failed to flush retrieval store")
	}
}

// isFailureLine is the failure-detection heuristic: escalated lines that
// carry an ERROR marker are failure signatures; everything else escalated
// is candidate noise for the pattern agent.
func isFailureLine(line string) bool {
	return strings.Contains(strings.ToUpper(line), "ERROR")
}

func errorSummary(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > 160 {
		msg = msg[:160] + "..."
	}
	return msg
}
