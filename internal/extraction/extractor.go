// Package extraction turns analyzed conversations into structured learnings
// via an external structured-extraction capability.
package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/johannhartmann/learning-agent/internal/analyzer"
	"github.com/johannhartmann/learning-agent/internal/conversation"
)

var (
	// ErrExtractionFailed indicates the external extraction call failed or timed out.
	ErrExtractionFailed = errors.New("structured extraction failed")
)

// StructuredExtractor is the external capability that turns a prompt into
// a JSON object matching the learning extraction schema.
type StructuredExtractor interface {
	ExtractStructured(ctx context.Context, prompt string) (json.RawMessage, error)
}

// Config holds extractor tunables.
type Config struct {
	// Timeout bounds the external extraction call.
	Timeout time.Duration
}

// DefaultConfig returns the extractor defaults.
func DefaultConfig() Config {
	return Config{Timeout: 30 * time.Second}
}

// Extractor builds reflection prompts and normalizes extractor output.
type Extractor struct {
	external StructuredExtractor
	cfg      Config
	logger   *zap.Logger
}

// New creates an Extractor.
func New(external StructuredExtractor, cfg Config, logger *zap.Logger) (*Extractor, error) {
	if external == nil {
		return nil, fmt.Errorf("structured extractor cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Extractor{external: external, cfg: cfg, logger: logger}, nil
}

// Extract performs one deep reflection over a finished conversation.
//
// The external call is timeout-bounded; on failure or timeout the learning
// cycle for this conversation is abandoned (error returned, nothing
// written). Malformed extractor output is not an error: it is returned as
// a negative save decision so the caller takes the same discard path.
// Anti-pattern lists from the analyzer are merged into the result.
func (e *Extractor) Extract(ctx context.Context, trace *conversation.Trace, analysis analyzer.Analysis) (*Extraction, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	prompt := BuildPrompt(trace, analysis)

	raw, err := e.external.ExtractStructured(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	result, ok := decodeExtraction(raw)
	if !ok {
		e.logger.Warn("malformed extraction output, treating as should_save=false",
			zap.String("thread_id", trace.ThreadID),
		)
		return &Extraction{ShouldSave: false, SaveReason: "malformed extraction output"}, nil
	}

	result.AntiPatterns.Redundancies = mergeFindings(result.AntiPatterns.Redundancies, stringifyRedundancies(analysis.Redundancies))
	result.AntiPatterns.Inefficiencies = mergeFindings(result.AntiPatterns.Inefficiencies, stringifyInefficiencies(analysis.Inefficiencies))

	return &result, nil
}

// BuildPrompt renders the role-tagged transcript plus an analysis summary
// into the reflection prompt for the external extractor.
func BuildPrompt(trace *conversation.Trace, analysis analyzer.Analysis) string {
	var b strings.Builder
	b.WriteString("Perform a deep reflection on this task execution to extract actionable learnings.\n\n")
	b.WriteString("CONVERSATION:\n")
	b.WriteString(Narrative(trace))
	b.WriteString("\n\nEXECUTION ANALYSIS:\n")
	fmt.Fprintf(&b, "- Tool usage pattern: %s\n", analysis.ExecutionPatterns.WorkflowPattern)
	fmt.Fprintf(&b, "- Sequence shape: %s\n", analyzer.DescribeSequence(analysis.ToolSequence))
	fmt.Fprintf(&b, "- Efficiency score: %.2f\n", analysis.EfficiencyScore)
	fmt.Fprintf(&b, "- Redundancies found: %d\n", len(analysis.Redundancies))
	fmt.Fprintf(&b, "- Inefficiencies found: %d\n", len(analysis.Inefficiencies))
	fmt.Fprintf(&b, "- Parallelization opportunities: %d\n", len(analysis.ParallelizationOpportunities))
	for _, r := range analysis.Redundancies {
		fmt.Fprintf(&b, "  redundancy: %s (%s at %d): %s\n", r.Type, r.Tool, r.Position, r.Suggestion)
	}
	for _, in := range analysis.Inefficiencies {
		fmt.Fprintf(&b, "  inefficiency: %s: %s\n", in.Type, in.Detail)
	}
	b.WriteString("\nExtract tactical, strategic, and meta learnings with specific, actionable insights.")
	return b.String()
}

// Narrative reconstructs the conversation as a role-tagged transcript.
func Narrative(trace *conversation.Trace) string {
	var b strings.Builder
	for i, m := range trace.Messages {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s: %s", m.Role, m.Content)
	}
	return b.String()
}

// mergeFindings combines model-reported and analyzer-detected findings,
// deduplicated and sorted for a stable record.
func mergeFindings(fromModel, fromAnalysis []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, s := range append(append([]string{}, fromModel...), fromAnalysis...) {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func stringifyRedundancies(items []analyzer.Redundancy) []string {
	out := make([]string, 0, len(items))
	for _, r := range items {
		out = append(out, fmt.Sprintf("%s: %s", r.Type, r.Suggestion))
	}
	return out
}

func stringifyInefficiencies(items []analyzer.Inefficiency) []string {
	out := make([]string, 0, len(items))
	for _, in := range items {
		out = append(out, fmt.Sprintf("%s: %s", in.Type, in.Detail))
	}
	return out
}
