// Package analyzer derives structured efficiency reports from tool-call traces.
//
// The analyzer is a pure function of the trace: no side effects, no stored
// state, deterministic for identical input. Detection heuristics live in a
// fixed rule table (rules.go) so each rule is independently testable.
package analyzer

import (
	"fmt"

	"github.com/johannhartmann/learning-agent/internal/conversation"
)

// Config holds the analyzer's tunable thresholds.
type Config struct {
	// MaxStatusChecks is how many listing/status calls may occur without an
	// intervening mutating call before the excessive_checks rule fires.
	MaxStatusChecks int
}

// DefaultConfig returns the analyzer defaults.
func DefaultConfig() Config {
	return Config{MaxStatusChecks: 3}
}

// Analyzer inspects conversation traces for redundancies, inefficiencies,
// and missed parallelism.
type Analyzer struct {
	cfg Config
}

// New creates an Analyzer with the given configuration.
func New(cfg Config) *Analyzer {
	if cfg.MaxStatusChecks <= 0 {
		cfg.MaxStatusChecks = DefaultConfig().MaxStatusChecks
	}
	return &Analyzer{cfg: cfg}
}

// Analyze produces the efficiency report for one trace.
//
// An empty trace yields a zero-valued analysis with a perfect score; an
// empty conversation is uninformative, not an error.
func (a *Analyzer) Analyze(trace *conversation.Trace) Analysis {
	analysis := Analysis{
		ToolSequence:                 []string{},
		ToolCounts:                   map[string]int{},
		Redundancies:                 []Redundancy{},
		Inefficiencies:               []Inefficiency{},
		ParallelizationOpportunities: [][]string{},
		EfficiencyScore:              1.0,
	}
	if trace == nil || len(trace.ToolCalls) == 0 {
		return analysis
	}

	calls := trace.ToolCalls
	for _, c := range calls {
		analysis.ToolSequence = append(analysis.ToolSequence, c.Name)
		analysis.ToolCounts[c.Name]++
	}
	analysis.TotalToolCalls = len(calls)
	analysis.UniqueToolsUsed = len(analysis.ToolCounts)

	for _, rule := range redundancyRules {
		analysis.Redundancies = append(analysis.Redundancies, rule.apply(a.cfg, calls)...)
	}
	for _, rule := range inefficiencyRules {
		analysis.Inefficiencies = append(analysis.Inefficiencies, rule.apply(a.cfg, calls)...)
	}
	analysis.ParallelizationOpportunities = parallelGroups(calls)
	analysis.ExecutionPatterns = extractPatterns(calls, analysis.ToolCounts)
	analysis.EfficiencyScore = efficiencyScore(
		len(analysis.Redundancies),
		len(analysis.Inefficiencies),
		len(analysis.ParallelizationOpportunities),
		analysis.ExecutionPatterns,
	)

	return analysis
}

// parallelGroups finds runs of consecutive calls with no data dependency:
// disjoint argument values and no read following a write inside the run.
// Runs longer than one call are missed parallelism.
func parallelGroups(calls []conversation.ToolCall) [][]string {
	groups := [][]string{}
	i := 0
	for i < len(calls) {
		group := []string{calls[i].Name}
		seen := argValues(calls[i].Args)
		j := i + 1
		for j < len(calls) {
			next := argValues(calls[j].Args)
			if overlaps(seen, next) {
				break
			}
			if isMutating(calls[j-1].Name) && isRead(calls[j].Name) {
				break
			}
			for v := range next {
				seen[v] = struct{}{}
			}
			group = append(group, calls[j].Name)
			j++
		}
		if len(group) > 1 {
			groups = append(groups, group)
		}
		i = j
	}
	return groups
}

func argValues(args map[string]any) map[string]struct{} {
	vals := make(map[string]struct{}, len(args))
	for _, v := range args {
		vals[fmt.Sprint(v)] = struct{}{}
	}
	return vals
}

func overlaps(a, b map[string]struct{}) bool {
	for v := range b {
		if _, ok := a[v]; ok {
			return true
		}
	}
	return false
}

// extractPatterns summarizes structural traits of the call sequence.
func extractPatterns(calls []conversation.ToolCall, counts map[string]int) Patterns {
	p := Patterns{
		StartsWithPlan: isPlanning(calls[0].Name),
	}
	dominantCount := 0
	for _, c := range calls {
		if matchesAny(c.Name, []string{"todo"}) {
			p.UsesTodos = true
		}
		if isDelegate(c.Name) {
			p.DelegatesToSubagent = true
		}
		if isSandbox(c.Name) {
			p.UsesSandbox = true
		}
		// First occurrence wins ties so the result is order-deterministic.
		if counts[c.Name] > dominantCount {
			dominantCount = counts[c.Name]
			p.DominantTool = c.Name
		}
	}
	p.ToolDiversity = float64(len(counts)) / float64(len(calls))
	p.WorkflowPattern = classifyWorkflow(p)
	return p
}

// classifyWorkflow is a fixed decision table over the structural traits.
func classifyWorkflow(p Patterns) WorkflowPattern {
	switch {
	case p.DelegatesToSubagent:
		return WorkflowDelegateHeavy
	case p.StartsWithPlan:
		return WorkflowPlanExecute
	case p.UsesSandbox && isSandbox(p.DominantTool):
		return WorkflowSandboxHeavy
	default:
		return WorkflowAdHoc
	}
}

// efficiencyScore applies the fixed scoring formula, clamped to [0, 1].
func efficiencyScore(redundancies, inefficiencies, parallelMissed int, p Patterns) float64 {
	score := 1.0
	score -= min(float64(redundancies)*0.1, 0.3)
	score -= min(float64(inefficiencies)*0.15, 0.3)
	score -= min(float64(parallelMissed)*0.1, 0.2)
	if p.StartsWithPlan {
		score += 0.1
	}
	if p.UsesSandbox {
		score += 0.05
	}
	return max(0.0, min(1.0, score))
}

// DescribeSequence returns a human-readable description of a tool sequence's
// overall shape, used in extraction prompts.
func DescribeSequence(sequence []string) string {
	if len(sequence) == 0 {
		return "no tools used"
	}
	planCalls := 0
	hasContext := false
	for _, t := range sequence {
		if isPlanning(t) {
			planCalls++
		}
		if isListing(t) {
			hasContext = true
		}
	}
	switch {
	case len(sequence) >= 2 && isListing(sequence[0]) && isPlanning(sequence[1]):
		return "learn-then-plan pattern"
	case isPlanning(sequence[0]):
		return "plan-first pattern (skipped context gathering)"
	case isRead(sequence[0]):
		return "explore-first pattern"
	case planCalls > 5:
		return "over-planning pattern (excessive plan updates)"
	case !hasContext:
		return "no-learning pattern (never consulted prior context)"
	default:
		return "custom pattern"
	}
}
