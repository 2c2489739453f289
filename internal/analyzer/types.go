package analyzer

// Redundancy is one detected redundant tool invocation.
type Redundancy struct {
	// Type names the rule that fired (consecutive_duplicate, excessive_checks, ...).
	Type string `json:"type"`

	// Tool is the tool the redundancy concerns.
	Tool string `json:"tool"`

	// Position is the 1-based position of the offending call in the sequence.
	Position int `json:"position"`

	// Suggestion is a short remediation hint.
	Suggestion string `json:"suggestion"`
}

// Inefficiency is one detected inefficient usage pattern.
type Inefficiency struct {
	// Type names the rule that fired (no_initial_plan, read_without_context, repeated_reads).
	Type string `json:"type"`

	// Detail describes the specific occurrence.
	Detail string `json:"detail"`

	// Impact describes the cost of the pattern.
	Impact string `json:"impact"`
}

// WorkflowPattern classifies the overall shape of a task execution.
type WorkflowPattern string

const (
	WorkflowPlanExecute   WorkflowPattern = "plan_execute"
	WorkflowAdHoc         WorkflowPattern = "ad_hoc"
	WorkflowDelegateHeavy WorkflowPattern = "delegate_heavy"
	WorkflowSandboxHeavy  WorkflowPattern = "sandbox_heavy"
)

// Patterns summarizes structural execution traits of a trace.
type Patterns struct {
	StartsWithPlan      bool            `json:"starts_with_plan"`
	UsesTodos           bool            `json:"uses_todos"`
	DelegatesToSubagent bool            `json:"delegates_to_subagent"`
	UsesSandbox         bool            `json:"uses_sandbox"`
	DominantTool        string          `json:"dominant_tool"`
	ToolDiversity       float64         `json:"tool_diversity"`
	WorkflowPattern     WorkflowPattern `json:"workflow_pattern"`
}

// Analysis is the immutable efficiency report derived from one trace.
//
// An Analysis is computed once per conversation, consumed by the relevance
// filter and the extractor, and folded into the stored memory's execution
// metadata. It is never persisted on its own.
type Analysis struct {
	ToolSequence                 []string       `json:"tool_sequence"`
	ToolCounts                   map[string]int `json:"tool_counts"`
	TotalToolCalls               int            `json:"total_tool_calls"`
	UniqueToolsUsed              int            `json:"unique_tools_used"`
	Redundancies                 []Redundancy   `json:"redundancies"`
	Inefficiencies               []Inefficiency `json:"inefficiencies"`
	ParallelizationOpportunities [][]string     `json:"parallelization_opportunities"`
	ExecutionPatterns            Patterns       `json:"execution_patterns"`
	EfficiencyScore              float64        `json:"efficiency_score"`
}
