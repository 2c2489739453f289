package analyzer

import (
	"testing"

	"github.com/johannhartmann/learning-agent/internal/conversation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func call(name string, args map[string]any) conversation.ToolCall {
	return conversation.ToolCall{
		ID:     name,
		Name:   name,
		Args:   args,
		Status: conversation.ToolCallCompleted,
	}
}

func TestAnalyzeEmptyTrace(t *testing.T) {
	a := New(DefaultConfig())

	analysis := a.Analyze(&conversation.Trace{})

	assert.Empty(t, analysis.ToolSequence)
	assert.Empty(t, analysis.Redundancies)
	assert.Empty(t, analysis.Inefficiencies)
	assert.Empty(t, analysis.ParallelizationOpportunities)
	assert.Equal(t, 1.0, analysis.EfficiencyScore)
}

func TestAnalyzeDeterministic(t *testing.T) {
	a := New(DefaultConfig())
	trace := &conversation.Trace{
		ToolCalls: []conversation.ToolCall{
			call("write_todos", map[string]any{"items": "3"}),
			call("read_file", map[string]any{"path": "main.go"}),
			call("edit_file", map[string]any{"path": "main.go"}),
			call("read_file", map[string]any{"path": "main.go"}),
			call("run_sandbox", map[string]any{"cmd": "go test"}),
		},
	}

	first := a.Analyze(trace)
	second := a.Analyze(trace)

	assert.Equal(t, first, second)
}

func TestAnalyzeDuplicateReads(t *testing.T) {
	a := New(DefaultConfig())
	trace := &conversation.Trace{
		ToolCalls: []conversation.ToolCall{
			call("read_file", map[string]any{"path": "a.txt"}),
			call("read_file", map[string]any{"path": "b.txt"}),
			call("write_file", map[string]any{"path": "c.txt"}),
		},
	}

	analysis := a.Analyze(trace)

	require.Len(t, analysis.Redundancies, 1)
	assert.Equal(t, "consecutive_duplicate", analysis.Redundancies[0].Type)
	assert.Equal(t, "read_file", analysis.Redundancies[0].Tool)
	assert.Equal(t, 2, analysis.Redundancies[0].Position)
	assert.False(t, analysis.ExecutionPatterns.StartsWithPlan)
	// One redundancy and one missed parallel batch deducted from 1.0.
	assert.InDelta(t, 0.8, analysis.EfficiencyScore, 1e-9)
}

func TestAnalyzeRepeatedReadsOfSameResource(t *testing.T) {
	a := New(DefaultConfig())
	trace := &conversation.Trace{
		ToolCalls: []conversation.ToolCall{
			call("read_file", map[string]any{"path": "a.txt"}),
			call("grep", map[string]any{"pattern": "foo"}),
			call("read_file", map[string]any{"path": "a.txt"}),
		},
	}

	analysis := a.Analyze(trace)

	var types []string
	for _, in := range analysis.Inefficiencies {
		types = append(types, in.Type)
	}
	assert.Contains(t, types, "repeated_reads")
}

func TestAnalyzeRepeatedReadResetByWrite(t *testing.T) {
	a := New(DefaultConfig())
	trace := &conversation.Trace{
		ToolCalls: []conversation.ToolCall{
			call("read_file", map[string]any{"path": "a.txt"}),
			call("edit_file", map[string]any{"path": "a.txt"}),
			call("read_file", map[string]any{"path": "a.txt"}),
		},
	}

	analysis := a.Analyze(trace)

	for _, in := range analysis.Inefficiencies {
		assert.NotEqual(t, "repeated_reads", in.Type)
	}
}

func TestAnalyzeNoInitialPlan(t *testing.T) {
	a := New(DefaultConfig())
	trace := &conversation.Trace{
		ToolCalls: []conversation.ToolCall{
			call("read_file", map[string]any{"path": "a.txt"}),
			call("edit_file", map[string]any{"path": "a.txt"}),
			call("run_sandbox", map[string]any{"cmd": "make"}),
		},
	}

	analysis := a.Analyze(trace)

	var types []string
	for _, in := range analysis.Inefficiencies {
		types = append(types, in.Type)
	}
	assert.Contains(t, types, "no_initial_plan")
}

func TestAnalyzeExcessiveChecks(t *testing.T) {
	a := New(DefaultConfig())
	trace := &conversation.Trace{
		ToolCalls: []conversation.ToolCall{
			call("ls", map[string]any{"path": "1"}),
			call("ls", map[string]any{"path": "2"}),
			call("ls", map[string]any{"path": "3"}),
			call("ls", map[string]any{"path": "4"}),
		},
	}

	analysis := a.Analyze(trace)

	var types []string
	for _, r := range analysis.Redundancies {
		types = append(types, r.Type)
	}
	assert.Contains(t, types, "excessive_checks")
}

func TestEfficiencyScoreBounds(t *testing.T) {
	tests := []struct {
		name  string
		calls []conversation.ToolCall
	}{
		{name: "empty", calls: nil},
		{
			name: "worst case",
			calls: []conversation.ToolCall{
				call("read_file", map[string]any{"path": "a"}),
				call("read_file", map[string]any{"path": "a"}),
				call("read_file", map[string]any{"path": "a"}),
				call("ls", map[string]any{"path": "b"}),
				call("ls", map[string]any{"path": "c"}),
				call("ls", map[string]any{"path": "d"}),
				call("ls", map[string]any{"path": "e"}),
				call("run_sandbox", map[string]any{"cmd": "x"}),
			},
		},
		{
			name: "best case",
			calls: []conversation.ToolCall{
				call("write_todos", map[string]any{"items": "plan"}),
				call("run_sandbox", map[string]any{"cmd": "make"}),
			},
		},
	}

	a := New(DefaultConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analysis := a.Analyze(&conversation.Trace{ToolCalls: tt.calls})
			assert.GreaterOrEqual(t, analysis.EfficiencyScore, 0.0)
			assert.LessOrEqual(t, analysis.EfficiencyScore, 1.0)
		})
	}
}

func TestClassifyWorkflow(t *testing.T) {
	tests := []struct {
		name     string
		patterns Patterns
		want     WorkflowPattern
	}{
		{
			name:     "delegation dominates",
			patterns: Patterns{DelegatesToSubagent: true, StartsWithPlan: true},
			want:     WorkflowDelegateHeavy,
		},
		{
			name:     "planned execution",
			patterns: Patterns{StartsWithPlan: true},
			want:     WorkflowPlanExecute,
		},
		{
			name:     "sandbox heavy",
			patterns: Patterns{UsesSandbox: true, DominantTool: "run_sandbox"},
			want:     WorkflowSandboxHeavy,
		},
		{
			name:     "fallback",
			patterns: Patterns{},
			want:     WorkflowAdHoc,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyWorkflow(tt.patterns))
		})
	}
}

func TestDescribeSequence(t *testing.T) {
	tests := []struct {
		name     string
		sequence []string
		want     string
	}{
		{name: "empty", sequence: nil, want: "no tools used"},
		{name: "learn then plan", sequence: []string{"search_memory", "write_todos"}, want: "learn-then-plan pattern"},
		{name: "plan first", sequence: []string{"write_todos", "read_file"}, want: "plan-first pattern (skipped context gathering)"},
		{name: "explore first", sequence: []string{"read_file", "edit_file"}, want: "explore-first pattern"},
		{name: "no learning", sequence: []string{"edit_file", "run_sandbox"}, want: "no-learning pattern (never consulted prior context)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DescribeSequence(tt.sequence))
		})
	}
}
