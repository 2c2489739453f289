package relevance

import (
	"testing"

	"github.com/johannhartmann/learning-agent/internal/analyzer"
	"github.com/johannhartmann/learning-agent/internal/conversation"
	"github.com/stretchr/testify/assert"
)

func TestComputeSignalsEmptyConversation(t *testing.T) {
	trace := &conversation.Trace{
		Metadata: conversation.Metadata{Outcome: conversation.OutcomeSuccess},
	}

	signals := ComputeSignals(trace, analyzer.Analysis{})

	assert.Empty(t, signals)
}

func TestComputeSignals(t *testing.T) {
	tests := []struct {
		name     string
		trace    *conversation.Trace
		analysis analyzer.Analysis
		want     []Signal
	}{
		{
			name: "tool usage only",
			trace: &conversation.Trace{
				Metadata: conversation.Metadata{Outcome: conversation.OutcomeSuccess},
			},
			analysis: analyzer.Analysis{TotalToolCalls: 2},
			want:     []Signal{SignalToolUsage},
		},
		{
			name: "failure outcome",
			trace: &conversation.Trace{
				Metadata: conversation.Metadata{Outcome: conversation.OutcomeFailure},
			},
			want: []Signal{SignalFailureOutcome},
		},
		{
			name: "execution error from tool status",
			trace: &conversation.Trace{
				ToolCalls: []conversation.ToolCall{
					{Name: "run_sandbox", Status: conversation.ToolCallError},
				},
				Metadata: conversation.Metadata{Outcome: conversation.OutcomeSuccess},
			},
			want: []Signal{SignalExecutionError},
		},
		{
			name: "analysis findings",
			trace: &conversation.Trace{
				Metadata: conversation.Metadata{Outcome: conversation.OutcomeSuccess},
			},
			analysis: analyzer.Analysis{
				Redundancies: []analyzer.Redundancy{{Type: "consecutive_duplicate"}},
			},
			want: []Signal{SignalAnalysisFindings},
		},
		{
			name: "progress metadata",
			trace: &conversation.Trace{
				Metadata: conversation.Metadata{
					CompletedTaskCount: 3,
					TodoCount:          5,
					Outcome:            conversation.OutcomeSuccess,
				},
			},
			want: []Signal{SignalCompletedTasks, SignalTodoProgress},
		},
		{
			name: "tool messages",
			trace: &conversation.Trace{
				Messages: []conversation.Message{
					{Role: conversation.RoleHuman, Content: "do the thing"},
					{Role: conversation.RoleTool, Content: "result"},
				},
				Metadata: conversation.Metadata{Outcome: conversation.OutcomeSuccess},
			},
			want: []Signal{SignalToolMessages},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeSignals(tt.trace, tt.analysis))
		})
	}
}

func TestComputeSignalsNoShortCircuit(t *testing.T) {
	// Every condition that holds must appear, not just the first.
	trace := &conversation.Trace{
		Messages: []conversation.Message{
			{Role: conversation.RoleTool, Content: "result"},
		},
		ToolCalls: []conversation.ToolCall{
			{Name: "run_sandbox", Status: conversation.ToolCallError},
		},
		Metadata: conversation.Metadata{
			CompletedTaskCount: 1,
			TodoCount:          1,
			Outcome:            conversation.OutcomeFailure,
		},
	}
	analysis := analyzer.Analysis{
		TotalToolCalls: 1,
		Inefficiencies: []analyzer.Inefficiency{{Type: "no_initial_plan"}},
	}

	signals := ComputeSignals(trace, analysis)

	assert.Len(t, signals, 7)
}
