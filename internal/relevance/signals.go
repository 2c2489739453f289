// Package relevance gates the learning pipeline with cheap structural checks.
//
// Signals run before the expensive structured-extraction call: a conversation
// with no signals is dropped without touching the extractor, which bounds
// API cost and keeps degenerate learnings out of storage.
package relevance

import (
	"github.com/johannhartmann/learning-agent/internal/analyzer"
	"github.com/johannhartmann/learning-agent/internal/conversation"
)

// Signal is one structural indicator that a conversation may contain
// learnable content.
type Signal string

const (
	SignalToolUsage        Signal = "tool_usage"
	SignalToolMessages     Signal = "tool_messages"
	SignalAnalysisFindings Signal = "analysis_findings"
	SignalCompletedTasks   Signal = "completed_tasks"
	SignalTodoProgress     Signal = "todo_progress"
	SignalFailureOutcome   Signal = "failure_outcome"
	SignalExecutionError   Signal = "execution_error"
)

// ComputeSignals evaluates every signal condition independently and returns
// the set of all that hold, in a fixed order. Pure and deterministic.
//
// An empty result means the conversation is not worth learning from.
func ComputeSignals(trace *conversation.Trace, analysis analyzer.Analysis) []Signal {
	var signals []Signal

	if analysis.TotalToolCalls > 0 {
		signals = append(signals, SignalToolUsage)
	}
	if trace.ToolMessageCount() > 0 {
		signals = append(signals, SignalToolMessages)
	}
	if len(analysis.Redundancies) > 0 || len(analysis.Inefficiencies) > 0 {
		signals = append(signals, SignalAnalysisFindings)
	}
	if trace.Metadata.CompletedTaskCount > 0 {
		signals = append(signals, SignalCompletedTasks)
	}
	if trace.Metadata.TodoCount > 0 {
		signals = append(signals, SignalTodoProgress)
	}
	if trace.Metadata.Outcome == conversation.OutcomeFailure {
		signals = append(signals, SignalFailureOutcome)
	}
	if trace.HadError() {
		signals = append(signals, SignalExecutionError)
	}

	return signals
}

// Strings converts signals to their wire representation.
func Strings(signals []Signal) []string {
	out := make([]string, len(signals))
	for i, s := range signals {
		out[i] = string(s)
	}
	return out
}
