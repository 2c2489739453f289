// Package conversation defines the trace types produced by the external
// orchestrator and consumed by the learning pipeline.
package conversation

// Role identifies the author of a message in a trace.
type Role string

const (
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCallStatus is the terminal or pending state of a tool invocation.
type ToolCallStatus string

const (
	ToolCallPending   ToolCallStatus = "pending"
	ToolCallCompleted ToolCallStatus = "completed"
	ToolCallError     ToolCallStatus = "error"
)

// Outcome is the overall result of a conversation's task.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Message is a single role-tagged message event.
type Message struct {
	// Role is who produced the message.
	Role Role `json:"role"`

	// Content is the message text.
	Content string `json:"content"`
}

// ToolCall is one tool invocation recorded alongside the message stream.
type ToolCall struct {
	// ID is the orchestrator-assigned invocation identifier.
	ID string `json:"id"`

	// Name is the tool name.
	Name string `json:"name"`

	// Args are the invocation arguments.
	Args map[string]any `json:"args"`

	// Result is the tool output, empty until completion.
	Result string `json:"result,omitempty"`

	// Status is the invocation state.
	Status ToolCallStatus `json:"status"`
}

// Metadata carries the orchestrator's summary of a finished conversation.
type Metadata struct {
	// CompletedTaskCount is how many tracked tasks finished during the run.
	CompletedTaskCount int `json:"completed_task_count"`

	// TodoCount is how many todo items were tracked during the run.
	TodoCount int `json:"todo_count"`

	// Outcome is the overall task result.
	Outcome Outcome `json:"outcome"`
}

// Trace is the complete record of one finished conversation.
//
// Traces are produced by the external orchestrator after a task finishes
// and are read-only input to the learning pipeline. They are never
// persisted as-is; only the learnings extracted from them are.
type Trace struct {
	// ThreadID identifies the conversation thread the trace belongs to.
	ThreadID string `json:"thread_id"`

	// Messages is the ordered message stream.
	Messages []Message `json:"messages"`

	// ToolCalls is the ordered side-channel of tool invocations.
	ToolCalls []ToolCall `json:"tool_calls"`

	// Metadata is the orchestrator's run summary.
	Metadata Metadata `json:"metadata"`
}

// Task returns the task description for the trace: the first human
// message, or empty when the trace has none.
func (t *Trace) Task() string {
	for _, m := range t.Messages {
		if m.Role == RoleHuman {
			return m.Content
		}
	}
	return ""
}

// ToolMessageCount counts messages authored by tools.
func (t *Trace) ToolMessageCount() int {
	n := 0
	for _, m := range t.Messages {
		if m.Role == RoleTool {
			n++
		}
	}
	return n
}

// HadError reports whether any tool invocation ended in an error state.
func (t *Trace) HadError() bool {
	for _, tc := range t.ToolCalls {
		if tc.Status == ToolCallError {
			return true
		}
	}
	return false
}
