package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTraceTask(t *testing.T) {
	trace := &Trace{
		Messages: []Message{
			{Role: RoleAssistant, Content: "hello, what can I do for you?"},
			{Role: RoleHuman, Content: "add retry logic to the uploader"},
			{Role: RoleHuman, Content: "and log each attempt"},
		},
	}
	assert.Equal(t, "add retry logic to the uploader", trace.Task())
}

func TestTraceTaskEmptyWithoutHumanMessage(t *testing.T) {
	trace := &Trace{
		Messages: []Message{
			{Role: RoleAssistant, Content: "done"},
			{Role: RoleTool, Content: "exit 0"},
		},
	}
	assert.Empty(t, trace.Task())
}

func TestToolMessageCount(t *testing.T) {
	trace := &Trace{
		Messages: []Message{
			{Role: RoleHuman, Content: "run the tests"},
			{Role: RoleTool, Content: "ok"},
			{Role: RoleTool, Content: "ok"},
			{Role: RoleAssistant, Content: "all green"},
		},
	}
	assert.Equal(t, 2, trace.ToolMessageCount())
}

func TestHadError(t *testing.T) {
	trace := &Trace{
		ToolCalls: []ToolCall{
			{ID: "1", Name: "read_file", Status: ToolCallCompleted},
			{ID: "2", Name: "run_tests", Status: ToolCallError},
		},
	}
	assert.True(t, trace.HadError())

	trace.ToolCalls[1].Status = ToolCallCompleted
	assert.False(t, trace.HadError())
}
