package toolcall

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractXMLForm(t *testing.T) {
	response := `I'll list the files first.
<tool_call>
{"name": "list_files", "arguments": {"path": "src"}}
</tool_call>`

	calls := Extract(response)
	require.Len(t, calls, 1)
	assert.Equal(t, "list_files", calls[0].Name)
	assert.Equal(t, "src", calls[0].Arguments["path"])
}

func TestExtractMultipleXMLCalls(t *testing.T) {
	response := `<tool_call>{"name": "read_file", "arguments": {"path": "a.txt"}}</tool_call>
and then
<tool_call>{"name": "read_file", "arguments": {"path": "b.txt"}}</tool_call>`

	calls := Extract(response)
	require.Len(t, calls, 2)
	assert.Equal(t, "a.txt", calls[0].Arguments["path"])
	assert.Equal(t, "b.txt", calls[1].Arguments["path"])
}

func TestExtractXMLWinsOverFenced(t *testing.T) {
	response := "<tool_call>{\"name\": \"from_xml\", \"arguments\": {}}</tool_call>\n" +
		"```json\n{\"name\": \"from_fence\", \"arguments\": {}}\n```\n"

	calls := Extract(response)
	require.Len(t, calls, 1)
	assert.Equal(t, "from_xml", calls[0].Name)
}

func TestExtractFencedFallback(t *testing.T) {
	response := "```json\n{\"name\": \"list_agents\", \"arguments\": {\"workspaceId\": \"ws\"}}\n```"
	calls := Extract(response)
	require.Len(t, calls, 1)
	assert.Equal(t, "list_agents", calls[0].Name)
	assert.Equal(t, "ws", calls[0].Arguments["workspaceId"])
}

func TestExtractFencedPlainBlock(t *testing.T) {
	response := "```\n{\"name\": \"get_agent_status\", \"arguments\": {\"agentId\": \"agent-1\"}}\n```"
	calls := Extract(response)
	require.Len(t, calls, 1)
	assert.Equal(t, "get_agent_status", calls[0].Name)
}

func TestExtractFencedDuplicateSuppression(t *testing.T) {
	response := "```json\n{\"name\": \"list_agents\", \"arguments\": {\"workspaceId\": \"a\"}}\n```\n" +
		"```json\n{\"name\": \"list_agents\", \"arguments\": {\"workspaceId\": \"b\"}}\n```\n"
	calls := Extract(response)
	require.Len(t, calls, 1)
	assert.Equal(t, "a", calls[0].Arguments["workspaceId"])
}

func TestExtractMalformedRegionSkipped(t *testing.T) {
	response := `<tool_call>this is not json at all {{{</tool_call>
<tool_call>{"name": "ok_tool", "arguments": {}}</tool_call>`
	calls := Extract(response)
	require.Len(t, calls, 1)
	assert.Equal(t, "ok_tool", calls[0].Name)
}

func TestExtractRepairsSloppyJSON(t *testing.T) {
	// trailing comma and single quotes are repairable
	response := `<tool_call>{'name': 'read_file', 'arguments': {'path': 'x.txt',}}</tool_call>`
	calls := Extract(response)
	require.Len(t, calls, 1)
	assert.Equal(t, "read_file", calls[0].Name)
	assert.Equal(t, "x.txt", calls[0].Arguments["path"])
}

func TestExtractCoercesValues(t *testing.T) {
	response := `<tool_call>{"name": "t1", "arguments": {
		"count": 3,
		"ratio": 1.5,
		"flag": true,
		"nothing": null,
		"nested": {"a": 1},
		"items": ["x", "y"]
	}}</tool_call>`

	calls := Extract(response)
	require.Len(t, calls, 1)
	args := calls[0].Arguments
	assert.Equal(t, "3", args["count"])
	assert.Equal(t, "1.5", args["ratio"])
	assert.Equal(t, "true", args["flag"])
	assert.Equal(t, "", args["nothing"])
	assert.JSONEq(t, `{"a":1}`, args["nested"])
	assert.JSONEq(t, `["x","y"]`, args["items"])
}

func TestExtractRejectsInvalidToolNames(t *testing.T) {
	response := `<tool_call>{"name": "9bad name!", "arguments": {}}</tool_call>`
	assert.Empty(t, Extract(response))
}

func TestHasToolCalls(t *testing.T) {
	assert.True(t, HasToolCalls(`<tool_call>{"name":"x","arguments":{}}</tool_call>`))
	assert.True(t, HasToolCalls("```json\n{\"name\":\"x\",\"arguments\":{}}\n```"))
	assert.False(t, HasToolCalls("plain prose with no calls"))
}

func TestRemoveToolCalls(t *testing.T) {
	response := "before\n<tool_call>{\"name\":\"x\",\"arguments\":{}}</tool_call>\nafter"
	assert.Equal(t, "before\n\nafter", RemoveToolCalls(response))

	assert.Equal(t, "untouched", RemoveToolCalls("untouched"))
}
