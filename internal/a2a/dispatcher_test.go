package a2a

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routa/internal/coordination"
	"routa/internal/coordination/events"
	"routa/internal/coordination/tools"
)

func newDispatcher(t *testing.T) (*Dispatcher, *coordination.MemoryStore) {
	t.Helper()
	store := coordination.NewMemoryStore()
	bus := events.NewBus()
	t.Cleanup(bus.Close)
	return New(store, tools.New(store, bus, nil), nil), store
}

func handleJSON(t *testing.T, d *Dispatcher, request map[string]any) string {
	t.Helper()
	payload, err := json.Marshal(request)
	require.NoError(t, err)
	return d.Handle(string(payload))
}

func errorOf(t *testing.T, reply string) string {
	t.Helper()
	var parsed struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(reply), &parsed), "reply: %s", reply)
	require.False(t, parsed.Success)
	return parsed.Error
}

func TestHandleMalformedJSON(t *testing.T) {
	d, _ := newDispatcher(t)
	reply := d.Handle("this is not json")
	assert.Contains(t, reply, "Error:")
	assert.Contains(t, reply, "Expected JSON format:")
}

func TestHandleMissingCommand(t *testing.T) {
	d, _ := newDispatcher(t)
	reply := handleJSON(t, d, map[string]any{"workspaceId": "ws"})
	assert.Contains(t, errorOf(t, reply), "command")
}

func TestHandleUnknownCommand(t *testing.T) {
	d, _ := newDispatcher(t)
	reply := handleJSON(t, d, map[string]any{"command": "do_magic"})
	assert.Contains(t, errorOf(t, reply), "unknown command")
}

func TestInitializeCreatesSingletonRouta(t *testing.T) {
	d, store := newDispatcher(t)

	first := handleJSON(t, d, map[string]any{"command": "initialize", "workspaceId": "ws-1"})
	require.NotEmpty(t, first)
	assert.NotContains(t, first, "success")

	second := handleJSON(t, d, map[string]any{"command": "initialize", "workspaceId": "ws-1"})
	assert.Equal(t, first, second)

	routa, err := store.GetAgent(first)
	require.NoError(t, err)
	assert.Equal(t, coordination.RoleRouta, routa.Role)
}

func TestInitializeRequiresWorkspace(t *testing.T) {
	d, _ := newDispatcher(t)
	reply := handleJSON(t, d, map[string]any{"command": "initialize"})
	assert.Contains(t, errorOf(t, reply), "workspaceId")
}

func TestCreateTaskWritesRecord(t *testing.T) {
	d, store := newDispatcher(t)

	taskID := handleJSON(t, d, map[string]any{
		"command":              "create_task",
		"workspaceId":          "ws-1",
		"title":                "wire the parser",
		"objective":            "parse the blocks",
		"scope":                []string{"internal/taskparse"},
		"acceptanceCriteria":   []string{"tests pass"},
		"verificationCommands": []string{"go test ./..."},
	})
	require.NotEmpty(t, taskID)

	task, err := store.GetTask(taskID)
	require.NoError(t, err)
	assert.Equal(t, "wire the parser", task.Title)
	assert.Equal(t, "parse the blocks", task.Objective)
	assert.Equal(t, []string{"internal/taskparse"}, task.Scope)
	assert.Equal(t, coordination.TaskPending, task.Status)
}

func TestCreateTaskRequiresTitle(t *testing.T) {
	d, _ := newDispatcher(t)
	reply := handleJSON(t, d, map[string]any{"command": "create_task", "workspaceId": "ws-1"})
	assert.Contains(t, errorOf(t, reply), "title")
}

func TestToolCommandRoundTrip(t *testing.T) {
	d, _ := newDispatcher(t)

	agentID := handleJSON(t, d, map[string]any{
		"command":     "create_agent",
		"name":        "worker",
		"role":        "CRAFTER",
		"workspaceId": "ws-1",
	})
	require.NotEmpty(t, agentID)
	require.NotContains(t, agentID, "success")

	roster := handleJSON(t, d, map[string]any{"command": "list_agents", "workspaceId": "ws-1"})
	assert.Contains(t, roster, "worker")
	assert.Contains(t, roster, "CRAFTER")

	status := handleJSON(t, d, map[string]any{"command": "get_agent_status", "agentId": agentID})
	assert.Contains(t, status, "status=PENDING")
}

func TestToolCommandMissingField(t *testing.T) {
	d, _ := newDispatcher(t)
	reply := handleJSON(t, d, map[string]any{"command": "message_agent", "fromAgentId": "a"})
	assert.Contains(t, errorOf(t, reply), "missing required parameter")
}

func TestToolCommandFailureIsErrorReply(t *testing.T) {
	d, _ := newDispatcher(t)
	reply := handleJSON(t, d, map[string]any{"command": "get_agent_status", "agentId": "ghost"})
	assert.Contains(t, errorOf(t, reply), "not found")
}
