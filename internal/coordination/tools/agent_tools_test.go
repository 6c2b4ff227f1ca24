package tools

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routa/internal/coordination"
	"routa/internal/coordination/events"
	coorderrors "routa/internal/shared/errors"
)

type fixture struct {
	store *coordination.MemoryStore
	bus   *events.Bus
	tools *AgentTools

	mu     sync.Mutex
	events []events.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: coordination.NewMemoryStore(),
		bus:   events.NewBus(),
	}
	t.Cleanup(f.bus.Close)
	f.tools = New(f.store, f.bus, nil)
	f.bus.Subscribe("observer", "observer", []string{"*"}, false, func(event events.Event) {
		f.mu.Lock()
		f.events = append(f.events, event)
		f.mu.Unlock()
	})
	return f
}

func (f *fixture) waitForEvent(t *testing.T, eventType string) events.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		for _, event := range f.events {
			if event.Type == eventType {
				f.mu.Unlock()
				return event
			}
		}
		f.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("event %s never arrived", eventType)
	return events.Event{}
}

func (f *fixture) createAgent(t *testing.T, name, role string) string {
	t.Helper()
	outcome := f.tools.CreateAgent(name, role, "ws-1", "", "")
	require.True(t, outcome.Success, "create agent: %v", outcome.Err)
	return outcome.Data
}

func (f *fixture) createTask(t *testing.T, id, title string) coordination.Task {
	t.Helper()
	task := coordination.Task{
		ID:          id,
		Title:       title,
		Objective:   "do " + title,
		Status:      coordination.TaskPending,
		WorkspaceID: "ws-1",
	}
	require.NoError(t, f.store.SaveTask(task))
	return task
}

func TestCreateAgentEmitsEvent(t *testing.T) {
	f := newFixture(t)
	agentID := f.createAgent(t, "worker", "CRAFTER")

	agent, err := f.store.GetAgent(agentID)
	require.NoError(t, err)
	assert.Equal(t, coordination.AgentPending, agent.Status)
	assert.Equal(t, coordination.RoleCrafter, agent.Role)

	event := f.waitForEvent(t, "agent.created")
	assert.Equal(t, agentID, event.Payload["agent_id"])
}

func TestCreateAgentRejectsUnknownRole(t *testing.T) {
	f := newFixture(t)
	outcome := f.tools.CreateAgent("worker", "WIZARD", "ws-1", "", "")
	assert.False(t, outcome.Success)
	assert.Equal(t, coorderrors.KindBadInput, coorderrors.KindOf(outcome.Err))
}

func TestListAgentsRoster(t *testing.T) {
	f := newFixture(t)
	f.createAgent(t, "alpha", "CRAFTER")
	f.createAgent(t, "beta", "GATE")

	outcome := f.tools.ListAgents("ws-1")
	require.True(t, outcome.Success)
	lines := strings.Split(outcome.Data, "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "alpha")
	assert.Contains(t, lines[0], "CRAFTER")
	assert.Contains(t, lines[1], "beta")
	assert.Contains(t, lines[1], "GATE")
}

func TestGetAgentStatus(t *testing.T) {
	f := newFixture(t)
	agentID := f.createAgent(t, "worker", "CRAFTER")

	outcome := f.tools.GetAgentStatus(agentID)
	require.True(t, outcome.Success)
	assert.Contains(t, outcome.Data, "status=PENDING")
	assert.Contains(t, outcome.Data, "role=CRAFTER")

	missing := f.tools.GetAgentStatus("ghost")
	assert.False(t, missing.Success)
	assert.True(t, coorderrors.IsNotFound(missing.Err))
}

func TestMessageAgentAppendsAndEmits(t *testing.T) {
	f := newFixture(t)
	sender := f.createAgent(t, "sender", "ROUTA")
	recipient := f.createAgent(t, "recipient", "CRAFTER")

	outcome := f.tools.MessageAgent(sender, recipient, "hello there")
	require.True(t, outcome.Success)

	conv := f.store.ReadConversation(recipient, 0, true)
	require.Len(t, conv, 1)
	assert.Equal(t, coordination.KindUser, conv[0].Kind)
	assert.Equal(t, "hello there", conv[0].Content)
	assert.Equal(t, sender, conv[0].FromAgentID)

	event := f.waitForEvent(t, "message.sent")
	assert.Equal(t, recipient, event.Payload["to"])
}

func TestDelegateTaskTransitions(t *testing.T) {
	f := newFixture(t)
	caller := f.createAgent(t, "routa", "ROUTA")
	worker := f.createAgent(t, "worker", "CRAFTER")
	f.createTask(t, "t1", "one")

	outcome := f.tools.DelegateTask(worker, "t1", caller)
	require.True(t, outcome.Success, "%v", outcome.Err)

	task, err := f.store.GetTask("t1")
	require.NoError(t, err)
	assert.Equal(t, coordination.TaskInProgress, task.Status)
	assert.Equal(t, worker, task.AssignedTo)

	agent, err := f.store.GetAgent(worker)
	require.NoError(t, err)
	assert.Equal(t, coordination.AgentActive, agent.Status)

	f.waitForEvent(t, "task.delegated")
}

func TestReportToParent(t *testing.T) {
	f := newFixture(t)
	parent := f.createAgent(t, "routa", "ROUTA")
	outcome := f.tools.CreateAgent("worker", "CRAFTER", "ws-1", parent, "")
	require.True(t, outcome.Success)
	worker := outcome.Data
	f.createTask(t, "t1", "one")
	require.True(t, f.tools.DelegateTask(worker, "t1", parent).Success)

	report := f.tools.ReportToParent(coordination.CompletionReport{
		AgentID:       worker,
		TaskID:        "t1",
		Summary:       "implemented the thing",
		FilesModified: []string{"a.go", "b.go"},
		Success:       true,
	})
	require.True(t, report.Success, "%v", report.Err)

	task, err := f.store.GetTask("t1")
	require.NoError(t, err)
	assert.Equal(t, coordination.TaskCompleted, task.Status)

	agent, err := f.store.GetAgent(worker)
	require.NoError(t, err)
	assert.Equal(t, coordination.AgentCompleted, agent.Status)

	conv := f.store.ReadConversation(parent, 0, true)
	require.Len(t, conv, 1)
	assert.Contains(t, conv[0].Content, "implemented the thing")
	assert.Contains(t, conv[0].Content, "a.go")

	event := f.waitForEvent(t, "task.completed")
	assert.Equal(t, "true", event.Payload["success"])
}

func TestReportToParentFailureMarksTaskFailed(t *testing.T) {
	f := newFixture(t)
	parent := f.createAgent(t, "routa", "ROUTA")
	worker := f.createAgent(t, "worker", "CRAFTER")
	f.createTask(t, "t1", "one")
	require.True(t, f.tools.DelegateTask(worker, "t1", parent).Success)

	report := f.tools.ReportToParent(coordination.CompletionReport{
		AgentID: worker,
		TaskID:  "t1",
		Summary: "could not finish",
		Success: false,
	})
	require.True(t, report.Success)

	task, err := f.store.GetTask("t1")
	require.NoError(t, err)
	assert.Equal(t, coordination.TaskFailed, task.Status)
}

func TestWakeOrCreateWakesAssignedAgent(t *testing.T) {
	f := newFixture(t)
	caller := f.createAgent(t, "routa", "ROUTA")
	worker := f.createAgent(t, "worker", "CRAFTER")
	f.createTask(t, "t1", "one")
	require.True(t, f.tools.DelegateTask(worker, "t1", caller).Success)

	outcome := f.tools.WakeOrCreateTaskAgent("t1", "please continue", caller, "ws-1", "", "")
	require.True(t, outcome.Success)
	assert.Contains(t, outcome.Data, "woke")

	conv := f.store.ReadConversation(worker, 0, true)
	require.Len(t, conv, 1)
	assert.Equal(t, "please continue", conv[0].Content)
}

func TestWakeOrCreateCreatesNewAgent(t *testing.T) {
	f := newFixture(t)
	caller := f.createAgent(t, "routa", "ROUTA")
	f.createTask(t, "t1", "one")

	outcome := f.tools.WakeOrCreateTaskAgent("t1", "get started", caller, "ws-1", "fresh-crafter", "FAST")
	require.True(t, outcome.Success, "%v", outcome.Err)
	assert.Contains(t, outcome.Data, "created_new")

	task, err := f.store.GetTask("t1")
	require.NoError(t, err)
	require.NotEmpty(t, task.AssignedTo)
	assert.Equal(t, coordination.TaskInProgress, task.Status)

	agent, err := f.store.GetAgent(task.AssignedTo)
	require.NoError(t, err)
	assert.Equal(t, coordination.RoleCrafter, agent.Role)
	assert.Equal(t, "fresh-crafter", agent.Name)
	assert.Equal(t, coordination.TierFast, agent.ModelTier)

	conv := f.store.ReadConversation(task.AssignedTo, 0, true)
	require.Len(t, conv, 1)
	assert.Equal(t, "get started", conv[0].Content)
}

func TestSendMessageToTaskAgentNotAssigned(t *testing.T) {
	f := newFixture(t)
	caller := f.createAgent(t, "routa", "ROUTA")
	f.createTask(t, "t1", "one")

	outcome := f.tools.SendMessageToTaskAgent("t1", "hello", caller)
	assert.False(t, outcome.Success)
	assert.True(t, coorderrors.IsInvalidState(outcome.Err))
	assert.Contains(t, outcome.Err.Error(), "NOT_ASSIGNED")
}

func TestSubscribeDeliversIntoConversation(t *testing.T) {
	f := newFixture(t)
	watcher := f.createAgent(t, "watcher", "GATE")

	outcome := f.tools.SubscribeToEvents(watcher, "watcher", []string{"task.*"}, false)
	require.True(t, outcome.Success)
	subID := outcome.Data
	require.NotEmpty(t, subID)

	f.bus.Publish(events.Event{Type: "task.delegated", Payload: map[string]string{"task_id": "t9"}})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conv := f.store.ReadConversation(watcher, 0, true)
		if len(conv) == 1 {
			assert.Equal(t, coordination.KindSystem, conv[0].Kind)
			assert.Contains(t, conv[0].Content, "task.delegated")
			f.tools.UnsubscribeFromEvents(subID)
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("subscription never delivered into the conversation")
}

func TestToolSurfaceDescriptors(t *testing.T) {
	f := newFixture(t)
	all := f.tools.Tools()
	require.Len(t, all, 12)

	names := make(map[string]bool, len(all))
	for _, tool := range all {
		names[tool.Descriptor.Name] = true
		assert.NotEmpty(t, tool.Descriptor.Description)
		for _, param := range tool.Descriptor.Params {
			assert.NotEmpty(t, param.Name)
			assert.NotEmpty(t, param.Type)
			assert.NotEmpty(t, param.Description)
		}
	}
	for _, expected := range []string{
		"list_agents", "create_agent", "get_agent_status", "get_agent_summary",
		"read_agent_conversation", "message_agent", "delegate_task", "report_to_parent",
		"wake_or_create_task_agent", "send_message_to_task_agent",
		"subscribe_to_events", "unsubscribe_from_events",
	} {
		assert.True(t, names[expected], "missing tool %s", expected)
	}
}

func TestToolRunMissingRequiredField(t *testing.T) {
	f := newFixture(t)
	for _, tool := range f.tools.Tools() {
		if tool.Descriptor.Name == "message_agent" {
			outcome := tool.Run(map[string]any{"fromAgentId": "a"})
			assert.False(t, outcome.Success)
			assert.Contains(t, outcome.Err.Error(), "missing required parameter")
			return
		}
	}
	t.Fatal("message_agent tool not found")
}
