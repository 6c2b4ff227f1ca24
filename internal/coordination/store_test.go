package coordination

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coorderrors "routa/internal/shared/errors"
)

func agentFixture(id string) Agent {
	return Agent{
		ID:          id,
		Name:        "agent-" + id,
		Role:        RoleCrafter,
		WorkspaceID: "ws-1",
		Status:      AgentPending,
	}
}

func TestSaveAndGetAgent(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.SaveAgent(agentFixture("a1")))

	agent, err := store.GetAgent("a1")
	require.NoError(t, err)
	assert.Equal(t, "agent-a1", agent.Name)
	assert.False(t, agent.CreatedAt.IsZero())
}

func TestGetAgentNotFound(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.GetAgent("ghost")
	assert.True(t, coorderrors.IsNotFound(err))
}

func TestSaveAgentDanglingParent(t *testing.T) {
	store := NewMemoryStore()
	agent := agentFixture("a1")
	agent.ParentID = "ghost"
	err := store.SaveAgent(agent)
	assert.True(t, coorderrors.IsNotFound(err))
}

func TestSaveAgentParentInOtherWorkspace(t *testing.T) {
	store := NewMemoryStore()
	parent := agentFixture("p1")
	parent.WorkspaceID = "ws-other"
	require.NoError(t, store.SaveAgent(parent))

	child := agentFixture("c1")
	child.ParentID = "p1"
	err := store.SaveAgent(child)
	assert.True(t, coorderrors.IsNotFound(err))
}

func TestAgentStatusMonotonicity(t *testing.T) {
	store := NewMemoryStore()
	agent := agentFixture("a1")
	require.NoError(t, store.SaveAgent(agent))

	agent.Status = AgentActive
	require.NoError(t, store.SaveAgent(agent))

	agent.Status = AgentCompleted
	require.NoError(t, store.SaveAgent(agent))

	// Backward transitions are rejected.
	agent.Status = AgentActive
	err := store.SaveAgent(agent)
	assert.True(t, coorderrors.IsInvalidState(err))

	agent.Status = AgentPending
	err = store.SaveAgent(agent)
	assert.True(t, coorderrors.IsInvalidState(err))

	// Terminal-to-terminal is also rejected.
	agent.Status = AgentCancelled
	err = store.SaveAgent(agent)
	assert.True(t, coorderrors.IsInvalidState(err))
}

func TestListAgentsCreationOrder(t *testing.T) {
	store := NewMemoryStore()
	base := time.Now()
	for i := 0; i < 5; i++ {
		agent := agentFixture(fmt.Sprintf("a%d", 5-i))
		agent.CreatedAt = base.Add(time.Duration(5-i) * time.Millisecond)
		require.NoError(t, store.SaveAgent(agent))
	}

	agents := store.ListAgents("ws-1")
	require.Len(t, agents, 5)
	for i := 1; i < len(agents); i++ {
		assert.False(t, agents[i].CreatedAt.Before(agents[i-1].CreatedAt))
	}
}

func TestTaskLifecycle(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.SaveAgent(agentFixture("a1")))

	task := Task{ID: "t1", Title: "one", Status: TaskPending, WorkspaceID: "ws-1"}
	require.NoError(t, store.SaveTask(task))

	task.AssignedTo = "a1"
	task.Status = TaskInProgress
	require.NoError(t, store.SaveTask(task))

	task.Status = TaskCompleted
	require.NoError(t, store.SaveTask(task))

	task.Status = TaskInProgress
	err := store.SaveTask(task)
	assert.True(t, coorderrors.IsInvalidState(err))
}

func TestTaskDanglingAssignee(t *testing.T) {
	store := NewMemoryStore()
	task := Task{ID: "t1", Title: "one", Status: TaskPending, WorkspaceID: "ws-1", AssignedTo: "ghost"}
	err := store.SaveTask(task)
	assert.True(t, coorderrors.IsNotFound(err))
}

func TestTasksForAgent(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.SaveAgent(agentFixture("a1")))
	for i := 0; i < 3; i++ {
		task := Task{
			ID:          fmt.Sprintf("t%d", i),
			Title:       fmt.Sprintf("task %d", i),
			Status:      TaskPending,
			WorkspaceID: "ws-1",
			AssignedTo:  "a1",
			CreatedAt:   time.Now().Add(time.Duration(i) * time.Millisecond),
		}
		require.NoError(t, store.SaveTask(task))
	}
	tasks := store.TasksForAgent("a1")
	require.Len(t, tasks, 3)
	assert.Equal(t, "t0", tasks[0].ID)
}

func TestConversationAppendAndRead(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.SaveAgent(agentFixture("a1")))

	kinds := []MessageKind{KindUser, KindAssistant, KindToolCall, KindToolResult, KindSystem}
	for i, kind := range kinds {
		require.NoError(t, store.AppendMessage("a1", ConversationMessage{
			Content: fmt.Sprintf("m%d", i),
			Kind:    kind,
		}))
	}

	all := store.ReadConversation("a1", 0, true)
	require.Len(t, all, 5)
	assert.Equal(t, "m0", all[0].Content)
	assert.Equal(t, "m4", all[4].Content)

	filtered := store.ReadConversation("a1", 0, false)
	require.Len(t, filtered, 3)
	for _, msg := range filtered {
		assert.NotEqual(t, KindToolCall, msg.Kind)
		assert.NotEqual(t, KindToolResult, msg.Kind)
	}

	lastTwo := store.ReadConversation("a1", 2, true)
	require.Len(t, lastTwo, 2)
	assert.Equal(t, "m3", lastTwo[0].Content)
	assert.Equal(t, "m4", lastTwo[1].Content)
}

func TestAppendMessageUnknownAgent(t *testing.T) {
	store := NewMemoryStore()
	err := store.AppendMessage("ghost", ConversationMessage{Content: "x", Kind: KindUser})
	assert.True(t, coorderrors.IsNotFound(err))
}

func TestConcurrentAppendsPreserved(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.SaveAgent(agentFixture("a1")))

	const writers = 8
	const perWriter = 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_ = store.AppendMessage("a1", ConversationMessage{
					Content: fmt.Sprintf("w%d-%d", w, i),
					Kind:    KindUser,
				})
			}
		}(w)
	}
	wg.Wait()

	assert.Len(t, store.ReadConversation("a1", 0, true), writers*perWriter)
}

func TestInitializeWorkspaceIdempotent(t *testing.T) {
	store := NewMemoryStore()
	first, err := store.InitializeWorkspace("ws-1")
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := store.InitializeWorkspace("ws-1")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	routa, err := store.GetAgent(first)
	require.NoError(t, err)
	assert.Equal(t, RoleRouta, routa.Role)

	other, err := store.InitializeWorkspace("ws-2")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestParseAgentRoleStrict(t *testing.T) {
	role, err := ParseAgentRole("crafter")
	require.NoError(t, err)
	assert.Equal(t, RoleCrafter, role)

	_, err = ParseAgentRole("WIZARD")
	assert.Error(t, err)
}

func TestParseModelTier(t *testing.T) {
	tier, err := ParseModelTier("fast")
	require.NoError(t, err)
	assert.Equal(t, TierFast, tier)

	tier, err = ParseModelTier("")
	require.NoError(t, err)
	assert.Equal(t, ModelTier(""), tier)

	_, err = ParseModelTier("ULTRA")
	assert.Error(t, err)
}
