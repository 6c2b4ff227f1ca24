package orchestrator

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routa/internal/coordination"
	"routa/internal/coordination/events"
	"routa/internal/llm"
	"routa/pkg/types"
)

const twoTaskPlan = "Here is the plan.\n" +
	"@@@task\n" +
	"# Add the endpoint\n" +
	"## Objective\nExpose the new HTTP endpoint.\n" +
	"## Definition of Done\n- handler registered\n" +
	"@@@\n" +
	"@@@task\n" +
	"# Write the tests\n" +
	"## Objective\nCover the endpoint with tests.\n" +
	"## Definition of Done\n- tests pass\n" +
	"@@@\n"

type roleMocks struct {
	mu    sync.Mutex
	order []string

	routa   *llm.MockExecutor
	crafter *llm.MockExecutor
	gate    *llm.MockExecutor
}

func newRoleMocks(planOutput string) *roleMocks {
	return &roleMocks{
		routa:   llm.NewScriptedExecutor("routa-mock", planOutput),
		crafter: llm.NewScriptedExecutor("crafter-mock", "Implemented the task as specified."),
		gate:    llm.NewScriptedExecutor("gate-mock", "✅ APPROVED"),
	}
}

func (m *roleMocks) executorFor(role coordination.AgentRole, tier coordination.ModelTier) (llm.Executor, error) {
	m.mu.Lock()
	m.order = append(m.order, string(role))
	m.mu.Unlock()
	switch role {
	case coordination.RoleRouta:
		return m.routa, nil
	case coordination.RoleCrafter:
		return m.crafter, nil
	default:
		return m.gate, nil
	}
}

func newTestOrchestrator(t *testing.T, mocks *roleMocks, maxParallel int) *Orchestrator {
	t.Helper()
	bus := events.NewBus()
	t.Cleanup(bus.Close)
	return New(Config{
		WorkspaceID: "ws-test",
		Store:       coordination.NewMemoryStore(),
		Bus:         bus,
		ExecutorFor: mocks.executorFor,
		Cwd:         t.TempDir(),
		MaxParallel: maxParallel,
		Metrics:     MustNewMetrics(prometheus.NewRegistry()),
	})
}

func countMatching(entries []string, substring string) int {
	count := 0
	for _, entry := range entries {
		if strings.Contains(entry, substring) {
			count++
		}
	}
	return count
}

func TestOrchestratorHappyPath(t *testing.T) {
	mocks := newRoleMocks(twoTaskPlan)
	orch := newTestOrchestrator(t, mocks, 0)

	result := orch.Run(context.Background(), "Build the endpoint feature")

	require.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, VerdictApproved, result.Verdict)
	assert.Contains(t, result.VerdictText, "APPROVED")
	require.Len(t, result.Tasks, 2)
	assert.Equal(t, "Add the endpoint", result.Tasks[0].Title)
	assert.Equal(t, "Write the tests", result.Tasks[1].Title)
	require.Len(t, result.CrafterOutputs, 2)
	for _, output := range result.CrafterOutputs {
		assert.Contains(t, output, "Implemented")
	}
	assert.Equal(t, PhaseDone, orch.Phase())

	// Execution order: ROUTA, CRAFTER, CRAFTER, GATE.
	assert.Equal(t, []string{"ROUTA", "CRAFTER", "CRAFTER", "GATE"}, mocks.order)

	// Every task reached COMPLETED.
	for _, task := range result.Tasks {
		assert.Equal(t, coordination.TaskCompleted, task.Status)
	}

	entries := orch.DebugEntries()
	assert.Equal(t, 2, countMatching(entries, "TASK planned"))
	assert.Equal(t, 2, countMatching(entries, "CRAFTER running"))
	assert.Equal(t, 2, countMatching(entries, "CRAFTER completed"))
	assert.GreaterOrEqual(t, countMatching(entries, "PHASE"), 5)
}

func TestOrchestratorNoTasks(t *testing.T) {
	mocks := newRoleMocks("I could not decompose this request into tasks.")
	orch := newTestOrchestrator(t, mocks, 0)

	result := orch.Run(context.Background(), "Do something fuzzy")

	assert.Equal(t, StatusNoTasks, result.Status)
	assert.Equal(t, PhaseDone, result.ReachedPhase)
	assert.Empty(t, result.Tasks)
	// CRAFTER and GATE never ran.
	assert.Equal(t, []string{"ROUTA"}, mocks.order)
}

func TestOrchestratorSequentialOrdering(t *testing.T) {
	mocks := newRoleMocks(twoTaskPlan)
	orch := newTestOrchestrator(t, mocks, 1)

	var mu sync.Mutex
	var seen []string
	orch.SubscribeAll(func(taskID string, chunk types.StreamChunk) {
		if chunk.Kind == types.ChunkCompletionReport {
			mu.Lock()
			seen = append(seen, taskID)
			mu.Unlock()
		}
	})

	result := orch.Run(context.Background(), "Build it")
	require.Equal(t, StatusSuccess, result.Status)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	// Task N+1 completed strictly after task N in parse order.
	assert.Equal(t, result.Tasks[0].ID, seen[0])
	assert.Equal(t, result.Tasks[1].ID, seen[1])
}

func TestOrchestratorParallelCraft(t *testing.T) {
	mocks := newRoleMocks(twoTaskPlan)
	orch := newTestOrchestrator(t, mocks, 4)

	result := orch.Run(context.Background(), "Build it")
	require.Equal(t, StatusSuccess, result.Status)
	require.Len(t, result.CrafterOutputs, 2)
}

func TestOrchestratorPerTaskStreamFanOut(t *testing.T) {
	mocks := newRoleMocks(twoTaskPlan)
	orch := newTestOrchestrator(t, mocks, 0)

	// Pre-subscribing needs task ids, which only exist after DISPATCH; the
	// catch-all subscriber demonstrates keyed fan-out instead.
	perTask := make(map[string]int)
	var mu sync.Mutex
	orch.SubscribeAll(func(taskID string, chunk types.StreamChunk) {
		mu.Lock()
		perTask[taskID]++
		mu.Unlock()
	})

	result := orch.Run(context.Background(), "Build it")
	require.Equal(t, StatusSuccess, result.Status)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, perTask, 2)
	for taskID, count := range perTask {
		assert.Greater(t, count, 0, "task %s received no chunks", taskID)
	}
}

func TestOrchestratorRejectionVerdict(t *testing.T) {
	mocks := newRoleMocks(twoTaskPlan)
	mocks.gate = llm.NewScriptedExecutor("gate-mock", "❌ REJECTED: criteria unmet")
	orch := newTestOrchestrator(t, mocks, 0)

	result := orch.Run(context.Background(), "Build it")
	require.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, VerdictRejected, result.Verdict)
}

func TestOrchestratorCancelBeforeCraft(t *testing.T) {
	mocks := newRoleMocks(twoTaskPlan)
	orch := newTestOrchestrator(t, mocks, 0)

	// Cancel as soon as the planner executor is requested.
	release := make(chan struct{})
	cancelled := &cancelOnFirstUse{inner: mocks.routa, trigger: func() {
		go func() {
			orch.Cancel()
			close(release)
		}()
	}}
	orch.cfg.ExecutorFor = func(role coordination.AgentRole, tier coordination.ModelTier) (llm.Executor, error) {
		if role == coordination.RoleRouta {
			return cancelled, nil
		}
		return mocks.executorFor(role, tier)
	}

	result := orch.Run(context.Background(), "Build it")
	<-release
	assert.Equal(t, StatusCancelled, result.Status)
	assert.Equal(t, PhasePlan, result.ReachedPhase)
}

type cancelOnFirstUse struct {
	inner   llm.Executor
	trigger func()
	once    sync.Once
}

func (c *cancelOnFirstUse) Model() string { return c.inner.Model() }

func (c *cancelOnFirstUse) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	c.once.Do(c.trigger)
	time.Sleep(50 * time.Millisecond)
	return c.inner.Complete(ctx, req)
}

func (c *cancelOnFirstUse) StreamComplete(ctx context.Context, req llm.Request, callbacks llm.StreamCallbacks) (*llm.Response, error) {
	c.once.Do(c.trigger)
	time.Sleep(50 * time.Millisecond)
	return c.inner.StreamComplete(ctx, req, callbacks)
}

func TestDebugLogRing(t *testing.T) {
	log := NewDebugLog()
	for i := 0; i < debugLogCapacity+50; i++ {
		log.Add("entry %d", i)
	}
	entries := log.Entries()
	require.Len(t, entries, debugLogCapacity)
	// Oldest entries were overwritten; the first retained entry is #50.
	assert.Contains(t, entries[0], "entry 50")
	assert.Contains(t, entries[len(entries)-1], "entry 549")
}

func TestFormatTaskPrompt(t *testing.T) {
	task := coordination.Task{
		Title:                "Do the thing",
		Objective:            "Make it so",
		Scope:                []string{"src/"},
		AcceptanceCriteria:   []string{"works"},
		VerificationCommands: []string{"go test ./..."},
	}
	prompt := FormatTaskPrompt(task)
	assert.Contains(t, prompt, "# Do the thing")
	assert.Contains(t, prompt, "## Objective\nMake it so")
	assert.Contains(t, prompt, "- src/")
	assert.Contains(t, prompt, "- works")
	assert.Contains(t, prompt, "- go test ./...")
}

func TestDistillVerdict(t *testing.T) {
	assert.Equal(t, VerdictApproved, distillVerdict("✅ APPROVED, ship it"))
	assert.Equal(t, VerdictRejected, distillVerdict("❌ REJECTED because reasons"))
	assert.Equal(t, VerdictRejected, distillVerdict("approved? no: rejected"))
	assert.Equal(t, VerdictUnknown, distillVerdict("inconclusive"))
}
