package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"routa/internal/coordination"
	"routa/internal/coordination/events"
	"routa/internal/coordination/tools"
	"routa/internal/llm"
	"routa/internal/shared/logging"
	"routa/internal/taskparse"
	"routa/internal/toolexec"
	"routa/internal/workspace"
	"routa/pkg/types"
)

// Phase names the stages of the ROUTA→CRAFTER→GATE pipeline.
type Phase string

const (
	PhasePlan     Phase = "PLAN"
	PhaseDispatch Phase = "DISPATCH"
	PhaseCraft    Phase = "CRAFT"
	PhaseVerify   Phase = "VERIFY"
	PhaseDone     Phase = "DONE"
)

// Status is the terminal condition of a run.
type Status string

const (
	StatusSuccess   Status = "SUCCESS"
	StatusFailure   Status = "FAILURE"
	StatusCancelled Status = "CANCELLED"
	StatusNoTasks   Status = "NO_TASKS"
)

// Verdict values distilled from the GATE's textual reply.
const (
	VerdictApproved = "APPROVED"
	VerdictRejected = "REJECTED"
	VerdictUnknown  = "UNKNOWN"
)

const cancelGrace = 5 * time.Second

// Result is what a run returns.
type Result struct {
	Status         Status              `json:"status"`
	Verdict        string              `json:"verdict,omitempty"`
	VerdictText    string              `json:"verdict_text,omitempty"`
	Tasks          []coordination.Task `json:"tasks,omitempty"`
	CrafterOutputs map[string]string   `json:"crafter_outputs,omitempty"`
	Reason         string              `json:"reason,omitempty"`
	ReachedPhase   Phase               `json:"reached_phase"`
}

// Config assembles an orchestrator for one workspace.
type Config struct {
	WorkspaceID string
	Store       coordination.Store
	Bus         *events.Bus
	// ExecutorFor builds or selects the LLM executor for a role. The three
	// roles usually share one executor; tests inject role-specific mocks.
	ExecutorFor func(role coordination.AgentRole, tier coordination.ModelTier) (llm.Executor, error)
	// Cwd roots the built-in file tools of every spawned agent.
	Cwd string
	// MaxParallel bounds concurrent CRAFTER execution; <=1 means sequential.
	MaxParallel int
	Logger      logging.Logger
	Metrics     *Metrics
}

// Orchestrator drives one PLAN→DISPATCH→CRAFT→VERIFY→DONE run.
type Orchestrator struct {
	cfg        Config
	agentTools *tools.AgentTools
	cancels    *workspace.CancelRegistry
	debug      *DebugLog
	logger     logging.Logger
	metrics    *Metrics

	stopped atomic.Bool

	mu             sync.Mutex
	phase          Phase
	runDone        chan struct{}
	subscribers    map[string][]func(types.StreamChunk)
	allSubscribers []func(taskID string, chunk types.StreamChunk)
}

// New constructs an orchestrator. The debug ring is owned by this instance.
func New(cfg Config) *Orchestrator {
	logger := logging.OrNop(cfg.Logger)
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = defaultMetrics()
	}
	return &Orchestrator{
		cfg:         cfg,
		agentTools:  tools.New(cfg.Store, cfg.Bus, logger),
		cancels:     workspace.NewCancelRegistry(),
		debug:       NewDebugLog(),
		logger:      logger,
		metrics:     metrics,
		phase:       PhasePlan,
		subscribers: make(map[string][]func(types.StreamChunk)),
	}
}

// Phase returns the phase the run has reached.
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// DebugEntries exposes the debug ring, oldest first.
func (o *Orchestrator) DebugEntries() []string {
	return o.debug.Entries()
}

// Cancels exposes the cancellation registry for embedders that interrupt
// individual agents.
func (o *Orchestrator) Cancels() *workspace.CancelRegistry {
	return o.cancels
}

// SubscribeTask registers a per-task stream subscriber. Chunks produced while
// the task's CRAFTER runs are fanned out to every subscriber for its taskID.
func (o *Orchestrator) SubscribeTask(taskID string, fn func(types.StreamChunk)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.subscribers[taskID] = append(o.subscribers[taskID], fn)
}

// SubscribeAll registers a subscriber that observes every task's stream.
func (o *Orchestrator) SubscribeAll(fn func(taskID string, chunk types.StreamChunk)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.allSubscribers = append(o.allSubscribers, fn)
}

func (o *Orchestrator) emitTask(taskID string, chunk types.StreamChunk) {
	o.mu.Lock()
	subs := append([]func(types.StreamChunk){}, o.subscribers[taskID]...)
	all := append([]func(string, types.StreamChunk){}, o.allSubscribers...)
	o.mu.Unlock()
	for _, fn := range subs {
		fn(chunk)
	}
	for _, fn := range all {
		fn(taskID, chunk)
	}
}

func (o *Orchestrator) transition(phase Phase) {
	o.mu.Lock()
	o.phase = phase
	o.mu.Unlock()
	o.debug.Add("PHASE %s", phase)
	o.logger.Info("Orchestrator phase: %s", phase)
}

// Cancel interrupts every running agent, waits up to the grace period for
// cooperative exit, and leaves the run to return Cancelled.
func (o *Orchestrator) Cancel() {
	o.debug.Add("STOP requested")
	o.stopped.Store(true)
	o.cancels.InterruptAll()

	o.mu.Lock()
	done := o.runDone
	o.mu.Unlock()
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(cancelGrace):
		o.debug.Add("STOP grace period expired")
	}
}

func (o *Orchestrator) aborted(ctx context.Context) bool {
	return ctx.Err() != nil || o.stopped.Load()
}

// Run executes the full pipeline for one user request.
func (o *Orchestrator) Run(ctx context.Context, userRequest string) Result {
	done := make(chan struct{})
	o.mu.Lock()
	o.runDone = done
	o.mu.Unlock()
	defer close(done)

	o.metrics.IncActiveRuns()
	defer o.metrics.DecActiveRuns()

	// PLAN
	o.transition(PhasePlan)
	planStarted := time.Now()
	planOutput, err := o.runPlanner(ctx, userRequest)
	if err != nil {
		o.metrics.ObservePhase(string(PhasePlan), "error", time.Since(planStarted))
		o.debug.Add("ERROR plan: %v", err)
		return Result{Status: StatusFailure, Reason: err.Error(), ReachedPhase: PhasePlan}
	}
	o.metrics.ObservePhase(string(PhasePlan), "ok", time.Since(planStarted))
	if o.aborted(ctx) {
		return Result{Status: StatusCancelled, ReachedPhase: PhasePlan}
	}

	// DISPATCH
	o.transition(PhaseDispatch)
	dispatchStarted := time.Now()
	tasks := taskparse.Parse(planOutput, o.cfg.WorkspaceID)
	for _, task := range tasks {
		if err := o.cfg.Store.SaveTask(task); err != nil {
			o.debug.Add("ERROR dispatch: %v", err)
			o.metrics.ObservePhase(string(PhaseDispatch), "error", time.Since(dispatchStarted))
			return Result{Status: StatusFailure, Reason: err.Error(), ReachedPhase: PhaseDispatch}
		}
		o.debug.Add("TASK planned: %s (%s)", task.Title, task.ID)
	}
	o.metrics.ObservePhase(string(PhaseDispatch), "ok", time.Since(dispatchStarted))

	if len(tasks) == 0 {
		o.transition(PhaseDone)
		o.debug.Add("no tasks parsed from planner output")
		return Result{
			Status:       StatusNoTasks,
			ReachedPhase: PhaseDone,
			Reason:       "planner produced no @@@task blocks",
		}
	}

	// CRAFT
	o.transition(PhaseCraft)
	craftStarted := time.Now()
	crafterOutputs, err := o.runCrafters(ctx, tasks)
	if err != nil {
		o.metrics.ObservePhase(string(PhaseCraft), "error", time.Since(craftStarted))
		o.debug.Add("ERROR craft: %v", err)
		if o.aborted(ctx) {
			return Result{Status: StatusCancelled, ReachedPhase: PhaseCraft, CrafterOutputs: crafterOutputs, Tasks: tasks}
		}
		return Result{Status: StatusFailure, Reason: err.Error(), ReachedPhase: PhaseCraft, CrafterOutputs: crafterOutputs, Tasks: tasks}
	}
	o.metrics.ObservePhase(string(PhaseCraft), "ok", time.Since(craftStarted))
	if o.aborted(ctx) {
		return Result{Status: StatusCancelled, ReachedPhase: PhaseCraft, CrafterOutputs: crafterOutputs, Tasks: tasks}
	}

	// VERIFY
	o.transition(PhaseVerify)
	verifyStarted := time.Now()
	verdictText, err := o.runGate(ctx, tasks, crafterOutputs)
	if err != nil {
		o.metrics.ObservePhase(string(PhaseVerify), "error", time.Since(verifyStarted))
		o.debug.Add("ERROR verify: %v", err)
		return Result{Status: StatusFailure, Reason: err.Error(), ReachedPhase: PhaseVerify, CrafterOutputs: crafterOutputs, Tasks: tasks}
	}
	o.metrics.ObservePhase(string(PhaseVerify), "ok", time.Since(verifyStarted))

	// DONE
	o.transition(PhaseDone)
	finalTasks := o.refreshTasks(tasks)
	return Result{
		Status:         StatusSuccess,
		Verdict:        distillVerdict(verdictText),
		VerdictText:    verdictText,
		Tasks:          finalTasks,
		CrafterOutputs: crafterOutputs,
		ReachedPhase:   PhaseDone,
	}
}

func (o *Orchestrator) executorFor(role coordination.AgentRole, tier coordination.ModelTier) (llm.Executor, error) {
	if o.cfg.ExecutorFor == nil {
		return nil, fmt.Errorf("no executor factory configured")
	}
	return o.cfg.ExecutorFor(role, tier)
}

func (o *Orchestrator) newWorkspaceAgent(agentID string, role coordination.AgentRole, executor llm.Executor) *workspace.Agent {
	toolExec := toolexec.New(o.cfg.Cwd, o.agentTools.Tools(), o.logger)
	return workspace.NewAgent(workspace.Config{
		AgentID:       agentID,
		Executor:      executor,
		SystemPrompt:  workspace.BuildSystemPrompt(role, toolExec.Descriptors()),
		MaxIterations: workspace.MaxIterationsFor(role),
		Tools:         toolExec,
		Cancels:       o.cancels,
		Logger:        o.logger,
	})
}

func (o *Orchestrator) runPlanner(ctx context.Context, userRequest string) (string, error) {
	routaID, err := o.cfg.Store.InitializeWorkspace(o.cfg.WorkspaceID)
	if err != nil {
		return "", err
	}

	executor, err := o.executorFor(coordination.RoleRouta, coordination.TierSmart)
	if err != nil {
		return "", err
	}

	o.debug.Add("AGENT start ROUTA %s", routaID)
	o.debug.Add("PROMPT sent: %s", preview(userRequest))
	agent := o.newWorkspaceAgent(routaID, coordination.RoleRouta, executor)
	output, err := agent.Run(ctx, userRequest)
	if err != nil {
		return "", err
	}
	o.debug.Add("AGENT complete ROUTA %s", routaID)
	return output, nil
}

func (o *Orchestrator) runCrafters(ctx context.Context, tasks []coordination.Task) (map[string]string, error) {
	outputs := make(map[string]string, len(tasks))
	var outputsMu sync.Mutex

	routaID, err := o.cfg.Store.InitializeWorkspace(o.cfg.WorkspaceID)
	if err != nil {
		return outputs, err
	}

	runOne := func(ctx context.Context, task coordination.Task) error {
		if o.aborted(ctx) {
			return context.Canceled
		}

		created := o.agentTools.CreateAgent(
			fmt.Sprintf("crafter-%s", task.ID), string(coordination.RoleCrafter),
			o.cfg.WorkspaceID, routaID, string(coordination.TierBalanced))
		if !created.Success {
			return created.Err
		}
		crafterID := created.Data

		if outcome := o.agentTools.DelegateTask(crafterID, task.ID, routaID); !outcome.Success {
			return outcome.Err
		}

		executor, err := o.executorFor(coordination.RoleCrafter, coordination.TierBalanced)
		if err != nil {
			return err
		}

		o.debug.Add("CRAFTER running: %s task=%s", crafterID, task.ID)
		prompt := FormatTaskPrompt(task)
		o.debug.Add("PROMPT sent: %s", preview(prompt))

		agent := o.newWorkspaceAgent(crafterID, coordination.RoleCrafter, executor)

		o.debug.Add("STREAM open: task %s", task.ID)
		output, err := agent.RunStream(ctx, prompt, func(chunk types.StreamChunk) {
			o.emitTask(task.ID, chunk)
		})
		o.debug.Add("STREAM close: task %s", task.ID)
		if err != nil {
			o.metrics.IncTask("failed")
			report := o.agentTools.ReportToParent(coordination.CompletionReport{
				AgentID: crafterID,
				TaskID:  task.ID,
				Summary: fmt.Sprintf("CRAFTER failed: %v", err),
				Success: false,
			})
			if !report.Success {
				o.logger.Warn("Failed to record failure report for task %s: %v", task.ID, report.Err)
			}
			return err
		}

		outputsMu.Lock()
		outputs[task.ID] = output
		outputsMu.Unlock()

		report := o.agentTools.ReportToParent(coordination.CompletionReport{
			AgentID: crafterID,
			TaskID:  task.ID,
			Summary: preview(output),
			Success: true,
		})
		if !report.Success {
			return report.Err
		}
		o.metrics.IncTask("completed")
		o.debug.Add("CRAFTER completed: %s task=%s", crafterID, task.ID)
		o.emitTask(task.ID, types.CompletionReportChunk(preview(output), true, nil))
		return nil
	}

	if o.cfg.MaxParallel > 1 {
		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(o.cfg.MaxParallel)
		for _, task := range tasks {
			task := task
			group.Go(func() error { return runOne(groupCtx, task) })
		}
		return outputs, group.Wait()
	}

	// Sequential default: task N+1 starts strictly after task N completes.
	for _, task := range tasks {
		if err := runOne(ctx, task); err != nil {
			return outputs, err
		}
	}
	return outputs, nil
}

func (o *Orchestrator) runGate(ctx context.Context, tasks []coordination.Task, crafterOutputs map[string]string) (string, error) {
	routaID, err := o.cfg.Store.InitializeWorkspace(o.cfg.WorkspaceID)
	if err != nil {
		return "", err
	}

	created := o.agentTools.CreateAgent("gate", string(coordination.RoleGate),
		o.cfg.WorkspaceID, routaID, string(coordination.TierSmart))
	if !created.Success {
		return "", created.Err
	}
	gateID := created.Data

	executor, err := o.executorFor(coordination.RoleGate, coordination.TierSmart)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("Review the following tasks and implementation reports.\n\n")
	sb.WriteString("## Task definitions\n\n")
	sb.WriteString(taskparse.Format(tasks))
	sb.WriteString("\n## Implementation reports\n\n")
	for _, task := range tasks {
		sb.WriteString("### " + task.Title + "\n")
		sb.WriteString(crafterOutputs[task.ID] + "\n\n")
	}

	o.debug.Add("AGENT start GATE %s", gateID)
	o.debug.Add("PROMPT sent: %s", preview(sb.String()))
	agent := o.newWorkspaceAgent(gateID, coordination.RoleGate, executor)
	verdict, err := agent.Run(ctx, sb.String())
	if err != nil {
		return "", err
	}
	o.debug.Add("AGENT complete GATE %s", gateID)

	gate, getErr := o.cfg.Store.GetAgent(gateID)
	if getErr == nil {
		gate.Status = coordination.AgentCompleted
		if saveErr := o.cfg.Store.SaveAgent(gate); saveErr != nil {
			o.logger.Warn("Failed to complete GATE agent %s: %v", gateID, saveErr)
		}
	}
	return verdict, nil
}

func (o *Orchestrator) refreshTasks(tasks []coordination.Task) []coordination.Task {
	out := make([]coordination.Task, 0, len(tasks))
	for _, task := range tasks {
		if fresh, err := o.cfg.Store.GetTask(task.ID); err == nil {
			out = append(out, fresh)
			continue
		}
		out = append(out, task)
	}
	return out
}

// FormatTaskPrompt renders the task record into the CRAFTER's user prompt.
func FormatTaskPrompt(task coordination.Task) string {
	var sb strings.Builder
	sb.WriteString("# " + task.Title + "\n\n")
	if task.Objective != "" {
		sb.WriteString("## Objective\n" + task.Objective + "\n\n")
	}
	writeList := func(header string, items []string) {
		if len(items) == 0 {
			return
		}
		sb.WriteString("## " + header + "\n")
		for _, item := range items {
			sb.WriteString("- " + item + "\n")
		}
		sb.WriteString("\n")
	}
	writeList("Scope", task.Scope)
	writeList("Definition of Done", task.AcceptanceCriteria)
	writeList("Verification", task.VerificationCommands)
	return strings.TrimRight(sb.String(), "\n")
}

// distillVerdict reduces the GATE's free-form reply to APPROVED / REJECTED,
// or VerdictUnknown when the reply contains neither word.
func distillVerdict(verdictText string) string {
	upper := strings.ToUpper(verdictText)
	switch {
	case strings.Contains(upper, VerdictRejected):
		return VerdictRejected
	case strings.Contains(upper, VerdictApproved):
		return VerdictApproved
	default:
		return VerdictUnknown
	}
}

func preview(text string) string {
	const limit = 80
	text = strings.ReplaceAll(text, "\n", " ")
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "…"
}
