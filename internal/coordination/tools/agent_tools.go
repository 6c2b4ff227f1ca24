package tools

import (
	"fmt"
	"strings"
	"time"

	"routa/internal/coordination"
	"routa/internal/coordination/events"
	coorderrors "routa/internal/shared/errors"
	"routa/internal/shared/logging"
	id "routa/internal/shared/utils/id"
)

// AgentTools is the typed coordination surface exposed to LLMs and to the
// A2A dispatcher. Every operation reads and writes through the store and
// announces state changes on the event bus.
type AgentTools struct {
	store  coordination.Store
	bus    *events.Bus
	logger logging.Logger
}

// New constructs the coordination tool surface.
func New(store coordination.Store, bus *events.Bus, logger logging.Logger) *AgentTools {
	return &AgentTools{
		store:  store,
		bus:    bus,
		logger: logging.OrNop(logger),
	}
}

func (t *AgentTools) emit(eventType, sourceAgentID string, payload map[string]string) {
	if t.bus == nil {
		return
	}
	t.bus.Publish(events.Event{
		Type:          eventType,
		Payload:       payload,
		SourceAgentID: sourceAgentID,
		Timestamp:     time.Now(),
	})
}

// ListAgents returns a newline-formatted roster of the workspace agents.
func (t *AgentTools) ListAgents(workspaceID string) Outcome {
	agents := t.store.ListAgents(workspaceID)
	if len(agents) == 0 {
		return Ok("No agents in workspace %s", workspaceID)
	}
	var sb strings.Builder
	for _, agent := range agents {
		fmt.Fprintf(&sb, "%s  %s  %s  %s\n", agent.ID, agent.Name, agent.Role, agent.Status)
	}
	return Ok("%s", strings.TrimRight(sb.String(), "\n"))
}

// CreateAgent registers a new agent in PENDING and emits agent.created.
func (t *AgentTools) CreateAgent(name, role, workspaceID, parentID, modelTier string) Outcome {
	parsedRole, err := coordination.ParseAgentRole(role)
	if err != nil {
		return Fail(coorderrors.BadInput("%v", err))
	}
	parsedTier, err := coordination.ParseModelTier(modelTier)
	if err != nil {
		return Fail(coorderrors.BadInput("%v", err))
	}

	now := time.Now()
	agent := coordination.Agent{
		ID:          id.NewAgentID(),
		Name:        name,
		Role:        parsedRole,
		WorkspaceID: workspaceID,
		ParentID:    parentID,
		ModelTier:   parsedTier,
		Status:      coordination.AgentPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := t.store.SaveAgent(agent); err != nil {
		return Fail(err)
	}

	t.logger.Info("Created agent %s (%s) in workspace %s", agent.ID, parsedRole, workspaceID)
	t.emit("agent.created", agent.ID, map[string]string{
		"agent_id":     agent.ID,
		"name":         name,
		"role":         string(parsedRole),
		"workspace_id": workspaceID,
	})
	return Ok("%s", agent.ID)
}

// GetAgentStatus returns status, role and parent of an agent.
func (t *AgentTools) GetAgentStatus(agentID string) Outcome {
	agent, err := t.store.GetAgent(agentID)
	if err != nil {
		return Fail(err)
	}
	parent := agent.ParentID
	if parent == "" {
		parent = "(none)"
	}
	return Ok("status=%s role=%s parent=%s", agent.Status, agent.Role, parent)
}

// GetAgentSummary returns the latest objective, last message and task count.
func (t *AgentTools) GetAgentSummary(agentID string) Outcome {
	agent, err := t.store.GetAgent(agentID)
	if err != nil {
		return Fail(err)
	}

	tasks := t.store.TasksForAgent(agentID)
	objective := "(none)"
	if len(tasks) > 0 {
		objective = tasks[len(tasks)-1].Objective
	}

	lastMessage := "(none)"
	conv := t.store.ReadConversation(agentID, 1, false)
	if len(conv) > 0 {
		lastMessage = conv[len(conv)-1].Content
	}

	return Ok("agent=%s role=%s objective=%s tasks=%d last_message=%s",
		agent.Name, agent.Role, objective, len(tasks), lastMessage)
}

// ReadAgentConversation returns the chronological conversation of an agent.
func (t *AgentTools) ReadAgentConversation(agentID string, lastN int, includeToolCalls bool) Outcome {
	if _, err := t.store.GetAgent(agentID); err != nil {
		return Fail(err)
	}
	messages := t.store.ReadConversation(agentID, lastN, includeToolCalls)
	if len(messages) == 0 {
		return Ok("(empty conversation)")
	}
	var sb strings.Builder
	for _, msg := range messages {
		from := msg.FromAgentID
		if from == "" {
			from = "-"
		}
		fmt.Fprintf(&sb, "[%s] %s from=%s: %s\n",
			msg.Timestamp.Format(time.RFC3339), msg.Kind, from, msg.Content)
	}
	return Ok("%s", strings.TrimRight(sb.String(), "\n"))
}

// MessageAgent appends a USER message to the recipient and emits message.sent.
func (t *AgentTools) MessageAgent(fromAgentID, toAgentID, message string) Outcome {
	if _, err := t.store.GetAgent(toAgentID); err != nil {
		return Fail(err)
	}
	err := t.store.AppendMessage(toAgentID, coordination.ConversationMessage{
		FromAgentID: fromAgentID,
		Content:     message,
		Kind:        coordination.KindUser,
		Timestamp:   time.Now(),
	})
	if err != nil {
		return Fail(err)
	}
	t.emit("message.sent", fromAgentID, map[string]string{
		"from": fromAgentID,
		"to":   toAgentID,
	})
	return Ok("Message delivered to %s", toAgentID)
}

// DelegateTask assigns a task to an agent, moving the task to IN_PROGRESS and
// the agent to ACTIVE, and emits task.delegated.
func (t *AgentTools) DelegateTask(agentID, taskID, callerAgentID string) Outcome {
	agent, err := t.store.GetAgent(agentID)
	if err != nil {
		return Fail(err)
	}
	task, err := t.store.GetTask(taskID)
	if err != nil {
		return Fail(err)
	}

	task.AssignedTo = agentID
	task.Status = coordination.TaskInProgress
	if err := t.store.SaveTask(task); err != nil {
		return Fail(err)
	}

	if agent.Status == coordination.AgentPending {
		agent.Status = coordination.AgentActive
		if err := t.store.SaveAgent(agent); err != nil {
			return Fail(err)
		}
	}

	t.logger.Info("Delegated task %s to agent %s (caller=%s)", taskID, agentID, callerAgentID)
	t.emit("task.delegated", callerAgentID, map[string]string{
		"task_id":  taskID,
		"agent_id": agentID,
	})
	return Ok("Task %s delegated to %s", taskID, agentID)
}

// ReportToParent records a worker's completion report: the task moves to
// COMPLETED or FAILED, the agent to COMPLETED, the summary lands in the
// parent's conversation, and task.completed is emitted.
func (t *AgentTools) ReportToParent(report coordination.CompletionReport) Outcome {
	agent, err := t.store.GetAgent(report.AgentID)
	if err != nil {
		return Fail(err)
	}
	task, err := t.store.GetTask(report.TaskID)
	if err != nil {
		return Fail(err)
	}

	if report.Success {
		task.Status = coordination.TaskCompleted
	} else {
		task.Status = coordination.TaskFailed
	}
	if err := t.store.SaveTask(task); err != nil {
		return Fail(err)
	}

	agent.Status = coordination.AgentCompleted
	if err := t.store.SaveAgent(agent); err != nil {
		return Fail(err)
	}

	if agent.ParentID != "" {
		summary := fmt.Sprintf("Task %s report (success=%t): %s", report.TaskID, report.Success, report.Summary)
		if len(report.FilesModified) > 0 {
			summary += "\nFiles modified: " + strings.Join(report.FilesModified, ", ")
		}
		if err := t.store.AppendMessage(agent.ParentID, coordination.ConversationMessage{
			FromAgentID: report.AgentID,
			Content:     summary,
			Kind:        coordination.KindUser,
			Timestamp:   time.Now(),
		}); err != nil {
			return Fail(err)
		}
	}

	t.emit("task.completed", report.AgentID, map[string]string{
		"task_id":  report.TaskID,
		"agent_id": report.AgentID,
		"success":  fmt.Sprintf("%t", report.Success),
	})
	return Ok("Report recorded for task %s", report.TaskID)
}

// WakeOrCreateTaskAgent wakes the task's assignee with a context message, or
// creates a fresh CRAFTER and delegates the task to it.
func (t *AgentTools) WakeOrCreateTaskAgent(taskID, contextMessage, callerAgentID, workspaceID, agentName, modelTier string) Outcome {
	task, err := t.store.GetTask(taskID)
	if err != nil {
		return Fail(err)
	}

	if task.AssignedTo != "" {
		outcome := t.MessageAgent(callerAgentID, task.AssignedTo, contextMessage)
		if !outcome.Success {
			return outcome
		}
		return Ok("woke agent %s for task %s", task.AssignedTo, taskID)
	}

	if agentName == "" {
		agentName = "crafter-" + taskID
	}
	created := t.CreateAgent(agentName, string(coordination.RoleCrafter), workspaceID, callerAgentID, modelTier)
	if !created.Success {
		return created
	}
	newAgentID := created.Data

	if outcome := t.DelegateTask(newAgentID, taskID, callerAgentID); !outcome.Success {
		return outcome
	}
	if contextMessage != "" {
		if outcome := t.MessageAgent(callerAgentID, newAgentID, contextMessage); !outcome.Success {
			return outcome
		}
	}
	return Ok("created_new agent %s for task %s", newAgentID, taskID)
}

// SendMessageToTaskAgent routes a message to the task's assignee.
func (t *AgentTools) SendMessageToTaskAgent(taskID, message, callerAgentID string) Outcome {
	task, err := t.store.GetTask(taskID)
	if err != nil {
		return Fail(err)
	}
	if task.AssignedTo == "" {
		return Fail(coorderrors.InvalidState("task %s is not assigned to any agent (NOT_ASSIGNED)", taskID))
	}
	return t.MessageAgent(callerAgentID, task.AssignedTo, message)
}

// SubscribeToEvents registers an event subscription for an agent. The
// delivered events are appended to the subscriber's conversation as SYSTEM
// messages so the agent observes them on its next turn.
func (t *AgentTools) SubscribeToEvents(agentID, agentName string, eventTypes []string, excludeSelf bool) Outcome {
	if _, err := t.store.GetAgent(agentID); err != nil {
		return Fail(err)
	}
	if t.bus == nil {
		return Fail(coorderrors.InvalidState("event bus is not available"))
	}
	subID := t.bus.Subscribe(agentID, agentName, eventTypes, excludeSelf, func(event events.Event) {
		_ = t.store.AppendMessage(agentID, coordination.ConversationMessage{
			FromAgentID: event.SourceAgentID,
			Content:     fmt.Sprintf("[event] %s %v", event.Type, event.Payload),
			Kind:        coordination.KindSystem,
			Timestamp:   event.Timestamp,
		})
	})
	return Ok("%s", subID)
}

// UnsubscribeFromEvents releases a subscription. Idempotent.
func (t *AgentTools) UnsubscribeFromEvents(subscriptionID string) Outcome {
	if t.bus != nil {
		t.bus.Unsubscribe(subscriptionID)
	}
	return Ok("Unsubscribed %s", subscriptionID)
}
