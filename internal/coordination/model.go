package coordination

import (
	"fmt"
	"strings"
	"time"
)

// AgentRole identifies what an agent does inside a workspace.
type AgentRole string

const (
	// RoleRouta is the planning role; produces @@@task blocks.
	RoleRouta AgentRole = "ROUTA"
	// RoleCrafter is the implementation role; runs the text-based tool loop.
	RoleCrafter AgentRole = "CRAFTER"
	// RoleGate is the verification role; issues an approve/reject verdict.
	RoleGate AgentRole = "GATE"
)

// ParseAgentRole performs a strict parse and rejects unknown values.
func ParseAgentRole(value string) (AgentRole, error) {
	switch AgentRole(strings.ToUpper(strings.TrimSpace(value))) {
	case RoleRouta:
		return RoleRouta, nil
	case RoleCrafter:
		return RoleCrafter, nil
	case RoleGate:
		return RoleGate, nil
	}
	return "", fmt.Errorf("unknown agent role: %q", value)
}

// ModelTier selects how capable a model an agent should run against.
type ModelTier string

const (
	TierFast     ModelTier = "FAST"
	TierBalanced ModelTier = "BALANCED"
	TierSmart    ModelTier = "SMART"
)

// ParseModelTier performs a strict parse; the empty string means "unset".
func ParseModelTier(value string) (ModelTier, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(value))
	if trimmed == "" {
		return "", nil
	}
	switch ModelTier(trimmed) {
	case TierFast, TierBalanced, TierSmart:
		return ModelTier(trimmed), nil
	}
	return "", fmt.Errorf("unknown model tier: %q", value)
}

// AgentStatus is the forward-only lifecycle of an agent.
type AgentStatus string

const (
	AgentPending   AgentStatus = "PENDING"
	AgentActive    AgentStatus = "ACTIVE"
	AgentCompleted AgentStatus = "COMPLETED"
	AgentError     AgentStatus = "ERROR"
	AgentCancelled AgentStatus = "CANCELLED"
)

// agentStatusRank orders agent statuses along the allowed transition direction.
// Terminal statuses share a rank: once terminal, no further movement is legal.
func agentStatusRank(s AgentStatus) int {
	switch s {
	case AgentPending:
		return 0
	case AgentActive:
		return 1
	case AgentCompleted, AgentError, AgentCancelled:
		return 2
	}
	return -1
}

// CanTransitionAgent reports whether from→to moves forward through
// PENDING→ACTIVE→{COMPLETED|ERROR|CANCELLED}.
func CanTransitionAgent(from, to AgentStatus) bool {
	fromRank, toRank := agentStatusRank(from), agentStatusRank(to)
	if fromRank < 0 || toRank < 0 {
		return false
	}
	if from == to {
		return true
	}
	// Terminal states never change, not even to another terminal state.
	if fromRank == 2 {
		return false
	}
	return toRank > fromRank
}

// TaskStatus is the forward-only lifecycle of a task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "PENDING"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskCompleted  TaskStatus = "COMPLETED"
	TaskFailed     TaskStatus = "FAILED"
)

func taskStatusRank(s TaskStatus) int {
	switch s {
	case TaskPending:
		return 0
	case TaskInProgress:
		return 1
	case TaskCompleted, TaskFailed:
		return 2
	}
	return -1
}

// CanTransitionTask reports whether from→to moves forward through
// PENDING→IN_PROGRESS→{COMPLETED|FAILED}.
func CanTransitionTask(from, to TaskStatus) bool {
	fromRank, toRank := taskStatusRank(from), taskStatusRank(to)
	if fromRank < 0 || toRank < 0 {
		return false
	}
	if from == to {
		return true
	}
	if fromRank == 2 {
		return false
	}
	return toRank > fromRank
}

// Agent is a planning or worker agent owned by a workspace.
type Agent struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Role        AgentRole   `json:"role"`
	WorkspaceID string      `json:"workspace_id"`
	ParentID    string      `json:"parent_id,omitempty"`
	ModelTier   ModelTier   `json:"model_tier,omitempty"`
	Status      AgentStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Task is a unit of work produced by the planner and executed by a CRAFTER.
type Task struct {
	ID                   string     `json:"id"`
	Title                string     `json:"title"`
	Objective            string     `json:"objective"`
	Scope                []string   `json:"scope,omitempty"`
	AcceptanceCriteria   []string   `json:"acceptance_criteria,omitempty"`
	VerificationCommands []string   `json:"verification_commands,omitempty"`
	AssignedTo           string     `json:"assigned_to,omitempty"`
	Status               TaskStatus `json:"status"`
	WorkspaceID          string     `json:"workspace_id"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// MessageKind classifies conversation entries.
type MessageKind string

const (
	KindUser       MessageKind = "USER"
	KindAssistant  MessageKind = "ASSISTANT"
	KindToolCall   MessageKind = "TOOL_CALL"
	KindToolResult MessageKind = "TOOL_RESULT"
	KindSystem     MessageKind = "SYSTEM"
)

// ConversationMessage is one entry in an agent's append-only conversation.
type ConversationMessage struct {
	AgentID     string      `json:"agent_id"`
	FromAgentID string      `json:"from_agent_id,omitempty"`
	Content     string      `json:"content"`
	Kind        MessageKind `json:"kind"`
	Timestamp   time.Time   `json:"timestamp"`
}

// CompletionReport is produced by a worker agent for its parent.
type CompletionReport struct {
	AgentID       string   `json:"agent_id"`
	TaskID        string   `json:"task_id"`
	Summary       string   `json:"summary"`
	FilesModified []string `json:"files_modified,omitempty"`
	Success       bool     `json:"success"`
}
