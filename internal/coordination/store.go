package coordination

import (
	"sort"
	"sync"
	"time"

	coorderrors "routa/internal/shared/errors"
	id "routa/internal/shared/utils/id"
)

// Store is the coordination state surface the runtime depends on. The core
// ships an in-memory implementation; persistent backends satisfy the same
// contract.
type Store interface {
	SaveAgent(agent Agent) error
	GetAgent(agentID string) (Agent, error)
	ListAgents(workspaceID string) []Agent

	SaveTask(task Task) error
	GetTask(taskID string) (Task, error)
	TasksForAgent(agentID string) []Task

	AppendMessage(agentID string, msg ConversationMessage) error
	ReadConversation(agentID string, lastN int, includeToolCalls bool) []ConversationMessage

	InitializeWorkspace(workspaceID string) (string, error)
}

// MemoryStore keeps all coordination state in process memory. A single
// reader-writer lock guards the maps; per-agent locks serialize conversation
// appends so wall-clock append order is preserved under concurrency.
type MemoryStore struct {
	mu            sync.RWMutex
	agents        map[string]Agent
	tasks         map[string]Task
	conversations map[string][]ConversationMessage
	routaByWs     map[string]string

	convMu    sync.Mutex
	convLocks map[string]*sync.Mutex
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		agents:        make(map[string]Agent),
		tasks:         make(map[string]Task),
		conversations: make(map[string][]ConversationMessage),
		routaByWs:     make(map[string]string),
		convLocks:     make(map[string]*sync.Mutex),
	}
}

// SaveAgent inserts or updates an agent, enforcing referential integrity and
// forward-only status transitions.
func (s *MemoryStore) SaveAgent(agent Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if agent.ParentID != "" {
		parent, ok := s.agents[agent.ParentID]
		if !ok || parent.WorkspaceID != agent.WorkspaceID {
			return coorderrors.NotFound("parent agent", agent.ParentID)
		}
	}

	if existing, ok := s.agents[agent.ID]; ok {
		if !CanTransitionAgent(existing.Status, agent.Status) {
			return coorderrors.InvalidState(
				"agent %s cannot transition %s -> %s", agent.ID, existing.Status, agent.Status)
		}
		agent.CreatedAt = existing.CreatedAt
	} else if agent.CreatedAt.IsZero() {
		agent.CreatedAt = time.Now()
	}
	agent.UpdatedAt = time.Now()

	s.agents[agent.ID] = agent
	return nil
}

// GetAgent returns the agent or NOT_FOUND.
func (s *MemoryStore) GetAgent(agentID string) (Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agent, ok := s.agents[agentID]
	if !ok {
		return Agent{}, coorderrors.NotFound("agent", agentID)
	}
	return agent, nil
}

// ListAgents returns the workspace roster ordered by creation time.
func (s *MemoryStore) ListAgents(workspaceID string) []Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var agents []Agent
	for _, agent := range s.agents {
		if agent.WorkspaceID == workspaceID {
			agents = append(agents, agent)
		}
	}
	sort.Slice(agents, func(i, j int) bool {
		if agents[i].CreatedAt.Equal(agents[j].CreatedAt) {
			return agents[i].ID < agents[j].ID
		}
		return agents[i].CreatedAt.Before(agents[j].CreatedAt)
	})
	return agents
}

// SaveTask inserts or updates a task, enforcing referential integrity and
// forward-only status transitions.
func (s *MemoryStore) SaveTask(task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if task.AssignedTo != "" {
		if _, ok := s.agents[task.AssignedTo]; !ok {
			return coorderrors.NotFound("assignee agent", task.AssignedTo)
		}
	}

	if existing, ok := s.tasks[task.ID]; ok {
		if !CanTransitionTask(existing.Status, task.Status) {
			return coorderrors.InvalidState(
				"task %s cannot transition %s -> %s", task.ID, existing.Status, task.Status)
		}
		task.CreatedAt = existing.CreatedAt
	} else if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	task.UpdatedAt = time.Now()

	s.tasks[task.ID] = task
	return nil
}

// GetTask returns the task or NOT_FOUND.
func (s *MemoryStore) GetTask(taskID string) (Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return Task{}, coorderrors.NotFound("task", taskID)
	}
	return task, nil
}

// TasksForAgent returns the tasks assigned to agentID in creation order.
func (s *MemoryStore) TasksForAgent(agentID string) []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tasks []Task
	for _, task := range s.tasks {
		if task.AssignedTo == agentID {
			tasks = append(tasks, task)
		}
	}
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks
}

func (s *MemoryStore) conversationLock(agentID string) *sync.Mutex {
	s.convMu.Lock()
	defer s.convMu.Unlock()
	lock, ok := s.convLocks[agentID]
	if !ok {
		lock = &sync.Mutex{}
		s.convLocks[agentID] = lock
	}
	return lock
}

// AppendMessage appends msg to the agent's conversation. The per-agent lock
// keeps the append order equal to the wall-clock call order.
func (s *MemoryStore) AppendMessage(agentID string, msg ConversationMessage) error {
	lock := s.conversationLock(agentID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[agentID]; !ok {
		return coorderrors.NotFound("agent", agentID)
	}
	msg.AgentID = agentID
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	s.conversations[agentID] = append(s.conversations[agentID], msg)
	return nil
}

// ReadConversation returns the most-recent-last slice of the agent's
// conversation. lastN <= 0 means everything; includeToolCalls=false filters
// TOOL_CALL and TOOL_RESULT entries before the lastN window is applied.
func (s *MemoryStore) ReadConversation(agentID string, lastN int, includeToolCalls bool) []ConversationMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.conversations[agentID]
	filtered := make([]ConversationMessage, 0, len(all))
	for _, msg := range all {
		if !includeToolCalls && (msg.Kind == KindToolCall || msg.Kind == KindToolResult) {
			continue
		}
		filtered = append(filtered, msg)
	}
	if lastN > 0 && len(filtered) > lastN {
		filtered = filtered[len(filtered)-lastN:]
	}
	return filtered
}

// InitializeWorkspace creates the singleton ROUTA agent for the workspace if
// absent and returns its id. Idempotent.
func (s *MemoryStore) InitializeWorkspace(workspaceID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if routaID, ok := s.routaByWs[workspaceID]; ok {
		return routaID, nil
	}

	now := time.Now()
	routa := Agent{
		ID:          id.NewAgentID(),
		Name:        "routa",
		Role:        RoleRouta,
		WorkspaceID: workspaceID,
		Status:      AgentActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.agents[routa.ID] = routa
	s.routaByWs[workspaceID] = routa.ID
	return routa.ID, nil
}

var _ Store = (*MemoryStore)(nil)
