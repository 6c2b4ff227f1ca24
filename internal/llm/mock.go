package llm

import (
	"context"
	"sync"
)

// MockExecutor implements Executor for testing and for the MOCK provider tag.
// It replays scripted responses in order; when the script runs out it repeats
// the last entry, and with no script at all it returns a fixed canned reply.
type MockExecutor struct {
	model   string
	mu      sync.Mutex
	replies []string
	calls   int

	// Requests records every request received, most recent last.
	Requests []Request
}

// NewMockExecutor returns a mock with the default canned reply.
func NewMockExecutor(model string) *MockExecutor {
	return &MockExecutor{model: model}
}

// NewScriptedExecutor returns a mock that replays replies in order.
func NewScriptedExecutor(model string, replies ...string) *MockExecutor {
	return &MockExecutor{model: model, replies: replies}
}

func (m *MockExecutor) Model() string {
	return m.model
}

// Calls reports how many requests the mock has served.
func (m *MockExecutor) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockExecutor) nextReply(req Request) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, req)
	idx := m.calls
	m.calls++
	if len(m.replies) == 0 {
		return "This is a mock response for testing. No actual API calls were made."
	}
	if idx >= len(m.replies) {
		idx = len(m.replies) - 1
	}
	return m.replies[idx]
}

func (m *MockExecutor) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Response{Content: m.nextReply(req), StopReason: "stop"}, nil
}

func (m *MockExecutor) StreamComplete(ctx context.Context, req Request, callbacks StreamCallbacks) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content := m.nextReply(req)
	if callbacks.OnDelta != nil {
		callbacks.OnDelta(content, false)
		callbacks.OnDelta("", true)
	}
	return &Response{Content: content, StopReason: "stop"}, nil
}

var _ Executor = (*MockExecutor)(nil)
