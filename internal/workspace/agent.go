package workspace

import (
	"context"

	"routa/internal/llm"
	coorderrors "routa/internal/shared/errors"
	"routa/internal/shared/logging"
	"routa/internal/toolcall"
	"routa/internal/toolexec"
	"routa/pkg/types"
)

const (
	defaultMaxIterations = 20

	cancelledSentinel     = "[Agent cancelled]"
	maxIterationsSentinel = "[Agent reached max iterations]"
)

// Agent drives one LLM conversation through the iterative text-based tool
// loop. All tool semantics ride inside message text; the executor receives no
// native tools.
type Agent struct {
	id            string
	executor      llm.Executor
	systemPrompt  string
	maxIterations int
	tools         *toolexec.Executor
	cancels       *CancelRegistry
	logger        logging.Logger
}

// Config assembles an Agent.
type Config struct {
	AgentID       string
	Executor      llm.Executor
	SystemPrompt  string
	MaxIterations int
	Tools         *toolexec.Executor
	Cancels       *CancelRegistry
	Logger        logging.Logger
}

// NewAgent constructs a workspace agent.
func NewAgent(cfg Config) *Agent {
	maxIterations := cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}
	cancels := cfg.Cancels
	if cancels == nil {
		cancels = NewCancelRegistry()
	}
	return &Agent{
		id:            cfg.AgentID,
		executor:      cfg.Executor,
		systemPrompt:  cfg.SystemPrompt,
		maxIterations: maxIterations,
		tools:         cfg.Tools,
		cancels:       cancels,
		logger:        logging.OrNop(cfg.Logger),
	}
}

// ID returns the agent id the cancel flag is keyed by.
func (a *Agent) ID() string {
	return a.id
}

func (a *Agent) buildRequest(conversation []llm.Message) llm.Request {
	messages := make([]llm.Message, 0, len(conversation)+1)
	if a.systemPrompt != "" {
		messages = append(messages, llm.Message{Role: "system", Content: a.systemPrompt})
	}
	messages = append(messages, conversation...)
	return llm.Request{Messages: messages}
}

// Run executes the one-shot tool loop and returns the terminal response.
func (a *Agent) Run(ctx context.Context, userPrompt string) (string, error) {
	a.cancels.Register(a.id)
	defer a.cancels.Release(a.id)

	conversation := []llm.Message{{Role: "user", Content: userPrompt}}
	lastResponse := ""

	for iteration := 1; iteration <= a.maxIterations; iteration++ {
		if a.cancels.IsCancelled(a.id) || ctx.Err() != nil {
			if lastResponse != "" {
				return lastResponse, nil
			}
			return cancelledSentinel, nil
		}

		resp, err := a.executor.Complete(ctx, a.buildRequest(conversation))
		if err != nil {
			return lastResponse, coorderrors.Upstream(err, "LLM call failed: "+err.Error())
		}
		lastResponse = resp.Content

		calls := toolcall.Extract(resp.Content)
		if len(calls) == 0 {
			return resp.Content, nil
		}

		a.logger.Debug("Agent %s iteration %d: executing %d tool calls", a.id, iteration, len(calls))
		conversation = append(conversation, llm.Message{Role: "assistant", Content: resp.Content})
		results := a.tools.ExecuteAll(calls)
		conversation = append(conversation, llm.Message{Role: "user", Content: toolexec.FormatResults(results)})
	}

	if lastResponse != "" {
		return lastResponse, nil
	}
	return maxIterationsSentinel, nil
}

// RunStream is the streaming variant: LLM output is consumed as deltas and
// emitted to the caller; between iterations the caller observes tool-call
// progress chunks and a "\n\n" separator.
func (a *Agent) RunStream(ctx context.Context, userPrompt string, emit func(types.StreamChunk)) (string, error) {
	a.cancels.Register(a.id)
	defer a.cancels.Release(a.id)

	send := func(chunk types.StreamChunk) bool {
		if a.cancels.IsCancelled(a.id) || ctx.Err() != nil {
			return false
		}
		if emit != nil {
			emit(chunk)
		}
		return true
	}

	conversation := []llm.Message{{Role: "user", Content: userPrompt}}
	lastResponse := ""

	for iteration := 1; iteration <= a.maxIterations; iteration++ {
		if a.cancels.IsCancelled(a.id) || ctx.Err() != nil {
			if lastResponse != "" {
				return lastResponse, nil
			}
			return cancelledSentinel, nil
		}

		callbacks := llm.StreamCallbacks{
			OnDelta: func(delta string, final bool) {
				if delta == "" {
					return
				}
				send(types.TextChunk(delta))
			},
		}
		resp, err := a.executor.StreamComplete(ctx, a.buildRequest(conversation), callbacks)
		if err != nil {
			send(types.ErrorChunk(coorderrors.FormatForLLM(err), coorderrors.Recoverable(err)))
			return lastResponse, coorderrors.Upstream(err, "LLM call failed: "+err.Error())
		}
		lastResponse = resp.Content

		calls := toolcall.Extract(resp.Content)
		if len(calls) == 0 {
			send(types.CompletedChunk(resp.StopReason))
			return resp.Content, nil
		}

		conversation = append(conversation, llm.Message{Role: "assistant", Content: resp.Content})

		results := make([]toolexec.Result, 0, len(calls))
		for _, call := range calls {
			if !send(types.ToolCallChunk(call.Name, types.ToolCallStarted, call.Arguments, "")) {
				return lastResponse, nil
			}
			result := a.tools.Execute(call)
			results = append(results, result)
			status := types.ToolCallCompleted
			if !result.Success {
				status = types.ToolCallFailed
			}
			if !send(types.ToolCallChunk(call.Name, status, nil, result.Output)) {
				return lastResponse, nil
			}
		}

		conversation = append(conversation, llm.Message{Role: "user", Content: toolexec.FormatResults(results)})
		if !send(types.TextChunk("\n\n")) {
			return lastResponse, nil
		}
	}

	if lastResponse != "" {
		return lastResponse, nil
	}
	return maxIterationsSentinel, nil
}
