package types

// ChunkKind discriminates the stream chunk variants produced to embedders.
type ChunkKind string

const (
	ChunkText             ChunkKind = "text"
	ChunkThinking         ChunkKind = "thinking"
	ChunkToolCall         ChunkKind = "tool_call"
	ChunkError            ChunkKind = "error"
	ChunkCompleted        ChunkKind = "completed"
	ChunkHeartbeat        ChunkKind = "heartbeat"
	ChunkCompletionReport ChunkKind = "completion_report"
)

// ThinkingPhase marks the position of a thinking chunk within a reasoning block.
type ThinkingPhase string

const (
	ThinkingStart ThinkingPhase = "START"
	ThinkingChunk ThinkingPhase = "CHUNK"
	ThinkingEnd   ThinkingPhase = "END"
)

// ToolCallStatus tracks a tool invocation surfaced on the stream.
type ToolCallStatus string

const (
	ToolCallStarted    ToolCallStatus = "STARTED"
	ToolCallInProgress ToolCallStatus = "IN_PROGRESS"
	ToolCallCompleted  ToolCallStatus = "COMPLETED"
	ToolCallFailed     ToolCallStatus = "FAILED"
)

// StreamChunk is one unit of the streaming output protocol. Exactly the
// fields for its Kind are populated; everything else is zero.
type StreamChunk struct {
	Kind ChunkKind `json:"kind"`

	// ChunkText
	Content string `json:"content,omitempty"`

	// ChunkThinking
	ThinkingPhase ThinkingPhase `json:"thinking_phase,omitempty"`

	// ChunkToolCall
	ToolName   string            `json:"tool_name,omitempty"`
	ToolStatus ToolCallStatus    `json:"tool_status,omitempty"`
	Arguments  map[string]string `json:"arguments,omitempty"`
	Result     string            `json:"result,omitempty"`

	// ChunkError
	Message     string `json:"message,omitempty"`
	Recoverable bool   `json:"recoverable,omitempty"`

	// ChunkCompleted
	StopReason string `json:"stop_reason,omitempty"`

	// ChunkCompletionReport
	Summary       string   `json:"summary,omitempty"`
	Success       bool     `json:"success,omitempty"`
	FilesModified []string `json:"files_modified,omitempty"`
}

// TextChunk builds a text chunk.
func TextChunk(content string) StreamChunk {
	return StreamChunk{Kind: ChunkText, Content: content}
}

// ThinkingChunkOf builds a thinking chunk for the given phase.
func ThinkingChunkOf(phase ThinkingPhase, content string) StreamChunk {
	return StreamChunk{Kind: ChunkThinking, ThinkingPhase: phase, Content: content}
}

// ToolCallChunk builds a tool-call progress chunk.
func ToolCallChunk(name string, status ToolCallStatus, arguments map[string]string, result string) StreamChunk {
	return StreamChunk{Kind: ChunkToolCall, ToolName: name, ToolStatus: status, Arguments: arguments, Result: result}
}

// ErrorChunk builds an error chunk.
func ErrorChunk(message string, recoverable bool) StreamChunk {
	return StreamChunk{Kind: ChunkError, Message: message, Recoverable: recoverable}
}

// CompletedChunk builds a completion chunk.
func CompletedChunk(stopReason string) StreamChunk {
	return StreamChunk{Kind: ChunkCompleted, StopReason: stopReason}
}

// HeartbeatChunk builds a heartbeat chunk.
func HeartbeatChunk() StreamChunk {
	return StreamChunk{Kind: ChunkHeartbeat}
}

// CompletionReportChunk builds a worker completion-report chunk.
func CompletionReportChunk(summary string, success bool, filesModified []string) StreamChunk {
	return StreamChunk{Kind: ChunkCompletionReport, Summary: summary, Success: success, FilesModified: filesModified}
}
