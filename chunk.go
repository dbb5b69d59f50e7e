package relay

// ChunkType classifies a downstream chunk.
type ChunkType string

const (
	ChunkMessage  ChunkType = "message"
	ChunkThinking ChunkType = "thinking"
	ChunkMeta     ChunkType = "meta"
)

// FinishReason is the normalized terminal status of a turn.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishLength    FinishReason = "length"
	FinishToolCalls FinishReason = "tool_calls"
	FinishOther     FinishReason = "other"
)

// Meta carries per-turn message metadata.
type Meta struct {
	RequestID  string      `json:"request_id,omitempty"`
	Model      string      `json:"model,omitempty"`
	RateLimits []RateLimit `json:"rate_limits,omitempty"`
}

// Usage reports token accounting.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Chunk is the unified per-event object emitted to the consumer.
// It must never be appended into the conversation history.
type Chunk struct {
	Type ChunkType `json:"type"`

	// Text is a delta for ChunkMessage chunks. On the final ChunkMeta
	// chunk it is the full assistant text of the last hop only; text
	// from earlier hops of a tool call chain is not repeated there.
	Text string `json:"text,omitempty"`

	// Thinking is a reasoning delta on ChunkThinking chunks.
	Thinking string `json:"thinking,omitempty"`

	FinishReason FinishReason `json:"finish_reason,omitempty"`

	// ToolCalls is set on the single chunk announcing the turn's
	// completed tool calls; ToolResults on the chunk that follows
	// their execution.
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`

	Meta  *Meta  `json:"meta,omitempty"`
	Usage *Usage `json:"usage,omitempty"`

	AdditionalContent *AdditionalContent `json:"additional_content,omitempty"`
}
