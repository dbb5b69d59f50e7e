package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/calebwray/relay"
	"github.com/calebwray/relay/providers/base"
	"github.com/tidwall/gjson"
)

// Stream drives one conversation across every hop of its tool call
// chain. A single goroutine pulls chunks via Next; each advance may
// block on the network, run local tools, or open the next hop's
// request.
type Stream struct {
	provider *Provider
	req      *relay.Request
	tools    map[string]relay.Tool
	maxSteps int
	depth    int

	resp   *http.Response
	frames *frameReader
	debug  *base.DebugLogger

	mu      sync.Mutex
	pending []relay.Chunk
	done    bool
	err     error
	closed  bool

	state      hopState
	rateLimits []relay.RateLimit
	usage      relay.Usage
}

var _ relay.Stream = (*Stream)(nil)

// toolCallSlot accumulates one tool call keyed by content-block index.
type toolCallSlot struct {
	id           string
	name         string
	partialInput strings.Builder
}

// hopState holds the per-hop accumulators. It is zeroed on every
// (re-)entry so no text, tool calls, thinking or citations leak from
// the previous hop.
type hopState struct {
	text      strings.Builder
	thinking  strings.Builder
	signature strings.Builder

	toolCalls map[int]*toolCallSlot
	order     []int

	citations []relay.CitationPart

	blockType       string
	blockIndex      int
	pendingCitation *relay.Citation

	stopReason string
	model      string
	requestID  string
}

func (st *hopState) reset() {
	*st = hopState{
		toolCalls:  make(map[int]*toolCallSlot),
		blockIndex: -1,
	}
}

// additional assembles the hop's additional-content bag, or nil when
// it would be empty.
func (st *hopState) additional() *relay.AdditionalContent {
	ac := &relay.AdditionalContent{
		Thinking:          st.thinking.String(),
		ThinkingSignature: st.signature.String(),
		Citations:         st.citations,
	}
	if ac.Empty() {
		return nil
	}
	return ac
}

func newStream(p *Provider, req *relay.Request, debug *base.DebugLogger) *Stream {
	tools := make(map[string]relay.Tool, len(req.Tools))
	for _, t := range req.Tools {
		tools[t.Spec().Name] = t
	}
	s := &Stream{
		provider: p,
		req:      req,
		tools:    tools,
		maxSteps: req.EffectiveMaxSteps(),
		debug:    debug,
	}
	s.state.reset()
	return s
}

// open issues the first request of the chain.
func (s *Stream) open(ctx context.Context) error {
	resp, err := s.provider.send(ctx, s.req)
	if err != nil {
		return err
	}
	s.attach(resp)
	return nil
}

// attach points the stream at a freshly opened response body.
func (s *Stream) attach(resp *http.Response) {
	s.resp = resp
	s.frames = newFrameReader(resp.Body)
	s.rateLimits, _ = parseRateLimitHeaders(resp.Header)
	s.state.reset()
}

// Next returns the next downstream chunk, io.EOF once the conversation
// has settled, or the error that ended the stream. Errors are sticky.
func (s *Stream) Next(ctx context.Context) (relay.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if len(s.pending) > 0 {
			return s.dequeue(), nil
		}
		if s.err != nil {
			return relay.Chunk{}, s.err
		}
		if s.done {
			return relay.Chunk{}, io.EOF
		}
		if err := ctx.Err(); err != nil {
			return relay.Chunk{}, err
		}

		if err := s.advance(ctx); err != nil {
			// Chunks enqueued before the failure still drain first;
			// the error surfaces on the following advance.
			s.err = err
			s.closeBody()
		}
	}
}

// Close releases the HTTP connection. Safe on every exit path,
// including early abandonment mid-stream.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.done = true
	s.closeBody()
	return s.debug.Close()
}

func (s *Stream) closeBody() {
	if s.resp != nil {
		_ = s.resp.Body.Close()
		s.resp = nil
	}
}

func (s *Stream) enqueue(c relay.Chunk) {
	s.pending = append(s.pending, c)
}

func (s *Stream) dequeue() relay.Chunk {
	c := s.pending[0]
	s.pending = s.pending[1:]
	_ = s.debug.Log("chunk", c)
	return c
}

// advance reads one frame and feeds it to the dispatcher. EOF without
// message_stop still hands accumulated tool calls to the driver, which
// guards against truncated streams.
func (s *Stream) advance(ctx context.Context) error {
	f, err := s.frames.next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			if len(s.state.order) > 0 {
				return s.handoff(ctx)
			}
			s.done = true
			s.closeBody()
			return nil
		}
		return err
	}
	if f.hasData() {
		_ = s.debug.Log("frame", json.RawMessage(f.raw))
	}
	return s.handleFrame(ctx, f)
}

// handleFrame is the event dispatcher: it mutates hop state and
// decides which chunks to emit. Unknown event types are ignored.
func (s *Stream) handleFrame(ctx context.Context, f frame) error {
	switch f.kind {
	case "ping":
		return nil

	case "message_start":
		s.state.requestID = f.data.Get("message.id").String()
		s.state.model = f.data.Get("message.model").String()
		s.usage.InputTokens += int(f.data.Get("message.usage.input_tokens").Int())
		s.usage.OutputTokens += int(f.data.Get("message.usage.output_tokens").Int())
		s.enqueue(relay.Chunk{Type: relay.ChunkMeta, Meta: s.meta()})
		return nil

	case "content_block_start":
		s.state.blockType = f.data.Get("content_block.type").String()
		s.state.blockIndex = int(f.data.Get("index").Int())
		switch s.state.blockType {
		case "tool_use":
			if _, exists := s.state.toolCalls[s.state.blockIndex]; !exists {
				slot := &toolCallSlot{
					id:   f.data.Get("content_block.id").String(),
					name: f.data.Get("content_block.name").String(),
				}
				s.state.toolCalls[s.state.blockIndex] = slot
				s.state.order = append(s.state.order, s.state.blockIndex)
			}
		case "thinking":
			s.state.thinking.Reset()
			s.state.signature.Reset()
		}
		return nil

	case "content_block_delta":
		return s.handleDelta(f)

	case "content_block_stop":
		s.state.blockType = ""
		s.state.blockIndex = -1
		s.state.pendingCitation = nil
		return nil

	case "message_delta":
		if v := f.data.Get("delta.stop_reason"); v.Exists() {
			s.state.stopReason = v.String()
		}
		s.usage.OutputTokens += int(f.data.Get("usage.output_tokens").Int())
		if s.state.stopReason == "tool_use" && len(s.state.order) > 0 {
			return s.handoff(ctx)
		}
		return nil

	case "message_stop":
		if v := f.data.Get("stop_reason"); v.Exists() {
			s.state.stopReason = v.String()
		}
		if s.state.stopReason == "tool_use" && len(s.state.order) > 0 {
			return s.handoff(ctx)
		}
		s.finish()
		return nil

	case "error":
		errType := f.data.Get("error.type").String()
		if errType == "overloaded_error" {
			return &relay.OverloadedError{}
		}
		return &relay.ProviderResponseError{
			Type:    errType,
			Message: f.data.Get("error.message").String(),
		}

	default:
		return nil
	}
}

// handleDelta dispatches on delta.type combined with the current
// content-block type.
func (s *Stream) handleDelta(f frame) error {
	switch f.data.Get("delta.type").String() {
	case "text_delta":
		if s.state.blockType != "text" {
			return nil
		}
		text := firstString(f.data, "delta.text", "delta.text_delta.text", "text")
		if text != "" {
			s.state.text.WriteString(text)
		}

		var ac *relay.AdditionalContent
		if s.state.pendingCitation != nil {
			s.state.citations = append(s.state.citations, relay.CitationPart{
				Text:     text,
				Citation: *s.state.pendingCitation,
			})
			idx := len(s.state.citations) - 1
			ac = &relay.AdditionalContent{CitationIndex: &idx}
			s.state.pendingCitation = nil
		}
		if text != "" || ac != nil {
			s.enqueue(relay.Chunk{Type: relay.ChunkMessage, Text: text, AdditionalContent: ac})
		}
		return nil

	case "input_json_delta":
		if s.state.blockType != "tool_use" {
			return nil
		}
		if slot := s.state.toolCalls[s.state.blockIndex]; slot != nil {
			slot.partialInput.WriteString(f.data.Get("delta.partial_json").String())
		}
		return nil

	case "thinking_delta":
		if s.state.blockType != "thinking" {
			return nil
		}
		delta := f.data.Get("delta.thinking").String()
		s.state.thinking.WriteString(delta)
		s.enqueue(relay.Chunk{Type: relay.ChunkThinking, Thinking: delta})
		return nil

	case "signature_delta":
		if s.state.blockType != "thinking" {
			return nil
		}
		s.state.signature.WriteString(f.data.Get("delta.signature").String())
		return nil

	case "citations_delta":
		if s.state.blockType != "text" {
			return nil
		}
		citation, err := classifyCitation(f.data.Get("delta.citation"))
		if err != nil {
			return err
		}
		s.state.pendingCitation = &citation
		return nil

	default:
		return nil
	}
}

// finish emits the terminal Meta chunk and ends the stream.
func (s *Stream) finish() {
	s.enqueue(relay.Chunk{
		Type:              relay.ChunkMeta,
		Text:              s.state.text.String(),
		FinishReason:      mapStopReason(s.state.stopReason),
		Meta:              s.meta(),
		Usage:             &relay.Usage{InputTokens: s.usage.InputTokens, OutputTokens: s.usage.OutputTokens},
		AdditionalContent: s.state.additional(),
	})
	s.done = true
	s.closeBody()
}

func (s *Stream) meta() *relay.Meta {
	return &relay.Meta{
		RequestID:  s.state.requestID,
		Model:      s.state.model,
		RateLimits: s.rateLimits,
	}
}

// handoff is the tool driver: it finalizes the accumulated tool calls,
// invokes the local tools sequentially in declared order, appends the
// assistant and tool-result turns to the conversation, and opens the
// next hop's request.
func (s *Stream) handoff(ctx context.Context) error {
	calls := s.finalToolCalls()
	additional := s.state.additional()

	s.enqueue(relay.Chunk{
		Type:              relay.ChunkMessage,
		FinishReason:      relay.FinishToolCalls,
		ToolCalls:         calls,
		AdditionalContent: additional,
	})

	results, err := s.invokeTools(calls)
	if err != nil {
		return err
	}

	s.req.Messages = append(s.req.Messages,
		relay.AssistantMessage{
			Content:           s.state.text.String(),
			ToolCalls:         calls,
			AdditionalContent: additional,
		},
		relay.ToolResultMessage{Results: results},
	)

	s.enqueue(relay.Chunk{Type: relay.ChunkMessage, ToolResults: results})

	return s.nextHop(ctx)
}

// finalToolCalls snapshots the tool-call map in insertion order.
// A partial input that fails to decode yields an empty argument map:
// degraded but surfaced.
func (s *Stream) finalToolCalls() []relay.ToolCall {
	calls := make([]relay.ToolCall, 0, len(s.state.order))
	for _, idx := range s.state.order {
		slot := s.state.toolCalls[idx]
		args := map[string]any{}
		if raw := slot.partialInput.String(); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				args = map[string]any{}
			}
		}
		calls = append(calls, relay.ToolCall{ID: slot.id, Name: slot.name, Arguments: args})
	}
	return calls
}

func (s *Stream) invokeTools(calls []relay.ToolCall) ([]relay.ToolResult, error) {
	results := make([]relay.ToolResult, 0, len(calls))
	for _, call := range calls {
		tool, ok := s.tools[call.Name]
		if !ok {
			return nil, &relay.ToolNotFoundError{Name: call.Name}
		}
		out, err := tool.Invoke(call.Arguments)
		if err != nil {
			return nil, &relay.ToolInvokeError{Name: call.Name, Err: err}
		}
		results = append(results, relay.ToolResult{
			ToolUseID: call.ID,
			Name:      call.Name,
			Result:    out,
		})
	}
	return results, nil
}

// nextHop enforces the depth bound, then re-sends a streaming request
// with the enlarged conversation and splices it into the same
// downstream sequence.
func (s *Stream) nextHop(ctx context.Context) error {
	depth := s.depth + 1
	if depth >= s.maxSteps {
		return &relay.MaxStepsError{MaxSteps: s.maxSteps}
	}

	s.closeBody()
	resp, err := s.provider.send(ctx, s.req)
	if err != nil {
		return err
	}
	s.depth = depth
	s.attach(resp)
	return nil
}

// classifyCitation tags a citation record by its positional signature.
// The raw record is preserved alongside the tag.
func classifyCitation(rec gjson.Result) (relay.Citation, error) {
	raw := json.RawMessage(rec.Raw)
	switch {
	case rec.Get("start_page_number").Exists():
		return relay.Citation{Type: relay.CitationPageLocation, Raw: raw}, nil
	case rec.Get("start_char_index").Exists():
		return relay.Citation{Type: relay.CitationCharLocation, Raw: raw}, nil
	case rec.Get("start_block_index").Exists():
		return relay.Citation{Type: relay.CitationContentBlockLocation, Raw: raw}, nil
	default:
		return relay.Citation{}, &relay.InvalidCitationError{Raw: rec.Raw}
	}
}

// mapStopReason maps provider stop reasons to the public finish
// reasons.
func mapStopReason(reason string) relay.FinishReason {
	switch reason {
	case "end_turn", "stop_sequence":
		return relay.FinishStop
	case "max_tokens":
		return relay.FinishLength
	case "tool_use":
		return relay.FinishToolCalls
	default:
		return relay.FinishOther
	}
}

// firstString probes payload paths in order, tolerating provider
// variations in where the delta text lives.
func firstString(data gjson.Result, paths ...string) string {
	for _, path := range paths {
		if v := data.Get(path); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}
