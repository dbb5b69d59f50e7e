package relay_test

import (
	"context"
	"io"
	"testing"

	"github.com/calebwray/relay"
)

// scriptedStream plays a fixed chunk sequence.
type scriptedStream struct {
	chunks []relay.Chunk
	pos    int
	closed bool
}

func (s *scriptedStream) Next(ctx context.Context) (relay.Chunk, error) {
	if s.pos >= len(s.chunks) {
		return relay.Chunk{}, io.EOF
	}
	c := s.chunks[s.pos]
	s.pos++
	return c, nil
}

func (s *scriptedStream) Close() error {
	s.closed = true
	return nil
}

type scriptedProvider struct {
	stream *scriptedStream
}

func (p *scriptedProvider) Stream(ctx context.Context, req *relay.Request) (relay.Stream, error) {
	return p.stream, nil
}

func TestComplete(t *testing.T) {
	stream := &scriptedStream{chunks: []relay.Chunk{
		{Type: relay.ChunkMeta, Meta: &relay.Meta{RequestID: "msg_1", Model: "claude-sonnet"}},
		{Type: relay.ChunkThinking, Thinking: "let me see"},
		{Type: relay.ChunkMessage, Text: "Hi "},
		{Type: relay.ChunkMessage, FinishReason: relay.FinishToolCalls,
			ToolCalls: []relay.ToolCall{{ID: "t1", Name: "search", Arguments: map[string]any{}}}},
		{Type: relay.ChunkMessage,
			ToolResults: []relay.ToolResult{{ToolUseID: "t1", Name: "search", Result: "3pm"}}},
		{Type: relay.ChunkMessage, Text: "there"},
		{Type: relay.ChunkMeta, Text: "Hi there", FinishReason: relay.FinishStop,
			Meta:  &relay.Meta{RequestID: "msg_2", Model: "claude-sonnet"},
			Usage: &relay.Usage{InputTokens: 10, OutputTokens: 20}},
	}}

	got, err := relay.Complete(context.Background(), &scriptedProvider{stream: stream}, &relay.Request{
		Messages: []relay.Message{relay.UserMessage{Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if got.Text != "Hi there" {
		t.Errorf("text = %q", got.Text)
	}
	if got.Thinking != "let me see" {
		t.Errorf("thinking = %q", got.Thinking)
	}
	if got.FinishReason != relay.FinishStop {
		t.Errorf("finish reason = %s", got.FinishReason)
	}
	if len(got.ToolCalls) != 1 || got.ToolCalls[0].ID != "t1" {
		t.Errorf("tool calls = %+v", got.ToolCalls)
	}
	if len(got.ToolResults) != 1 || got.ToolResults[0].Result != "3pm" {
		t.Errorf("tool results = %+v", got.ToolResults)
	}
	if got.Meta == nil || got.Meta.RequestID != "msg_2" {
		t.Errorf("meta = %+v, want the final hop's meta", got.Meta)
	}
	if got.Usage == nil || got.Usage.OutputTokens != 20 {
		t.Errorf("usage = %+v", got.Usage)
	}
	if !stream.closed {
		t.Error("stream was not closed")
	}
}
