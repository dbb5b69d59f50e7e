package relay

import (
	"context"
	"errors"
	"io"
	"strings"
)

// Completion is the drained form of a stream: the concatenated
// assistant text plus the tool trace and final metadata.
type Completion struct {
	Text         string
	Thinking     string
	FinishReason FinishReason
	ToolCalls    []ToolCall
	ToolResults  []ToolResult
	Meta         *Meta
	Usage        *Usage
}

// Complete runs a streamed exchange to exhaustion and returns the
// collected result.
func Complete(ctx context.Context, provider Provider, req *Request) (Completion, error) {
	stream, err := provider.Stream(ctx, req)
	if err != nil {
		return Completion{}, err
	}
	defer stream.Close()

	var (
		text     strings.Builder
		thinking strings.Builder
		out      Completion
	)

	for {
		chunk, err := stream.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Completion{}, err
		}

		switch chunk.Type {
		case ChunkMessage:
			text.WriteString(chunk.Text)
		case ChunkThinking:
			thinking.WriteString(chunk.Thinking)
		case ChunkMeta:
			if chunk.Meta != nil {
				out.Meta = chunk.Meta
			}
			if chunk.Usage != nil {
				out.Usage = chunk.Usage
			}
		}
		if chunk.FinishReason != "" {
			out.FinishReason = chunk.FinishReason
		}
		out.ToolCalls = append(out.ToolCalls, chunk.ToolCalls...)
		out.ToolResults = append(out.ToolResults, chunk.ToolResults...)
	}

	out.Text = text.String()
	out.Thinking = thinking.String()
	return out, nil
}
