package anthropic

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/calebwray/relay"
	"github.com/tidwall/sjson"
)

const (
	defaultMaxTokens      = 4096
	defaultThinkingBudget = 1024
)

// Wire types for the Messages API request body.

type payload struct {
	Stream      bool             `json:"stream"`
	Model       string           `json:"model"`
	System      string           `json:"system,omitempty"`
	Messages    []messageParam   `json:"messages"`
	Tools       []toolParam      `json:"tools,omitempty"`
	ToolChoice  *toolChoiceParam `json:"tool_choice,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
	TopP        *float64         `json:"top_p,omitempty"`
	MaxTokens   int              `json:"max_tokens"`
	Thinking    *thinkingParam   `json:"thinking,omitempty"`
}

type messageParam struct {
	Role    string       `json:"role"`
	Content []blockParam `json:"content"`
}

type blockParam struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// thinking
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`

	// tool_use. Input is a pointer so an empty argument map still
	// serializes as {} rather than being dropped.
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input *map[string]any `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

type toolParam struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type toolChoiceParam struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

type thinkingParam struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

// buildPayload serializes the current conversation, tool schemas and
// generation options into the provider's JSON request body. Request
// options take precedence over provider config.
func buildPayload(model string, cfg Config, req *relay.Request) ([]byte, error) {
	p := payload{
		Stream:    true,
		Model:     model,
		System:    mergeSystemPrompts(req.Messages),
		Messages:  translateMessages(req.Messages),
		MaxTokens: defaultMaxTokens,
	}

	for _, t := range req.Tools {
		spec := t.Spec()
		p.Tools = append(p.Tools, toolParam{
			Name:        spec.Name,
			Description: spec.Description,
			InputSchema: spec.Parameters,
		})
	}
	if req.ToolChoice != nil {
		p.ToolChoice = &toolChoiceParam{Type: req.ToolChoice.Type, Name: req.ToolChoice.Name}
	}

	p.Temperature = firstOf(req.Temperature, cfg.Temperature)
	p.TopP = firstOf(req.TopP, cfg.TopP)
	if n := firstOf(req.MaxTokens, cfg.MaxOutputTokens); n != nil {
		p.MaxTokens = *n
	}

	if cfg.ThinkingEnabled {
		budget := defaultThinkingBudget
		if cfg.ThinkingBudget != nil {
			if *cfg.ThinkingBudget <= 0 {
				return nil, fmt.Errorf("anthropic: thinking budget must be a positive integer, got %d", *cfg.ThinkingBudget)
			}
			budget = *cfg.ThinkingBudget
		}
		p.Thinking = &thinkingParam{Type: "enabled", BudgetTokens: budget}
	}

	body, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	for k, v := range cfg.ExtraBody {
		body, err = sjson.SetBytes(body, k, v)
		if err != nil {
			return nil, err
		}
	}
	return body, nil
}

// mergeSystemPrompts joins all system messages into one system field.
func mergeSystemPrompts(msgs []relay.Message) string {
	var prompts []string
	for _, m := range msgs {
		if sm, ok := m.(relay.SystemMessage); ok && sm.Content != "" {
			prompts = append(prompts, sm.Content)
		}
	}
	return strings.Join(prompts, "\n\n")
}

// translateMessages maps conversation messages to wire messages.
// System messages are lifted into the system field; tool results ride
// on a user-role message per the Messages API.
func translateMessages(msgs []relay.Message) []messageParam {
	out := make([]messageParam, 0, len(msgs))
	for _, m := range msgs {
		switch msg := m.(type) {
		case relay.SystemMessage:
			continue
		case relay.UserMessage:
			out = append(out, messageParam{
				Role:    "user",
				Content: []blockParam{{Type: "text", Text: msg.Content}},
			})
		case relay.AssistantMessage:
			blocks := assistantBlocks(msg)
			if len(blocks) == 0 {
				continue
			}
			out = append(out, messageParam{Role: "assistant", Content: blocks})
		case relay.ToolResultMessage:
			blocks := make([]blockParam, 0, len(msg.Results))
			for _, res := range msg.Results {
				blocks = append(blocks, blockParam{
					Type:      "tool_result",
					ToolUseID: res.ToolUseID,
					Content:   res.Result,
				})
			}
			out = append(out, messageParam{Role: "user", Content: blocks})
		}
	}
	return out
}

func assistantBlocks(msg relay.AssistantMessage) []blockParam {
	var blocks []blockParam
	if ac := msg.AdditionalContent; ac != nil && ac.Thinking != "" {
		blocks = append(blocks, blockParam{
			Type:      "thinking",
			Thinking:  ac.Thinking,
			Signature: ac.ThinkingSignature,
		})
	}
	if msg.Content != "" {
		blocks = append(blocks, blockParam{Type: "text", Text: msg.Content})
	}
	for _, call := range msg.ToolCalls {
		input := call.Arguments
		if input == nil {
			input = map[string]any{}
		}
		blocks = append(blocks, blockParam{
			Type:  "tool_use",
			ID:    call.ID,
			Name:  call.Name,
			Input: &input,
		})
	}
	return blocks
}

func firstOf[T any](values ...*T) *T {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
