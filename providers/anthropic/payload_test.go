package anthropic

import (
	"strings"
	"testing"

	"github.com/calebwray/relay"
	"github.com/tidwall/gjson"
)

func floatPtr(f float64) *float64 { return &f }
func intPtr(n int) *int           { return &n }

func buildTestPayload(t *testing.T, cfg Config, req *relay.Request) string {
	t.Helper()
	body, err := buildPayload("claude-sonnet", cfg, req)
	if err != nil {
		t.Fatalf("buildPayload failed: %v", err)
	}
	return string(body)
}

func TestPayloadBasics(t *testing.T) {
	req := &relay.Request{
		Messages: []relay.Message{
			relay.SystemMessage{Content: "Be brief."},
			relay.SystemMessage{Content: "Use tools."},
			relay.UserMessage{Content: "hello"},
		},
		Temperature: floatPtr(0.3),
		TopP:        floatPtr(0.9),
		MaxTokens:   intPtr(512),
	}
	body := buildTestPayload(t, Config{}, req)

	if !gjson.Get(body, "stream").Bool() {
		t.Error("stream is not true")
	}
	if got := gjson.Get(body, "model").String(); got != "claude-sonnet" {
		t.Errorf("model = %q", got)
	}
	if got := gjson.Get(body, "system").String(); got != "Be brief.\n\nUse tools." {
		t.Errorf("system = %q", got)
	}
	if got := gjson.Get(body, "messages.#").Int(); got != 1 {
		t.Errorf("messages = %d, want 1 (system lifted out)", got)
	}
	if got := gjson.Get(body, "messages.0.content.0.text").String(); got != "hello" {
		t.Errorf("user text = %q", got)
	}
	if got := gjson.Get(body, "temperature").Float(); got != 0.3 {
		t.Errorf("temperature = %v", got)
	}
	if got := gjson.Get(body, "top_p").Float(); got != 0.9 {
		t.Errorf("top_p = %v", got)
	}
	if got := gjson.Get(body, "max_tokens").Int(); got != 512 {
		t.Errorf("max_tokens = %d", got)
	}
	// Unset options are dropped, not serialized as null.
	for _, absent := range []string{"tools", "tool_choice", "thinking"} {
		if gjson.Get(body, absent).Exists() {
			t.Errorf("%s present in payload: %s", absent, body)
		}
	}
}

func TestPayloadDefaultMaxTokens(t *testing.T) {
	req := &relay.Request{Messages: []relay.Message{relay.UserMessage{Content: "hi"}}}
	body := buildTestPayload(t, Config{}, req)
	if got := gjson.Get(body, "max_tokens").Int(); got != defaultMaxTokens {
		t.Errorf("max_tokens = %d, want %d", got, defaultMaxTokens)
	}
}

func TestPayloadTools(t *testing.T) {
	tool := relay.NewTool("search", "Search the web",
		map[string]any{
			"type":       "object",
			"properties": map[string]any{"query": map[string]any{"type": "string"}},
			"required":   []string{"query"},
		},
		func(map[string]any) (string, error) { return "", nil })

	req := &relay.Request{
		Messages:   []relay.Message{relay.UserMessage{Content: "hi"}},
		Tools:      []relay.Tool{tool},
		ToolChoice: &relay.ToolChoice{Type: "tool", Name: "search"},
	}
	body := buildTestPayload(t, Config{}, req)

	if got := gjson.Get(body, "tools.0.name").String(); got != "search" {
		t.Errorf("tools[0].name = %q", got)
	}
	if got := gjson.Get(body, "tools.0.input_schema.required.0").String(); got != "query" {
		t.Errorf("input_schema.required = %q", got)
	}
	if got := gjson.Get(body, "tool_choice.type").String(); got != "tool" {
		t.Errorf("tool_choice.type = %q", got)
	}
	if got := gjson.Get(body, "tool_choice.name").String(); got != "search" {
		t.Errorf("tool_choice.name = %q", got)
	}
}

func TestPayloadThinking(t *testing.T) {
	req := &relay.Request{Messages: []relay.Message{relay.UserMessage{Content: "hi"}}}

	body := buildTestPayload(t, Config{ThinkingEnabled: true}, req)
	if got := gjson.Get(body, "thinking.type").String(); got != "enabled" {
		t.Errorf("thinking.type = %q", got)
	}
	if got := gjson.Get(body, "thinking.budget_tokens").Int(); got != defaultThinkingBudget {
		t.Errorf("thinking.budget_tokens = %d, want default %d", got, defaultThinkingBudget)
	}

	body = buildTestPayload(t, Config{ThinkingEnabled: true, ThinkingBudget: intPtr(2048)}, req)
	if got := gjson.Get(body, "thinking.budget_tokens").Int(); got != 2048 {
		t.Errorf("thinking.budget_tokens = %d, want 2048", got)
	}

	if _, err := buildPayload("claude-sonnet", Config{ThinkingEnabled: true, ThinkingBudget: intPtr(0)}, req); err == nil {
		t.Error("zero thinking budget did not error")
	}
	if _, err := buildPayload("claude-sonnet", Config{ThinkingEnabled: true, ThinkingBudget: intPtr(-5)}, req); err == nil {
		t.Error("negative thinking budget did not error")
	}
}

func TestPayloadAssistantAndToolResultTurns(t *testing.T) {
	req := &relay.Request{
		Messages: []relay.Message{
			relay.UserMessage{Content: "when is the game?"},
			relay.AssistantMessage{
				Content:   "Checking.",
				ToolCalls: []relay.ToolCall{{ID: "toolu_1", Name: "search", Arguments: map[string]any{}}},
				AdditionalContent: &relay.AdditionalContent{
					Thinking:          "reasoning",
					ThinkingSignature: "sig",
				},
			},
			relay.ToolResultMessage{
				Results: []relay.ToolResult{{ToolUseID: "toolu_1", Name: "search", Result: "3pm"}},
			},
		},
	}
	body := buildTestPayload(t, Config{}, req)

	assistant := gjson.Get(body, "messages.1.content")
	if got := assistant.Get("0.type").String(); got != "thinking" {
		t.Errorf("assistant block 0 type = %q, want thinking", got)
	}
	if got := assistant.Get("0.signature").String(); got != "sig" {
		t.Errorf("thinking signature = %q", got)
	}
	if got := assistant.Get("1.type").String(); got != "text" {
		t.Errorf("assistant block 1 type = %q, want text", got)
	}
	if got := assistant.Get("2.type").String(); got != "tool_use" {
		t.Errorf("assistant block 2 type = %q, want tool_use", got)
	}
	// An empty argument map still serializes as an input object.
	if raw := assistant.Get("2.input").Raw; raw != "{}" {
		t.Errorf("tool_use input = %s, want {}", raw)
	}

	result := gjson.Get(body, "messages.2")
	if got := result.Get("role").String(); got != "user" {
		t.Errorf("tool result role = %q, want user", got)
	}
	if got := result.Get("content.0.tool_use_id").String(); got != "toolu_1" {
		t.Errorf("tool_use_id = %q", got)
	}
	if got := result.Get("content.0.content").String(); got != "3pm" {
		t.Errorf("result content = %q", got)
	}
}

func TestPayloadExtraBody(t *testing.T) {
	req := &relay.Request{Messages: []relay.Message{relay.UserMessage{Content: "hi"}}}
	cfg := Config{}
	cfg.ExtraBody = map[string]any{"metadata.user_id": "u-42"}
	body := buildTestPayload(t, cfg, req)

	if got := gjson.Get(body, "metadata.user_id").String(); got != "u-42" {
		t.Errorf("metadata.user_id = %q", got)
	}
}

func TestPayloadConfigPrecedence(t *testing.T) {
	cfg := Config{}
	cfg.Temperature = floatPtr(0.7)
	cfg.MaxOutputTokens = intPtr(1000)

	req := &relay.Request{
		Messages:    []relay.Message{relay.UserMessage{Content: "hi"}},
		Temperature: floatPtr(0.1),
	}
	body := buildTestPayload(t, cfg, req)

	// Request-level options win; config fills the gaps.
	if got := gjson.Get(body, "temperature").Float(); got != 0.1 {
		t.Errorf("temperature = %v, want request value 0.1", got)
	}
	if got := gjson.Get(body, "max_tokens").Int(); got != 1000 {
		t.Errorf("max_tokens = %d, want config value 1000", got)
	}
	if strings.Contains(body, `"top_p"`) {
		t.Errorf("top_p present: %s", body)
	}
}
