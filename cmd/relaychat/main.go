// Command relaychat streams one tool-using conversation against the
// Anthropic Messages API and prints the chunks as they arrive. It is
// the library's end-to-end demo: two local tools, a bounded tool call
// chain, thinking passthrough when enabled.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/calebwray/relay"
	"github.com/calebwray/relay/providers/anthropic"
	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type fileConfig struct {
	Model       string   `yaml:"model"`
	MaxTokens   *int     `yaml:"max_tokens"`
	Temperature *float64 `yaml:"temperature"`
	TopP        *float64 `yaml:"top_p"`
	MaxSteps    int      `yaml:"max_steps"`
	Thinking    struct {
		Enabled      bool `yaml:"enabled"`
		BudgetTokens *int `yaml:"budget_tokens"`
	} `yaml:"thinking"`
	DebugPath string `yaml:"debug_path"`
}

func main() {
	var (
		configPath = flag.String("config", "", "path to a YAML config file")
		model      = flag.String("model", "claude-sonnet-4-20250514", "model id")
		prompt     = flag.String("prompt", "What time is the tigers game today and should I wear a coat?", "user prompt")
		maxSteps   = flag.Int("max-steps", 4, "tool call chain depth bound")
		thinking   = flag.Int("thinking", 0, "thinking budget tokens, 0 disables")
		debugPath  = flag.String("debug", "", "JSONL debug log path")
	)
	flag.Parse()

	cfg := fileConfig{}
	if *configPath != "" {
		raw, err := os.ReadFile(*configPath)
		if err != nil {
			fatal(err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			fatal(fmt.Errorf("parsing %s: %w", *configPath, err))
		}
	}

	// Flags override the config file.
	if flag.CommandLine.Changed("model") || cfg.Model == "" {
		cfg.Model = *model
	}
	if flag.CommandLine.Changed("max-steps") || cfg.MaxSteps == 0 {
		cfg.MaxSteps = *maxSteps
	}
	if flag.CommandLine.Changed("thinking") {
		cfg.Thinking.Enabled = *thinking > 0
		cfg.Thinking.BudgetTokens = thinking
	}
	if flag.CommandLine.Changed("debug") {
		cfg.DebugPath = *debugPath
	}

	opts := []anthropic.Option{}
	if cfg.MaxTokens != nil {
		opts = append(opts, anthropic.WithMaxOutputTokens(*cfg.MaxTokens))
	}
	if cfg.Temperature != nil {
		opts = append(opts, anthropic.WithTemperature(*cfg.Temperature))
	}
	if cfg.TopP != nil {
		opts = append(opts, anthropic.WithTopP(*cfg.TopP))
	}
	if cfg.Thinking.Enabled {
		budget := 1024
		if cfg.Thinking.BudgetTokens != nil {
			budget = *cfg.Thinking.BudgetTokens
		}
		opts = append(opts, anthropic.WithThinking(budget))
	}
	if cfg.DebugPath != "" {
		opts = append(opts, anthropic.WithDebug(cfg.DebugPath))
	}

	provider := anthropic.New(cfg.Model, opts...)

	req := &relay.Request{
		Messages: []relay.Message{
			relay.SystemMessage{Content: "You are a concise assistant. Use the available tools to answer."},
			relay.UserMessage{Content: *prompt},
		},
		Tools:    []relay.Tool{searchTool(), weatherTool()},
		MaxSteps: cfg.MaxSteps,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	stream, err := provider.Stream(ctx, req)
	if err != nil {
		fatal(err)
	}
	defer stream.Close()

	for {
		chunk, err := stream.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			fatal(err)
		}
		printChunk(chunk)
	}
	fmt.Println()
}

func printChunk(chunk relay.Chunk) {
	switch chunk.Type {
	case relay.ChunkThinking:
		fmt.Fprint(os.Stderr, chunk.Thinking)
	case relay.ChunkMessage:
		fmt.Print(chunk.Text)
		for _, call := range chunk.ToolCalls {
			fmt.Fprintf(os.Stderr, "\n[tool call] %s %v\n", call.Name, call.Arguments)
		}
		for _, res := range chunk.ToolResults {
			fmt.Fprintf(os.Stderr, "[tool result] %s: %s\n", res.Name, res.Result)
		}
	case relay.ChunkMeta:
		if chunk.FinishReason != "" {
			fmt.Fprintf(os.Stderr, "\n[done] finish=%s", chunk.FinishReason)
			if chunk.Usage != nil {
				fmt.Fprintf(os.Stderr, " in=%d out=%d", chunk.Usage.InputTokens, chunk.Usage.OutputTokens)
			}
			fmt.Fprintln(os.Stderr)
		}
	}
}

func searchTool() relay.Tool {
	return relay.NewTool("search", "Search the web for current information",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "Search query"},
			},
			"required": []string{"query"},
		},
		func(args map[string]any) (string, error) {
			return "Tigers game is at 3pm in Detroit today.", nil
		})
}

func weatherTool() relay.Tool {
	return relay.NewTool("weather", "Get the current weather for a city",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"city": map[string]any{"type": "string", "description": "City name"},
			},
			"required": []string{"city"},
		},
		func(args map[string]any) (string, error) {
			return "The weather in Detroit is 75° and sunny.", nil
		})
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "relaychat:", err)
	os.Exit(1)
}
