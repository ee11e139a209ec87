package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"github.com/driftworks/datadrive/internal/executor"
	"github.com/driftworks/datadrive/internal/plan"
	"github.com/driftworks/datadrive/internal/tools"
)

// scriptedModel replays canned answers so the example runs without any
// provider credentials. Swap the factory for a real langchaingo model
// (openai.New, anthropic.New, ...) to run against a live LLM.
type scriptedModel struct {
	answers []string
	next    int
}

func (m *scriptedModel) GenerateContent(_ context.Context, _ []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	answer := m.answers[m.next%len(m.answers)]
	m.next++
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		Content: answer,
		GenerationInfo: map[string]any{
			"token_usage": map[string]any{
				"input_tokens":  42,
				"output_tokens": 17,
				"total_tokens":  59,
			},
		},
	}}}, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	resp, err := m.GenerateContent(ctx, nil, options...)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Content, nil
}

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	search := tools.NewFunc("search", "searches the product catalog",
		func(_ context.Context, args map[string]any) (any, error) {
			query, _ := args["query"].(string)
			return fmt.Sprintf("catalog results for %q: 3 laptops, 2 tablets", query), nil
		}).
		WithParameters(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string"},
			},
			"required": []string{"query"},
		})

	registry := tools.NewRegistry().Register(search)

	// A research thread gathers data tool-first, hands its summary to the
	// main thread, and a final node answers the user there.
	p, err := plan.NewBuilder("catalog question").
		ToolFirst("gather", "research", "search").
		InitialArgs(map[string]any{"query": "portable computers"}).
		Prompt("Summarize what the catalog offers.").
		DataOut("Catalog summary: ").
		DataOutTo("main").
		Add().
		LLMFirst("respond", "main").
		Prompt("Answer the user's question using the catalog summary.").
		Add().
		Build()
	if err != nil {
		log.Fatalf("failed to build plan: %v", err)
	}

	fmt.Println(p.Describe())

	model := &scriptedModel{answers: []string{
		"The catalog currently lists three laptop models and two tablets.",
		"We have five portable options in stock: three laptops and two tablets.",
	}}

	exec, err := executor.New(p, "What portable computers do you sell?",
		executor.WithRegistry(registry),
		executor.WithModelFactory(func() (llms.Model, error) { return model, nil }),
		executor.WithLogger(logger),
	)
	if err != nil {
		log.Fatalf("failed to create executor: %v", err)
	}

	start := time.Now()
	result, err := exec.Execute(context.Background())
	if err != nil {
		log.Fatalf("execution failed: %v", err)
	}

	fmt.Println(strings.Repeat("-", 60))
	fmt.Printf("Run ID:    %s\n", exec.RunID())
	fmt.Printf("Answer:    %s\n", result.Content)
	fmt.Printf("Tokens:    %d in / %d out / %d total\n",
		result.TokensUsage.InputTokens, result.TokensUsage.OutputTokens, result.TokensUsage.TotalTokens)
	fmt.Printf("Threads:   %d\n", len(result.Messages))
	fmt.Printf("Duration:  %v\n", time.Since(start))
}
