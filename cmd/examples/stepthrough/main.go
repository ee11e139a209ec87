package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"github.com/driftworks/datadrive/internal/executor"
	"github.com/driftworks/datadrive/internal/plan"
	"github.com/driftworks/datadrive/internal/tools"
)

type scriptedModel struct {
	answers []string
	next    int
}

func (m *scriptedModel) GenerateContent(_ context.Context, _ []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	answer := m.answers[m.next%len(m.answers)]
	m.next++
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: answer}}}, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	resp, err := m.GenerateContent(ctx, nil, options...)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Content, nil
}

func main() {
	logger := zap.NewNop()

	weather := tools.NewFunc("weather", "reports the current weather",
		func(_ context.Context, args map[string]any) (any, error) {
			city, _ := args["city"].(string)
			return fmt.Sprintf("weather in %s: 21C, clear", city), nil
		})

	p, err := plan.NewBuilder("trip check").
		ToolFirst("check-weather", "weather", "weather").
		InitialArgs(map[string]any{"city": "Lisbon"}).
		DataOut("Weather report: ").
		DataOutTo("main").
		Add().
		LLMFirst("advise", "main").
		Prompt("Advise the user whether to pack a jacket.").
		Add().
		Build()
	if err != nil {
		log.Fatalf("failed to build plan: %v", err)
	}

	model := &scriptedModel{answers: []string{
		"At 21C and clear skies a light jacket for the evening is enough.",
	}}

	step, err := executor.NewStepExecutor(p, "Should I pack a jacket for Lisbon?",
		executor.WithRegistry(tools.NewRegistry().Register(weather)),
		executor.WithModelFactory(func() (llms.Model, error) { return model, nil }),
		executor.WithLogger(logger),
	)
	if err != nil {
		log.Fatalf("failed to create step executor: %v", err)
	}

	for {
		nc, err := step.ExecuteStep(context.Background())
		if err != nil {
			log.Fatalf("step failed: %v", err)
		}
		if nc == nil {
			break
		}

		prog := step.Progress()
		fmt.Printf("step %d/%d: %s (thread %s) [%.0f%%]\n",
			nc.NodeID, prog.Total, nc.NodeName, nc.ThreadID, prog.ProgressPercent)
		fmt.Printf("  messages: %d -> %d\n", len(nc.ThreadMessagesBefore), len(nc.ThreadMessagesAfter))
		for _, call := range nc.ToolCalls {
			fmt.Printf("  tool call: %s %s\n", call.Name, call.Args)
		}
		if nc.DataOutContent != nil {
			fmt.Printf("  data out:  %s\n", *nc.DataOutContent)
		}
		fmt.Printf("  output:    %s\n", nc.LLMOutput)
		fmt.Println(strings.Repeat("-", 60))
	}

	for _, st := range step.States() {
		fmt.Printf("%d. %-14s %-10s %v\n", st.NodeID, st.NodeName, st.Status, st.EndTime.Sub(st.StartTime))
	}
}
