package executor

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/driftworks/datadrive/internal/llm"
	"github.com/driftworks/datadrive/internal/plan"
	"github.com/driftworks/datadrive/internal/state"
	"github.com/driftworks/datadrive/internal/tools"
)

// fakeModel replays scripted responses in order, repeating the last one
// if invoked more often, and records every message list it was given.
type fakeModel struct {
	mu        sync.Mutex
	responses []*llms.ContentResponse
	calls     int
	inputs    [][]llms.MessageContent
}

func (m *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = append(m.inputs, messages)
	idx := m.calls
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	m.calls++
	return m.responses[idx], nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	resp, err := m.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}, options...)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Content, nil
}

func (m *fakeModel) invocations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *fakeModel) input(i int) []llms.MessageContent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inputs[i]
}

func factoryFor(m *fakeModel) llm.Factory {
	return func() (llms.Model, error) { return m, nil }
}

func textChoice(content string) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		Content: content,
		GenerationInfo: map[string]any{
			"token_usage": map[string]any{
				"input_tokens":  10,
				"output_tokens": 5,
				"total_tokens":  15,
			},
		},
	}}}
}

func toolChoice(content string, calls ...llms.ToolCall) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		Content:   content,
		ToolCalls: calls,
		GenerationInfo: map[string]any{
			"token_usage": map[string]any{
				"input_tokens":  10,
				"output_tokens": 5,
				"total_tokens":  15,
			},
		},
	}}}
}

func callTo(id, name, args string) llms.ToolCall {
	return llms.ToolCall{
		ID:           id,
		Type:         "function",
		FunctionCall: &llms.FunctionCall{Name: name, Arguments: args},
	}
}

// countingTool records how many times it ran and with what arguments.
type countingTool struct {
	name   string
	result string
	mu     sync.Mutex
	count  int
	args   []map[string]any
}

func (c *countingTool) Name() string        { return c.name }
func (c *countingTool) Description() string { return "test tool" }
func (c *countingTool) Definition() llms.FunctionDefinition {
	return llms.FunctionDefinition{Name: c.name, Description: "test tool"}
}
func (c *countingTool) Call(_ context.Context, args map[string]any) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
	c.args = append(c.args, args)
	return c.result, nil
}
func (c *countingTool) executions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

func threadText(t *testing.T, msgs []llms.MessageContent) string {
	t.Helper()
	var b strings.Builder
	for _, msg := range msgs {
		for _, part := range msg.Parts {
			switch p := part.(type) {
			case llms.TextContent:
				b.WriteString(p.Text)
				b.WriteString("\n")
			case llms.ToolCallResponse:
				b.WriteString(p.Content)
				b.WriteString("\n")
			}
		}
	}
	return b.String()
}

func TestNewRejectsInvalidPlan(t *testing.T) {
	p := plan.ExecutionPlan{Nodes: []plan.NodeDefinition{
		{NodeType: plan.NodeToolFirst, NodeName: "bad", ThreadID: "main"},
	}}
	_, err := New(p, "hi")
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.ErrorIs(t, err, plan.ErrMissingInitialTool)
}

func TestRelayNode(t *testing.T) {
	// An empty-prompt llm-first node relays data between threads without
	// touching the model: no factory is configured at all.
	p, err := plan.NewBuilder("relay").
		LLMFirst("bridge", "sub").
		DataIn("main").
		DataOut("From sub: ").
		DataOutTo("main").
		Add().
		Build()
	require.NoError(t, err)

	e, err := New(p, "original question")
	require.NoError(t, err)

	res, err := e.Execute(context.Background())
	require.NoError(t, err)
	require.Equal(t, "", res.Content)

	// The staged (empty) content was merged into main with its prefix.
	main := res.Messages["main"]
	require.Len(t, main, 2)
	require.Equal(t, llms.ChatMessageTypeAI, main[1].Role)
	require.Contains(t, threadText(t, main), "From sub: ")

	// The sub thread was seeded with main's most recent message.
	require.Len(t, res.Messages["sub"], 1)
	require.Empty(t, res.DataOut)
}

func TestToolFirstToolOnly(t *testing.T) {
	search := &countingTool{name: "search", result: "three hits"}
	reg := tools.NewRegistry().Register(search)

	p, err := plan.NewBuilder("gather").
		ToolFirst("fetch", "research", "search").
		InitialArgs(map[string]any{"query": "golang"}).
		DataOut("Raw results: ").
		DataOutTo("main").
		Add().
		Build()
	require.NoError(t, err)

	e, err := New(p, "find info", WithRegistry(reg))
	require.NoError(t, err)

	res, err := e.Execute(context.Background())
	require.NoError(t, err)

	// No prompt: the tool result is the node's content, no LLM involved.
	require.Equal(t, "three hits", res.Content)
	require.Equal(t, 1, search.executions())
	require.Equal(t, "golang", search.args[0]["query"])

	// The result landed in the research thread as a tool message and was
	// merged into main with the description prefix.
	require.Len(t, res.Messages["research"], 2)
	require.Contains(t, threadText(t, res.Messages["research"]), "three hits")
	require.Contains(t, threadText(t, res.Messages["main"]), "Raw results: three hits")
}

func TestToolFirstBudgetExhausted(t *testing.T) {
	search := &countingTool{name: "search", result: "hit"}
	reg := tools.NewRegistry().Register(search)

	p, err := plan.NewBuilder("gather").
		ToolFirst("fetch", "research", "search").
		Limits(map[string]int{"search": 0}).
		Add().
		Build()
	require.NoError(t, err)

	e, err := New(p, "find info", WithRegistry(reg))
	require.NoError(t, err)

	res, err := e.Execute(context.Background())
	require.NoError(t, err)

	// Exhaustion is reported in-band, not raised.
	require.Equal(t, "tool search has no remaining calls", res.Content)
	require.Equal(t, 0, search.executions())
}

func TestToolFirstUnknownInitialTool(t *testing.T) {
	p, err := plan.NewBuilder("gather").
		ToolFirst("fetch", "research", "missing").
		Add().
		Build()
	require.NoError(t, err)

	e, err := New(p, "find info", WithRegistry(tools.NewRegistry()))
	require.NoError(t, err)

	_, err = e.Execute(context.Background())
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "fetch", verr.Node)
}

func TestSingleCallSemantics(t *testing.T) {
	search := &countingTool{name: "search", result: "found it"}
	reg := tools.NewRegistry().Register(search)

	// The model answers AND requests a tool call; without the loop the
	// returned content stays the model's original answer.
	model := &fakeModel{responses: []*llms.ContentResponse{
		toolChoice("my first take", callTo("c1", "search", `{"query":"x"}`)),
	}}

	p, err := plan.NewBuilder("oneshot").
		LLMFirst("analyze", "main").
		Prompt("Analyze this.").
		Tools("search").
		Add().
		Build()
	require.NoError(t, err)

	e, err := New(p, "question", WithRegistry(reg), WithModelFactory(factoryFor(model)))
	require.NoError(t, err)

	res, err := e.Execute(context.Background())
	require.NoError(t, err)

	require.Equal(t, "my first take", res.Content)
	require.Equal(t, 1, model.invocations())
	require.Equal(t, 1, search.executions())

	// One-shot prompt embeds the formatted history, not raw messages.
	prompt := threadText(t, model.input(0))
	require.Contains(t, prompt, "# Conversation history")
	require.Contains(t, prompt, "user: question")
	require.Contains(t, prompt, "# Complete the following task:\nAnalyze this.")

	// Thread holds assistant answer then the tool result.
	main := threadText(t, res.Messages["main"])
	require.Contains(t, main, "my first take")
	require.Contains(t, main, "found it")
}

func TestToolLoopTerminatesOnFinalAnswer(t *testing.T) {
	search := &countingTool{name: "search", result: "partial"}
	reg := tools.NewRegistry().Register(search)

	model := &fakeModel{responses: []*llms.ContentResponse{
		toolChoice("", callTo("c1", "search", `{"q":"a"}`)),
		textChoice("final answer"),
	}}

	p, err := plan.NewBuilder("loop").
		LLMFirst("research", "main").
		Prompt("Dig in.").
		Tools("search").
		Loop().
		Limits(map[string]int{"search": 5}).
		Add().
		Build()
	require.NoError(t, err)

	e, err := New(p, "question", WithRegistry(reg), WithModelFactory(factoryFor(model)))
	require.NoError(t, err)

	res, err := e.Execute(context.Background())
	require.NoError(t, err)

	require.Equal(t, "final answer", res.Content)
	require.Equal(t, 2, model.invocations())
	require.Equal(t, 1, search.executions())

	// The budget preamble opened the loop conversation.
	require.Contains(t, threadText(t, model.input(0)), "Tool call budget")
	require.Contains(t, threadText(t, model.input(0)), "tool search can be called 5 more times")
}

func TestToolLoopTerminatesOnExhaustedBudget(t *testing.T) {
	search := &countingTool{name: "search", result: "more"}
	reg := tools.NewRegistry().Register(search)

	// The model never stops asking for the tool; the budget must stop it.
	model := &fakeModel{responses: []*llms.ContentResponse{
		toolChoice("", callTo("c", "search", `{}`)),
	}}

	const budget = 3
	p, err := plan.NewBuilder("loop").
		LLMFirst("research", "main").
		Prompt("Dig in.").
		Tools("search").
		Loop().
		Limits(map[string]int{"search": budget}).
		Add().
		Build()
	require.NoError(t, err)

	e, err := New(p, "question", WithRegistry(reg), WithModelFactory(factoryFor(model)))
	require.NoError(t, err)

	_, err = e.Execute(context.Background())
	require.NoError(t, err)

	require.Equal(t, budget, search.executions())
	require.LessOrEqual(t, model.invocations(), budget+1)
}

func TestToolLoopRejectionsAreInBand(t *testing.T) {
	search := &countingTool{name: "search", result: "hit"}
	calc := &countingTool{name: "calc", result: "42"}
	reg := tools.NewRegistry().Register(search).Register(calc)

	// Round one over-asks for search; the second request is rejected
	// in-band and the loop continues because calc still has budget.
	model := &fakeModel{responses: []*llms.ContentResponse{
		toolChoice("",
			callTo("c1", "search", `{}`),
			callTo("c2", "search", `{}`),
		),
		textChoice("done"),
	}}

	p, err := plan.NewBuilder("loop").
		LLMFirst("research", "main").
		Prompt("Dig in.").
		Tools("search", "calc").
		Loop().
		Limits(map[string]int{"search": 1}).
		Add().
		Build()
	require.NoError(t, err)

	e, err := New(p, "question", WithRegistry(reg), WithModelFactory(factoryFor(model)))
	require.NoError(t, err)

	res, err := e.Execute(context.Background())
	require.NoError(t, err)

	require.Equal(t, "done", res.Content)
	require.Equal(t, 1, search.executions())
	require.Contains(t, threadText(t, res.Messages["main"]), "tool search has no remaining calls")
}

func TestToolLoopUnknownToolStops(t *testing.T) {
	reg := tools.NewRegistry().Register(&countingTool{name: "search", result: "hit"})

	// A round that executes nothing ends the loop.
	model := &fakeModel{responses: []*llms.ContentResponse{
		toolChoice("guessing", callTo("c1", "teleport", `{}`)),
	}}

	p, err := plan.NewBuilder("loop").
		LLMFirst("research", "main").
		Prompt("Dig in.").
		Tools("search").
		Loop().
		Add().
		Build()
	require.NoError(t, err)

	e, err := New(p, "question", WithRegistry(reg), WithModelFactory(factoryFor(model)))
	require.NoError(t, err)

	res, err := e.Execute(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, model.invocations())
	require.Contains(t, threadText(t, res.Messages["main"]), "unknown tool: teleport")
}

func TestCrossThreadMerge(t *testing.T) {
	search := &countingTool{name: "search", result: "golang 1.23 released"}
	reg := tools.NewRegistry().Register(search)

	model := &fakeModel{responses: []*llms.ContentResponse{
		textChoice("it covers generics improvements"),
		textChoice("overall summary"),
	}}

	// Node one researches in its own thread and hands its conclusion to
	// main; node two answers on main and must see the handed-off text.
	p, err := plan.NewBuilder("research then summarize").
		ToolFirst("gather", "research", "search").
		Prompt("What did we learn?").
		DataOut("Summary: ").
		DataOutTo("main").
		Add().
		LLMFirst("respond", "main").
		Prompt("Answer the user.").
		Add().
		Build()
	require.NoError(t, err)

	e, err := New(p, "what is new in go?", WithRegistry(reg), WithModelFactory(factoryFor(model)))
	require.NoError(t, err)

	res, err := e.Execute(context.Background())
	require.NoError(t, err)
	require.Equal(t, "overall summary", res.Content)

	// The merge happened before node two's prompt was built.
	secondPrompt := threadText(t, model.input(1))
	require.Contains(t, secondPrompt, "Summary: it covers generics improvements")

	// Research details stayed out of main; only the staged summary crossed.
	mainText := threadText(t, res.Messages["main"])
	require.Contains(t, mainText, "Summary: it covers generics improvements")
	require.NotContains(t, mainText, "golang 1.23 released")
	require.Empty(t, res.DataOut)
}

func TestDataInSnapshotPrecedesLaterMerges(t *testing.T) {
	model := &fakeModel{responses: []*llms.ContentResponse{
		textChoice("conclusions"),
	}}

	// The reader's thread is created (and seeded) before the producer
	// stages anything, so the later merge into main must not reach it.
	p, err := plan.NewBuilder("timing").
		LLMFirst("reader", "sub").
		DataIn("main").
		Add().
		LLMFirst("producer", "main").
		Prompt("Conclude.").
		DataOut("Summary: ").
		Add().
		Build()
	require.NoError(t, err)

	e, err := New(p, "the question", WithModelFactory(factoryFor(model)))
	require.NoError(t, err)

	res, err := e.Execute(context.Background())
	require.NoError(t, err)

	// Seeded with main's last message as of creation time.
	sub := res.Messages["sub"]
	require.Len(t, sub, 1)
	require.Equal(t, llms.ChatMessageTypeHuman, sub[0].Role)
	require.Contains(t, threadText(t, sub), "the question")
	require.NotContains(t, threadText(t, sub), "Summary:")

	// With no data_out_thread set the producer merges into main.
	mainText := threadText(t, res.Messages["main"])
	require.Contains(t, mainText, "Summary: conclusions")
}

func TestDataOutLeftoverWhenTargetMissing(t *testing.T) {
	p, err := plan.NewBuilder("orphan").
		LLMFirst("bridge", "sub").
		DataOut("Pending: ").
		DataOutTo("nowhere").
		Add().
		Build()
	require.NoError(t, err)

	e, err := New(p, "hi")
	require.NoError(t, err)

	res, err := e.Execute(context.Background())
	require.NoError(t, err)

	d, ok := res.DataOut["sub"]
	require.True(t, ok)
	require.Equal(t, "Pending: ", d.Content)
	require.Equal(t, state.RoleAssistant, d.Role)
}

func TestPlanningNodeNotImplemented(t *testing.T) {
	p := plan.ExecutionPlan{
		Task: "meta",
		Nodes: []plan.NodeDefinition{
			{NodeType: plan.NodePlanning, NodeName: "subplan", ThreadID: "main"},
		},
	}
	e, err := New(p, "hi")
	require.NoError(t, err)

	_, err = e.Execute(context.Background())
	var eerr *ExecutionError
	require.ErrorAs(t, err, &eerr)
	require.ErrorIs(t, err, ErrPlanningNotImplemented)
}

func TestTokenUsageAccumulates(t *testing.T) {
	model := &fakeModel{responses: []*llms.ContentResponse{
		textChoice("a"),
		textChoice("b"),
	}}

	p, err := plan.NewBuilder("two calls").
		LLMFirst("one", "main").Prompt("First.").Add().
		LLMFirst("two", "main").Prompt("Second.").Add().
		Build()
	require.NoError(t, err)

	e, err := New(p, "hi", WithModelFactory(factoryFor(model)))
	require.NoError(t, err)

	res, err := e.Execute(context.Background())
	require.NoError(t, err)
	require.Equal(t, llm.Usage{InputTokens: 20, OutputTokens: 10, TotalTokens: 30}, res.TokensUsage)
}

func TestThreadSeedingFallback(t *testing.T) {
	model := &fakeModel{responses: []*llms.ContentResponse{
		textChoice("parent answer"),
		textChoice("leaf answer"),
	}}

	// The child thread names no data-in source; it must seed from its
	// parent thread, not from main.
	p, err := plan.NewBuilder("fallback").
		LLMFirst("parent", "branch").Prompt("Work.").Add().
		LLMFirst("child", "leaf").Parent("branch").Prompt("Continue.").Add().
		Build()
	require.NoError(t, err)

	e, err := New(p, "hi", WithModelFactory(factoryFor(model)))
	require.NoError(t, err)

	res, err := e.Execute(context.Background())
	require.NoError(t, err)

	leaf := threadText(t, res.Messages["leaf"])
	require.Contains(t, leaf, "parent answer")
	require.NotContains(t, leaf, "hi")
}
