package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"github.com/driftworks/datadrive/internal/llm"
	"github.com/driftworks/datadrive/internal/plan"
)

// toolLoop runs the multi-round LLM+tool interaction: the model sees
// the full thread history each round and decides which tools to call,
// until it answers without tool calls, a round executes nothing, or the
// node's whole tool budget is spent. Termination is guaranteed: every
// continuing round consumes at least one budget unit.
func (e *Executor) toolLoop(ctx context.Context, node *plan.NodeDefinition, client *llm.Client) (string, error) {
	preamble := fmt.Sprintf(
		"Tool call budget, plan your tool usage accordingly:\n%s\nComplete the following task:\n%s",
		e.limiter.BudgetPrompt(node.Tools), node.TaskPrompt)
	e.nodeLLMInput = preamble
	if err := e.ctx.Append(node.ThreadID, llms.TextParts(llms.ChatMessageTypeHuman, preamble)); err != nil {
		return "", NewExecutionError("tool-loop", node.NodeName, err)
	}

	var last *llms.ContentChoice
	round := 0
	for {
		round++
		e.logger.Debug("tool loop round", zap.String("node", node.NodeName), zap.Int("round", round))

		choice, err := client.Invoke(ctx, e.ctx.Messages(node.ThreadID))
		if err != nil {
			return "", NewExecutionError("tool-loop", node.NodeName, err)
		}
		e.recordUsage(choice)
		last = choice
		if err := e.ctx.Append(node.ThreadID, assistantMessage(choice)); err != nil {
			return "", NewExecutionError("tool-loop", node.NodeName, err)
		}

		if len(choice.ToolCalls) == 0 {
			e.logger.Debug("model returned final answer, stopping loop",
				zap.String("node", node.NodeName))
			break
		}

		executed := 0
		for _, call := range choice.ToolCalls {
			ok, err := e.executeToolCall(ctx, node.ThreadID, call)
			if err != nil {
				return "", NewExecutionError("tool-loop", node.NodeName, err)
			}
			if ok {
				executed++
			}
		}

		if executed == 0 {
			e.logger.Debug("no tool executed this round, stopping loop",
				zap.String("node", node.NodeName))
			break
		}
		if !e.limiter.HasAvailable(node.Tools) {
			e.logger.Debug("all tool budgets exhausted, stopping loop",
				zap.String("node", node.NodeName))
			break
		}
	}

	e.logger.Debug("tool loop finished", zap.String("node", node.NodeName), zap.Int("rounds", round))
	if last == nil {
		return "", nil
	}
	return last.Content, nil
}

// singleCall is a deliberate one-shot pattern: one prompt embedding the
// formatted history, one model invocation, and at most one round of
// tool execution. The returned content is the model's original answer,
// not influenced by the tool results appended after it.
func (e *Executor) singleCall(ctx context.Context, node *plan.NodeDefinition, client *llm.Client) (string, error) {
	prompt := e.buildPrompt(node)
	e.nodeLLMInput = prompt

	choice, err := client.Invoke(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	})
	if err != nil {
		return "", NewExecutionError("single-call", node.NodeName, err)
	}
	e.recordUsage(choice)
	if err := e.ctx.Append(node.ThreadID, assistantMessage(choice)); err != nil {
		return "", NewExecutionError("single-call", node.NodeName, err)
	}

	for _, call := range choice.ToolCalls {
		if _, err := e.executeToolCall(ctx, node.ThreadID, call); err != nil {
			return "", NewExecutionError("single-call", node.NodeName, err)
		}
	}

	return choice.Content, nil
}

// executeToolCall resolves one requested tool call. Unknown tools and
// exhausted budgets do not execute and are reported in-band as error
// tool results, so the model (or a human reading the transcript) can
// see what happened. Returns whether the call actually executed.
func (e *Executor) executeToolCall(ctx context.Context, threadID string, call llms.ToolCall) (bool, error) {
	if call.FunctionCall == nil {
		return false, nil
	}
	name := call.FunctionCall.Name

	tool, ok := e.registry.Lookup(name)
	if !ok {
		errMsg := fmt.Sprintf("unknown tool: %s, available tools: %v", name, e.registry.Names())
		e.logger.Info("tool call rejected", zap.String("reason", errMsg))
		return false, e.appendToolResult(threadID, call.ID, name, errMsg)
	}

	if !e.limiter.CanUse(name) {
		errMsg := fmt.Sprintf("tool %s has no remaining calls", name)
		e.logger.Info("tool call rejected", zap.String("reason", errMsg))
		return false, e.appendToolResult(threadID, call.ID, name, errMsg)
	}

	args := map[string]any{}
	if raw := call.FunctionCall.Arguments; raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			errMsg := fmt.Sprintf("invalid arguments for tool %s: %v", name, err)
			e.logger.Info("tool call rejected", zap.String("reason", errMsg))
			return false, e.appendToolResult(threadID, call.ID, name, errMsg)
		}
	}

	e.logger.Info("executing tool", zap.String("tool", name), zap.Any("args", args))
	result, err := tool.Call(ctx, args)
	e.limiter.Consume(name)
	e.recordToolCall(call.ID, name, args)
	e.logger.Debug("tool budget", zap.String("tool", name), zap.Int("remaining", e.limiter.Remaining(name)))

	if err != nil {
		errMsg := fmt.Sprintf("tool %s failed: %v", name, err)
		e.logger.Info("tool execution failed", zap.String("reason", errMsg))
		return false, e.appendToolResult(threadID, call.ID, name, errMsg)
	}

	return true, e.appendToolResult(threadID, call.ID, name, stringify(result))
}

// buildPrompt embeds the thread's formatted history plus the node's
// task prompt into a one-shot prompt.
func (e *Executor) buildPrompt(node *plan.NodeDefinition) string {
	return fmt.Sprintf(
		"# Conversation history\n%s\n# Complete the following task:\n%s",
		e.history(node.ThreadID), node.TaskPrompt)
}

// history renders a thread as "role: content" lines. Assistant messages
// carrying tool calls are summarized inline.
func (e *Executor) history(threadID string) string {
	var lines []string
	for _, msg := range e.ctx.Messages(threadID) {
		var texts []string
		var calls []string
		for _, part := range msg.Parts {
			switch p := part.(type) {
			case llms.TextContent:
				texts = append(texts, p.Text)
			case llms.ToolCall:
				if p.FunctionCall != nil {
					calls = append(calls, fmt.Sprintf("%s(%s)", p.FunctionCall.Name, p.FunctionCall.Arguments))
				}
			case llms.ToolCallResponse:
				texts = append(texts, p.Content)
			}
		}
		content := strings.Join(texts, "")

		switch msg.Role {
		case llms.ChatMessageTypeHuman:
			lines = append(lines, "user: "+content)
		case llms.ChatMessageTypeTool:
			lines = append(lines, "tool: "+content)
		case llms.ChatMessageTypeAI:
			if len(calls) > 0 {
				lines = append(lines, fmt.Sprintf("assistant: [tool calls: %s]", strings.Join(calls, ", ")))
				if content != "" {
					lines = append(lines, "assistant: "+content)
				}
			} else {
				lines = append(lines, "assistant: "+content)
			}
		}
	}
	return strings.Join(lines, "\n")
}

// assistantMessage converts a model choice into a thread message,
// preserving any tool-call requests.
func assistantMessage(choice *llms.ContentChoice) llms.MessageContent {
	msg := llms.MessageContent{Role: llms.ChatMessageTypeAI}
	if choice.Content != "" {
		msg.Parts = append(msg.Parts, llms.TextContent{Text: choice.Content})
	}
	for _, call := range choice.ToolCalls {
		msg.Parts = append(msg.Parts, call)
	}
	return msg
}
