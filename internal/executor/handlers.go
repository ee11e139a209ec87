package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"github.com/driftworks/datadrive/internal/llm"
	"github.com/driftworks/datadrive/internal/plan"
	"github.com/driftworks/datadrive/internal/state"
)

// runLLMFirst executes an llm-first node: reason first, optionally call
// tools, optionally loop. A node with an empty prompt is a pure
// data-relay point and skips the LLM entirely.
func (e *Executor) runLLMFirst(ctx context.Context, node *plan.NodeDefinition) (string, error) {
	e.logger.Info("executing node",
		zap.String("type", string(node.NodeType)),
		zap.String("node", node.NodeName),
		zap.String("thread", node.ThreadID))

	if strings.TrimSpace(node.TaskPrompt) == "" {
		e.logger.Info("empty task prompt, skipping LLM (data-relay node)",
			zap.String("node", node.NodeName))
		if node.DataOut {
			e.stageDataOut(node, "")
		}
		return "", nil
	}

	if err := e.registry.ValidateNames(node.Tools); err != nil {
		return "", NewValidationError("llm-first", node.NodeName, err)
	}

	client, err := e.newClient(node)
	if err != nil {
		return "", NewValidationError("llm-first", node.NodeName, err)
	}

	var content string
	if node.EnableToolLoop && len(node.Tools) > 0 {
		content, err = e.toolLoop(ctx, node, client)
	} else {
		content, err = e.singleCall(ctx, node, client)
	}
	if err != nil {
		return "", err
	}

	if node.DataOut {
		e.stageDataOut(node, content)
	}
	return content, nil
}

// runToolFirst executes a tool-first node: the initial tool runs
// unconditionally before any LLM involvement, then an optional analysis
// phase identical to llm-first.
func (e *Executor) runToolFirst(ctx context.Context, node *plan.NodeDefinition) (string, error) {
	e.logger.Info("executing node",
		zap.String("type", string(node.NodeType)),
		zap.String("node", node.NodeName),
		zap.String("thread", node.ThreadID))

	tool, ok := e.registry.Lookup(node.InitialToolName)
	if !ok {
		return "", NewValidationError("tool-first", node.NodeName,
			fmt.Errorf("tool %q not registered, available tools: %v",
				node.InitialToolName, e.registry.Names()))
	}

	callID := uuid.New().String()

	// A spent budget is a recoverable, reported condition: the node
	// returns the error text as its content instead of failing the plan.
	if !e.limiter.CanUse(node.InitialToolName) {
		errMsg := fmt.Sprintf("tool %s has no remaining calls", node.InitialToolName)
		e.logger.Info("initial tool budget exhausted",
			zap.String("node", node.NodeName),
			zap.String("tool", node.InitialToolName))
		if err := e.appendToolResult(node.ThreadID, callID, node.InitialToolName, errMsg); err != nil {
			return "", NewExecutionError("tool-first", node.NodeName, err)
		}
		return errMsg, nil
	}

	args := node.InitialToolArgs
	if args == nil {
		args = map[string]any{}
	}
	e.logger.Info("executing initial tool",
		zap.String("tool", node.InitialToolName),
		zap.Any("args", args))

	result, err := tool.Call(ctx, args)
	e.limiter.Consume(node.InitialToolName)
	e.recordToolCall(callID, node.InitialToolName, args)
	if err != nil {
		return "", NewExecutionError("tool-first", node.NodeName,
			fmt.Errorf("initial tool %s failed: %w", node.InitialToolName, err))
	}
	e.logger.Debug("initial tool done",
		zap.String("tool", node.InitialToolName),
		zap.Int("remaining", e.limiter.Remaining(node.InitialToolName)))

	toolResult := stringify(result)
	if err := e.appendToolResult(node.ThreadID, callID, node.InitialToolName, toolResult); err != nil {
		return "", NewExecutionError("tool-first", node.NodeName, err)
	}

	var content string
	if node.TaskPrompt == "" {
		// Tool-only node: the raw result is the node's content.
		content = toolResult
	} else {
		if err := e.registry.ValidateNames(node.Tools); err != nil {
			return "", NewValidationError("tool-first", node.NodeName, err)
		}
		client, err := e.newClient(node)
		if err != nil {
			return "", NewValidationError("tool-first", node.NodeName, err)
		}
		if node.EnableToolLoop && len(node.Tools) > 0 {
			content, err = e.toolLoop(ctx, node, client)
		} else {
			content, err = e.singleCall(ctx, node, client)
		}
		if err != nil {
			return "", err
		}
	}

	if node.DataOut {
		e.stageDataOut(node, content)
	}
	return content, nil
}

// newClient builds a fresh model bound to the node's tools.
func (e *Executor) newClient(node *plan.NodeDefinition) (*llm.Client, error) {
	return llm.NewClient(e.factory, e.registry.Definitions(node.Tools))
}

// appendToolResult records a tool result (or tool error string) as a
// tool message in the thread.
func (e *Executor) appendToolResult(threadID, callID, toolName, content string) error {
	return e.ctx.Append(threadID, llms.MessageContent{
		Role: llms.ChatMessageTypeTool,
		Parts: []llms.ContentPart{llms.ToolCallResponse{
			ToolCallID: callID,
			Name:       toolName,
			Content:    content,
		}},
	})
}

func (e *Executor) recordToolCall(callID, name string, args map[string]any) {
	encoded, err := json.Marshal(args)
	if err != nil {
		encoded = []byte("{}")
	}
	e.nodeToolCalls = append(e.nodeToolCalls, state.WireToolCall{
		ID:   callID,
		Name: name,
		Args: string(encoded),
	})
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
