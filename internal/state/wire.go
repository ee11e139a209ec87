package state

import (
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// Wire roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// WireMessage is the external representation of one thread message, as
// consumed by debuggers and HTTP clients.
type WireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []WireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

// WireToolCall is one tool-call request carried by an assistant message.
type WireToolCall struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Args string `json:"args"`
}

// EncodeMessages converts a message list to the wire format. Roles map
// human -> user, AI -> assistant, tool -> tool; other roles are encoded
// as user messages.
func EncodeMessages(msgs []llms.MessageContent) []WireMessage {
	out := make([]WireMessage, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, encodeMessage(msg))
	}
	return out
}

func encodeMessage(msg llms.MessageContent) WireMessage {
	var texts []string
	var calls []WireToolCall
	var callID string
	for _, part := range msg.Parts {
		switch p := part.(type) {
		case llms.TextContent:
			texts = append(texts, p.Text)
		case llms.ToolCall:
			call := WireToolCall{ID: p.ID}
			if p.FunctionCall != nil {
				call.Name = p.FunctionCall.Name
				call.Args = p.FunctionCall.Arguments
			}
			calls = append(calls, call)
		case llms.ToolCallResponse:
			texts = append(texts, p.Content)
			callID = p.ToolCallID
		}
	}

	w := WireMessage{Content: strings.Join(texts, "")}
	switch msg.Role {
	case llms.ChatMessageTypeAI:
		w.Role = RoleAssistant
		w.ToolCalls = calls
	case llms.ChatMessageTypeTool:
		w.Role = RoleTool
		w.ToolCallID = callID
	default:
		w.Role = RoleUser
	}
	return w
}

// DecodeMessages converts wire messages back to thread messages. The
// round trip preserves role and content for user, assistant and tool
// messages.
func DecodeMessages(wire []WireMessage) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(wire))
	for _, w := range wire {
		out = append(out, decodeMessage(w))
	}
	return out
}

func decodeMessage(w WireMessage) llms.MessageContent {
	switch w.Role {
	case RoleAssistant:
		msg := llms.MessageContent{Role: llms.ChatMessageTypeAI}
		if w.Content != "" {
			msg.Parts = append(msg.Parts, llms.TextContent{Text: w.Content})
		}
		for _, call := range w.ToolCalls {
			msg.Parts = append(msg.Parts, llms.ToolCall{
				ID:   call.ID,
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      call.Name,
					Arguments: call.Args,
				},
			})
		}
		return msg
	case RoleTool:
		return llms.MessageContent{
			Role: llms.ChatMessageTypeTool,
			Parts: []llms.ContentPart{llms.ToolCallResponse{
				ToolCallID: w.ToolCallID,
				Content:    w.Content,
			}},
		}
	default:
		return llms.TextParts(llms.ChatMessageTypeHuman, w.Content)
	}
}
