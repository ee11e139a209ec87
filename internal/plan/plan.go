package plan

import (
	"encoding/json"
	"errors"
	"fmt"
)

// NodeType selects the handler a node is dispatched to.
type NodeType string

const (
	// NodeLLMFirst runs the LLM first, optionally calling tools.
	NodeLLMFirst NodeType = "llm-first"

	// NodeToolFirst runs a mandatory initial tool before any LLM involvement.
	NodeToolFirst NodeType = "tool-first"

	// NodePlanning is reserved for recursive sub-plan execution.
	NodePlanning NodeType = "planning"
)

var (
	// ErrUnknownNodeType is returned when a node declares a type with no handler.
	ErrUnknownNodeType = errors.New("unknown node type")

	// ErrMissingInitialTool is returned when a tool-first node has no initial tool.
	ErrMissingInitialTool = errors.New("tool-first node must set initial_tool_name")

	// ErrUnexpectedInitialTool is returned when an llm-first node sets an initial tool.
	ErrUnexpectedInitialTool = errors.New("llm-first node must not set initial_tool_name; use tool-first instead")

	// ErrMissingNodeName is returned when a node has no name.
	ErrMissingNodeName = errors.New("node name is required")

	// ErrMissingThreadID is returned when a node has no thread assignment.
	ErrMissingThreadID = errors.New("thread id is required")

	// ErrNodeTypeNotAllowed is returned when a restricted plan carries a forbidden node type.
	ErrNodeTypeNotAllowed = errors.New("node type not allowed in this plan")
)

// Valid reports whether t is one of the known node types.
func (t NodeType) Valid() bool {
	switch t {
	case NodeLLMFirst, NodeToolFirst, NodePlanning:
		return true
	}
	return false
}

// Slice is a half-open [Start, End) index range into a thread's message
// list. A nil bound leaves that end open. On the wire it is a two-element
// JSON array, e.g. [0, 3] or [1, null].
type Slice struct {
	Start *int
	End   *int
}

// Bounds clamps the slice against a list of n messages and returns the
// effective [start, end) range, Python-slice style.
func (s Slice) Bounds(n int) (int, int) {
	start, end := 0, n
	if s.Start != nil {
		start = clampIndex(*s.Start, n)
	}
	if s.End != nil {
		end = clampIndex(*s.End, n)
	}
	if end < start {
		end = start
	}
	return start, end
}

func clampIndex(i, n int) int {
	if i < 0 {
		i += n
	}
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

// MarshalJSON renders the slice as a [start, end] pair.
func (s Slice) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]*int{s.Start, s.End})
}

// UnmarshalJSON accepts a [start, end] pair with null for open bounds.
func (s *Slice) UnmarshalJSON(data []byte) error {
	var pair []*int
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("data_in_slice must be a [start, end] pair: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("data_in_slice must have exactly two elements, got %d", len(pair))
	}
	s.Start, s.End = pair[0], pair[1]
	return nil
}

// NodeDefinition is one planned unit of work. It is immutable after
// validation; the executor never mutates node fields.
type NodeDefinition struct {
	// NodeType selects the handler: llm-first, tool-first or planning.
	NodeType NodeType `json:"node_type"`

	// NodeName is a free-text label used for logging and tracing.
	NodeName string `json:"node_name"`

	// ThreadID is the conversation thread this node reads from and appends
	// to. Multiple nodes may share a thread, forming a sequential
	// sub-conversation.
	ThreadID string `json:"thread_id"`

	// ParentThreadID seeds a newly created thread when DataInThread is not
	// set. Empty for main-thread nodes.
	ParentThreadID string `json:"parent_thread_id,omitempty"`

	// TaskPrompt is the instruction given to the LLM. May be empty for
	// tool-first nodes (tool only, no analysis) or llm-first nodes acting
	// as pure data-relay points.
	TaskPrompt string `json:"task_prompt,omitempty"`

	// Tools names the tools the LLM handler may bind and call.
	Tools []string `json:"tools,omitempty"`

	// EnableToolLoop lets the LLM be invoked repeatedly, executing tool
	// calls between rounds, until it answers without tool calls or the
	// budget runs out.
	EnableToolLoop bool `json:"enable_tool_loop,omitempty"`

	// ToolsLimit overrides the executor default limit per tool name.
	ToolsLimit map[string]int `json:"tools_limit,omitempty"`

	// InitialToolName is the tool invoked unconditionally before any LLM
	// involvement. Required for tool-first nodes.
	InitialToolName string `json:"initial_tool_name,omitempty"`

	// InitialToolArgs are passed to the initial tool; defaults to empty.
	InitialToolArgs map[string]any `json:"initial_tool_args,omitempty"`

	// DataInThread names the source thread a newly created thread is
	// seeded from. Falls back to ParentThreadID, then the main thread.
	DataInThread string `json:"data_in_thread,omitempty"`

	// DataInSlice selects the source messages to copy; when nil only the
	// most recent message is copied.
	DataInSlice *Slice `json:"data_in_slice,omitempty"`

	// DataOut stages this node's final content for cross-thread merge.
	DataOut bool `json:"data_out,omitempty"`

	// DataOutDescription is an optional text prefix for the staged output.
	DataOutDescription string `json:"data_out_description,omitempty"`

	// DataOutThread is the merge destination; defaults to the main thread.
	DataOutThread string `json:"data_out_thread,omitempty"`
}

// Validate checks the node's internal consistency.
func (n NodeDefinition) Validate() error {
	if n.NodeName == "" {
		return ErrMissingNodeName
	}
	if n.ThreadID == "" {
		return fmt.Errorf("node %q: %w", n.NodeName, ErrMissingThreadID)
	}
	if !n.NodeType.Valid() {
		return fmt.Errorf("node %q: %w: %q", n.NodeName, ErrUnknownNodeType, n.NodeType)
	}
	if n.NodeType == NodeToolFirst && n.InitialToolName == "" {
		return fmt.Errorf("node %q: %w", n.NodeName, ErrMissingInitialTool)
	}
	if n.NodeType == NodeLLMFirst && n.InitialToolName != "" {
		return fmt.Errorf("node %q: %w", n.NodeName, ErrUnexpectedInitialTool)
	}
	return nil
}

// ExecutionPlan is a task label plus an ordered node list. Execution
// order is list order; there is no reordering or dependency resolution.
type ExecutionPlan struct {
	Task  string           `json:"task"`
	Nodes []NodeDefinition `json:"nodes"`
}

// Validate checks every node in the plan.
func (p ExecutionPlan) Validate() error {
	for _, n := range p.Nodes {
		if err := n.Validate(); err != nil {
			return err
		}
	}
	return nil
}
