package plan

// Builder assembles an ExecutionPlan node by node. Errors surface once,
// at Build time, so call sites can chain without per-step checks.
type Builder struct {
	plan ExecutionPlan
}

// NewBuilder creates a builder for a plan with the given task label.
func NewBuilder(task string) *Builder {
	return &Builder{plan: ExecutionPlan{Task: task}}
}

// LLMFirst starts an llm-first node on the given thread.
func (b *Builder) LLMFirst(name, threadID string) *NodeBuilder {
	return &NodeBuilder{
		b: b,
		def: NodeDefinition{
			NodeType: NodeLLMFirst,
			NodeName: name,
			ThreadID: threadID,
		},
	}
}

// ToolFirst starts a tool-first node on the given thread with its
// mandatory initial tool.
func (b *Builder) ToolFirst(name, threadID, initialTool string) *NodeBuilder {
	return &NodeBuilder{
		b: b,
		def: NodeDefinition{
			NodeType:        NodeToolFirst,
			NodeName:        name,
			ThreadID:        threadID,
			InitialToolName: initialTool,
		},
	}
}

// Node appends a fully specified node definition.
func (b *Builder) Node(def NodeDefinition) *Builder {
	b.plan.Nodes = append(b.plan.Nodes, def)
	return b
}

// Build validates and returns the assembled plan.
func (b *Builder) Build() (ExecutionPlan, error) {
	if err := b.plan.Validate(); err != nil {
		return ExecutionPlan{}, err
	}
	return b.plan, nil
}

// NodeBuilder configures a single node before it is appended to the plan.
type NodeBuilder struct {
	b   *Builder
	def NodeDefinition
}

// Prompt sets the node's task prompt.
func (nb *NodeBuilder) Prompt(prompt string) *NodeBuilder {
	nb.def.TaskPrompt = prompt
	return nb
}

// Tools names the tools the node's LLM may call.
func (nb *NodeBuilder) Tools(names ...string) *NodeBuilder {
	nb.def.Tools = names
	return nb
}

// Loop enables the multi-round tool loop.
func (nb *NodeBuilder) Loop() *NodeBuilder {
	nb.def.EnableToolLoop = true
	return nb
}

// Limits overrides the default per-tool call limits for this node.
func (nb *NodeBuilder) Limits(limits map[string]int) *NodeBuilder {
	nb.def.ToolsLimit = limits
	return nb
}

// InitialArgs sets the arguments for a tool-first node's initial tool.
func (nb *NodeBuilder) InitialArgs(args map[string]any) *NodeBuilder {
	nb.def.InitialToolArgs = args
	return nb
}

// Parent sets the parent thread used as a data-in fallback source.
func (nb *NodeBuilder) Parent(threadID string) *NodeBuilder {
	nb.def.ParentThreadID = threadID
	return nb
}

// DataIn sets the source thread a newly created thread is seeded from.
func (nb *NodeBuilder) DataIn(threadID string) *NodeBuilder {
	nb.def.DataInThread = threadID
	return nb
}

// DataInSlice selects the half-open [start, end) range of source messages.
func (nb *NodeBuilder) DataInSlice(start, end int) *NodeBuilder {
	nb.def.DataInSlice = &Slice{Start: &start, End: &end}
	return nb
}

// DataOut stages the node's final content for merge, with an optional
// description prefix.
func (nb *NodeBuilder) DataOut(description string) *NodeBuilder {
	nb.def.DataOut = true
	nb.def.DataOutDescription = description
	return nb
}

// DataOutTo sets the merge destination thread.
func (nb *NodeBuilder) DataOutTo(threadID string) *NodeBuilder {
	nb.def.DataOutThread = threadID
	return nb
}

// Add appends the configured node and returns the plan builder.
func (nb *NodeBuilder) Add() *Builder {
	return nb.b.Node(nb.def)
}
