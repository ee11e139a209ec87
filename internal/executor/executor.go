package executor

import (
	"context"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"github.com/driftworks/datadrive/internal/llm"
	"github.com/driftworks/datadrive/internal/plan"
	"github.com/driftworks/datadrive/internal/state"
	"github.com/driftworks/datadrive/internal/tools"
)

const defaultMainThreadID = "main"

// Result is the outcome of a full plan execution.
type Result struct {
	// Content is the last executed node's final content.
	Content string `json:"content"`

	// Messages holds every thread's full history, keyed by thread ID.
	Messages map[string][]llms.MessageContent `json:"messages"`

	// TokensUsage is the cumulative token tally across all LLM calls.
	TokensUsage llm.Usage `json:"tokens_usage"`

	// DataOut holds staged outputs that were never merged (their target
	// thread did not exist at merge time).
	DataOut map[string]state.DataOut `json:"data_out"`
}

// Executor runs a plan's nodes in list order against a private Context.
// It owns the Context and the tool-usage limiter exclusively for the
// duration of one plan execution; nodes are strictly sequential, so no
// locking is involved.
type Executor struct {
	runID        string
	plan         plan.ExecutionPlan
	mainThreadID string
	ctx          *state.Context
	registry     *tools.Registry
	limiter      *tools.Limiter
	factory      llm.Factory
	logger       *zap.Logger
	defaultLimit int

	usage llm.Usage

	// nodeToolCalls and nodeLLMInput record the tool calls attempted and
	// the prompt sent by the node currently executing; the step executor
	// snapshots them per node.
	nodeToolCalls []state.WireToolCall
	nodeLLMInput  string
}

// Option configures an Executor.
type Option func(*Executor)

// WithMainThreadID overrides the main thread identifier (default "main").
func WithMainThreadID(id string) Option {
	return func(e *Executor) {
		e.mainThreadID = id
	}
}

// WithRegistry injects the tool registry.
func WithRegistry(r *tools.Registry) Option {
	return func(e *Executor) {
		e.registry = r
	}
}

// WithModelFactory injects the LLM factory used by nodes that need one.
func WithModelFactory(f llm.Factory) Option {
	return func(e *Executor) {
		e.factory = f
	}
}

// WithDefaultToolLimit sets the default per-tool call budget (default 1).
// Pass tools.Unlimited to disable the default budget.
func WithDefaultToolLimit(limit int) Option {
	return func(e *Executor) {
		e.defaultLimit = limit
	}
}

// WithLogger injects a structured logger (default: no-op).
func WithLogger(logger *zap.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// New creates an executor for the given plan, seeding the main thread
// with the user's initial message. The plan is validated up front;
// configuration errors surface here, not mid-run.
func New(p plan.ExecutionPlan, userMessage string, opts ...Option) (*Executor, error) {
	e := &Executor{
		runID:        uuid.New().String(),
		plan:         p,
		mainThreadID: defaultMainThreadID,
		defaultLimit: tools.DefaultLimit,
		logger:       zap.NewNop(),
	}
	for _, o := range opts {
		o(e)
	}

	if err := p.Validate(); err != nil {
		return nil, NewValidationError("New", "", err)
	}
	if e.registry == nil {
		e.registry = tools.NewRegistry()
		e.logger.Warn("no tool registry provided, using an empty one")
	}

	e.ctx = state.NewContext(e.mainThreadID, userMessage)
	e.limiter = tools.NewLimiter(e.defaultLimit)
	return e, nil
}

// RunID returns the unique identifier of this execution.
func (e *Executor) RunID() string {
	return e.runID
}

// Plan returns the plan under execution.
func (e *Executor) Plan() plan.ExecutionPlan {
	return e.plan
}

// Execute runs every node in plan order and returns the aggregate
// result. Configuration and dispatch errors abort the run; budget and
// unknown-tool conditions are absorbed into the conversation instead.
func (e *Executor) Execute(ctx context.Context) (*Result, error) {
	e.logger.Info("starting plan execution",
		zap.String("run_id", e.runID),
		zap.String("task", e.plan.Task),
		zap.Int("nodes", len(e.plan.Nodes)))

	e.usage = llm.Usage{}

	var content string
	for i := range e.plan.Nodes {
		c, err := e.runNode(ctx, &e.plan.Nodes[i])
		if err != nil {
			return nil, err
		}
		content = c
	}

	e.logger.Info("plan execution complete",
		zap.String("run_id", e.runID),
		zap.Int("input_tokens", e.usage.InputTokens),
		zap.Int("output_tokens", e.usage.OutputTokens),
		zap.Int("total_tokens", e.usage.TotalTokens))

	return e.result(content), nil
}

// runNode resets the limiter for the node, lazily creates its thread,
// dispatches to the node-type handler and merges any staged data-out.
func (e *Executor) runNode(ctx context.Context, node *plan.NodeDefinition) (string, error) {
	initialTool := ""
	if node.NodeType == plan.NodeToolFirst {
		initialTool = node.InitialToolName
	}
	e.limiter.Reset(node.Tools, initialTool, node.ToolsLimit)
	e.nodeToolCalls = nil
	e.nodeLLMInput = ""

	e.ensureThread(node)

	var content string
	var err error
	switch node.NodeType {
	case plan.NodeLLMFirst:
		content, err = e.runLLMFirst(ctx, node)
	case plan.NodeToolFirst:
		content, err = e.runToolFirst(ctx, node)
	case plan.NodePlanning:
		err = NewExecutionError("dispatch", node.NodeName, ErrPlanningNotImplemented)
	default:
		err = NewValidationError("dispatch", node.NodeName, ErrUnknownNodeType)
	}
	if err != nil {
		return "", err
	}

	if node.DataOut {
		target := node.DataOutThread
		if target == "" {
			e.logger.Warn("data_out: no data_out_thread set, merging into main thread",
				zap.String("node", node.NodeName))
			target = e.mainThreadID
		}
		if e.ctx.MergeDataOut(node.ThreadID, target) {
			e.logger.Debug("data_out merged",
				zap.String("from", node.ThreadID),
				zap.String("to", target))
		}
	}

	return content, nil
}

// ensureThread lazily creates the node's thread, seeding it per the
// data-in configuration. The source falls back from data_in_thread to
// parent_thread_id to the main thread.
func (e *Executor) ensureThread(node *plan.NodeDefinition) {
	if e.ctx.ThreadExists(node.ThreadID) {
		return
	}

	source := node.DataInThread
	if source == "" {
		source = node.ParentThreadID
	}
	if source == "" {
		e.logger.Warn("data_in: no source thread set, seeding from main thread",
			zap.String("node", node.NodeName))
		source = e.mainThreadID
	}

	e.ctx.CreateThread(node.ThreadID, source, node.DataInSlice)
	e.logger.Debug("thread created",
		zap.String("thread", node.ThreadID),
		zap.String("source", source),
		zap.Int("seeded_messages", e.ctx.Len(node.ThreadID)))
}

// stageDataOut writes the node's final content into the staging slot,
// prefixed by the description and tagged with the node type's role.
func (e *Executor) stageDataOut(node *plan.NodeDefinition, content string) {
	role := state.RoleAssistant
	if node.NodeType == plan.NodeToolFirst {
		role = state.RoleTool
	}
	e.ctx.StageDataOut(node.ThreadID, role, node.DataOutDescription+content)
}

func (e *Executor) result(content string) *Result {
	return &Result{
		Content:     content,
		Messages:    e.ctx.AllMessages(),
		TokensUsage: e.usage,
		DataOut:     e.ctx.AllDataOut(),
	}
}

// recordUsage folds a choice's token usage into the running totals. A
// shape the extractors do not recognize is logged and skipped.
func (e *Executor) recordUsage(choice *llms.ContentChoice) {
	u, ok := llm.ExtractUsage(choice)
	if !ok {
		e.logger.Warn("could not extract token usage from model response")
		return
	}
	e.usage.Add(u)
	e.logger.Debug("token usage recorded",
		zap.Int("input_tokens", u.InputTokens),
		zap.Int("output_tokens", u.OutputTokens),
		zap.Int("total_tokens", u.TotalTokens))
}
