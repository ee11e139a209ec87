package executor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/driftworks/datadrive/internal/plan"
	"github.com/driftworks/datadrive/internal/state"
)

// NodeStatus is the lifecycle state of one node in a step-through run.
type NodeStatus string

const (
	StatusPending   NodeStatus = "pending"
	StatusRunning   NodeStatus = "running"
	StatusCompleted NodeStatus = "completed"
	StatusFailed    NodeStatus = "failed"
)

// NodeExecutionState tracks the lifecycle of one node. Node IDs are the
// 1-based position of the node in the plan.
type NodeExecutionState struct {
	NodeID    int
	NodeName  string
	Status    NodeStatus
	StartTime time.Time
	EndTime   time.Time
	Err       error
}

// NodeContext is the full debugging capture of one executed node: the
// thread before and after, what the node produced, which tools it
// called, and what it staged for hand-off.
type NodeContext struct {
	NodeID               int                  `json:"node_id"`
	NodeName             string               `json:"node_name"`
	ThreadID             string               `json:"thread_id"`
	ThreadMessagesBefore []state.WireMessage  `json:"thread_messages_before"`
	ThreadMessagesAfter  []state.WireMessage  `json:"thread_messages_after"`
	LLMInput             string               `json:"llm_input"`
	LLMOutput            string               `json:"llm_output"`
	ToolCalls            []state.WireToolCall `json:"tool_calls"`
	DataOutContent       *string              `json:"data_out_content"`
}

// Progress summarizes how far a step-through run has advanced.
type Progress struct {
	Total           int     `json:"total"`
	Completed       int     `json:"completed"`
	Failed          int     `json:"failed"`
	Running         int     `json:"running"`
	Pending         int     `json:"pending"`
	ProgressPercent float64 `json:"progress_percent"`
}

// StepExecutor runs a plan one node at a time, capturing per-node
// execution state and debugging context between steps. Semantics are
// identical to Executor; only the pacing and introspection differ.
type StepExecutor struct {
	exec *Executor

	mu       sync.RWMutex
	next     int
	states   map[int]*NodeExecutionState
	contexts map[int]*NodeContext
}

// NewStepExecutor creates a step-through executor over the given plan.
// It accepts the same options as New.
func NewStepExecutor(p plan.ExecutionPlan, userMessage string, opts ...Option) (*StepExecutor, error) {
	exec, err := New(p, userMessage, opts...)
	if err != nil {
		return nil, err
	}

	s := &StepExecutor{
		exec:     exec,
		states:   make(map[int]*NodeExecutionState, len(p.Nodes)),
		contexts: make(map[int]*NodeContext, len(p.Nodes)),
	}
	for i := range p.Nodes {
		id := i + 1
		s.states[id] = &NodeExecutionState{
			NodeID:   id,
			NodeName: p.Nodes[i].NodeName,
			Status:   StatusPending,
		}
	}
	return s, nil
}

// RunID returns the unique identifier of this execution.
func (s *StepExecutor) RunID() string {
	return s.exec.RunID()
}

// ExecuteStep runs the current node and returns its captured context.
// It returns (nil, nil) when every node has completed. The cursor only
// advances on success: a failure marks the node failed, returns the
// error, and leaves the node current, so the next call retries it
// rather than running downstream nodes against missing hand-off data.
func (s *StepExecutor) ExecuteStep(ctx context.Context) (*NodeContext, error) {
	s.mu.Lock()
	if s.next >= len(s.exec.plan.Nodes) {
		s.mu.Unlock()
		return nil, nil
	}
	idx := s.next
	id := idx + 1
	node := &s.exec.plan.Nodes[idx]

	st := s.states[id]
	st.Status = StatusRunning
	st.StartTime = time.Now()
	st.Err = nil
	s.mu.Unlock()

	s.exec.logger.Info("executing step",
		zap.Int("node_id", id),
		zap.String("node", node.NodeName))

	before := state.EncodeMessages(s.exec.ctx.Messages(node.ThreadID))
	content, err := s.exec.runNode(ctx, node)
	after := state.EncodeMessages(s.exec.ctx.Messages(node.ThreadID))

	nc := &NodeContext{
		NodeID:               id,
		NodeName:             node.NodeName,
		ThreadID:             node.ThreadID,
		ThreadMessagesBefore: before,
		ThreadMessagesAfter:  after,
		LLMInput:             s.exec.nodeLLMInput,
		LLMOutput:            content,
		ToolCalls:            s.exec.nodeToolCalls,
	}
	if err == nil && node.DataOut {
		staged := node.DataOutDescription + content
		nc.DataOutContent = &staged
	}

	s.mu.Lock()
	st.EndTime = time.Now()
	if err != nil {
		st.Status = StatusFailed
		st.Err = err
	} else {
		st.Status = StatusCompleted
		s.next++
	}
	s.contexts[id] = nc
	s.mu.Unlock()

	if err != nil {
		return nc, err
	}
	return nc, nil
}

// Execute runs all remaining nodes to completion and returns the
// aggregate result, equivalent to Executor.Execute from the current
// position.
func (s *StepExecutor) Execute(ctx context.Context) (*Result, error) {
	var content string
	for {
		nc, err := s.ExecuteStep(ctx)
		if err != nil {
			return nil, err
		}
		if nc == nil {
			break
		}
		content = nc.LLMOutput
	}
	return s.exec.result(content), nil
}

// NodeState returns the lifecycle state of one node by 1-based ID.
func (s *StepExecutor) NodeState(id int) (NodeExecutionState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[id]
	if !ok {
		return NodeExecutionState{}, false
	}
	return *st, true
}

// Context returns the captured debugging context of one executed node.
func (s *StepExecutor) Context(id int) (*NodeContext, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	nc, ok := s.contexts[id]
	return nc, ok
}

// States returns a snapshot of every node's lifecycle state in plan
// order.
func (s *StepExecutor) States() []NodeExecutionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]NodeExecutionState, 0, len(s.states))
	for i := 1; i <= len(s.states); i++ {
		out = append(out, *s.states[i])
	}
	return out
}

// Progress reports the run's advancement as counts per status and a
// completion percentage. Only completed nodes count toward the
// percentage; a failed node is unfinished work, not progress.
func (s *StepExecutor) Progress() Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p := Progress{Total: len(s.states)}
	for _, st := range s.states {
		switch st.Status {
		case StatusCompleted:
			p.Completed++
		case StatusFailed:
			p.Failed++
		case StatusRunning:
			p.Running++
		default:
			p.Pending++
		}
	}
	if p.Total > 0 {
		p.ProgressPercent = float64(p.Completed) / float64(p.Total) * 100
	}
	return p
}
