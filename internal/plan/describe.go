package plan

import (
	"fmt"
	"strings"
)

// Info is a flattened view of the plan structure for display tooling.
type Info struct {
	Task    string
	Nodes   []string
	Threads []string
	Flows   []FlowInfo
}

// FlowInfo describes one cross-thread data edge.
type FlowInfo struct {
	Node string
	From string
	To   string
	Kind string // "data-in" or "data-out"
}

// GetInfo collects nodes, threads and data-flow edges in plan order.
func (p ExecutionPlan) GetInfo() *Info {
	info := &Info{Task: p.Task}
	seen := make(map[string]bool)
	for _, n := range p.Nodes {
		info.Nodes = append(info.Nodes, n.NodeName)
		if !seen[n.ThreadID] {
			seen[n.ThreadID] = true
			info.Threads = append(info.Threads, n.ThreadID)
		}
		if n.DataInThread != "" {
			info.Flows = append(info.Flows, FlowInfo{
				Node: n.NodeName,
				From: n.DataInThread,
				To:   n.ThreadID,
				Kind: "data-in",
			})
		}
		if n.DataOut {
			info.Flows = append(info.Flows, FlowInfo{
				Node: n.NodeName,
				From: n.ThreadID,
				To:   n.DataOutThread,
				Kind: "data-out",
			})
		}
	}
	return info
}

// Describe renders a human-readable summary of the plan: execution
// order, thread assignments and data-flow edges.
func (p ExecutionPlan) Describe() string {
	info := p.GetInfo()

	var b strings.Builder
	fmt.Fprintf(&b, "Plan: %s\n\n", info.Task)

	b.WriteString("Nodes (execution order):\n")
	for i, n := range p.Nodes {
		fmt.Fprintf(&b, "  %d. [%s] %s (thread %s)\n", i+1, n.NodeType, n.NodeName, n.ThreadID)
	}

	if len(info.Flows) > 0 {
		b.WriteString("\nData flow:\n")
		for _, f := range info.Flows {
			to := f.To
			if to == "" {
				to = "(main)"
			}
			switch f.Kind {
			case "data-in":
				fmt.Fprintf(&b, "  %s --in--> %s (%s)\n", f.From, to, f.Node)
			case "data-out":
				fmt.Fprintf(&b, "  %s --out--> %s (%s)\n", f.From, to, f.Node)
			}
		}
	}

	return b.String()
}
