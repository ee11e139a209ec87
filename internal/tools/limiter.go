package tools

import (
	"fmt"
	"strings"
)

// DefaultLimit is the per-tool call budget used when the executor is
// not configured otherwise.
const DefaultLimit = 1

// Unlimited disables the default per-tool budget.
const Unlimited = -1

// Limiter tracks per-tool remaining-call counters scoped to the
// currently executing node. Counters are reset, not accumulated, before
// each node runs.
type Limiter struct {
	defaultLimit int
	remaining    map[string]int
}

// NewLimiter creates a limiter with the given default per-tool budget.
// Pass Unlimited to disable the default budget.
func NewLimiter(defaultLimit int) *Limiter {
	return &Limiter{
		defaultLimit: defaultLimit,
		remaining:    make(map[string]int),
	}
}

// Reset clears all counters and repopulates them for one node: the
// default limit for every tool the node may use, one extra allowance
// for a tool-first node's initial tool (its mandatory first call should
// not consume the LLM-loop budget), then any node-specific overrides,
// which take priority.
func (l *Limiter) Reset(toolNames []string, initialTool string, overrides map[string]int) {
	l.remaining = make(map[string]int)

	if l.defaultLimit != Unlimited {
		for _, name := range toolNames {
			l.remaining[name] = l.defaultLimit
		}
		if initialTool != "" {
			l.remaining[initialTool] = l.defaultLimit + 1
		}
	}

	for name, limit := range overrides {
		l.remaining[name] = limit
	}
}

// CanUse reports whether the tool has budget left. Tools with no
// tracked counter fall back to the default limit.
func (l *Limiter) CanUse(name string) bool {
	if v, ok := l.remaining[name]; ok {
		return v > 0
	}
	return l.defaultLimit == Unlimited || l.defaultLimit > 0
}

// Consume spends one unit of the tool's budget. Untracked tools are
// initialized to the default limit first. Counters clamp at zero.
func (l *Limiter) Consume(name string) {
	if l.defaultLimit == Unlimited {
		if _, ok := l.remaining[name]; !ok {
			return
		}
	}
	if _, ok := l.remaining[name]; !ok {
		l.remaining[name] = l.defaultLimit
	}
	if l.remaining[name] > 0 {
		l.remaining[name]--
	}
}

// Remaining returns the tool's remaining budget; Unlimited for
// untracked tools under an unlimited default.
func (l *Limiter) Remaining(name string) int {
	if v, ok := l.remaining[name]; ok {
		return v
	}
	return l.defaultLimit
}

// HasAvailable reports whether any of the named tools still has budget.
func (l *Limiter) HasAvailable(names []string) bool {
	for _, name := range names {
		if l.CanUse(name) {
			return true
		}
	}
	return false
}

// BudgetPrompt formats the remaining budgets as instruction lines for
// the LLM.
func (l *Limiter) BudgetPrompt(names []string) string {
	lines := make([]string, 0, len(names))
	for _, name := range names {
		if v, ok := l.remaining[name]; ok {
			lines = append(lines, fmt.Sprintf("tool %s can be called %d more times", name, v))
		} else if l.defaultLimit == Unlimited {
			lines = append(lines, fmt.Sprintf("tool %s has no call limit", name))
		} else {
			lines = append(lines, fmt.Sprintf("tool %s can be called 0 more times", name))
		}
	}
	return strings.Join(lines, "\n")
}
