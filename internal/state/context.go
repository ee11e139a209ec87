package state

import (
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"

	"github.com/driftworks/datadrive/internal/plan"
)

// ErrThreadNotFound is returned when appending to a thread that was never created.
var ErrThreadNotFound = errors.New("thread not found")

// DataOut is one staged cross-thread output. The staging area is a
// single slot per thread: a second stage before a merge overwrites the
// first.
type DataOut struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Context is the multi-thread conversation store. Threads are logical
// conversation partitions with isolated, append-only message histories,
// not OS threads. A Context is owned by exactly one executor for the
// duration of one plan execution, so access needs no locking.
type Context struct {
	mainThreadID string
	threads      map[string][]llms.MessageContent
	dataOut      map[string]DataOut
}

// NewContext creates a context whose main thread is seeded with the
// user's initial message.
func NewContext(mainThreadID, userMessage string) *Context {
	return &Context{
		mainThreadID: mainThreadID,
		threads: map[string][]llms.MessageContent{
			mainThreadID: {llms.TextParts(llms.ChatMessageTypeHuman, userMessage)},
		},
		dataOut: make(map[string]DataOut),
	}
}

// MainThreadID returns the distinguished main thread's identifier.
func (c *Context) MainThreadID() string {
	return c.mainThreadID
}

// ThreadExists reports whether the thread has been created.
func (c *Context) ThreadExists(threadID string) bool {
	_, ok := c.threads[threadID]
	return ok
}

// Messages returns a copy of the thread's message list. A missing
// thread yields nil.
func (c *Context) Messages(threadID string) []llms.MessageContent {
	msgs, ok := c.threads[threadID]
	if !ok {
		return nil
	}
	return append([]llms.MessageContent(nil), msgs...)
}

// Len returns the number of messages in the thread.
func (c *Context) Len(threadID string) int {
	return len(c.threads[threadID])
}

// Append adds a message to an existing thread. Messages are strictly
// append-ordered and never reordered or deleted.
func (c *Context) Append(threadID string, msg llms.MessageContent) error {
	if _, ok := c.threads[threadID]; !ok {
		return fmt.Errorf("%w: %s", ErrThreadNotFound, threadID)
	}
	c.threads[threadID] = append(c.threads[threadID], msg)
	return nil
}

// CreateThread creates a thread seeded from the source thread: the
// slice [start, end) when given, the single most recent message
// otherwise. A missing or empty source leaves the new thread empty.
// Creating an existing thread is a no-op.
func (c *Context) CreateThread(threadID, sourceThreadID string, slice *plan.Slice) {
	if _, ok := c.threads[threadID]; ok {
		return
	}
	c.threads[threadID] = []llms.MessageContent{}

	src, ok := c.threads[sourceThreadID]
	if !ok || len(src) == 0 {
		return
	}

	var injected []llms.MessageContent
	if slice != nil {
		start, end := slice.Bounds(len(src))
		injected = src[start:end]
	} else {
		injected = src[len(src)-1:]
	}
	c.threads[threadID] = append(c.threads[threadID], injected...)
}

// StageDataOut writes the thread's pending output, overwriting any
// prior staged value for that thread.
func (c *Context) StageDataOut(threadID, role, content string) {
	c.dataOut[threadID] = DataOut{Role: role, Content: content}
}

// DataOut returns the staged output for a thread without consuming it.
func (c *Context) DataOut(threadID string) (DataOut, bool) {
	d, ok := c.dataOut[threadID]
	return d, ok
}

// MergeDataOut appends the staged output of fromThreadID into the
// target thread as an assistant message and clears the slot. The merge
// is silently skipped, and the slot kept, when there is nothing staged
// or the target thread does not exist.
func (c *Context) MergeDataOut(fromThreadID, targetThreadID string) bool {
	d, ok := c.dataOut[fromThreadID]
	if !ok {
		return false
	}
	if _, ok := c.threads[targetThreadID]; !ok {
		return false
	}
	c.threads[targetThreadID] = append(c.threads[targetThreadID],
		llms.TextParts(llms.ChatMessageTypeAI, d.Content))
	delete(c.dataOut, fromThreadID)
	return true
}

// AllMessages returns a copy of every thread's message list.
func (c *Context) AllMessages() map[string][]llms.MessageContent {
	out := make(map[string][]llms.MessageContent, len(c.threads))
	for id := range c.threads {
		out[id] = c.Messages(id)
	}
	return out
}

// AllDataOut returns a copy of the pending data-out staging area.
func (c *Context) AllDataOut() map[string]DataOut {
	out := make(map[string]DataOut, len(c.dataOut))
	for id, d := range c.dataOut {
		out[id] = d
	}
	return out
}
