package state

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/driftworks/datadrive/internal/plan"
)

func textOf(t *testing.T, msg llms.MessageContent) string {
	t.Helper()
	require.NotEmpty(t, msg.Parts)
	text, ok := msg.Parts[0].(llms.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestNewContext(t *testing.T) {
	c := NewContext("main", "hello")
	require.Equal(t, "main", c.MainThreadID())
	require.True(t, c.ThreadExists("main"))
	require.Equal(t, 1, c.Len("main"))

	msgs := c.Messages("main")
	require.Equal(t, llms.ChatMessageTypeHuman, msgs[0].Role)
	require.Equal(t, "hello", textOf(t, msgs[0]))
}

func TestAppend(t *testing.T) {
	c := NewContext("main", "hello")

	t.Run("appends in order", func(t *testing.T) {
		require.NoError(t, c.Append("main", llms.TextParts(llms.ChatMessageTypeAI, "first")))
		require.NoError(t, c.Append("main", llms.TextParts(llms.ChatMessageTypeAI, "second")))
		msgs := c.Messages("main")
		require.Len(t, msgs, 3)
		require.Equal(t, "first", textOf(t, msgs[1]))
		require.Equal(t, "second", textOf(t, msgs[2]))
	})

	t.Run("unknown thread", func(t *testing.T) {
		err := c.Append("ghost", llms.TextParts(llms.ChatMessageTypeAI, "x"))
		require.ErrorIs(t, err, ErrThreadNotFound)
	})
}

func TestThreadIsolation(t *testing.T) {
	c := NewContext("main", "hello")
	c.CreateThread("research", "main", nil)

	require.NoError(t, c.Append("research", llms.TextParts(llms.ChatMessageTypeAI, "research only")))
	require.NoError(t, c.Append("main", llms.TextParts(llms.ChatMessageTypeAI, "main only")))

	// Appends to one thread never show up in another.
	for _, msg := range c.Messages("main") {
		require.NotEqual(t, "research only", textOf(t, msg))
	}
	for _, msg := range c.Messages("research") {
		require.NotEqual(t, "main only", textOf(t, msg))
	}
}

func TestCreateThread(t *testing.T) {
	intp := func(i int) *int { return &i }

	seed := func() *Context {
		c := NewContext("main", "m0")
		c.Append("main", llms.TextParts(llms.ChatMessageTypeAI, "m1"))
		c.Append("main", llms.TextParts(llms.ChatMessageTypeHuman, "m2"))
		c.Append("main", llms.TextParts(llms.ChatMessageTypeAI, "m3"))
		return c
	}

	t.Run("default copies most recent message", func(t *testing.T) {
		c := seed()
		c.CreateThread("sub", "main", nil)
		msgs := c.Messages("sub")
		require.Len(t, msgs, 1)
		require.Equal(t, "m3", textOf(t, msgs[0]))
	})

	t.Run("slice copies the range", func(t *testing.T) {
		c := seed()
		c.CreateThread("sub", "main", &plan.Slice{Start: intp(1), End: intp(3)})
		msgs := c.Messages("sub")
		require.Len(t, msgs, 2)
		require.Equal(t, "m1", textOf(t, msgs[0]))
		require.Equal(t, "m2", textOf(t, msgs[1]))
	})

	t.Run("negative slice indexes", func(t *testing.T) {
		c := seed()
		c.CreateThread("sub", "main", &plan.Slice{Start: intp(-2)})
		msgs := c.Messages("sub")
		require.Len(t, msgs, 2)
		require.Equal(t, "m2", textOf(t, msgs[0]))
	})

	t.Run("missing source leaves thread empty", func(t *testing.T) {
		c := seed()
		c.CreateThread("sub", "ghost", nil)
		require.True(t, c.ThreadExists("sub"))
		require.Equal(t, 0, c.Len("sub"))
	})

	t.Run("existing thread untouched", func(t *testing.T) {
		c := seed()
		c.CreateThread("sub", "main", nil)
		c.Append("sub", llms.TextParts(llms.ChatMessageTypeAI, "extra"))
		c.CreateThread("sub", "main", nil)
		require.Equal(t, 2, c.Len("sub"))
	})

	t.Run("seed copy does not alias source", func(t *testing.T) {
		c := seed()
		c.CreateThread("sub", "main", &plan.Slice{Start: intp(0), End: intp(4)})
		require.NoError(t, c.Append("main", llms.TextParts(llms.ChatMessageTypeAI, "m4")))
		require.Equal(t, 4, c.Len("sub"))
		require.Equal(t, 5, c.Len("main"))
	})
}

func TestDataOut(t *testing.T) {
	t.Run("single slot overwrites", func(t *testing.T) {
		c := NewContext("main", "hello")
		c.StageDataOut("sub", RoleAssistant, "first")
		c.StageDataOut("sub", RoleTool, "second")

		d, ok := c.DataOut("sub")
		require.True(t, ok)
		require.Equal(t, RoleTool, d.Role)
		require.Equal(t, "second", d.Content)
	})

	t.Run("merge appends and clears", func(t *testing.T) {
		c := NewContext("main", "hello")
		c.StageDataOut("sub", RoleAssistant, "Findings: golang is fine")

		require.True(t, c.MergeDataOut("sub", "main"))

		msgs := c.Messages("main")
		require.Len(t, msgs, 2)
		require.Equal(t, llms.ChatMessageTypeAI, msgs[1].Role)
		require.Equal(t, "Findings: golang is fine", textOf(t, msgs[1]))

		_, ok := c.DataOut("sub")
		require.False(t, ok)
	})

	t.Run("merge into missing thread keeps slot", func(t *testing.T) {
		c := NewContext("main", "hello")
		c.StageDataOut("sub", RoleAssistant, "pending")

		require.False(t, c.MergeDataOut("sub", "ghost"))

		d, ok := c.DataOut("sub")
		require.True(t, ok)
		require.Equal(t, "pending", d.Content)
	})

	t.Run("merge with nothing staged", func(t *testing.T) {
		c := NewContext("main", "hello")
		require.False(t, c.MergeDataOut("sub", "main"))
		require.Equal(t, 1, c.Len("main"))
	})
}

func TestSnapshots(t *testing.T) {
	c := NewContext("main", "hello")
	c.CreateThread("sub", "main", nil)
	c.StageDataOut("sub", RoleTool, "staged")

	all := c.AllMessages()
	require.Len(t, all, 2)

	// Mutating the snapshot must not affect the store.
	all["main"] = append(all["main"], llms.TextParts(llms.ChatMessageTypeAI, "rogue"))
	require.Equal(t, 1, c.Len("main"))

	pending := c.AllDataOut()
	require.Len(t, pending, 1)
	pending["sub"] = DataOut{Role: RoleTool, Content: "mutated"}
	d, _ := c.DataOut("sub")
	require.Equal(t, "staged", d.Content)
}
