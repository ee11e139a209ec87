package llm

import (
	"context"
	"errors"

	"github.com/tmc/langchaingo/llms"
)

var (
	// ErrMissingFactory is returned when a node needs an LLM but no
	// factory was configured.
	ErrMissingFactory = errors.New("a model factory is required to create an LLM")

	// ErrEmptyResponse is returned when a model yields no choices.
	ErrEmptyResponse = errors.New("model returned an empty response")
)

// Factory creates a fresh model instance. It is caller-supplied and
// invoked once per node that needs an LLM.
type Factory func() (llms.Model, error)

// Client is a model plus the tools bound to it for one node.
type Client struct {
	model llms.Model
	tools []llms.Tool
}

// NewClient builds a model via the factory and binds the given tools.
func NewClient(factory Factory, tools []llms.Tool) (*Client, error) {
	if factory == nil {
		return nil, ErrMissingFactory
	}
	model, err := factory()
	if err != nil {
		return nil, err
	}
	return &Client{model: model, tools: tools}, nil
}

// Invoke calls the model with the full message list and returns the
// first content choice.
func (c *Client) Invoke(ctx context.Context, messages []llms.MessageContent) (*llms.ContentChoice, error) {
	var opts []llms.CallOption
	if len(c.tools) > 0 {
		opts = append(opts, llms.WithTools(c.tools))
	}
	resp, err := c.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}
	return resp.Choices[0], nil
}
