package llms

import (
	"context"

	"github.com/invopop/jsonschema"
)

// Client is a chat-capable language model.
type Client interface {
	Chat(ctx context.Context, messages []Message, opts ...PromptOption) (Response, error)
	HealthCheck(ctx context.Context) bool
}

// Tool describes a callable function in the provider's native tool format.
type Tool struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
}

type PromptOptions struct {
	Temperature *float64
	Tools       []Tool
}

type PromptOption func(*PromptOptions)

func WithTemperature(temperature float64) PromptOption {
	return func(opts *PromptOptions) { opts.Temperature = &temperature }
}

func WithTools(tools ...Tool) PromptOption {
	return func(opts *PromptOptions) { opts.Tools = append(opts.Tools, tools...) }
}

// NewPromptOptions applies opts in order.
func NewPromptOptions(opts ...PromptOption) PromptOptions {
	options := PromptOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
