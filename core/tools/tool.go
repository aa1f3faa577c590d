// Package tools holds the actions the agent can take on the user's behalf.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/invopop/jsonschema"
)

var (
	ErrToolNotFound    = errors.New("tool not found")
	ErrInvalidToolCall = errors.New("invalid tool call")
	ErrInvalidInput    = errors.New("invalid tool input")
)

type Metadata struct {
	Name        string
	Description string
	Category    string
	Tags        []string
	InputSchema *jsonschema.Schema
}

// Result is what a tool reports back. A tool that ran but could not do its
// job returns Success false rather than an error.
type Result struct {
	Success       bool           `json:"success"`
	Message       string         `json:"message"`
	Data          map[string]any `json:"data,omitempty"`
	ExecutionTime time.Duration  `json:"execution_time"`
}

type Tool interface {
	Metadata() Metadata
	Execute(ctx context.Context, args json.RawMessage) (Result, error)
}

// Validator is implemented by tool inputs that check their own fields.
type Validator interface {
	Validate() error
}

// TypedTool adapts a function taking a decoded input struct into a Tool. The
// input schema is reflected from In.
type TypedTool[In any] struct {
	metadata Metadata
	run      func(ctx context.Context, input In) (Result, error)
}

const DefaultCategory = "general"

func New[In any](name, description, category string, run func(ctx context.Context, input In) (Result, error), tags ...string) *TypedTool[In] {
	if category == "" {
		category = DefaultCategory
	}
	reflector := jsonschema.Reflector{DoNotReference: true}
	return &TypedTool[In]{
		metadata: Metadata{
			Name:        name,
			Description: description,
			Category:    category,
			Tags:        tags,
			InputSchema: reflector.Reflect(new(In)),
		},
		run: run,
	}
}

func (t *TypedTool[In]) Metadata() Metadata { return t.metadata }

func (t *TypedTool[In]) Execute(ctx context.Context, args json.RawMessage) (Result, error) {
	var input In
	if len(args) > 0 {
		if err := json.Unmarshal(args, &input); err != nil {
			return Result{}, fmt.Errorf("%w for %s: %v", ErrInvalidInput, t.metadata.Name, err)
		}
	}
	if err := requireFields(t.metadata.InputSchema, args); err != nil {
		return Result{}, fmt.Errorf("%w for %s: %v", ErrInvalidInput, t.metadata.Name, err)
	}
	if validator, ok := any(&input).(Validator); ok {
		if err := validator.Validate(); err != nil {
			return Result{}, fmt.Errorf("%w for %s: %v", ErrInvalidInput, t.metadata.Name, err)
		}
	}
	return t.run(ctx, input)
}

func requireFields(schema *jsonschema.Schema, args json.RawMessage) error {
	if schema == nil || len(schema.Required) == 0 {
		return nil
	}
	present := map[string]json.RawMessage{}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &present); err != nil {
			return err
		}
	}
	var missing []string
	for _, field := range schema.Required {
		if _, ok := present[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields %v", missing)
	}
	return nil
}
