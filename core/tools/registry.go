package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/koscakluka/luna/core/llms"
)

// Call is the JSON shape the agent asks the model to produce:
//
//	{"tool_name": "...", "tool_args": {...}}
type Call struct {
	Name string         `json:"tool_name"`
	Args map[string]any `json:"tool_args"`
}

type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: map[string]Tool{}}
	for _, tool := range tools {
		r.Register(tool)
	}
	return r
}

// Register adds tool, replacing any tool with the same name.
func (r *Registry) Register(tool Tool) {
	metadata := tool.Metadata()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[metadata.Name]; exists {
		logger.Warn("tool already registered, overwriting", "tool", metadata.Name)
	} else {
		r.order = append(r.order, metadata.Name)
	}
	r.tools[metadata.Name] = tool
	logger.Info("registered tool", "tool", metadata.Name, "category", metadata.Category)
}

func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[name]; !ok {
		return false
	}
	delete(r.tools, name)
	r.order = slices.DeleteFunc(r.order, func(candidate string) bool { return candidate == name })
	logger.Info("unregistered tool", "tool", name)
	return true
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// All returns tools in registration order.
func (r *Registry) All() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		tools = append(tools, r.tools[name])
	}
	return tools
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

func (r *Registry) ByCategory(category string) []Tool {
	var tools []Tool
	for _, tool := range r.All() {
		if tool.Metadata().Category == category {
			tools = append(tools, tool)
		}
	}
	return tools
}

// Categories returns categories in order of first registration.
func (r *Registry) Categories() []string {
	var categories []string
	for _, tool := range r.All() {
		if category := tool.Metadata().Category; !slices.Contains(categories, category) {
			categories = append(categories, category)
		}
	}
	return categories
}

// Definitions describes every tool in the provider-native format.
func (r *Registry) Definitions() []llms.Tool {
	var definitions []llms.Tool
	for _, tool := range r.All() {
		metadata := tool.Metadata()
		definitions = append(definitions, llms.Tool{
			Name:        metadata.Name,
			Description: metadata.Description,
			Parameters:  metadata.InputSchema,
		})
	}
	return definitions
}

// Descriptions renders every tool for inclusion in a system prompt, grouped
// by category.
func (r *Registry) Descriptions() string {
	categories := r.Categories()
	if len(categories) == 0 {
		return "No tools available."
	}

	var sections []string
	for _, category := range categories {
		sections = append(sections, fmt.Sprintf("--- %s TOOLS ---", strings.ToUpper(category)))
		for _, tool := range r.ByCategory(category) {
			sections = append(sections, describe(tool.Metadata()))
		}
	}
	return strings.Join(sections, "\n\n")
}

func describe(metadata Metadata) string {
	schema, _ := json.Marshal(metadata.InputSchema)
	example, _ := json.Marshal(Call{Name: metadata.Name, Args: exampleArgs(metadata)})
	return fmt.Sprintf("Tool: %s\nDescription: %s\nCategory: %s\nInput Schema: %s\nExample Usage:\n%s",
		metadata.Name, metadata.Description, metadata.Category, schema, example)
}

func exampleArgs(metadata Metadata) map[string]any {
	args := map[string]any{}
	if metadata.InputSchema == nil || metadata.InputSchema.Properties == nil {
		return args
	}
	for pair := metadata.InputSchema.Properties.Oldest(); pair != nil; pair = pair.Next() {
		if len(pair.Value.Enum) > 0 {
			args[pair.Key] = pair.Value.Enum[0]
			continue
		}
		switch pair.Value.Type {
		case "integer":
			args[pair.Key] = 42
		case "number":
			args[pair.Key] = 3.14
		case "boolean":
			args[pair.Key] = true
		case "array":
			args[pair.Key] = []any{}
		default:
			args[pair.Key] = "example_" + pair.Key
		}
	}
	return args
}

// ParseCall decodes text as a tool call. It reports false when text is not a
// JSON object at all, so callers can treat it as plain conversation.
func ParseCall(text string) (map[string]any, bool) {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return nil, false
	}
	return raw, true
}

// ValidateCall checks the structure of a decoded tool call and that the tool
// exists.
func (r *Registry) ValidateCall(raw map[string]any) (Call, error) {
	name, ok := raw["tool_name"].(string)
	if !ok {
		return Call{}, fmt.Errorf("%w: tool call must include 'tool_name'", ErrInvalidToolCall)
	}
	if _, ok := r.Get(name); !ok {
		return Call{}, fmt.Errorf("%w: unknown tool %s, available tools: %s",
			ErrInvalidToolCall, name, strings.Join(r.Names(), ", "))
	}
	rawArgs, ok := raw["tool_args"]
	if !ok {
		return Call{}, fmt.Errorf("%w: tool call must include 'tool_args'", ErrInvalidToolCall)
	}
	args, ok := rawArgs.(map[string]any)
	if !ok {
		return Call{}, fmt.Errorf("%w: 'tool_args' must be an object", ErrInvalidToolCall)
	}
	return Call{Name: name, Args: args}, nil
}

// Execute runs the named tool. Failures, including panics and unknown tools,
// come back as an unsuccessful Result; err is only set when the tool itself
// returned one so callers can tell a broken tool from a negative answer.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (result Result, err error) {
	ctx, span := tracer.Start(ctx, "execute tool")
	defer span.End()
	span.SetAttributes(attribute.String("tool.name", name))

	start := time.Now()
	defer func() {
		result.ExecutionTime = time.Since(start)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	tool, ok := r.Get(name)
	if !ok {
		err = fmt.Errorf("%w: %s", ErrToolNotFound, name)
		return Result{
			Success: false,
			Message: fmt.Sprintf("Tool not found: %s. Available tools: %s", name, strings.Join(r.Names(), ", ")),
		}, err
	}

	encoded, err := json.Marshal(args)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrInvalidInput, err)
		return Result{Message: err.Error()}, err
	}

	metadata := tool.Metadata()
	logger.InfoContext(ctx, "executing tool", "tool", name, "category", metadata.Category)

	result, err = func() (result Result, err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				err = fmt.Errorf("tool %s panicked: %v", name, recovered)
			}
		}()
		return tool.Execute(ctx, encoded)
	}()
	if err != nil {
		logger.ErrorContext(ctx, "tool execution failed", "tool", name, "error", err)
		return Result{Success: false, Message: fmt.Sprintf("Tool execution failed: %v", err)}, err
	}

	logger.InfoContext(ctx, "tool executed", "tool", name, "success", result.Success, "execution_time", time.Since(start))
	return result, nil
}
