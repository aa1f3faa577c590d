// Package agent turns user input into assistant replies and tool executions.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/koscakluka/luna/core/bus"
	"github.com/koscakluka/luna/core/correlation"
	"github.com/koscakluka/luna/core/events"
	"github.com/koscakluka/luna/core/llms"
	"github.com/koscakluka/luna/core/service"
	"github.com/koscakluka/luna/core/tools"
)

const (
	ServiceName = "agent-service"

	DefaultHistoryLimit  = 20
	DefaultAssistantName = "L.U.N.A."
)

type Agent struct {
	state service.State

	llm      llms.Client
	bus      *bus.Bus
	registry *tools.Registry

	assistantName string
	historyLimit  int
	nativeTools   bool

	subscriptionID string

	// turns serialises input processing so history stays in order.
	turns   sync.Mutex
	mu      sync.RWMutex
	history []llms.Message

	processed atomic.Int64
	failed    atomic.Int64
}

var _ service.Service = (*Agent)(nil)

type Option func(*Agent)

// WithHistoryLimit caps how many past messages are sent to the model.
func WithHistoryLimit(limit int) Option {
	return func(a *Agent) { a.historyLimit = limit }
}

func WithAssistantName(name string) Option {
	return func(a *Agent) { a.assistantName = name }
}

// WithNativeTools also passes tool definitions in the model's native format.
// Replies may then carry structured tool calls instead of JSON text.
func WithNativeTools(enabled bool) Option {
	return func(a *Agent) { a.nativeTools = enabled }
}

func New(llm llms.Client, eventBus *bus.Bus, registry *tools.Registry, opts ...Option) *Agent {
	if registry == nil {
		registry = tools.NewRegistry()
	}
	a := &Agent{
		llm:           llm,
		bus:           eventBus,
		registry:      registry,
		assistantName: DefaultAssistantName,
		historyLimit:  DefaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Agent) Name() string           { return ServiceName }
func (a *Agent) Status() service.Status { return a.state.Status() }

func (a *Agent) Start(ctx context.Context) error {
	if a.llm == nil || a.bus == nil {
		a.state.SetStatus(service.StatusFailed)
		return fmt.Errorf("agent requires an llm client and an event bus")
	}
	a.subscriptionID = a.bus.Subscribe(events.KindUserInput, a.handleUserInput)
	a.state.SetStatus(service.StatusHealthy)
	logger.InfoContext(ctx, "agent service started", "tools", len(a.registry.Names()))
	return nil
}

func (a *Agent) Stop(ctx context.Context) error {
	if a.subscriptionID != "" && a.bus != nil {
		a.bus.Unsubscribe(a.subscriptionID)
		a.subscriptionID = ""
	}
	a.state.SetStatus(service.StatusShutdown)
	logger.InfoContext(ctx, "agent service stopped")
	return nil
}

func (a *Agent) HealthCheck(ctx context.Context) bool {
	return a.state.IsHealthy() && a.llm.HealthCheck(ctx)
}

func (a *Agent) handleUserInput(ctx context.Context, event events.Event) error {
	text := strings.TrimSpace(event.String("text"))
	if text == "" {
		return nil
	}
	ctx, _ = correlation.Ensure(ctx)
	a.Process(ctx, text)
	return nil
}

// Process answers a single user input. Outcomes are reported as events on
// the bus, tagged with the correlation id found on ctx.
func (a *Agent) Process(ctx context.Context, input string) {
	a.turns.Lock()
	defer a.turns.Unlock()

	ctx, span := tracer.Start(ctx, "process user input")
	defer span.End()
	span.SetAttributes(attribute.Int("input.length", len(input)))

	logger.InfoContext(ctx, "processing user input", "input_length", len(input))
	a.appendHistory(llms.UserMessage(input))
	a.processed.Add(1)

	var opts []llms.PromptOption
	if a.nativeTools {
		opts = append(opts, llms.WithTools(a.registry.Definitions()...))
	}

	response, err := a.llm.Chat(ctx, a.buildMessages(), opts...)
	if err != nil {
		a.failed.Add(1)
		err = fmt.Errorf("error generating agent response: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.ErrorContext(ctx, "failed to generate agent response", "error", err)
		a.bus.Publish(ctx, events.NewAgentError(err.Error(), events.WithContext(ctx)))
		return
	}

	if call, ok := a.toolCall(ctx, response); ok {
		a.executeTool(ctx, call)
		return
	}

	a.appendHistory(llms.AssistantMessage(response.Content))
	a.bus.Publish(ctx, events.NewAgentResponse(response.Content, events.WithContext(ctx)))
}

func (a *Agent) toolCall(ctx context.Context, response llms.Response) (tools.Call, bool) {
	var raw map[string]any
	if len(response.ToolCalls) > 0 {
		native := response.ToolCalls[0]
		args := native.Arguments
		if args == nil {
			args = map[string]any{}
		}
		raw = map[string]any{"tool_name": native.Name, "tool_args": args}
	} else {
		var ok bool
		if raw, ok = tools.ParseCall(response.Content); !ok {
			return tools.Call{}, false
		}
	}

	call, err := a.registry.ValidateCall(raw)
	if err != nil {
		logger.WarnContext(ctx, "invalid tool call", "error", err)
		return tools.Call{}, false
	}
	return call, true
}

func (a *Agent) executeTool(ctx context.Context, call tools.Call) {
	logger.InfoContext(ctx, "executing tool", "tool", call.Name)
	a.bus.Publish(ctx, events.NewToolStarted(call.Name, call.Args, events.WithContext(ctx)))

	result, err := a.registry.Execute(ctx, call.Name, call.Args)
	a.appendHistory(llms.AssistantMessage(fmt.Sprintf("Tool '%s' executed. Result: %s", call.Name, result.Message)))

	if err != nil {
		a.failed.Add(1)
		message := fmt.Sprintf("Tool execution failed: %v", err)
		a.bus.Publish(ctx, events.NewToolFailed(call.Name, err.Error(), events.WithContext(ctx)))
		a.bus.Publish(ctx, events.New(events.KindAgentError,
			events.Payload{"error": message, "tool_name": call.Name},
			events.WithContext(ctx)))
		return
	}

	a.bus.Publish(ctx, events.NewToolCompleted(call.Name, resultPayload(result), events.WithContext(ctx)))
	a.bus.Publish(ctx, events.NewAgentToolResponse(result.Message, call.Name, result.Success, events.WithContext(ctx)))
}

func resultPayload(result tools.Result) map[string]any {
	payload := map[string]any{}
	encoded, err := json.Marshal(result)
	if err == nil {
		_ = json.Unmarshal(encoded, &payload)
	}
	payload["execution_time_ms"] = result.ExecutionTime.Milliseconds()
	delete(payload, "execution_time")
	return payload
}

func (a *Agent) buildMessages() []llms.Message {
	a.mu.RLock()
	defer a.mu.RUnlock()

	history := a.history
	if a.historyLimit > 0 && len(history) > a.historyLimit {
		history = history[len(history)-a.historyLimit:]
	}
	messages := make([]llms.Message, 0, len(history)+1)
	messages = append(messages, llms.SystemMessage(systemPrompt(a.assistantName, a.registry.Descriptions())))
	return append(messages, history...)
}

func (a *Agent) appendHistory(message llms.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = append(a.history, message)
}

// History returns a copy of the conversation so far.
func (a *Agent) History() []llms.Message {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]llms.Message(nil), a.history...)
}

func (a *Agent) ClearHistory() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = nil
	logger.Info("conversation history cleared")
}

type Stats struct {
	ConversationLength int
	Status             string
	ToolsAvailable     int
	Processed          int64
	Failed             int64
}

func (a *Agent) Stats() Stats {
	a.mu.RLock()
	length := len(a.history)
	a.mu.RUnlock()
	return Stats{
		ConversationLength: length,
		Status:             a.state.Status().String(),
		ToolsAvailable:     len(a.registry.Names()),
		Processed:          a.processed.Load(),
		Failed:             a.failed.Load(),
	}
}
