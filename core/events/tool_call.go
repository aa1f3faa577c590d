package events

const (
	// KindToolStarted identifies tool execution start.
	KindToolStarted Kind = "tool.started"
	// KindToolCompleted identifies successful tool completion.
	KindToolCompleted Kind = "tool.completed"
	// KindToolFailed identifies tool failure.
	KindToolFailed Kind = "tool.failed"
)

// NewToolStarted creates a tool started event.
func NewToolStarted(name string, args map[string]any, opts ...Option) Event {
	return New(KindToolStarted, Payload{"tool_name": name, "tool_args": args}, opts...)
}

// NewToolCompleted creates a tool completed event.
func NewToolCompleted(name string, result any, opts ...Option) Event {
	return New(KindToolCompleted, Payload{"tool_name": name, "result": result}, opts...)
}

// NewToolFailed creates a tool failed event.
func NewToolFailed(name, err string, opts ...Option) Event {
	return New(KindToolFailed, Payload{"tool_name": name, "error": err}, opts...)
}
