package events

const (
	// KindAgentResponse identifies a finished assistant reply.
	KindAgentResponse Kind = "agent.response"
	// KindAgentError identifies a failed user request.
	KindAgentError Kind = "agent.error"
)

const (
	ResponseTypeConversation = "conversation"
	ResponseTypeToolResult   = "tool_result"
)

// NewAgentResponse creates a conversational reply event.
func NewAgentResponse(text string, opts ...Option) Event {
	return New(KindAgentResponse, Payload{"text": text, "type": ResponseTypeConversation}, opts...)
}

// NewAgentToolResponse creates a reply event describing a tool result.
func NewAgentToolResponse(text, toolName string, success bool, opts ...Option) Event {
	return New(KindAgentResponse, Payload{
		"text":      text,
		"type":      ResponseTypeToolResult,
		"tool_name": toolName,
		"success":   success,
	}, opts...)
}

// NewAgentError creates an agent error event.
func NewAgentError(err string, opts ...Option) Event {
	return New(KindAgentError, Payload{"error": err}, opts...)
}
