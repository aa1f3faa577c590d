// Package llms defines the provider-neutral chat types used by the agent.
package llms

// MessageRole describes who a message is from.
type MessageRole string

const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleTool      MessageRole = "tool"
)

// Message is a single entry of a chat conversation.
type Message struct {
	Role    MessageRole
	Content string
}

func SystemMessage(content string) Message { return Message{Role: MessageRoleSystem, Content: content} }
func UserMessage(content string) Message   { return Message{Role: MessageRoleUser, Content: content} }
func AssistantMessage(content string) Message {
	return Message{Role: MessageRoleAssistant, Content: content}
}

// Response is a single reply from an LLM.
type Response struct {
	Content string
	// ToolCalls are natively structured tool calls, only returned when tools
	// were passed with WithTools.
	ToolCalls []ToolCall
	Usage     Usage
}

type ToolCall struct {
	Name      string
	Arguments map[string]any
}

type Usage struct {
	// InputTokens represents the number of input tokens.
	InputTokens int
	// OutputTokens represents the number of output tokens.
	OutputTokens int
	// TotalTime represents the total time the provider reported for the
	// request, in seconds.
	//
	// Note: This might be just an approximation.
	TotalTime float64
}

func (u Usage) TotalTokens() int { return u.InputTokens + u.OutputTokens }
