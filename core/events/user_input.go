package events

// KindUserInput identifies text entered by the user or transcribed from speech.
const KindUserInput Kind = "user_input"

const (
	SourceText  = "text"
	SourceVoice = "voice"
)

// NewUserInput creates a user input event.
func NewUserInput(text, source string, opts ...Option) Event {
	return New(KindUserInput, Payload{"text": text, "source": source}, opts...)
}
