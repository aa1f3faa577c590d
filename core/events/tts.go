package events

const (
	KindSpeechSynthesisStarted   Kind = "tts.speech_started"
	KindSpeechSynthesisCompleted Kind = "tts.speech_completed"
	KindSpeechSynthesisFailed    Kind = "tts.speech_failed"
)

func NewSpeechSynthesisStarted(text string, opts ...Option) Event {
	return New(KindSpeechSynthesisStarted, Payload{"text": text}, opts...)
}

func NewSpeechSynthesisCompleted(text string, opts ...Option) Event {
	return New(KindSpeechSynthesisCompleted, Payload{"text": text}, opts...)
}

func NewSpeechSynthesisFailed(text, err string, opts ...Option) Event {
	return New(KindSpeechSynthesisFailed, Payload{"text": text, "error": err}, opts...)
}
