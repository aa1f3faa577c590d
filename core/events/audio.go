package events

const (
	KindRecordingStarted       Kind = "audio.recording_started"
	KindRecordingStopped       Kind = "audio.recording_stopped"
	KindSpeechStarted          Kind = "audio.speech_started"
	KindTranscriptionStarted   Kind = "audio.transcription_started"
	KindTranscriptionCompleted Kind = "audio.transcription_completed"
	KindTranscriptionFailed    Kind = "audio.transcription_failed"
	KindAudioStatusChanged     Kind = "audio.status_changed"
	KindAudioError             Kind = "audio.error"
)

func NewRecordingStarted(opts ...Option) Event {
	return New(KindRecordingStarted, nil, opts...)
}

func NewRecordingStopped(opts ...Option) Event {
	return New(KindRecordingStopped, nil, opts...)
}

func NewSpeechStarted(opts ...Option) Event {
	return New(KindSpeechStarted, nil, opts...)
}

func NewTranscriptionStarted(opts ...Option) Event {
	return New(KindTranscriptionStarted, nil, opts...)
}

// NewTranscriptionCompleted carries the final transcript of one utterance.
func NewTranscriptionCompleted(text string, confidence float64, opts ...Option) Event {
	return New(KindTranscriptionCompleted, Payload{"text": text, "confidence": confidence}, opts...)
}

func NewTranscriptionFailed(err string, opts ...Option) Event {
	return New(KindTranscriptionFailed, Payload{"error": err}, opts...)
}

// NewAudioStatusChanged reports the audio pipeline status, e.g. "listening".
func NewAudioStatusChanged(status string, opts ...Option) Event {
	return New(KindAudioStatusChanged, Payload{"status": status}, opts...)
}

func NewAudioError(err string, opts ...Option) Event {
	return New(KindAudioError, Payload{"error": err}, opts...)
}
