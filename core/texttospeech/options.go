// Package texttospeech speaks assistant replies through a pluggable engine.
package texttospeech

import (
	"context"

	"github.com/koscakluka/luna/core/audio"
)

// Engine turns text into audible speech.
type Engine interface {
	Name() string
	// Available returns nil when the engine is ready to speak.
	Available(ctx context.Context) error
	// Speak blocks until text has been spoken or ctx is done.
	Speak(ctx context.Context, text string) error
}

type TextToSpeechOptions struct {
	// SpeechAudioCallback is called with every chunk of generated audio.
	SpeechAudioCallback func(audio []byte)
	// SpeechMarkCallback is called with the text spoken up to each mark.
	// Each mark is reported once.
	SpeechMarkCallback func(string)
	// SpeechEndedCallback is called once all requested speech is generated.
	SpeechEndedCallback func()
	// ErrorCallback is called when generation fails after it started,
	// which usually means the generator has been cancelled.
	ErrorCallback func(error)

	EncodingInfo audio.EncodingInfo
}

type TextToSpeechOption func(*TextToSpeechOptions)

func NewTextToSpeechOptions(opts ...TextToSpeechOption) TextToSpeechOptions {
	options := TextToSpeechOptions{
		SpeechAudioCallback: func([]byte) {},
		SpeechMarkCallback:  func(string) {},
		SpeechEndedCallback: func() {},
		ErrorCallback:       func(error) {},
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

func WithSpeechAudioCallback(callback func([]byte)) TextToSpeechOption {
	return func(o *TextToSpeechOptions) { o.SpeechAudioCallback = callback }
}

func WithSpeechMarkCallback(callback func(string)) TextToSpeechOption {
	return func(o *TextToSpeechOptions) { o.SpeechMarkCallback = callback }
}

func WithSpeechEndedCallback(callback func()) TextToSpeechOption {
	return func(o *TextToSpeechOptions) { o.SpeechEndedCallback = callback }
}

func WithErrorCallback(callback func(error)) TextToSpeechOption {
	return func(o *TextToSpeechOptions) { o.ErrorCallback = callback }
}

// WithEncodingInfo is ignored for incomplete encodings.
func WithEncodingInfo(encodingInfo audio.EncodingInfo) TextToSpeechOption {
	return func(o *TextToSpeechOptions) {
		if encodingInfo.IsZero() {
			return
		}
		o.EncodingInfo = encodingInfo
	}
}

// SpeechGenerator streams text into speech.
type SpeechGenerator interface {
	// SendText queues text. Speech is generated in the order text is sent.
	//
	// SendText errors once EndOfText, Cancel or Close has been called.
	SendText(string) error
	// Mark seals the text sent so far. The mark is reported after that text
	// has been generated, though not necessarily exactly at that point.
	Mark() error
	// EndOfText signals that no more text follows. The generator closes
	// itself once the remaining speech has been generated.
	EndOfText() error
	// Cancel drops pending speech and closes the generator.
	Cancel() error
	// Close closes the generator immediately. Repeated calls are ignored.
	Close() error
}
