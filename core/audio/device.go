// Package audio holds raw audio encoding helpers and the device contracts
// implemented by the capture and playback backends.
package audio

import "context"

// Capturer streams microphone audio. onAudio is called from the backend's
// own goroutine and must not retain the slice.
type Capturer interface {
	StartCapture(ctx context.Context, onAudio func(audio []byte)) error
	StopCapture() error
	EncodingInfo() EncodingInfo
	Close()
}

// Player queues audio for playback.
type Player interface {
	SendAudio(audio []byte) error
	// ClearBuffer drops everything queued and not yet played.
	ClearBuffer()
	// AwaitMark blocks until everything queued so far has been played.
	AwaitMark() error
	EncodingInfo() EncodingInfo
}

const (
	BackendMiniaudio = "miniaudio"
	BackendPortaudio = "portaudio"
)
