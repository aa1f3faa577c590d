package audio

import (
	"fmt"
	"time"
)

const (
	DefaultSampleRate = 16000
	DefaultChannels   = 1
	DefaultFormat     = EncodingLinear16
)

// Format names a raw sample encoding.
type Format string

const (
	EncodingMulaw    Format = "mulaw"
	EncodingALaw     Format = "alaw"
	EncodingLinear16 Format = "linear16"
)

func (f Format) Name() string { return string(f) }

// ByteSize is the size of one sample in bytes, or -1 for unknown formats.
func (f Format) ByteSize() int {
	switch f {
	case EncodingMulaw, EncodingALaw:
		return 1
	case EncodingLinear16:
		return 2
	}
	return -1
}

func DefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: DefaultSampleRate, Channels: DefaultChannels, Format: DefaultFormat}
}

// EncodingInfo describes a raw PCM stream. A zero Channels means mono.
type EncodingInfo struct {
	SampleRate int
	Channels   int
	Format     Format
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format.Name() == ""
}

func (e EncodingInfo) channels() int {
	if e.Channels <= 0 {
		return 1
	}
	return e.Channels
}

func (e EncodingInfo) Validate() error {
	if e.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", e.SampleRate)
	}
	if e.Format.ByteSize() < 0 {
		return fmt.Errorf("unsupported format %q", e.Format)
	}
	return nil
}

// FrameSize is the number of bytes holding one sample for every channel.
func (e EncodingInfo) FrameSize() int {
	return e.Format.ByteSize() * e.channels()
}

func (e EncodingInfo) BytesPerSecond() int {
	return e.SampleRate * e.FrameSize()
}

// BytesFor returns the buffer size holding d worth of audio.
func (e EncodingInfo) BytesFor(d time.Duration) int {
	return int(int64(e.BytesPerSecond()) * int64(d) / int64(time.Second))
}

// Duration returns how long n bytes of audio play for.
func (e EncodingInfo) Duration(n int) time.Duration {
	bps := e.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(bps))
}

// SilenceValue is the byte that encodes silence in this format.
func (e EncodingInfo) SilenceValue() byte {
	switch e.Format {
	case EncodingALaw:
		return 0x55
	case EncodingMulaw:
		return 0xFF
	}
	return 0
}

// Silence returns d worth of encoded silence.
func (e EncodingInfo) Silence(d time.Duration) []byte {
	chunk := make([]byte, e.BytesFor(d))
	if v := e.SilenceValue(); v != 0 {
		for i := range chunk {
			chunk[i] = v
		}
	}
	return chunk
}
