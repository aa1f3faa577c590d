package voice

import (
	"encoding/binary"
	"math"
	"time"
)

// voiceGate is a local energy detector over linear16 chunks. Audio is let
// through while someone speaks and for hangover after the last loud chunk,
// so the recogniser still sees the trailing silence it endpoints on.
type voiceGate struct {
	threshold float64
	hangover  time.Duration
	now       func() time.Time

	speaking  bool
	lastVoice time.Time
}

func newVoiceGate(threshold int, hangover time.Duration) *voiceGate {
	return &voiceGate{threshold: float64(threshold), hangover: hangover, now: time.Now}
}

// admit reports whether chunk should be forwarded.
func (g *voiceGate) admit(chunk []byte) bool {
	if g.threshold <= 0 {
		return true
	}

	now := g.now()
	if rms(chunk) >= g.threshold {
		g.speaking = true
		g.lastVoice = now
		return true
	}

	if g.speaking && now.Sub(g.lastVoice) > g.hangover {
		g.speaking = false
	}
	return g.speaking
}

// rms of little endian signed 16 bit samples.
func rms(chunk []byte) float64 {
	samples := len(chunk) / 2
	if samples == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < samples; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(chunk[2*i:])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(samples))
}
