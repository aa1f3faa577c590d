package voice

import (
	"encoding/binary"
	"testing"
	"time"
)

func tone(amplitude int16, samples int) []byte {
	chunk := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := amplitude
		if i%2 == 1 {
			v = -amplitude
		}
		binary.LittleEndian.PutUint16(chunk[2*i:], uint16(v))
	}
	return chunk
}

func TestRMS(t *testing.T) {
	if got := rms(tone(1000, 64)); got < 999.9 || got > 1000.1 {
		t.Fatalf("expected rms 1000, got %v", got)
	}
	if got := rms(nil); got != 0 {
		t.Fatalf("expected rms of empty chunk to be 0, got %v", got)
	}
}

func TestVoiceGate(t *testing.T) {
	now := time.Unix(0, 0)
	gate := newVoiceGate(500, time.Second)
	gate.now = func() time.Time { return now }

	quiet := tone(10, 64)
	loud := tone(2000, 64)

	if gate.admit(quiet) {
		t.Fatalf("expected silence before speech to be dropped")
	}
	if !gate.admit(loud) {
		t.Fatalf("expected speech to be forwarded")
	}

	now = now.Add(500 * time.Millisecond)
	if !gate.admit(quiet) {
		t.Fatalf("expected trailing silence within the limit to be forwarded")
	}

	now = now.Add(time.Second)
	if gate.admit(quiet) {
		t.Fatalf("expected silence past the limit to be dropped")
	}
}

func TestVoiceGateDisabled(t *testing.T) {
	gate := newVoiceGate(0, time.Second)
	if !gate.admit(tone(0, 16)) {
		t.Fatalf("expected a disabled gate to forward everything")
	}
}
