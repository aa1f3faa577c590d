package voice

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/luna/core/audio"
	"github.com/koscakluka/luna/core/bus"
	"github.com/koscakluka/luna/core/events"
	"github.com/koscakluka/luna/core/service"
	"github.com/koscakluka/luna/core/speechtotext"
)

type fakeCapturer struct {
	mu      sync.Mutex
	onAudio func([]byte)
	stopped int
	closed  bool
}

func (c *fakeCapturer) StartCapture(_ context.Context, onAudio func([]byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAudio = onAudio
	return nil
}

func (c *fakeCapturer) StopCapture() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAudio = nil
	c.stopped++
	return nil
}

func (c *fakeCapturer) EncodingInfo() audio.EncodingInfo { return audio.DefaultEncodingInfo() }

func (c *fakeCapturer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeCapturer) feed(chunk []byte) {
	c.mu.Lock()
	onAudio := c.onAudio
	c.mu.Unlock()
	if onAudio != nil {
		onAudio(chunk)
	}
}

type fakeTranscriber struct {
	mu      sync.Mutex
	options speechtotext.TranscriptionOptions
	sent    int
	stopped int
	openErr error
}

func (t *fakeTranscriber) Transcribe(_ context.Context, opts ...speechtotext.TranscriptionOption) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.openErr != nil {
		return t.openErr
	}
	t.options = speechtotext.NewTranscriptionOptions(opts...)
	return nil
}

func (t *fakeTranscriber) SendAudio([]byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent++
	return nil
}

func (t *fakeTranscriber) StopStream() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped++
	return nil
}

func (t *fakeTranscriber) callbacks() speechtotext.TranscriptionOptions {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.options
}

func newStartedBus(t *testing.T) *bus.Bus {
	t.Helper()
	b := bus.New()
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("start bus: %v", err)
	}
	t.Cleanup(func() { _ = b.Stop(context.Background()) })
	return b
}

func collect(b *bus.Bus, kinds ...events.Kind) <-chan events.Event {
	received := make(chan events.Event, 32)
	for _, kind := range kinds {
		b.Subscribe(kind, func(_ context.Context, event events.Event) error {
			received <- event
			return nil
		})
	}
	return received
}

// awaitKinds gathers events until one of each kind has arrived.
func awaitKinds(t *testing.T, received <-chan events.Event, kinds ...events.Kind) map[events.Kind]events.Event {
	t.Helper()
	got := map[events.Kind]events.Event{}
	deadline := time.After(time.Second)
	for {
		done := true
		for _, kind := range kinds {
			if _, ok := got[kind]; !ok {
				done = false
			}
		}
		if done {
			return got
		}
		select {
		case event := <-received:
			if _, ok := got[event.Kind()]; !ok {
				got[event.Kind()] = event
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %v, got %v", kinds, got)
		}
	}
}

func newHealthyService(t *testing.T, b *bus.Bus) (*Service, *fakeCapturer, *fakeTranscriber) {
	t.Helper()
	capturer := &fakeCapturer{}
	transcriber := &fakeTranscriber{}
	s := New(b,
		WithCapturer(func() (audio.Capturer, error) { return capturer, nil }),
		WithTranscriber(transcriber),
		WithFlushTimeout(10*time.Millisecond),
	)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	if s.Status() != service.StatusHealthy {
		t.Fatalf("expected healthy service, got %s", s.Status())
	}
	return s, capturer, transcriber
}

func TestStartDegradesWithoutDependencies(t *testing.T) {
	type testCase struct {
		name   string
		opts   []Option
		reason string
	}

	testCases := []testCase{
		{
			name:   "no backend",
			opts:   []Option{WithTranscriber(&fakeTranscriber{})},
			reason: "backend_unavailable",
		},
		{
			name: "no transcriber",
			opts: []Option{WithCapturer(func() (audio.Capturer, error) {
				return &fakeCapturer{}, nil
			})},
			reason: "transcriber_unavailable",
		},
		{
			name: "device fails to open",
			opts: []Option{
				WithTranscriber(&fakeTranscriber{}),
				WithCapturer(func() (audio.Capturer, error) { return nil, errors.New("no device") }),
			},
			reason: "device_unavailable",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b := newStartedBus(t)
			received := collect(b, events.KindAudioStatusChanged)

			s := New(b, tc.opts...)
			if err := s.Start(context.Background()); err != nil {
				t.Fatalf("expected degraded start without error, got %v", err)
			}
			if s.Status() != service.StatusDegraded {
				t.Fatalf("expected degraded status, got %s", s.Status())
			}
			if s.DegradedReason() != tc.reason {
				t.Fatalf("expected reason %q, got %q", tc.reason, s.DegradedReason())
			}
			if s.HealthCheck(context.Background()) {
				t.Fatalf("expected degraded service to fail its health check")
			}
			if err := s.StartRecording(context.Background()); !errors.Is(err, ErrUnavailable) {
				t.Fatalf("expected unavailable error, got %v", err)
			}

			event := awaitKinds(t, received, events.KindAudioStatusChanged)[events.KindAudioStatusChanged]
			if event.String("status") != "degraded" || event.String("reason") != tc.reason {
				t.Fatalf("expected degraded status event, got %v", event.Payload())
			}
		})
	}
}

func TestUtteranceBecomesUserInput(t *testing.T) {
	b := newStartedBus(t)
	s, capturer, transcriber := newHealthyService(t, b)
	received := collect(b,
		events.KindRecordingStarted,
		events.KindSpeechStarted,
		events.KindTranscriptionStarted,
		events.KindTranscriptionCompleted,
		events.KindUserInput,
	)

	if err := s.StartRecording(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.Recording() {
		t.Fatalf("expected service to be recording")
	}

	capturer.feed(tone(1000, 160))
	callbacks := transcriber.callbacks()
	callbacks.SpeechStartedCallback()
	callbacks.TranscriptionCallback("what time is it", 0.93)

	got := awaitKinds(t, received,
		events.KindRecordingStarted,
		events.KindSpeechStarted,
		events.KindTranscriptionStarted,
		events.KindTranscriptionCompleted,
		events.KindUserInput,
	)

	input := got[events.KindUserInput]
	if input.String("text") != "what time is it" || input.String("source") != events.SourceVoice {
		t.Fatalf("unexpected user input payload %v", input.Payload())
	}
	if confidence, _ := got[events.KindTranscriptionCompleted].Float("confidence"); confidence != 0.93 {
		t.Fatalf("expected confidence 0.93, got %v", confidence)
	}

	speechID, ok := got[events.KindSpeechStarted].CorrelationID()
	if !ok {
		t.Fatalf("expected speech started to carry a correlation id")
	}
	for _, kind := range []events.Kind{events.KindTranscriptionCompleted, events.KindUserInput} {
		if id, _ := got[kind].CorrelationID(); id != speechID {
			t.Fatalf("expected %s to share correlation id %q, got %q", kind, speechID, id)
		}
	}

	transcriber.mu.Lock()
	sent := transcriber.sent
	transcriber.mu.Unlock()
	if sent != 1 {
		t.Fatalf("expected one forwarded chunk, got %d", sent)
	}
}

func TestEachUtteranceGetsFreshCorrelation(t *testing.T) {
	b := newStartedBus(t)
	s, _, transcriber := newHealthyService(t, b)
	received := collect(b, events.KindUserInput)

	if err := s.StartRecording(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	callbacks := transcriber.callbacks()
	callbacks.TranscriptionCallback("first", 1)
	callbacks.TranscriptionCallback("second", 1)

	ids := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case event := <-received:
			id, ok := event.CorrelationID()
			if !ok {
				t.Fatalf("expected user input to carry a correlation id")
			}
			ids[id.String()] = true
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for user input")
		}
	}
	if len(ids) != 2 {
		t.Fatalf("expected distinct correlation ids, got %v", ids)
	}
}

func TestStopRecording(t *testing.T) {
	b := newStartedBus(t)
	s, capturer, transcriber := newHealthyService(t, b)
	received := collect(b, events.KindRecordingStopped)

	if err := s.StartRecording(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.StartRecording(context.Background()); err != nil {
		t.Fatalf("expected second start to be a no-op, got %v", err)
	}
	if err := s.StopRecording(context.Background()); err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}
	if s.Recording() {
		t.Fatalf("expected recording to stop")
	}
	awaitKinds(t, received, events.KindRecordingStopped)

	capturer.feed(tone(1000, 16))
	transcriber.mu.Lock()
	defer transcriber.mu.Unlock()
	if transcriber.stopped != 1 {
		t.Fatalf("expected transcription stream to be stopped once, got %d", transcriber.stopped)
	}
	if transcriber.sent != 0 {
		t.Fatalf("expected no audio after stop, got %d chunks", transcriber.sent)
	}
}

func TestStreamErrorStopsRecording(t *testing.T) {
	b := newStartedBus(t)
	s, _, transcriber := newHealthyService(t, b)
	received := collect(b, events.KindAudioError, events.KindTranscriptionFailed, events.KindRecordingStopped)

	if err := s.StartRecording(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	callbacks := transcriber.callbacks()
	callbacks.SpeechStartedCallback()
	callbacks.ErrorCallback(errors.New("socket closed"))

	got := awaitKinds(t, received, events.KindAudioError, events.KindTranscriptionFailed, events.KindRecordingStopped)
	if got[events.KindAudioError].String("error") != "socket closed" {
		t.Fatalf("unexpected audio error payload %v", got[events.KindAudioError].Payload())
	}
}

func TestStartRecordingFailsWhenStreamCannotOpen(t *testing.T) {
	b := newStartedBus(t)
	s, _, transcriber := newHealthyService(t, b)
	transcriber.openErr = errors.New("unauthorized")
	received := collect(b, events.KindAudioError)

	if err := s.StartRecording(context.Background()); err == nil {
		t.Fatalf("expected start recording to fail")
	}
	if s.Recording() {
		t.Fatalf("expected service not to be recording")
	}
	awaitKinds(t, received, events.KindAudioError)
}

func TestStopClosesDevice(t *testing.T) {
	b := newStartedBus(t)
	s, capturer, _ := newHealthyService(t, b)
	if err := s.StartRecording(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}
	if s.Status() != service.StatusShutdown {
		t.Fatalf("expected shutdown status, got %s", s.Status())
	}
	capturer.mu.Lock()
	defer capturer.mu.Unlock()
	if !capturer.closed || capturer.stopped != 1 {
		t.Fatalf("expected capture stopped and closed, got stopped=%d closed=%v", capturer.stopped, capturer.closed)
	}
}
