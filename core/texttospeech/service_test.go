package texttospeech

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/luna/core/bus"
	"github.com/koscakluka/luna/core/correlation"
	"github.com/koscakluka/luna/core/events"
	"github.com/koscakluka/luna/core/service"
)

type fakeEngine struct {
	mu          sync.Mutex
	unavailable error
	speakErr    error
	block       chan struct{}
	spoken      []string
}

func (e *fakeEngine) Name() string { return "fake" }

func (e *fakeEngine) Available(context.Context) error { return e.unavailable }

func (e *fakeEngine) Speak(ctx context.Context, text string) error {
	if e.block != nil {
		select {
		case <-e.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.spoken = append(e.spoken, text)
	return e.speakErr
}

func (e *fakeEngine) said() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.spoken...)
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
	received := make(chan events.Event, 16)
	for _, kind := range kinds {
		b.Subscribe(kind, func(_ context.Context, event events.Event) error {
			received <- event
			return nil
		})
	}
	return received
}

func next(t *testing.T, received <-chan events.Event) events.Event {
	t.Helper()
	select {
	case event := <-received:
		return event
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for event")
	}
	return events.Event{}
}

func startService(t *testing.T, s *Service) {
	t.Helper()
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
}

func TestConversationResponseIsSpoken(t *testing.T) {
	b := newStartedBus(t)
	engine := &fakeEngine{}
	s := New(b, engine)
	startService(t, s)
	received := collect(b, events.KindSpeechSynthesisStarted, events.KindSpeechSynthesisCompleted)

	b.Publish(context.Background(), events.NewAgentResponse("Hello from L.U.N.A.", events.WithCorrelationID("flow-7")))

	got := map[events.Kind]events.Event{}
	for range 2 {
		event := next(t, received)
		got[event.Kind()] = event
	}
	completed, ok := got[events.KindSpeechSynthesisCompleted]
	if _, started := got[events.KindSpeechSynthesisStarted]; !started || !ok {
		t.Fatalf("expected started and completed events, got %v", got)
	}
	if id, _ := completed.CorrelationID(); id != correlation.ID("flow-7") {
		t.Fatalf("expected correlation id to be kept, got %q", id)
	}
	if said := engine.said(); len(said) != 1 || said[0] != "Hello from Luna" {
		t.Fatalf("expected cleaned text to be spoken, got %v", said)
	}
}

func TestToolResultsAreNotSpoken(t *testing.T) {
	b := newStartedBus(t)
	engine := &fakeEngine{}
	s := New(b, engine)
	startService(t, s)
	received := collect(b, events.KindSpeechSynthesisStarted)

	b.Publish(context.Background(), events.NewAgentToolResponse("done", "echo", true))

	select {
	case event := <-received:
		t.Fatalf("expected no speech for tool results, got %s", event.Kind())
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSpeechFailureIsPublished(t *testing.T) {
	b := newStartedBus(t)
	engine := &fakeEngine{speakErr: errors.New("no audio device")}
	s := New(b, engine)
	startService(t, s)
	received := collect(b, events.KindSpeechSynthesisFailed)

	if err := s.Enqueue(context.Background(), "hello"); err != nil {
		t.Fatalf("unexpected enqueue error: %v", err)
	}
	failed := next(t, received)
	if failed.String("text") != "hello" || failed.String("error") == "" {
		t.Fatalf("unexpected failure payload %v", failed.Payload())
	}
}

func TestStartStates(t *testing.T) {
	type testCase struct {
		name    string
		engine  Engine
		opts    []Option
		status  service.Status
		healthy bool
	}

	testCases := []testCase{
		{name: "available engine", engine: &fakeEngine{}, status: service.StatusHealthy, healthy: true},
		{name: "missing engine", engine: nil, status: service.StatusDegraded},
		{name: "unavailable engine", engine: &fakeEngine{unavailable: errors.New("espeak-ng not found")}, status: service.StatusDegraded},
		{name: "disabled", engine: nil, opts: []Option{WithEnabled(false)}, status: service.StatusHealthy, healthy: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b := newStartedBus(t)
			s := New(b, tc.engine, tc.opts...)
			startService(t, s)
			if s.Status() != tc.status {
				t.Fatalf("expected %s, got %s", tc.status, s.Status())
			}
			if got := s.HealthCheck(context.Background()); got != tc.healthy {
				t.Fatalf("expected health %v, got %v", tc.healthy, got)
			}
		})
	}
}

func TestDisabledServiceStaysSilent(t *testing.T) {
	b := newStartedBus(t)
	engine := &fakeEngine{}
	s := New(b, engine, WithEnabled(false))
	startService(t, s)

	if got := b.SubscriptionCount(events.KindAgentResponse); got != 0 {
		t.Fatalf("expected no agent response subscription, got %d", got)
	}
	if err := s.Enqueue(context.Background(), "hello"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestStopInterruptsSpeech(t *testing.T) {
	b := newStartedBus(t)
	engine := &fakeEngine{block: make(chan struct{})}
	s := New(b, engine)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	received := collect(b, events.KindSpeechSynthesisStarted)

	if err := s.Enqueue(context.Background(), "a long story"); err != nil {
		t.Fatalf("unexpected enqueue error: %v", err)
	}
	next(t, received)

	stopped := make(chan error, 1)
	go func() { stopped <- s.Stop(context.Background()) }()
	select {
	case err := <-stopped:
		if err != nil {
			t.Fatalf("unexpected stop error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected stop to interrupt speech in progress")
	}
	if s.Status() != service.StatusShutdown {
		t.Fatalf("expected shutdown status, got %s", s.Status())
	}
}

func TestQueueFullDropsSpeech(t *testing.T) {
	b := newStartedBus(t)
	engine := &fakeEngine{block: make(chan struct{})}
	s := New(b, engine, WithQueueSize(1))
	startService(t, s)
	received := collect(b, events.KindSpeechSynthesisStarted)

	if err := s.Enqueue(context.Background(), "first"); err != nil {
		t.Fatalf("unexpected enqueue error: %v", err)
	}
	next(t, received)
	if err := s.Enqueue(context.Background(), "second"); err != nil {
		t.Fatalf("unexpected enqueue error: %v", err)
	}
	if err := s.Enqueue(context.Background(), "third"); err == nil {
		t.Fatalf("expected a full queue to reject speech")
	}
	close(engine.block)
}
