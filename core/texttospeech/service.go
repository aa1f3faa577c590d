package texttospeech

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/koscakluka/luna/core/bus"
	"github.com/koscakluka/luna/core/correlation"
	"github.com/koscakluka/luna/core/events"
	"github.com/koscakluka/luna/core/service"
)

const (
	ServiceName = "tts-service"

	DefaultQueueSize = 16
)

var ErrUnavailable = errors.New("text to speech not available")

type utterance struct {
	ctx  context.Context
	text string
}

// Service speaks conversational agent responses one at a time.
type Service struct {
	state service.State

	bus       *bus.Bus
	engine    Engine
	enabled   bool
	maxLength int
	queueSize int

	subscriptionID string
	queue          chan utterance
	cancel         context.CancelFunc
	done           chan struct{}
	mu             sync.Mutex
}

var _ service.Service = (*Service)(nil)

type Option func(*Service)

// WithEnabled turns speech off entirely. A disabled service stays healthy.
func WithEnabled(enabled bool) Option {
	return func(s *Service) { s.enabled = enabled }
}

func WithMaxLength(n int) Option {
	return func(s *Service) { s.maxLength = n }
}

func WithQueueSize(n int) Option {
	return func(s *Service) { s.queueSize = n }
}

func New(eventBus *bus.Bus, engine Engine, opts ...Option) *Service {
	s := &Service{
		bus:       eventBus,
		engine:    engine,
		enabled:   true,
		maxLength: DefaultMaxSpeechLength,
		queueSize: DefaultQueueSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Name() string           { return ServiceName }
func (s *Service) Status() service.Status { return s.state.Status() }

func (s *Service) Start(ctx context.Context) error {
	if s.bus == nil {
		s.state.SetStatus(service.StatusFailed)
		return fmt.Errorf("tts service requires an event bus")
	}
	if !s.enabled {
		s.state.SetStatus(service.StatusHealthy)
		logger.InfoContext(ctx, "tts service disabled by configuration")
		return nil
	}
	if s.engine == nil {
		s.state.SetStatus(service.StatusDegraded)
		logger.WarnContext(ctx, "tts service degraded: no engine configured")
		return nil
	}
	if err := s.engine.Available(ctx); err != nil {
		s.state.SetStatus(service.StatusDegraded)
		logger.WarnContext(ctx, "tts engine not available", "engine", s.engine.Name(), "error", err)
		return nil
	}

	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Lock()
	s.queue = make(chan utterance, max(s.queueSize, 1))
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.work(workerCtx, s.queue, s.done)
	s.mu.Unlock()

	s.subscriptionID = s.bus.Subscribe(events.KindAgentResponse, s.handleAgentResponse)
	s.state.SetStatus(service.StatusHealthy)
	logger.InfoContext(ctx, "tts service started", "engine", s.engine.Name())
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	if s.subscriptionID != "" {
		s.bus.Unsubscribe(s.subscriptionID)
		s.subscriptionID = ""
	}

	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done, s.queue = nil, nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			logger.WarnContext(ctx, "tts worker did not stop in time")
		}
	}

	s.state.SetStatus(service.StatusShutdown)
	logger.InfoContext(ctx, "tts service stopped")
	return nil
}

func (s *Service) HealthCheck(ctx context.Context) bool {
	if !s.enabled {
		return s.state.IsHealthy()
	}
	return s.state.IsHealthy() && s.engine != nil && s.engine.Available(ctx) == nil
}

func (s *Service) handleAgentResponse(ctx context.Context, event events.Event) error {
	if event.String("type") != events.ResponseTypeConversation {
		return nil
	}
	return s.Enqueue(ctx, event.String("text"))
}

// Enqueue schedules text to be spoken after anything already queued.
func (s *Service) Enqueue(ctx context.Context, text string) error {
	text = CleanText(text, s.maxLength)
	if text == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue == nil || !s.state.IsHealthy() {
		return ErrUnavailable
	}
	select {
	case s.queue <- utterance{ctx: context.WithoutCancel(ctx), text: text}:
		return nil
	default:
		return fmt.Errorf("speech queue full, dropping %d characters", len(text))
	}
}

func (s *Service) work(ctx context.Context, queue <-chan utterance, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-queue:
			s.speak(ctx, u)
		}
	}
}

func (s *Service) speak(workerCtx context.Context, u utterance) {
	ctx, span := tracer.Start(u.ctx, "speak")
	defer span.End()
	span.SetAttributes(attribute.String("engine", s.engine.Name()), attribute.Int("text.length", len(u.text)))

	// Stopping the service interrupts speech in progress.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(workerCtx, cancel)
	defer stop()

	var opts []events.Option
	if id, ok := correlation.FromContext(ctx); ok {
		opts = append(opts, events.WithCorrelationID(id))
	}

	s.bus.Publish(ctx, events.NewSpeechSynthesisStarted(u.text, opts...))
	logger.InfoContext(ctx, "speaking", "text_length", len(u.text))

	if err := s.engine.Speak(ctx, u.text); err != nil {
		err = fmt.Errorf("speech synthesis failed: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.ErrorContext(ctx, "speech synthesis failed", "error", err)
		s.bus.Publish(ctx, events.NewSpeechSynthesisFailed(u.text, err.Error(), opts...))
		return
	}
	s.bus.Publish(ctx, events.NewSpeechSynthesisCompleted(u.text, opts...))
}
