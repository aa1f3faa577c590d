// Package voice captures microphone audio, streams it to a transcriber and
// turns finished utterances into user input.
package voice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/koscakluka/luna/core/audio"
	"github.com/koscakluka/luna/core/bus"
	"github.com/koscakluka/luna/core/correlation"
	"github.com/koscakluka/luna/core/events"
	"github.com/koscakluka/luna/core/service"
	"github.com/koscakluka/luna/core/speechtotext"
)

const (
	ServiceName = "audio-service"

	StatusListening = "listening"
	StatusIdle      = "idle"

	// DefaultFlushTimeout bounds how long a stopped stream may still
	// deliver results.
	DefaultFlushTimeout = 2 * time.Second
)

var ErrUnavailable = errors.New("audio service not healthy")

// CapturerFactory opens the capture device. It is called once on Start.
type CapturerFactory func() (audio.Capturer, error)

type Service struct {
	state service.State

	bus            *bus.Bus
	openCapturer   CapturerFactory
	transcriber    speechtotext.Transcriber
	silenceLimit   time.Duration
	threshold      int
	flushTimeout   time.Duration
	degradedReason string
	capturer       audio.Capturer
	encoding       audio.EncodingInfo

	mu         sync.Mutex
	recording  bool
	streamStop context.CancelFunc
	gate       *voiceGate
	utterance  correlation.ID
}

var _ service.Service = (*Service)(nil)

type Option func(*Service)

func WithCapturer(factory CapturerFactory) Option {
	return func(s *Service) { s.openCapturer = factory }
}

func WithTranscriber(transcriber speechtotext.Transcriber) Option {
	return func(s *Service) { s.transcriber = transcriber }
}

// WithVoiceGate drops chunks quieter than threshold once silence has lasted
// longer than limit. A zero threshold forwards everything.
func WithVoiceGate(threshold int, limit time.Duration) Option {
	return func(s *Service) {
		s.threshold = threshold
		s.silenceLimit = limit
	}
}

func WithFlushTimeout(d time.Duration) Option {
	return func(s *Service) { s.flushTimeout = d }
}

func New(eventBus *bus.Bus, opts ...Option) *Service {
	s := &Service{bus: eventBus, flushTimeout: DefaultFlushTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Name() string           { return ServiceName }
func (s *Service) Status() service.Status { return s.state.Status() }

// Start never fails because audio is missing; the service degrades and
// the application falls back to text input.
func (s *Service) Start(ctx context.Context) error {
	if s.bus == nil {
		s.state.SetStatus(service.StatusFailed)
		return fmt.Errorf("audio service requires an event bus")
	}

	switch {
	case s.openCapturer == nil:
		s.degrade(ctx, "backend_unavailable")
		return nil
	case s.transcriber == nil:
		s.degrade(ctx, "transcriber_unavailable")
		return nil
	}

	capturer, err := s.openCapturer()
	if err != nil {
		logger.WarnContext(ctx, "failed to open capture device", "error", err)
		s.degrade(ctx, "device_unavailable")
		return nil
	}
	s.capturer = capturer
	s.encoding = capturer.EncodingInfo()

	s.state.SetStatus(service.StatusHealthy)
	s.bus.Publish(ctx, events.New(events.KindAudioStatusChanged, events.Payload{"status": service.StatusHealthy.String()}))
	logger.InfoContext(ctx, "audio service started", "sample_rate", s.encoding.SampleRate)
	return nil
}

func (s *Service) degrade(ctx context.Context, reason string) {
	s.degradedReason = reason
	s.state.SetStatus(service.StatusDegraded)
	s.bus.Publish(ctx, events.New(events.KindAudioStatusChanged, events.Payload{
		"status": service.StatusDegraded.String(),
		"reason": reason,
	}))
	logger.WarnContext(ctx, "audio service degraded", "reason", reason)
}

// DegradedReason explains a Degraded status, empty otherwise.
func (s *Service) DegradedReason() string { return s.degradedReason }

func (s *Service) Stop(ctx context.Context) error {
	var errs []error
	if err := s.StopRecording(ctx); err != nil {
		errs = append(errs, err)
	}

	s.mu.Lock()
	if s.streamStop != nil {
		s.streamStop()
		s.streamStop = nil
	}
	s.mu.Unlock()

	if s.capturer != nil {
		s.capturer.Close()
		s.capturer = nil
	}
	s.state.SetStatus(service.StatusShutdown)
	logger.InfoContext(ctx, "audio service stopped")
	return errors.Join(errs...)
}

func (s *Service) HealthCheck(_ context.Context) bool {
	return s.state.IsHealthy()
}

// Recording reports whether audio is currently being captured.
func (s *Service) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording
}

// StartRecording opens a transcription stream and starts capturing. It is
// a no-op while already recording.
func (s *Service) StartRecording(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "start recording")
	defer span.End()

	if !s.state.IsHealthy() {
		span.SetStatus(codes.Error, ErrUnavailable.Error())
		return ErrUnavailable
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recording {
		logger.WarnContext(ctx, "recording already in progress")
		return nil
	}
	if s.streamStop != nil {
		s.streamStop()
	}

	streamCtx, streamStop := context.WithCancel(context.WithoutCancel(ctx))
	err := s.transcriber.Transcribe(streamCtx,
		speechtotext.WithEncodingInfo(s.encoding),
		speechtotext.WithSpeechStartedCallback(func() { s.onSpeechStarted(streamCtx) }),
		speechtotext.WithTranscriptionCallback(func(text string, confidence float64) {
			s.onTranscription(streamCtx, text, confidence)
		}),
		speechtotext.WithErrorCallback(func(err error) { s.onStreamError(streamCtx, err) }),
	)
	if err != nil {
		streamStop()
		err = fmt.Errorf("failed to open transcription stream: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.bus.Publish(ctx, events.NewAudioError(err.Error(), events.WithContext(ctx)))
		return err
	}

	s.gate = newVoiceGate(s.threshold, s.silenceLimit)
	if err := s.capturer.StartCapture(streamCtx, s.onAudio); err != nil {
		_ = s.transcriber.StopStream()
		streamStop()
		err = fmt.Errorf("failed to start capture: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.bus.Publish(ctx, events.NewAudioError(err.Error(), events.WithContext(ctx)))
		return err
	}

	s.recording = true
	s.streamStop = streamStop
	s.utterance = ""

	s.bus.Publish(ctx, events.NewRecordingStarted(events.WithContext(ctx)))
	s.bus.Publish(ctx, events.NewAudioStatusChanged(StatusListening))
	logger.InfoContext(ctx, "started audio recording")
	return nil
}

// StopRecording stops capturing and lets the transcriber flush what it has.
func (s *Service) StopRecording(ctx context.Context) error {
	s.mu.Lock()
	if !s.recording {
		s.mu.Unlock()
		return nil
	}
	s.recording = false
	streamStop := s.streamStop
	s.mu.Unlock()

	var errs []error
	if err := s.capturer.StopCapture(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop capture: %w", err))
	}
	if err := s.transcriber.StopStream(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop transcription stream: %w", err))
	}
	if streamStop != nil {
		time.AfterFunc(s.flushTimeout, streamStop)
	}

	s.bus.Publish(ctx, events.NewRecordingStopped(events.WithContext(ctx)))
	s.bus.Publish(ctx, events.NewAudioStatusChanged(StatusIdle))
	logger.InfoContext(ctx, "stopped audio recording")
	return errors.Join(errs...)
}

func (s *Service) onAudio(chunk []byte) {
	s.mu.Lock()
	if !s.recording {
		s.mu.Unlock()
		return
	}
	forward := s.gate.admit(chunk)
	s.mu.Unlock()
	if !forward {
		return
	}

	if err := s.transcriber.SendAudio(chunk); err != nil {
		logger.Debug("failed to forward audio", "error", err)
	}
}

// currentUtterance returns the correlation id of the utterance in progress,
// starting a new one when needed.
func (s *Service) currentUtterance() (id correlation.ID, started bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.utterance.IsZero() {
		s.utterance = correlation.New()
		return s.utterance, true
	}
	return s.utterance, false
}

func (s *Service) endUtterance() correlation.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.utterance
	s.utterance = ""
	return id
}

func (s *Service) onSpeechStarted(ctx context.Context) {
	id, started := s.currentUtterance()
	if !started {
		return
	}
	ctx = correlation.With(ctx, id)
	s.bus.Publish(ctx, events.NewSpeechStarted(events.WithCorrelationID(id)))
	s.bus.Publish(ctx, events.NewTranscriptionStarted(events.WithCorrelationID(id)))
}

func (s *Service) onTranscription(ctx context.Context, text string, confidence float64) {
	id := s.endUtterance()
	if id.IsZero() {
		id = correlation.New()
	}
	ctx = correlation.With(ctx, id)

	logger.InfoContext(ctx, "transcribed speech", "text_length", len(text), "confidence", confidence)
	s.bus.Publish(ctx, events.NewTranscriptionCompleted(text, confidence, events.WithCorrelationID(id)))
	s.bus.Publish(ctx, events.NewUserInput(text, events.SourceVoice, events.WithCorrelationID(id)))
}

func (s *Service) onStreamError(ctx context.Context, err error) {
	if id := s.endUtterance(); !id.IsZero() {
		s.bus.Publish(ctx, events.NewTranscriptionFailed(err.Error(), events.WithCorrelationID(id)))
	}
	logger.ErrorContext(ctx, "transcription stream failed", "error", err)
	s.bus.Publish(ctx, events.NewAudioError(err.Error()))

	go func() {
		if err := s.StopRecording(context.WithoutCancel(ctx)); err != nil {
			logger.WarnContext(ctx, "failed to stop recording after stream error", "error", err)
		}
	}()
}
