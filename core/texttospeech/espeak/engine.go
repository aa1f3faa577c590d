// Package espeak speaks text through the espeak-ng command line synthesizer.
package espeak

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/koscakluka/luna/core/logging"
	"github.com/koscakluka/luna/core/texttospeech"
	"github.com/koscakluka/luna/internal/utils"
)

var logger = logging.NewLogger("github.com/koscakluka/luna/core/texttospeech/espeak")

const (
	DefaultBinary = "espeak-ng"
	DefaultVoice  = "en"
	DefaultSpeed  = 175
	DefaultPitch  = 50
	DefaultVolume = 100

	probeTimeout = 5 * time.Second
)

type Engine struct {
	binary string
	voice  string
	speed  int
	pitch  int
	volume int

	run      utils.Runner
	lookPath func(string) (string, error)
}

var _ texttospeech.Engine = (*Engine)(nil)

type Option func(*Engine)

// WithBinary selects the synthesizer executable, e.g. "espeak".
func WithBinary(binary string) Option {
	return func(e *Engine) { e.binary = binary }
}

func WithVoice(voice string) Option {
	return func(e *Engine) { e.voice = voice }
}

// WithSpeed sets the speaking rate in words per minute.
func WithSpeed(wpm int) Option {
	return func(e *Engine) { e.speed = wpm }
}

func WithPitch(pitch int) Option {
	return func(e *Engine) { e.pitch = pitch }
}

// WithVolume sets the amplitude, 0 to 200.
func WithVolume(volume int) Option {
	return func(e *Engine) { e.volume = volume }
}

func WithRunner(run utils.Runner) Option {
	return func(e *Engine) { e.run = run }
}

func WithLookPath(lookPath func(string) (string, error)) Option {
	return func(e *Engine) { e.lookPath = lookPath }
}

func New(opts ...Option) *Engine {
	e := &Engine{
		binary:   DefaultBinary,
		voice:    DefaultVoice,
		speed:    DefaultSpeed,
		pitch:    DefaultPitch,
		volume:   DefaultVolume,
		run:      utils.ExecRunner,
		lookPath: exec.LookPath,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Name() string { return e.binary }

func (e *Engine) Available(ctx context.Context) error {
	if _, err := e.lookPath(e.binary); err != nil {
		return fmt.Errorf("%s not found in PATH: %w", e.binary, err)
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if _, err := e.run(ctx, e.binary, "--version"); err != nil {
		return fmt.Errorf("%s probe failed: %w", e.binary, err)
	}
	return nil
}

func (e *Engine) Speak(ctx context.Context, text string) error {
	_, err := e.run(ctx, e.binary, e.args(text)...)
	if err != nil {
		return err
	}
	logger.DebugContext(ctx, "speech completed", "text_length", len(text))
	return nil
}

func (e *Engine) args(text string) []string {
	return []string{
		"-v", e.voice,
		"-s", strconv.Itoa(e.speed),
		"-p", strconv.Itoa(e.pitch),
		"-a", strconv.Itoa(e.volume),
		"--", text,
	}
}
