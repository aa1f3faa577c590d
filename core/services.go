package orchestration

import (
	"context"
	"fmt"

	"github.com/koscakluka/luna/core/agent"
	"github.com/koscakluka/luna/core/audio"
	"github.com/koscakluka/luna/core/audio/miniaudio"
	"github.com/koscakluka/luna/core/audio/portaudio"
	"github.com/koscakluka/luna/core/bus"
	"github.com/koscakluka/luna/core/container"
	"github.com/koscakluka/luna/core/llms"
	"github.com/koscakluka/luna/core/llms/ollama"
	sttdeepgram "github.com/koscakluka/luna/core/speechtotext/deepgram"
	"github.com/koscakluka/luna/core/texttospeech"
	ttsdeepgram "github.com/koscakluka/luna/core/texttospeech/deepgram"
	"github.com/koscakluka/luna/core/texttospeech/espeak"
	"github.com/koscakluka/luna/core/tools"
	"github.com/koscakluka/luna/core/tools/desktop"
	"github.com/koscakluka/luna/core/ui"
	"github.com/koscakluka/luna/core/voice"
	"github.com/koscakluka/luna/internal/utils"
)

// Container keys for everything the application wires together.
var (
	BusKey    = container.NewKey[*bus.Bus]("event_bus")
	LLMKey    = container.NewKey[llms.Client]("llm")
	ToolsKey  = container.NewKey[*tools.Registry]("tool_registry")
	AgentKey  = container.NewKey[*agent.Agent]("agent")
	VoiceKey  = container.NewKey[*voice.Service]("voice")
	SpeechKey = container.NewKey[*texttospeech.Service]("speech")
	UIKey     = container.NewKey[*ui.UI]("ui")
)

const (
	ttsEngineEspeak   = "espeak-ng"
	ttsEngineDeepgram = "deepgram"

	// Deepgram speak output played back locally.
	speechSampleRate = 24000
)

func (a *Application) registerDefaults() {
	cfg := a.cfg

	container.RegisterFactory(a.container, LLMKey, func(context.Context, container.Deps) (llms.Client, error) {
		return ollama.NewClient(cfg.LLM.BaseURL,
			ollama.WithModel(cfg.LLM.ModelName),
			ollama.WithTemperature(cfg.LLM.Temperature),
			ollama.WithTimeout(cfg.LLM.Timeout),
			ollama.WithMaxRetries(cfg.LLM.MaxRetries),
			ollama.WithCircuitBreaker(ollama.NewCircuitBreaker(cfg.LLM.FailureThreshold, cfg.LLM.RecoveryTimeout)),
		), nil
	})

	container.RegisterFactory(a.container, ToolsKey, func(context.Context, container.Deps) (*tools.Registry, error) {
		return tools.NewRegistry(desktop.Tools(utils.ExecRunner)...), nil
	})

	container.RegisterFactory(a.container, AgentKey, func(_ context.Context, deps container.Deps) (*agent.Agent, error) {
		llm, err := container.MustResolve(deps, LLMKey)
		if err != nil {
			return nil, err
		}
		registry, err := container.MustResolve(deps, ToolsKey)
		if err != nil {
			return nil, err
		}
		eventBus, err := container.MustResolve(deps, BusKey)
		if err != nil {
			return nil, err
		}
		return agent.New(llm, eventBus, registry,
			agent.WithHistoryLimit(cfg.Agent.HistoryLimit),
			agent.WithAssistantName(cfg.AppName),
		), nil
	}, LLMKey, ToolsKey, BusKey)

	container.RegisterFactory(a.container, VoiceKey, func(_ context.Context, deps container.Deps) (*voice.Service, error) {
		eventBus, err := container.MustResolve(deps, BusKey)
		if err != nil {
			return nil, err
		}

		opts := []voice.Option{voice.WithVoiceGate(cfg.Audio.SilenceThreshold, cfg.Audio.SilenceLimit)}
		if cfg.Audio.Enabled {
			opts = append(opts, voice.WithCapturer(a.openCapturer))
		}
		if cfg.STT.APIKey != "" {
			opts = append(opts, voice.WithTranscriber(sttdeepgram.NewTranscriptionClient(cfg.STT.APIKey,
				sttdeepgram.WithModel(cfg.STT.Model),
				sttdeepgram.WithLanguage(cfg.STT.Language),
				sttdeepgram.WithEndpointing(cfg.STT.Endpointing),
			)))
		}
		return voice.New(eventBus, opts...), nil
	}, BusKey)

	container.RegisterFactory(a.container, SpeechKey, func(ctx context.Context, deps container.Deps) (*texttospeech.Service, error) {
		eventBus, err := container.MustResolve(deps, BusKey)
		if err != nil {
			return nil, err
		}

		var engine texttospeech.Engine
		if cfg.TTS.Enabled {
			engine, err = a.newSpeechEngine(ctx)
			if err != nil {
				return nil, err
			}
		}
		return texttospeech.New(eventBus, engine, texttospeech.WithEnabled(cfg.TTS.Enabled)), nil
	}, BusKey)
}

// openCapturer opens the configured capture backend.
func (a *Application) openCapturer() (audio.Capturer, error) {
	cfg := a.cfg.Audio
	switch cfg.Backend {
	case audio.BackendPortaudio:
		client, err := portaudio.NewClient(cfg.SampleRate, cfg.ChunkSize, cfg.InputDeviceIndex)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		client, err := miniaudio.NewClient(audio.EncodingInfo{
			SampleRate: cfg.SampleRate,
			Channels:   cfg.Channels,
			Format:     audio.EncodingLinear16,
		}, miniaudio.WithPlayback(false), miniaudio.WithInputDevice(cfg.InputDeviceIndex))
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

func (a *Application) newSpeechEngine(ctx context.Context) (texttospeech.Engine, error) {
	cfg := a.cfg.TTS
	switch cfg.Engine {
	case ttsEngineDeepgram:
		opts := []ttsdeepgram.Option{}
		player, err := miniaudio.NewClient(audio.EncodingInfo{
			SampleRate: speechSampleRate,
			Channels:   audio.DefaultChannels,
			Format:     audio.EncodingLinear16,
		}, miniaudio.WithCapture(false))
		if err != nil {
			// Without a player the engine reports itself unavailable and the
			// service degrades.
			logger.WarnContext(ctx, "failed to open playback device", "error", err)
		} else {
			a.onClose(player.Close)
			opts = append(opts, ttsdeepgram.WithPlayer(player))
		}

		client, err := ttsdeepgram.NewTextToSpeechClient(cfg.APIKey, ttsdeepgram.Voice(cfg.Model), opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create deepgram speech client: %w", err)
		}
		return client, nil
	case ttsEngineEspeak:
		return espeak.New(
			espeak.WithVoice(cfg.Voice),
			espeak.WithSpeed(cfg.Speed),
			espeak.WithPitch(cfg.Pitch),
			espeak.WithVolume(cfg.Volume),
		), nil
	default:
		return nil, fmt.Errorf("unknown tts engine %q", cfg.Engine)
	}
}
