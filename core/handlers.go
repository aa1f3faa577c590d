package orchestration

import (
	"context"
	"fmt"

	"github.com/koscakluka/luna/core/bus"
	"github.com/koscakluka/luna/core/events"
	"github.com/koscakluka/luna/core/service"
	"github.com/koscakluka/luna/core/ui"
	"github.com/koscakluka/luna/core/voice"
)

func (a *Application) subscribe() {
	handlers := []struct {
		kind    events.Kind
		handler bus.Handler
	}{
		{events.KindUserInput, a.handleUserInput},
		{events.KindAgentResponse, a.handleAgentResponse},
		{events.KindAgentError, a.handleAgentError},
		{events.KindToolStarted, a.handleToolStarted},
		{events.KindToolCompleted, a.handleToolCompleted},
		{events.KindToolFailed, a.handleToolFailed},
		{events.KindRecordingStarted, a.handleRecordingStarted},
		{events.KindRecordingStopped, a.handleRecordingStopped},
		{events.KindTranscriptionCompleted, a.handleTranscription},
		{events.KindAudioStatusChanged, a.handleAudioStatus},
		{events.KindAudioError, a.handleAudioError},
		{events.KindSpeechSynthesisFailed, a.handleSpeechFailed},
		{events.KindServiceStatus, a.handleServiceStatus},
		{events.KindSystemShutdown, a.handleShutdown},
	}
	for _, h := range handlers {
		a.bus.Subscribe(h.kind, h.handler)
	}
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// Voice input is shown once transcribed; only typed input is echoed here.
func (a *Application) handleUserInput(_ context.Context, event events.Event) error {
	if event.String("source") == events.SourceText {
		a.presenter.ShowUserInput(event.String("text"))
	}
	return nil
}

func (a *Application) handleAgentResponse(_ context.Context, event events.Event) error {
	text := event.String("text")
	if event.String("type") != events.ResponseTypeToolResult {
		a.presenter.ShowAgentResponse(text)
		return nil
	}

	message := fmt.Sprintf("[%s] %s", orDefault(event.String("tool_name"), "unknown"), text)
	if event.Bool("success") {
		a.presenter.ShowInfo(message)
	} else {
		a.presenter.ShowError(message)
	}
	return nil
}

func (a *Application) handleAgentError(_ context.Context, event events.Event) error {
	a.presenter.ShowError("Error: " + orDefault(event.String("error"), "Unknown error"))
	return nil
}

func (a *Application) handleToolStarted(_ context.Context, event events.Event) error {
	a.presenter.ShowToolExecution(orDefault(event.String("tool_name"), "unknown"), ui.ToolExecuting)
	return nil
}

func (a *Application) handleToolCompleted(_ context.Context, event events.Event) error {
	a.presenter.ShowToolExecution(orDefault(event.String("tool_name"), "unknown"), ui.ToolCompleted)
	return nil
}

func (a *Application) handleToolFailed(ctx context.Context, event events.Event) error {
	name := orDefault(event.String("tool_name"), "unknown")
	logger.WarnContext(ctx, "tool failed", "tool", name, "error", event.String("error"))
	a.presenter.ShowToolExecution(name, ui.ToolFailed)
	return nil
}

func (a *Application) handleRecordingStarted(context.Context, events.Event) error {
	a.presenter.ShowListening()
	a.presenter.UpdateAppStatus("Listening")
	return nil
}

func (a *Application) handleRecordingStopped(context.Context, events.Event) error {
	a.presenter.UpdateAppStatus("Ready")
	return nil
}

func (a *Application) handleTranscription(_ context.Context, event events.Event) error {
	a.presenter.ShowUserInput(event.String("text"))
	return nil
}

// handleAudioStatus forwards service level statuses. Listening and idle
// are covered by the recording events.
func (a *Application) handleAudioStatus(_ context.Context, event events.Event) error {
	status, ok := service.ParseStatus(event.String("status"))
	if !ok {
		return nil
	}
	a.presenter.UpdateServiceStatus(voice.ServiceName, status)
	if reason := event.String("reason"); reason != "" && status == service.StatusDegraded {
		a.presenter.ShowWarning("Audio degraded: " + reason)
	}
	return nil
}

func (a *Application) handleAudioError(_ context.Context, event events.Event) error {
	a.presenter.ShowError("Audio error: " + orDefault(event.String("error"), "unknown error"))
	return nil
}

func (a *Application) handleSpeechFailed(_ context.Context, event events.Event) error {
	a.presenter.ShowWarning("Speech synthesis failed: " + orDefault(event.String("error"), "unknown error"))
	return nil
}

func (a *Application) handleServiceStatus(_ context.Context, event events.Event) error {
	status, ok := service.ParseStatus(event.String("status"))
	if !ok {
		return fmt.Errorf("unknown service status %q", event.String("status"))
	}
	a.presenter.UpdateServiceStatus(event.String("service"), status)
	return nil
}

func (a *Application) handleShutdown(ctx context.Context, event events.Event) error {
	logger.InfoContext(ctx, "received shutdown event", "reason", event.String("reason"))
	a.signalShutdown()
	return nil
}
