// Package orchestration composes the event bus, the container and the
// assistant's services into a running application.
package orchestration

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/koscakluka/luna/core/bus"
	"github.com/koscakluka/luna/core/config"
	"github.com/koscakluka/luna/core/container"
	"github.com/koscakluka/luna/core/correlation"
	"github.com/koscakluka/luna/core/events"
	"github.com/koscakluka/luna/core/service"
	"github.com/koscakluka/luna/core/ui"
	"github.com/koscakluka/luna/core/voice"
)

const DefaultHealthInterval = 30 * time.Second

var (
	ErrAlreadyRunning = errors.New("application already running")
	ErrNotRunning     = errors.New("application not running")
)

var exitCommands = []string{"exit", "quit", "bye"}

type Application struct {
	cfg            config.Config
	container      *container.Container
	bus            *bus.Bus
	presenter      Presenter
	input          io.Reader
	inputSet       bool
	healthInterval time.Duration
	overrides      []func(*container.Container)

	voice *voice.Service

	running      atomic.Bool
	shutdown     chan struct{}
	shutdownOnce sync.Once

	mu       sync.Mutex
	ctx      context.Context
	closers  []func()
	statuses map[string]service.Status
}

// NewApplication registers every service factory and event handler. Nothing
// is constructed or started until Run.
//
// Without WithPresenter the terminal UI is used when enabled in cfg, and a
// line printer on stdout reading typed input from stdin otherwise.
func NewApplication(cfg config.Config, opts ...ApplicationOption) *Application {
	a := &Application{
		cfg:            cfg,
		healthInterval: DefaultHealthInterval,
		shutdown:       make(chan struct{}),
		ctx:            context.Background(),
		statuses:       map[string]service.Status{},
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.container == nil {
		a.container = container.New(container.WithName("luna"))
	}
	if a.bus == nil {
		a.bus = bus.New(
			bus.WithName("luna"),
			bus.WithMaxInFlight(cfg.Bus.MaxInFlight),
			bus.WithShutdownTimeout(cfg.Bus.ShutdownTimeout),
		)
	}
	// Registered first so it starts before and stops after every service.
	container.RegisterSingleton(a.container, BusKey, a.bus)

	if a.presenter == nil {
		if cfg.UI.Enabled {
			terminal := ui.New(
				ui.WithSubmit(a.submit),
				ui.WithQuit(a.Shutdown),
				ui.WithLogLines(cfg.UI.LogLines),
				ui.WithLogLevel(cfg.Level()),
			)
			container.RegisterSingleton(a.container, UIKey, terminal)
			a.presenter = terminal
		} else {
			a.presenter = NewLinePresenter(os.Stdout)
			if !a.inputSet {
				a.input = os.Stdin
			}
		}
	}

	a.registerDefaults()
	for _, override := range a.overrides {
		override(a.container)
	}
	a.subscribe()
	return a
}

func (a *Application) Container() *container.Container { return a.container }
func (a *Application) Bus() *bus.Bus                   { return a.bus }

// Run starts every service, begins listening or reading typed input and
// blocks until a shutdown is requested or ctx is cancelled. Services are
// always stopped before Run returns.
//
// An application runs once.
func (a *Application) Run(ctx context.Context) (err error) {
	if !a.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	ctx, span := tracer.Start(ctx, "application.run")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	a.mu.Lock()
	a.ctx = ctx
	a.mu.Unlock()
	defer a.closeResources()

	a.presenter.UpdateAppStatus("Initialising...")
	logger.InfoContext(ctx, "starting application", "name", a.cfg.AppName)

	if err := a.resolveServices(ctx); err != nil {
		a.presenter.ShowError(fmt.Sprintf("Failed to initialise: %v", err))
		return fmt.Errorf("failed to resolve services: %w", err)
	}

	err = a.container.Lifecycle(ctx, func(ctx context.Context) error {
		a.reportServiceStatuses(ctx)
		a.presenter.ShowInfo(a.cfg.AppName + " is online!")
		a.beginInteraction(ctx)

		monitorCtx, stopMonitor := context.WithCancel(ctx)
		defer stopMonitor()
		if a.healthInterval > 0 {
			go a.monitorHealth(monitorCtx)
		}

		select {
		case <-a.shutdown:
			logger.InfoContext(ctx, "shutdown requested")
		case <-ctx.Done():
			logger.InfoContext(ctx, "context cancelled, shutting down", "cause", context.Cause(ctx))
		}
		a.presenter.UpdateAppStatus("Shutting down...")
		return nil
	})
	if err != nil {
		a.presenter.ShowError(fmt.Sprintf("Failed to start: %v", err))
		return err
	}

	logger.InfoContext(ctx, "application stopped")
	return nil
}

// resolveServices builds the services in start order. Dependencies are
// built, and registered for lifecycle, before their dependents.
func (a *Application) resolveServices(ctx context.Context) error {
	if _, err := container.Get(ctx, a.container, AgentKey); err != nil {
		return err
	}
	if a.cfg.Audio.Enabled {
		voiceService, err := container.Get(ctx, a.container, VoiceKey)
		if err != nil {
			return err
		}
		a.voice = voiceService
	}
	if _, err := container.Get(ctx, a.container, SpeechKey); err != nil {
		return err
	}
	return nil
}

func (a *Application) beginInteraction(ctx context.Context) {
	if a.voice != nil && a.voice.Status() == service.StatusHealthy {
		err := a.voice.StartRecording(ctx)
		if err == nil {
			return
		}
		logger.WarnContext(ctx, "failed to start recording", "error", err)
	}

	a.presenter.ShowWarning("Audio not available - text input mode")
	a.presenter.UpdateAppStatus("Ready")
	if a.input != nil {
		go a.readInput(ctx, a.input)
	}
}

// readInput publishes each typed line as user input until the reader is
// exhausted or the user types an exit command, then requests a shutdown.
func (a *Application) readInput(ctx context.Context, r io.Reader) {
	a.presenter.ShowInfo("Type messages (or 'exit' to quit)")

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if a.shuttingDown() {
			return
		}
		text := strings.TrimSpace(scanner.Text())
		if slices.Contains(exitCommands, strings.ToLower(text)) {
			break
		}
		if text == "" {
			continue
		}
		if _, err := a.SendText(ctx, text); err != nil {
			logger.WarnContext(ctx, "failed to send input", "error", err)
		}
	}
	if err := scanner.Err(); err != nil {
		logger.ErrorContext(ctx, "failed to read input", "error", err)
	}
	a.requestShutdown(ctx, "input closed")
}

// submit handles text entered in the terminal UI.
func (a *Application) submit(text string) {
	if _, err := a.SendText(a.context(), text); err != nil {
		a.presenter.ShowError(fmt.Sprintf("Failed to send message: %v", err))
	}
}

// SendText starts a new user flow: text is published as user input under a
// fresh correlation id, which is returned.
func (a *Application) SendText(ctx context.Context, text string) (correlation.ID, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	if !a.bus.HealthCheck(ctx) {
		return "", ErrNotRunning
	}

	id := correlation.New()
	ctx = correlation.With(ctx, id)
	logger.InfoContext(ctx, "received user input", "source", events.SourceText, "length", len(text))
	a.bus.Publish(ctx, events.NewUserInput(text, events.SourceText, events.WithContext(ctx)))
	return id, nil
}

// Shutdown asks a running application to stop.
func (a *Application) Shutdown() {
	a.requestShutdown(a.context(), "shutdown requested")
}

func (a *Application) requestShutdown(ctx context.Context, reason string) {
	if a.bus.HealthCheck(ctx) {
		a.bus.Publish(ctx, events.NewSystemShutdown(reason, events.WithContext(ctx)))
		return
	}
	// Nothing would deliver the event.
	a.signalShutdown()
}

func (a *Application) signalShutdown() {
	a.shutdownOnce.Do(func() { close(a.shutdown) })
}

func (a *Application) shuttingDown() bool {
	select {
	case <-a.shutdown:
		return true
	default:
		return false
	}
}

// Done is closed once a shutdown has been requested.
func (a *Application) Done() <-chan struct{} { return a.shutdown }

func (a *Application) context() context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ctx
}

func (a *Application) onClose(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closers = append(a.closers, fn)
}

func (a *Application) closeResources() {
	a.mu.Lock()
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()

	for _, fn := range slices.Backward(closers) {
		fn()
	}
}

// reportServiceStatuses publishes the status of every service once startup
// has finished.
func (a *Application) reportServiceStatuses(ctx context.Context) {
	for _, svc := range a.container.Services() {
		status := svc.Status()
		a.mu.Lock()
		a.statuses[svc.Name()] = status
		a.mu.Unlock()
		a.bus.Publish(ctx, events.NewServiceStatus(svc.Name(), status.String()))
	}
}

// monitorHealth polls service health and publishes status changes. A
// service that reports healthy but fails its check counts as degraded.
func (a *Application) monitorHealth(ctx context.Context) {
	ticker := time.NewTicker(a.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		checkCtx, cancel := context.WithTimeout(ctx, a.healthInterval)
		results := a.container.HealthCheck(checkCtx)
		cancel()

		for _, svc := range a.container.Services() {
			status := svc.Status()
			if status == service.StatusHealthy && !results[svc.Name()] {
				status = service.StatusDegraded
			}

			a.mu.Lock()
			changed := a.statuses[svc.Name()] != status
			a.statuses[svc.Name()] = status
			a.mu.Unlock()

			if changed {
				logger.WarnContext(ctx, "service status changed", "service", svc.Name(), "status", status)
				a.bus.Publish(ctx, events.NewServiceStatus(svc.Name(), status.String()))
			}
		}
	}
}
