package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/koscakluka/luna/core/logging"
	"github.com/koscakluka/luna/core/service"
)

const (
	ServiceName = "ui-service"

	outboxSize = 1024
)

// Tool execution states accepted by ShowToolExecution.
const (
	ToolExecuting = "executing"
	ToolCompleted = "completed"
	ToolFailed    = "failed"
)

// UI is the interactive terminal. It owns a bubbletea program for as long as
// the service is running and mirrors log records into its log pane.
//
// Presenter calls never block: messages are queued and dropped when the
// program is not running or cannot keep up.
type UI struct {
	state service.State

	logLevel    slog.Leveler
	logLines    int
	submit      func(text string)
	quit        func()
	programOpts []tea.ProgramOption

	mu      sync.Mutex
	program *tea.Program
	outbox  chan tea.Msg
	done    chan struct{}
	detach  func()
	runErr  error
}

var _ service.Service = (*UI)(nil)

type Option func(*UI)

// WithSubmit sets the callback receiving text entered by the user.
func WithSubmit(submit func(text string)) Option {
	return func(u *UI) { u.submit = submit }
}

// WithQuit sets the callback invoked when the user asks to leave.
func WithQuit(quit func()) Option {
	return func(u *UI) { u.quit = quit }
}

func WithLogLines(n int) Option {
	return func(u *UI) { u.logLines = n }
}

// WithLogLevel sets the minimum level mirrored into the log pane.
func WithLogLevel(level slog.Leveler) Option {
	return func(u *UI) { u.logLevel = level }
}

func WithProgramOptions(opts ...tea.ProgramOption) Option {
	return func(u *UI) { u.programOpts = append(u.programOpts, opts...) }
}

func New(opts ...Option) *UI {
	u := &UI{
		logLevel: slog.LevelInfo,
		logLines: DefaultLogLines,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

func (u *UI) Name() string           { return ServiceName }
func (u *UI) Status() service.Status { return u.state.Status() }

func (u *UI) Start(ctx context.Context) error {
	quit := func() {
		if u.quit != nil {
			// The model calls this from its update loop; anything logged by
			// the callback would wait on that same loop.
			go u.quit()
		}
	}
	m := newModel(u.logLines, u.submit, quit)

	opts := append([]tea.ProgramOption{
		tea.WithAltScreen(),
		tea.WithContext(context.WithoutCancel(ctx)),
	}, u.programOpts...)
	program := tea.NewProgram(m, opts...)

	outbox := make(chan tea.Msg, outboxSize)
	done := make(chan struct{})

	u.mu.Lock()
	u.program, u.outbox, u.done, u.runErr = program, outbox, done, nil
	u.mu.Unlock()

	go u.run(program, done)
	go pump(program, outbox, done)

	u.detach = logging.Attach(newLogHandler(u.logLevel, func(line logLine) {
		u.post(logMsg(line))
	}))

	u.state.SetStatus(service.StatusHealthy)
	logger.InfoContext(ctx, "ui service started")
	return nil
}

func (u *UI) run(program *tea.Program, done chan<- struct{}) {
	defer close(done)
	_, err := program.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		u.mu.Lock()
		u.runErr = fmt.Errorf("terminal program failed: %w", err)
		u.mu.Unlock()
		u.state.SetStatus(service.StatusFailed)
		return
	}
	u.state.Transition(service.StatusHealthy, service.StatusDegraded)
}

// pump forwards queued messages to the program until it exits. Send blocks
// until the update loop accepts the message.
func pump(program *tea.Program, outbox <-chan tea.Msg, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case msg := <-outbox:
			program.Send(msg)
		}
	}
}

func (u *UI) post(msg tea.Msg) {
	u.mu.Lock()
	outbox := u.outbox
	u.mu.Unlock()
	if outbox == nil {
		return
	}
	select {
	case outbox <- msg:
	default:
	}
}

func (u *UI) Stop(ctx context.Context) error {
	if u.detach != nil {
		u.detach()
		u.detach = nil
	}

	u.mu.Lock()
	program, done, runErr := u.program, u.done, u.runErr
	u.program, u.outbox = nil, nil
	u.mu.Unlock()

	if program != nil {
		program.Quit()
		select {
		case <-done:
		case <-ctx.Done():
			program.Kill()
			logger.WarnContext(ctx, "terminal program did not exit in time")
		}
	}

	u.state.SetStatus(service.StatusShutdown)
	logger.InfoContext(ctx, "ui service stopped")
	return runErr
}

// HealthCheck reports whether the terminal program is still running.
func (u *UI) HealthCheck(context.Context) bool {
	return u.state.IsHealthy()
}

// Err returns the error the terminal program exited with, if any.
func (u *UI) Err() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.runErr
}

// Presenter

func (u *UI) ShowListening() {
	u.post(entryMsg{icon: "🎤", text: "Listening...", tone: toneSuccess})
}

func (u *UI) ShowUserInput(text string) {
	u.post(entryMsg{icon: "👤", text: "You said: " + text, tone: toneNormal})
}

func (u *UI) ShowAgentResponse(text string) {
	u.post(entryMsg{icon: "🤖", text: text, tone: toneAgent})
}

func (u *UI) ShowToolExecution(name, status string) {
	switch status {
	case ToolExecuting:
		u.post(entryMsg{icon: "🔄", text: "Executing " + name + "...", tone: toneInfo})
	case ToolCompleted:
		u.post(entryMsg{icon: "✅", text: name + " completed", tone: toneSuccess})
	case ToolFailed:
		u.post(entryMsg{icon: "❌", text: name + " failed", tone: toneError})
	default:
		u.post(entryMsg{icon: "🔧", text: name + ": " + status, tone: toneNormal})
	}
}

func (u *UI) ShowError(message string) {
	u.post(entryMsg{icon: "❌", text: message, tone: toneError})
}

func (u *UI) ShowWarning(message string) {
	u.post(entryMsg{icon: "⚠️", text: message, tone: toneWarning})
}

func (u *UI) ShowInfo(message string) {
	u.post(entryMsg{icon: "ℹ️", text: message, tone: toneInfo})
}

func (u *UI) UpdateAppStatus(status string) {
	u.post(appStatusMsg(status))
}

func (u *UI) UpdateServiceStatus(name string, status service.Status) {
	u.post(serviceStatusMsg{name: name, status: status})
}
