package orchestration

import (
	"fmt"
	"io"
	"sync"

	"github.com/koscakluka/luna/core/service"
	"github.com/koscakluka/luna/core/ui"
)

// Presenter shows the conversation and the application state to the user.
// Implementations must be safe for concurrent use; event handlers call them
// from their own goroutines.
type Presenter interface {
	ShowListening()
	ShowUserInput(text string)
	ShowAgentResponse(text string)
	// ShowToolExecution reports a tool state: ui.ToolExecuting,
	// ui.ToolCompleted or ui.ToolFailed.
	ShowToolExecution(name, status string)
	ShowError(message string)
	ShowWarning(message string)
	ShowInfo(message string)
	UpdateAppStatus(status string)
	UpdateServiceStatus(name string, status service.Status)
}

var _ Presenter = (*ui.UI)(nil)

// LinePresenter prints one line per update. It is used when the terminal UI
// is disabled.
type LinePresenter struct {
	mu sync.Mutex
	w  io.Writer
}

var _ Presenter = (*LinePresenter)(nil)

func NewLinePresenter(w io.Writer) *LinePresenter {
	return &LinePresenter{w: w}
}

func (p *LinePresenter) println(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *LinePresenter) ShowListening()            { p.println("🎤 Listening for speech...") }
func (p *LinePresenter) ShowUserInput(text string) { p.println("👤 You said: %s", text) }
func (p *LinePresenter) ShowAgentResponse(text string) {
	p.println("🤖 %s", text)
}

func (p *LinePresenter) ShowToolExecution(name, status string) {
	switch status {
	case ui.ToolExecuting:
		p.println("🔄 Executing %s...", name)
	case ui.ToolCompleted:
		p.println("✅ %s completed", name)
	case ui.ToolFailed:
		p.println("❌ %s failed", name)
	default:
		p.println("🔧 %s: %s", name, status)
	}
}

func (p *LinePresenter) ShowError(message string)   { p.println("❌ %s", message) }
func (p *LinePresenter) ShowWarning(message string) { p.println("⚠️  %s", message) }
func (p *LinePresenter) ShowInfo(message string)    { p.println("ℹ️  %s", message) }
func (p *LinePresenter) UpdateAppStatus(status string) {
	p.println("📡 %s", status)
}

// UpdateServiceStatus only reports services that are not healthy.
func (p *LinePresenter) UpdateServiceStatus(name string, status service.Status) {
	if status == service.StatusHealthy {
		return
	}
	p.println("⚙️  %s is %s", name, status)
}
