package ui

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"

	"github.com/koscakluka/luna/core/service"
)

const (
	DefaultLogLines     = 200
	DefaultMessageLines = 50

	// The logs pane gets logsShare parts of the height, the interactive pane
	// the rest of paneShares.
	logsShare  = 3
	paneShares = 5
)

type tone int

const (
	toneNormal tone = iota
	toneAgent
	toneSuccess
	toneWarning
	toneError
	toneInfo
)

type logLine struct {
	time    time.Time
	level   slog.Level
	message string
}

type entry struct {
	icon string
	text string
	tone tone
}

// Messages delivered to the program from outside the event loop.
type (
	logMsg           logLine
	entryMsg         entry
	appStatusMsg     string
	serviceStatusMsg struct {
		name   string
		status service.Status
	}
)

// model is the bubbletea model behind the split terminal: a log pane on
// top, the conversation with its status line and input below.
type model struct {
	styles styles

	input        textinput.Model
	logs         viewport.Model
	conversation viewport.Model

	logLines     []logLine
	maxLogLines  int
	entries      []entry
	maxEntries   int
	appStatus    string
	services     map[string]service.Status
	serviceOrder []string

	width  int
	height int
	ready  bool

	submit func(text string)
	quit   func()
}

var _ tea.Model = (*model)(nil)

func newModel(maxLogLines int, submit func(string), quit func()) *model {
	if maxLogLines <= 0 {
		maxLogLines = DefaultLogLines
	}

	input := textinput.New()
	input.Placeholder = "Type a message and press enter..."
	input.CharLimit = 1000
	input.Prompt = "> "
	input.Focus()

	return &model{
		styles:       defaultStyles(),
		input:        input,
		logs:         viewport.New(80, 10),
		conversation: viewport.New(80, 5),
		maxLogLines:  maxLogLines,
		maxEntries:   DefaultMessageLines,
		appStatus:    "Initialising...",
		services:     map[string]service.Status{},
		submit:       submit,
		quit:         quit,
	}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, tea.SetWindowTitle("L.U.N.A."))
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.ready = true
		m.layout()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			if m.quit != nil {
				m.quit()
			}
			return m, tea.Quit
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if text == "" {
				return m, nil
			}
			if text == "quit" || text == "exit" {
				if m.quit != nil {
					m.quit()
				}
				return m, tea.Quit
			}
			if m.submit == nil {
				return m, nil
			}
			submit := m.submit
			return m, func() tea.Msg {
				submit(text)
				return nil
			}
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.conversation, cmd = m.conversation.Update(msg)
			return m, cmd
		}

	case logMsg:
		m.logLines = appendCapped(m.logLines, logLine(msg), m.maxLogLines)
		m.refreshLogs()
		return m, nil

	case entryMsg:
		m.entries = appendCapped(m.entries, entry(msg), m.maxEntries)
		m.refreshConversation()
		return m, nil

	case appStatusMsg:
		m.appStatus = string(msg)
		return m, nil

	case serviceStatusMsg:
		if _, ok := m.services[msg.name]; !ok {
			m.serviceOrder = append(m.serviceOrder, msg.name)
		}
		m.services[msg.name] = msg.status
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func appendCapped[T any](items []T, item T, limit int) []T {
	items = append(items, item)
	if over := len(items) - limit; over > 0 {
		items = append(items[:0:0], items[over:]...)
	}
	return items
}

// layout sizes the panes to the terminal. Each pane loses two rows and
// columns to its border and one row to its title.
func (m *model) layout() {
	innerWidth := max(m.width-2, 10)
	// status line, separator and input live inside the interactive pane
	available := max(m.height-6-3, 4)
	logsHeight := available * logsShare / paneShares
	conversationHeight := available - logsHeight

	m.logs.Width, m.logs.Height = innerWidth, max(logsHeight, 1)
	m.conversation.Width, m.conversation.Height = innerWidth, max(conversationHeight, 1)
	m.input.Width = max(innerWidth-len(m.input.Prompt)-1, 10)

	m.refreshLogs()
	m.refreshConversation()
}

func (m *model) refreshLogs() {
	lines := make([]string, 0, len(m.logLines))
	for _, line := range m.logLines {
		text := fmt.Sprintf("%s [%-5s] %s", line.time.Format("15:04:05"), line.level.String(), line.message)
		lines = append(lines, m.styles.level(line.level).Render(truncate.StringWithTail(text, uint(max(m.logs.Width, 1)), "…")))
	}
	if len(lines) == 0 {
		lines = append(lines, m.styles.muted.Render("Waiting for log messages..."))
	}
	m.logs.SetContent(strings.Join(lines, "\n"))
	m.logs.GotoBottom()
}

func (m *model) refreshConversation() {
	lines := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		text := e.text
		if e.icon != "" {
			text = e.icon + " " + text
		}
		lines = append(lines, m.styles.tones[e.tone].Render(wordwrap.String(text, max(m.conversation.Width, 1))))
	}
	if len(lines) == 0 {
		lines = append(lines, m.styles.muted.Render("Ready for interaction..."))
	}
	m.conversation.SetContent(strings.Join(lines, "\n"))
	m.conversation.GotoBottom()
}

func (m *model) statusLine() string {
	status := m.styles.status.Render("📡 " + m.appStatus)
	if len(m.serviceOrder) == 0 {
		return status
	}

	indicators := make([]string, 0, len(m.serviceOrder))
	for _, name := range m.serviceOrder {
		indicators = append(indicators, statusIcon(m.services[name])+" "+strings.TrimSuffix(name, "-service"))
	}
	return status + m.styles.muted.Render("  |  "+strings.Join(indicators, " "))
}

func (m *model) View() string {
	if !m.ready {
		return "Starting L.U.N.A..."
	}

	width := max(m.width-2, 10)
	logsPane := lipgloss.JoinVertical(lipgloss.Left,
		m.styles.logsTitle.Render("🔍 L.U.N.A. Logs"),
		m.styles.logsPane.Width(width).Render(m.logs.View()),
	)

	separator := m.styles.muted.Render(strings.Repeat("─", max(width, 1)))
	interactive := lipgloss.JoinVertical(lipgloss.Left,
		truncate.StringWithTail(m.statusLine(), uint(width), "…"),
		separator,
		m.conversation.View(),
		m.input.View(),
	)
	interactivePane := lipgloss.JoinVertical(lipgloss.Left,
		m.styles.interactiveTitle.Render("🤖 L.U.N.A. Interactive"),
		m.styles.interactivePane.Width(width).Render(interactive),
	)

	return lipgloss.JoinVertical(lipgloss.Left, logsPane, interactivePane)
}
