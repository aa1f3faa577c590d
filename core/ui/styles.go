package ui

import (
	"log/slog"

	"github.com/charmbracelet/lipgloss"

	"github.com/koscakluka/luna/core/service"
)

var (
	colorPrimary = lipgloss.Color("#06B6D4")
	colorMuted   = lipgloss.Color("#6C7086")
	colorBorder  = lipgloss.Color("#45475A")
	colorText    = lipgloss.Color("#CDD6F4")
	colorSuccess = lipgloss.Color("#A6E3A1")
	colorWarning = lipgloss.Color("#F9E2AF")
	colorError   = lipgloss.Color("#F38BA8")
	colorInfo    = lipgloss.Color("#89B4FA")
)

type styles struct {
	logsPane         lipgloss.Style
	logsTitle        lipgloss.Style
	interactivePane  lipgloss.Style
	interactiveTitle lipgloss.Style
	status           lipgloss.Style
	muted            lipgloss.Style
	levels           map[slog.Level]lipgloss.Style
	tones            map[tone]lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		logsPane: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder),
		logsTitle: lipgloss.NewStyle().Foreground(colorInfo),
		interactivePane: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorPrimary),
		interactiveTitle: lipgloss.NewStyle().Foreground(colorPrimary).Bold(true),
		status:           lipgloss.NewStyle().Foreground(colorPrimary).Bold(true),
		muted:            lipgloss.NewStyle().Foreground(colorMuted),
		levels: map[slog.Level]lipgloss.Style{
			slog.LevelDebug: lipgloss.NewStyle().Foreground(colorMuted),
			slog.LevelInfo:  lipgloss.NewStyle().Foreground(colorText),
			slog.LevelWarn:  lipgloss.NewStyle().Foreground(colorWarning),
			slog.LevelError: lipgloss.NewStyle().Foreground(colorError).Bold(true),
		},
		tones: map[tone]lipgloss.Style{
			toneNormal:  lipgloss.NewStyle().Foreground(colorText),
			toneAgent:   lipgloss.NewStyle().Foreground(colorPrimary),
			toneSuccess: lipgloss.NewStyle().Foreground(colorSuccess),
			toneWarning: lipgloss.NewStyle().Foreground(colorWarning),
			toneError:   lipgloss.NewStyle().Foreground(colorError),
			toneInfo:    lipgloss.NewStyle().Foreground(colorInfo),
		},
	}
}

func (s styles) level(level slog.Level) lipgloss.Style {
	switch {
	case level >= slog.LevelError:
		return s.levels[slog.LevelError]
	case level >= slog.LevelWarn:
		return s.levels[slog.LevelWarn]
	case level >= slog.LevelInfo:
		return s.levels[slog.LevelInfo]
	}
	return s.levels[slog.LevelDebug]
}

func statusIcon(status service.Status) string {
	switch status {
	case service.StatusHealthy:
		return "🟢"
	case service.StatusDegraded:
		return "🟡"
	case service.StatusFailed:
		return "🔴"
	case service.StatusInitializing:
		return "🔄"
	case service.StatusShutdown:
		return "⚫"
	}
	return "❓"
}
