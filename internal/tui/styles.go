package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/hugh/reconsole/internal/console"
	"github.com/hugh/reconsole/internal/models"
)

var (
	// Log line classes
	ErrorLine   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	WarningLine = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	SuccessLine = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	StepLine    = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	PlainLine   = lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	ToolName    = lipgloss.NewStyle().Foreground(lipgloss.Color("5")).Bold(true)

	// Status badges
	BadgeDefault = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("4")).Padding(0, 1)
	BadgeDanger  = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("1")).Padding(0, 1)
	BarFill      = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	BarDanger    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))

	// UI elements
	HeaderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	SectionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Bold(true)
	MutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	PanelStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("6")).
			Padding(0, 1)

	NoticeInfo    = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	NoticeWarning = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
	NoticeError   = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
)

func LineStyle(class console.LineClass) lipgloss.Style {
	switch class {
	case console.ClassError:
		return ErrorLine
	case console.ClassWarning:
		return WarningLine
	case console.ClassSuccess:
		return SuccessLine
	case console.ClassStep:
		return StepLine
	default:
		return PlainLine
	}
}

func BadgeStyle(c console.Color) lipgloss.Style {
	if c == console.ColorDanger {
		return BadgeDanger
	}
	return BadgeDefault
}

func NoticeStyle(level console.NoticeLevel) lipgloss.Style {
	switch level {
	case console.NoticeError:
		return NoticeError
	case console.NoticeWarning:
		return NoticeWarning
	default:
		return NoticeInfo
	}
}

func StatusStyle(s models.ScanStatus) lipgloss.Style {
	switch s {
	case models.ScanStatusCompleted:
		return SuccessLine
	case models.ScanStatusFailed:
		return ErrorLine
	case models.ScanStatusRunning:
		return StepLine
	default:
		return PlainLine
	}
}
