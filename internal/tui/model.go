// Package tui is the terminal dashboard. It draws board snapshots and turns
// key presses into controller calls.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hugh/reconsole/internal/api/validation"
	"github.com/hugh/reconsole/internal/console"
	"github.com/hugh/reconsole/internal/models"
)

// Controls is the part of the controller the dashboard drives.
type Controls interface {
	Stop()
	View(ctx context.Context, scanID string) (*models.ScanRecord, error)
	RefreshRecent(ctx context.Context) ([]models.ScanSummary, error)
}

type boardChangedMsg struct{}

type actionDoneMsg struct {
	action string
	err    error
}

const (
	defaultWidth  = 100
	defaultHeight = 30
	barWidth      = 30
	actionTimeout = 30 * time.Second
)

type Model struct {
	board    *console.Board
	controls Controls
	changes  <-chan struct{}

	snap     console.Snapshot
	width    int
	height   int
	scroll   int // lines scrolled up from the tail
	selected int // recent scans cursor
	status   string
	quitting bool
}

// New subscribes to the board. The caller owns cancel and must call it after
// the program exits.
func New(board *console.Board, controls Controls) (Model, func()) {
	changes, cancel := board.Subscribe()
	return Model{
		board:    board,
		controls: controls,
		changes:  changes,
		snap:     board.Snapshot(),
		width:    defaultWidth,
		height:   defaultHeight,
	}, cancel
}

func (m Model) Init() tea.Cmd {
	return waitForChange(m.changes)
}

func waitForChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return boardChangedMsg{}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case boardChangedMsg:
		prev := m.snap.Version
		m.snap = m.board.Snapshot()
		if m.snap.Version != prev && m.snap.Scan.ScrollToEnd {
			m.scroll = 0
		}
		if m.selected >= len(m.snap.Recent.Scans) {
			m.selected = max(len(m.snap.Recent.Scans)-1, 0)
		}
		return m, waitForChange(m.changes)

	case actionDoneMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("%s failed: %v", msg.action, msg.err)
		} else {
			m.status = ""
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "s":
		m.controls.Stop()
		m.status = "polling stopped"
		return m, nil

	case "r":
		return m, m.run("refresh", func(ctx context.Context) error {
			_, err := m.controls.RefreshRecent(ctx)
			return err
		})

	case "x":
		m.board.DismissNotices("")
		return m, nil

	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
	case "down", "j":
		if m.selected < len(m.snap.Recent.Scans)-1 {
			m.selected++
		}

	case "enter":
		if m.selected < len(m.snap.Recent.Scans) {
			id := m.snap.Recent.Scans[m.selected].ScanID
			return m, m.run("view", func(ctx context.Context) error {
				_, err := m.controls.View(ctx, id)
				return err
			})
		}

	case "pgup":
		m.scroll = min(m.scroll+m.logHeight(), max(len(m.snap.Scan.Lines)-m.logHeight(), 0))
	case "pgdown":
		m.scroll = max(m.scroll-m.logHeight(), 0)
	}
	return m, nil
}

func (m Model) run(action string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return actionDoneMsg{action: action, err: fn(ctx)}
	}
}

func (m Model) logHeight() int {
	return max(m.height/2, 5)
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(HeaderStyle.Render("reconsole"))
	if m.snap.Submitting {
		b.WriteString(MutedStyle.Render("  submitting..."))
	}
	b.WriteString("\n\n")

	for _, n := range m.snap.Notices {
		b.WriteString(NoticeStyle(n.Level).Render(fmt.Sprintf("[%s] %s", n.Region, n.Message)))
		b.WriteString("\n")
	}
	if len(m.snap.Notices) > 0 {
		b.WriteString("\n")
	}

	if m.snap.Scan.Visible {
		b.WriteString(m.viewScan())
		b.WriteString("\n")
	} else {
		b.WriteString(MutedStyle.Render("No scan tracked. Run `reconsole scan <domain>` or pick a recent scan."))
		b.WriteString("\n\n")
	}

	if m.snap.Results.Visible {
		b.WriteString(m.viewResults())
		b.WriteString("\n")
	}
	if m.snap.Artifacts.Visible {
		b.WriteString(m.viewArtifacts())
		b.WriteString("\n")
	}
	b.WriteString(m.viewRecent())

	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(NoticeError.Render(m.status))
	}
	b.WriteString("\n")
	b.WriteString(MutedStyle.Render("q quit · s stop · r refresh · j/k select · enter view · pgup/pgdown scroll · x dismiss"))
	return b.String()
}

func (m Model) viewScan() string {
	card := m.snap.Scan
	var b strings.Builder

	fmt.Fprintf(&b, "%s  %s  %s\n",
		HeaderStyle.Render(validation.SanitizeString(card.Domain)),
		MutedStyle.Render(card.ScanType),
		BadgeStyle(card.Status.Color).Render(card.Status.Badge),
	)
	b.WriteString(progressBar(card.Status))
	b.WriteString("\n\n")

	lines := card.Lines
	end := max(len(lines)-m.scroll, 0)
	start := max(end-m.logHeight(), 0)
	for _, line := range lines[start:end] {
		b.WriteString(RenderLine(line))
		b.WriteString("\n")
	}
	if m.scroll > 0 {
		b.WriteString(MutedStyle.Render(fmt.Sprintf("-- %d more lines below --", m.scroll)))
		b.WriteString("\n")
	}

	return PanelStyle.Width(max(m.width-2, 20)).Render(strings.TrimRight(b.String(), "\n"))
}

// RenderLine styles a line by class and highlights tool segments.
func RenderLine(line console.RenderedLine) string {
	style := LineStyle(line.Class)
	var b strings.Builder
	if line.Icon != "" {
		b.WriteString(style.Render(line.Icon))
	}
	for _, seg := range line.Segments {
		text := validation.SanitizeString(seg.Text)
		if seg.Tool {
			b.WriteString(ToolName.Render(text))
			continue
		}
		b.WriteString(style.Render(text))
	}
	return b.String()
}

func progressBar(s console.StatusDisplay) string {
	filled := barWidth * s.Percent / 100
	style := BarFill
	if s.Color == console.ColorDanger {
		style = BarDanger
	}
	return style.Render(strings.Repeat("█", filled)) +
		MutedStyle.Render(strings.Repeat("░", barWidth-filled)) +
		fmt.Sprintf(" %3d%%", s.Percent)
}

func (m Model) viewResults() string {
	var b strings.Builder
	b.WriteString(SectionStyle.Render("Results"))
	b.WriteString("\n")
	for _, c := range m.snap.Results.Cards {
		fmt.Fprintf(&b, "  %s %-16s %d\n", c.Icon, c.Label, c.Value)
	}
	if m.snap.Results.Message != "" {
		b.WriteString("  " + MutedStyle.Render(validation.SanitizeString(m.snap.Results.Message)) + "\n")
	}
	return b.String()
}

func (m Model) viewArtifacts() string {
	a := m.snap.Artifacts
	var b strings.Builder
	b.WriteString(SectionStyle.Render("Generated files"))
	b.WriteString("\n")

	switch {
	case a.Loading:
		b.WriteString("  " + MutedStyle.Render("Loading files...") + "\n")
	case a.Error != "":
		b.WriteString("  " + NoticeError.Render(validation.SanitizeString(a.Error)) + "\n")
	case len(a.Files) == 0:
		b.WriteString("  " + MutedStyle.Render("No files generated.") + "\n")
	default:
		for _, f := range a.Files {
			name := validation.SanitizeString(f.Name)
			if f.Viewable() {
				fmt.Fprintf(&b, "  📄 %-32s %d lines\n", name, f.Lines)
			} else {
				b.WriteString("  " + MutedStyle.Render(fmt.Sprintf("📄 %-32s empty", name)) + "\n")
			}
		}
	}
	return b.String()
}

func (m Model) viewRecent() string {
	r := m.snap.Recent
	var b strings.Builder
	b.WriteString(SectionStyle.Render("Recent scans"))
	b.WriteString("\n")

	switch {
	case r.Error != "":
		b.WriteString("  " + NoticeError.Render(r.Error) + "\n")
	case !r.Loaded:
		b.WriteString("  " + MutedStyle.Render("Loading...") + "\n")
	case len(r.Scans) == 0:
		b.WriteString("  " + MutedStyle.Render("No scans yet") + "\n")
	default:
		for i, s := range r.Scans {
			cursor := "  "
			if i == m.selected {
				cursor = "> "
			}
			fmt.Fprintf(&b, "%s%-28s %-6s %s\n",
				cursor,
				validation.TruncateString(validation.SanitizeString(s.Domain), 28),
				strings.ToUpper(string(s.ScanType)),
				StatusStyle(s.Status).Render(strings.ToUpper(string(s.Status))),
			)
		}
	}
	return b.String()
}
