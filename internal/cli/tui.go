package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/Tim-sandbox/barista/pkg/model"
)

// List styles
var (
	listSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	listDimStyle      = lipgloss.NewStyle().Foreground(colorDim)
)

// =============================================================================
// ScanWatchModel - Live scan progress
// =============================================================================

// defaultPollInterval is how often the watch view reloads the scan.
const defaultPollInterval = 500 * time.Millisecond

// scanPollMsg carries the result of one reload.
type scanPollMsg struct {
	scan *model.Scan
	err  error
}

// ScanWatchModel is the bubbletea model that follows one scan until it
// reaches a terminal state.
type ScanWatchModel struct {
	Scan    *model.Scan
	Project string
	Err     error
	Aborted bool

	poll     func() (*model.Scan, error)
	interval time.Duration
	frame    int
	now      func() time.Time
}

// NewScanWatchModel creates a watch model for scan. poll reloads it.
func NewScanWatchModel(scan *model.Scan, project string, poll func() (*model.Scan, error)) ScanWatchModel {
	return ScanWatchModel{
		Scan:     scan,
		Project:  project,
		poll:     poll,
		interval: defaultPollInterval,
		now:      time.Now,
	}
}

func (m ScanWatchModel) Init() tea.Cmd {
	return m.tick()
}

func (m ScanWatchModel) tick() tea.Cmd {
	poll := m.poll
	return tea.Tick(m.interval, func(time.Time) tea.Msg {
		s, err := poll()
		return scanPollMsg{scan: s, err: err}
	})
}

func (m ScanWatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.Aborted = true
			return m, tea.Quit
		}
	case scanPollMsg:
		if msg.err != nil {
			m.Err = msg.err
			return m, tea.Quit
		}
		m.Scan = msg.scan
		m.frame++
		if m.Done() {
			return m, tea.Quit
		}
		return m, m.tick()
	}
	return m, nil
}

// Done reports whether the scan reached a terminal state.
func (m ScanWatchModel) Done() bool {
	return m.Scan != nil && m.Scan.State.Terminal()
}

// elapsed is the time since the scan started running, or since it was
// queued while pending.
func (m ScanWatchModel) elapsed() time.Duration {
	if m.Scan == nil {
		return 0
	}
	from := m.Scan.CreatedAt
	if m.Scan.StartedAt != nil {
		from = *m.Scan.StartedAt
	}
	to := m.now()
	if m.Scan.CompletedAt != nil {
		to = *m.Scan.CompletedAt
	}
	if to.Before(from) {
		return 0
	}
	return to.Sub(from).Round(time.Second)
}

func (m ScanWatchModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Scanning " + m.Project))
	b.WriteString("\n")
	if m.Scan == nil {
		return b.String()
	}

	branch := m.Scan.Branch
	if branch == "" {
		branch = "default branch"
	}
	b.WriteString(listDimStyle.Render(fmt.Sprintf("scan %s  %s", m.Scan.ID, branch)))
	b.WriteString("\n\n")

	icon := styleIconSpinner.Render(spinnerFrames[m.frame%len(spinnerFrames)])
	switch m.Scan.State {
	case model.ScanCompleted:
		icon = styleIconSuccess.Render(iconSuccess)
	case model.ScanFailed:
		icon = styleIconError.Render(iconError)
	}
	state := scanStateStyle(m.Scan.State).Render(string(m.Scan.State))
	b.WriteString(fmt.Sprintf("%s %s %s\n", icon, state, StyleDim.Render(m.elapsed().String())))

	if m.Scan.State == model.ScanFailed && m.Scan.Error != "" {
		b.WriteString("  " + StyleError.Render(m.Scan.ErrorCode+": "+m.Scan.Error) + "\n")
	}
	if !m.Done() {
		b.WriteString("\n" + listDimStyle.Render("q: stop watching and cancel the scan") + "\n")
	}
	return b.String()
}

// =============================================================================
// ProjectListModel - Interactive project selection
// =============================================================================

// ProjectListModel is the bubbletea model for interactive project selection.
type ProjectListModel struct {
	Projects []model.Project
	Cursor   int
	Selected *model.Project
	Height   int
	Offset   int
}

// NewProjectListModel creates a new project list model.
func NewProjectListModel(projects []model.Project) ProjectListModel {
	return ProjectListModel{Projects: projects, Height: 15}
}

func (m ProjectListModel) Init() tea.Cmd {
	return nil
}

func (m ProjectListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
				if m.Cursor < m.Offset {
					m.Offset = m.Cursor
				}
			}
		case "down", "j":
			if m.Cursor < len(m.Projects)-1 {
				m.Cursor++
				if m.Cursor >= m.Offset+m.Height {
					m.Offset = m.Cursor - m.Height + 1
				}
			}
		case "enter":
			if len(m.Projects) == 0 {
				return m, tea.Quit
			}
			p := m.Projects[m.Cursor]
			m.Selected = &p
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.Height = msg.Height - 6
		if m.Height < 5 {
			m.Height = 5
		}
	}
	return m, nil
}

func (m ProjectListModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Select Project"))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  ⏎ select  q quit"))
	b.WriteString("\n\n")

	end := min(m.Offset+m.Height, len(m.Projects))

	rows := [][]string{}
	for i := m.Offset; i < end; i++ {
		p := m.Projects[i]
		cursor := "  "
		if i == m.Cursor {
			cursor = "▸ "
		}
		rows = append(rows, []string{cursor, strconv.FormatInt(p.ID, 10), p.Name, string(p.PackageManager), p.UserID})
	}

	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("", "ID", "Project", "Manager", "Owner").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			if m.Offset+row == m.Cursor {
				return listSelectedStyle
			}
			if col >= 3 {
				return listDimStyle
			}
			return lipgloss.NewStyle()
		})

	b.WriteString(t.Render())
	b.WriteString("\n\n")
	if len(m.Projects) > 0 {
		b.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d/%d]", m.Cursor+1, len(m.Projects))))
	}

	return b.String()
}
