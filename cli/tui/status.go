package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/boothbridge/api"
)

// Fetcher loads a fresh status payload from a running bridge.
type Fetcher func() (*api.Status, error)

// DefaultRefresh is the auto-refresh period of the status view.
const DefaultRefresh = 2 * time.Second

// StatusModel is a Bubble Tea model for the bridge status view.
// With a Fetcher it refreshes on a timer and on demand; without one it
// shows the payload it was built with.
type StatusModel struct {
	status   *api.Status
	fetch    Fetcher
	interval time.Duration
	err      error
	width    int
	height   int
	quitting bool
}

type tickMsg time.Time

type statusMsg struct {
	status *api.Status
	err    error
}

// NewStatusModel creates a status model.
func NewStatusModel(st *api.Status, fetch Fetcher, interval time.Duration) StatusModel {
	if interval <= 0 {
		interval = DefaultRefresh
	}
	return StatusModel{status: st, fetch: fetch, interval: interval}
}

// Init implements tea.Model.
func (m StatusModel) Init() tea.Cmd {
	if m.fetch == nil {
		return nil
	}
	return m.tick()
}

func (m StatusModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m StatusModel) refresh() tea.Cmd {
	fetch := m.fetch
	if fetch == nil {
		return nil
	}
	return func() tea.Msg {
		st, err := fetch()
		return statusMsg{status: st, err: err}
	}
}

// Update implements tea.Model.
func (m StatusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Refresh):
			return m, m.refresh()
		}

	case tickMsg:
		return m, tea.Batch(m.refresh(), m.tick())

	case statusMsg:
		// Keep the last good payload on screen when the bridge stops answering.
		m.err = msg.err
		if msg.err == nil && msg.status != nil {
			m.status = msg.status
		}
		return m, nil
	}

	return m, nil
}

// View implements tea.Model.
func (m StatusModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	if m.status == nil {
		b.WriteString(TitleStyle.Render("Bridge Status"))
		b.WriteString("\n\n")
		b.WriteString(WarningStyle.Render("waiting for bridge..."))
	} else {
		b.WriteString(m.renderStatus(m.status))
	}
	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(ErrorStyle.Render("refresh failed: " + m.err.Error()))
	}

	help := "Press q or Ctrl+C to quit"
	if m.fetch != nil {
		help = "Press r to refresh, q or Ctrl+C to quit"
	}
	return b.String() + "\n" + HelpStyle.Render(help)
}

func (m StatusModel) renderStatus(st *api.Status) string {
	var b strings.Builder
	title := "Bridge " + st.BridgeID
	if st.Hostname != "" {
		title += " @ " + st.Hostname
	}
	b.WriteString(TitleStyle.Render(title))
	b.WriteString("\n\n")

	boxes := []string{
		renderStatBox("Frames", st.Metrics.FramesStored, highlightColor),
		renderStatBox("Snapshots", st.Metrics.SnapshotsSent, successColor),
		renderStatBox("Uploaded", st.Metrics.SyncUploaded, successColor),
		renderStatBox("Commands", st.Metrics.CommandsApplied, primaryColor),
		renderStatBox("Errors", errorCount(st), errorColor),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
	b.WriteString("\n\n")

	rows := [][2]string{
		{"Version", st.Version},
		{"Event", eventLabel(st)},
		{"Camera", cameraState(st)},
		{"Frame", frameState(st)},
		{"Fanout", fanoutState(st)},
		{"Sync", syncState(st)},
	}
	if st.Camera != nil && st.Camera.LastError != "" {
		rows = append(rows, [2]string{"Camera Error", st.Camera.LastError})
	}
	if st.Sync != nil && st.Sync.LastRunAt != nil {
		last := st.Sync.Last
		rows = append(rows,
			[2]string{"Last Sync", st.Sync.LastRunAt.Local().Format("2006-01-02 15:04:05")},
			[2]string{"Last Result", fmt.Sprintf("created %d, uploaded %d, skipped %d, errors %d",
				last.Created, last.Uploaded, last.Skipped, last.Errors)},
		)
	}

	var details strings.Builder
	for _, row := range rows {
		label := LabelStyle.Render(row[0] + ":")
		var value string
		switch row[0] {
		case "Camera", "Frame", "Fanout", "Sync":
			value = StateStyle(row[1]).Render(row[1])
		case "Camera Error":
			value = ErrorStyle.Render(row[1])
		default:
			value = ValueStyle.Render(row[1])
		}
		details.WriteString(fmt.Sprintf("%s %s\n", label, value))
	}
	b.WriteString(BoxStyle.Render(strings.TrimRight(details.String(), "\n")))
	return b.String()
}

func eventLabel(st *api.Status) string {
	if st.Event.IsZero() {
		return "(none)"
	}
	if st.Event.Name != "" && st.Event.Name != st.Event.Slug {
		return fmt.Sprintf("%s (%s)", st.Event.Name, st.Event.Slug)
	}
	return st.Event.Slug
}

func cameraState(st *api.Status) string {
	switch {
	case st.Camera == nil:
		return "disabled"
	case st.Camera.Connected:
		return fmt.Sprintf("connected :%d", st.Camera.Port)
	default:
		return "disconnected"
	}
}

func frameState(st *api.Status) string {
	switch {
	case st.Frame.Review:
		return "review"
	case !st.Frame.HasFrame:
		return "none"
	case st.Frame.Fresh:
		return fmt.Sprintf("fresh #%d", st.Frame.Seq)
	default:
		return fmt.Sprintf("stale %dms", st.Frame.AgeMs)
	}
}

func fanoutState(st *api.Status) string {
	if st.Fanout == nil || st.Fanout.Enabled == nil {
		return "disabled"
	}
	if *st.Fanout.Enabled {
		return "enabled"
	}
	return "paused"
}

func syncState(st *api.Status) string {
	switch {
	case st.Sync == nil:
		return "disabled"
	case st.Sync.Running:
		return "syncing"
	default:
		return fmt.Sprintf("idle (%d synced)", st.Sync.Synced)
	}
}

func errorCount(st *api.Status) int64 {
	s := st.Metrics
	return s.SnapshotsFailed + s.SyncErrors + s.CommandsFailed + s.NotifyFailures + s.JournalFailures
}

func renderStatBox(label string, value int64, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)
	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr))
}

// keyMap defines key bindings.
type keyMap struct {
	Quit    key.Binding
	Refresh key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
}

// RunStatusTUI runs the status TUI.
func RunStatusTUI(st *api.Status, fetch Fetcher, interval time.Duration) error {
	model := NewStatusModel(st, fetch, interval)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderStatusStatic renders a status payload without the full TUI.
func RenderStatusStatic(st *api.Status) string {
	model := NewStatusModel(st, nil, 0)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
