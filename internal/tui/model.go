package tui

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/hype/internal/events"
	"github.com/mattjoyce/hype/internal/hype"
)

const (
	maxEventLog   = 200
	statsInterval = time.Second
)

// Model is the bubbletea model behind `hype monitor`.
type Model struct {
	client *client
	theme  Theme

	width  int
	height int

	stats     hype.Stats
	connected bool
	lastError string
	lastID    int64
	activity  activity
	eos       *events.StreamEOS

	// latest scene per output and input, for the live routing column
	routed  map[string]uint32
	emitted map[string]uint32

	eventLog  []string
	hubEvents chan events.Event

	workers table.Model
	log     viewport.Model
}

// New creates a monitor for the API at apiURL.
func New(apiURL, apiKey string) *Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Slot", Width: 6},
			{Title: "Worker", Width: 16},
			{Title: "Kind", Width: 9},
			{Title: "Scenes", Width: 7},
			{Title: "Frames", Width: 8},
			{Title: "Out", Width: 8},
			{Title: "Fail", Width: 5},
			{Title: "Queue", Width: 7},
			{Title: "Last", Width: 6},
		}),
		table.WithHeight(6),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	t.SetStyles(s)

	return &Model{
		client:    newClient(apiURL, apiKey),
		theme:     NewDefaultTheme(),
		routed:    make(map[string]uint32),
		emitted:   make(map[string]uint32),
		hubEvents: make(chan events.Event, 100),
		workers:   t,
		log:       viewport.New(80, 10),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribeCmd(m.client, 0, m.hubEvents),
		receiveCmd(m.hubEvents),
		statsCmd(m.client),
		tea.Tick(statsInterval, func(t time.Time) tea.Msg { return tickMsg(t) }),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.workers.SetWidth(max(m.width-6, 20))
		m.log.Width = max(m.width-6, 20)
		m.log.Height = max(m.height/3, 5)
		m.log.SetContent(strings.Join(m.eventLog, "\n"))

	case tickMsg:
		m.activity.decay(time.Time(msg))
		return m, tea.Batch(
			statsCmd(m.client),
			tea.Tick(statsInterval, func(t time.Time) tea.Msg { return tickMsg(t) }),
		)

	case statsMsg:
		m.stats = hype.Stats(msg)
		m.connected = true
		m.lastError = ""
		m.refreshTable()
		return m, nil

	case eventMsg:
		m.apply(events.Event(msg), time.Now())
		m.refreshTable()
		return m, receiveCmd(m.hubEvents)

	case sseDisconnectedMsg:
		m.connected = false
		m.lastError = "event stream disconnected, reconnecting..."
		return m, tea.Tick(3*time.Second, func(time.Time) tea.Msg { return reconnectMsg{} })

	case reconnectMsg:
		return m, subscribeCmd(m.client, m.lastID, m.hubEvents)

	case errMsg:
		m.connected = false
		m.lastError = msg.Error()
		return m, nil
	}

	m.log, cmd = m.log.Update(msg)
	return m, cmd
}

// apply folds one stage event into the model.
func (m *Model) apply(e events.Event, now time.Time) {
	if e.ID > m.lastID {
		m.lastID = e.ID
	}
	m.activity.onEvent(now)
	m.connected = true

	switch e.Type {
	case events.TypeSceneDispatched:
		var p events.SceneDispatched
		if json.Unmarshal(e.Data, &p) == nil {
			m.routed[p.Output] = p.Scene
		}
	case events.TypeSceneEmitted:
		var p events.SceneEmitted
		if json.Unmarshal(e.Data, &p) == nil {
			m.emitted[p.Input] = p.Scene
		}
	case events.TypeStreamEOS:
		var p events.StreamEOS
		if json.Unmarshal(e.Data, &p) == nil {
			m.eos = &p
		}
	case events.TypeStageState:
		var p events.StageState
		if json.Unmarshal(e.Data, &p) == nil && p.To == "playing" {
			m.eos = nil
			clear(m.routed)
			clear(m.emitted)
		}
	}

	line := fmt.Sprintf("%s %-16s %s", e.At.Format("15:04:05"), e.Type, string(e.Data))
	m.eventLog = append(m.eventLog, line)
	if len(m.eventLog) > maxEventLog {
		m.eventLog = m.eventLog[len(m.eventLog)-maxEventLog:]
	}
	m.log.SetContent(strings.Join(m.eventLog, "\n"))
	m.log.GotoBottom()
}

// refreshTable pairs every branch with its dispatcher output; both are
// listed in wiring order.
func (m *Model) refreshTable() {
	rows := make([]table.Row, 0, len(m.stats.Workers))
	outs := m.stats.Dispatcher.Outputs
	for i, w := range m.stats.Workers {
		queue, last := "-", "-"
		if i < len(outs) {
			queue = fmt.Sprintf("%d/%d", outs[i].Queued, outs[i].Capacity)
			if idx, ok := m.routed[outs[i].Name]; ok {
				last = fmt.Sprintf("%d", idx)
			}
		}
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", i),
			w.Worker,
			w.Kind,
			fmt.Sprintf("%d", w.Scenes),
			fmt.Sprintf("%d", w.Processed),
			fmt.Sprintf("%d", w.Emitted),
			fmt.Sprintf("%d", w.Failures),
			queue,
			last,
		})
	}
	m.workers.SetRows(rows)
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting..."
	}
	inner := m.width - 4

	parts := []string{
		m.renderHeader(inner),
		m.theme.Border.Width(inner).Render(lipgloss.JoinVertical(lipgloss.Left,
			m.theme.Title.Render("Workers"),
			m.workers.View(),
		)),
		m.theme.Border.Width(inner).Render(lipgloss.JoinVertical(lipgloss.Left,
			m.theme.Title.Render("Events"),
			m.log.View(),
		)),
	}
	if m.lastError != "" {
		parts = append(parts, m.theme.StatusFailed.Render(" ! "+m.lastError))
	}
	parts = append(parts, m.theme.Dim.Render(" [q] quit • [↑/↓] scroll events"))

	return lipgloss.NewStyle().Margin(1, 2).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func (m Model) renderHeader(width int) string {
	state := m.theme.StatusIdle.Render(strings.ToUpper(orDash(m.stats.State)))
	switch {
	case !m.connected:
		state = m.theme.StatusFailed.Render("DISCONNECTED")
	case m.eos != nil:
		state = m.theme.StatusOK.Render("EOS")
	case m.stats.State == "playing":
		state = m.theme.StatusRunning.Render("PLAYING")
	}

	c := m.stats.Collector
	title := fmt.Sprintf(" HYPE %s  group %d  caps %s", state, m.stats.GroupSize, orDash(m.stats.OutputCaps))
	counters := fmt.Sprintf(" frames %d  scenes %d  emitted %d  skipped %d  late %d  pending %d",
		m.stats.Segmenter.Frames, m.stats.Segmenter.Boundaries, c.Emitted, c.Skipped, c.LateDrops, len(c.Pending))
	act := fmt.Sprintf(" next %d  fku failures %d  %s",
		c.NextToSend, m.stats.Dispatcher.ForceKeyUnitFailures, m.activity.render(m.theme))

	return m.theme.Border.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, title, counters, act))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
