package panel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"rollcall/internal/config"
	"rollcall/internal/events"
	"rollcall/internal/queue"
)

// SubmissionLister is the slice of the queue the panel reads from.
type SubmissionLister interface {
	ListRecent(ctx context.Context, limit int) ([]*queue.Submission, error)
}

// CheckinFunc enqueues a manual check-in for the enabled profiles and returns
// a one-line summary for the status bar.
type CheckinFunc func(ctx context.Context) (string, error)

// Options wires the panel to the running service.
type Options struct {
	Hub     *events.Hub
	Queue   SubmissionLister
	Config  func() *config.Config
	Checkin CheckinFunc
}

// Model is the main BubbleTea model for the panel.
type Model struct {
	ctx  context.Context
	opts Options

	width  int
	height int

	// State
	eventLog []events.Event
	lastTick time.Time
	queued   int
	running  int

	// Live indicators
	ticker  Ticker
	spinner Spinner

	// UI state
	theme    Theme
	subTable table.Model

	// Communication
	hubEvents   <-chan events.Event
	unsubscribe func()

	// Status display
	statusLine string
	lastError  string
}

// New creates a panel model subscribed to the hub. The subscription starts
// immediately so events between New and program start are not lost.
func New(ctx context.Context, opts Options) Model {
	ch, cancel := opts.Hub.Subscribe()

	// Seed the log with whatever the ring buffer holds, newest first.
	snapshot := opts.Hub.SnapshotSince(0)
	eventLog := make([]events.Event, 0, len(snapshot))
	for i := len(snapshot) - 1; i >= 0; i-- {
		eventLog = append(eventLog, snapshot[i])
	}

	return Model{
		ctx:         ctx,
		opts:        opts,
		eventLog:    eventLog,
		ticker:      NewTicker(),
		spinner:     NewSpinner(),
		theme:       NewDefaultTheme(),
		subTable:    newSubmissionTable(),
		hubEvents:   ch,
		unsubscribe: cancel,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		receiveNextEvent(m.hubEvents),
		loadSubmissions(m.ctx, m.opts.Queue),
		scheduleTick(),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.unsubscribe()
			return m, tea.Quit
		case "c":
			m.statusLine = "Requesting check-in..."
			m.lastError = ""
			return m, runCheckin(m.ctx, m.opts.Checkin)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.subTable.SetWidth(m.width - 6)

	case tickMsg:
		m.ticker.Tick()
		m.spinner.Decay()
		return m, tea.Batch(scheduleTick(), loadSubmissions(m.ctx, m.opts.Queue))

	case hubEventMsg:
		e := events.Event(msg)

		// Newest first
		m.eventLog = append([]events.Event{e}, m.eventLog...)
		if len(m.eventLog) > 50 {
			m.eventLog = m.eventLog[:50]
		}

		m.spinner.OnEvent()

		if e.Type == events.TypeSchedulerTick {
			m.lastTick = time.Now()
		}

		return m, receiveNextEvent(m.hubEvents)

	case submissionsMsg:
		m.queued, m.running = 0, 0
		for _, sub := range msg {
			switch sub.Status {
			case queue.StatusQueued:
				m.queued++
			case queue.StatusRunning:
				m.running++
			}
		}
		m.subTable.SetRows(submissionRows(msg, m.theme, time.Now()))

	case checkinDoneMsg:
		m.statusLine = string(msg)

	case errMsg:
		m.lastError = msg.Error()
	}

	var cmd tea.Cmd
	m.subTable, cmd = m.subTable.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing rollcall panel..."
	}

	now := time.Now()
	state := headerState{
		QueuedCount:     m.queued,
		RunningCount:    m.running,
		EnabledProfiles: countEnabledProfiles(m.opts.Config()),
		LastTick:        m.lastTick,
	}

	header := renderHeader(m.opts.Config(), state, m.ticker, m.spinner, m.theme, m.width, now)

	submissions := m.theme.Border.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.theme.Title.Render("SUBMISSIONS"),
			m.subTable.View(),
		),
	)

	eventStream := renderEventStream(m.eventLog, m.theme, m.width)

	var statusBar string
	switch {
	case m.lastError != "":
		statusBar = m.theme.StatusFailed.Render(fmt.Sprintf(" ⚠ %s", m.lastError))
	case m.statusLine != "":
		statusBar = m.theme.Highlight.Render(" " + m.statusLine)
	}

	help := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render(" [c] Check in now • [↑/↓] Navigate • [q] Quit")

	parts := []string{header, submissions, eventStream}
	if statusBar != "" {
		parts = append(parts, statusBar)
	}
	parts = append(parts, help)

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}

func countEnabledProfiles(cfg *config.Config) int {
	if cfg == nil {
		return 0
	}
	n := 0
	for _, p := range cfg.Profiles {
		if p.Enabled {
			n++
		}
	}
	return n
}

// Run blocks until the panel exits or ctx is cancelled. Cancellation is a
// normal shutdown, not an error.
func Run(ctx context.Context, opts Options) error {
	p := tea.NewProgram(New(ctx, opts), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}
