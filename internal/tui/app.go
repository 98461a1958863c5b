// Package tui provides a terminal user interface.
package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/user/topomon/internal/daemon"
	"github.com/user/topomon/internal/report"
	"github.com/user/topomon/internal/storage"
	"github.com/user/topomon/internal/util"
)

// refreshInterval is how often the dashboard reloads from the database.
const refreshInterval = 30 * time.Second

// App is the main TUI application.
type App struct {
	db     *storage.DB
	config *util.Config
}

// NewApp creates a new TUI application.
func NewApp(db *storage.DB, cfg *util.Config) *App {
	return &App{
		db:     db,
		config: cfg,
	}
}

// Run starts the TUI application.
func (a *App) Run() error {
	p := tea.NewProgram(newModel(a.load), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (a *App) load() (*DashboardData, error) {
	data, err := report.NewGenerator(a.db, a.config).Generate(report.Options{
		Since: time.Now().Add(-24 * time.Hour),
	})
	if err != nil {
		return nil, err
	}
	out := &DashboardData{Report: data}
	if st, err := daemon.ReadStatusFile(a.config.DataDir); err == nil {
		out.Daemon = st
	}
	return out, nil
}

type loader func() (*DashboardData, error)

// dashboardModel is the main bubbletea model.
type dashboardModel struct {
	load      loader
	dashboard *Dashboard
	spinner   spinner.Model
	ready     bool
	width     int
	height    int
	err       error
}

func newModel(load loader) dashboardModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(Primary)

	return dashboardModel{
		load:    load,
		spinner: s,
	}
}

// Init initializes the model.
func (m dashboardModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		loadData(m.load),
	)
}

// Update handles messages.
func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, loadData(m.load)
		case "tab", "a", "l":
			if m.dashboard != nil {
				m.dashboard.Toggle()
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.dashboard != nil {
			m.dashboard.SetSize(msg.Width, msg.Height)
		}

	case dataMsg:
		m.ready = true
		m.err = nil
		pane := paneAlerts
		if m.dashboard != nil {
			pane = m.dashboard.pane
		}
		m.dashboard = NewDashboard(msg.Data, m.width, m.height)
		m.dashboard.pane = pane
		return m, tea.Tick(refreshInterval, func(time.Time) tea.Msg { return refreshMsg{} })

	case refreshMsg:
		return m, loadData(m.load)

	case errMsg:
		m.err = msg.err

	case spinner.TickMsg:
		if m.ready {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the UI.
func (m dashboardModel) View() string {
	if m.err != nil {
		return ErrorStyle.Render("Error: "+m.err.Error()) + "\n" + HelpStyle.Render("Press 'r' to retry • 'q' to quit")
	}

	if !m.ready {
		return LoadingStyle.Render(m.spinner.View() + " Loading topology...")
	}

	return m.dashboard.View()
}

// Messages
type dataMsg struct {
	Data *DashboardData
}

type refreshMsg struct{}

type errMsg struct {
	err error
}

func loadData(load loader) tea.Cmd {
	return func() tea.Msg {
		data, err := load()
		if err != nil {
			return errMsg{err}
		}
		return dataMsg{Data: data}
	}
}
