package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rendis/mapcrawl/internal/tui/views"
)

// App is the root bubbletea model.
type App struct {
	width    int
	height   int
	progress views.ProgressModel
}

func NewApp(ctx context.Context, s views.Session) App {
	return App{progress: views.NewProgressModel(ctx, s)}
}

func (a App) Init() tea.Cmd {
	return a.progress.Init()
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.WindowSizeMsg); ok {
		a.width = msg.Width
		a.height = msg.Height
	}

	m, cmd := a.progress.Update(msg)
	a.progress = m.(views.ProgressModel)
	return a, cmd
}

func (a App) View() string {
	return lipgloss.Place(
		a.width, a.height,
		lipgloss.Center, lipgloss.Top,
		a.progress.View(),
	)
}

// Run shows the dashboard while the session crawls. It returns once the
// user quits and the crawl has stopped.
func Run(ctx context.Context, s views.Session) error {
	app := NewApp(ctx, s)
	p := tea.NewProgram(app, tea.WithAltScreen())
	final, err := p.Run()
	app.progress.Stop()
	if err != nil {
		return err
	}
	if a, ok := final.(App); ok {
		return a.progress.Err()
	}
	return nil
}
