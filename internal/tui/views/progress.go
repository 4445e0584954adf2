package views

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rendis/mapcrawl/internal/tui/components"
	"github.com/rendis/mapcrawl/internal/tui/styles"
)

const statsWidth = 32

// Session is one crawl shown by the dashboard.
type Session struct {
	Title  string
	DBPath string
	Feed   *Feed
	// Crawl runs the crawl and returns when it stops.
	Crawl func(ctx context.Context) error
}

// sharedState holds data shared between the crawl goroutine and TUI.
// Lives behind a pointer so it survives bubbletea's value copies.
type sharedState struct {
	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	started  bool
	stopped  bool
	finished chan struct{}
}

// ProgressModel is the crawl dashboard.
type ProgressModel struct {
	session     Session
	progress    progress.Model
	mapView     components.MapView
	regionSet   bool
	startTime   time.Time
	done        bool
	confirmQuit bool
	err         error
	width       int
	height      int
	shared      *sharedState
}

// Messages
type progressTickMsg time.Time

type crawlCompleteMsg struct {
	Err error
}

func NewProgressModel(ctx context.Context, s Session) ProgressModel {
	p := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(50),
	)
	ctx, cancel := context.WithCancel(ctx)

	return ProgressModel{
		session:   s,
		progress:  p,
		mapView:   components.NewMapView(40, 12),
		startTime: time.Now(),
		shared: &sharedState{
			ctx:      ctx,
			cancel:   cancel,
			finished: make(chan struct{}),
		},
	}
}

func (m ProgressModel) Init() tea.Cmd {
	return tea.Batch(
		m.startCrawl(),
		tickCmd(),
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(300*time.Millisecond, func(t time.Time) tea.Msg {
		return progressTickMsg(t)
	})
}

func (m ProgressModel) startCrawl() tea.Cmd {
	shared := m.shared
	crawl := m.session.Crawl

	return func() tea.Msg {
		shared.mu.Lock()
		if shared.stopped {
			shared.mu.Unlock()
			return crawlCompleteMsg{Err: context.Canceled}
		}
		shared.started = true
		shared.mu.Unlock()
		defer close(shared.finished)

		return crawlCompleteMsg{Err: crawl(shared.ctx)}
	}
}

// Stop cancels the crawl and waits for it to return.
func (m ProgressModel) Stop() {
	m.shared.cancel()
	m.shared.mu.Lock()
	started := m.shared.started
	m.shared.stopped = true
	m.shared.mu.Unlock()
	if started {
		<-m.shared.finished
	}
}

// Err is the crawl result once it is done.
func (m ProgressModel) Err() error {
	if errors.Is(m.err, context.Canceled) {
		return nil
	}
	return m.err
}

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.mapView.SetSize(max(msg.Width-statsWidth-6, 10), max(msg.Height-12, 4))
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.shared.cancel()
			return m, tea.Quit
		case "esc", "q":
			if m.done {
				return m, tea.Quit
			}
			if m.confirmQuit {
				// Second esc: stop the crawl, the dashboard stays up until it returns
				m.shared.cancel()
				m.confirmQuit = false
				return m, nil
			}
			m.confirmQuit = true
			return m, nil
		case "enter":
			if m.done {
				return m, tea.Quit
			}
		case "+", "=":
			m.mapView.ZoomIn()
		case "-":
			m.mapView.ZoomOut()
		case "0":
			m.mapView.ZoomReset()
		case "up":
			m.mapView.Pan(1, 0)
		case "down":
			m.mapView.Pan(-1, 0)
		case "left":
			m.mapView.Pan(0, -1)
		case "right":
			m.mapView.Pan(0, 1)
		}
		// Any other key cancels the confirmation
		m.confirmQuit = false
	case progressTickMsg:
		m.refreshMap()
		if m.done {
			return m, nil
		}
		return m, tickCmd()
	case crawlCompleteMsg:
		m.done = true
		m.err = msg.Err
		m.refreshMap()
		return m, nil
	}

	var cmd tea.Cmd
	var pModel tea.Model
	pModel, cmd = m.progress.Update(msg)
	m.progress = pModel.(progress.Model)
	return m, cmd
}

func (m *ProgressModel) refreshMap() {
	if m.session.Feed == nil {
		return
	}
	snap := m.session.Feed.snapshot()
	if !m.regionSet && snap.region != nil {
		m.mapView.SetRegion(snap.region)
		m.regionSet = true
	}
	m.mapView.SetCandidates(snap.candidates)
	m.mapView.SetPlaces(snap.places)
}

func (m ProgressModel) View() string {
	var b strings.Builder
	var snap feedSnapshot
	if m.session.Feed != nil {
		snap = m.session.Feed.snapshot()
	}

	b.WriteString(styles.Title.Render("Crawling: " + m.session.Title))
	b.WriteString("\n\n")

	statsBox := styles.Border.Width(statsWidth).Render(m.renderStats(snap))
	mapBox := styles.Border.Render(m.mapView.View())
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, statsBox, " ", mapBox))
	b.WriteString("\n\n")

	b.WriteString(m.progress.ViewAs(snap.fraction()))
	b.WriteString("\n\n")

	// Status
	switch {
	case m.done:
		if err := m.Err(); err != nil {
			b.WriteString(styles.ErrorText.Render(fmt.Sprintf("Error: %v", err)))
		} else {
			b.WriteString(lipgloss.NewStyle().Foreground(styles.Success).Bold(true).
				Render(fmt.Sprintf("Complete! %d places stored", snap.stats.Places)))
			if m.session.DBPath != "" {
				b.WriteString("\n")
				b.WriteString(lipgloss.NewStyle().Foreground(styles.Muted).
					Render(fmt.Sprintf("Database: %s", m.session.DBPath)))
			}
		}
		b.WriteString("\n")
		b.WriteString(styles.StatusBar.Render("enter/esc quit"))
	case m.confirmQuit:
		b.WriteString(styles.ErrorText.Render("Press ESC again to stop the crawl"))
		b.WriteString("\n")
		b.WriteString(styles.StatusBar.Render("esc confirm stop • any key continue"))
	default:
		b.WriteString(styles.StatusBar.Render("+/- zoom • arrows pan • 0 reset • esc stop • ctrl+c quit"))
	}

	return b.String()
}

func (m ProgressModel) renderStats(snap feedSnapshot) string {
	var sb strings.Builder
	elapsed := time.Since(m.startTime).Truncate(time.Second)

	row := func(label string, value string) {
		sb.WriteString(styles.Label.Render(label))
		sb.WriteString(styles.Value.Render(value))
		sb.WriteString("\n")
	}

	if !snap.attached {
		sb.WriteString(styles.Subtitle.Render("Planning..."))
		sb.WriteString("\n")
		row("Elapsed:", elapsed.String())
		return sb.String()
	}

	places := fmt.Sprintf("%d", snap.stats.Places)
	if snap.maxPlaces > 0 {
		places = fmt.Sprintf("%d/%d", snap.stats.Places, snap.maxPlaces)
	}
	row("Places:", places)
	row("Searches:", fmt.Sprintf("%d", snap.stats.Maps))
	row("Enqueued:", fmt.Sprintf("%d", snap.quota.EnqueuedTotal))
	row("Queued:", fmt.Sprintf("%d", snap.queued))
	row("Handled:", fmt.Sprintf("%d", snap.handled))

	if snap.stats.OutOfPolygon > 0 {
		sb.WriteString(styles.Label.Render("Outside:"))
		sb.WriteString(lipgloss.NewStyle().Foreground(styles.Warning).Bold(true).
			Render(fmt.Sprintf("%d", snap.stats.OutOfPolygon)))
		sb.WriteString("\n")
	}

	errStyle := styles.Value
	if snap.stats.Failed > 0 {
		errStyle = lipgloss.NewStyle().Foreground(styles.Error).Bold(true)
	}
	sb.WriteString(styles.Label.Render("Failed:"))
	sb.WriteString(errStyle.Render(fmt.Sprintf("%d", snap.stats.Failed)))
	sb.WriteString("\n")

	row("Elapsed:", elapsed.String())

	// ETA
	if pct := snap.fraction(); pct > 0 && pct < 1 && !m.done {
		remaining := time.Duration(float64(elapsed) * (1 - pct) / pct).Truncate(time.Second)
		row("ETA:", "~"+remaining.String())
	}

	if snap.lastPlace != "" {
		sb.WriteString("\n")
		sb.WriteString(lipgloss.NewStyle().Foreground(styles.Muted).
			Width(statsWidth - 2).MaxHeight(1).Render(snap.lastPlace))
	}

	return sb.String()
}
