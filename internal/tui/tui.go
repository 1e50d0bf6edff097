// Package tui shows a counting run as a bubbletea progress view.
//
// The view is driven entirely by progress events: each one moves the bar,
// and the terminal event (100 or -1) ends the program. Pressing q or
// ctrl+c cancels the run through the supplied cancel func.
package tui

import (
	"fmt"
	"strings"

	bar "github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/MeKo-Tech/ballotcount/internal/progress"
)

const historySize = 5

// eventMsg carries a progress event into the update loop.
type eventMsg progress.Event

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	failStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B"))
	doneStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#50FA7B"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)

// Model is the progress view state.
type Model struct {
	title   string
	bar     bar.Model
	last    progress.Event
	history []string
	cancel  func()
	quit    bool
}

// NewModel creates the view. cancel may be nil.
func NewModel(title string, cancel func()) Model {
	return Model{
		title:  title,
		bar:    bar.New(bar.WithDefaultGradient(), bar.WithWidth(50)),
		cancel: cancel,
	}
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.cancel != nil {
				m.cancel()
			}
			m.quit = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.bar.Width = max(10, min(80, msg.Width-10))
	case eventMsg:
		e := progress.Event(msg)
		m.last = e
		m.history = append(m.history, e.Message)
		if len(m.history) > historySize {
			m.history = m.history[len(m.history)-historySize:]
		}
		if e.Terminal() {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")

	ratio := 0.0
	if m.last.Percent > 0 {
		ratio = float64(m.last.Percent) / 100
	}
	b.WriteString(m.bar.ViewAs(ratio))
	fmt.Fprintf(&b, "  %d/%d\n\n", m.last.Completed, m.last.Total)

	for _, line := range m.history {
		b.WriteString(statusStyle.Render(line))
		b.WriteString("\n")
	}

	switch {
	case m.last.Percent == progress.PercentFailed:
		b.WriteString("\n" + failStyle.Render("failed: "+m.last.Message) + "\n")
	case m.last.Percent == progress.PercentDone:
		b.WriteString("\n" + doneStyle.Render(m.last.Message) + "\n")
	case !m.quit:
		b.WriteString("\n" + helpStyle.Render("q: cancel") + "\n")
	}
	return b.String()
}

// Last returns the most recent event.
func (m Model) Last() progress.Event { return m.last }

// View runs the model in its own goroutine and implements progress.Sink.
type View struct {
	prog *tea.Program
	done chan error
}

// Start launches the program.
func Start(title string, cancel func(), opts ...tea.ProgramOption) *View {
	v := &View{
		prog: tea.NewProgram(NewModel(title, cancel), opts...),
		done: make(chan error, 1),
	}
	go func() {
		_, err := v.prog.Run()
		v.done <- err
	}()
	return v
}

// Emit forwards e to the program. It returns immediately once the program has exited.
func (v *View) Emit(e progress.Event) { v.prog.Send(eventMsg(e)) }

// Wait blocks until the program exits.
func (v *View) Wait() error { return <-v.done }
