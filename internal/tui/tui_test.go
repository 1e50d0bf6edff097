package tui

import (
	"bytes"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/ballotcount/internal/progress"
)

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	mm, ok := next.(Model)
	require.True(t, ok)
	return mm, cmd
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestModelFollowsEvents(t *testing.T) {
	m := NewModel("Counting district-7", nil)

	m, cmd := update(t, m, eventMsg{Message: "counting 2 ballots", Percent: 5, Total: 2})
	assert.Nil(t, cmd)
	m, cmd = update(t, m, eventMsg{Message: "ballot b1 done (1/2)", Percent: 50, Completed: 1, Total: 2})
	assert.Nil(t, cmd)

	view := m.View()
	assert.Contains(t, view, "Counting district-7")
	assert.Contains(t, view, "1/2")
	assert.Contains(t, view, "ballot b1 done")
	assert.Contains(t, view, "q: cancel")

	m, cmd = update(t, m, eventMsg{Message: "counted 2 ballots", Percent: 100, Completed: 2, Total: 2})
	assert.True(t, isQuit(cmd))
	assert.Equal(t, 100, m.Last().Percent)
	assert.Contains(t, m.View(), "counted 2 ballots")
}

func TestModelShowsFailure(t *testing.T) {
	m := NewModel("Counting", nil)
	m, cmd := update(t, m, eventMsg{Message: "poll has already been counted", Percent: -1})
	assert.True(t, isQuit(cmd))
	assert.Contains(t, m.View(), "failed: poll has already been counted")
}

func TestModelHistoryIsBounded(t *testing.T) {
	m := NewModel("Counting", nil)
	for i := range 8 {
		m, _ = update(t, m, eventMsg{Message: string(rune('a' + i)), Percent: 5 + i})
	}
	assert.Len(t, m.history, historySize)
	assert.Equal(t, "h", m.history[historySize-1])
}

func TestQuitKeyCancels(t *testing.T) {
	cancelled := false
	m := NewModel("Counting", func() { cancelled = true })
	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.True(t, isQuit(cmd))
	assert.True(t, cancelled)
}

func TestViewRunsUntilTerminalEvent(t *testing.T) {
	var out bytes.Buffer
	v := Start("Counting", nil, tea.WithInput(nil), tea.WithOutput(&out))

	var sink progress.Sink = v
	rep := progress.NewReporter(sink)
	rep.Start(1)
	rep.Completed("b1")
	rep.Finish("")

	select {
	case err := <-v.done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("view did not exit after the terminal event")
	}
	assert.Contains(t, out.String(), "Counting")
}
