package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/specklesim/speckle/pkg/observability"
)

// Messages sent into the progress model by the scheduler hooks.
type (
	runStartMsg struct{ total int }
	nodeDoneMsg struct{}
	runDoneMsg  struct{ err error }
)

// progressModel renders block materialization progress for long runs.
type progressModel struct {
	label string
	total int
	done  int
	err   error
}

func newProgressModel(label string) progressModel {
	return progressModel{label: label}
}

func (m progressModel) Init() tea.Cmd { return nil }

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case runStartMsg:
		m.total = msg.total
		m.done = 0
	case nodeDoneMsg:
		m.done++
	case runDoneMsg:
		m.err = msg.err
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m progressModel) View() string {
	if m.total == 0 {
		return StyleDim.Render(m.label) + "\n"
	}
	const width = 30
	filled := m.done * width / m.total
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return fmt.Sprintf("%s %s %s\n",
		StyleDim.Render(m.label),
		StyleNumber.Render(bar),
		StyleDim.Render(fmt.Sprintf("%d/%d", m.done, m.total)))
}

// teaSchedulerHooks forwards scheduler events into a running bubbletea
// program.
type teaSchedulerHooks struct {
	observability.NoopSchedulerHooks
	program *tea.Program
}

func (h teaSchedulerHooks) OnRunStart(_ context.Context, nodeCount, _ int) {
	h.program.Send(runStartMsg{total: nodeCount})
}

func (h teaSchedulerHooks) OnNodeComplete(_ context.Context, _, _ string, _ time.Duration, _ error) {
	h.program.Send(nodeDoneMsg{})
}

// withBlockProgress runs fn while a progress display tracks scheduler
// events. The display owns the terminal until fn returns.
func withBlockProgress(label string, fn func() error) error {
	program := tea.NewProgram(newProgressModel(label), tea.WithoutSignalHandler())
	observability.SetSchedulerHooks(teaSchedulerHooks{program: program})
	defer observability.Reset()

	errCh := make(chan error, 1)
	go func() {
		err := fn()
		program.Send(runDoneMsg{err: err})
		errCh <- err
	}()
	if _, err := program.Run(); err != nil {
		return err
	}
	return <-errCh
}
