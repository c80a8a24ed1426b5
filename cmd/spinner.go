package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// replayProgress is where a realtime replay stands after a step.
type replayProgress struct {
	Step    int
	Total   int
	Pending int
	// Settling is set once every step ran and only releases remain.
	Settling bool
}

func (p replayProgress) String() string {
	releases := "releases"
	if p.Pending == 1 {
		releases = "release"
	}
	if p.Settling {
		return fmt.Sprintf("settling, %d %s pending", p.Pending, releases)
	}
	return fmt.Sprintf("step %d/%d, %d %s pending", p.Step, p.Total, p.Pending, releases)
}

type replayProgressMsg replayProgress

type replayDoneMsg struct {
	err error
}

type replayModel struct {
	spinner  spinner.Model
	scenario string
	progress replayProgress
	replay   tea.Cmd
	err      error
	done     bool
}

func newReplayModel(scenario string, steps int, replay tea.Cmd) replayModel {
	return replayModel{
		spinner: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("69"))),
		),
		scenario: scenario,
		progress: replayProgress{Total: steps},
		replay:   replay,
	}
}

func (m replayModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.replay)
}

func (m replayModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case replayProgressMsg:
		m.progress = replayProgress(msg)
		return m, nil
	case replayDoneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	default:
		return m, nil
	}
}

func (m replayModel) View() string {
	if m.done {
		if m.err != nil {
			return fmt.Sprintf("Replay of %s stopped at step %d/%d\n", m.scenario, m.progress.Step, m.progress.Total)
		}
		return fmt.Sprintf("Replayed %s: %d/%d steps\n", m.scenario, m.progress.Step, m.progress.Total)
	}

	return fmt.Sprintf("%s Replaying %s... %s", m.spinner.View(), m.scenario, m.progress)
}

// runReplaySpinner drives replay under a spinner on output. replay reports
// its progress through the callback it is given.
func runReplaySpinner(ctx context.Context, output io.Writer, scenario string, steps int, replay func(context.Context, func(replayProgress)) error) error {
	var p *tea.Program
	report := func(progress replayProgress) {
		p.Send(replayProgressMsg(progress))
	}
	replayCmd := func() tea.Msg {
		return replayDoneMsg{err: replay(ctx, report)}
	}

	p = tea.NewProgram(
		newReplayModel(scenario, steps, replayCmd),
		tea.WithInput(nil),
		tea.WithOutput(output),
		tea.WithContext(ctx),
	)

	final, err := p.Run()
	if err != nil {
		return err
	}

	m, ok := final.(replayModel)
	if !ok {
		return fmt.Errorf("unexpected final replay model type %T", final)
	}
	return m.err
}
