package status

import (
	"errors"
	"io"

	"github.com/bnema/slotwall/internal/application"
	tea "github.com/charmbracelet/bubbletea"
)

var ErrNoFrame = errors.New("wall view produced no frame")

// frameMsg carries one fully rendered wall.
type frameMsg string

// wallModel draws a single frame of the wall and quits.
type wallModel struct {
	snapshot application.WallSnapshot
	opts     RenderOptions
	frame    string
	drawn    bool
}

func (m wallModel) Init() tea.Cmd {
	snapshot, opts := m.snapshot, m.opts
	return func() tea.Msg {
		return frameMsg(renderView(snapshot, opts, newStyles()))
	}
}

func (m wallModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	frame, ok := msg.(frameMsg)
	if !ok {
		return m, nil
	}

	m.frame = string(frame)
	m.drawn = true
	return m, tea.Quit
}

func (m wallModel) View() string {
	return m.frame
}

// Render draws snapshot through a headless bubbletea program.
func Render(snapshot application.WallSnapshot, opts RenderOptions) (string, error) {
	final, err := tea.NewProgram(
		wallModel{snapshot: snapshot, opts: opts},
		tea.WithInput(nil),
		tea.WithOutput(io.Discard),
	).Run()
	if err != nil {
		return "", err
	}

	wall, ok := final.(wallModel)
	if !ok || !wall.drawn {
		return "", ErrNoFrame
	}

	return wall.frame, nil
}
