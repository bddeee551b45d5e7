package democmder

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"

	"github.com/finvisor/finvisor/pkg/wizard"
)

type eventMsg wizard.Event

type stepDoneMsg struct {
	err error
}

// model is the interactive walkthrough. Playback runs in a goroutine that
// feeds events through a channel, one message per tea.Cmd.
type model struct {
	ctx    context.Context
	cancel context.CancelFunc

	player  *wizard.Player
	ctrl    *wizard.Controller
	scripts *wizard.Scripts

	feed     chan tea.Msg
	playing  bool
	typing   bool
	lines    []string
	letter   []string
	err      error
	width    int
	height   int
	spinner  spinner.Model
	progress progress.Model
}

func newModel(ctx context.Context, player *wizard.Player) *model {
	ctx, cancel := context.WithCancel(ctx)
	return &model{
		ctx:      ctx,
		cancel:   cancel,
		player:   player,
		ctrl:     wizard.NewController(),
		scripts:  player.Scripts(),
		width:    80,
		height:   24,
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot)),
		progress: progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.play())
}

// play starts the current step.
func (m *model) play() tea.Cmd {
	feed := make(chan tea.Msg)
	m.feed = feed
	m.playing = true
	m.typing = false
	m.lines = nil

	go func() {
		defer close(feed)
		err := m.player.PlayCurrent(m.ctx, m.ctrl, func(ev wizard.Event) error {
			select {
			case feed <- eventMsg(ev):
				return nil
			case <-m.ctx.Done():
				return m.ctx.Err()
			}
		})
		select {
		case feed <- stepDoneMsg{err: err}:
		case <-m.ctx.Done():
		}
	}()

	return waitFor(feed)
}

func waitFor(feed <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-feed
		if !ok {
			return nil
		}
		return msg
	}
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.cancel()
			return m, tea.Quit
		case "enter", "n", "right", " ":
			if m.playing || !m.ctrl.Done(m.ctrl.Current()) || m.ctrl.Finished() {
				return m, nil
			}
			if _, err := m.ctrl.Next(); err != nil {
				m.err = err
				return m, nil
			}
			return m, m.play()
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case eventMsg:
		m.apply(wizard.Event(msg))
		return m, waitFor(m.feed)

	case stepDoneMsg:
		m.playing = false
		m.err = msg.err
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// apply adds an event's lines. A settled item replaces its pending line.
func (m *model) apply(ev wizard.Event) {
	if ev.Kind == wizard.KindLine && ev.Step == wizard.Appeal {
		s, _ := ev.Payload.(string)
		m.letter = append(m.letter, s)
	}

	lines := describe(ev)
	if ev.Kind == wizard.KindItem && !pending(ev) && len(m.lines) > 0 {
		m.lines = m.lines[:len(m.lines)-1]
	}
	// the typing indicator only lasts until the message arrives
	if ev.Kind == wizard.KindMessage && m.typing {
		m.lines = m.lines[:len(m.lines)-1]
	}
	m.typing = ev.Kind == wizard.KindTyping
	m.lines = append(m.lines, lines...)
}

func (m *model) View() string {
	cur := m.ctrl.Current()

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Step %d/%d  %s", cur+1, wizard.NumSteps, m.scripts.Label(cur))))
	b.WriteString("\n")

	done := 0
	for _, d := range m.ctrl.Progress() {
		if d {
			done++
		}
	}
	b.WriteString(m.progress.ViewAs(float64(done) / float64(wizard.NumSteps)))
	b.WriteString("\n\n")

	body := m.lines
	if cur == wizard.Appeal && !m.playing && len(m.letter) > 0 {
		body = strings.Split(strings.TrimRight(renderLetter(m.letter, m.width-4, true), "\n"), "\n")
	}
	if room := m.height - 6; room > 0 && len(body) > room {
		body = body[len(body)-room:]
	}
	for _, line := range body {
		b.WriteString(ansi.Truncate(line, m.width, "…"))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.status())
	return b.String()
}

func (m *model) status() string {
	switch {
	case m.err != nil:
		return flagStyle.Render("error: "+m.err.Error()) + statusStyle.Render("  q quit")
	case m.playing:
		return m.spinner.View() + statusStyle.Render(" playing…  q quit")
	case m.ctrl.Finished():
		return doneStyle.Render("Walkthrough complete.") + statusStyle.Render("  q quit")
	default:
		return statusStyle.Render("enter next step  q quit")
	}
}
